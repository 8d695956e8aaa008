package wal

import (
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/adamgarcia4/goLearning/gateway/protocol"
)

// Records are stored as protobuf Struct messages so both storage backends
// share one self-describing encoding. Struct strings must be valid UTF-8
// while client and worker text is arbitrary bytes, so text fields are
// stored base64 encoded.

func encodeRecord(r Record) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"kind": string(r.Kind),
		"id":   encodeText(string(r.ID)),
		"at":   float64(r.At.UnixMilli()),
	}
	switch r.Kind {
	case RecordSubmit:
		fields["payload"] = encodeText(r.Payload)
	case RecordReplyTo:
		fields["reply_to"] = encodeText(r.ReplyTo)
	case RecordAttempt:
		fields["worker"] = encodeText(r.Worker)
	case RecordStatus:
		fields["status"] = r.Status.String()
		fields["result"] = encodeText(r.Result)
	default:
		return nil, fmt.Errorf("unknown record kind %q", r.Kind)
	}
	return structpb.NewStruct(fields)
}

func decodeRecord(s *structpb.Struct) (Record, error) {
	f := s.GetFields()
	var decodeErr error
	text := func(key string) string {
		v, err := decodeText(f[key].GetStringValue())
		if err != nil && decodeErr == nil {
			decodeErr = fmt.Errorf("field %s: %w", key, err)
		}
		return v
	}

	r := Record{
		Kind: RecordKind(f["kind"].GetStringValue()),
		ID:   protocol.CorrelationID(text("id")),
		At:   time.UnixMilli(int64(f["at"].GetNumberValue())),
	}
	if r.ID == "" {
		return Record{}, fmt.Errorf("record without id")
	}

	switch r.Kind {
	case RecordSubmit:
		r.Payload = text("payload")
	case RecordReplyTo:
		r.ReplyTo = text("reply_to")
	case RecordAttempt:
		r.Worker = text("worker")
	case RecordStatus:
		status, err := parseStatus(f["status"].GetStringValue())
		if err != nil {
			return Record{}, err
		}
		r.Status = status
		r.Result = text("result")
	default:
		return Record{}, fmt.Errorf("unknown record kind %q", r.Kind)
	}
	if decodeErr != nil {
		return Record{}, decodeErr
	}
	return r, nil
}

func encodeText(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decodeText(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	return string(b), err
}
