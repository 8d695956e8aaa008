package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/adamgarcia4/goLearning/gateway/logger"
)

// FileStorage appends length-delimited protobuf records to a single file.
type FileStorage struct {
	mu         sync.Mutex
	path       string
	f          *os.File
	syncWrites bool
}

// OpenFile opens (or creates) the log file at path. With syncWrites every
// append is fsynced before it is acknowledged.
func OpenFile(path string, syncWrites bool) (*FileStorage, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal file: %w", err)
	}
	return &FileStorage{path: path, f: f, syncWrites: syncWrites}, nil
}

func (s *FileStorage) Append(rec Record) error {
	msg, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return ErrClosed
	}
	if _, err := protodelim.MarshalTo(s.f, msg); err != nil {
		return fmt.Errorf("failed to append wal record: %w", err)
	}
	if s.syncWrites {
		return s.f.Sync()
	}
	return nil
}

// Load reads the file from the start. A torn record at the tail (crash
// mid-write) ends the replay without failing it.
func (s *FileStorage) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal file for replay: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var records []Record
	for {
		msg := &structpb.Struct{}
		err := protodelim.UnmarshalFrom(r, msg)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			logger.Warnf("[wal] stopping replay of %s after %d records: %v", s.path, len(records), err)
			return records, nil
		}

		rec, err := decodeRecord(msg)
		if err != nil {
			logger.Warnf("[wal] skipping undecodable record: %v", err)
			continue
		}
		records = append(records, rec)
	}
}

func (s *FileStorage) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return ErrClosed
	}
	if err := s.f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate wal file: %w", err)
	}
	_, err := s.f.Seek(0, io.SeekStart)
	return err
}

func (s *FileStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
