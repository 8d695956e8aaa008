package wal

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/adamgarcia4/goLearning/gateway/logger"
)

var walBucket = []byte("wal")

// BoltStorage keeps records in a bolt bucket keyed by a monotonically
// increasing sequence, which preserves append order.
type BoltStorage struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bolt database at path.
func OpenBolt(path string) (*BoltStorage, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open wal database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(walBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create wal bucket: %w", err)
	}
	return &BoltStorage{db: db}, nil
}

func (s *BoltStorage) Append(rec Record) error {
	msg, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(walBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

func (s *BoltStorage) Load() ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(walBucket).ForEach(func(k, v []byte) error {
			msg := &structpb.Struct{}
			if err := proto.Unmarshal(v, msg); err != nil {
				logger.Warnf("[wal] skipping corrupt record %d: %v", binary.BigEndian.Uint64(k), err)
				return nil
			}
			rec, err := decodeRecord(msg)
			if err != nil {
				logger.Warnf("[wal] skipping undecodable record %d: %v", binary.BigEndian.Uint64(k), err)
				return nil
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

func (s *BoltStorage) Truncate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(walBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(walBucket)
		return err
	})
}

func (s *BoltStorage) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
