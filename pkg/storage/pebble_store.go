package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStore is the durable KV backing the contract state in production.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) Get(key []byte) ([]byte, bool, error) {
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (s *PebbleStore) Set(key, value []byte) error {
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (s *PebbleStore) Batch() Batch {
	return &pebbleBatch{db: s.db, b: s.db.NewBatch()}
}

type pebbleBatch struct {
	db *pebble.DB
	b  *pebble.Batch
}

func (pb *pebbleBatch) Set(key, value []byte) {
	// Batch.Set only fails on a closed batch.
	_ = pb.b.Set(key, value, nil)
}

func (pb *pebbleBatch) Commit() error {
	if err := pb.b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble batch commit: %w", err)
	}
	return nil
}

var _ KV = (*PebbleStore)(nil)
var _ KV = (*MemStore)(nil)
