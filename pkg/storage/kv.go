package storage

import "sync"

// KV is the narrow key-value interface the contract state is built on.
// Production uses Pebble; tests use the in-memory store. Implementations
// must be safe for concurrent readers with a single writer.
type KV interface {
	// Get returns the value for key. The second result is false when the
	// key does not exist (not an error).
	Get(key []byte) ([]byte, bool, error)

	// Set writes a single key durably.
	Set(key, value []byte) error

	// Batch starts a write batch. Writes become visible atomically on
	// Commit and not before.
	Batch() Batch

	Close() error
}

// Batch collects writes to be applied atomically.
type Batch interface {
	Set(key, value []byte)
	Commit() error
}

// MemStore is an in-memory KV used by tests and dev tooling.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemStore) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *MemStore) Batch() Batch {
	return &memBatch{store: m, pending: make(map[string][]byte)}
}

func (m *MemStore) Close() error { return nil }

// Len reports the number of stored keys.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

type memBatch struct {
	store   *MemStore
	pending map[string][]byte
}

func (b *memBatch) Set(key, value []byte) {
	b.pending[string(key)] = append([]byte(nil), value...)
}

func (b *memBatch) Commit() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for k, v := range b.pending {
		b.store.data[k] = v
	}
	b.pending = make(map[string][]byte)
	return nil
}
