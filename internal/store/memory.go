package store

import (
	"bytes"
	"context"
	"maps"
	"sync"
)

// Memory is a map-backed KV for tests and throwaway runs.
// Update stages writes in an overlay and copies them in on success.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Close marks the store closed. Data is discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

// View runs fn under a read lock.
func (m *Memory) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn(&memTx{base: m.data})
}

// Update runs fn against a staging overlay and applies it when fn returns nil.
func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	tx := &memTx{base: m.data, writes: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	next := maps.Clone(m.data)
	for k, v := range tx.writes {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	m.data = next
	return nil
}

// Set writes a raw value outside a transaction. Tests use it to plant
// corrupt documents.
func (m *Memory) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = bytes.Clone(value)
}

// memTx records deletions as nil entries in writes.
type memTx struct {
	base   map[string][]byte
	writes map[string][]byte
}

func (t *memTx) Get(key string) ([]byte, bool, error) {
	if t.writes != nil {
		if v, ok := t.writes[key]; ok {
			if v == nil {
				return nil, false, nil
			}
			return bytes.Clone(v), true, nil
		}
	}
	v, ok := t.base[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (t *memTx) Put(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	t.writes[key] = bytes.Clone(value)
	return nil
}

func (t *memTx) Delete(key string) error {
	t.writes[key] = nil
	return nil
}
