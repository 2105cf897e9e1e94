package store

import (
	"context"
	"errors"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Reader reads raw values by key.
type Reader interface {
	// Get returns the value stored under key. The boolean is false when the
	// key is absent. The returned slice is owned by the caller.
	Get(key string) ([]byte, bool, error)
}

// Tx is a read-write view inside Update. Reads observe earlier writes of
// the same transaction.
type Tx interface {
	Reader
	Put(key string, value []byte) error
	Delete(key string) error
}

// KV is the persistent key-value store the engine reads and writes through.
//
// Update applies every write made by fn atomically: either all of them land
// or, when fn or the commit fails, none do.
type KV interface {
	View(ctx context.Context, fn func(Reader) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Open opens a store with the named backend. An empty backend selects SQLite.
// The memory backend ignores path.
func Open(backend, path string) (KV, error) {
	switch backend {
	case "", BackendSQLite:
		return OpenSQLite(path)
	case BackendPebble:
		return OpenPebble(path)
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
