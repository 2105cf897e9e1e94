package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Pebble is a KV backend on a Pebble LSM directory.
//
// Updates run on an indexed batch so reads inside the transaction see its
// own writes; the batch is committed with a WAL sync.
type Pebble struct {
	mu sync.Mutex // serialises Update read-modify-write cycles
	db *pebble.DB
}

// OpenPebble opens or creates a Pebble store in dir.
func OpenPebble(dir string) (*Pebble, error) {
	opts := &pebble.Options{
		MemTableSize:          16 << 20,
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 8,
	}
	db, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &Pebble{db: db}, nil
}

// Close closes the database.
func (p *Pebble) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// View runs fn against a consistent snapshot.
func (p *Pebble) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	db := p.db
	p.mu.Unlock()
	if db == nil {
		return ErrClosed
	}

	snap := db.NewSnapshot()
	defer snap.Close()
	return fn(pebbleReader{r: snap})
}

// Update runs fn on an indexed batch and commits it when fn returns nil.
func (p *Pebble) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return ErrClosed
	}

	b := p.db.NewIndexedBatch()
	defer b.Close()

	if err := fn(pebbleTx{pebbleReader: pebbleReader{r: b}, b: b}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble commit: %w", err)
	}
	return nil
}

// getter is the read half shared by *pebble.Snapshot and *pebble.Batch.
type getter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

type pebbleReader struct {
	r getter
}

func (r pebbleReader) Get(key string) ([]byte, bool, error) {
	v, closer, err := r.r.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), true, nil
}

type pebbleTx struct {
	pebbleReader
	b *pebble.Batch
}

func (t pebbleTx) Put(key string, value []byte) error {
	if err := t.b.Set([]byte(key), value, nil); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (t pebbleTx) Delete(key string) error {
	if err := t.b.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}
