package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs_Sequence(t *testing.T) {
	gen := NewSequentialIDs("ev")

	assert.Equal(t, "ev-001", gen.Generate())
	assert.Equal(t, "ev-002", gen.Generate())
	assert.Equal(t, "ev-003", gen.Generate())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	gen := NewSequentialIDs("")
	assert.Equal(t, "ev-001", gen.Generate())
}

func TestSequentialIDs_Reset(t *testing.T) {
	gen := NewSequentialIDs("x")
	gen.Generate()
	gen.Generate()

	gen.Reset()
	assert.Equal(t, "x-001", gen.Generate())
}

func TestSequentialIDs_ThreadSafeUnique(t *testing.T) {
	gen := NewSequentialIDs("t")
	const goroutines = 20
	const perGoroutine = 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}
