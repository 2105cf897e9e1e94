package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/oilflow/internal/eventlog"
	"github.com/roach88/oilflow/internal/snapshot"
)

// ReplayReport is the result of re-deriving state from the history.
type ReplayReport struct {
	Events int    `json:"events"`
	Orders int    `json:"orders"`
	Digest string `json:"digest"`

	// Deterministic is false if two derivations from the same history
	// produced different snapshots.
	Deterministic bool `json:"deterministic"`

	// CacheDigest is the digest of the stored masterOrders map; empty when
	// there is no readable cache.
	CacheDigest string `json:"cacheDigest,omitempty"`
	CacheFresh  bool   `json:"cacheFresh"`

	// Stale lists order ids whose cached snapshot differs from the derived one.
	Stale []string `json:"stale,omitempty"`
}

// Replay re-derives every snapshot from the history and checks the result
// against a second derivation and against the masterOrders cache.
func (e *Engine) Replay(ctx context.Context) (ReplayReport, error) {
	var (
		rep    ReplayReport
		cache  map[string]snapshot.Snapshot
		cached bool
	)
	err := e.log.View(ctx, func(r *eventlog.Reader) error {
		events := r.Events()
		rep.Events = len(events)

		first := snapshot.ByID(e.resolver.Snapshots(events))
		second := snapshot.ByID(e.resolver.Snapshots(events))
		rep.Orders = len(first)

		d1, err := snapshot.Digest(first)
		if err != nil {
			return err
		}
		d2, err := snapshot.Digest(second)
		if err != nil {
			return err
		}
		rep.Digest = d1
		rep.Deterministic = d1 == d2

		cached = r.MasterOrders(&cache)
		if !cached {
			return nil
		}
		if rep.CacheDigest, err = snapshot.Digest(cache); err != nil {
			return err
		}
		rep.CacheFresh = rep.CacheDigest == rep.Digest
		if !rep.CacheFresh {
			rep.Stale, err = staleOrders(first, cache)
		}
		return err
	})
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	slog.Info("replay complete",
		"events", rep.Events,
		"orders", rep.Orders,
		"deterministic", rep.Deterministic,
		"cache_fresh", rep.CacheFresh,
	)
	return rep, nil
}

// staleOrders compares per-order digests between the derived and the
// cached map.
func staleOrders(derived, cache map[string]snapshot.Snapshot) ([]string, error) {
	ids := slices.Sorted(maps.Keys(derived))
	for id := range cache {
		if _, ok := derived[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	var stale []string
	for _, id := range ids {
		a, okA := derived[id]
		b, okB := cache[id]
		if okA != okB {
			stale = append(stale, id)
			continue
		}
		da, err := snapshot.Digest(map[string]snapshot.Snapshot{id: a})
		if err != nil {
			return nil, err
		}
		db, err := snapshot.Digest(map[string]snapshot.Snapshot{id: b})
		if err != nil {
			return nil, err
		}
		if da != db {
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// RebuildCache rewrites masterOrders from the history and returns the
// number of orders written.
func (e *Engine) RebuildCache(ctx context.Context) (int, error) {
	var n int
	err := e.log.Update(ctx, func(tx *eventlog.Tx) error {
		snaps := snapshot.ByID(e.resolver.Snapshots(tx.Events()))
		n = len(snaps)
		return tx.PutMasterOrders(snaps)
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild cache: %w", err)
	}
	slog.Info("masterOrders rebuilt", "orders", n)
	return n, nil
}
