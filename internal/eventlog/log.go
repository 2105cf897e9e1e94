package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/oilflow/internal/store"
	"github.com/roach88/oilflow/internal/workflow"
)

// Persisted keys.
const (
	KeyHistory      = "workflowHistory"
	KeyMasterOrders = "masterOrders"
	KeyOrderData    = "orderData"
	KeySOSequence   = "lastSOSequence"
	KeyODSequence   = "lastODSequence"
)

// corruptSuffix marks where an unreadable history is parked before the
// first append overwrites it.
const corruptSuffix = ".corrupt"

// Log is the append-only workflow history over a KV store.
type Log struct {
	kv  store.KV
	ids IDGenerator
}

// Option configures a Log.
type Option func(*Log)

// WithIDGenerator sets the event id generator. Default is UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Log) {
		l.ids = g
	}
}

// New creates a Log over kv.
func New(kv store.KV, opts ...Option) *Log {
	l := &Log{kv: kv, ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append adds events to the end of the history in one atomic write and
// returns them with id and seq assigned.
func (l *Log) Append(ctx context.Context, events ...workflow.Event) ([]workflow.Event, error) {
	var out []workflow.Event
	err := l.Update(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Append(events...)
		return err
	})
	return out, err
}

// ReadAll returns the history in insertion order. It never fails: an
// unreadable store or value reads as an empty history.
func (l *Log) ReadAll(ctx context.Context) []workflow.Event {
	var events []workflow.Event
	err := l.View(ctx, func(r *Reader) error {
		events = r.Events()
		return nil
	})
	if err != nil {
		slog.Warn("workflow history unavailable", "error", err)
		return []workflow.Event{}
	}
	return events
}

// View runs fn with read access to every persisted collaborator.
func (l *Log) View(ctx context.Context, fn func(*Reader) error) error {
	return l.kv.View(ctx, func(r store.Reader) error {
		return fn(&Reader{r: r})
	})
}

// Update runs fn in one atomic store transaction.
func (l *Log) Update(ctx context.Context, fn func(*Tx) error) error {
	return l.kv.Update(ctx, func(t store.Tx) error {
		return fn(&Tx{Reader: Reader{r: t}, tx: t, ids: l.ids})
	})
}

// Reader reads persisted state. Bad values read as empty.
type Reader struct {
	r store.Reader
}

// Events returns the history in insertion order.
func (r *Reader) Events() []workflow.Event {
	events, _, err := r.events()
	if err != nil {
		slog.Warn("workflow history unavailable", "error", err)
		return []workflow.Event{}
	}
	return events
}

// events decodes the history. Store errors are returned; undecodable data
// yields an empty history and its raw bytes.
func (r *Reader) events() ([]workflow.Event, []byte, error) {
	data, found, err := r.r.Get(KeyHistory)
	if err != nil {
		return nil, nil, err
	}
	if !found || len(bytes.TrimSpace(data)) == 0 {
		return []workflow.Event{}, nil, nil
	}

	var events []workflow.Event
	if err := json.Unmarshal(data, &events); err != nil {
		slog.Warn("discarding unreadable workflow history", "key", KeyHistory, "error", err)
		return []workflow.Event{}, data, nil
	}
	if events == nil {
		events = []workflow.Event{}
	}
	for i := range events {
		if events[i].Seq == 0 {
			events[i].Seq = int64(i + 1)
		}
	}
	return events, nil, nil
}

// SideList returns the orders waiting on the named side list.
func (r *Reader) SideList(name string) []workflow.SideItem {
	var items []workflow.SideItem
	if !r.readJSON(name, &items) || items == nil {
		return []workflow.SideItem{}
	}
	return items
}

// Sequence returns the current value of a counter, 0 when unset.
func (r *Reader) Sequence(key string) int64 {
	var n int64
	r.readJSON(key, &n)
	return n
}

// MasterOrders decodes the cached snapshot map into dst.
// Returns false when the cache is missing or unreadable.
func (r *Reader) MasterOrders(dst any) bool {
	return r.readJSON(KeyMasterOrders, dst)
}

// Handoff decodes the pending orderData handoff into dst without consuming it.
func (r *Reader) Handoff(dst any) bool {
	return r.readJSON(KeyOrderData, dst)
}

func (r *Reader) readJSON(key string, dst any) bool {
	data, found, err := r.r.Get(key)
	if err != nil {
		slog.Warn("read failed", "key", key, "error", err)
		return false
	}
	if !found || len(bytes.TrimSpace(data)) == 0 {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		slog.Warn("discarding unreadable value", "key", key, "error", err)
		return false
	}
	return true
}

// Tx is read-write access inside Log.Update.
type Tx struct {
	Reader
	tx  store.Tx
	ids IDGenerator
}

// Append adds events after the current end of the history.
// Each event gets the next seq and, when it has none, a fresh id.
func (t *Tx) Append(events ...workflow.Event) ([]workflow.Event, error) {
	if len(events) == 0 {
		return []workflow.Event{}, nil
	}

	history, corrupt, err := t.events()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if corrupt != nil {
		if err := t.tx.Put(KeyHistory+corruptSuffix, corrupt); err != nil {
			return nil, fmt.Errorf("park corrupt history: %w", err)
		}
		slog.Warn("corrupt workflow history parked", "key", KeyHistory+corruptSuffix, "bytes", len(corrupt))
	}

	out := make([]workflow.Event, len(events))
	next := int64(len(history))
	for i, e := range events {
		next++
		e.Seq = next
		if e.ID == "" {
			e.ID = t.ids.Generate()
		}
		e.Payload = e.Payload.Clone()
		out[i] = e
	}

	if err := t.putJSON(KeyHistory, append(history, out...)); err != nil {
		return nil, err
	}

	slog.Debug("events appended", "count", len(out), "last_seq", next)
	return out, nil
}

// PutSideList replaces the named side list.
func (t *Tx) PutSideList(name string, items []workflow.SideItem) error {
	if items == nil {
		items = []workflow.SideItem{}
	}
	return t.putJSON(name, items)
}

// RemoveFromSideList removes processed rows from the named side list.
// Returns whether the list changed.
func (t *Tx) RemoveFromSideList(name string, keys ...workflow.RowKey) (bool, error) {
	items := t.SideList(name)
	changed := false
	for _, k := range keys {
		var c bool
		items, c = workflow.RemoveFromSideList(items, k)
		changed = changed || c
	}
	if !changed {
		return false, nil
	}
	return true, t.PutSideList(name, items)
}

// AddToSideList enqueues items on the named side list.
func (t *Tx) AddToSideList(name string, items ...workflow.SideItem) error {
	list := t.SideList(name)
	for _, item := range items {
		list = workflow.AddToSideList(list, item)
	}
	return t.PutSideList(name, list)
}

// NextSequence increments a counter and returns the new value.
func (t *Tx) NextSequence(key string) (int64, error) {
	n := t.Sequence(key) + 1
	if err := t.putJSON(key, n); err != nil {
		return 0, err
	}
	return n, nil
}

// PutHandoff stores v as the orderData handoff, replacing any previous one.
func (t *Tx) PutHandoff(v any) error {
	return t.putJSON(KeyOrderData, v)
}

// TakeHandoff decodes the orderData handoff into dst and removes it.
// Returns false when there was nothing readable to take.
func (t *Tx) TakeHandoff(dst any) (bool, error) {
	ok := t.readJSON(KeyOrderData, dst)
	if err := t.tx.Delete(KeyOrderData); err != nil {
		return false, fmt.Errorf("consume handoff: %w", err)
	}
	return ok, nil
}

// PutMasterOrders replaces the snapshot cache.
func (t *Tx) PutMasterOrders(v any) error {
	return t.putJSON(KeyMasterOrders, v)
}

func (t *Tx) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := t.tx.Put(key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
