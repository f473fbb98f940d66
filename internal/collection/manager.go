// Package collection implements the per-entity manager that keeps an
// in-memory list consistent across the remote store, the local cache and
// the realtime change feed. One manager owns one collection; managers are
// independent of each other and share the cache only through distinct
// keys.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"opsline/internal/cache"
	"opsline/internal/config"
	"opsline/internal/domain"
	"opsline/internal/remote"
)

// Patch is a closed set of optional fields merged into a record.
type Patch[T any] interface {
	Apply(T) T
}

// Options configures a manager. Remote may be nil in cache mode.
type Options[T domain.Record[T]] struct {
	Table  string
	Mode   config.Mode
	Remote remote.Store
	Cache  *cache.Store

	// Seed is merged by id into an empty or partial cache-mode
	// collection on load; re-seeding never duplicates records.
	Seed []T

	// Title extracts the human-readable name recorded in mutation
	// events.
	Title func(T) string

	// Derive recomputes derived fields (progress, status) on a record
	// before any mutation commits, so no reader can observe a record
	// whose derived state lags its completion set.
	Derive func(T) T

	// Events receives a MutationEvent after each successful mutation.
	// Sends never block: a full channel drops the event.
	Events chan<- domain.MutationEvent

	Now func() time.Time
}

type Manager[T domain.Record[T]] struct {
	opts Options[T]

	mu      sync.Mutex
	items   []T
	loadSeq uint64
}

func New[T domain.Record[T]](opts Options[T]) *Manager[T] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager[T]{opts: opts}
}

// Table returns the collection's table name (also its cache key suffix).
func (m *Manager[T]) Table() string { return m.opts.Table }

// Items returns a copy of the current in-memory list.
func (m *Manager[T]) Items() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, len(m.items))
	copy(out, m.items)
	return out
}

// Get returns the record with the given id.
func (m *Manager[T]) Get(id string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.RecordID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Load populates the in-memory list from the authoritative source. In
// remote mode a failed read retains the previous state and returns the
// error. Responses from superseded loads are discarded: only the most
// recently issued load may replace state.
func (m *Manager[T]) Load(ctx context.Context) error {
	if !m.opts.Mode.RemoteActive() {
		return m.loadFromCache()
	}

	m.mu.Lock()
	m.loadSeq++
	seq := m.loadSeq
	m.mu.Unlock()

	raw, err := m.opts.Remote.Select(ctx, m.opts.Table, nil)
	if err != nil {
		return fmt.Errorf("load %s: %w", m.opts.Table, err)
	}
	items, err := decodeRecords[T](raw)
	if err != nil {
		return fmt.Errorf("load %s: %w", m.opts.Table, err)
	}

	m.mu.Lock()
	if seq != m.loadSeq {
		// A newer load was issued while this one was in flight.
		m.mu.Unlock()
		return nil
	}
	m.items = items
	m.mu.Unlock()

	m.mirrorToCache(items)
	return nil
}

func (m *Manager[T]) loadFromCache() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []T
	raw, ok, err := m.opts.Cache.ReadCollection(cache.Key(m.opts.Table))
	if err != nil {
		return fmt.Errorf("load %s: %w", m.opts.Table, err)
	}
	if ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("load %s: %w", m.opts.Table, err)
		}
	}

	seeded := false
	present := make(map[string]bool, len(items))
	for _, item := range items {
		present[item.RecordID()] = true
	}
	for _, s := range m.opts.Seed {
		if !present[s.RecordID()] {
			items = append(items, s)
			seeded = true
		}
	}
	if seeded || !ok {
		if err := m.opts.Cache.WriteCollection(cache.Key(m.opts.Table), items); err != nil {
			return fmt.Errorf("seed %s: %w", m.opts.Table, err)
		}
	}
	m.items = items
	return nil
}

// Add constructs a record and writes it through the active store. In
// cache mode the record gets a client id and is appended synchronously.
// In remote mode the append is optimistic under a client id, then a full
// reload picks up the server-assigned id; any write failure rolls the
// optimistic append back.
func (m *Manager[T]) Add(ctx context.Context, actor domain.Actor, item T) (T, error) {
	now := m.opts.Now().UTC().Format(time.RFC3339)
	item = item.WithMeta(domain.Meta{
		ID:        domain.NewClientID(m.opts.Now()),
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: actor.ID,
	})
	if m.opts.Derive != nil {
		item = m.opts.Derive(item)
	}

	if !m.opts.Mode.RemoteActive() {
		m.mu.Lock()
		m.items = append(m.items, item)
		if err := m.opts.Cache.WriteCollection(cache.Key(m.opts.Table), m.items); err != nil {
			m.items = m.items[:len(m.items)-1]
			m.mu.Unlock()
			return item, fmt.Errorf("add %s: %w", m.opts.Table, err)
		}
		m.mu.Unlock()
		m.emit(actor, domain.ActionCreated, item, "")
		return item, nil
	}

	m.mu.Lock()
	m.items = append(m.items, item)
	seq := m.loadSeq
	m.mu.Unlock()

	raw, err := m.opts.Remote.Insert(ctx, m.opts.Table, item)
	if err != nil {
		m.rollbackRemove(seq, item.RecordID())
		return item, fmt.Errorf("add %s: %w", m.opts.Table, err)
	}
	created := item
	if len(raw) > 0 {
		if uerr := json.Unmarshal(raw, &created); uerr != nil {
			created = item
		}
	}
	if err := m.Load(ctx); err != nil {
		// The insert committed; the next reload reconciles the id.
		log.Printf("opsline: reload %s after add: %v", m.opts.Table, err)
	}
	m.emit(actor, domain.ActionCreated, created, "")
	return created, nil
}

// Update merges a patch into the record with the given id. A missing id
// is a no-op, tolerating races with concurrent deletes from another
// client.
func (m *Manager[T]) Update(ctx context.Context, actor domain.Actor, id string, patch Patch[T]) (T, error) {
	return m.UpdateWithAction(ctx, actor, id, patch, domain.ActionUpdated, "")
}

// UpdateWithAction is Update with an explicit activity action, used for
// status transitions like archive and restore.
func (m *Manager[T]) UpdateWithAction(ctx context.Context, actor domain.Actor, id string, patch Patch[T], action, details string) (T, error) {
	var zero T
	m.mu.Lock()
	idx := m.indexOf(id)
	if idx < 0 {
		m.mu.Unlock()
		return zero, nil
	}
	prev := m.items[idx]
	updated := patch.Apply(prev)
	updated = updated.WithMeta(domain.Meta{UpdatedAt: m.opts.Now().UTC().Format(time.RFC3339)})
	if m.opts.Derive != nil {
		updated = m.opts.Derive(updated)
	}
	m.items[idx] = updated

	if !m.opts.Mode.RemoteActive() {
		if err := m.opts.Cache.WriteCollection(cache.Key(m.opts.Table), m.items); err != nil {
			m.items[idx] = prev
			m.mu.Unlock()
			return zero, fmt.Errorf("update %s: %w", m.opts.Table, err)
		}
		m.mu.Unlock()
		m.emit(actor, action, updated, details)
		return updated, nil
	}

	seq := m.loadSeq
	m.mu.Unlock()

	if _, err := m.opts.Remote.Update(ctx, m.opts.Table, id, updated); err != nil {
		m.rollbackReplace(seq, id, prev)
		return zero, fmt.Errorf("update %s: %w", m.opts.Table, err)
	}
	m.mirrorToCache(m.Items())
	m.emit(actor, action, updated, details)
	return updated, nil
}

// Delete removes the record from the active store and from memory. A
// missing id is a no-op.
func (m *Manager[T]) Delete(ctx context.Context, actor domain.Actor, id string) error {
	m.mu.Lock()
	idx := m.indexOf(id)
	if idx < 0 {
		m.mu.Unlock()
		return nil
	}
	removed := m.items[idx]
	m.items = append(m.items[:idx:idx], m.items[idx+1:]...)

	if !m.opts.Mode.RemoteActive() {
		if err := m.opts.Cache.WriteCollection(cache.Key(m.opts.Table), m.items); err != nil {
			m.items = insertAt(m.items, idx, removed)
			m.mu.Unlock()
			return fmt.Errorf("delete %s: %w", m.opts.Table, err)
		}
		m.mu.Unlock()
		m.emit(actor, domain.ActionDeleted, removed, "")
		return nil
	}

	seq := m.loadSeq
	m.mu.Unlock()

	if err := m.opts.Remote.Delete(ctx, m.opts.Table, id); err != nil {
		m.rollbackInsert(seq, idx, removed)
		return fmt.Errorf("delete %s: %w", m.opts.Table, err)
	}
	m.mirrorToCache(m.Items())
	m.emit(actor, domain.ActionDeleted, removed, "")
	return nil
}

// TrimOldest drops the oldest records beyond max, FIFO. Used to cap the
// cache-mode activity log; callers skip it in remote mode.
func (m *Manager[T]) TrimOldest(max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max <= 0 || len(m.items) <= max {
		return nil
	}
	m.items = append([]T(nil), m.items[len(m.items)-max:]...)
	if err := m.opts.Cache.WriteCollection(cache.Key(m.opts.Table), m.items); err != nil {
		return fmt.Errorf("trim %s: %w", m.opts.Table, err)
	}
	return nil
}

// --- internals ---

// indexOf must be called with mu held.
func (m *Manager[T]) indexOf(id string) int {
	for i, item := range m.items {
		if item.RecordID() == id {
			return i
		}
	}
	return -1
}

// rollbackRemove reverts an optimistic append unless a reload already
// replaced the list, in which case the reload is the reconciliation.
func (m *Manager[T]) rollbackRemove(seq uint64, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.loadSeq {
		return
	}
	if idx := m.indexOf(id); idx >= 0 {
		m.items = append(m.items[:idx:idx], m.items[idx+1:]...)
	}
}

func (m *Manager[T]) rollbackReplace(seq uint64, id string, prev T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.loadSeq {
		return
	}
	if idx := m.indexOf(id); idx >= 0 {
		m.items[idx] = prev
	}
}

func (m *Manager[T]) rollbackInsert(seq uint64, idx int, removed T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.loadSeq {
		return
	}
	if idx > len(m.items) {
		idx = len(m.items)
	}
	m.items = insertAt(m.items, idx, removed)
}

// mirrorToCache keeps the local cache a best-effort mirror of remote
// state; failures are diagnostic only.
func (m *Manager[T]) mirrorToCache(items []T) {
	if m.opts.Cache == nil {
		return
	}
	if err := m.opts.Cache.WriteCollection(cache.Key(m.opts.Table), items); err != nil {
		log.Printf("opsline: mirror %s to cache: %v", m.opts.Table, err)
	}
}

func (m *Manager[T]) emit(actor domain.Actor, action string, item T, details string) {
	if m.opts.Events == nil {
		return
	}
	title := ""
	if m.opts.Title != nil {
		title = m.opts.Title(item)
	}
	evt := domain.MutationEvent{
		Actor:       actor,
		Action:      action,
		EntityKind:  m.opts.Table,
		EntityID:    item.RecordID(),
		EntityTitle: title,
		Details:     details,
	}
	select {
	case m.opts.Events <- evt:
	default:
	}
}

func decodeRecords[T any](raw []json.RawMessage) ([]T, error) {
	if len(raw) == 0 {
		return []T{}, nil
	}
	arr, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(arr, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func insertAt[T any](items []T, idx int, item T) []T {
	items = append(items, item)
	copy(items[idx+1:], items[idx:])
	items[idx] = item
	return items
}
