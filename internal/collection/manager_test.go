package collection_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"opsline/internal/cache"
	"opsline/internal/collection"
	"opsline/internal/config"
	"opsline/internal/domain"
	"opsline/internal/remote"
)

// fakeStore is an in-memory remote.Store with controllable failures.
type fakeStore struct {
	mu      sync.Mutex
	records map[string][]map[string]any
	nextID  int
	failAll error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string][]map[string]any{}}
}

func (f *fakeStore) fail(err error) {
	f.mu.Lock()
	f.failAll = err
	f.mu.Unlock()
}

func (f *fakeStore) Select(ctx context.Context, table string, filters remote.Filter) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	var out []json.RawMessage
	for _, rec := range f.records[table] {
		raw, _ := json.Marshal(rec)
		out = append(out, raw)
	}
	return out, nil
}

func (f *fakeStore) Insert(ctx context.Context, table string, record any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	raw, _ := json.Marshal(record)
	var rec map[string]any
	json.Unmarshal(raw, &rec)
	f.nextID++
	rec["id"] = fmt.Sprintf("srv-%d", f.nextID)
	f.records[table] = append(f.records[table], rec)
	out, _ := json.Marshal(rec)
	return out, nil
}

func (f *fakeStore) Update(ctx context.Context, table, id string, partial any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	raw, _ := json.Marshal(partial)
	var rec map[string]any
	json.Unmarshal(raw, &rec)
	for i, existing := range f.records[table] {
		if existing["id"] == id {
			rec["id"] = id
			f.records[table][i] = rec
			out, _ := json.Marshal(rec)
			return out, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeStore) Delete(ctx context.Context, table, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return f.failAll
	}
	for i, existing := range f.records[table] {
		if existing["id"] == id {
			f.records[table] = append(f.records[table][:i], f.records[table][i+1:]...)
			return nil
		}
	}
	return nil
}

func newCache(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sopTitle(s domain.SOP) string { return s.Title }

func cacheManager(t *testing.T, c *cache.Store, seed []domain.SOP, events chan domain.MutationEvent) *collection.Manager[domain.SOP] {
	return collection.New(collection.Options[domain.SOP]{
		Table:  "sops",
		Mode:   config.ModeCache,
		Cache:  c,
		Seed:   seed,
		Title:  sopTitle,
		Events: events,
		Now:    func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func TestCacheModeSeedsOnceByID(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	seed := domain.SeedSOPs()

	m := cacheManager(t, c, seed, nil)
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if len(m.Items()) != len(seed) {
		t.Fatalf("expected %d seeded records, got %d", len(seed), len(m.Items()))
	}

	// A fresh manager over the same cache must not duplicate.
	m2 := cacheManager(t, c, seed, nil)
	if err := m2.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if len(m2.Items()) != len(seed) {
		t.Fatalf("re-seed duplicated: %d records", len(m2.Items()))
	}
}

func TestCacheModeAddUpdateDeletePersist(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	actor := domain.Actor{ID: "u1", Name: "Pat"}

	m := cacheManager(t, c, nil, nil)
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	added, err := m.Add(ctx, actor, domain.SOP{Title: "Spill response", Status: domain.StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	if added.ID == "" || added.CreatedAt == "" || added.CreatedBy != "u1" {
		t.Fatalf("meta not stamped: %+v", added)
	}

	title := "Spill response v2"
	updated, err := m.Update(ctx, actor, added.ID, domain.SOPPatch{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != title {
		t.Fatalf("patch not applied: %+v", updated)
	}

	// A new manager over the same cache sees the committed state.
	m2 := cacheManager(t, c, nil, nil)
	if err := m2.Load(ctx); err != nil {
		t.Fatal(err)
	}
	got, ok := m2.Get(added.ID)
	if !ok || got.Title != title {
		t.Fatalf("cache not written through: %+v ok=%v", got, ok)
	}

	if err := m2.Delete(ctx, actor, added.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := m2.Get(added.ID); ok {
		t.Fatal("record survived delete")
	}
}

func TestUpdateMissingIDIsNoOp(t *testing.T) {
	c := newCache(t)
	m := cacheManager(t, c, nil, nil)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	title := "x"
	if _, err := m.Update(context.Background(), domain.Actor{ID: "u1"}, "nope", domain.SOPPatch{Title: &title}); err != nil {
		t.Fatalf("missing id should be a no-op, got %v", err)
	}
	if err := m.Delete(context.Background(), domain.Actor{ID: "u1"}, "nope"); err != nil {
		t.Fatalf("missing delete should be a no-op, got %v", err)
	}
}

func TestMutationEventsEmitted(t *testing.T) {
	c := newCache(t)
	events := make(chan domain.MutationEvent, 8)
	m := cacheManager(t, c, nil, events)
	ctx := context.Background()
	actor := domain.Actor{ID: "u1", Name: "Pat"}
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	added, err := m.Add(ctx, actor, domain.SOP{Title: "Lockout", Status: domain.StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	evt := <-events
	if evt.Action != domain.ActionCreated || evt.EntityKind != "sops" || evt.EntityID != added.ID || evt.EntityTitle != "Lockout" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	status := domain.StatusArchived
	if _, err := m.UpdateWithAction(ctx, actor, added.ID, domain.SOPPatch{Status: &status}, domain.ActionArchived, ""); err != nil {
		t.Fatal(err)
	}
	evt = <-events
	if evt.Action != domain.ActionArchived {
		t.Fatalf("expected archived action, got %+v", evt)
	}
}

func remoteManager(store remote.Store, c *cache.Store) *collection.Manager[domain.SOP] {
	return collection.New(collection.Options[domain.SOP]{
		Table:  "sops",
		Mode:   config.ModeRemote,
		Remote: store,
		Cache:  c,
		Title:  sopTitle,
	})
}

func TestRemoteAddBackfillsServerID(t *testing.T) {
	store := newFakeStore()
	m := remoteManager(store, newCache(t))
	ctx := context.Background()
	actor := domain.Actor{ID: "u1"}

	added, err := m.Add(ctx, actor, domain.SOP{Title: "Remote SOP", Status: domain.StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(added.ID, "srv-") {
		t.Fatalf("expected server id, got %q", added.ID)
	}
	items := m.Items()
	if len(items) != 1 || items[0].ID != added.ID {
		t.Fatalf("reload did not back-fill server id: %+v", items)
	}
}

func TestRemoteWriteFailureRollsBack(t *testing.T) {
	store := newFakeStore()
	m := remoteManager(store, newCache(t))
	ctx := context.Background()
	actor := domain.Actor{ID: "u1"}

	added, err := m.Add(ctx, actor, domain.SOP{Title: "Keeper", Status: domain.StatusActive})
	if err != nil {
		t.Fatal(err)
	}

	store.fail(remote.ErrUnavailable)
	if _, err := m.Add(ctx, actor, domain.SOP{Title: "Doomed"}); err == nil {
		t.Fatal("expected add failure")
	}
	items := m.Items()
	if len(items) != 1 || items[0].ID != added.ID {
		t.Fatalf("optimistic add not rolled back: %+v", items)
	}

	title := "changed"
	if _, err := m.Update(ctx, actor, added.ID, domain.SOPPatch{Title: &title}); err == nil {
		t.Fatal("expected update failure")
	}
	got, _ := m.Get(added.ID)
	if got.Title != "Keeper" {
		t.Fatalf("optimistic update not rolled back: %+v", got)
	}

	if err := m.Delete(ctx, actor, added.ID); err == nil {
		t.Fatal("expected delete failure")
	}
	if _, ok := m.Get(added.ID); !ok {
		t.Fatal("optimistic delete not rolled back")
	}
}

func TestLoadFailureRetainsState(t *testing.T) {
	store := newFakeStore()
	m := remoteManager(store, newCache(t))
	ctx := context.Background()

	if _, err := m.Add(ctx, domain.Actor{ID: "u1"}, domain.SOP{Title: "Stable"}); err != nil {
		t.Fatal(err)
	}
	before := m.Items()

	store.fail(remote.ErrUnavailable)
	if err := m.Load(ctx); err == nil {
		t.Fatal("expected load failure")
	}
	after := m.Items()
	if len(after) != len(before) || after[0].ID != before[0].ID {
		t.Fatalf("stale state not retained: %+v", after)
	}
}

// sequencedStore serves the first Select slowly with stale data and every
// later Select immediately with fresh data.
type sequencedStore struct {
	fakeStore
	calls        int32
	firstRelease chan struct{}
}

func (s *sequencedStore) Select(ctx context.Context, table string, filters remote.Filter) ([]json.RawMessage, error) {
	if atomic.AddInt32(&s.calls, 1) == 1 {
		<-s.firstRelease
		return []json.RawMessage{json.RawMessage(`{"id":"old","title":"Old","status":"active"}`)}, nil
	}
	return []json.RawMessage{json.RawMessage(`{"id":"new","title":"New","status":"active"}`)}, nil
}

func TestStaleReloadDiscarded(t *testing.T) {
	store := &sequencedStore{firstRelease: make(chan struct{})}
	m := remoteManager(store, newCache(t))
	ctx := context.Background()

	stale := make(chan error, 1)
	go func() { stale <- m.Load(ctx) }()

	// Give the stale load time to be issued, then complete a newer one.
	time.Sleep(50 * time.Millisecond)
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}

	close(store.firstRelease)
	if err := <-stale; err != nil {
		t.Fatal(err)
	}

	items := m.Items()
	if len(items) != 1 || items[0].ID != "new" {
		t.Fatalf("stale reload overwrote newer snapshot: %+v", items)
	}
}

func TestTwoManagersConverge(t *testing.T) {
	store := newFakeStore()
	a := remoteManager(store, newCache(t))
	b := remoteManager(store, newCache(t))
	ctx := context.Background()

	if _, err := a.Add(ctx, domain.Actor{ID: "u1"}, domain.SOP{Title: "Shared"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Load(ctx); err != nil {
		t.Fatal(err)
	}
	av, bv := a.Items(), b.Items()
	if len(av) != 1 || len(bv) != 1 || av[0].ID != bv[0].ID || av[0].Title != bv[0].Title {
		t.Fatalf("managers diverged:\n%+v\n%+v", av, bv)
	}
}

func TestTrimOldestFIFO(t *testing.T) {
	c := newCache(t)
	m := collection.New(collection.Options[domain.ActivityEntry]{
		Table: "activity_logs",
		Mode:  config.ModeCache,
		Cache: c,
		Title: func(a domain.ActivityEntry) string { return a.EntityTitle },
	})
	ctx := context.Background()
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := m.Add(ctx, domain.Actor{ID: "u1"}, domain.ActivityEntry{
			Action: domain.ActionCreated, EntityKind: "sops", EntityID: fmt.Sprintf("e%d", i),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.TrimOldest(3); err != nil {
		t.Fatal(err)
	}
	items := m.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 after trim, got %d", len(items))
	}
	if items[0].EntityID != "e2" || items[2].EntityID != "e4" {
		t.Fatalf("oldest not evicted first: %+v", items)
	}
}
