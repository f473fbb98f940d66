package realtime_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"opsline/internal/realtime"
	"opsline/internal/remote"
)

// fakeFeed hands the registered onChange callback back to the test so it
// can push notifications directly.
type fakeFeed struct {
	mu        sync.Mutex
	callbacks map[string]func(remote.Change)
	failNext  error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{callbacks: map[string]func(remote.Change){}}
}

func (f *fakeFeed) SubscribeChanges(table string, onChange func(remote.Change)) (*remote.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	f.callbacks[table] = onChange
	return remote.NewSubscription(func() {
		f.mu.Lock()
		delete(f.callbacks, table)
		f.mu.Unlock()
	}), nil
}

func (f *fakeFeed) push(table string, ch remote.Change) {
	f.mu.Lock()
	cb := f.callbacks[table]
	f.mu.Unlock()
	if cb != nil {
		cb(ch)
	}
}

type countingReloader struct {
	loads   int64
	started chan struct{} // when set, signals that a Load is in flight
	release chan struct{} // when set, Load blocks until released
}

func (r *countingReloader) Load(ctx context.Context) error {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	atomic.AddInt64(&r.loads, 1)
	return nil
}

func (r *countingReloader) count() int64 { return atomic.LoadInt64(&r.loads) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestNotificationTriggersReload(t *testing.T) {
	feed := newFakeFeed()
	d := realtime.New(feed)
	defer d.Close()
	r := &countingReloader{}

	if err := d.Watch(context.Background(), "jobs", r); err != nil {
		t.Fatal(err)
	}
	if got := d.TableState("jobs"); got != realtime.StateSubscribed {
		t.Fatalf("state: %s", got)
	}

	feed.push("jobs", remote.Change{Table: "jobs", Op: "insert"})
	waitFor(t, func() bool { return r.count() == 1 })
}

func TestBurstCoalescesIntoBoundedReloads(t *testing.T) {
	feed := newFakeFeed()
	d := realtime.New(feed)
	defer d.Close()
	release := make(chan struct{})
	started := make(chan struct{})
	r := &countingReloader{release: release, started: started}

	if err := d.Watch(context.Background(), "jobs", r); err != nil {
		t.Fatal(err)
	}

	// First notification starts a reload that we hold open; a bulk
	// write's worth of further notifications arrives meanwhile.
	feed.push("jobs", remote.Change{Op: "insert"})
	<-started
	for i := 0; i < 10; i++ {
		feed.push("jobs", remote.Change{Op: "update"})
	}
	release <- struct{}{} // finish the in-flight reload
	<-started             // the burst coalesced into exactly one more
	release <- struct{}{}
	waitFor(t, func() bool { return r.count() == 2 })

	select {
	case <-started:
		t.Fatal("a third reload ran; burst was not coalesced")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnwatchStopsReloads(t *testing.T) {
	feed := newFakeFeed()
	d := realtime.New(feed)
	r := &countingReloader{}

	if err := d.Watch(context.Background(), "sops", r); err != nil {
		t.Fatal(err)
	}
	d.Unwatch("sops")
	if got := d.TableState("sops"); got != realtime.StateUnsubscribed {
		t.Fatalf("state after unwatch: %s", got)
	}

	feed.push("sops", remote.Change{Op: "insert"})
	time.Sleep(50 * time.Millisecond)
	if r.count() != 0 {
		t.Fatalf("reload leaked into discarded manager: %d", r.count())
	}

	d.Unwatch("sops") // idempotent
	d.Unwatch("never-watched")
}

func TestSubscribeFailureLeavesUnsubscribed(t *testing.T) {
	feed := newFakeFeed()
	feed.failNext = errors.New("feed down")
	d := realtime.New(feed)
	if err := d.Watch(context.Background(), "jobs", &countingReloader{}); err == nil {
		t.Fatal("expected subscribe error")
	}
	if got := d.TableState("jobs"); got != realtime.StateUnsubscribed {
		t.Fatalf("state after failed subscribe: %s", got)
	}
}

func TestIndependentTablesNoCrossTalk(t *testing.T) {
	feed := newFakeFeed()
	d := realtime.New(feed)
	defer d.Close()
	jobs := &countingReloader{}
	sops := &countingReloader{}

	if err := d.Watch(context.Background(), "jobs", jobs); err != nil {
		t.Fatal(err)
	}
	if err := d.Watch(context.Background(), "sops", sops); err != nil {
		t.Fatal(err)
	}
	feed.push("jobs", remote.Change{Op: "insert"})
	waitFor(t, func() bool { return jobs.count() == 1 })
	if sops.count() != 0 {
		t.Fatalf("cross-talk between watches: %d", sops.count())
	}
}
