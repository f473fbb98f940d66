// Package realtime fans change-feed notifications out to collection
// managers. One watch per table; any notification triggers a reload of
// the owning manager, and notifications arriving while a reload is in
// flight coalesce into a single follow-up reload.
package realtime

import (
	"context"
	"log"
	"sync"

	"opsline/internal/remote"
)

// State of one table watch.
type State string

const (
	StateUnsubscribed State = "unsubscribed"
	StateSubscribing  State = "subscribing"
	StateSubscribed   State = "subscribed"
)

// Reloader is the slice of a collection manager the dispatcher needs.
type Reloader interface {
	Load(ctx context.Context) error
}

// Feed is the subscription primitive of the remote store adapter.
type Feed interface {
	SubscribeChanges(table string, onChange func(remote.Change)) (*remote.Subscription, error)
}

type watch struct {
	sub     *remote.Subscription
	pending chan struct{}
	done    chan struct{}
	state   State
}

type Dispatcher struct {
	feed Feed

	mu      sync.Mutex
	watches map[string]*watch
}

func New(feed Feed) *Dispatcher {
	return &Dispatcher{feed: feed, watches: map[string]*watch{}}
}

// TableState reports the watch state for a table.
func (d *Dispatcher) TableState(table string) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.watches[table]; ok {
		return w.state
	}
	return StateUnsubscribed
}

// Watch subscribes to a table's change feed and reloads r on every
// notification. Watching an already-watched table is a no-op.
func (d *Dispatcher) Watch(ctx context.Context, table string, r Reloader) error {
	d.mu.Lock()
	if _, ok := d.watches[table]; ok {
		d.mu.Unlock()
		return nil
	}
	w := &watch{
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
		state:   StateSubscribing,
	}
	d.watches[table] = w
	d.mu.Unlock()

	sub, err := d.feed.SubscribeChanges(table, func(remote.Change) {
		// Coalesce: a pending reload already covers this change.
		select {
		case w.pending <- struct{}{}:
		default:
		}
	})
	if err != nil {
		d.mu.Lock()
		delete(d.watches, table)
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	w.sub = sub
	w.state = StateSubscribed
	d.mu.Unlock()

	go func() {
		for {
			select {
			case <-w.done:
				return
			case <-w.pending:
			}
			select {
			case <-w.done:
				// Torn down while a notification was pending; never
				// leak a reload into a discarded manager.
				return
			default:
			}
			if err := r.Load(ctx); err != nil {
				log.Printf("opsline: realtime reload %s: %v", table, err)
			}
		}
	}()
	return nil
}

// Unwatch tears down the watch for a table. Safe to call for tables that
// were never watched or are already torn down.
func (d *Dispatcher) Unwatch(table string) {
	d.mu.Lock()
	w, ok := d.watches[table]
	if ok {
		delete(d.watches, table)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	if w.sub != nil {
		w.sub.Unsubscribe()
	}
	close(w.done)
}

// Close tears down every watch.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	tables := make([]string, 0, len(d.watches))
	for table := range d.watches {
		tables = append(tables, table)
	}
	d.mu.Unlock()
	for _, table := range tables {
		d.Unwatch(table)
	}
}
