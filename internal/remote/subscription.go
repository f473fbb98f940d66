package remote

import (
	"context"
	"log"
	"sync"
	"time"
)

// Subscription is a cancellable handle on a change-feed watch.
// Unsubscribe is idempotent: safe to call repeatedly or after teardown.
type Subscription struct {
	once sync.Once
	stop func()
}

// NewSubscription wraps a stop function in an idempotent handle.
func NewSubscription(stop func()) *Subscription {
	return &Subscription{stop: stop}
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// SubscribeChanges starts watching table and invokes onChange for every
// feed entry, regardless of which client caused it. Delivery is by
// cursor-polling: the cursor starts at the current head so only changes
// after subscription time are delivered. Poll failures are logged and
// retried on the next tick; they never surface to the subscriber.
func (c *Client) SubscribeChanges(table string, onChange func(Change)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	interval := c.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	// Page through the backlog to the true head; the feed answers in
	// pages, so one read is not enough on a long-lived table.
	var cursor int64
	for {
		page, err := c.Changes(ctx, table, cursor)
		if err != nil {
			cancel()
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		cursor = page[len(page)-1].Seq
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			changes, err := c.Changes(ctx, table, cursor)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("opsline: change feed poll %s: %v", table, err)
				}
				continue
			}
			for _, ch := range changes {
				cursor = ch.Seq
				if ctx.Err() != nil {
					return
				}
				onChange(ch)
			}
		}
	}()
	return NewSubscription(cancel), nil
}
