// Package activity records who did what to which entity. The writer is
// a best-effort subscriber fed by the managers' mutation events; it can
// fail independently and a primary mutation never waits on it or rolls
// back because of it.
package activity

import (
	"context"
	"log"

	"opsline/internal/collection"
	"opsline/internal/config"
	"opsline/internal/domain"
)

type Writer struct {
	// Log is the activity collection's own manager. It emits no
	// mutation events of its own, so recording cannot loop.
	Log *collection.Manager[domain.ActivityEntry]

	// Mode decides whether the cache-mode cap applies.
	Mode config.Mode

	// MaxCached bounds cache-mode growth; oldest entries go first.
	MaxCached int
}

// Run consumes mutation events until stop closes or ctx is done. On
// stop it drains whatever is buffered and returns; the events channel
// itself is never closed, so a mutation racing shutdown sends into a
// live channel. Every failure is logged and swallowed.
func (w *Writer) Run(ctx context.Context, events <-chan domain.MutationEvent, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			for {
				select {
				case evt := <-events:
					w.Record(ctx, evt)
				default:
					return
				}
			}
		case evt := <-events:
			w.Record(ctx, evt)
		}
	}
}

// Record writes one activity entry. Errors never propagate.
func (w *Writer) Record(ctx context.Context, evt domain.MutationEvent) {
	entry := domain.ActivityEntry{
		ActorID:     evt.Actor.ID,
		ActorName:   evt.Actor.Name,
		Action:      evt.Action,
		EntityKind:  evt.EntityKind,
		EntityID:    evt.EntityID,
		EntityTitle: evt.EntityTitle,
		Details:     evt.Details,
	}
	if _, err := w.Log.Add(ctx, evt.Actor, entry); err != nil {
		log.Printf("opsline: activity record %s %s/%s: %v", evt.Action, evt.EntityKind, evt.EntityID, err)
		return
	}
	if !w.Mode.RemoteActive() && w.MaxCached > 0 {
		if err := w.Log.TrimOldest(w.MaxCached); err != nil {
			log.Printf("opsline: activity trim: %v", err)
		}
	}
}
