// Package router decides, once per notification, which channel presents it:
// a desktop alert when that channel is enabled, an in-app popup otherwise.
//
// The decision is recorded in a persisted processed-set keyed by record id,
// so a record is presented at most once across restarts. The channel choice
// is read-through at decision time; flipping consent later does not re-route
// already processed records.
package router

import (
	"context"
	"sync"
	"time"

	"nyordd/internal/eventbus"
	"nyordd/internal/notif"
	"nyordd/internal/storage"
	logx "nyordd/pkg/logx"
)

// Source is the record list the router walks on every pass.
type Source interface {
	List() []notif.Record
	ClearAll(ctx context.Context)
}

// AlertChannel is the preferred channel. Enabled must be a fresh check.
type AlertChannel interface {
	Enabled() bool
	ShowRecord(ctx context.Context, rec notif.Record) error
}

// PopupChannel is the fallback channel.
type PopupChannel interface {
	Present(rec notif.Record) bool
}

type Router struct {
	log    logx.Logger
	source Source
	alerts AlertChannel
	popups PopupChannel
	db     storage.Store
	bus    eventbus.Bus

	mu        sync.Mutex
	processed map[string]struct{}
}

func New(source Source, alerts AlertChannel, popups PopupChannel, db storage.Store, bus eventbus.Bus, log logx.Logger) *Router {
	r := &Router{
		log:       log.With(logx.String("service", "router")),
		source:    source,
		alerts:    alerts,
		popups:    popups,
		db:        db,
		bus:       bus,
		processed: map[string]struct{}{},
	}
	r.rehydrate()
	return r
}

func (r *Router) rehydrate() {
	if r.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ids, err := r.db.LoadProcessed(ctx)
	if err != nil {
		r.log.Warn("load processed set failed; starting empty", logx.Err(err))
		return
	}
	r.mu.Lock()
	for _, id := range ids {
		r.processed[id] = struct{}{}
	}
	r.mu.Unlock()
	r.log.Debug("processed set rehydrated", logx.Int("count", len(ids)))
}

// Pass walks the current record list and routes everything new. Already
// processed and already-read records are skipped; every routed id is
// committed to the processed set whichever channel took it (or even if the
// channel dropped it). Returns the number of records routed.
func (r *Router) Pass(ctx context.Context) int {
	routed := 0
	for _, rec := range r.source.List() {
		if rec.Read || r.seen(rec.ID) {
			continue
		}
		r.route(ctx, rec)
		r.commit(ctx, rec.ID)
		routed++
	}
	return routed
}

func (r *Router) route(ctx context.Context, rec notif.Record) {
	channel := "popup"
	if r.alerts != nil && r.alerts.Enabled() {
		channel = "alert"
		if err := r.alerts.ShowRecord(ctx, rec); err != nil {
			r.log.Warn("alert delivery failed", logx.String("id", rec.ID), logx.Err(err))
		}
	} else if r.popups != nil {
		r.popups.Present(rec)
	}

	r.log.Debug("record routed",
		logx.String("id", rec.ID),
		logx.String("category", rec.Category.String()),
		logx.String("channel", channel),
	)
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{
			Type: eventbus.TypeRouted,
			Time: time.Now(),
			Data: map[string]string{"id": rec.ID, "channel": channel},
		})
	}
}

func (r *Router) seen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processed[id]
	return ok
}

func (r *Router) commit(ctx context.Context, id string) {
	r.mu.Lock()
	r.processed[id] = struct{}{}
	r.mu.Unlock()
	if r.db != nil {
		if err := r.db.AddProcessed(ctx, id); err != nil {
			r.log.Warn("persist processed id failed", logx.String("id", id), logx.Err(err))
		}
	}
}

// ClearHistory wipes the record list and the processed set together. Keeping
// the set while dropping the records would permanently mute any record the
// server re-delivers with the same id.
func (r *Router) ClearHistory(ctx context.Context) error {
	r.source.ClearAll(ctx)
	r.mu.Lock()
	r.processed = map[string]struct{}{}
	r.mu.Unlock()
	if r.db != nil {
		if err := r.db.ClearProcessed(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run subscribes to store updates and runs a pass per update, plus one
// initial pass for whatever rehydration brought in. Blocks until ctx ends.
func (r *Router) Run(ctx context.Context) error {
	var events <-chan eventbus.Event
	if r.bus != nil {
		ch, unsub := r.bus.Subscribe(16)
		defer unsub()
		events = ch
	}

	r.Pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type == eventbus.TypeStoreUpdated {
				r.Pass(ctx)
			}
		}
	}
}
