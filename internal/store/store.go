package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"nyordd/internal/eventbus"
	"nyordd/internal/notif"
	"nyordd/internal/storage"
	logx "nyordd/pkg/logx"
)

// Limits applied by Evict. Zero values disable the corresponding bound.
type Limits struct {
	MaxRecords int
	MaxAge     time.Duration
}

// Service owns the notification list. All methods are safe for concurrent
// use. Persistence and the event bus are both optional (nil-tolerant) so the
// store stays usable in tests and in storage-less configurations.
type Service struct {
	log logx.Logger
	db  storage.Store
	bus eventbus.Bus

	mu   sync.Mutex
	recs []notif.Record // newest first

	toasts *ToastQueue
}

func New(db storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	s := &Service{
		log:    log.With(logx.String("service", "store")),
		db:     db,
		bus:    bus,
		toasts: NewToastQueue(),
	}
	s.rehydrate()
	return s
}

// rehydrate loads the persisted list. A missing or unreadable snapshot is an
// empty list, never a startup failure.
func (s *Service) rehydrate() {
	if s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	recs, err := s.db.LoadRecords(ctx)
	if err != nil {
		s.log.Warn("load records failed; starting empty", logx.Err(err))
		return
	}
	s.mu.Lock()
	s.recs = recs
	s.mu.Unlock()
	s.log.Debug("records rehydrated", logx.Int("count", len(recs)))
}

// Append adds a record to the front of the list. A record with a known id is
// ignored (dedupe). Missing id and timestamp are assigned here so callers can
// hand over partially filled records from any source.
func (s *Service) Append(ctx context.Context, rec notif.Record) (notif.Record, bool) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	for _, r := range s.recs {
		if r.ID == rec.ID {
			s.mu.Unlock()
			return r, false
		}
	}
	s.recs = append([]notif.Record{rec}, s.recs...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	if !rec.Silent {
		s.toasts.Push(notif.Toast{
			Type:    toastTypeFor(rec),
			Title:   rec.Title,
			Message: rec.Message,
		})
	}
	s.publishUpdated()
	return rec, true
}

// Replace swaps the whole list, used by the feed client after a server fetch.
// Server order and content win, except the read flag: a record marked read
// locally stays read even when the server copy lags behind (a failed receipt
// sync must not un-read it). Read transitions false -> true only.
func (s *Service) Replace(ctx context.Context, recs []notif.Record) {
	s.mu.Lock()
	localRead := make(map[string]bool, len(s.recs))
	for _, r := range s.recs {
		if r.Read {
			localRead[r.ID] = true
		}
	}
	next := append([]notif.Record(nil), recs...)
	for i := range next {
		if localRead[next[i].ID] {
			next[i].Read = true
		}
	}
	s.recs = next
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	s.publishUpdated()
}

// List returns a copy of the records, newest first.
func (s *Service) List() []notif.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Get returns the record with the given id.
func (s *Service) Get(id string) (notif.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recs {
		if r.ID == id {
			return r, true
		}
	}
	return notif.Record{}, false
}

func (s *Service) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.recs {
		if !r.Read {
			n++
		}
	}
	return n
}

// MarkRead flips a record to read. Marking an already-read or unknown record
// is a no-op and reports false.
func (s *Service) MarkRead(ctx context.Context, id string) bool {
	s.mu.Lock()
	changed := false
	for i := range s.recs {
		if s.recs[i].ID == id && !s.recs[i].Read {
			s.recs[i].Read = true
			changed = true
			break
		}
	}
	var snapshot []notif.Record
	if changed {
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()

	if !changed {
		return false
	}
	s.persist(ctx, snapshot)
	s.publishUpdated()
	return true
}

// MarkAllRead flips every unread record and reports how many changed.
func (s *Service) MarkAllRead(ctx context.Context) int {
	s.mu.Lock()
	changed := 0
	for i := range s.recs {
		if !s.recs[i].Read {
			s.recs[i].Read = true
			changed++
		}
	}
	var snapshot []notif.Record
	if changed > 0 {
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed == 0 {
		return 0
	}
	s.persist(ctx, snapshot)
	s.publishUpdated()
	return changed
}

// ClearAll drops every record, persisted state included.
func (s *Service) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.recs = nil
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.ClearRecords(ctx); err != nil {
			s.log.Warn("clear records failed", logx.Err(err))
		}
	}
	s.publishUpdated()
}

// Evict trims the list to the configured bounds, oldest entries first. Runs
// on a schedule; returns the number of dropped records.
func (s *Service) Evict(ctx context.Context, lim Limits) int {
	cutoff := time.Time{}
	if lim.MaxAge > 0 {
		cutoff = time.Now().UTC().Add(-lim.MaxAge)
	}

	s.mu.Lock()
	kept := s.recs[:0]
	for _, r := range s.recs {
		if !cutoff.IsZero() && r.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, r)
	}
	if lim.MaxRecords > 0 && len(kept) > lim.MaxRecords {
		kept = kept[:lim.MaxRecords]
	}
	dropped := len(s.recs) - len(kept)
	s.recs = kept
	var snapshot []notif.Record
	if dropped > 0 {
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()

	if dropped == 0 {
		return 0
	}
	s.persist(ctx, snapshot)
	s.publishUpdated()
	s.log.Debug("history evicted", logx.Int("dropped", dropped))
	return dropped
}

// Toasts exposes the toast queue (also the logx toast sink).
func (s *Service) Toasts() *ToastQueue { return s.toasts }

// Close stops toast timers. The storage handle is closed by the owner.
func (s *Service) Close() {
	s.toasts.Close()
}

func (s *Service) snapshotLocked() []notif.Record {
	return append([]notif.Record(nil), s.recs...)
}

func (s *Service) persist(ctx context.Context, snapshot []notif.Record) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveRecords(ctx, snapshot); err != nil {
		s.log.Warn("persist records failed", logx.Err(err))
	}
}

func (s *Service) publishUpdated() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeStoreUpdated, Time: time.Now()})
}

func toastTypeFor(rec notif.Record) notif.ToastType {
	switch {
	case rec.Approved():
		return notif.ToastSuccess
	case rec.Category == notif.CategoryTransaction:
		return notif.ToastSuccess
	default:
		return notif.ToastInfo
	}
}
