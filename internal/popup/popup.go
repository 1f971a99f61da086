// Package popup is the in-app fallback channel: lightweight cards shown when
// desktop alerts are unavailable or not consented to.
package popup

import (
	"context"
	"sync"
	"time"

	"nyordd/internal/notif"
	logx "nyordd/pkg/logx"
)

// ReadMarker receives the read receipt when a popup is clicked. The store
// satisfies it; the composition root may wrap it to add server sync.
type ReadMarker interface {
	MarkRead(ctx context.Context, id string) bool
}

type Config struct {
	MaxVisible int
	AutoHide   time.Duration
}

// Presenter keeps the small set of currently visible popups. At most
// MaxVisible cards are up at once; presenting more evicts the oldest.
// Cards auto-hide on a timer, except important ones (loan/KYC) which stay
// until clicked or closed.
type Presenter struct {
	log    logx.Logger
	cfg    Config
	reader ReadMarker

	mu      sync.Mutex
	visible []notif.Record // oldest first
	timers  map[string]*time.Timer
	closed  bool
}

func New(cfg Config, reader ReadMarker, log logx.Logger) *Presenter {
	if cfg.MaxVisible <= 0 {
		cfg.MaxVisible = 3
	}
	if cfg.AutoHide <= 0 {
		cfg.AutoHide = 6 * time.Second
	}
	return &Presenter{
		log:    log.With(logx.String("service", "popup")),
		cfg:    cfg,
		reader: reader,
		timers: map[string]*time.Timer{},
	}
}

// Present shows a record as a popup. Read records, duplicates of an already
// visible card, and presents after Close are all no-ops.
func (p *Presenter) Present(rec notif.Record) bool {
	if rec.Read {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	for _, v := range p.visible {
		if v.ID == rec.ID {
			return false
		}
	}

	p.visible = append(p.visible, rec)
	for len(p.visible) > p.cfg.MaxVisible {
		p.removeLocked(p.visible[0].ID)
	}
	if !rec.Important() {
		id := rec.ID
		p.timers[id] = time.AfterFunc(p.cfg.AutoHide, func() { p.Dismiss(id) })
	}
	return true
}

// Visible returns the cards currently up, oldest first.
func (p *Presenter) Visible() []notif.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notif.Record(nil), p.visible...)
}

// Click removes the card and issues the read receipt.
func (p *Presenter) Click(ctx context.Context, id string) bool {
	p.mu.Lock()
	found := p.removeLocked(id)
	p.mu.Unlock()
	if !found {
		return false
	}
	if p.reader != nil {
		p.reader.MarkRead(ctx, id)
	}
	return true
}

// Dismiss removes the card without marking it read.
func (p *Presenter) Dismiss(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(id)
}

// Close tears down all timers and hides every card.
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, tm := range p.timers {
		tm.Stop()
		delete(p.timers, id)
	}
	p.visible = nil
}

func (p *Presenter) removeLocked(id string) bool {
	if tm, ok := p.timers[id]; ok {
		tm.Stop()
		delete(p.timers, id)
	}
	for i, v := range p.visible {
		if v.ID == id {
			p.visible = append(p.visible[:i], p.visible[i+1:]...)
			return true
		}
	}
	return false
}
