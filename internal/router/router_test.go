package router

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"nyordd/internal/notif"
	"nyordd/internal/storage"
	logx "nyordd/pkg/logx"
)

type fakeSource struct {
	mu   sync.Mutex
	recs []notif.Record
}

func (s *fakeSource) List() []notif.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notif.Record(nil), s.recs...)
}

func (s *fakeSource) ClearAll(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = nil
}

func (s *fakeSource) add(recs ...notif.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(recs, s.recs...)
}

type fakeAlerts struct {
	enabled bool
	shown   []string
}

func (a *fakeAlerts) Enabled() bool { return a.enabled }

func (a *fakeAlerts) ShowRecord(_ context.Context, rec notif.Record) error {
	a.shown = append(a.shown, rec.ID)
	return nil
}

type fakePopups struct {
	presented []string
}

func (p *fakePopups) Present(rec notif.Record) bool {
	p.presented = append(p.presented, rec.ID)
	return true
}

func TestPassRoutesToAlertWhenEnabled(t *testing.T) {
	src := &fakeSource{}
	alerts := &fakeAlerts{enabled: true}
	popups := &fakePopups{}
	r := New(src, alerts, popups, nil, nil, logx.Nop())

	src.add(notif.Record{ID: "a"}, notif.Record{ID: "b"})
	if got := r.Pass(context.Background()); got != 2 {
		t.Fatalf("routed %d, want 2", got)
	}
	if len(alerts.shown) != 2 || len(popups.presented) != 0 {
		t.Fatalf("alerts=%v popups=%v, want all via alerts", alerts.shown, popups.presented)
	}
}

func TestPassFallsBackToPopups(t *testing.T) {
	src := &fakeSource{}
	alerts := &fakeAlerts{enabled: false}
	popups := &fakePopups{}
	r := New(src, alerts, popups, nil, nil, logx.Nop())

	src.add(notif.Record{ID: "a"})
	r.Pass(context.Background())
	if len(popups.presented) != 1 || len(alerts.shown) != 0 {
		t.Fatalf("alerts=%v popups=%v, want popup fallback", alerts.shown, popups.presented)
	}
}

func TestPassSkipsReadAndProcessed(t *testing.T) {
	src := &fakeSource{}
	popups := &fakePopups{}
	r := New(src, &fakeAlerts{}, popups, nil, nil, logx.Nop())
	ctx := context.Background()

	src.add(notif.Record{ID: "seen"}, notif.Record{ID: "read", Read: true})
	if got := r.Pass(ctx); got != 1 {
		t.Fatalf("first pass routed %d, want 1", got)
	}
	// Same list again: everything already handled.
	if got := r.Pass(ctx); got != 0 {
		t.Fatalf("second pass routed %d, want 0", got)
	}
	if len(popups.presented) != 1 {
		t.Fatalf("popups=%v, want exactly one", popups.presented)
	}
}

func TestChannelDecisionIsPerRecordFinal(t *testing.T) {
	src := &fakeSource{}
	alerts := &fakeAlerts{enabled: false}
	popups := &fakePopups{}
	r := New(src, alerts, popups, nil, nil, logx.Nop())
	ctx := context.Background()

	src.add(notif.Record{ID: "a"})
	r.Pass(ctx)

	// Consent flips on afterwards; the already routed record stays routed,
	// only new records take the alert path.
	alerts.enabled = true
	src.add(notif.Record{ID: "b"})
	r.Pass(ctx)

	if len(popups.presented) != 1 || popups.presented[0] != "a" {
		t.Fatalf("popups=%v, want [a]", popups.presented)
	}
	if len(alerts.shown) != 1 || alerts.shown[0] != "b" {
		t.Fatalf("alerts=%v, want [b]", alerts.shown)
	}
}

func TestProcessedSetSurvivesRestart(t *testing.T) {
	cfg := storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state")}
	ctx := context.Background()

	db, err := storage.Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{}
	src.add(notif.Record{ID: "a"})
	r := New(src, &fakeAlerts{}, &fakePopups{}, db, nil, logx.Nop())
	r.Pass(ctx)
	_ = db.Close()

	db, err = storage.Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	popups := &fakePopups{}
	r2 := New(src, &fakeAlerts{}, popups, db, nil, logx.Nop())
	if got := r2.Pass(ctx); got != 0 {
		t.Fatalf("restarted router re-routed %d records, want 0", got)
	}
	if len(popups.presented) != 0 {
		t.Fatalf("restarted router presented %v, want none", popups.presented)
	}
}

func TestClearHistoryResetsProcessedSet(t *testing.T) {
	cfg := storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state")}
	db, err := storage.Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()

	src := &fakeSource{}
	src.add(notif.Record{ID: "a"})
	popups := &fakePopups{}
	r := New(src, &fakeAlerts{}, popups, db, nil, logx.Nop())
	r.Pass(ctx)

	if err := r.ClearHistory(ctx); err != nil {
		t.Fatalf("clear history: %v", err)
	}
	if len(src.List()) != 0 {
		t.Fatal("records should be cleared")
	}

	// A re-delivered id routes again after the wipe.
	src.add(notif.Record{ID: "a"})
	if got := r.Pass(ctx); got != 1 {
		t.Fatalf("post-clear pass routed %d, want 1", got)
	}
	if len(popups.presented) != 2 {
		t.Fatalf("popups=%v, want two presentations", popups.presented)
	}
}
