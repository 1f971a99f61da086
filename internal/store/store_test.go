package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"nyordd/internal/eventbus"
	"nyordd/internal/notif"
	"nyordd/internal/storage"
	logx "nyordd/pkg/logx"
)

func newTestService(t *testing.T) (*Service, storage.Config) {
	t.Helper()
	cfg := storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state")}
	db, err := storage.Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, eventbus.New(), logx.Nop()), cfg
}

func TestAppendAssignsAndDedupes(t *testing.T) {
	s, _ := newTestService(t)
	defer s.Close()
	ctx := context.Background()

	rec, added := s.Append(ctx, notif.Record{Title: "Money Received", Category: notif.CategoryTransaction})
	if !added {
		t.Fatal("first append should add")
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Fatalf("append must assign id and timestamp, got %+v", rec)
	}

	if _, added := s.Append(ctx, notif.Record{ID: rec.ID, Title: "dup"}); added {
		t.Fatal("duplicate id must be ignored")
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("expected 1 record, got %d", got)
	}

	// Newest entry goes to the front.
	s.Append(ctx, notif.Record{Title: "second"})
	if list := s.List(); list[0].Title != "second" {
		t.Fatalf("expected newest first, got %q", list[0].Title)
	}
}

func TestReadFlags(t *testing.T) {
	s, _ := newTestService(t)
	defer s.Close()
	ctx := context.Background()

	a, _ := s.Append(ctx, notif.Record{Title: "a"})
	b, _ := s.Append(ctx, notif.Record{Title: "b"})
	if got := s.UnreadCount(); got != 2 {
		t.Fatalf("unread = %d, want 2", got)
	}

	if !s.MarkRead(ctx, a.ID) {
		t.Fatal("MarkRead should report change")
	}
	if s.MarkRead(ctx, a.ID) {
		t.Fatal("second MarkRead on same id must be a no-op")
	}
	if s.MarkRead(ctx, "missing") {
		t.Fatal("unknown id must be a no-op")
	}
	if got := s.UnreadCount(); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}

	if got := s.MarkAllRead(ctx); got != 1 {
		t.Fatalf("MarkAllRead changed %d, want 1", got)
	}
	if got := s.MarkAllRead(ctx); got != 0 {
		t.Fatalf("MarkAllRead on read list changed %d, want 0", got)
	}
	if r, _ := s.Get(b.ID); !r.Read {
		t.Fatal("b should be read")
	}
}

func TestReplaceKeepsLocalReadFlag(t *testing.T) {
	s, _ := newTestService(t)
	defer s.Close()
	ctx := context.Background()

	s.Append(ctx, notif.Record{ID: "n1", Title: "a"})
	if !s.MarkRead(ctx, "n1") {
		t.Fatal("mark read should flip")
	}

	// Server copy still says unread (receipt sync lagging); the local flag
	// must survive the refresh.
	s.Replace(ctx, []notif.Record{
		{ID: "n1", Title: "a"},
		{ID: "n2", Title: "b", Read: true},
		{ID: "n3", Title: "c"},
	})

	got, ok := s.Get("n1")
	if !ok || !got.Read {
		t.Fatalf("read flag reverted on replace: %+v (ok=%v)", got, ok)
	}
	if got, _ := s.Get("n2"); !got.Read {
		t.Fatal("server-side read flag must be kept")
	}
	if got, _ := s.Get("n3"); got.Read {
		t.Fatal("unread server record must stay unread")
	}
	if got := s.UnreadCount(); got != 1 {
		t.Fatalf("unread count = %d, want 1", got)
	}
}

func TestPersistAcrossRestart(t *testing.T) {
	s, cfg := newTestService(t)
	ctx := context.Background()

	rec, _ := s.Append(ctx, notif.Record{Title: "sticky", Category: notif.CategoryLoan})
	s.MarkRead(ctx, rec.ID)
	s.Close()

	db, err := storage.Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	defer db.Close()
	s2 := New(db, nil, logx.Nop())
	defer s2.Close()

	list := s2.List()
	if len(list) != 1 || list[0].ID != rec.ID || !list[0].Read || list[0].Category != notif.CategoryLoan {
		t.Fatalf("rehydrated list mismatch: %+v", list)
	}
}

func TestEvict(t *testing.T) {
	s := New(nil, nil, logx.Nop())
	defer s.Close()
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	s.Append(ctx, notif.Record{Title: "ancient", CreatedAt: old, Silent: true})
	for i := 0; i < 4; i++ {
		s.Append(ctx, notif.Record{Title: "fresh", Silent: true})
	}

	if got := s.Evict(ctx, Limits{MaxAge: 24 * time.Hour}); got != 1 {
		t.Fatalf("age eviction dropped %d, want 1", got)
	}
	if got := s.Evict(ctx, Limits{MaxRecords: 2}); got != 2 {
		t.Fatalf("cap eviction dropped %d, want 2", got)
	}
	if got := s.Evict(ctx, Limits{MaxRecords: 2}); got != 0 {
		t.Fatalf("steady-state eviction dropped %d, want 0", got)
	}
	if got := len(s.List()); got != 2 {
		t.Fatalf("expected 2 records after eviction, got %d", got)
	}
}

func TestAppendQueuesToastUnlessSilent(t *testing.T) {
	s := New(nil, nil, logx.Nop())
	defer s.Close()
	ctx := context.Background()

	s.Append(ctx, notif.Record{Title: "loud"})
	s.Append(ctx, notif.Record{Title: "quiet", Silent: true})

	toasts := s.Toasts().List()
	if len(toasts) != 1 || toasts[0].Title != "loud" {
		t.Fatalf("expected one toast for the loud record, got %+v", toasts)
	}
}

func TestToastQueueLifecycle(t *testing.T) {
	q := NewToastQueue()
	defer q.Close()

	tt := q.Push(notif.Toast{Type: notif.ToastError, Message: "boom"})
	if tt.Duration != toastErrorTTL {
		t.Fatalf("error toast duration = %v, want %v", tt.Duration, toastErrorTTL)
	}
	info := q.Info("hi", "there")
	if info.Duration != toastDefaultTTL {
		t.Fatalf("info toast duration = %v, want %v", info.Duration, toastDefaultTTL)
	}

	if !q.Remove(tt.ID) {
		t.Fatal("remove should find the toast")
	}
	if q.Remove(tt.ID) {
		t.Fatal("double remove must report false")
	}
	if got := len(q.List()); got != 1 {
		t.Fatalf("expected 1 toast left, got %d", got)
	}
}

func TestToastAutoExpires(t *testing.T) {
	q := NewToastQueue()
	defer q.Close()

	q.Push(notif.Toast{Type: notif.ToastInfo, Message: "blink", Duration: 10 * time.Millisecond})
	deadline := time.After(2 * time.Second)
	for len(q.List()) != 0 {
		select {
		case <-deadline:
			t.Fatal("toast never expired")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
