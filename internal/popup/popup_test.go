package popup

import (
	"context"
	"sync"
	"testing"
	"time"

	"nyordd/internal/notif"
	logx "nyordd/pkg/logx"
)

type recordingMarker struct {
	mu  sync.Mutex
	ids []string
}

func (m *recordingMarker) MarkRead(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return true
}

func (m *recordingMarker) marked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}

func newPresenter(t *testing.T, cfg Config) (*Presenter, *recordingMarker) {
	t.Helper()
	m := &recordingMarker{}
	p := New(cfg, m, logx.Nop())
	t.Cleanup(p.Close)
	return p, m
}

func TestPresentCapsVisible(t *testing.T) {
	p, _ := newPresenter(t, Config{MaxVisible: 3, AutoHide: time.Hour})

	for _, id := range []string{"a", "b", "c", "d"} {
		if !p.Present(notif.Record{ID: id}) {
			t.Fatalf("present %s failed", id)
		}
	}
	vis := p.Visible()
	if len(vis) != 3 {
		t.Fatalf("visible = %d, want 3", len(vis))
	}
	// Oldest card was evicted to make room.
	if vis[0].ID != "b" || vis[2].ID != "d" {
		t.Fatalf("visible order wrong: %+v", vis)
	}
}

func TestPresentSkipsReadAndDuplicates(t *testing.T) {
	p, _ := newPresenter(t, Config{AutoHide: time.Hour})

	if p.Present(notif.Record{ID: "r", Read: true}) {
		t.Fatal("read record must not be presented")
	}
	if !p.Present(notif.Record{ID: "x"}) {
		t.Fatal("first present should succeed")
	}
	if p.Present(notif.Record{ID: "x"}) {
		t.Fatal("duplicate present must be a no-op")
	}
}

func TestClickIssuesReadReceipt(t *testing.T) {
	p, m := newPresenter(t, Config{AutoHide: time.Hour})
	p.Present(notif.Record{ID: "x"})

	if !p.Click(context.Background(), "x") {
		t.Fatal("click should find the card")
	}
	if got := m.marked(); len(got) != 1 || got[0] != "x" {
		t.Fatalf("read receipts = %v, want [x]", got)
	}
	if len(p.Visible()) != 0 {
		t.Fatal("card should be gone after click")
	}
	if p.Click(context.Background(), "x") {
		t.Fatal("second click must report false")
	}
}

func TestDismissSkipsReadReceipt(t *testing.T) {
	p, m := newPresenter(t, Config{AutoHide: time.Hour})
	p.Present(notif.Record{ID: "x"})

	if !p.Dismiss("x") {
		t.Fatal("dismiss should find the card")
	}
	if got := m.marked(); len(got) != 0 {
		t.Fatalf("dismiss must not mark read, got %v", got)
	}
}

func TestAutoHideSparesImportant(t *testing.T) {
	p, _ := newPresenter(t, Config{AutoHide: 10 * time.Millisecond})
	p.Present(notif.Record{ID: "txn", Category: notif.CategoryTransaction})
	p.Present(notif.Record{ID: "loan", Category: notif.CategoryLoan})

	deadline := time.After(2 * time.Second)
	for {
		vis := p.Visible()
		if len(vis) == 1 && vis[0].ID == "loan" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("auto-hide did not settle, visible=%+v", vis)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
