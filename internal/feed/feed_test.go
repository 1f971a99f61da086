package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nyordd/internal/eventbus"
	"nyordd/internal/notif"
	logx "nyordd/pkg/logx"
)

type fakeSink struct {
	mu       sync.Mutex
	appended []notif.Record
	replaced [][]notif.Record
}

func (f *fakeSink) Append(_ context.Context, rec notif.Record) (notif.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, rec)
	return rec, true
}

func (f *fakeSink) Replace(_ context.Context, recs []notif.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, recs)
}

func (f *fakeSink) appendedRecords() []notif.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notif.Record(nil), f.appended...)
}

func (f *fakeSink) replaceCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replaced)
}

func TestWireRecordMapping(t *testing.T) {
	raw := `{
		"id": 42,
		"title": "Loan Approved",
		"message": "Your loan of $5000 was approved",
		"type": "loan_approved",
		"is_read": false,
		"created_at": "2026-08-30T12:00:00",
		"from_user_name": "admin"
	}`
	var w wireNotification
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec := w.record()
	if rec.ID != "42" {
		t.Fatalf("id = %q, want 42", rec.ID)
	}
	if rec.Category != notif.CategoryLoan {
		t.Fatalf("category = %v, want loan", rec.Category)
	}
	if !rec.Approved() || !rec.Important() {
		t.Fatal("loan_approved must be approval-class and important")
	}
	if rec.Read {
		t.Fatal("is_read=false must map to unread")
	}
	if rec.CreatedAt.IsZero() || rec.CreatedAt.Year() != 2026 {
		t.Fatalf("created_at = %v", rec.CreatedAt)
	}
}

func TestCategoryDerivation(t *testing.T) {
	cases := map[string]notif.Category{
		"transaction":   notif.CategoryTransaction,
		"credit":        notif.CategoryTransaction,
		"loan_request":  notif.CategoryLoan,
		"loan_approved": notif.CategoryLoan,
		"kyc_approval":  notif.CategoryKYC,
		"account":       notif.CategoryAccount,
		"general":       notif.CategoryOther,
		"":              notif.CategoryOther,
	}
	for typ, want := range cases {
		if got := notif.CategoryOf(typ); got != want {
			t.Fatalf("CategoryOf(%q) = %v, want %v", typ, got, want)
		}
	}
}

func newRESTServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []string
	)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications/":
			_, _ = w.Write([]byte(`[
				{"id": 2, "title": "b", "message": "m2", "type": "transaction", "is_read": false, "created_at": "2026-08-30T10:01:00"},
				{"id": 1, "title": "a", "message": "m1", "type": "general", "is_read": true, "created_at": "2026-08-30T10:00:00"}
			]`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications/stats":
			_, _ = w.Write([]byte(`{"total_count": 2, "unread_count": 1}`))
		case r.Method == http.MethodPut && r.URL.Path == "/api/notifications/mark-all-read":
			_, _ = w.Write([]byte(`{"message": "ok"}`))
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/notifications/"):
			var body map[string]bool
			if json.NewDecoder(r.Body).Decode(&body) != nil || !body["is_read"] {
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s, &calls
}

func testToken() (string, error) { return "tok", nil }

func TestClientEndpoints(t *testing.T) {
	srv, calls := newRESTServer(t)
	c := NewClient(srv.URL, testToken)
	ctx := context.Background()

	recs, err := c.FetchNotifications(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "2" || !recs[1].Read {
		t.Fatalf("records = %+v", recs)
	}

	st, err := c.FetchStats(ctx)
	if err != nil || st.TotalCount != 2 || st.UnreadCount != 1 {
		t.Fatalf("stats = %+v, %v", st, err)
	}

	if err := c.MarkRead(ctx, "2"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := c.MarkAllRead(ctx); err != nil {
		t.Fatalf("mark all read: %v", err)
	}

	want := []string{
		"GET /api/notifications/",
		"GET /api/notifications/stats",
		"PUT /api/notifications/2",
		"PUT /api/notifications/mark-all-read",
	}
	got := *calls
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStreamDeliversNotifications(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var once sync.Once
	handshake := make(chan struct{})

	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Expect the subscribe handshake first.
		var sub map[string]string
		if conn.ReadJSON(&sub) != nil || sub["type"] != wsTypeSubscribe {
			return
		}
		once.Do(func() { close(handshake) })

		_ = conn.WriteJSON(map[string]any{"type": wsTypeSubscribeAck})
		_ = conn.WriteJSON(map[string]any{
			"type": wsTypeNotification,
			"data": map[string]any{
				"id": 7, "title": "Money Received", "message": "$10 from Bob",
				"type": "transaction", "is_read": false,
				"created_at": "2026-08-30T10:00:00",
			},
		})
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer wsSrv.Close()

	restSrv, _ := newRESTServer(t)
	sink := &fakeSink{}
	svc := New(Options{
		Stream: true,
		WSURL:  "ws" + strings.TrimPrefix(wsSrv.URL, "http"),
	}, NewClient(restSrv.URL, testToken), sink, nil, testToken, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	select {
	case <-handshake:
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe handshake never arrived")
	}

	deadline := time.After(5 * time.Second)
	for {
		recs := sink.appendedRecords()
		if len(recs) == 1 {
			if recs[0].ID != "7" || recs[0].Category != notif.CategoryTransaction {
				t.Fatalf("streamed record = %+v", recs[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("streamed notification never landed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestTransactionEventPublishesBalanceUpdate(t *testing.T) {
	restSrv, _ := newRESTServer(t)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	sink := &fakeSink{}
	svc := New(Options{}, NewClient(restSrv.URL, testToken), sink, bus, testToken, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.handleMessage(ctx, []byte(`{
		"type": "transaction.success",
		"transaction_id": 99,
		"amount": 25,
		"new_src_balance": 75,
		"new_dest_balance": 125
	}`))

	select {
	case ev := <-events:
		upd, ok := ev.Data.(BalanceUpdate)
		if ev.Type != eventbus.TypeBalanceUpdate || !ok {
			t.Fatalf("unexpected event %+v", ev)
		}
		if upd.TransactionID != "99" || upd.Amount != 25 || upd.NewDestBalance != 125 {
			t.Fatalf("balance update = %+v", upd)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("balance update never published")
	}

	// The delayed refresh lands as a Replace.
	deadline := time.After(5 * time.Second)
	for sink.replaceCalls() == 0 {
		select {
		case <-deadline:
			t.Fatal("post-transaction refresh never ran")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestRunFallsBackToPolling(t *testing.T) {
	restSrv, _ := newRESTServer(t)
	sink := &fakeSink{}
	svc := New(Options{
		Stream:       true,
		WSURL:        "ws://127.0.0.1:1/ws", // nothing listens here
		ReconnectMax: 1,
		PollInterval: 20 * time.Millisecond,
	}, NewClient(restSrv.URL, testToken), sink, nil, testToken, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	// Initial refresh plus at least one polling refresh.
	deadline := time.After(30 * time.Second)
	for sink.replaceCalls() < 2 {
		select {
		case <-deadline:
			t.Fatalf("polling fallback never refreshed (calls=%d)", sink.replaceCalls())
		case <-time.After(20 * time.Millisecond):
		}
	}
}
