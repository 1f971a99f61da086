package pprof

import (
	"context"
	"net/http"
	"testing"
	"time"

	logx "nyordd/pkg/logx"
)

func waitForAddr(t *testing.T, s *Service) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		s.mu.Lock()
		ln := s.ln
		s.mu.Unlock()
		if ln != nil {
			return ln.Addr().String()
		}
		select {
		case <-deadline:
			t.Fatal("server never bound")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func get(t *testing.T, url, token string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestTokenGate(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "secret"}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	t.Cleanup(func() { s.Stop(ctx) })

	addr := waitForAddr(t, s)
	url := "http://" + addr + "/healthz"

	if code := get(t, url, ""); code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", code)
	}
	if code := get(t, url, "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d, want 401", code)
	}
	if code := get(t, url, "secret"); code != http.StatusOK {
		t.Fatalf("good token: status %d, want 200", code)
	}
	if code := get(t, url+"?token=secret", ""); code != http.StatusOK {
		t.Fatalf("query token: status %d, want 200", code)
	}
}

func TestReconfigureEnableDisable(t *testing.T) {
	s := New(Config{}, logx.Nop())
	ctx := context.Background()
	t.Cleanup(func() { s.Stop(ctx) })

	s.Start(ctx)
	if s.Enabled() {
		t.Fatal("disabled config must not report enabled")
	}

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	addr := waitForAddr(t, s)
	if code := get(t, "http://"+addr+"/debug/pprof/", ""); code != http.StatusOK {
		t.Fatalf("pprof index: status %d, want 200", code)
	}

	s.Reconfigure(ctx, Config{Enabled: false})
	deadline := time.After(5 * time.Second)
	for {
		s.mu.Lock()
		stopped := s.srv == nil && s.sup == nil
		s.mu.Unlock()
		if stopped {
			break
		}
		select {
		case <-deadline:
			t.Fatal("server never stopped")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
