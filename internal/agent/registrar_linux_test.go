//go:build linux

package agent

import (
	"context"
	"testing"

	sd "github.com/coreos/go-systemd/v22/dbus"

	logx "nyordd/pkg/logx"
)

type fakeSystemd struct {
	props map[string]interface{}

	enabled   bool
	disabled  bool
	started   bool
	stopped   bool
	restarted bool
	reloaded  bool
}

func (f *fakeSystemd) GetUnitPropertiesContext(context.Context, string) (map[string]interface{}, error) {
	return f.props, nil
}

func (f *fakeSystemd) EnableUnitFilesContext(context.Context, []string, bool, bool) (bool, []sd.EnableUnitFileChange, error) {
	f.enabled = true
	return true, nil, nil
}

func (f *fakeSystemd) DisableUnitFilesContext(context.Context, []string, bool) ([]sd.DisableUnitFileChange, error) {
	f.disabled = true
	return nil, nil
}

func job(flag *bool) func(context.Context, string, string, chan<- string) (int, error) {
	return func(_ context.Context, _, _ string, ch chan<- string) (int, error) {
		*flag = true
		if ch != nil {
			ch <- "done"
		}
		return 1, nil
	}
}

func (f *fakeSystemd) StartUnitContext(ctx context.Context, n, m string, ch chan<- string) (int, error) {
	return job(&f.started)(ctx, n, m, ch)
}

func (f *fakeSystemd) StopUnitContext(ctx context.Context, n, m string, ch chan<- string) (int, error) {
	return job(&f.stopped)(ctx, n, m, ch)
}

func (f *fakeSystemd) RestartUnitContext(ctx context.Context, n, m string, ch chan<- string) (int, error) {
	return job(&f.restarted)(ctx, n, m, ch)
}

func (f *fakeSystemd) ReloadContext(context.Context) error {
	f.reloaded = true
	return nil
}

func (f *fakeSystemd) Close() {}

type fakeSkip struct{ called bool }

func (f *fakeSkip) SkipWaiting(context.Context) error {
	f.called = true
	return nil
}

func newTestRegistrar(f *fakeSystemd, confirm Confirmer, skip SkipWaiter) *systemdRegistrar {
	r := NewRegistrar("nyord-agent.service", confirm, skip, logx.Nop()).(*systemdRegistrar)
	r.newConn = func(context.Context) (systemdConn, error) { return f, nil }
	return r
}

func TestRegisterStartsInactiveUnit(t *testing.T) {
	f := &fakeSystemd{props: map[string]interface{}{"LoadState": "loaded", "ActiveState": "inactive"}}
	r := newTestRegistrar(f, nil, nil)

	if err := r.Register(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !f.enabled || !f.started {
		t.Fatalf("expected enable+start, got %+v", f)
	}
}

func TestRegisterIsNoopWhenCurrent(t *testing.T) {
	f := &fakeSystemd{props: map[string]interface{}{
		"LoadState": "loaded", "ActiveState": "active", "NeedDaemonReload": false,
	}}
	r := newTestRegistrar(f, nil, nil)

	if err := r.Register(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if f.started || f.restarted {
		t.Fatalf("running current agent must not be touched, got %+v", f)
	}
}

func TestRegisterMissingUnitFails(t *testing.T) {
	f := &fakeSystemd{props: map[string]interface{}{"LoadState": "not-found"}}
	r := newTestRegistrar(f, nil, nil)

	if err := r.Register(context.Background()); err == nil {
		t.Fatal("missing unit must error")
	}
}

func TestStaleAgentUpdateNeedsConfirmation(t *testing.T) {
	staleProps := map[string]interface{}{
		"LoadState": "loaded", "ActiveState": "active", "NeedDaemonReload": true,
	}

	// Declined: old agent keeps running, no restart, no handover.
	f := &fakeSystemd{props: staleProps}
	skip := &fakeSkip{}
	r := newTestRegistrar(f, func(context.Context) bool { return false }, skip)
	if err := r.Register(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if f.restarted || skip.called {
		t.Fatalf("declined update must not restart, got restart=%v skip=%v", f.restarted, skip.called)
	}

	// Confirmed: handover signal first, then restart.
	f = &fakeSystemd{props: staleProps}
	skip = &fakeSkip{}
	r = newTestRegistrar(f, func(context.Context) bool { return true }, skip)
	if err := r.Register(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !f.reloaded || !skip.called || !f.restarted {
		t.Fatalf("confirmed update: reload=%v skip=%v restart=%v", f.reloaded, skip.called, f.restarted)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	f := &fakeSystemd{props: map[string]interface{}{"LoadState": "not-found"}}
	r := newTestRegistrar(f, nil, nil)
	if err := r.Unregister(context.Background()); err != nil {
		t.Fatalf("unregister with nothing installed: %v", err)
	}
	if f.stopped || f.disabled {
		t.Fatalf("nothing to do, got %+v", f)
	}

	f = &fakeSystemd{props: map[string]interface{}{"LoadState": "loaded", "ActiveState": "active"}}
	r = newTestRegistrar(f, nil, nil)
	if err := r.Unregister(context.Background()); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if !f.stopped || !f.disabled {
		t.Fatalf("expected stop+disable, got %+v", f)
	}
}
