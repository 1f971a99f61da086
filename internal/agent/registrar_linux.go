//go:build linux

package agent

import (
	"context"
	"fmt"
	"strings"

	sd "github.com/coreos/go-systemd/v22/dbus"

	logx "nyordd/pkg/logx"
)

// systemdRegistrar drives the agent's systemd user unit.
type systemdRegistrar struct {
	log     logx.Logger
	unit    string
	confirm Confirmer
	skip    SkipWaiter

	newConn func(ctx context.Context) (systemdConn, error)
}

// systemdConn is the slice of go-systemd's connection the registrar uses.
type systemdConn interface {
	GetUnitPropertiesContext(ctx context.Context, unit string) (map[string]interface{}, error)
	EnableUnitFilesContext(ctx context.Context, files []string, runtime, force bool) (bool, []sd.EnableUnitFileChange, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]sd.DisableUnitFileChange, error)
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	ReloadContext(ctx context.Context) error
	Close()
}

// NewRegistrar returns the systemd-backed registrar for the agent unit.
func NewRegistrar(unit string, confirm Confirmer, skip SkipWaiter, log logx.Logger) Registrar {
	if unit == "" {
		unit = "nyord-agent.service"
	}
	return &systemdRegistrar{
		log:     log.With(logx.String("service", "registrar"), logx.String("unit", unit)),
		unit:    unit,
		confirm: confirm,
		skip:    skip,
		newConn: func(ctx context.Context) (systemdConn, error) {
			return sd.NewUserConnectionContext(ctx)
		},
	}
}

func (r *systemdRegistrar) withConn(ctx context.Context, fn func(systemdConn) error) error {
	conn, err := r.newConn(ctx)
	if err != nil {
		return fmt.Errorf("user systemd: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

// Register enables and starts the agent unit. Registering an already running
// agent is a no-op unless the unit file changed on disk; a changed unit is
// applied only after the confirmer agrees, with a SKIP_WAITING handover
// first. A declined update leaves the old agent running.
func (r *systemdRegistrar) Register(ctx context.Context) error {
	return r.withConn(ctx, func(conn systemdConn) error {
		props, err := conn.GetUnitPropertiesContext(ctx, r.unit)
		if err != nil {
			return fmt.Errorf("unit properties: %w", err)
		}
		load, _ := props["LoadState"].(string)
		active, _ := props["ActiveState"].(string)
		if load == "not-found" {
			return fmt.Errorf("agent unit %s not installed", r.unit)
		}

		if _, _, err := conn.EnableUnitFilesContext(ctx, []string{r.unit}, false, true); err != nil {
			return fmt.Errorf("enable unit: %w", err)
		}

		if active != "active" {
			if err := startAndWait(ctx, conn.StartUnitContext, r.unit); err != nil {
				return fmt.Errorf("start unit: %w", err)
			}
			r.log.Info("agent registered")
			return nil
		}

		// Already running. Check for a staged update.
		stale, _ := props["NeedDaemonReload"].(bool)
		if !stale {
			r.log.Debug("agent already current")
			return nil
		}
		return r.applyUpdate(ctx, conn)
	})
}

// applyUpdate restarts a running agent onto a changed unit file. Never
// silent: the confirmer decides, and the old agent gets a handover signal
// before the restart.
func (r *systemdRegistrar) applyUpdate(ctx context.Context, conn systemdConn) error {
	if r.confirm != nil && !r.confirm(ctx) {
		r.log.Info("agent update declined; keeping running agent")
		return nil
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("daemon reload: %w", err)
	}
	if r.skip != nil {
		if err := r.skip.SkipWaiting(ctx); err != nil {
			r.log.Warn("skip-waiting handover failed; restarting anyway", logx.Err(err))
		}
	}
	if err := startAndWait(ctx, conn.RestartUnitContext, r.unit); err != nil {
		return fmt.Errorf("restart unit: %w", err)
	}
	r.log.Info("agent updated")
	return nil
}

// Unregister stops and disables the agent unit. Safe to call when nothing is
// registered.
func (r *systemdRegistrar) Unregister(ctx context.Context) error {
	return r.withConn(ctx, func(conn systemdConn) error {
		props, err := conn.GetUnitPropertiesContext(ctx, r.unit)
		if err == nil {
			if load, _ := props["LoadState"].(string); load == "not-found" {
				return nil
			}
		}
		if err := startAndWait(ctx, conn.StopUnitContext, r.unit); err != nil &&
			!strings.Contains(err.Error(), "not loaded") {
			return fmt.Errorf("stop unit: %w", err)
		}
		if _, err := conn.DisableUnitFilesContext(ctx, []string{r.unit}, false); err != nil {
			return fmt.Errorf("disable unit: %w", err)
		}
		r.log.Info("agent unregistered")
		return nil
	})
}

// Registered reports whether the agent unit is installed and active.
func (r *systemdRegistrar) Registered(ctx context.Context) bool {
	ok := false
	_ = r.withConn(ctx, func(conn systemdConn) error {
		props, err := conn.GetUnitPropertiesContext(ctx, r.unit)
		if err != nil {
			return err
		}
		active, _ := props["ActiveState"].(string)
		ok = active == "active"
		return nil
	})
	return ok
}

type unitOp func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

// startAndWait runs a unit job and waits for its completion signal.
func startAndWait(ctx context.Context, op unitOp, unit string) error {
	done := make(chan string, 1)
	if _, err := op(ctx, unit, "replace", done); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-done:
		if res != "done" {
			return fmt.Errorf("unit job finished with %q", res)
		}
		return nil
	}
}
