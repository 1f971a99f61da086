//go:build !linux

package agent

import (
	"context"
	"errors"

	logx "nyordd/pkg/logx"
)

var errNoSystemd = errors.New("agent: systemd user units unsupported on this OS")

type stubRegistrar struct{}

// NewRegistrar returns a registrar that reports the agent as unavailable.
func NewRegistrar(string, Confirmer, SkipWaiter, logx.Logger) Registrar {
	return stubRegistrar{}
}

func (stubRegistrar) Register(context.Context) error   { return errNoSystemd }
func (stubRegistrar) Unregister(context.Context) error { return nil }
func (stubRegistrar) Registered(context.Context) bool  { return false }
