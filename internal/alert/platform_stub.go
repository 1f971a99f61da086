//go:build !linux

package alert

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("alert: desktop notifications unsupported on this OS")

type stubPlatform struct{}

// NewPlatform returns the host notification surface. On non-Linux hosts it
// reports unsupported and every Show fails.
func NewPlatform() Platform { return stubPlatform{} }

func (stubPlatform) Supported() bool { return false }

func (stubPlatform) Show(context.Context, Request) (uint32, error) {
	return 0, errUnsupported
}

func (stubPlatform) Close(context.Context, uint32) error { return nil }
