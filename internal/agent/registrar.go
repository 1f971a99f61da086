package agent

import "context"

// Registrar manages the lifecycle of the background agent unit.
type Registrar interface {
	// Register installs and starts the agent. Idempotent; an already
	// registered, unchanged agent is left untouched.
	Register(ctx context.Context) error
	// Unregister stops and disables the agent. Idempotent.
	Unregister(ctx context.Context) error
	// Registered reports whether the agent is currently active.
	Registered(ctx context.Context) bool
}

// Confirmer is asked before a changed agent is restarted in place. Returning
// false keeps the running agent.
type Confirmer func(ctx context.Context) bool

// SkipWaiter delivers the handover signal to the running agent just before
// the restart that promotes its replacement. *Client satisfies it.
type SkipWaiter interface {
	SkipWaiting(ctx context.Context) error
}
