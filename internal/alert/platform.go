package alert

import (
	"context"
	"time"
)

// Request describes one desktop notification.
type Request struct {
	Title string
	Body  string
	Icon  string
	Tag   string

	// Sticky alerts stay until dismissed; others auto-expire after Expire
	// (0 means the platform default).
	Sticky bool
	Expire time.Duration
}

// Platform is the OS notification surface. Implementations must be safe for
// concurrent use.
type Platform interface {
	// Supported reports whether this host can show desktop alerts at all.
	Supported() bool
	// Show posts an alert and returns a handle usable with Close. Tags map
	// to replacement: a second Show with the same tag replaces the first.
	Show(ctx context.Context, req Request) (uint32, error)
	// Close dismisses a previously shown alert. Unknown handles are a no-op.
	Close(ctx context.Context, id uint32) error
}

// Auto-expire timeout handed to the platform for non-sticky alerts.
const expireTimeoutMs = 5000
