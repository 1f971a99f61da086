// Package alert delivers desktop notifications.
//
// Delivery goes through a Platform (the freedesktop notification daemon on
// Linux, a no-op elsewhere). Whether alerts fire at all is gated by a
// persisted tri-state consent that is re-read at every decision point, so an
// externally edited consent file takes effect without a restart.
package alert
