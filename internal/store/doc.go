// Package store holds the in-memory notification list and the toast queue.
//
// The store is the single owner of notification records: everything else
// (router, popups, feed sync) reads through it and mutates through it. Every
// mutation persists the full list through the storage layer (when configured)
// and publishes a store.updated event so downstream consumers can run a pass.
//
// Ordering is newest-first and is preserved across restarts.
package store
