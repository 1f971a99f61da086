package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (json snapshots + processed journal)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and the pipeline runs
// purely in memory (every restart looks like a first run).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
