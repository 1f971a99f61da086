package storage

import (
	"context"
	"errors"
	"strings"

	"nyordd/internal/notif"
	logx "nyordd/pkg/logx"
)

// Store is the persistence API used by the Store and the Delivery Router.
//
// SaveRecords persists the full list (the record list is small and owned by
// a single writer, so replace-all writes keep the drivers simple).
// Processed ids are append-mostly and only removed by ClearProcessed.
type Store interface {
	SaveRecords(ctx context.Context, recs []notif.Record) error
	LoadRecords(ctx context.Context) ([]notif.Record, error)
	ClearRecords(ctx context.Context) error

	AddProcessed(ctx context.Context, id string) error
	LoadProcessed(ctx context.Context) ([]string, error)
	ClearProcessed(ctx context.Context) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
