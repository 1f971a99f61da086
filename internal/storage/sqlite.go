package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nyordd/internal/notif"
	logx "nyordd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveRecords(ctx context.Context, recs []notif.Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return err
	}
	for i, r := range recs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO records(id, category, type, title, message, created_at, read, from_user, silent, amount, pos)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
			r.ID, r.Category.String(), r.Type, r.Title, r.Message,
			r.CreatedAt.UTC().Format(time.RFC3339Nano), boolInt(r.Read), r.FromUserName, boolInt(r.Silent), r.Amount, i,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadRecords(ctx context.Context) ([]notif.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, type, title, message, created_at, read, from_user, silent, amount
		   FROM records ORDER BY pos ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notif.Record
	for rows.Next() {
		var (
			r        notif.Record
			cat, at  string
			read, si int
		)
		if err := rows.Scan(&r.ID, &cat, &r.Type, &r.Title, &r.Message, &at, &read, &r.FromUserName, &si, &r.Amount); err != nil {
			// A bad row means corruption; treat the remainder as empty rather
			// than failing rehydration.
			s.log.Warn("record row unreadable; truncating load", logx.Err(err))
			return out, nil
		}
		r.Category = notif.ParseCategory(cat)
		r.Read = read != 0
		r.Silent = si != 0
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ClearRecords(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM records`)
	return err
}

func (s *sqliteStore) AddProcessed(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(id) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed(id, at) VALUES(?,?) ON CONFLICT(id) DO NOTHING`,
		id, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) LoadProcessed(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM processed`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return out, nil
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ClearProcessed(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM processed`)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
