package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nyordd/internal/notif"
	logx "nyordd/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.records.json           (full list, atomic rename writes)
//   - <prefix>.processed.json         (periodic snapshot)
//   - <prefix>.processed.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	recordsPath string

	processedSnapshotPath string
	processedJournalFile  *os.File
	processed             map[string]struct{}

	processedWrites int
}

const processedCompactEvery = 256

type processedRecord struct {
	ID string `json:"id"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	recordsPath := prefix + ".records.json"
	snapPath := prefix + ".processed.json"
	journalPath := prefix + ".processed.journal.jsonl"

	// Load processed ids from snapshot + journal. Both loads are tolerant:
	// a corrupt file means first-run state, not a failure.
	processed := map[string]struct{}{}
	_ = loadProcessedSnapshot(snapPath, processed)
	_ = replayProcessedJournal(journalPath, processed)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:                   log,
		recordsPath:           recordsPath,
		processedSnapshotPath: snapPath,
		processedJournalFile:  jf,
		processed:             processed,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processedJournalFile != nil {
		err := s.processedJournalFile.Close()
		s.processedJournalFile = nil
		return err
	}
	return nil
}

func (s *fileStore) SaveRecords(ctx context.Context, recs []notif.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if recs == nil {
		recs = []notif.Record{}
	}
	return writeJSONAtomic(s.recordsPath, recs)
}

func (s *fileStore) LoadRecords(ctx context.Context) ([]notif.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.recordsPath)
	if err != nil {
		// Missing is first-run state.
		return nil, nil
	}
	var recs []notif.Record
	if err := json.Unmarshal(b, &recs); err != nil {
		s.log.Warn("record list unreadable; starting empty", logx.String("path", s.recordsPath), logx.Err(err))
		return nil, nil
	}
	return recs, nil
}

func (s *fileStore) ClearRecords(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.recordsPath, []notif.Record{})
}

func (s *fileStore) AddProcessed(ctx context.Context, id string) error {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processedJournalFile == nil {
		return errors.New("processed journal closed")
	}
	if s.processed == nil {
		s.processed = map[string]struct{}{}
	}
	if _, ok := s.processed[id]; ok {
		return nil
	}
	s.processed[id] = struct{}{}

	// Append journal record.
	enc := json.NewEncoder(s.processedJournalFile)
	if err := enc.Encode(processedRecord{ID: id}); err != nil {
		return err
	}
	s.processedWrites++
	if s.processedWrites%processedCompactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("processed compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) LoadProcessed(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.processed))
	for id := range s.processed {
		out = append(out, id)
	}
	return out, nil
}

func (s *fileStore) ClearProcessed(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = map[string]struct{}{}
	s.processedWrites = 0
	if err := writeJSONAtomic(s.processedSnapshotPath, []string{}); err != nil {
		return err
	}
	if s.processedJournalFile != nil {
		if err := s.processedJournalFile.Truncate(0); err != nil {
			return err
		}
		if _, err := s.processedJournalFile.Seek(0, 2); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	ids := make([]string, 0, len(s.processed))
	for id := range s.processed {
		ids = append(ids, id)
	}
	if err := writeJSONAtomic(s.processedSnapshotPath, ids); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.processedJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.processedJournalFile.Seek(0, 2)
	return err
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadProcessedSnapshot(path string, out map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var ids []string
	if err := json.NewDecoder(f).Decode(&ids); err != nil {
		return err
	}
	for _, id := range ids {
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return nil
}

func replayProcessedJournal(path string, out map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r processedRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.ID == "" {
			continue
		}
		out[r.ID] = struct{}{}
	}
	return sc.Err()
}
