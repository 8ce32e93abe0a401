package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/tokligence/tokligence-iosched/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS queue_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device TEXT NOT NULL,
	queue TEXT NOT NULL,
	queue_index INTEGER NOT NULL,
	enqueued INTEGER NOT NULL,
	dequeued INTEGER NOT NULL,
	backlog INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_queue_snapshots_device_queue ON queue_snapshots(device, queue_index, id DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a new snapshot entry.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO queue_snapshots(device, queue, queue_index, enqueued, dequeued, backlog, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
		entry.Device,
		entry.Queue,
		entry.QueueIndex,
		entry.Enqueued,
		entry.Dequeued,
		entry.Backlog,
		created,
	)
	return err
}

// Latest returns the newest entry per queue for device.
func (s *Store) Latest(ctx context.Context, device string) ([]ledger.Entry, error) {
	if device == "" {
		return nil, errors.New("device required")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, device, queue, queue_index, enqueued, dequeued, backlog, created_at
FROM queue_snapshots
WHERE id IN (SELECT MAX(id) FROM queue_snapshots WHERE device = ? GROUP BY queue_index)
ORDER BY queue_index`, device)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// History returns the latest entries for one queue of a device.
func (s *Store) History(ctx context.Context, device, queue string, limit int) ([]ledger.Entry, error) {
	if device == "" || queue == "" {
		return nil, errors.New("device and queue required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, device, queue, queue_index, enqueued, dequeued, backlog, created_at
FROM queue_snapshots
WHERE device = ? AND queue = ?
ORDER BY id DESC
LIMIT ?`, device, queue, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	defer rows.Close()
	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.Device, &e.Queue, &e.QueueIndex, &e.Enqueued, &e.Dequeued, &e.Backlog, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
