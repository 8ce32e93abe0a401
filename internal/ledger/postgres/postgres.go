package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tokligence/tokligence-iosched/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed snapshot store using the provided DSN and connection pool settings.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeMinutes) * time.Minute)
	}

	s, err := NewWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an already opened handle and applies the schema.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS queue_snapshots (
	id BIGSERIAL PRIMARY KEY,
	device TEXT NOT NULL,
	queue TEXT NOT NULL,
	queue_index INTEGER NOT NULL,
	enqueued BIGINT NOT NULL,
	dequeued BIGINT NOT NULL,
	backlog BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_queue_snapshots_device_queue ON queue_snapshots(device, queue_index, id DESC);
`

func (s *Store) initSchema() error {
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
VALUES($1, $2, $3, $4, $5, $6, $7)`,
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
SELECT DISTINCT ON (queue_index) id, device, queue, queue_index, enqueued, dequeued, backlog, created_at
FROM queue_snapshots
WHERE device = $1
ORDER BY queue_index, id DESC`, device)
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
WHERE device = $1 AND queue = $2
ORDER BY id DESC
LIMIT $3`, device, queue, limit)
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
