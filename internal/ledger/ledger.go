package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tokligence/tokligence-iosched/internal/scheduler"
)

// Entry is one queue's counters for one device at one point in time.
type Entry struct {
	ID         int64     `json:"id"`
	Device     string    `json:"device"`
	Queue      string    `json:"queue"`
	QueueIndex int       `json:"queue_index"`
	Enqueued   int64     `json:"enqueued"`
	Dequeued   int64     `json:"dequeued"`
	Backlog    int64     `json:"backlog"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrClosed is returned by stores that no longer accept entries.
var ErrClosed = errors.New("snapshot ledger closed")

// Store defines persistence behaviour for counter snapshots.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	// Latest returns the most recent entry of every queue of device, ordered
	// by queue index.
	Latest(ctx context.Context, device string) ([]Entry, error)
	// History returns up to limit entries for one queue, newest first.
	History(ctx context.Context, device, queue string, limit int) ([]Entry, error)
	Close() error
}

// Validate checks the fields every backend requires.
func (e Entry) Validate() error {
	if e.Device == "" {
		return errors.New("snapshot entry requires device")
	}
	if e.Queue == "" {
		return errors.New("snapshot entry requires queue")
	}
	if e.Backlog != e.Enqueued-e.Dequeued {
		return fmt.Errorf("snapshot entry %s/%s: backlog %d != enqueued %d - dequeued %d",
			e.Device, e.Queue, e.Backlog, e.Enqueued, e.Dequeued)
	}
	return nil
}

// FromSnapshot flattens a scheduler snapshot into one entry per queue.
func FromSnapshot(device string, snap scheduler.Snapshot, at time.Time) []Entry {
	entries := make([]Entry, 0, len(snap.Queues))
	for _, q := range snap.Queues {
		entries = append(entries, Entry{
			Device:     device,
			Queue:      q.Name,
			QueueIndex: int(q.Index),
			Enqueued:   int64(q.Enqueued),
			Dequeued:   int64(q.Dequeued),
			Backlog:    int64(q.Backlog),
			CreatedAt:  at,
		})
	}
	return entries
}
