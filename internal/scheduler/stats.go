package scheduler

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
)

// ErrPendingRequests is wrapped by the panic value raised when a scheduler
// is shut down with work still queued.
var ErrPendingRequests = errors.New("scheduler shut down with pending requests")

// ContractViolationError describes a teardown with non-empty queues.
type ContractViolationError struct {
	Backlog map[string]uint64 // queue name -> resident requests
}

func (e *ContractViolationError) Error() string {
	parts := make([]string, 0, len(e.Backlog))
	for name, n := range e.Backlog {
		parts = append(parts, fmt.Sprintf("%s=%d", name, n))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%v: %s", ErrPendingRequests, strings.Join(parts, " "))
}

func (e *ContractViolationError) Unwrap() error { return ErrPendingRequests }

// QueueStats is one queue's counters at the time of a snapshot.
type QueueStats struct {
	Index    QueueIndex `json:"index"`
	Name     string     `json:"name"`
	Enqueued uint64     `json:"enqueued"`
	Dequeued uint64     `json:"dequeued"`
	Backlog  uint64     `json:"backlog"`
}

// Snapshot is a copy of every queue's counters.
type Snapshot struct {
	Queues []QueueStats `json:"queues"`
}

// TotalBacklog sums the backlog of every queue.
func (s Snapshot) TotalBacklog() uint64 {
	var total uint64
	for _, q := range s.Queues {
		total += q.Backlog
	}
	return total
}

// Snapshot copies the enqueue/dequeue counters. Backlog is derived as
// enqueued minus dequeued rather than tracked on its own.
func (s *Scheduler) Snapshot() Snapshot {
	out := Snapshot{Queues: make([]QueueStats, len(s.enqueued))}
	for i := range s.enqueued {
		enq, deq := s.enqueued[i], s.dequeued[i]
		var backlog uint64
		if enq > deq {
			backlog = enq - deq
		}
		out.Queues[i] = QueueStats{
			Index:    QueueIndex(i),
			Name:     s.QueueName(QueueIndex(i)),
			Enqueued: enq,
			Dequeued: deq,
			Backlog:  backlog,
		}
	}
	return out
}

// LogStats writes the snapshot to logger, one line per queue that has seen
// traffic.
func LogStats(logger *log.Logger, device string, snap Snapshot) {
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[INFO] Scheduler Stats: device=%s backlog=%d", device, snap.TotalBacklog())
	for _, q := range snap.Queues {
		if q.Enqueued == 0 {
			continue
		}
		logger.Printf("[INFO]   %s: enqueued=%d backlog=%d", q.Name, q.Enqueued, q.Backlog)
	}
}

func (s *Scheduler) pendingViolation() *ContractViolationError {
	backlog := make(map[string]uint64)
	for i, f := range s.queues.queues {
		if f.len > 0 {
			backlog[s.QueueName(QueueIndex(i))] = uint64(f.len)
		}
	}
	return &ContractViolationError{Backlog: backlog}
}
