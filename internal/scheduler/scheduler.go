package scheduler

import (
	"log"
)

// Request is a unit of I/O work. The caller owns the request and its
// payload; the scheduler only tracks queue membership while the request is
// resident.
type Request struct {
	ID      string
	Tag     Tag
	Sector  uint64
	Sectors uint32
	Write   bool
	Payload any

	loc location
}

// location is a request's tagged membership: resident in owner at slot, or
// detached when owner is nil.
type location struct {
	owner *Scheduler
	slot  slot
}

// End returns the first sector after the request's range.
func (r *Request) End() uint64 {
	return r.Sector + uint64(r.Sectors)
}

// Scheduler orders pending requests for a single device queue.
//
// It is a passive structure: it starts no goroutines and takes no locks.
// The owner must serialize every call on one instance.
type Scheduler struct {
	classifier Classifier
	queues     *store
	enqueued   []uint64
	dequeued   []uint64
	logger     *log.Logger
}

// New creates a scheduler with all queues empty and counters zeroed.
func New(config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	c := config.classifier()
	n := c.NumQueues()

	if config.Logger != nil {
		config.Logger.Printf("[DEBUG] Scheduler: Initializing mode=%s queues=%d", config.Mode, n)
	}

	return &Scheduler{
		classifier: c,
		queues:     newStore(n),
		enqueued:   make([]uint64, n),
		dequeued:   make([]uint64, n),
		logger:     config.Logger,
	}
}

// NumQueues returns the number of ordered queues.
func (s *Scheduler) NumQueues() int { return len(s.enqueued) }

// QueueName returns the display name of queue idx (rt0..rt7, be, idle).
func (s *Scheduler) QueueName(idx QueueIndex) string { return s.classifier.QueueName(idx) }

// Submit classifies req and appends it to the tail of its queue. Submitting
// a request that is already resident is a no-op.
func (s *Scheduler) Submit(req *Request) QueueIndex {
	if req.loc.owner == s {
		return s.queues.nodes[req.loc.slot].queue
	}
	q := s.classifier.Classify(req.Tag)
	req.loc = location{owner: s, slot: s.queues.append(q, req)}
	s.enqueued[q]++
	s.debugf("[DEBUG] Scheduler.Submit: %s tag=%s -> %s (depth=%d)",
		req.ID, req.Tag, s.QueueName(q), s.queues.queues[q].len)
	return q
}

// DispatchOne removes and returns the head of the highest-priority
// non-empty queue. It returns false when every queue is empty.
func (s *Scheduler) DispatchOne() (*Request, bool) {
	for i := range s.queues.queues {
		q := QueueIndex(i)
		if s.queues.empty(q) {
			continue
		}
		req := s.take(s.queues.front(q))
		s.debugf("[DEBUG] Scheduler.DispatchOne: %s from %s", req.ID, s.QueueName(q))
		return req, true
	}
	return nil, false
}

// DispatchAll drains every queue front to back in priority order and
// returns how many requests were removed. Meant for forced flushes only.
func (s *Scheduler) DispatchAll() int {
	count := 0
	for i := range s.queues.queues {
		q := QueueIndex(i)
		for !s.queues.empty(q) {
			s.take(s.queues.front(q))
			count++
		}
	}
	if count > 0 {
		s.debugf("[DEBUG] Scheduler.DispatchAll: drained %d requests", count)
	}
	return count
}

// Absorb removes absorbed from its queue without dispatching it; its work
// has been folded into surviving, which is left untouched. Absorbing a
// request that is not resident is a no-op.
func (s *Scheduler) Absorb(surviving, absorbed *Request) {
	if absorbed == nil || absorbed.loc.owner != s {
		return
	}
	q := s.queues.nodes[absorbed.loc.slot].queue
	s.take(absorbed.loc.slot)
	if surviving != nil {
		s.debugf("[DEBUG] Scheduler.Absorb: %s merged into %s (%s)", absorbed.ID, surviving.ID, s.QueueName(q))
	}
}

// Predecessor returns the request queued immediately ahead of req in its
// own queue.
func (s *Scheduler) Predecessor(req *Request) (*Request, bool) {
	if req == nil || req.loc.owner != s {
		return nil, false
	}
	prev := s.queues.nodes[req.loc.slot].prev
	if prev == nilSlot {
		return nil, false
	}
	return s.queues.nodes[prev].req, true
}

// Successor returns the request queued immediately behind req in its own
// queue.
func (s *Scheduler) Successor(req *Request) (*Request, bool) {
	if req == nil || req.loc.owner != s {
		return nil, false
	}
	next := s.queues.nodes[req.loc.slot].next
	if next == nilSlot {
		return nil, false
	}
	return s.queues.nodes[next].req, true
}

// QueueOf reports which queue req currently sits in.
func (s *Scheduler) QueueOf(req *Request) (QueueIndex, bool) {
	if req == nil || req.loc.owner != s {
		return 0, false
	}
	return s.queues.nodes[req.loc.slot].queue, true
}

// Len returns the number of resident requests in queue idx.
func (s *Scheduler) Len(idx QueueIndex) int {
	if idx < 0 || int(idx) >= len(s.queues.queues) {
		return 0
	}
	return s.queues.queues[idx].len
}

// Empty reports whether no request is resident in any queue.
func (s *Scheduler) Empty() bool {
	for i := range s.queues.queues {
		if !s.queues.empty(QueueIndex(i)) {
			return false
		}
	}
	return true
}

// Shutdown tears the instance down. Pending requests at this point are a
// caller bug (lost work), so it panics with a *ContractViolationError
// instead of returning.
func (s *Scheduler) Shutdown() {
	if !s.Empty() {
		panic(s.pendingViolation())
	}
	s.debugf("[DEBUG] Scheduler.Shutdown: all %d queues empty", s.NumQueues())
	s.queues.nodes = nil
	s.queues.free = nilSlot
}

// take unlinks the node at sl, detaches its request and counts the removal.
func (s *Scheduler) take(sl slot) *Request {
	q, req := s.queues.unlink(sl)
	req.loc = location{}
	s.dequeued[q]++
	return req
}

func (s *Scheduler) debugf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
