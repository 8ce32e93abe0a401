package device

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tokligence/tokligence-iosched/internal/scheduler"
)

var (
	// ErrInactive is returned by operations on a deactivated device.
	ErrInactive = errors.New("device is not active")
	// ErrForeignRequest is returned when a request is not resident on this device.
	ErrForeignRequest = errors.New("request is not queued on this device")
)

// Device is one block device queue and the scheduler instance attached to it.
//
// The scheduler itself is passive and unsynchronized; Device serializes
// every call on it with mu.
type Device struct {
	ID        string
	Name      string
	CreatedAt time.Time

	mu     sync.Mutex
	sched  *scheduler.Scheduler
	active bool
	merges uint64
	logger *log.Logger
}

// Snapshot is a device's identity plus a copy of its scheduler counters.
type Snapshot struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Active  bool      `json:"active"`
	Merges  uint64    `json:"merges"`
	TakenAt time.Time `json:"taken_at"`
	scheduler.Snapshot
}

// New attaches a fresh scheduler to a device named name.
func New(name string, config *scheduler.Config) *Device {
	if config == nil {
		config = scheduler.DefaultConfig()
	}
	return &Device{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		sched:     scheduler.New(config),
		active:    true,
		logger:    config.Logger,
	}
}

// NewRequest allocates a request with a fresh ID. It is not queued until
// Submit is called.
func (d *Device) NewRequest(tag scheduler.Tag, sector uint64, sectors uint32, write bool) *scheduler.Request {
	return &scheduler.Request{
		ID:      uuid.NewString(),
		Tag:     tag,
		Sector:  sector,
		Sectors: sectors,
		Write:   write,
	}
}

// Submit queues req and returns the queue it landed in.
func (d *Device) Submit(req *scheduler.Request) (scheduler.QueueIndex, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return 0, ErrInactive
	}
	return d.sched.Submit(req), nil
}

// Dispatch hands the next request to the driver.
func (d *Device) Dispatch() (*scheduler.Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return nil, false
	}
	return d.sched.DispatchOne()
}

// Flush drains every queue and returns how many requests were removed.
func (d *Device) Flush() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return 0
	}
	return d.sched.DispatchAll()
}

// Absorb removes absorbed from its queue after its work was folded into
// surviving by the caller.
func (d *Device) Absorb(surviving, absorbed *scheduler.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return ErrInactive
	}
	if _, ok := d.sched.QueueOf(absorbed); !ok {
		return ErrForeignRequest
	}
	d.sched.Absorb(surviving, absorbed)
	d.merges++
	return nil
}

// Merge tries to coalesce req with a queue neighbour covering the adjacent
// sector range in the same direction. A back merge (req followed by a
// contiguous successor) is tried before a front merge (contiguous
// predecessor followed by req). It returns the request that was absorbed,
// or nil when nothing merged.
func (d *Device) Merge(req *scheduler.Request) (*scheduler.Request, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return nil, ErrInactive
	}
	if _, ok := d.sched.QueueOf(req); !ok {
		return nil, ErrForeignRequest
	}

	if next, ok := d.sched.Successor(req); ok && contiguous(req, next) {
		req.Sectors += next.Sectors
		d.sched.Absorb(req, next)
		d.merges++
		return next, nil
	}
	if prev, ok := d.sched.Predecessor(req); ok && contiguous(prev, req) {
		prev.Sectors += req.Sectors
		d.sched.Absorb(prev, req)
		d.merges++
		return req, nil
	}
	return nil, nil
}

func contiguous(front, back *scheduler.Request) bool {
	return front.Write == back.Write &&
		front.End() == back.Sector &&
		uint64(front.Sectors)+uint64(back.Sectors) <= math.MaxUint32
}

// Neighbors returns the requests queued directly ahead of and behind req.
func (d *Device) Neighbors(req *scheduler.Request) (prev, next *scheduler.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, _ = d.sched.Predecessor(req)
	next, _ = d.sched.Successor(req)
	return prev, next
}

// QueueName returns the display name of queue idx.
func (d *Device) QueueName(idx scheduler.QueueIndex) string {
	return d.sched.QueueName(idx)
}

// Active reports whether the device still accepts requests.
func (d *Device) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Snapshot copies the scheduler counters.
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		ID:       d.ID,
		Name:     d.Name,
		Active:   d.active,
		Merges:   d.merges,
		TakenAt:  time.Now().UTC(),
		Snapshot: d.sched.Snapshot(),
	}
}

// Deactivate shuts the scheduler down. Requests still queued at this point
// are lost work: the scheduler panics and the device stays active.
func (d *Device) Deactivate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return
	}
	d.sched.Shutdown()
	d.active = false
	if d.logger != nil {
		d.logger.Printf("[DEBUG] Device.Deactivate: %s (%s)", d.Name, d.ID)
	}
}

// DeactivateFlush drains every queue and then shuts the scheduler down. It
// returns how many requests were flushed.
func (d *Device) DeactivateFlush() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return 0
	}
	n := d.sched.DispatchAll()
	d.sched.Shutdown()
	d.active = false
	if n > 0 {
		log.Printf("[WARN] Device.DeactivateFlush: %s dropped %d pending requests", d.Name, n)
	}
	return n
}

func (d *Device) String() string {
	return fmt.Sprintf("%s(%s)", d.Name, d.ID)
}
