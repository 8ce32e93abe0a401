package device

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/tokligence/tokligence-iosched/internal/scheduler"
)

var (
	ErrNotFound = errors.New("device not found")
	ErrExists   = errors.New("device already active")
)

// Registry tracks the active devices of a process.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	config  *scheduler.Config
}

// NewRegistry creates an empty registry. Every device gets its own
// scheduler built from config.
func NewRegistry(config *scheduler.Config) *Registry {
	if config == nil {
		config = scheduler.DefaultConfig()
	}
	return &Registry{
		devices: make(map[string]*Device),
		config:  config,
	}
}

// Activate attaches a new scheduler instance to a device.
func (r *Registry) Activate(name string) (*Device, error) {
	if name == "" {
		return nil, errors.New("device name required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	d := New(name, r.config)
	r.devices[name] = d
	log.Printf("[INFO] Registry.Activate: %s id=%s queues=%d", name, d.ID, d.sched.NumQueues())
	return d, nil
}

// Get looks a device up by name or ID.
func (r *Registry) Get(key string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.devices[key]; ok {
		return d, true
	}
	for _, d := range r.devices {
		if d.ID == key {
			return d, true
		}
	}
	return nil, false
}

// List returns the active devices ordered by name.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshots copies the counters of every device, ordered by name.
func (r *Registry) Snapshots() []Snapshot {
	devices := r.List()
	out := make([]Snapshot, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Snapshot())
	}
	return out
}

// Deactivate detaches a device. With flush set pending requests are drained
// first; without it a non-empty device panics in the scheduler.
func (r *Registry) Deactivate(key string, flush bool) (int, error) {
	d, ok := r.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	n := 0
	if flush {
		n = d.DeactivateFlush()
	} else {
		d.Deactivate()
	}
	r.mu.Lock()
	delete(r.devices, d.Name)
	r.mu.Unlock()
	log.Printf("[INFO] Registry.Deactivate: %s flushed=%d", d.Name, n)
	return n, nil
}

// Close flushes and deactivates every device and returns the total number of
// requests flushed.
func (r *Registry) Close() int {
	total := 0
	for _, d := range r.List() {
		n, _ := r.Deactivate(d.Name, true)
		total += n
	}
	return total
}
