package report

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tokligence/tokligence-iosched/internal/device"
	"github.com/tokligence/tokligence-iosched/internal/ledger"
	"github.com/tokligence/tokligence-iosched/internal/scheduler"
)

// Fleet is the set of devices a reporter snapshots.
type Fleet interface {
	Snapshots() []device.Snapshot
}

// Config holds the reporter configuration.
type Config struct {
	Interval    time.Duration // Tick period and sustained report rate (default: 10s)
	Burst       int           // Extra on-demand reports allowed above the rate (default: 1)
	BacklogWarn uint64        // Log a warning when a device backlog reaches this (0 disables)
	Store       ledger.Store  // Optional; snapshots are only logged when nil
	Logger      *log.Logger   // Defaults to the standard logger
}

// Reporter periodically copies every device's counters into the log and the
// snapshot ledger. Snapshotting never touches the dispatch path beyond the
// device lock taken by Device.Snapshot.
type Reporter struct {
	fleet    Fleet
	limiter  *rate.Limiter
	interval time.Duration
	warn     uint64
	store    ledger.Store
	logger   *log.Logger

	reported   atomic.Uint64
	suppressed atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a reporter. Call Start to run it on a ticker.
func New(fleet Fleet, cfg Config) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Reporter{
		fleet:    fleet,
		limiter:  rate.NewLimiter(rate.Every(cfg.Interval), cfg.Burst),
		interval: cfg.Interval,
		warn:     cfg.BacklogWarn,
		store:    cfg.Store,
		logger:   cfg.Logger,
	}
}

// Report takes one snapshot of every device if the rate limit allows it.
// It returns false when the report was suppressed.
func (r *Reporter) Report(ctx context.Context) bool {
	if !r.limiter.Allow() {
		r.suppressed.Add(1)
		return false
	}
	for _, snap := range r.fleet.Snapshots() {
		scheduler.LogStats(r.logger, snap.Name, snap.Snapshot)
		if backlog := snap.TotalBacklog(); r.warn > 0 && backlog >= r.warn {
			r.logger.Printf("[WARN] Reporter: device=%s backlog=%d exceeds %d", snap.Name, backlog, r.warn)
		}
		if r.store == nil {
			continue
		}
		for _, entry := range ledger.FromSnapshot(snap.Name, snap.Snapshot, snap.TakenAt) {
			if err := r.store.Record(ctx, entry); err != nil {
				r.logger.Printf("[ERROR] Reporter: record %s/%s: %v", entry.Device, entry.Queue, err)
			}
		}
	}
	r.reported.Add(1)
	return true
}

// Start runs Report on every tick until Stop is called or ctx is done.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Report(ctx)
			}
		}
	}(r.done)
	r.logger.Printf("[INFO] Reporter: started interval=%v", r.interval)
}

// Stop halts the ticker and waits for an in-flight report to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Printf("[INFO] Reporter: stopped reported=%d suppressed=%d", r.reported.Load(), r.suppressed.Load())
}

// Counts returns how many reports ran and how many were rate limited.
func (r *Reporter) Counts() (reported, suppressed uint64) {
	return r.reported.Load(), r.suppressed.Load()
}
