package async

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tokligence/tokligence-iosched/internal/ledger"
)

// Store wraps a ledger.Store with asynchronous batch writes.
// Entries are queued in memory and written in batches so that reporting never
// blocks on the database.
// WARNING: Entries may be lost if the process crashes before flushing.
type Store struct {
	underlying    ledger.Store
	entryChan     chan ledger.Entry
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopChan      chan struct{}
	closeOnce     sync.Once
	dropped       atomic.Uint64
	logger        *log.Logger
}

// Config configures the async ledger behavior.
type Config struct {
	BatchSize     int           // Maximum entries per batch (default: 100)
	FlushInterval time.Duration // Maximum time between flushes (default: 1s)
	ChannelBuffer int           // Channel buffer size (default: 10000)
	Logger        *log.Logger   // Optional logger for diagnostics
}

// New wraps an existing ledger store with async batch writing.
func New(underlying ledger.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 10000
	}

	s := &Store{
		underlying:    underlying,
		entryChan:     make(chan ledger.Entry, cfg.ChannelBuffer),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopChan:      make(chan struct{}),
		logger:        cfg.Logger,
	}

	s.wg.Add(1)
	go s.batchWriter()

	if s.logger != nil {
		s.logger.Printf("[async-ledger] started, batch_size=%d, flush_interval=%v, buffer=%d",
			cfg.BatchSize, cfg.FlushInterval, cfg.ChannelBuffer)
	}
	return s
}

func (s *Store) batchWriter() {
	defer s.wg.Done()

	batch := make([]ledger.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx := context.Background()
		written := 0
		for _, entry := range batch {
			if err := s.underlying.Record(ctx, entry); err != nil {
				if s.logger != nil {
					s.logger.Printf("[async-ledger] ERROR writing %s/%s: %v", entry.Device, entry.Queue, err)
				}
				continue
			}
			written++
		}
		if s.logger != nil && written != len(batch) {
			s.logger.Printf("[async-ledger] flushed %d/%d entries", written, len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.entryChan:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.stopChan:
			for {
				select {
				case entry := <-s.entryChan:
					batch = append(batch, entry)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Record queues an entry for asynchronous writing. It never blocks; when the
// buffer is full the entry is dropped and counted.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	select {
	case <-s.stopChan:
		return ledger.ErrClosed
	default:
	}
	select {
	case s.entryChan <- entry:
		return nil
	default:
		if n := s.dropped.Add(1); s.logger != nil && (n == 1 || n%1000 == 0) {
			s.logger.Printf("[async-ledger] WARNING: channel full, %d entries dropped", n)
		}
		return nil
	}
}

// Dropped reports how many entries were discarded because the buffer was full.
func (s *Store) Dropped() uint64 { return s.dropped.Load() }

// Latest delegates to the underlying store (blocking operation).
func (s *Store) Latest(ctx context.Context, device string) ([]ledger.Entry, error) {
	return s.underlying.Latest(ctx, device)
}

// History delegates to the underlying store (blocking operation).
func (s *Store) History(ctx context.Context, device, queue string, limit int) ([]ledger.Entry, error) {
	return s.underlying.History(ctx, device, queue, limit)
}

// Close flushes remaining entries and closes the underlying store.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return s.underlying.Close()
}
