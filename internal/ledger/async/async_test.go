package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tokligence/tokligence-iosched/internal/ledger"
)

type memStore struct {
	mu      sync.Mutex
	entries []ledger.Entry
	closed  bool
	block   chan struct{}
}

func (m *memStore) Record(_ context.Context, e ledger.Entry) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) Latest(context.Context, string) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Entry(nil), m.entries...), nil
}

func (m *memStore) History(context.Context, string, string, int) ([]ledger.Entry, error) {
	return nil, nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func entry(i int64) ledger.Entry {
	return ledger.Entry{Device: "sda", Queue: "be", QueueIndex: 8, Enqueued: i, Backlog: i}
}

func TestCloseFlushesPending(t *testing.T) {
	mem := &memStore{}
	s := New(mem, Config{BatchSize: 1000, FlushInterval: time.Hour})
	for i := int64(0); i < 25; i++ {
		if err := s.Record(context.Background(), entry(i)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if mem.count() != 25 {
		t.Fatalf("expected 25 flushed entries, got %d", mem.count())
	}
	if !mem.closed {
		t.Fatalf("underlying store not closed")
	}
	if err := s.Record(context.Background(), entry(1)); !errors.Is(err, ledger.ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestFlushOnInterval(t *testing.T) {
	mem := &memStore{}
	s := New(mem, Config{BatchSize: 1000, FlushInterval: 10 * time.Millisecond})
	defer s.Close()

	_ = s.Record(context.Background(), entry(1))
	deadline := time.Now().Add(2 * time.Second)
	for mem.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("entry never flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecordDropsWhenFull(t *testing.T) {
	mem := &memStore{block: make(chan struct{})}
	s := New(mem, Config{BatchSize: 1, FlushInterval: time.Hour, ChannelBuffer: 2})

	// the writer takes one entry and blocks on it; two more fill the buffer
	for i := int64(0); i < 10; i++ {
		if err := s.Record(context.Background(), entry(i)); err != nil {
			t.Fatalf("Record must not fail when full: %v", err)
		}
	}
	if s.Dropped() == 0 {
		t.Fatalf("expected drops with a blocked writer")
	}
	close(mem.block)
	_ = s.Close()
	if got := uint64(mem.count()) + s.Dropped(); got != 10 {
		t.Fatalf("written %d + dropped %d != 10", mem.count(), s.Dropped())
	}
}

func TestRecordRejectsInvalid(t *testing.T) {
	s := New(&memStore{}, Config{})
	defer s.Close()
	if err := s.Record(context.Background(), ledger.Entry{Device: "sda"}); err == nil {
		t.Fatalf("expected validation error")
	}
}
