package scheduler

import (
	"errors"
	"fmt"
	"testing"
)

func rt(id string, level int) *Request {
	return &Request{ID: id, Tag: Tag{Class: ClassRealTime, Level: level}}
}

func be(id string) *Request {
	return &Request{ID: id, Tag: Tag{Class: ClassBestEffort}}
}

func idle(id string) *Request {
	return &Request{ID: id, Tag: Tag{Class: ClassIdle}}
}

// checkCounters asserts enqueued == dequeued + backlog for every queue.
func checkCounters(t *testing.T, s *Scheduler) {
	t.Helper()
	for _, q := range s.Snapshot().Queues {
		if q.Enqueued != q.Dequeued+q.Backlog {
			t.Fatalf("%s: enqueued=%d dequeued=%d backlog=%d", q.Name, q.Enqueued, q.Dequeued, q.Backlog)
		}
		if int(q.Backlog) != s.Len(q.Index) {
			t.Fatalf("%s: backlog %d does not match resident %d", q.Name, q.Backlog, s.Len(q.Index))
		}
	}
}

func TestScheduler_MixedClassOrder(t *testing.T) {
	t.Log("===== TEST: (RT,0) (BE) (RT,0) (Idle) dispatch order =====")

	s := New(nil)
	rt1 := rt("rt0-1", 0)
	bereq := be("be-1")
	rt2 := rt("rt0-2", 0)
	idlereq := idle("idle-1")
	for _, r := range []*Request{rt1, bereq, rt2, idlereq} {
		s.Submit(r)
	}
	checkCounters(t, s)

	expectedOrder := []*Request{rt1, rt2, bereq, idlereq}
	for i, want := range expectedOrder {
		got, ok := s.DispatchOne()
		if !ok {
			t.Fatalf("DispatchOne %d returned nothing", i)
		}
		if got != want {
			t.Fatalf("DispatchOne %d: expected %s, got %s", i, want.ID, got.ID)
		}
		t.Logf("✓ Dispatch %d: %s", i, got.ID)
		checkCounters(t, s)
	}

	if r, ok := s.DispatchOne(); ok {
		t.Fatalf("expected empty scheduler, got %s", r.ID)
	}
	s.Shutdown()
}

func TestScheduler_StrictPriorityAcrossAllQueues(t *testing.T) {
	s := New(nil)
	// submit lowest priority first so arrival order disagrees with priority
	var want []string
	s.Submit(idle("idle"))
	s.Submit(be("be"))
	for level := RealTimeLevels - 1; level >= 0; level-- {
		s.Submit(rt(fmt.Sprintf("rt%d", level), level))
	}
	for level := 0; level < RealTimeLevels; level++ {
		want = append(want, fmt.Sprintf("rt%d", level))
	}
	want = append(want, "be", "idle")

	for i, id := range want {
		got, ok := s.DispatchOne()
		if !ok || got.ID != id {
			t.Fatalf("dispatch %d: expected %s, got %v", i, id, got)
		}
	}
}

func TestScheduler_FIFOWithinQueue(t *testing.T) {
	s := New(nil)
	for i := 0; i < 50; i++ {
		s.Submit(rt(fmt.Sprintf("r%02d", i), 4))
	}
	for i := 0; i < 50; i++ {
		got, ok := s.DispatchOne()
		if !ok {
			t.Fatalf("dispatch %d: empty", i)
		}
		if want := fmt.Sprintf("r%02d", i); got.ID != want {
			t.Fatalf("dispatch %d: expected %s, got %s", i, want, got.ID)
		}
	}
	checkCounters(t, s)
}

func TestScheduler_HigherPriorityArrivalPreempts(t *testing.T) {
	s := New(nil)
	s.Submit(be("be-1"))
	s.Submit(be("be-2"))
	first, _ := s.DispatchOne()
	s.Submit(rt("rt-late", 7))
	second, _ := s.DispatchOne()
	third, _ := s.DispatchOne()

	if first.ID != "be-1" || second.ID != "rt-late" || third.ID != "be-2" {
		t.Fatalf("unexpected order %s %s %s", first.ID, second.ID, third.ID)
	}
}

func TestScheduler_AbsorbAdjacentRealTime(t *testing.T) {
	t.Log("===== TEST: absorb B into A on RT3 =====")

	s := New(nil)
	a := rt("A", 3)
	b := rt("B", 3)
	s.Submit(a)
	s.Submit(b)

	s.Absorb(a, b)
	if _, ok := s.QueueOf(b); ok {
		t.Fatalf("B still resident after absorb")
	}
	got, ok := s.DispatchOne()
	if !ok || got != a {
		t.Fatalf("expected A, got %v", got)
	}
	if r, ok := s.DispatchOne(); ok {
		t.Fatalf("expected queue 3 drained, got %s", r.ID)
	}

	q3 := s.Snapshot().Queues[3]
	if q3.Enqueued != 2 || q3.Dequeued != 2 || q3.Backlog != 0 {
		t.Fatalf("rt3 counters: %+v", q3)
	}
}

func TestScheduler_AbsorbInteriorAndHead(t *testing.T) {
	s := New(nil)
	reqs := []*Request{be("a"), be("b"), be("c"), be("d")}
	for _, r := range reqs {
		s.Submit(r)
	}

	s.Absorb(reqs[0], reqs[2]) // interior
	if next, _ := s.Successor(reqs[1]); next != reqs[3] {
		t.Fatalf("expected b -> d after removing c, got %v", next)
	}
	s.Absorb(reqs[1], reqs[0]) // head
	if prev, ok := s.Predecessor(reqs[1]); ok {
		t.Fatalf("b should now be head, predecessor %s", prev.ID)
	}
	s.Absorb(reqs[1], reqs[3]) // tail
	if next, ok := s.Successor(reqs[1]); ok {
		t.Fatalf("b should now be tail, successor %s", next.ID)
	}
	checkCounters(t, s)

	got, _ := s.DispatchOne()
	if got != reqs[1] {
		t.Fatalf("expected b, got %s", got.ID)
	}
}

func TestScheduler_AbsorbNotResidentIsNoop(t *testing.T) {
	s := New(nil)
	a := rt("A", 1)
	b := rt("B", 1)
	s.Submit(a)
	s.Submit(b)
	s.Absorb(a, b)
	s.Absorb(a, b) // already merged
	before := s.Snapshot().Queues[1]

	stranger := rt("never-submitted", 1)
	s.Absorb(a, stranger)

	dispatched, _ := s.DispatchOne()
	s.Absorb(nil, dispatched) // already dispatched
	s.Absorb(a, nil)

	after := s.Snapshot().Queues[1]
	if after.Dequeued != before.Dequeued+1 {
		t.Fatalf("no-op absorbs changed counters: before=%+v after=%+v", before, after)
	}
	checkCounters(t, s)
}

func TestScheduler_AbsorbFromOtherInstanceIsNoop(t *testing.T) {
	s1 := New(nil)
	s2 := New(nil)
	a := be("a")
	b := be("b")
	s1.Submit(a)
	s2.Submit(b)

	s1.Absorb(a, b)
	if _, ok := s2.QueueOf(b); !ok {
		t.Fatalf("request removed from foreign instance")
	}
	if s1.Snapshot().Queues[QueueBestEffort].Dequeued != 0 {
		t.Fatalf("foreign absorb counted as dequeue")
	}
}

func TestScheduler_Neighbors(t *testing.T) {
	s := New(nil)
	a, b, c := idle("a"), idle("b"), idle("c")
	other := be("other")
	s.Submit(a)
	s.Submit(other)
	s.Submit(b)
	s.Submit(c)

	if _, ok := s.Predecessor(a); ok {
		t.Fatalf("head has a predecessor")
	}
	if _, ok := s.Successor(c); ok {
		t.Fatalf("tail has a successor")
	}
	if next, _ := s.Successor(a); next != b {
		t.Fatalf("successor(a) = %v, want b (other queue must not interleave)", next)
	}

	for _, r := range []*Request{a, b, c} {
		if next, ok := s.Successor(r); ok {
			if back, _ := s.Predecessor(next); back != r {
				t.Fatalf("predecessor(successor(%s)) = %v", r.ID, back)
			}
		}
		if prev, ok := s.Predecessor(r); ok {
			if fwd, _ := s.Successor(prev); fwd != r {
				t.Fatalf("successor(predecessor(%s)) = %v", r.ID, fwd)
			}
		}
	}

	if _, ok := s.Successor(other); ok {
		t.Fatalf("lone request has a successor")
	}
	if _, ok := s.Successor(rt("detached", 0)); ok {
		t.Fatalf("detached request has a successor")
	}
}

func TestScheduler_DispatchAllAcrossFiveQueues(t *testing.T) {
	t.Log("===== TEST: dispatch_all over five distinct queues =====")

	s := New(nil)
	s.Submit(rt("rt0", 0))
	s.Submit(rt("rt5", 5))
	s.Submit(rt("rt7", 7))
	s.Submit(be("be"))
	s.Submit(idle("idle"))

	if n := s.DispatchAll(); n != 5 {
		t.Fatalf("DispatchAll returned %d, want 5", n)
	}
	if !s.Empty() {
		t.Fatalf("queues not empty after DispatchAll")
	}
	for _, q := range s.Snapshot().Queues {
		if q.Enqueued != q.Dequeued {
			t.Fatalf("%s: enqueued=%d dequeued=%d", q.Name, q.Enqueued, q.Dequeued)
		}
	}
	if n := s.DispatchAll(); n != 0 {
		t.Fatalf("second DispatchAll returned %d", n)
	}
	s.Shutdown()
}

func TestScheduler_ShutdownWithPendingPanics(t *testing.T) {
	s := New(nil)
	s.Submit(rt("stuck", 2))
	s.Submit(idle("stuck-idle"))

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("Shutdown with pending work did not panic")
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %T is not an error", r)
		}
		if !errors.Is(err, ErrPendingRequests) {
			t.Fatalf("panic %v does not wrap ErrPendingRequests", err)
		}
		var cv *ContractViolationError
		if !errors.As(err, &cv) || cv.Backlog["rt2"] != 1 || cv.Backlog["idle"] != 1 {
			t.Fatalf("unexpected violation %v", err)
		}
		t.Logf("✓ Shutdown panicked: %v", err)
	}()
	s.Shutdown()
}

func TestScheduler_ShutdownEmptyDoesNotPanic(t *testing.T) {
	s := New(nil)
	r := be("x")
	s.Submit(r)
	s.DispatchOne()
	s.Shutdown()
}

func TestScheduler_ResubmitResidentIsNoop(t *testing.T) {
	s := New(nil)
	r := rt("r", 6)
	s.Submit(r)
	if q := s.Submit(r); q != 6 {
		t.Fatalf("resubmit returned queue %d", q)
	}
	if s.Len(6) != 1 || s.Snapshot().Queues[6].Enqueued != 1 {
		t.Fatalf("resubmit duplicated the request")
	}

	// after dispatch the request may be submitted again
	s.DispatchOne()
	s.Submit(r)
	if s.Snapshot().Queues[6].Enqueued != 2 {
		t.Fatalf("resubmit after dispatch not counted")
	}
	checkCounters(t, s)
}

func TestScheduler_CounterIdentityUnderChurn(t *testing.T) {
	s := New(nil)
	src := NewLCG(7)
	var resident []*Request
	for step := 0; step < 2000; step++ {
		switch src.Uint32() % 4 {
		case 0, 1:
			r := &Request{
				ID:  fmt.Sprintf("r%d", step),
				Tag: Tag{Class: Class(src.Uint32() % 5), Level: int(src.Uint32()%12) - 2},
			}
			s.Submit(r)
			resident = append(resident, r)
		case 2:
			s.DispatchOne()
		case 3:
			if len(resident) > 0 {
				victim := resident[int(src.Uint32())%len(resident)]
				s.Absorb(nil, victim)
			}
		}
		if step%97 == 0 {
			checkCounters(t, s)
		}
	}
	s.DispatchAll()
	checkCounters(t, s)
	s.Shutdown()
}

func TestScheduler_StochasticModeLayout(t *testing.T) {
	s := New(&Config{Mode: ModeStochastic, BestEffortQueues: 3, Seed: 11})
	if s.NumQueues() != RealTimeLevels+3+1 {
		t.Fatalf("NumQueues = %d", s.NumQueues())
	}

	s.Submit(idle("idle"))
	for i := 0; i < 30; i++ {
		s.Submit(&Request{ID: fmt.Sprintf("be%d", i), Tag: Tag{Class: ClassBestEffort, Level: 7}})
	}
	s.Submit(rt("rt", 7))

	first, _ := s.DispatchOne()
	if first.ID != "rt" {
		t.Fatalf("expected RT first, got %s", first.ID)
	}
	for i := 0; i < 30; i++ {
		r, _ := s.DispatchOne()
		if r.ID == "idle" {
			t.Fatalf("idle dispatched before best-effort %d", i)
		}
	}
	last, _ := s.DispatchOne()
	if last.ID != "idle" {
		t.Fatalf("expected idle last, got %s", last.ID)
	}
	if s.QueueName(QueueIdle+2) != "idle" || s.QueueName(QueueBestEffort+1) != "be1" {
		t.Fatalf("unexpected names %s %s", s.QueueName(QueueIdle+2), s.QueueName(QueueBestEffort+1))
	}
}
