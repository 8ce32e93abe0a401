package scheduler

import (
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		tag  Tag
		want QueueIndex
	}{
		{"rt level 0", Tag{ClassRealTime, 0}, 0},
		{"rt level 3", Tag{ClassRealTime, 3}, 3},
		{"rt level 7", Tag{ClassRealTime, 7}, 7},
		{"rt level -1 clamps to 0", Tag{ClassRealTime, -1}, 0},
		{"rt level 9 clamps to 7", Tag{ClassRealTime, 9}, 7},
		{"rt huge level", Tag{ClassRealTime, 1 << 30}, 7},
		{"best effort", Tag{ClassBestEffort, 0}, QueueBestEffort},
		{"best effort ignores level", Tag{ClassBestEffort, 2}, QueueBestEffort},
		{"none degrades to best effort", Tag{ClassNone, 0}, QueueBestEffort},
		{"unknown degrades to best effort", Tag{Class(42), 1}, QueueBestEffort},
		{"idle", Tag{ClassIdle, 5}, QueueIdle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.tag); got != tc.want {
				t.Fatalf("Classify(%v) = %d, want %d", tc.tag, got, tc.want)
			}
		})
	}
}

func TestClassify_RealTimeRoundTrip(t *testing.T) {
	s := New(nil)
	for level := 0; level < RealTimeLevels; level++ {
		r := rt("r", level)
		if q := s.Submit(r); q != QueueIndex(level) {
			t.Fatalf("level %d landed in queue %d", level, q)
		}
		if q, ok := s.QueueOf(r); !ok || q != QueueIndex(level) {
			t.Fatalf("QueueOf level %d = %d %v", level, q, ok)
		}
		// the recorded queue always matches what the tag recomputes to
		if q, _ := s.QueueOf(r); q != Classify(r.Tag) {
			t.Fatalf("recorded queue %d != Classify %d", q, Classify(r.Tag))
		}
		s.DispatchOne()
	}
}

func TestParseClass(t *testing.T) {
	cases := map[string]Class{
		"rt":          ClassRealTime,
		"RealTime":    ClassRealTime,
		"be":          ClassBestEffort,
		"best-effort": ClassBestEffort,
		" idle ":      ClassIdle,
		"":            ClassNone,
		"bogus":       ClassNone,
	}
	for in, want := range cases {
		if got := ParseClass(in); got != want {
			t.Errorf("ParseClass(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStrictClassifier_QueueNames(t *testing.T) {
	var c StrictClassifier
	if c.NumQueues() != 10 {
		t.Fatalf("NumQueues = %d", c.NumQueues())
	}
	want := []string{"rt0", "rt1", "rt2", "rt3", "rt4", "rt5", "rt6", "rt7", "be", "idle"}
	for i, name := range want {
		if got := c.QueueName(QueueIndex(i)); got != name {
			t.Errorf("QueueName(%d) = %s, want %s", i, got, name)
		}
	}
}

func TestLCG_Deterministic(t *testing.T) {
	a, b := NewLCG(99), NewLCG(99)
	for i := 0; i < 100; i++ {
		x, y := a.Uint32(), b.Uint32()
		if x != y {
			t.Fatalf("step %d: %d != %d", i, x, y)
		}
		if x > 0x7fff {
			t.Fatalf("step %d: %d exceeds 15 bits", i, x)
		}
	}
	// first value for seed 1 matches the classic rand() sequence
	if v := NewLCG(1).Uint32(); v != 16838 {
		t.Fatalf("seed 1 first value = %d, want 16838", v)
	}
}

type fixedSource []uint32

func (f *fixedSource) Uint32() uint32 {
	v := (*f)[0]
	*f = (*f)[1:]
	return v
}

func TestStochasticClassifier(t *testing.T) {
	src := &fixedSource{5, 5, 5, 0}
	c := NewStochasticClassifier(8, src)

	if c.NumQueues() != 17 {
		t.Fatalf("NumQueues = %d", c.NumQueues())
	}
	// level 7 may use all eight siblings: 5 % 8
	if q := c.Classify(Tag{ClassBestEffort, 7}); q != QueueBestEffort+5 {
		t.Fatalf("level 7 -> %d", q)
	}
	// level 3 is confined to the first four: 5 % 4
	if q := c.Classify(Tag{ClassBestEffort, 3}); q != QueueBestEffort+1 {
		t.Fatalf("level 3 -> %d", q)
	}
	// level 0 only ever uses the first sibling
	if q := c.Classify(Tag{ClassNone, 0}); q != QueueBestEffort {
		t.Fatalf("level 0 -> %d", q)
	}
	// RT and idle never draw from the source
	if q := c.Classify(Tag{ClassRealTime, 12}); q != 7 {
		t.Fatalf("rt -> %d", q)
	}
	if q := c.Classify(Tag{ClassIdle, 0}); q != 16 {
		t.Fatalf("idle -> %d", q)
	}
	if len(*src) != 1 {
		t.Fatalf("expected exactly three draws, %d values left", len(*src))
	}
}

func TestStochasticClassifier_SameSeedSameLayout(t *testing.T) {
	c1 := NewStochasticClassifier(4, NewLCG(3))
	c2 := NewStochasticClassifier(4, NewLCG(3))
	seen := map[QueueIndex]int{}
	for i := 0; i < 200; i++ {
		tag := Tag{ClassBestEffort, i % 8}
		q1, q2 := c1.Classify(tag), c2.Classify(tag)
		if q1 != q2 {
			t.Fatalf("draw %d diverged: %d vs %d", i, q1, q2)
		}
		if q1 < QueueBestEffort || q1 >= QueueBestEffort+4 {
			t.Fatalf("draw %d out of range: %d", i, q1)
		}
		seen[q1]++
	}
	if len(seen) < 2 {
		t.Fatalf("stochastic classifier never spread traffic: %v", seen)
	}
}
