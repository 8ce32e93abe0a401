package device

import (
	"errors"
	"testing"

	"github.com/tokligence/tokligence-iosched/internal/scheduler"
)

func TestRegistry_ActivateGetList(t *testing.T) {
	r := NewRegistry(nil)
	for _, name := range []string{"sdb", "sda", "nvme0n1"} {
		if _, err := r.Activate(name); err != nil {
			t.Fatalf("Activate %s: %v", name, err)
		}
	}
	if _, err := r.Activate("sda"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	list := r.List()
	if len(list) != 3 || list[0].Name != "nvme0n1" || list[2].Name != "sdb" {
		t.Fatalf("unexpected order %v", list)
	}

	d, ok := r.Get("sda")
	if !ok {
		t.Fatalf("sda not found by name")
	}
	if byID, ok := r.Get(d.ID); !ok || byID != d {
		t.Fatalf("sda not found by id")
	}
	if _, ok := r.Get("sdz"); ok {
		t.Fatalf("unexpected device")
	}
}

func TestRegistry_DevicesHaveIndependentSchedulers(t *testing.T) {
	r := NewRegistry(&scheduler.Config{Mode: scheduler.ModeStochastic, BestEffortQueues: 2, Seed: 7})
	a, _ := r.Activate("sda")
	b, _ := r.Activate("sdb")

	a.Submit(a.NewRequest(beTag, 0, 1, false))
	snaps := r.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots")
	}
	if snaps[0].TotalBacklog() != 1 || snaps[1].TotalBacklog() != 0 {
		t.Fatalf("counters leaked across devices: %d %d", snaps[0].TotalBacklog(), snaps[1].TotalBacklog())
	}
	if len(snaps[0].Queues) != 11 {
		t.Fatalf("stochastic layout has %d queues, want 11", len(snaps[0].Queues))
	}
	_ = b
	if n := r.Close(); n != 1 {
		t.Fatalf("Close flushed %d, want 1", n)
	}
	if len(r.List()) != 0 {
		t.Fatalf("registry not empty after Close")
	}
}

func TestRegistry_Deactivate(t *testing.T) {
	r := NewRegistry(nil)
	d, _ := r.Activate("sda")
	d.Submit(d.NewRequest(beTag, 0, 1, false))

	if _, err := r.Deactivate("sdq", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	n, err := r.Deactivate(d.ID, true)
	if err != nil || n != 1 {
		t.Fatalf("Deactivate = %d, %v", n, err)
	}
	if d.Active() {
		t.Fatalf("device still active")
	}
	if _, ok := r.Get("sda"); ok {
		t.Fatalf("deactivated device still registered")
	}
}
