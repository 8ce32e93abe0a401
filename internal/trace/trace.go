package trace

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tokligence/tokligence-iosched/internal/device"
	"github.com/tokligence/tokligence-iosched/internal/scheduler"
)

// Op kinds understood by Replay.
const (
	OpSubmit      = "submit"
	OpDispatch    = "dispatch"
	OpDispatchAll = "dispatch_all"
	OpMerge       = "merge"    // fold one resident request into another
	OpCoalesce    = "coalesce" // try a sector-contiguous merge with a neighbour
)

// Op is one step of a workload trace.
type Op struct {
	Op      string `yaml:"op"`
	ID      string `yaml:"id,omitempty"`
	Class   string `yaml:"class,omitempty"`
	Level   int    `yaml:"level,omitempty"`
	Sector  uint64 `yaml:"sector,omitempty"`
	Sectors uint32 `yaml:"sectors,omitempty"`
	Write   bool   `yaml:"write,omitempty"`
	Count   int    `yaml:"count,omitempty"`
	Into    string `yaml:"into,omitempty"`
	Absorb  string `yaml:"absorb,omitempty"`
}

// Trace is a workload replayed against a single fresh device.
type Trace struct {
	Device           string   `yaml:"device"`
	Mode             string   `yaml:"mode"`
	BestEffortQueues int      `yaml:"best_effort_queues"`
	Seed             int64    `yaml:"seed"`
	Ops              []Op     `yaml:"ops"`
	Expect           []string `yaml:"expect,omitempty"`
}

// Result is what a replay observed.
type Result struct {
	Device     string          `json:"device"`
	Dispatched []string        `json:"dispatched"`
	Flushed    []string        `json:"flushed"`
	Merged     []string        `json:"merged"`
	Final      device.Snapshot `json:"final"`
}

// ErrUnexpectedOrder is returned when the dispatch order differs from the
// trace's expect list.
var ErrUnexpectedOrder = errors.New("dispatch order does not match expectation")

// Load reads a trace from a YAML file.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trace file %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a YAML trace.
func Parse(data []byte) (*Trace, error) {
	var t Trace
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if t.Device == "" {
		t.Device = "trace0"
	}
	seen := make(map[string]bool)
	for i, op := range t.Ops {
		switch op.Op {
		case OpSubmit:
			if op.ID == "" {
				return nil, fmt.Errorf("op %d: submit requires id", i)
			}
			if seen[op.ID] {
				return nil, fmt.Errorf("op %d: duplicate request id %q", i, op.ID)
			}
			seen[op.ID] = true
		case OpDispatch, OpDispatchAll:
		case OpMerge:
			if op.Into == "" || op.Absorb == "" {
				return nil, fmt.Errorf("op %d: merge requires into and absorb", i)
			}
		case OpCoalesce:
			if op.ID == "" {
				return nil, fmt.Errorf("op %d: coalesce requires id", i)
			}
		default:
			return nil, fmt.Errorf("op %d: unknown op %q", i, op.Op)
		}
	}
	return &t, nil
}

// Replay runs the trace against a fresh device and tears it down afterwards.
// Requests still queued at the end are flushed and reported in Flushed.
func Replay(t *Trace, logger *log.Logger) (*Result, error) {
	cfg, err := scheduler.ConfigFromSettings(t.Mode, t.BestEffortQueues, t.Seed, logger)
	if err != nil {
		return nil, err
	}
	d := device.New(t.Device, cfg)
	reqs := make(map[string]*scheduler.Request)
	res := &Result{Device: t.Device}

	dispatch := func() bool {
		req, ok := d.Dispatch()
		if ok {
			res.Dispatched = append(res.Dispatched, req.ID)
		}
		return ok
	}

	for i, op := range t.Ops {
		switch op.Op {
		case OpSubmit:
			sectors := op.Sectors
			if sectors == 0 {
				sectors = 1
			}
			req := d.NewRequest(scheduler.Tag{Class: scheduler.ParseClass(op.Class), Level: op.Level}, op.Sector, sectors, op.Write)
			req.ID = op.ID
			reqs[op.ID] = req
			if _, err := d.Submit(req); err != nil {
				return nil, fmt.Errorf("op %d: %w", i, err)
			}
		case OpDispatch:
			n := op.Count
			if n <= 0 {
				n = 1
			}
			for j := 0; j < n && dispatch(); j++ {
			}
		case OpDispatchAll:
			for dispatch() {
			}
		case OpMerge:
			into, absorbed := reqs[op.Into], reqs[op.Absorb]
			if into == nil || absorbed == nil {
				return nil, fmt.Errorf("op %d: merge references unknown request", i)
			}
			if err := d.Absorb(into, absorbed); err != nil {
				return nil, fmt.Errorf("op %d: merge %s into %s: %w", i, op.Absorb, op.Into, err)
			}
			res.Merged = append(res.Merged, op.Absorb)
		case OpCoalesce:
			req := reqs[op.ID]
			if req == nil {
				return nil, fmt.Errorf("op %d: coalesce references unknown request %q", i, op.ID)
			}
			absorbed, err := d.Merge(req)
			if err != nil {
				return nil, fmt.Errorf("op %d: coalesce %s: %w", i, op.ID, err)
			}
			if absorbed != nil {
				res.Merged = append(res.Merged, absorbed.ID)
			}
		}
	}

	res.Final = d.Snapshot()
	for {
		req, ok := d.Dispatch()
		if !ok {
			break
		}
		res.Flushed = append(res.Flushed, req.ID)
	}
	d.Deactivate()

	if len(t.Expect) > 0 && !slices.Equal(t.Expect, res.Dispatched) {
		return res, fmt.Errorf("%w: got [%s], want [%s]", ErrUnexpectedOrder,
			strings.Join(res.Dispatched, " "), strings.Join(t.Expect, " "))
	}
	return res, nil
}
