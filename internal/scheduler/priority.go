package scheduler

import (
	"fmt"
	"strings"
)

// Class is the I/O priority class carried by a request's tag.
type Class int

const (
	ClassNone       Class = iota // no class set, scheduled as best-effort
	ClassRealTime                // RT: levels 0 (highest) through 7
	ClassBestEffort              // BE: default class
	ClassIdle                    // served only when nothing else is pending
)

// String returns the short class name used in logs and config.
func (c Class) String() string {
	switch c {
	case ClassRealTime:
		return "rt"
	case ClassBestEffort:
		return "be"
	case ClassIdle:
		return "idle"
	case ClassNone:
		return "none"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ParseClass maps a textual class to a Class. Unknown names map to ClassNone,
// which the classifiers treat as best-effort.
func ParseClass(s string) Class {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rt", "realtime", "real-time", "real_time":
		return ClassRealTime
	case "be", "besteffort", "best-effort", "best_effort":
		return ClassBestEffort
	case "idle":
		return ClassIdle
	default:
		return ClassNone
	}
}

// Tag is a request's priority classification. Level is only meaningful for
// real-time (and, in stochastic mode, best-effort) requests.
type Tag struct {
	Class Class
	Level int
}

func (t Tag) String() string {
	if t.Class == ClassRealTime {
		return fmt.Sprintf("rt/%d", t.Level)
	}
	return t.Class.String()
}

// QueueIndex identifies one of the scheduler's ordered queues. Lower index
// means higher priority.
type QueueIndex int

const (
	RealTimeLevels = 8 // RT levels 0-7 map to queues 0-7

	QueueBestEffort QueueIndex = RealTimeLevels     // 8
	QueueIdle       QueueIndex = RealTimeLevels + 1 // 9

	DefaultNumQueues = RealTimeLevels + 2 // 10
)

// Classifier maps a tag to a queue index. NumQueues reports how many queues
// the classifier can address; every index it returns is below that.
type Classifier interface {
	Classify(tag Tag) QueueIndex
	NumQueues() int
	QueueName(idx QueueIndex) string
}

// Classify is the strict mapping: RT level clamped into 0-7, idle to 9 and
// everything else (BE, none, unknown) to 8.
func Classify(tag Tag) QueueIndex {
	switch tag.Class {
	case ClassRealTime:
		return QueueIndex(clampLevel(tag.Level))
	case ClassIdle:
		return QueueIdle
	default:
		return QueueBestEffort
	}
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > RealTimeLevels-1 {
		return RealTimeLevels - 1
	}
	return level
}

// StrictClassifier is the default single best-effort queue layout.
type StrictClassifier struct{}

func (StrictClassifier) Classify(tag Tag) QueueIndex { return Classify(tag) }

func (StrictClassifier) NumQueues() int { return DefaultNumQueues }

func (StrictClassifier) QueueName(idx QueueIndex) string {
	switch {
	case idx >= 0 && idx < RealTimeLevels:
		return fmt.Sprintf("rt%d", int(idx))
	case idx == QueueBestEffort:
		return "be"
	case idx == QueueIdle:
		return "idle"
	default:
		return fmt.Sprintf("q%d", int(idx))
	}
}

// Source produces the pseudo-random values used by the stochastic classifier.
type Source interface {
	Uint32() uint32
}

// LCG is the classic rand()-style linear congruential generator, yielding
// 15-bit values. The zero value is seeded with 0.
type LCG struct {
	state uint32
}

// NewLCG returns a generator seeded with seed.
func NewLCG(seed uint32) *LCG {
	return &LCG{state: seed}
}

// Uint32 advances the generator once.
func (g *LCG) Uint32() uint32 {
	g.state = g.state*1103515245 + 12345
	return (g.state >> 16) & 0x7fff
}

// StochasticClassifier spreads best-effort traffic over several sibling
// queues placed between the RT queues and the idle queue. Each best-effort
// classification draws once from the source; lower BE levels are confined
// to a shorter prefix of the siblings so they bias toward earlier queues.
// RT and idle classification is identical to the strict mode.
type StochasticClassifier struct {
	siblings int
	src      Source
}

// NewStochasticClassifier builds a classifier with the given number of
// best-effort sibling queues (minimum 1). A nil source gets an LCG seeded
// with 0.
func NewStochasticClassifier(siblings int, src Source) *StochasticClassifier {
	if siblings < 1 {
		siblings = 1
	}
	if src == nil {
		src = NewLCG(0)
	}
	return &StochasticClassifier{siblings: siblings, src: src}
}

func (c *StochasticClassifier) Classify(tag Tag) QueueIndex {
	switch tag.Class {
	case ClassRealTime:
		return QueueIndex(clampLevel(tag.Level))
	case ClassIdle:
		return c.idle()
	}
	// level 0 may only use the first eighth of the siblings, level 7 all of them
	span := c.siblings * (clampLevel(tag.Level) + 1) / RealTimeLevels
	if span < 1 {
		span = 1
	}
	pick := int(c.src.Uint32() % uint32(span))
	return QueueBestEffort + QueueIndex(pick)
}

func (c *StochasticClassifier) NumQueues() int { return RealTimeLevels + c.siblings + 1 }

func (c *StochasticClassifier) QueueName(idx QueueIndex) string {
	switch {
	case idx >= 0 && idx < RealTimeLevels:
		return fmt.Sprintf("rt%d", int(idx))
	case idx == c.idle():
		return "idle"
	case idx >= QueueBestEffort && idx < c.idle():
		return fmt.Sprintf("be%d", int(idx-QueueBestEffort))
	default:
		return fmt.Sprintf("q%d", int(idx))
	}
}

func (c *StochasticClassifier) idle() QueueIndex {
	return QueueBestEffort + QueueIndex(c.siblings)
}
