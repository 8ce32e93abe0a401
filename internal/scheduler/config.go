package scheduler

import (
	"fmt"
	"log"
	"strings"
)

// Mode selects how best-effort traffic is laid out across queues.
type Mode string

const (
	ModeStrict     Mode = "strict"     // one best-effort queue (default)
	ModeStochastic Mode = "stochastic" // best-effort spread over sibling queues
)

// Config holds the scheduler configuration.
type Config struct {
	Mode             Mode        // Best-effort layout (default: strict)
	BestEffortQueues int         // Sibling BE queues in stochastic mode (default: 4)
	Seed             uint32      // LCG seed for stochastic mode
	Logger           *log.Logger // Optional debug logger; nil disables hot-path logging

	// Classifier overrides Mode when set. A stateful classifier must not be
	// shared between scheduler instances.
	Classifier Classifier
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Mode:             ModeStrict,
		BestEffortQueues: 4,
	}
}

// classifier builds a fresh classifier for one scheduler instance.
func (c *Config) classifier() Classifier {
	if c.Classifier != nil {
		return c.Classifier
	}
	if c.Mode == ModeStochastic {
		return NewStochasticClassifier(c.BestEffortQueues, NewLCG(c.Seed))
	}
	return StrictClassifier{}
}

// ConfigFromSettings converts flat daemon settings to a scheduler Config.
func ConfigFromSettings(mode string, bestEffortQueues int, seed int64, logger *log.Logger) (*Config, error) {
	config := DefaultConfig()
	config.Mode = ModeFromString(mode)
	config.Logger = logger

	if config.Mode == ModeStochastic {
		if bestEffortQueues < 1 || bestEffortQueues > 64 {
			return nil, fmt.Errorf("invalid best_effort_queues %d (want 1-64)", bestEffortQueues)
		}
		config.BestEffortQueues = bestEffortQueues
		if seed < 0 || seed > int64(^uint32(0)) {
			return nil, fmt.Errorf("invalid stochastic_seed %d", seed)
		}
		config.Seed = uint32(seed)
		log.Printf("[INFO] Scheduler: Stochastic best-effort mode with %d sibling queues (seed=%d)",
			config.BestEffortQueues, config.Seed)
	}

	return config, nil
}

// ModeFromString converts a mode string to Mode
func ModeFromString(modeStr string) Mode {
	switch strings.ToLower(strings.TrimSpace(modeStr)) {
	case "", "strict":
		return ModeStrict
	case "stochastic", "random":
		return ModeStochastic
	default:
		log.Printf("[WARN] Scheduler: Unknown best-effort mode %q, defaulting to strict", modeStr)
		return ModeStrict
	}
}
