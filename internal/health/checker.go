package health

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/tokligence/tokligence-iosched/internal/device"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component represents a system component that can be health-checked.
type Component struct {
	Name string
	Type string // database, device
	CheckResult
}

// Fleet is the set of devices whose backlog is checked.
type Fleet interface {
	Snapshots() []device.Snapshot
}

// Checker performs health checks on system components.
type Checker struct {
	components []Component
	mu         sync.RWMutex

	ledgerDB *sql.DB
	fleet    Fleet

	dbTimeout          time.Duration
	maxDatabaseLatency time.Duration
	backlogWarn        uint64
}

// Config holds health checker configuration.
type Config struct {
	LedgerDB *sql.DB
	Fleet    Fleet

	DBTimeout          time.Duration
	MaxDatabaseLatency time.Duration
	// A device whose total backlog reaches BacklogWarn is degraded (0 disables).
	BacklogWarn uint64
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.DBTimeout == 0 {
		cfg.DBTimeout = 2 * time.Second
	}
	if cfg.MaxDatabaseLatency == 0 {
		cfg.MaxDatabaseLatency = 100 * time.Millisecond
	}

	return &Checker{
		ledgerDB:           cfg.LedgerDB,
		fleet:              cfg.Fleet,
		dbTimeout:          cfg.DBTimeout,
		maxDatabaseLatency: cfg.MaxDatabaseLatency,
		backlogWarn:        cfg.BacklogWarn,
	}
}

// Check performs all health checks and returns overall status.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	components := make([]Component, 0)

	if c.ledgerDB != nil {
		components = append(components, c.checkDatabase(ctx, "snapshot_ledger", c.ledgerDB))
	}
	if c.fleet != nil {
		for _, snap := range c.fleet.Snapshots() {
			components = append(components, c.checkDevice(snap))
		}
	}

	c.mu.Lock()
	c.components = components
	c.mu.Unlock()

	return c.calculateOverallStatus(components)
}

// checkDatabase checks database connectivity and performance.
func (c *Checker) checkDatabase(ctx context.Context, name string, db *sql.DB) Component {
	comp := Component{
		Name: name,
		Type: "database",
		CheckResult: CheckResult{
			Timestamp: time.Now(),
		},
	}

	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, c.dbTimeout)
	defer cancel()

	err := db.PingContext(dbCtx)
	comp.Latency = time.Since(start)

	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "Database unreachable"
		return comp
	}

	if comp.Latency > c.maxDatabaseLatency {
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("High latency: %v", comp.Latency)
	} else {
		comp.Status = StatusHealthy
		comp.Message = "Connected"
	}
	return comp
}

// checkDevice reports a device degraded when its backlog piles up and
// unhealthy once it stopped accepting requests.
func (c *Checker) checkDevice(snap device.Snapshot) Component {
	comp := Component{
		Name: snap.Name,
		Type: "device",
		CheckResult: CheckResult{
			Timestamp: snap.TakenAt,
		},
	}
	backlog := snap.TotalBacklog()
	switch {
	case !snap.Active:
		comp.Status = StatusUnhealthy
		comp.Message = "Deactivated"
	case c.backlogWarn > 0 && backlog >= c.backlogWarn:
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("Backlog %d >= %d", backlog, c.backlogWarn)
	default:
		comp.Status = StatusHealthy
		comp.Message = fmt.Sprintf("Backlog %d", backlog)
	}
	return comp
}

// calculateOverallStatus determines overall health based on component statuses.
func (c *Checker) calculateOverallStatus(components []Component) HealthStatus {
	overallStatus := StatusHealthy
	criticalUnhealthy := false

	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			// Database failures are critical
			if comp.Type == "database" {
				criticalUnhealthy = true
			}
			if overallStatus == StatusHealthy {
				overallStatus = StatusDegraded
			}
		case StatusDegraded:
			if overallStatus == StatusHealthy {
				overallStatus = StatusDegraded
			}
		}
	}

	if criticalUnhealthy {
		overallStatus = StatusUnhealthy
	}

	return HealthStatus{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Components: components,
	}
}

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// GetLastStatus returns the last health check result.
func (c *Checker) GetLastStatus() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.components) == 0 {
		return HealthStatus{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
		}
	}
	return c.calculateOverallStatus(c.components)
}
