package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/iosched.ini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// IoschedConfig describes runtime options for the daemon and CLI.
type IoschedConfig struct {
	Environment string
	// Device queues activated at startup, each with its own scheduler instance
	Devices []string
	// Best-effort layout: strict (single queue) or stochastic (sibling queues)
	BestEffortMode   string
	BestEffortQueues int
	StochasticSeed   int64
	// Snapshot reporting
	ReportInterval time.Duration
	ReportBurst    int
	// Snapshot ledger target: file path (SQLite) or postgres:// DSN
	SnapshotStore         string
	SnapshotBatchSize     int
	SnapshotFlushInterval time.Duration
	// Postgres pool tuning (ignored for SQLite)
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime int // minutes
	DBConnMaxIdleTime int // minutes
	// Admin HTTP server
	AdminAddress string
	// Backlog above which a device is reported degraded by /healthz
	BacklogWarn int
	// Logging
	LogFile  string
	LogLevel string
}

// LoadIoschedConfig reads the current environment and loads the appropriate config file.
func LoadIoschedConfig(root string) (IoschedConfig, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return IoschedConfig{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return IoschedConfig{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := IoschedConfig{
		Environment:       s.Environment,
		Devices:           parseCSV(firstNonEmpty(os.Getenv("IOSCHED_DEVICES"), merged["devices"], "sda")),
		BestEffortMode:    strings.ToLower(strings.TrimSpace(firstNonEmpty(os.Getenv("IOSCHED_BEST_EFFORT_MODE"), merged["best_effort_mode"], "strict"))),
		BestEffortQueues:  parseOptionalInt(firstNonEmpty(os.Getenv("IOSCHED_BEST_EFFORT_QUEUES"), merged["best_effort_queues"]), 4),
		ReportBurst:       parseOptionalInt(firstNonEmpty(os.Getenv("IOSCHED_REPORT_BURST"), merged["report_burst"]), 1),
		SnapshotStore:     firstNonEmpty(os.Getenv("IOSCHED_SNAPSHOT_STORE"), merged["snapshot_store"], DefaultSnapshotPath()),
		SnapshotBatchSize: parseOptionalInt(firstNonEmpty(os.Getenv("IOSCHED_SNAPSHOT_BATCH_SIZE"), merged["snapshot_batch_size"]), 100),
		DBMaxOpenConns:    parseOptionalInt(merged["db_max_open_conns"], 10),
		DBMaxIdleConns:    parseOptionalInt(merged["db_max_idle_conns"], 5),
		DBConnMaxLifetime: parseOptionalInt(merged["db_conn_max_lifetime"], 60),
		DBConnMaxIdleTime: parseOptionalInt(merged["db_conn_max_idle_time"], 10),
		AdminAddress:      firstNonEmpty(os.Getenv("IOSCHED_ADMIN_ADDRESS"), merged["admin_address"], ":8089"),
		BacklogWarn:       parseOptionalInt(merged["backlog_warn"], 10000),
		LogFile:           firstNonEmpty(os.Getenv("IOSCHED_LOG_FILE"), merged["log_file"]),
		LogLevel:          firstNonEmpty(os.Getenv("IOSCHED_LOG_LEVEL"), merged["log_level"], "info"),
	}
	if len(cfg.Devices) == 0 {
		return IoschedConfig{}, errors.New("devices must list at least one device")
	}

	switch cfg.BestEffortMode {
	case "strict", "stochastic":
		// valid
	default:
		return IoschedConfig{}, fmt.Errorf("invalid best_effort_mode %q (want strict|stochastic)", cfg.BestEffortMode)
	}

	if v := firstNonEmpty(os.Getenv("IOSCHED_STOCHASTIC_SEED"), merged["stochastic_seed"]); strings.TrimSpace(v) != "" {
		seed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return IoschedConfig{}, fmt.Errorf("invalid stochastic_seed %q: %w", v, err)
		}
		cfg.StochasticSeed = seed
	}

	cfg.ReportInterval, err = parseDuration(firstNonEmpty(os.Getenv("IOSCHED_REPORT_INTERVAL"), merged["report_interval"]), 10*time.Second)
	if err != nil {
		return IoschedConfig{}, fmt.Errorf("invalid report_interval: %w", err)
	}
	cfg.SnapshotFlushInterval, err = parseDuration(firstNonEmpty(os.Getenv("IOSCHED_SNAPSHOT_FLUSH_INTERVAL"), merged["snapshot_flush_interval"]), time.Second)
	if err != nil {
		return IoschedConfig{}, fmt.Errorf("invalid snapshot_flush_interval: %w", err)
	}
	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "[") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = strings.TrimSpace(val)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseDuration(v string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", v)
	}
	return d, nil
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseCSV(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// IsPostgresDSN reports whether a snapshot_store value names a Postgres database.
func IsPostgresDSN(target string) bool {
	return strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://")
}

// DefaultSnapshotPath returns the fallback snapshot ledger location under the user's home directory.
func DefaultSnapshotPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "snapshots.db"
	}
	return filepath.Join(home, ".iosched", "snapshots.db")
}
