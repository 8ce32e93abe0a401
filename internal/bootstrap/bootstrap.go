package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tokligence/tokligence-iosched/internal/config"
	"github.com/tokligence/tokligence-iosched/internal/scheduler"
)

// InitOptions configures the bootstrap process for generating config files.
type InitOptions struct {
	Root             string
	Environment      string
	Devices          []string
	BestEffortMode   string
	BestEffortQueues int
	SnapshotStore    string
	AdminAddress     string
	Force            bool
}

// Init scaffolds setting.ini and the environment's iosched.ini.
func Init(opts InitOptions) error {
	applyDefaults(&opts)
	if err := Validate(opts); err != nil {
		return err
	}
	if err := ensureDir(filepath.Join(opts.Root, "config", opts.Environment)); err != nil {
		return err
	}

	settingPath := filepath.Join(opts.Root, "config", "setting.ini")
	if err := writeFile(settingPath, settingTemplate(opts), opts.Force); err != nil {
		return err
	}

	envPath := filepath.Join(opts.Root, "config", opts.Environment, "iosched.ini")
	if err := writeFile(envPath, ioschedTemplate(opts), opts.Force); err != nil {
		return err
	}
	return nil
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if len(opts.Devices) == 0 {
		opts.Devices = []string{"sda"}
	}
	if strings.TrimSpace(opts.BestEffortMode) == "" {
		opts.BestEffortMode = string(scheduler.ModeStrict)
	}
	if opts.BestEffortQueues <= 0 {
		opts.BestEffortQueues = scheduler.DefaultConfig().BestEffortQueues
	}
	if strings.TrimSpace(opts.SnapshotStore) == "" {
		opts.SnapshotStore = config.DefaultSnapshotPath()
	}
	if strings.TrimSpace(opts.AdminAddress) == "" {
		opts.AdminAddress = ":8089"
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# iosched settings
environment=%s
log_level=info
`, opts.Environment)
}

func ioschedTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Environment specific overrides for %s
[scheduler]
devices=%s
best_effort_mode=%s
best_effort_queues=%d
stochastic_seed=1

[reporting]
report_interval=10s
report_burst=1
backlog_warn=10000
# SQLite path or postgres:// DSN
snapshot_store=%s
snapshot_batch_size=100
snapshot_flush_interval=1s

[daemon]
admin_address=%s
# Dash '-' disables file output.
log_file=logs/ioschedd.log
`, opts.Environment, strings.Join(opts.Devices, ","), opts.BestEffortMode, opts.BestEffortQueues,
		opts.SnapshotStore, opts.AdminAddress)
}

// Validate ensures the options describe a loadable config without modifying files.
func Validate(opts InitOptions) error {
	applyDefaults(&opts)
	for _, d := range opts.Devices {
		if strings.TrimSpace(d) == "" || strings.ContainsAny(d, ", ") {
			return fmt.Errorf("invalid device name %q", d)
		}
	}
	switch opts.BestEffortMode {
	case string(scheduler.ModeStrict), string(scheduler.ModeStochastic):
	default:
		return fmt.Errorf("invalid best_effort_mode %q (want strict|stochastic)", opts.BestEffortMode)
	}
	if opts.BestEffortQueues > 64 {
		return fmt.Errorf("invalid best_effort_queues %d (want 1-64)", opts.BestEffortQueues)
	}
	return nil
}
