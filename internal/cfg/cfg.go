// Package cfg defines the collector daemon's configuration, following the
// teacher's flag.FlagSet + go-core/cfg env-fill convention.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Config holds cmd/sentineld's configuration.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	LockPath              string
	TickIntervalSeconds   int
	LockWaitSeconds       int
	AdminToken            string
	NotifierPlugins       string // name=cwd:command, comma-separated
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.LockPath, "lock-path", "/tmp/sentinel.lock", "path to the supervisor's cross-process lock file")
	fs.IntVar(&c.TickIntervalSeconds, "tick-interval-seconds", 5, "seconds between supervisor ticks")
	fs.IntVar(&c.LockWaitSeconds, "lock-wait-seconds", 2, "bounded wait for supervisor lock acquisition")
	fs.StringVar(&c.AdminToken, "admin-token", "", "bearer token required for administrative delete endpoints (empty disables them)")
	fs.StringVar(&c.NotifierPlugins, "notifier-plugins", "", "comma-separated name=cwd:command notifier plugin definitions")
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}
	if c.TickIntervalSeconds <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL_SECONDS must be positive"))
	}
	if c.LockWaitSeconds <= 0 {
		errs = append(errs, errors.New("LOCK_WAIT_SECONDS must be positive"))
	}
	if c.LockPath == "" {
		errs = append(errs, errors.New("LOCK_PATH is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ParseNotifierPlugins parses the NotifierPlugins flag value into
// notify.Plugin-shaped tuples: "name=cwd:command,name2=cwd2:command2".
func ParseNotifierPlugins(raw string) ([]NotifierPluginSpec, error) {
	if raw == "" {
		return nil, nil
	}

	var specs []NotifierPluginSpec
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid notifier plugin spec %q: missing '='", entry)
		}
		cwd, command, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("invalid notifier plugin spec %q: missing ':'", entry)
		}
		specs = append(specs, NotifierPluginSpec{Name: name, Cwd: cwd, Command: command})
	}
	return specs, nil
}

// NotifierPluginSpec is one parsed entry of -notifier-plugins.
type NotifierPluginSpec struct {
	Name, Cwd, Command string
}
