package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	DefaultPoolSize       = 4
	DefaultPollInterval   = 10 * time.Millisecond
	DefaultCheckpointPath = "./state/checkpoint.json"
	DefaultWorkRoot       = "./workdir"
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultBusyTimeout    = 5 * time.Second
	DefaultDebugAddr      = "127.0.0.1:6060"
)

// Validate rejects values that would fail later at startup or on reload.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if cfg.Scheduler.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("scheduler.pool_size must be >= 0 (got %d)", cfg.Scheduler.PoolSize))
	}
	for path, raw := range map[string]string{
		"scheduler.poll_interval": cfg.Scheduler.PollInterval,
		"checkpoint.busy_timeout": cfg.Checkpoint.BusyTimeout,
		"work.http_timeout":       cfg.Work.HTTPTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Checkpoint.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3", "none":
	default:
		errs = append(errs, fmt.Errorf("checkpoint.driver: unknown driver %q", cfg.Checkpoint.Driver))
	}
	if n := cfg.Notifier; n != nil && n.Enabled {
		if strings.TrimSpace(n.Token) == "" {
			errs = append(errs, errors.New("notifier.token required when enabled"))
		}
		if n.ChatID == 0 {
			errs = append(errs, errors.New("notifier.chat_id required when enabled"))
		}
		if n.RatePerSec < 0 {
			errs = append(errs, errors.New("notifier.rate_per_sec must be >= 0"))
		}
	}
	if d := cfg.Debug; d != nil && d.Enabled {
		if _, _, err := net.SplitHostPort(d.AddrOrDefault()); err != nil {
			errs = append(errs, fmt.Errorf("debug.addr: %w", err))
		}
	}
	return errors.Join(errs...)
}

// PoolSizeOrDefault returns the configured pool size or the default.
func (c SchedulerConfig) PoolSizeOrDefault() int {
	if c.PoolSize <= 0 {
		return DefaultPoolSize
	}
	return c.PoolSize
}

func (c SchedulerConfig) PollIntervalOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("scheduler.poll_interval", c.PollInterval, DefaultPollInterval)
	if err != nil {
		return DefaultPollInterval
	}
	return d
}

// DriverOrDefault returns the checkpoint driver, "file" when unset.
func (c CheckpointConfig) DriverOrDefault() string {
	if d := strings.ToLower(strings.TrimSpace(c.Driver)); d != "" {
		return d
	}
	return "file"
}

func (c CheckpointConfig) PathOrDefault() string {
	if p := strings.TrimSpace(c.Path); p != "" {
		return p
	}
	if c.DriverOrDefault() == "sqlite" || c.DriverOrDefault() == "sqlite3" {
		return "./state/checkpoint.db"
	}
	return DefaultCheckpointPath
}

func (c CheckpointConfig) BusyTimeoutOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("checkpoint.busy_timeout", c.BusyTimeout, DefaultBusyTimeout)
	if err != nil {
		return DefaultBusyTimeout
	}
	return d
}

func (c WorkConfig) RootOrDefault() string {
	if r := strings.TrimSpace(c.Root); r != "" {
		return r
	}
	return DefaultWorkRoot
}

func (c WorkConfig) HTTPTimeoutOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("work.http_timeout", c.HTTPTimeout, DefaultHTTPTimeout)
	if err != nil {
		return DefaultHTTPTimeout
	}
	return d
}

// ParseDurationField parses a non-negative duration. Empty means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with zero replaced by def.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// AddrOrDefault returns the debug listen address or the default.
func (c DebugConfig) AddrOrDefault() string {
	if a := strings.TrimSpace(c.Addr); a != "" {
		return a
	}
	return DefaultDebugAddr
}
