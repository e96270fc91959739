package config

import (
	"strings"

	logx "dagrun/pkg/logx"
)

// Change describes what a reload touched.
type Change struct {
	// Sections lists changed top-level sections.
	Sections []string
	// Fields are safe log attributes (never tokens).
	Fields []logx.Field
	// RestartRequired lists changed keys that only take effect on restart.
	RestartRequired []string
}

// Diff compares two configs. Either may be nil.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change

	if oldCfg.Logging != newCfg.Logging {
		c.Sections = append(c.Sections, "logging")
		c.Fields = append(c.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	ps, ns := oldCfg.Scheduler, newCfg.Scheduler
	if ps != ns {
		c.Sections = append(c.Sections, "scheduler")
		c.Fields = append(c.Fields,
			logx.Int("scheduler.pool_size", ns.PoolSizeOrDefault()),
			logx.Duration("scheduler.poll_interval", ns.PollIntervalOrDefault()),
		)
		if strings.TrimSpace(ps.Jobs) != strings.TrimSpace(ns.Jobs) {
			c.RestartRequired = append(c.RestartRequired, "scheduler.jobs")
		}
		if ps.PollIntervalOrDefault() != ns.PollIntervalOrDefault() {
			c.RestartRequired = append(c.RestartRequired, "scheduler.poll_interval")
		}
	}

	if oldCfg.Checkpoint != newCfg.Checkpoint {
		c.Sections = append(c.Sections, "checkpoint")
		c.Fields = append(c.Fields, logx.String("checkpoint.driver", newCfg.Checkpoint.DriverOrDefault()))
		c.RestartRequired = append(c.RestartRequired, "checkpoint")
	}

	if oldCfg.Work != newCfg.Work {
		c.Sections = append(c.Sections, "work")
		c.RestartRequired = append(c.RestartRequired, "work")
	}

	on, nn := derefNotifier(oldCfg.Notifier), derefNotifier(newCfg.Notifier)
	if on != nn {
		c.Sections = append(c.Sections, "notifier")
		c.Fields = append(c.Fields,
			logx.Bool("notifier.enabled", nn.Enabled),
			logx.Bool("notifier.token_set", strings.TrimSpace(nn.Token) != ""),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
		)
		c.RestartRequired = append(c.RestartRequired, "notifier")
	}

	od, nd := derefDebug(oldCfg.Debug), derefDebug(newCfg.Debug)
	if od != nd {
		c.Sections = append(c.Sections, "debug")
		c.Fields = append(c.Fields,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", nd.AddrOrDefault()),
			logx.Bool("debug.pprof", nd.Pprof),
		)
	}
	return c
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool { return len(c.Sections) == 0 }

func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{}
	}
	return *n
}

func derefDebug(d *DebugConfig) DebugConfig {
	if d == nil {
		return DebugConfig{}
	}
	return *d
}
