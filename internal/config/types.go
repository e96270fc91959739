package config

// Config is the process configuration. It is read from JSON or YAML; unknown
// keys are rejected.
//
// Durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Checkpoint CheckpointConfig `json:"checkpoint"`
	Work       WorkConfig       `json:"work"`

	// Notifier is optional; omitted means disabled.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Debug is optional; omitted means disabled.
	Debug *DebugConfig `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the job pool.
//
// pool_size is applied live on reload; jobs and poll_interval are read once
// at startup.
type SchedulerConfig struct {
	// Jobs is the path of the YAML job manifest. The -jobs flag overrides it.
	Jobs string `json:"jobs,omitempty"`
	// PoolSize is the number of jobs stepped concurrently. Default 4.
	PoolSize int `json:"pool_size,omitempty"`
	// PollInterval paces an idle pool. Default "10ms".
	PollInterval string `json:"poll_interval,omitempty"`
}

// CheckpointConfig selects the resume checkpoint store.
//
// Example:
//
//	"checkpoint": { "driver": "sqlite", "path": "./state/checkpoint.db" }
type CheckpointConfig struct {
	Driver      string `json:"driver,omitempty"` // file (default) | sqlite | none
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// WorkConfig configures the built-in work kinds.
type WorkConfig struct {
	// Root is the directory file and directory jobs operate under.
	Root        string `json:"root,omitempty"`
	HTTPTimeout string `json:"http_timeout,omitempty"`
}

// NotifierConfig controls Telegram run notifications.
type NotifierConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// RatePerSec bounds outgoing messages. Default 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// OnSuccess also reports runs that finished without failures.
	OnSuccess bool `json:"on_success,omitempty"`
}

// DebugConfig controls the status/pprof HTTP server. It is applied live.
//
// Example:
//
//	"debug": { "enabled": true, "addr": "127.0.0.1:6060", "pprof": true }
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:6060
	// Token guards every endpoint (Bearer header or ?token=). Required for a
	// non-loopback addr unless allow_insecure is set.
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}
