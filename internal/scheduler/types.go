package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPoolSize is returned for a pool capacity below 1.
	ErrInvalidPoolSize = errors.New("scheduler: pool size must be > 0")
	// ErrDuplicateName is returned when two distinct jobs share a name.
	// Names key the resume checkpoint, so they must be unique.
	ErrDuplicateName = errors.New("scheduler: duplicate job name")
	// ErrUnnamedJob is returned for a job with an empty name.
	ErrUnnamedJob = errors.New("scheduler: job name is required")
	// ErrInvalidName is returned for a name with leading or trailing spaces.
	ErrInvalidName = errors.New("scheduler: job name has surrounding whitespace")
	// ErrRunning is returned when Run is entered twice concurrently.
	ErrRunning = errors.New("scheduler: already running")
)

const defaultPollInterval = 10 * time.Millisecond

// Config controls the scheduler.
type Config struct {
	// PoolSize is the number of jobs stepped concurrently. Must be > 0.
	PoolSize int
	// PollInterval paces the loop when a full round-robin pass made no
	// progress (all pooled jobs waiting on their start gate or on work).
	// 0 selects a default of 10ms.
	PollInterval time.Duration
}

// Event types published on the bus.
const (
	EventAdmitted  = "job.admitted"
	EventStarted   = "job.started"
	EventRetry     = "job.retry"
	EventSucceeded = "job.succeeded"
	EventFailed    = "job.failed"
	EventSkipped   = "job.skipped"
	EventFinished  = "run.finished"
)

// JobEvent is the payload of job.* events.
type JobEvent struct {
	Run       string        `json:"run"`
	Name      string        `json:"name"`
	Attempt   int           `json:"attempt,omitempty"`
	TriesLeft int           `json:"tries_left,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
	// Cause names the failed prerequisite when a job was failed by cascade.
	Cause string `json:"cause,omitempty"`
}

// Report summarizes a Run. It is also the payload of run.finished.
type Report struct {
	RunID     string        `json:"run_id"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Succeeded []string      `json:"succeeded"`
	Failed    []string      `json:"failed"`
	// Skipped jobs were listed in the checkpoint and not executed.
	Skipped []string `json:"skipped,omitempty"`
	// Pending jobs were still in the graph when the run stopped.
	Pending     []string `json:"pending,omitempty"`
	Interrupted bool     `json:"interrupted,omitempty"`
}

// OK reports whether every job either succeeded or was skipped.
func (r Report) OK() bool {
	return len(r.Failed) == 0 && len(r.Pending) == 0 && !r.Interrupted
}

// Summary renders a one-line count of the report.
func (r Report) Summary() string {
	state := "finished"
	switch {
	case r.Interrupted:
		state = "interrupted"
	case len(r.Pending) > 0:
		state = "stalled"
	}
	return fmt.Sprintf("run %s %s: succeeded=%d failed=%d skipped=%d pending=%d took=%s",
		r.RunID, state, len(r.Succeeded), len(r.Failed), len(r.Skipped), len(r.Pending), r.Duration.Round(time.Millisecond))
}
