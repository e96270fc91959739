package job

import (
	"context"
	"sync/atomic"
	"time"
)

// Status is the lifecycle state of a Job.
type Status int32

const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single Step.
type Outcome int

const (
	// OutcomeNotYetRunnable: the start gate has not opened; poll again later.
	OutcomeNotYetRunnable Outcome = iota
	// OutcomeInProgress: work is in flight; poll again later.
	OutcomeInProgress
	// OutcomeFinished: work succeeded, no further steps expected.
	OutcomeFinished
	// OutcomeFailed: work failed or the job timed out during this step.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotYetRunnable:
		return "not_yet_runnable"
	case OutcomeInProgress:
		return "in_progress"
	case OutcomeFinished:
		return "finished"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Work performs a job's side effect and reports success (nil) or failure.
type Work interface {
	Execute(ctx context.Context) error
}

// WorkFunc adapts a plain function to Work.
type WorkFunc func(ctx context.Context) error

func (f WorkFunc) Execute(ctx context.Context) error { return f(ctx) }

// Options configures a Job at construction time.
type Options struct {
	// StartAt is the earliest instant the job may start. Zero means now.
	StartAt time.Time
	// Timeout bounds the running time measured from the first step past the
	// start gate. <= 0 means unlimited.
	Timeout time.Duration
	// Tries is the number of attempts the job gets. Values below 2 mean a
	// single attempt.
	Tries int
	// DependsOn lists prerequisite jobs. It is fixed once the job is created.
	DependsOn []*Job
}

// Job is a unit of schedulable work driven by repeated Step calls.
//
// Step, Retry and Abandon must be called from a single goroutine (the
// scheduler loop). Status may be read from any goroutine.
type Job struct {
	name      string
	work      Work
	startAt   time.Time
	timeout   time.Duration
	dependsOn []*Job

	status    atomic.Int32
	triesLeft int
	attempts  int
	startedAt time.Time
	cur       *attempt
	err       error
	stack     string
}

// New creates a job. A nil Work always succeeds.
func New(name string, w Work, opt Options) *Job {
	if w == nil {
		w = WorkFunc(func(context.Context) error { return nil })
	}
	startAt := opt.StartAt
	if startAt.IsZero() {
		startAt = time.Now()
	}
	return &Job{
		name:      name,
		work:      w,
		startAt:   startAt,
		timeout:   opt.Timeout,
		dependsOn: append([]*Job(nil), opt.DependsOn...),
		triesLeft: opt.Tries,
	}
}

func (j *Job) Name() string           { return j.name }
func (j *Job) String() string         { return j.name }
func (j *Job) Status() Status         { return Status(j.status.Load()) }
func (j *Job) StartAt() time.Time     { return j.startAt }
func (j *Job) Timeout() time.Duration { return j.timeout }
func (j *Job) TriesLeft() int         { return j.triesLeft }
func (j *Job) Attempts() int          { return j.attempts }
func (j *Job) StartedAt() time.Time   { return j.startedAt }
func (j *Job) DependsOn() []*Job      { return append([]*Job(nil), j.dependsOn...) }

// Err returns the last failure, or nil.
func (j *Job) Err() error { return j.err }

// PanicStack returns the stack of the last attempt if its Work panicked.
func (j *Job) PanicStack() string { return j.stack }

func (j *Job) setStatus(s Status) { j.status.Store(int32(s)) }

// Step advances the job by one cooperative turn and never blocks.
func (j *Job) Step(ctx context.Context, now time.Time) Outcome {
	switch j.Status() {
	case StatusSucceeded:
		return OutcomeFinished
	case StatusFailed:
		return OutcomeFailed
	}

	if now.Before(j.startAt) {
		return OutcomeNotYetRunnable
	}
	if j.startedAt.IsZero() {
		j.startedAt = now
	}

	if j.timeout > 0 && now.Sub(j.startedAt) > j.timeout {
		if j.cur != nil {
			j.cur.abandon(ErrTimeout)
			j.cur = nil
		}
		j.err = ErrTimeout
		j.setStatus(StatusFailed)
		return OutcomeFailed
	}

	if j.Status() == StatusNotStarted {
		j.setStatus(StatusRunning)
		j.attempts++
		j.cur = launch(ctx, j.work)
	}

	finished, err := j.cur.poll()
	if !finished {
		return OutcomeInProgress
	}
	j.stack = j.cur.stack
	j.cur = nil
	if err != nil {
		j.err = err
		j.setStatus(StatusFailed)
		return OutcomeFailed
	}
	j.err = nil
	j.setStatus(StatusSucceeded)
	return OutcomeFinished
}

// Retry grants another attempt after a failure when more than one try
// remains and the failure was not marked NoRetry. On success the job is back
// to NotStarted with its timeout window cleared.
func (j *Job) Retry() bool {
	if j.Status() != StatusFailed || j.triesLeft <= 1 || IsNoRetry(j.err) {
		return false
	}
	j.triesLeft--
	j.startedAt = time.Time{}
	j.stack = ""
	j.cur = nil
	j.setStatus(StatusNotStarted)
	return true
}

// Abandon cancels in-flight work, if any. A running job is marked failed
// with ErrAbandoned; any other status is left untouched.
func (j *Job) Abandon() {
	if j.cur == nil {
		return
	}
	j.cur.abandon(ErrAbandoned)
	j.cur = nil
	j.err = ErrAbandoned
	j.setStatus(StatusFailed)
}
