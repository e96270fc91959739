package status

import (
	"context"
	"sync"
	"time"

	"dagrun/internal/eventbus"
	"dagrun/internal/scheduler"
)

// Job states shown on the board.
const (
	StatePending   = "pending"
	StateAdmitted  = "admitted"
	StateRunning   = "running"
	StateRetrying  = "retrying"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateSkipped   = "skipped"
)

// JobState is the last known state of one job.
type JobState struct {
	Name    string    `json:"name"`
	State   string    `json:"state"`
	Attempt int       `json:"attempt,omitempty"`
	Error   string    `json:"error,omitempty"`
	Cause   string    `json:"cause,omitempty"`
	Updated time.Time `json:"updated,omitzero"`
}

// Snapshot is a point-in-time copy of the board.
type Snapshot struct {
	Run      string            `json:"run,omitempty"`
	Finished bool              `json:"finished"`
	Counts   map[string]int    `json:"counts"`
	Jobs     []JobState        `json:"jobs"`
	Report   *scheduler.Report `json:"report,omitempty"`
}

// Board folds scheduler events into per-job state. It is safe for
// concurrent use.
type Board struct {
	mu     sync.RWMutex
	order  []string
	jobs   map[string]*JobState
	run    string
	report *scheduler.Report
}

// NewBoard seeds the board with names in display order, all pending.
func NewBoard(names []string) *Board {
	b := &Board{jobs: make(map[string]*JobState, len(names))}
	for _, n := range names {
		b.entry(n)
	}
	return b
}

func (b *Board) entry(name string) *JobState {
	js, ok := b.jobs[name]
	if !ok {
		js = &JobState{Name: name, State: StatePending}
		b.jobs[name] = js
		b.order = append(b.order, name)
	}
	return js
}

// Apply folds one event into the board. Unknown types are ignored.
func (b *Board) Apply(e eventbus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rep, ok := e.Data.(scheduler.Report); ok && e.Type == scheduler.EventFinished {
		b.run = rep.RunID
		b.report = &rep
		return
	}
	ev, ok := e.Data.(scheduler.JobEvent)
	if !ok {
		return
	}
	var state string
	switch e.Type {
	case scheduler.EventAdmitted:
		state = StateAdmitted
	case scheduler.EventStarted:
		state = StateRunning
	case scheduler.EventRetry:
		state = StateRetrying
	case scheduler.EventSucceeded:
		state = StateSucceeded
	case scheduler.EventFailed:
		state = StateFailed
	case scheduler.EventSkipped:
		state = StateSkipped
	default:
		return
	}
	if ev.Run != "" {
		b.run = ev.Run
	}
	js := b.entry(ev.Name)
	js.State = state
	js.Updated = e.Time
	if ev.Attempt > 0 {
		js.Attempt = ev.Attempt
	}
	js.Error, js.Cause = ev.Error, ev.Cause
}

// Follow subscribes to bus immediately and returns a loop that applies
// events until ctx is done. Run the loop under a supervisor.
func (b *Board) Follow(bus eventbus.Bus) func(ctx context.Context) error {
	ch, unsub := bus.Subscribe(1024, "job.", "run.")
	return func(ctx context.Context) error {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-ch:
				if !ok {
					return nil
				}
				b.Apply(e)
			}
		}
	}
}

func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Snapshot{
		Run:      b.run,
		Finished: b.report != nil,
		Counts:   map[string]int{},
		Jobs:     make([]JobState, 0, len(b.order)),
	}
	for _, n := range b.order {
		js := *b.jobs[n]
		s.Jobs = append(s.Jobs, js)
		s.Counts[js.State]++
	}
	if b.report != nil {
		rep := *b.report
		s.Report = &rep
	}
	return s
}
