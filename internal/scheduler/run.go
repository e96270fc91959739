package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dagrun/internal/eventbus"
	"dagrun/internal/job"
	logx "dagrun/pkg/logx"
)

const persistTimeout = 5 * time.Second

// Run drives the graph until no admitted job is left or ctx is cancelled.
//
// Job failures never surface as an error; they end up in Report.Failed. An
// error is returned only for internal faults (graph inconsistency) and
// checkpoint I/O failures. When the graph is not empty at the end (the run
// was interrupted or stalled), the names of all finished jobs are saved to
// the checkpoint; a run that drains the graph clears it.
func (s *Scheduler) Run(ctx context.Context) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Report{}, ErrRunning
	}
	defer s.running.Store(false)

	s.runID = uuid.NewString()
	rep := Report{RunID: s.runID, Started: time.Now()}
	log := s.log.With(logx.String("run", s.runID))
	log.Info("run started", logx.Int("jobs", s.graph.Len()), logx.Int("pool_size", s.PoolSize()))

	if err := s.restore(ctx, log); err != nil {
		return s.finish(ctx, log, rep, err)
	}

	s.FillPool()
	lastCap := s.PoolSize()
	idleTurns := 0
	var runErr error

loop:
	for len(s.pool) > 0 {
		if ctx.Err() != nil {
			break
		}
		if c := s.PoolSize(); c != lastCap {
			lastCap = c
			s.FillPool()
		}

		j := s.pool[0]
		s.pool = s.pool[1:]
		attempts := j.Attempts()
		out := j.Step(ctx, s.now())
		progressed := true

		if j.Attempts() > attempts {
			log.Info("job started", logx.String("job", j.Name()), logx.Int("attempt", j.Attempts()))
			s.publish(EventStarted, JobEvent{Name: j.Name(), Attempt: j.Attempts(), TriesLeft: j.TriesLeft()})
		}

		switch out {
		case job.OutcomeNotYetRunnable, job.OutcomeInProgress:
			s.pool = append(s.pool, j)
			progressed = j.Attempts() > attempts

		case job.OutcomeFinished:
			delete(s.pooled, j)
			if err := s.graph.Remove(j); err != nil {
				runErr = fmt.Errorf("remove succeeded job: %w", err)
				break loop
			}
			s.succeeded = append(s.succeeded, j)
			dur := s.now().Sub(j.StartedAt())
			log.Info("job succeeded", logx.String("job", j.Name()), logx.Int("attempts", j.Attempts()), logx.Duration("dur", dur))
			s.publish(EventSucceeded, JobEvent{Name: j.Name(), Attempt: j.Attempts(), Duration: dur})
			s.FillPool()

		case job.OutcomeFailed:
			if ctx.Err() != nil {
				// Work saw the interrupt; leave the job pending.
				s.pool = append(s.pool, j)
				break loop
			}
			if st := j.PanicStack(); st != "" {
				log.Error("job work panicked", logx.String("job", j.Name()), logx.Int("attempt", j.Attempts()), logx.Err(j.Err()), logx.Stack(st))
			}
			if j.Retry() {
				log.Warn("job retry", logx.String("job", j.Name()), logx.Int("tries_left", j.TriesLeft()), logx.Err(j.Err()))
				s.publish(EventRetry, JobEvent{Name: j.Name(), Attempt: j.Attempts(), TriesLeft: j.TriesLeft(), Error: errString(j.Err())})
				s.pool = append(s.pool, j)
				break
			}
			delete(s.pooled, j)
			if err := s.cascade(j, log); err != nil {
				runErr = err
				break loop
			}
			s.FillPool()
		}

		if progressed {
			idleTurns = 0
			continue
		}
		// A whole pass without progress: everyone is waiting, so pace the loop.
		idleTurns++
		if idleTurns >= len(s.pool) {
			idleTurns = 0
			if err := s.pace(ctx); err != nil {
				break
			}
		}
	}

	return s.finish(ctx, log, rep, runErr)
}

// cascade fails j and every job that transitively depends on it.
func (s *Scheduler) cascade(j *job.Job, log logx.Logger) error {
	closure, err := s.graph.TransitiveDependents(j)
	if err != nil {
		return fmt.Errorf("cascade %s: %w", j.Name(), err)
	}
	log.Warn("job failed", logx.String("job", j.Name()), logx.Int("attempts", j.Attempts()), logx.Int("dependents", len(closure)-1), logx.Err(j.Err()))
	for _, d := range closure {
		if err := s.graph.Remove(d); err != nil {
			return fmt.Errorf("cascade %s: %w", j.Name(), err)
		}
		s.dropFromPool(d)
		d.Abandon()
		s.failed = append(s.failed, d)

		ev := JobEvent{Name: d.Name(), Attempt: d.Attempts()}
		if d == j {
			ev.Error = errString(j.Err())
		} else {
			ev.Cause = j.Name()
			log.Warn("job cancelled", logx.String("job", d.Name()), logx.String("cause", j.Name()))
		}
		s.publish(EventFailed, ev)
	}
	return nil
}

// finish abandons whatever is still pooled, settles the checkpoint and
// builds the report.
func (s *Scheduler) finish(ctx context.Context, log logx.Logger, rep Report, runErr error) (Report, error) {
	for _, j := range s.pool {
		j.Abandon()
	}
	s.pool = nil
	s.pooled = map[*job.Job]struct{}{}

	rep.Duration = time.Since(rep.Started)
	rep.Succeeded = jobNames(s.succeeded)
	rep.Failed = jobNames(s.failed)
	rep.Skipped = jobNames(s.skipped)
	rep.Pending = jobNames(s.graph.Jobs())
	rep.Interrupted = ctx.Err() != nil

	if err := s.persist(ctx, log); err != nil {
		runErr = errors.Join(runErr, err)
	}

	switch {
	case runErr != nil:
		log.Error("run aborted", logx.Err(runErr))
	case rep.Interrupted:
		log.Warn("run interrupted", logx.Int("succeeded", len(rep.Succeeded)), logx.Int("failed", len(rep.Failed)), logx.Int("pending", len(rep.Pending)))
	case len(rep.Pending) > 0:
		log.Warn("run stalled", logx.Strings("pending", rep.Pending))
	default:
		log.Info("run finished", logx.Int("succeeded", len(rep.Succeeded)), logx.Int("failed", len(rep.Failed)), logx.Int("skipped", len(rep.Skipped)), logx.Duration("took", rep.Duration))
	}
	s.bus.Publish(eventbus.Event{Type: EventFinished, Data: rep})
	return rep, runErr
}

// pace blocks until the idle limiter grants another pass or ctx ends.
func (s *Scheduler) pace(ctx context.Context) error {
	r := s.idle.Reserve()
	d := r.Delay()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
