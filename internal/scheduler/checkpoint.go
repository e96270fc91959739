package scheduler

import (
	"context"
	"fmt"

	"dagrun/internal/job"
	logx "dagrun/pkg/logx"
)

// restore removes every registered job named in the checkpoint.
//
// Skipped jobs count as satisfied: they leave the graph like a success, so
// their dependents become ready. They are reported as skipped, not as
// succeeded, and are persisted again if this run is interrupted too.
func (s *Scheduler) restore(ctx context.Context, log logx.Logger) error {
	names, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	s.restored = true
	if len(names) == 0 {
		return nil
	}
	done := make(map[string]struct{}, len(names))
	for _, n := range names {
		done[n] = struct{}{}
	}
	for _, j := range s.graph.Jobs() {
		if _, ok := done[j.Name()]; !ok {
			continue
		}
		if err := s.graph.Remove(j); err != nil {
			return fmt.Errorf("restore %s: %w", j.Name(), err)
		}
		s.skipped = append(s.skipped, j)
		s.publish(EventSkipped, JobEvent{Name: j.Name()})
	}
	log.Info("checkpoint restored", logx.Int("listed", len(names)), logx.Strings("skipped", jobNames(s.skipped)))
	return nil
}

// persist saves finished job names when work is left over and clears the
// checkpoint when the graph drained.
func (s *Scheduler) persist(ctx context.Context, log logx.Logger) error {
	if !s.restored {
		// Never overwrite a checkpoint we could not read.
		return nil
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if s.graph.Empty() {
		if err := s.store.Clear(pctx); err != nil {
			return fmt.Errorf("clear checkpoint: %w", err)
		}
		return nil
	}
	finished := make([]*job.Job, 0, len(s.succeeded)+len(s.failed)+len(s.skipped))
	finished = append(finished, s.succeeded...)
	finished = append(finished, s.failed...)
	finished = append(finished, s.skipped...)
	if err := s.store.Save(pctx, jobNames(finished)); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	log.Info("checkpoint saved", logx.Int("finished", len(finished)), logx.Int("pending", s.graph.Len()))
	return nil
}
