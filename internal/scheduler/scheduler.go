package scheduler

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"dagrun/internal/checkpoint"
	"dagrun/internal/eventbus"
	"dagrun/internal/graph"
	"dagrun/internal/job"
	logx "dagrun/pkg/logx"
)

// Scheduler owns a pool of admitted jobs and drives them over a graph.
//
// Schedule, FillPool and Run must be called from one goroutine. SetPoolSize
// may be called from any goroutine.
type Scheduler struct {
	cfg   Config
	log   logx.Logger
	bus   eventbus.Bus
	store checkpoint.Store
	graph *graph.Graph

	capacity atomic.Int64
	running  atomic.Bool
	now      func() time.Time
	idle     *rate.Limiter

	names  map[string]*job.Job
	pool   []*job.Job
	pooled map[*job.Job]struct{}

	runID     string
	restored  bool
	succeeded []*job.Job
	failed    []*job.Job
	skipped   []*job.Job
}

// New creates a scheduler over g. A nil graph, store or bus gets an empty
// default; a zero logger is replaced by a no-op one.
func New(cfg Config, g *graph.Graph, store checkpoint.Store, log logx.Logger, bus eventbus.Bus) (*Scheduler, error) {
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidPoolSize, cfg.PoolSize)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if g == nil {
		g = graph.New()
	}
	if store == nil {
		store, _ = checkpoint.Open(checkpoint.Config{Driver: "none"}, log)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Scheduler{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		store:  store,
		graph:  g,
		now:    time.Now,
		idle:   rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		names:  map[string]*job.Job{},
		pooled: map[*job.Job]struct{}{},
	}
	s.capacity.Store(int64(cfg.PoolSize))
	return s, nil
}

// Graph exposes the scheduler's dependency graph.
func (s *Scheduler) Graph() *graph.Graph { return s.graph }

// Schedule registers j and, recursively, any prerequisite that is not yet
// registered, recording the dependency edges. Prerequisites are registered
// before their dependents; on error every job this call registered is
// removed again, so a failed Schedule leaves the graph unchanged.
func (s *Scheduler) Schedule(j *job.Job) error {
	var added []*job.Job
	if _, err := s.schedule(j, &added); err != nil {
		for i := len(added) - 1; i >= 0; i-- {
			_ = s.graph.Remove(added[i])
			delete(s.names, added[i].Name())
		}
		return err
	}
	return nil
}

// Scheduled reports whether j is registered in the graph.
func (s *Scheduler) Scheduled(j *job.Job) bool {
	_, ok := s.graph.Node(j)
	return ok
}

func (s *Scheduler) schedule(j *job.Job, added *[]*job.Job) (graph.NodeID, error) {
	if j == nil {
		return 0, errors.New("scheduler: nil job")
	}
	name := j.Name()
	switch {
	case strings.TrimSpace(name) == "":
		return 0, ErrUnnamedJob
	case strings.TrimSpace(name) != name:
		// Checkpoint stores trim names; a padded name would never match on resume.
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, ok := s.graph.Node(j); ok {
		return 0, fmt.Errorf("%w: %s", graph.ErrDuplicate, name)
	}
	if other, ok := s.names[name]; ok && other != j {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	deps := j.DependsOn()
	prereqs := make([]graph.NodeID, 0, len(deps))
	for _, p := range deps {
		pid, ok := s.graph.Node(p)
		if !ok {
			var err error
			if pid, err = s.schedule(p, added); err != nil {
				return 0, fmt.Errorf("prerequisite of %s: %w", name, err)
			}
		}
		prereqs = append(prereqs, pid)
	}

	id, err := s.graph.Register(j)
	if err != nil {
		return 0, err
	}
	s.names[name] = j
	*added = append(*added, j)
	for _, pid := range prereqs {
		if err := s.graph.AddDependency(id, pid); err != nil {
			return 0, err
		}
	}
	s.log.Debug("job scheduled", logx.String("job", name), logx.Int("deps", len(deps)), logx.Time("start_at", j.StartAt()))
	return id, nil
}

// SetPoolSize changes the pool capacity. Shrinking never evicts admitted
// jobs; it only limits future admissions.
func (s *Scheduler) SetPoolSize(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPoolSize, n)
	}
	if prev := s.capacity.Swap(int64(n)); prev != int64(n) {
		s.log.Info("pool size changed", logx.Int("from", int(prev)), logx.Int("to", n))
	}
	return nil
}

// PoolSize returns the current pool capacity.
func (s *Scheduler) PoolSize() int { return int(s.capacity.Load()) }

// FillPool admits ready jobs, earliest StartAt first (registration order on
// ties), until the pool is full. Jobs already pooled are not admitted twice.
func (s *Scheduler) FillPool() {
	capacity := s.PoolSize()
	if len(s.pool) >= capacity {
		return
	}
	ready := s.graph.Ready()
	slices.SortStableFunc(ready, func(a, b *job.Job) int {
		return a.StartAt().Compare(b.StartAt())
	})
	for _, j := range ready {
		if len(s.pool) >= capacity {
			return
		}
		if _, ok := s.pooled[j]; ok {
			continue
		}
		s.pool = append(s.pool, j)
		s.pooled[j] = struct{}{}
		s.log.Debug("job admitted", logx.String("job", j.Name()), logx.Int("pool", len(s.pool)))
		s.publish(EventAdmitted, JobEvent{Name: j.Name()})
	}
}

// Pool returns the admitted jobs in round-robin order.
func (s *Scheduler) Pool() []*job.Job { return slices.Clone(s.pool) }

// Succeeded returns jobs that succeeded, in completion order.
func (s *Scheduler) Succeeded() []*job.Job { return slices.Clone(s.succeeded) }

// Failed returns jobs that failed terminally or were failed by a cascade.
func (s *Scheduler) Failed() []*job.Job { return slices.Clone(s.failed) }

// Skipped returns jobs skipped because the checkpoint listed them.
func (s *Scheduler) Skipped() []*job.Job { return slices.Clone(s.skipped) }

func (s *Scheduler) dropFromPool(j *job.Job) {
	if _, ok := s.pooled[j]; !ok {
		return
	}
	delete(s.pooled, j)
	s.pool = slices.DeleteFunc(s.pool, func(p *job.Job) bool { return p == j })
}

func (s *Scheduler) publish(typ string, ev JobEvent) {
	ev.Run = s.runID
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func jobNames(jobs []*job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Name()
	}
	return out
}
