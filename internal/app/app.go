package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dagrun/internal/checkpoint"
	"dagrun/internal/config"
	"dagrun/internal/eventbus"
	"dagrun/internal/graph"
	"dagrun/internal/job"
	"dagrun/internal/manifest"
	"dagrun/internal/notifier"
	"dagrun/internal/observability/status"
	rtsup "dagrun/internal/runtime/supervisor"
	"dagrun/internal/scheduler"
	"dagrun/internal/work"
	logx "dagrun/pkg/logx"
)

const (
	stopTimeout   = 3 * time.Second
	notifyTimeout = 15 * time.Second
)

// Options are the command-line inputs.
type Options struct {
	ConfigPath string
	// JobsPath overrides scheduler.jobs from the config.
	JobsPath string
}

// App wires config, logging, checkpoint, manifest, scheduler and notifier
// for one run.
type App struct {
	cfgm *config.ConfigManager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store checkpoint.Store
	sched *scheduler.Scheduler
	notif *notifier.Service
	debug *status.Server
	jobs  []*job.Job
}

func New(opt Options) (*App, error) {
	cfgm := config.NewConfigManager(opt.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg.Logging))
	a := &App{cfgm: cfgm, logs: logSvc, log: log.With(logx.String("comp", "app")), bus: eventbus.New()}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	a.store, err = checkpoint.Open(checkpoint.Config{
		Driver:      cfg.Checkpoint.DriverOrDefault(),
		Path:        cfg.Checkpoint.PathOrDefault(),
		BusyTimeout: cfg.Checkpoint.BusyTimeoutOrDefault(),
	}, log.With(logx.String("comp", "checkpoint")))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}

	root := cfg.Work.RootOrDefault()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("work root: %w", err)
	}
	env := work.NewEnv(root, cfg.Work.HTTPTimeoutOrDefault())

	jobsPath := strings.TrimSpace(opt.JobsPath)
	if jobsPath == "" {
		jobsPath = strings.TrimSpace(cfg.Scheduler.Jobs)
	}
	if jobsPath == "" {
		return nil, errors.New("no job manifest: set scheduler.jobs or pass -jobs")
	}
	a.jobs, err = manifest.Load(jobsPath, env, time.Now())
	if err != nil {
		return nil, err
	}

	a.sched, err = scheduler.New(scheduler.Config{
		PoolSize:     cfg.Scheduler.PoolSizeOrDefault(),
		PollInterval: cfg.Scheduler.PollIntervalOrDefault(),
	}, graph.New(), a.store, log.With(logx.String("comp", "scheduler")), a.bus)
	if err != nil {
		return nil, err
	}
	for _, j := range a.jobs {
		if a.sched.Scheduled(j) {
			continue
		}
		if err := a.sched.Schedule(j); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", j.Name(), err)
		}
	}

	var names []string
	for _, j := range a.sched.Graph().Jobs() {
		names = append(names, j.Name())
	}
	a.debug = status.New(debugConfig(cfg.Debug), status.NewBoard(names), log.With(logx.String("comp", "status")))

	if n := cfg.Notifier; n != nil && n.Enabled {
		sender, err := notifier.NewTelegram(n.Token, n.ChatID, n.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("notifier: %w", err)
		}
		a.notif = notifier.New(notifier.Config{
			Enabled:    true,
			RatePerSec: n.RatePerSec,
			OnSuccess:  n.OnSuccess,
		}, sender, log.With(logx.String("comp", "notifier")))
	}

	a.log.Info("app ready",
		logx.String("jobs", jobsPath),
		logx.Int("count", len(a.jobs)),
		logx.Int("pool_size", a.sched.PoolSize()),
		logx.String("checkpoint", cfg.Checkpoint.DriverOrDefault()),
		logx.Bool("notifier", a.notif != nil),
	)
	ok = true
	return a, nil
}

// Jobs returns the manifest jobs in file order.
func (a *App) Jobs() []*job.Job { return append([]*job.Job(nil), a.jobs...) }

// Scheduler exposes the scheduler for inspection.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Run executes the job graph once. Config changes are applied live while it
// runs. Cancelling ctx interrupts the run and saves the checkpoint.
func (a *App) Run(ctx context.Context) (scheduler.Report, error) {
	sup := rtsup.New(ctx, rtsup.WithLogger(a.log))
	if a.notif != nil {
		a.notif.Start(ctx, a.bus)
	}

	sup.Go("status.board", a.debug.Board().Follow(a.bus))
	a.debug.Reconfigure(sup.Context(), debugConfig(a.cfgm.Get().Debug))

	events, unsub := a.bus.Subscribe(256)
	sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(4)
	last := a.cfgm.Get()
	sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	sup.Go("config.watch", a.cfgm.Watch)

	rep, err := a.sched.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	a.debug.Stop(stopCtx)
	if serr := sup.Stop(stopCtx); serr != nil {
		a.log.Warn("background tasks did not stop cleanly", logx.Err(serr))
	}
	cancel()

	if a.notif != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		if nerr := a.notif.Stop(nctx); nerr != nil {
			a.log.Warn("notifier did not drain", logx.Err(nerr))
		}
		cancel()
	}
	return rep, err
}

// applyConfig applies the live-reloadable parts of next.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	change := config.Diff(prev, next)
	if change.Empty() {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.logs.Apply(logConfig(next.Logging))
	if err := a.sched.SetPoolSize(next.Scheduler.PoolSizeOrDefault()); err != nil {
		a.log.Warn("pool size rejected", logx.Err(err))
	}
	a.debug.Reconfigure(ctx, debugConfig(next.Debug))
	if len(change.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for these keys", logx.Strings("keys", change.RestartRequired))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Fields...)
	a.log.Info("config reloaded", fields...)
}

// Close releases the checkpoint store and log sinks.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

func logConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}

func debugConfig(d *config.DebugConfig) status.Config {
	if d == nil {
		return status.Config{}
	}
	return status.Config{
		Enabled:       d.Enabled,
		Addr:          d.AddrOrDefault(),
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
		Pprof:         d.Pprof,
	}
}
