package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dagrun/internal/eventbus"
	rtsup "dagrun/internal/runtime/supervisor"
	"dagrun/internal/scheduler"
	logx "dagrun/pkg/logx"
)

var ErrNotStarted = errors.New("notifier not started")

// Service turns scheduler events into operator messages.
type Service struct {
	cfg     Config
	sender  Sender
	log     logx.Logger
	limiter *rate.Limiter

	mu    sync.Mutex
	unsub func()
	sup   *rtsup.Supervisor
	sent  int
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	} else if cfg.RetryMax == 0 {
		cfg.RetryMax = 2
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &Service{
		cfg:    cfg,
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		// Burst = rate, so a short spike at run end is not throttled hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled && s.sender != nil }

// Start subscribes to bus and delivers messages until Stop. Delivery is not
// tied to ctx cancellation so the final report survives an interrupt; only
// its values are inherited.
func (s *Service) Start(ctx context.Context, bus eventbus.Bus) {
	if !s.Enabled() || bus == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	ch, unsub := bus.Subscribe(s.cfg.QueueSize, scheduler.EventFailed, scheduler.EventFinished)
	s.unsub = unsub
	s.sup = rtsup.New(context.WithoutCancel(ctx), rtsup.WithLogger(s.log))
	s.sup.Go("notifier.deliver", func(c context.Context) error {
		for ev := range ch {
			if err := s.flush(c, append([]eventbus.Event{ev}, drain(ch)...)); err != nil {
				return nil
			}
		}
		return nil
	})
}

// flush formats and delivers a batch of queued events. Root failures queued
// ahead of the run report are folded into it; the report skips the rate
// limiter.
func (s *Service) flush(ctx context.Context, batch []eventbus.Event) error {
	var failures []string
	for _, ev := range batch {
		text := s.format(ev)
		if text == "" {
			continue
		}
		if _, ok := ev.Data.(scheduler.Report); !ok {
			failures = append(failures, text)
			continue
		}
		if len(failures) > 0 {
			text += "\n\n" + strings.Join(failures, "\n")
			failures = nil
		}
		if err := s.send(ctx, ev.Type, text, false); err != nil {
			return err
		}
	}
	for _, text := range failures {
		if err := s.send(ctx, scheduler.EventFailed, text, true); err != nil {
			return err
		}
	}
	return nil
}

// send returns an error only when ctx is done; delivery failures are logged.
func (s *Service) send(ctx context.Context, typ, text string, paced bool) error {
	if err := s.deliver(ctx, text, paced); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("notification failed", logx.String("event", typ), logx.Err(err))
	}
	return nil
}

func drain(ch <-chan eventbus.Event) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Stop unsubscribes and drains queued messages until ctx is done, then
// abandons the rest.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, unsub := s.sup, s.unsub
	s.sup, s.unsub = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return ErrNotStarted
	}
	unsub()
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
		return err
	}
	sup.Cancel()
	return nil
}

// Sent returns the number of delivered messages.
func (s *Service) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *Service) deliver(ctx context.Context, text string, paced bool) error {
	attempts := 1 + s.cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if paced {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.sender.Send(callCtx, text)
		cancel()
		if err == nil {
			s.mu.Lock()
			s.sent++
			s.mu.Unlock()
			return nil
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(s.cfg.RetryBase, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// retryDelay is base * 2^(attempt-1) with 0.7..1.3 jitter, capped at 10s.
func retryDelay(base time.Duration, attempt int) time.Duration {
	const maxDelay = 10 * time.Second
	d := base
	for i := 1; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, maxDelay)
}

func (s *Service) format(ev eventbus.Event) string {
	switch data := ev.Data.(type) {
	case scheduler.JobEvent:
		if ev.Type != scheduler.EventFailed || data.Cause != "" {
			return ""
		}
		return fmt.Sprintf("❌ job %s failed after %d attempt(s): %s", data.Name, data.Attempt, data.Error)
	case scheduler.Report:
		if ev.Type != scheduler.EventFinished || (data.OK() && !s.cfg.OnSuccess) {
			return ""
		}
		return formatReport(data)
	default:
		return ""
	}
}

func formatReport(r scheduler.Report) string {
	var b strings.Builder
	switch {
	case r.Interrupted:
		b.WriteString("⏸ run interrupted")
	case r.OK():
		b.WriteString("✅ run finished")
	default:
		b.WriteString("⚠️ run finished with failures")
	}
	if len(r.RunID) >= 8 {
		fmt.Fprintf(&b, " [%s]", r.RunID[:8])
	}
	fmt.Fprintf(&b, " in %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "succeeded: %d, failed: %d", len(r.Succeeded), len(r.Failed))
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, ", skipped: %d", len(r.Skipped))
	}
	if len(r.Pending) > 0 {
		fmt.Fprintf(&b, ", pending: %d", len(r.Pending))
	}
	if len(r.Failed) > 0 {
		b.WriteString("\nfailed: ")
		b.WriteString(joinLimit(r.Failed, 20))
	}
	return b.String()
}

func joinLimit(names []string, limit int) string {
	if len(names) <= limit {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:limit], ", ") + fmt.Sprintf(" (+%d more)", len(names)-limit)
}
