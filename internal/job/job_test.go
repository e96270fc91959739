package job

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// stepUntilDone steps j at wall-clock time until it leaves InProgress.
func stepUntilDone(t *testing.T, j *Job) Outcome {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		out := j.Step(context.Background(), time.Now())
		if out == OutcomeFinished || out == OutcomeFailed {
			return out
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s did not finish", j.Name())
	return OutcomeInProgress
}

func TestStepStartGate(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	t0 := time.Now()
	j := New("gated", WorkFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}), Options{StartAt: t0.Add(time.Hour)})

	for i := 0; i < 100; i++ {
		now := t0.Add(time.Duration(i) * time.Second)
		if out := j.Step(context.Background(), now); out != OutcomeNotYetRunnable {
			t.Fatalf("step %d = %v, want not_yet_runnable", i, out)
		}
	}
	if j.Status() != StatusNotStarted {
		t.Fatalf("status = %v, want not_started", j.Status())
	}
	if !j.StartedAt().IsZero() {
		t.Fatalf("actual start recorded before gate opened")
	}
	if calls.Load() != 0 {
		t.Fatalf("work called %d times before start", calls.Load())
	}

	open := t0.Add(time.Hour)
	out := j.Step(context.Background(), open)
	if out == OutcomeNotYetRunnable {
		t.Fatalf("gate should be open at StartAt")
	}
	if !j.StartedAt().Equal(open) {
		t.Fatalf("StartedAt = %v, want %v", j.StartedAt(), open)
	}
	for i := 0; out == OutcomeInProgress && i < 5000; i++ {
		time.Sleep(time.Millisecond)
		out = j.Step(context.Background(), open)
	}
	if out != OutcomeFinished {
		t.Fatalf("outcome = %v, want finished", out)
	}
	if calls.Load() != 1 {
		t.Fatalf("work called %d times, want 1", calls.Load())
	}
}

func TestStepLaunchesOnce(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	release := make(chan struct{})
	j := New("once", WorkFunc(func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}), Options{StartAt: time.Now()})

	for i := 0; i < 10; i++ {
		if out := j.Step(context.Background(), time.Now()); out != OutcomeInProgress {
			t.Fatalf("step %d = %v, want in_progress", i, out)
		}
		if j.Status() != StatusRunning {
			t.Fatalf("status = %v, want running", j.Status())
		}
	}
	close(release)
	if out := stepUntilDone(t, j); out != OutcomeFinished {
		t.Fatalf("outcome = %v, want finished", out)
	}
	if calls.Load() != 1 {
		t.Fatalf("work launched %d times, want 1", calls.Load())
	}
	if j.Status() != StatusSucceeded || j.Attempts() != 1 {
		t.Fatalf("status=%v attempts=%d", j.Status(), j.Attempts())
	}
	// Further steps keep reporting the terminal outcome.
	if out := j.Step(context.Background(), time.Now()); out != OutcomeFinished {
		t.Fatalf("step after success = %v", out)
	}
}

func TestStepFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	j := New("fail", WorkFunc(func(context.Context) error { return boom }), Options{StartAt: time.Now()})
	if out := stepUntilDone(t, j); out != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", out)
	}
	if !errors.Is(j.Err(), boom) {
		t.Fatalf("Err = %v, want boom", j.Err())
	}
	if j.Status() != StatusFailed {
		t.Fatalf("status = %v", j.Status())
	}
}

func TestStepRecoversPanic(t *testing.T) {
	t.Parallel()
	j := New("panics", WorkFunc(func(context.Context) error { panic("kaboom") }), Options{StartAt: time.Now(), Tries: 2})
	if out := stepUntilDone(t, j); out != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", out)
	}
	if j.Err() == nil {
		t.Fatal("expected panic to be reported as error")
	}
	if st := j.PanicStack(); !strings.Contains(st, "goroutine") {
		t.Fatalf("PanicStack = %q, want a goroutine trace", st)
	}
	if !j.Retry() || j.PanicStack() != "" {
		t.Fatalf("Retry should clear the stack, got %q", j.PanicStack())
	}
}

func TestStepTimeoutAbandonsWork(t *testing.T) {
	defer goleak.VerifyNone(t)

	cause := make(chan error, 1)
	j := New("slow", WorkFunc(func(ctx context.Context) error {
		<-ctx.Done()
		cause <- context.Cause(ctx)
		return ctx.Err()
	}), Options{StartAt: time.Now(), Timeout: time.Minute})

	t0 := time.Now()
	if out := j.Step(context.Background(), t0); out != OutcomeInProgress {
		t.Fatalf("first step = %v, want in_progress", out)
	}
	if out := j.Step(context.Background(), t0.Add(30*time.Second)); out != OutcomeInProgress {
		t.Fatalf("step within window = %v, want in_progress", out)
	}
	if out := j.Step(context.Background(), t0.Add(time.Minute+time.Millisecond)); out != OutcomeFailed {
		t.Fatalf("step past deadline = %v, want failed", out)
	}
	if !errors.Is(j.Err(), ErrTimeout) {
		t.Fatalf("Err = %v, want ErrTimeout", j.Err())
	}
	select {
	case err := <-cause:
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("work saw cause %v, want ErrTimeout", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("work was not cancelled")
	}
}

func TestTimeoutBeatsEventualSuccess(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	done := make(chan struct{})
	j := New("late", WorkFunc(func(context.Context) error {
		defer close(done)
		<-release
		return nil
	}), Options{StartAt: time.Now(), Timeout: time.Second})
	t0 := time.Now()
	if out := j.Step(context.Background(), t0); out != OutcomeInProgress {
		t.Fatalf("first step = %v, want in_progress", out)
	}
	// The work has succeeded by now, but the expired window wins.
	close(release)
	<-done
	if out := j.Step(context.Background(), t0.Add(2*time.Second)); out != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", out)
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()
	j := New("flaky", WorkFunc(func(context.Context) error { return errors.New("nope") }), Options{StartAt: time.Now(), Tries: 2})
	if j.Retry() {
		t.Fatal("Retry before any failure should be refused")
	}
	if out := stepUntilDone(t, j); out != OutcomeFailed {
		t.Fatalf("outcome = %v", out)
	}
	if !j.Retry() {
		t.Fatal("expected first retry to be granted")
	}
	if j.Status() != StatusNotStarted || !j.StartedAt().IsZero() || j.TriesLeft() != 1 {
		t.Fatalf("after retry: status=%v startedAt=%v triesLeft=%d", j.Status(), j.StartedAt(), j.TriesLeft())
	}
	if out := stepUntilDone(t, j); out != OutcomeFailed {
		t.Fatalf("outcome = %v", out)
	}
	if j.Retry() {
		t.Fatal("retry should be refused with one try left")
	}
	if j.Attempts() != 2 {
		t.Fatalf("attempts = %d, want 2", j.Attempts())
	}
}

func TestRetryRefusals(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		tries int
		err   error
	}{
		{name: "zero tries", tries: 0, err: errors.New("x")},
		{name: "one try", tries: 1, err: errors.New("x")},
		{name: "no retry error", tries: 5, err: NoRetry(errors.New("bad input"))},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			j := New(tt.name, WorkFunc(func(context.Context) error { return tt.err }), Options{StartAt: time.Now(), Tries: tt.tries})
			if out := stepUntilDone(t, j); out != OutcomeFailed {
				t.Fatalf("outcome = %v", out)
			}
			if j.Retry() {
				t.Fatal("Retry granted, want refused")
			}
		})
	}
}

func TestAbandonCancelsRunningWork(t *testing.T) {
	defer goleak.VerifyNone(t)

	exited := make(chan struct{})
	j := New("abandoned", WorkFunc(func(ctx context.Context) error {
		defer close(exited)
		<-ctx.Done()
		return ctx.Err()
	}), Options{StartAt: time.Now()})
	j.Step(context.Background(), time.Now())
	j.Abandon()

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned work still running")
	}
	if j.Status() != StatusFailed || !errors.Is(j.Err(), ErrAbandoned) {
		t.Fatalf("status=%v err=%v", j.Status(), j.Err())
	}
	// Abandoning again is a no-op.
	j.Abandon()
}

func TestNoRetryWrapping(t *testing.T) {
	t.Parallel()
	base := errors.New("base")
	err := NoRetry(base)
	if !IsNoRetry(err) || !errors.Is(err, base) {
		t.Fatalf("NoRetry(%v) lost its identity: %v", base, err)
	}
	if NoRetry(nil) != nil {
		t.Fatal("NoRetry(nil) should be nil")
	}
	if IsNoRetry(base) {
		t.Fatal("plain error reported as no-retry")
	}
}
