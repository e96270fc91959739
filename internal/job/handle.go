package job

import (
	"context"
	"fmt"
	"runtime/debug"
)

// attempt is one in-flight execution of a job's Work.
//
// err and stack are written before done is closed, so a receive on done
// makes them visible to the polling side.
type attempt struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
	err    error
	stack  string
}

func launch(parent context.Context, w Work) *attempt {
	ctx, cancel := context.WithCancelCause(parent)
	a := &attempt{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(a.done)
		// A panicking Work must not take the scheduler down with it.
		defer func() {
			if r := recover(); r != nil {
				a.err = fmt.Errorf("panic: %v", r)
				a.stack = string(debug.Stack())
			}
		}()
		a.err = w.Execute(ctx)
	}()
	return a
}

// poll reports the attempt's result without blocking.
func (a *attempt) poll() (finished bool, err error) {
	select {
	case <-a.done:
		return true, a.err
	default:
		return false, nil
	}
}

// abandon cancels the attempt's context. The goroutine exits once Work
// observes the cancellation.
func (a *attempt) abandon(cause error) {
	a.cancel(cause)
}
