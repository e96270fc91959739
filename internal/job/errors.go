package job

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is recorded when a job ran longer than its Timeout.
	ErrTimeout = errors.New("job timed out")
	// ErrAbandoned is seen by Work whose attempt was abandoned by the scheduler.
	ErrAbandoned = errors.New("job attempt abandoned")
)

// NoRetry marks an error as non-retryable.
//
// Work can wrap validation errors or other permanent failures with NoRetry so
// the scheduler fails the job without spending its remaining tries.
//
//	return job.NoRetry(fmt.Errorf("rename: new name is empty"))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
