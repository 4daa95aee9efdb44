package worker

import "errors"

// RetryableError wraps infrastructure failures (store or queue connectivity)
// that warrant a requeue: the job itself was never attempted to completion.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err as retryable.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

func isRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}
