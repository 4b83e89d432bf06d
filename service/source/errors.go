package source

import "errors"

// ErrNotInitialized is wrapped by the error returned when Next or Close is
// called before a successful Init.
var ErrNotInitialized = errors.New("source not initialized")

// RuntimeError is the single error kind returned by Source. It covers
// connection setup, fetch failures, cancellation and misuse alike; callers
// decide whether to retry.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	if e.Err == nil {
		return "sui source: " + e.Op
	}
	return "sui source: " + e.Op + ": " + e.Err.Error()
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
