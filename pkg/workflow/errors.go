package workflow

import "errors"

var (
	// ErrCancelled propagates from any suspension point when the run is
	// cancelled. Cancelled runs emit no further events.
	ErrCancelled = errors.New("workflow cancelled")

	// ErrTimeout is returned when the per-run deadline expires.
	ErrTimeout = errors.New("workflow timeout")

	// ErrInvariant signals a programmer error (missing state, bad wiring).
	ErrInvariant = errors.New("invariant violation")

	// ErrStepFailed wraps the error of a failed step when the run terminates.
	ErrStepFailed = errors.New("step failed")
)
