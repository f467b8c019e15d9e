package task

import (
	"context"
	"errors"
)

// ErrAborted is the outcome of asynchronous work that observed cancellation.
// It is expected control flow and is never reported as a failure.
var ErrAborted = errors.New("task: aborted")

// IsAborted reports whether err means the work was cancelled rather than failed.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}

// CheckAbort returns ErrAborted if ctx is done. Backends call it at their
// suspension points.
func CheckAbort(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrAborted
	}
	return nil
}
