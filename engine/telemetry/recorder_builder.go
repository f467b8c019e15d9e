package telemetry

import (
	"log/slog"
	"time"
)

// RecorderBuilderOption is a functional option for configuring a Recorder.
type RecorderBuilderOption func(*Recorder)

// WithInterval sets how often rows are recorded. Values <= 0 keep the default.
//
// Parameters:
//   - d: the interval
//
// Returns:
//   - RecorderBuilderOption: option function to apply
func WithInterval(d time.Duration) RecorderBuilderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLogger sets the logger receiving the per-interval summary.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - RecorderBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) RecorderBuilderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock replaces time.Now, for deterministic intervals.
//
// Parameters:
//   - now: the clock
//
// Returns:
//   - RecorderBuilderOption: option function to apply
func WithClock(now func() time.Time) RecorderBuilderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}
