package streamer

import (
	"log/slog"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/telemetry"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/diag"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/layer"
)

// StreamerBuilderOption is a functional option for configuring a Streamer.
type StreamerBuilderOption func(*Streamer)

// WithLogger sets the streamer's logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - StreamerBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) StreamerBuilderOption {
	return func(s *Streamer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReporter sets the sink for generation failures and discarded results.
//
// Parameters:
//   - r: the reporter
//
// Returns:
//   - StreamerBuilderOption: option function to apply
func WithReporter(r diag.Reporter) StreamerBuilderOption {
	return func(s *Streamer) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithRecorder makes every Update feed a telemetry recorder.
//
// Parameters:
//   - r: the recorder
//
// Returns:
//   - StreamerBuilderOption: option function to apply
func WithRecorder(r *telemetry.Recorder) StreamerBuilderOption {
	return func(s *Streamer) {
		s.recorder = r
	}
}

// WithWorld sets the world seed and the size of a lod 0 chunk.
//
// Parameters:
//   - seed: world seed, mixed with each chunk key
//   - baseSize: world size of a lod 0 chunk
//
// Returns:
//   - StreamerBuilderOption: option function to apply
func WithWorld(seed int64, baseSize float32) StreamerBuilderOption {
	return func(s *Streamer) {
		s.worldSeed = seed
		if baseSize > 0 {
			s.baseSize = baseSize
		}
	}
}

// WithInstanceCount caps the instances requested per chunk for category c.
//
// Parameters:
//   - c: an instanced category
//   - n: the cap
//
// Returns:
//   - StreamerBuilderOption: option function to apply
func WithInstanceCount(c content.Category, n int) StreamerBuilderOption {
	return func(s *Streamer) {
		s.instanceCounts[c] = n
	}
}

// WithWorkers sizes the worker pool. queueSize bounds the jobs handed to the
// pool at once; the rest wait in the streamer's backlog.
//
// Parameters:
//   - workers: maximum worker goroutines
//   - queueSize: pool queue length
//   - idle: worker idle timeout
//
// Returns:
//   - StreamerBuilderOption: option function to apply
func WithWorkers(workers, queueSize int, idle time.Duration) StreamerBuilderOption {
	return func(s *Streamer) {
		if workers > 0 {
			s.workers = workers
		}
		if queueSize > 0 {
			s.queueSize = queueSize
		}
		if idle > 0 {
			s.idle = idle
		}
	}
}

// WithTickRate sets Run's tick rate in ticks per second. Values <= 0 mean 60.
//
// Parameters:
//   - fps: target ticks per second
//
// Returns:
//   - StreamerBuilderOption: option function to apply
func WithTickRate(fps float64) StreamerBuilderOption {
	return func(s *Streamer) {
		if fps <= 0 {
			fps = 60
		}
		s.tickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithRingTracker gives the streamer a RingTracker listening to it, moved to
// the viewer position every Run tick. The tracker's base size defaults to the
// streamer's world base size.
//
// Parameters:
//   - options: functional options for the tracker
//
// Returns:
//   - StreamerBuilderOption: option function to apply
func WithRingTracker(options ...RingTrackerBuilderOption) StreamerBuilderOption {
	return func(s *Streamer) {
		s.trackerOptions = options
		s.tracked = true
	}
}

// WithViewer sets the callback Run asks for each tick's view.
//
// Parameters:
//   - fn: returns the view for a tick of dt seconds
//
// Returns:
//   - StreamerBuilderOption: option function to apply
func WithViewer(fn func(dt float32) layer.View) StreamerBuilderOption {
	return func(s *Streamer) {
		s.viewer = fn
	}
}
