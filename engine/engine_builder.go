package engine

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-stream/engine/camera"
	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/diag"
)

// EngineBuilderOption is a functional option for configuring the engine.
type EngineBuilderOption func(*engine)

// WithLogger sets the logger shared by the engine, streamer, layers and recorder.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) EngineBuilderOption {
	return func(e *engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithUploader sets the GPU upload backend. Defaults to a gpu.MemoryUploader.
//
// Parameters:
//   - u: the uploader, for example a *gpu.WGPUUploader
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithUploader(u gpu.Uploader) EngineBuilderOption {
	return func(e *engine) {
		e.uploader = u
	}
}

// WithCompute sets the chunk content backend. Defaults to a content.ProcGen.
func WithCompute(c content.ComputeBackend) EngineBuilderOption {
	return func(e *engine) {
		e.compute = c
	}
}

// WithAssets sets the source instanced layers load their bundles from.
// Defaults to glTF files under the configured assets.dir, or content.BuiltinAssets.
func WithAssets(src content.AssetSource) EngineBuilderOption {
	return func(e *engine) {
		e.assets = src
	}
}

// WithCamera sets the camera whose view drives the tracker. Defaults to a
// camera drifting along +X at one chunk per second.
//
// Parameters:
//   - c: the camera
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithCamera(c camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.camera = c
	}
}

// WithCounter sets the diagnostics counter. Defaults to a counter forwarding
// to a slog reporter on the engine's logger.
func WithCounter(c *diag.Counter) EngineBuilderOption {
	return func(e *engine) {
		e.counter = c
	}
}
