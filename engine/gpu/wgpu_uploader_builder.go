package gpu

import (
	"log/slog"

	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUUploaderBuilderOption is a functional option for configuring a WGPUUploader.
type WGPUUploaderBuilderOption func(*WGPUUploader)

// WithDevice makes the uploader write through an existing device and queue,
// typically the renderer's. The uploader will not release them.
//
// Parameters:
//   - device: the device to create buffers on
//   - queue: the queue to submit writes to
//
// Returns:
//   - WGPUUploaderBuilderOption: option function to apply
func WithDevice(device *wgpu.Device, queue *wgpu.Queue) WGPUUploaderBuilderOption {
	return func(u *WGPUUploader) {
		u.device = device
		u.queue = queue
	}
}

// WithFallbackAdapter forces a software adapter when the uploader creates its own device.
//
// Parameters:
//   - force: if true, requests the fallback adapter
//
// Returns:
//   - WGPUUploaderBuilderOption: option function to apply
func WithFallbackAdapter(force bool) WGPUUploaderBuilderOption {
	return func(u *WGPUUploader) {
		u.forceFallbackAdapter = force
	}
}

// WithLogger sets the logger used for buffer lifecycle messages.
//
// Parameters:
//   - logger: the logger to use
//
// Returns:
//   - WGPUUploaderBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) WGPUUploaderBuilderOption {
	return func(u *WGPUUploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}
