package gpu

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUUploader implements Uploader on a WebGPU device.
// It either creates its own headless device or adopts one owned by a renderer.
type WGPUUploader struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	owned    bool

	forceFallbackAdapter bool
	logger               *slog.Logger

	buffers map[BufferID]*wgpu.Buffer
}

var _ Uploader = &WGPUUploader{}

// NewWGPUUploader creates a WGPUUploader. Without WithDevice it requests an
// adapter and device of its own, with no surface attached.
//
// Parameters:
//   - options: functional options for uploader configuration
//
// Returns:
//   - *WGPUUploader: the uploader
//   - error: error if no adapter or device could be obtained
func NewWGPUUploader(options ...WGPUUploaderBuilderOption) (*WGPUUploader, error) {
	u := &WGPUUploader{
		mu:      &sync.Mutex{},
		logger:  slog.Default(),
		buffers: make(map[BufferID]*wgpu.Buffer),
	}
	for _, opt := range options {
		opt(u)
	}

	if u.device != nil {
		return u, nil
	}

	u.owned = true
	u.instance = wgpu.CreateInstance(nil)
	a, err := u.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: u.forceFallbackAdapter,
	})
	if err != nil {
		u.instance.Release()
		return nil, fmt.Errorf("requesting adapter: %w", err)
	}
	u.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Streaming Device",
	})
	if err != nil {
		u.adapter.Release()
		u.instance.Release()
		return nil, fmt.Errorf("requesting device: %w", err)
	}
	u.device = d
	u.queue = d.GetQueue()
	return u, nil
}

func (u *WGPUUploader) CreateBuffer(id BufferID, label string, size uint64, usage Usage) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.buffers[id]; ok {
		return fmt.Errorf("buffer %d (%s) already exists", id, label)
	}
	buf, err := u.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            wgpuUsage(usage) | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return fmt.Errorf("creating buffer %s: %w", label, err)
	}
	u.buffers[id] = buf
	u.logger.Debug("created gpu buffer", "label", label, "size", size)
	return nil
}

func (u *WGPUUploader) WriteBuffers(writes []BufferWrite) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, w := range writes {
		buf := u.buffers[w.Buffer]
		if buf == nil || len(w.Data) == 0 {
			continue
		}
		u.queue.WriteBuffer(buf, w.Offset, w.Data)
	}
}

func (u *WGPUUploader) DestroyBuffer(id BufferID) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if buf, ok := u.buffers[id]; ok {
		buf.Release()
		delete(u.buffers, id)
	}
}

// Buffer returns the wgpu buffer registered under id, for binding by a renderer.
//
// Parameters:
//   - id: the buffer id
//
// Returns:
//   - *wgpu.Buffer: the buffer, or nil if id is unknown
func (u *WGPUUploader) Buffer(id BufferID) *wgpu.Buffer {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.buffers[id]
}

// Release destroys every buffer and, if the uploader created its own device,
// the device, adapter and instance as well.
func (u *WGPUUploader) Release() {
	u.mu.Lock()
	defer u.mu.Unlock()

	for id, buf := range u.buffers {
		buf.Release()
		delete(u.buffers, id)
	}
	if !u.owned {
		return
	}
	if u.device != nil {
		u.device.Release()
		u.device = nil
	}
	if u.adapter != nil {
		u.adapter.Release()
		u.adapter = nil
	}
	if u.instance != nil {
		u.instance.Release()
		u.instance = nil
	}
}

func wgpuUsage(usage Usage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if usage&UsageVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	if usage&UsageIndex != 0 {
		out |= wgpu.BufferUsageIndex
	}
	if usage&UsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if usage&UsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	return out
}
