package gpu

import "sync/atomic"

// BufferID names a GPU buffer independently of the backend that owns it.
type BufferID uint32

var nextBufferID atomic.Uint32

// NewBufferID returns a process-unique buffer id. Zero is never returned.
func NewBufferID() BufferID {
	return BufferID(nextBufferID.Add(1))
}

// Usage describes how a buffer is bound by the render backend.
type Usage uint32

const (
	UsageVertex Usage = 1 << iota
	UsageIndex
	UsageStorage
	UsageUniform
)

// BufferWrite describes a single GPU buffer write operation targeting a buffer
// at a given byte offset.
type BufferWrite struct {
	Buffer BufferID
	Offset uint64
	Data   []byte
}

// End returns the byte offset one past the last byte written.
func (w BufferWrite) End() uint64 {
	return w.Offset + uint64(len(w.Data))
}

// Uploader is the seam between the streaming core and the render backend.
// Implementations own the actual GPU resources; the core only ever refers to
// them by BufferID.
type Uploader interface {
	// CreateBuffer allocates a zeroed buffer of the given size under id.
	//
	// Parameters:
	//   - id: the id the buffer will be addressed by
	//   - label: debug label forwarded to the backend
	//   - size: buffer size in bytes
	//   - usage: binding usage flags
	//
	// Returns:
	//   - error: error if the backend could not create the buffer or id is taken
	CreateBuffer(id BufferID, label string, size uint64, usage Usage) error

	// WriteBuffers submits a batch of buffer writes in order.
	// Writes targeting unknown buffers are skipped.
	//
	// Parameters:
	//   - writes: the writes to submit
	WriteBuffers(writes []BufferWrite)

	// DestroyBuffer releases the buffer registered under id. Unknown ids are ignored.
	//
	// Parameters:
	//   - id: the buffer to release
	DestroyBuffer(id BufferID)
}
