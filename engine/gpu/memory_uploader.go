package gpu

import (
	"fmt"
	"sync"
)

// MemoryUploader keeps a CPU mirror of every buffer. It backs headless runs and
// lets tests read back exactly what would have reached the GPU.
type MemoryUploader struct {
	mu      *sync.Mutex
	buffers map[BufferID][]byte
	labels  map[BufferID]string
	writes  int
	bytes   uint64
}

var _ Uploader = &MemoryUploader{}

// NewMemoryUploader creates an empty MemoryUploader.
func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{
		mu:      &sync.Mutex{},
		buffers: make(map[BufferID][]byte),
		labels:  make(map[BufferID]string),
	}
}

func (m *MemoryUploader) CreateBuffer(id BufferID, label string, size uint64, _ Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buffers[id]; ok {
		return fmt.Errorf("buffer %d (%s) already exists", id, label)
	}
	m.buffers[id] = make([]byte, size)
	m.labels[id] = label
	return nil
}

// WriteBuffers copies each write into the mirrored buffer.
// A write past the end of its buffer panics; the caller computed a bad offset.
func (m *MemoryUploader) WriteBuffers(writes []BufferWrite) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		buf, ok := m.buffers[w.Buffer]
		if !ok {
			continue
		}
		if w.End() > uint64(len(buf)) {
			panic(fmt.Sprintf("gpu: write [%d,%d) past end of buffer %q (%d bytes)", w.Offset, w.End(), m.labels[w.Buffer], len(buf)))
		}
		copy(buf[w.Offset:], w.Data)
		m.writes++
		m.bytes += uint64(len(w.Data))
	}
}

func (m *MemoryUploader) DestroyBuffer(id BufferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buffers, id)
	delete(m.labels, id)
}

// Read returns a copy of n bytes of buffer id starting at offset.
// Returns nil if the buffer does not exist or the range is out of bounds.
func (m *MemoryUploader) Read(id BufferID, offset, n uint64) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.buffers[id]
	if !ok || offset+n > uint64(len(buf)) {
		return nil
	}
	out := make([]byte, n)
	copy(out, buf[offset:offset+n])
	return out
}

// Size returns the size of buffer id in bytes, or 0 if it does not exist.
func (m *MemoryUploader) Size(id BufferID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.buffers[id]))
}

// Stats returns the number of applied writes and bytes written so far.
func (m *MemoryUploader) Stats() (writes int, bytes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes, m.bytes
}
