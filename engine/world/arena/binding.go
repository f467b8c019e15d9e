package arena

import "github.com/Carmen-Shannon/oxy-stream/common"

// Binding records where one chunk's geometry lives inside the arena.
// It is created by Alloc, filled once by Stage, and destroyed once by Free.
type Binding struct {
	id    uint64
	arena *geometryArena

	// AttributeOffsets is the byte offset of this binding's first vertex in each channel buffer.
	AttributeOffsets [ChannelCount]uint64
	// BaseVertex is the element offset shared by every channel.
	BaseVertex uint32
	// IndexOffset is the byte offset of the first index in the index buffer.
	IndexOffset uint64
	// FirstIndex is IndexOffset in elements, as a draw call expects it.
	FirstIndex  uint32
	VertexCount uint32
	IndexCount  uint32
	Bounds      common.AABB

	written bool
}

// ID returns the arena-unique id of the binding.
func (b *Binding) ID() uint64 {
	return b.id
}

// Written reports whether the binding's geometry has been staged.
func (b *Binding) Written() bool {
	return b.written
}
