package arena

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
)

// ErrOutOfSpace is returned by Alloc when no free span can hold the request.
var ErrOutOfSpace = errors.New("arena: out of space")

// GeometryArena is a fixed-capacity set of shared GPU buffers, one per vertex
// channel plus one for indices, from which chunks allocate contiguous bindings.
//
// All vertex channels share one element layout, so a binding's BaseVertex is
// valid in every channel buffer. Allocation is first-fit over an offset-sorted
// freelist; Free merges the released span with free neighbours.
//
// A GeometryArena is not safe for concurrent use. It belongs to the goroutine
// that owns chunk lifecycle state.
type GeometryArena interface {
	// Alloc reserves space for vertexCount vertices and indexCount indices.
	// Vertex and index space are reserved together: if either cannot be satisfied
	// nothing is reserved.
	//
	// Parameters:
	//   - vertexCount: number of vertices, must be greater than zero
	//   - indexCount: number of indices, may be zero for non-indexed geometry
	//   - bounds: world-space bounds of the geometry, kept for culling
	//
	// Returns:
	//   - *Binding: the new binding
	//   - error: ErrOutOfSpace (wrapped) if the request does not fit
	Alloc(vertexCount, indexCount uint32, bounds common.AABB) (*Binding, error)

	// Free returns a binding's spans to the freelists.
	// Freeing a binding this arena does not hold panics.
	//
	// Parameters:
	//   - b: the binding to free
	Free(b *Binding)

	// Stage builds the buffer writes that upload mesh into b: one write per
	// channel present in the mesh and one for the remapped indices. A binding
	// can be staged once.
	//
	// Parameters:
	//   - b: a live, unwritten binding
	//   - mesh: geometry whose vertex and index counts equal the binding's
	//
	// Returns:
	//   - []gpu.BufferWrite: writes owning their data, ready to submit
	Stage(b *Binding, mesh *common.Mesh) []gpu.BufferWrite

	// Buffer returns the id of the buffer backing a vertex channel.
	Buffer(ch Channel) gpu.BufferID

	// IndexBuffer returns the id of the shared index buffer.
	IndexBuffer() gpu.BufferID

	// Live returns the number of live bindings.
	Live() int

	// Bindings returns every live binding ordered by BaseVertex.
	Bindings() []*Binding

	// Visible returns the live, written bindings whose bounds intersect the frustum,
	// ordered by BaseVertex.
	//
	// Parameters:
	//   - f: the view frustum
	//
	// Returns:
	//   - []*Binding: the bindings to draw
	Visible(f *common.Frustum) []*Binding

	// Stats returns a snapshot of capacity, usage and fragmentation.
	Stats() Stats

	// Release destroys the arena's GPU buffers. The arena must not be used afterwards.
	Release()
}

type geometryArena struct {
	label          string
	uploader       gpu.Uploader
	vertexCapacity uint32
	indexCapacity  uint32

	buffers     [ChannelCount]gpu.BufferID
	indexBuffer gpu.BufferID

	vertices *freelist
	indices  *freelist

	nextID uint64
	live   map[uint64]*Binding
}

var _ GeometryArena = &geometryArena{}

// NewGeometryArena creates an arena and its GPU buffers on uploader.
//
// Parameters:
//   - uploader: the backend that owns the buffers
//   - options: functional options for capacity and labelling
//
// Returns:
//   - GeometryArena: the arena
//   - error: error if a buffer could not be created
func NewGeometryArena(uploader gpu.Uploader, options ...GeometryArenaBuilderOption) (GeometryArena, error) {
	if uploader == nil {
		panic("arena: NewGeometryArena requires a non-nil uploader")
	}
	a := &geometryArena{
		label:          "arena",
		uploader:       uploader,
		vertexCapacity: 1 << 18,
		indexCapacity:  3 << 18,
		live:           make(map[uint64]*Binding),
	}
	for _, opt := range options {
		opt(a)
	}
	if a.vertexCapacity == 0 || a.indexCapacity == 0 {
		return nil, fmt.Errorf("arena %s: capacities must be positive (vertices %d, indices %d)", a.label, a.vertexCapacity, a.indexCapacity)
	}

	a.vertices = newFreelist(a.vertexCapacity)
	a.indices = newFreelist(a.indexCapacity)

	created := make([]gpu.BufferID, 0, ChannelCount+1)
	cleanup := func() {
		for _, id := range created {
			uploader.DestroyBuffer(id)
		}
	}
	for ch := range ChannelCount {
		id := gpu.NewBufferID()
		size := uint64(a.vertexCapacity) * ch.Stride()
		if err := uploader.CreateBuffer(id, a.label+" "+ch.String(), size, gpu.UsageVertex|gpu.UsageStorage); err != nil {
			cleanup()
			return nil, fmt.Errorf("arena %s: %w", a.label, err)
		}
		created = append(created, id)
		a.buffers[ch] = id
	}
	a.indexBuffer = gpu.NewBufferID()
	if err := uploader.CreateBuffer(a.indexBuffer, a.label+" index", uint64(a.indexCapacity)*IndexSize, gpu.UsageIndex); err != nil {
		cleanup()
		return nil, fmt.Errorf("arena %s: %w", a.label, err)
	}

	return a, nil
}

func (a *geometryArena) Alloc(vertexCount, indexCount uint32, bounds common.AABB) (*Binding, error) {
	if vertexCount == 0 {
		panic("arena: Alloc of zero vertices")
	}

	base, ok := a.vertices.take(vertexCount)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs %d vertices, largest free span is %d", ErrOutOfSpace, a.label, vertexCount, a.vertices.largest())
	}
	var first uint32
	if indexCount > 0 {
		first, ok = a.indices.take(indexCount)
		if !ok {
			a.vertices.release(base, vertexCount)
			return nil, fmt.Errorf("%w: %s needs %d indices, largest free span is %d", ErrOutOfSpace, a.label, indexCount, a.indices.largest())
		}
	}

	a.nextID++
	b := &Binding{
		id:          a.nextID,
		arena:       a,
		BaseVertex:  base,
		FirstIndex:  first,
		IndexOffset: uint64(first) * IndexSize,
		VertexCount: vertexCount,
		IndexCount:  indexCount,
		Bounds:      bounds,
	}
	for ch := range ChannelCount {
		b.AttributeOffsets[ch] = uint64(base) * ch.Stride()
	}
	a.live[b.id] = b
	return b, nil
}

func (a *geometryArena) Free(b *Binding) {
	a.mustHold(b, "Free")
	a.vertices.release(b.BaseVertex, b.VertexCount)
	a.indices.release(b.FirstIndex, b.IndexCount)
	delete(a.live, b.id)
	b.arena = nil
}

func (a *geometryArena) Stage(b *Binding, mesh *common.Mesh) []gpu.BufferWrite {
	a.mustHold(b, "Stage")
	if b.written {
		panic(fmt.Sprintf("arena: binding %d staged twice", b.id))
	}
	if mesh.VertexCount() != b.VertexCount || mesh.IndexCount() != b.IndexCount {
		panic(fmt.Sprintf("arena: mesh (%d vertices, %d indices) does not match binding %d (%d, %d)",
			mesh.VertexCount(), mesh.IndexCount(), b.id, b.VertexCount, b.IndexCount))
	}
	if mesh.Normals != nil && len(mesh.Normals) != len(mesh.Positions) {
		panic("arena: mesh normal count does not match positions")
	}
	if mesh.Materials != nil && len(mesh.Materials) != len(mesh.Positions) {
		panic("arena: mesh material count does not match positions")
	}

	writes := make([]gpu.BufferWrite, 0, ChannelCount+1)
	channels := [ChannelCount][]byte{
		ChannelPosition: common.CopyToBytes(mesh.Positions),
		ChannelNormal:   common.CopyToBytes(mesh.Normals),
		ChannelMaterial: common.CopyToBytes(mesh.Materials),
	}
	for ch, data := range channels {
		if data == nil {
			continue
		}
		writes = append(writes, gpu.BufferWrite{
			Buffer: a.buffers[ch],
			Offset: b.AttributeOffsets[ch],
			Data:   data,
		})
	}
	if b.IndexCount > 0 {
		remapped := RemapIndices(mesh.Indices, b.AttributeOffsets[ChannelPosition], ChannelPosition.Stride(), b.VertexCount)
		writes = append(writes, gpu.BufferWrite{
			Buffer: a.indexBuffer,
			Offset: b.IndexOffset,
			Data:   common.CopyToBytes(remapped),
		})
	}

	b.written = true
	return writes
}

func (a *geometryArena) Buffer(ch Channel) gpu.BufferID {
	return a.buffers[ch]
}

func (a *geometryArena) IndexBuffer() gpu.BufferID {
	return a.indexBuffer
}

func (a *geometryArena) Live() int {
	return len(a.live)
}

func (a *geometryArena) Bindings() []*Binding {
	out := make([]*Binding, 0, len(a.live))
	for _, b := range a.live {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BaseVertex < out[j].BaseVertex })
	return out
}

func (a *geometryArena) Visible(f *common.Frustum) []*Binding {
	all := a.Bindings()
	out := all[:0]
	for _, b := range all {
		if b.written && f.IntersectsAABB(b.Bounds) {
			out = append(out, b)
		}
	}
	return out
}

func (a *geometryArena) Release() {
	for _, id := range a.buffers {
		a.uploader.DestroyBuffer(id)
	}
	a.uploader.DestroyBuffer(a.indexBuffer)
}

// mustHold panics unless b is a live binding of this arena.
func (a *geometryArena) mustHold(b *Binding, op string) {
	if b == nil {
		panic(fmt.Sprintf("arena: %s of nil binding", op))
	}
	if b.arena != a || a.live[b.id] != b {
		panic(fmt.Sprintf("arena: %s of unknown or freed binding %d", op, b.id))
	}
}
