package layer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/arena"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/diag"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
	"github.com/go-gl/mathgl/mgl32"
)

// geometryChunk is what a GeometryLayer holds for one chunk.
type geometryChunk struct {
	chunk   chunk.Chunk
	state   chunkState
	binding *arena.Binding
	task    *task.GpuTask

	physics    content.PhysicsHandle
	hasPhysics bool
}

// GeometryLayer renders one mesh per chunk out of a shared GeometryArena,
// used for terrain and water.
type GeometryLayer struct {
	base
	arena   arena.GeometryArena
	physics content.PhysicsBackend
	chunks  map[chunk.Key]*geometryChunk
}

var _ Layer = &GeometryLayer{}

// NewGeometryLayer creates a geometry layer and its arena on uploader.
//
// Parameters:
//   - category: the content category the layer renders
//   - uploader: backend owning the arena buffers
//   - tasks: the GPU task manager that submits the layer's writes
//   - options: functional options for the layer
//
// Returns:
//   - *GeometryLayer: the layer
//   - error: error if the arena could not be created
func NewGeometryLayer(category content.Category, uploader gpu.Uploader, tasks *task.GpuTaskManager, options ...LayerBuilderOption) (*GeometryLayer, error) {
	if tasks == nil {
		panic("layer: NewGeometryLayer requires a non-nil task manager")
	}
	s := defaultSettings(category)
	for _, opt := range options {
		opt(s)
	}

	a, err := arena.NewGeometryArena(uploader,
		arena.WithLabel(s.name),
		arena.WithVertexCapacity(s.vertexCapacity),
		arena.WithIndexCapacity(s.indexCapacity),
	)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", s.name, err)
	}

	return &GeometryLayer{
		base:    s.base(tasks),
		arena:   a,
		physics: s.physics,
		chunks:  make(map[chunk.Key]*geometryChunk),
	}, nil
}

// Arena returns the layer's geometry arena.
func (l *GeometryLayer) Arena() arena.GeometryArena {
	return l.arena
}

func (l *GeometryLayer) AddChunk(c chunk.Chunk, res *content.ChunkResult) error {
	key := c.Key()
	if _, ok := l.chunks[key]; ok {
		panic(fmt.Sprintf("layer %s: chunk %v added twice", l.name, key))
	}
	st := &geometryChunk{chunk: c, state: stateUnallocated}
	l.chunks[key] = st

	var mesh *common.Mesh
	if res != nil {
		mesh = res.Geometry[l.category]
	}
	if mesh.Empty() {
		return nil
	}
	if err := mesh.Validate(); err != nil {
		return fmt.Errorf("layer %s chunk %v: %w", l.name, key, err)
	}

	b, err := l.arena.Alloc(mesh.VertexCount(), mesh.IndexCount(), l.bounds(c))
	if err != nil {
		if errors.Is(err, arena.ErrOutOfSpace) {
			l.report(diag.AllocationExhausted, key, int(mesh.VertexCount()), 0, err)
			return nil
		}
		return err
	}
	st.binding = b
	st.state = stateAllocated

	t, err := l.tasks.Transact(l.name+" "+key.String(), func(tx *task.Tx) error {
		tx.Write(l.arena.Stage(b, mesh)...)
		return nil
	})
	if err != nil {
		l.arena.Free(b)
		st.binding = nil
		st.state = stateUnallocated
		return fmt.Errorf("layer %s chunk %v: %w", l.name, key, err)
	}
	st.task = t

	if l.physics != nil {
		l.cook(key, st.task, mesh)
	}
	return nil
}

// cook runs physics cooking off the owning goroutine and applies the result
// back on it, provided the chunk's task is still the live one.
func (l *GeometryLayer) cook(key chunk.Key, t *task.GpuTask, mesh *common.Mesh) {
	ctx := t.Context()
	l.scheduler.Go(func() {
		cooked, err := l.physics.CookGeometry(ctx, mesh)
		l.scheduler.Post(func() {
			l.applyCooked(key, t, cooked, err)
		})
	})
}

func (l *GeometryLayer) applyCooked(key chunk.Key, t *task.GpuTask, cooked *content.CookedBuffer, err error) {
	st, ok := l.chunks[key]
	live := ok && st.task == t && st.state == stateAllocated && !t.Cancelled()
	switch {
	case task.IsAborted(err) || !live:
		if err == nil {
			l.discard(key, t)
		}
		return
	case err != nil:
		l.report(diag.GenerationFailed, key, 0, 0, fmt.Errorf("cooking geometry: %w", err))
		return
	}

	h, err := l.physics.AddCookedGeometry(cooked, mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	if err != nil {
		l.report(diag.GenerationFailed, key, 0, 0, fmt.Errorf("adding cooked geometry: %w", err))
		return
	}
	st.physics = h
	st.hasPhysics = true
}

func (l *GeometryLayer) RemoveChunk(c chunk.Chunk) {
	key := c.Key()
	st, ok := l.chunks[key]
	if !ok {
		return
	}
	delete(l.chunks, key)
	l.tasks.Cancel(st.task)

	if st.hasPhysics {
		l.physics.RemoveGeometry(st.physics)
		st.hasPhysics = false
	}
	if st.state == stateAllocated {
		l.arena.Free(st.binding)
		st.binding = nil
	}
	st.state = stateFreed
}

func (l *GeometryLayer) Update(v View) {
	var bindings []*arena.Binding
	if v.Frustum != nil {
		bindings = l.arena.Visible(v.Frustum)
	} else {
		bindings = l.arena.Bindings()
	}
	l.visible = l.visible[:0]
	for _, b := range bindings {
		if b.Written() {
			l.visible = append(l.visible, Draw{Binding: b, InstanceCount: 1})
		}
	}
}

// Physics reports whether the chunk has registered collision geometry.
func (l *GeometryLayer) Physics(c chunk.Chunk) bool {
	st, ok := l.chunks[c.Key()]
	return ok && st.hasPhysics
}

func (l *GeometryLayer) Stats() Stats {
	s := Stats{Name: l.name, Chunks: len(l.chunks), Arena: l.arena.Stats()}
	for _, st := range l.chunks {
		if st.state == stateAllocated {
			s.Allocated++
		}
	}
	s.DrawCalls = s.Allocated
	return s
}

func (l *GeometryLayer) Release() {
	for _, st := range l.chunks {
		l.RemoveChunk(st.chunk)
	}
	l.arena.Release()
}
