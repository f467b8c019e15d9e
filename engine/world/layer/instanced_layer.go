package layer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/arena"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/diag"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/instance"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrNotPlaced is returned by Harvest for an instance that was dropped or already harvested.
var ErrNotPlaced = errors.New("layer: instance not placed")

// slot locates one of a chunk's instances: draw call index in the chunk, and local index.
type slot struct {
	dc    int
	local uint32
}

var noSlot = slot{dc: -1}

// instancedChunk is what an InstancedLayer holds for one chunk.
type instancedChunk struct {
	chunk     chunk.Chunk
	state     chunkState
	lodIndex  int
	drawCalls []*instance.DrawCall
	// slots maps the chunk result's instance index to its table slot.
	slots []slot
	// owners maps each draw call's local slots back to instance indices.
	owners  [][]int
	task    *task.GpuTask
	dropped int
}

// billboardUniform is the per-layer billboard state read by the billboard shader.
type billboardUniform struct {
	Angle  float32
	Frame  float32
	Frames float32
	Time   float32
}

// InstancedLayer renders per-chunk instances of a bound asset package through
// bounded draw calls over an instance table. Chunks with lod below the cutoff
// draw the package meshes; the rest draw camera-facing billboards. The two
// representations share one lifecycle; only the LOD index given to the draw
// call allocator differs, the billboard using index MeshLODs().
type InstancedLayer struct {
	base
	settings *settings

	uploader  gpu.Uploader
	table     instance.InstanceAttributeTable
	drawCalls instance.DrawCallAllocator
	meshes    arena.GeometryArena

	pkg       *content.Package
	pkgTask   *task.GpuTask
	lods      [][]*arena.Binding
	billboard *arena.Binding
	frames    int

	uniformBuffer gpu.BufferID
	uniform       billboardUniform

	chunks map[chunk.Key]*instancedChunk
}

var _ Layer = &InstancedLayer{}

// NewInstancedLayer creates an instanced layer with its instance table,
// package arena and billboard uniform buffer on uploader. The layer accepts
// chunks once a package is bound with SetPackage.
//
// Parameters:
//   - category: the content category the layer renders
//   - uploader: backend owning the layer's buffers
//   - tasks: the GPU task manager that submits the layer's writes
//   - options: functional options for the layer
//
// Returns:
//   - *InstancedLayer: the layer
//   - error: error if a buffer could not be created
func NewInstancedLayer(category content.Category, uploader gpu.Uploader, tasks *task.GpuTaskManager, options ...LayerBuilderOption) (*InstancedLayer, error) {
	if tasks == nil {
		panic("layer: NewInstancedLayer requires a non-nil task manager")
	}
	s := defaultSettings(category)
	s.vertexCapacity, s.indexCapacity = 1<<16, 3<<16
	for _, opt := range options {
		opt(s)
	}

	table, err := instance.NewInstanceAttributeTable(uploader,
		instance.WithTableLabel(s.name+" instances"),
		instance.WithMaxInstancesPerDrawCall(s.maxPerCall),
		instance.WithDrawCallSlots(s.drawCallSlots),
	)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", s.name, err)
	}
	meshes, err := arena.NewGeometryArena(uploader,
		arena.WithLabel(s.name+" meshes"),
		arena.WithVertexCapacity(s.vertexCapacity),
		arena.WithIndexCapacity(s.indexCapacity),
	)
	if err != nil {
		table.Release()
		return nil, fmt.Errorf("layer %s: %w", s.name, err)
	}
	uniform := gpu.NewBufferID()
	if err := uploader.CreateBuffer(uniform, s.name+" billboard", 16, gpu.UsageUniform); err != nil {
		table.Release()
		meshes.Release()
		return nil, fmt.Errorf("layer %s: %w", s.name, err)
	}

	return &InstancedLayer{
		base:          s.base(tasks),
		settings:      s,
		uploader:      uploader,
		table:         table,
		drawCalls:     instance.NewDrawCallAllocator(table, s.maxPerGeometryLOD),
		meshes:        meshes,
		uniformBuffer: uniform,
		chunks:        make(map[chunk.Key]*instancedChunk),
	}, nil
}

// Ready reports whether a package is bound.
func (l *InstancedLayer) Ready() bool {
	return l.pkg != nil
}

// MeshLODs returns the number of mesh LODs per geometry; it is also the LOD
// index of the billboard representation.
func (l *InstancedLayer) MeshLODs() int {
	return l.settings.meshLODs
}

// Table returns the layer's instance table.
func (l *InstancedLayer) Table() instance.InstanceAttributeTable {
	return l.table
}

// DrawCalls returns the layer's draw call allocator.
func (l *InstancedLayer) DrawCalls() instance.DrawCallAllocator {
	return l.drawCalls
}

// UniformBuffer returns the id of the billboard uniform buffer.
func (l *InstancedLayer) UniformBuffer() gpu.BufferID {
	return l.uniformBuffer
}

// WaitForLoad loads bundle from src and extends every geometry's LOD chain to
// MeshLODs() by simplification. It reads no layer state besides settings and
// may run on any goroutine; bind the result with SetPackage on the owner.
//
// Parameters:
//   - ctx: cancellation token
//   - src: the asset source
//   - bundle: the bundle to load
//
// Returns:
//   - *content.Package: the package with complete LOD chains
//   - error: load, simplification or abort error
func (l *InstancedLayer) WaitForLoad(ctx context.Context, src content.AssetSource, bundle content.Bundle) (*content.Package, error) {
	pkg, err := src.Load(ctx, bundle)
	if err != nil {
		return nil, fmt.Errorf("layer %s: loading %s: %w", l.name, bundle.Name, err)
	}
	if len(pkg.Geometries) == 0 {
		return nil, fmt.Errorf("layer %s: bundle %s has no geometry", l.name, bundle.Name)
	}

	out := &content.Package{Name: pkg.Name, Geometries: make([]content.GeometryAsset, len(pkg.Geometries))}
	for i, g := range pkg.Geometries {
		if len(g.LODs) == 0 {
			return nil, fmt.Errorf("layer %s: geometry %s has no mesh", l.name, g.Name)
		}
		lods := append([]*common.Mesh(nil), g.LODs...)
		for len(lods) < l.settings.meshLODs {
			next, err := l.settings.simplifier.Simplify(ctx, lods[len(lods)-1], 0.5)
			if err != nil {
				return nil, fmt.Errorf("layer %s: simplifying %s: %w", l.name, g.Name, err)
			}
			if next.Empty() {
				next = lods[len(lods)-1]
			}
			lods = append(lods, next)
		}
		out.Geometries[i] = content.GeometryAsset{
			Name:            g.Name,
			LODs:            lods[:l.settings.meshLODs],
			BillboardFrames: max(g.BillboardFrames, 1),
		}
	}
	return out, nil
}

// SetPackage uploads the package meshes and the billboard quad into the
// layer's mesh arena and marks the layer ready. It can only be called while
// the layer holds no chunks.
//
// Parameters:
//   - pkg: a package produced by WaitForLoad
//
// Returns:
//   - error: error if chunks are live, a chain is short or the arena is too small
func (l *InstancedLayer) SetPackage(pkg *content.Package) error {
	if len(l.chunks) > 0 {
		return fmt.Errorf("layer %s: SetPackage with %d live chunks", l.name, len(l.chunks))
	}
	if pkg.LODCount() < l.settings.meshLODs {
		return fmt.Errorf("layer %s: package %s has %d LODs, need %d", l.name, pkg.Name, pkg.LODCount(), l.settings.meshLODs)
	}
	l.unbindPackage()

	var staged []gpu.BufferWrite
	var allocated []*arena.Binding
	fail := func(err error) error {
		for _, b := range allocated {
			l.meshes.Free(b)
		}
		return fmt.Errorf("layer %s: binding package %s: %w", l.name, pkg.Name, err)
	}
	upload := func(m *common.Mesh) (*arena.Binding, error) {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		b, err := l.meshes.Alloc(m.VertexCount(), m.IndexCount(), m.Bounds())
		if err != nil {
			return nil, err
		}
		allocated = append(allocated, b)
		staged = append(staged, l.meshes.Stage(b, m)...)
		return b, nil
	}

	lods := make([][]*arena.Binding, len(pkg.Geometries))
	frames := 1
	for gi, g := range pkg.Geometries {
		lods[gi] = make([]*arena.Binding, l.settings.meshLODs)
		for li := range l.settings.meshLODs {
			b, err := upload(g.LODs[li])
			if err != nil {
				return fail(err)
			}
			lods[gi][li] = b
		}
		frames = max(frames, g.BillboardFrames)
	}
	quad, err := upload(billboardQuad())
	if err != nil {
		return fail(err)
	}

	t, err := l.tasks.Transact(l.name+" package", func(tx *task.Tx) error {
		tx.Write(staged...)
		return nil
	})
	if err != nil {
		return fail(err)
	}

	l.pkg = pkg
	l.pkgTask = t
	l.lods = lods
	l.billboard = quad
	l.frames = frames
	l.uniform = billboardUniform{Frame: -1, Frames: float32(frames)}
	l.logger.Info("package bound", "package", pkg.Name, "geometries", len(pkg.Geometries), "lods", l.settings.meshLODs)
	return nil
}

// LoadPackage is WaitForLoad followed by SetPackage on the calling goroutine.
func (l *InstancedLayer) LoadPackage(ctx context.Context, src content.AssetSource, bundle content.Bundle) error {
	pkg, err := l.WaitForLoad(ctx, src, bundle)
	if err != nil {
		return err
	}
	return l.SetPackage(pkg)
}

func (l *InstancedLayer) unbindPackage() {
	l.tasks.Cancel(l.pkgTask)
	l.pkgTask = nil
	for _, lods := range l.lods {
		for _, b := range lods {
			l.meshes.Free(b)
		}
	}
	if l.billboard != nil {
		l.meshes.Free(l.billboard)
	}
	l.pkg, l.lods, l.billboard = nil, nil, nil
}

// lodIndex selects the representation for a chunk: the mesh LOD matching the
// chunk LOD below the cutoff, the billboard at or above it.
func (l *InstancedLayer) lodIndex(c chunk.Chunk) int {
	if c.LOD >= l.settings.lodCutoff {
		return l.settings.meshLODs
	}
	return min(int(c.LOD), l.settings.meshLODs-1)
}

// Billboard reports whether chunk c is drawn with billboards.
func (l *InstancedLayer) Billboard(c chunk.Chunk) bool {
	return l.lodIndex(c) == l.settings.meshLODs
}

func (l *InstancedLayer) AddChunk(c chunk.Chunk, res *content.ChunkResult) error {
	if l.pkg == nil {
		return ErrPackageNotReady
	}
	key := c.Key()
	if _, ok := l.chunks[key]; ok {
		panic(fmt.Sprintf("layer %s: chunk %v added twice", l.name, key))
	}
	st := &instancedChunk{chunk: c, state: stateUnallocated, lodIndex: l.lodIndex(c)}
	l.chunks[key] = st

	var insts []content.Instance
	if res != nil {
		insts = res.Instances[l.category]
	}
	if len(insts) == 0 {
		return nil
	}
	st.slots = make([]slot, len(insts))
	for i := range st.slots {
		st.slots[i] = noSlot
	}

	// Group instance indices by geometry, in geometry order.
	groups := make(map[int][]int)
	var order []int
	for i, in := range insts {
		if in.Geometry < 0 || in.Geometry >= len(l.pkg.Geometries) {
			st.dropped++
			continue
		}
		if _, ok := groups[in.Geometry]; !ok {
			order = append(order, in.Geometry)
		}
		groups[in.Geometry] = append(groups[in.Geometry], i)
	}
	sort.Ints(order)

	bounds := l.bounds(c)
	perCall := int(l.table.MaxPerCall())
	for _, g := range order {
		idx := groups[g]
		for start := 0; start < len(idx); start += perCall {
			batch := idx[start:min(start+perCall, len(idx))]
			dc, err := l.drawCalls.Alloc(g, st.lodIndex, uint32(len(batch)), bounds)
			if err != nil {
				if !errors.Is(err, instance.ErrDrawCallExhausted) {
					panic(fmt.Sprintf("layer %s: %v", l.name, err))
				}
				st.dropped += len(idx) - start
				break
			}
			owners := make([]int, len(batch))
			for local, i := range batch {
				l.table.Write(dc, uint32(local), l.record(insts[i], st.lodIndex))
				st.slots[i] = slot{dc: len(st.drawCalls), local: uint32(local)}
				owners[local] = i
			}
			st.drawCalls = append(st.drawCalls, dc)
			st.owners = append(st.owners, owners)
		}
	}

	if st.dropped > 0 {
		l.report(diag.InstancesDropped, key, len(insts), len(insts)-st.dropped, nil)
	}
	if len(st.drawCalls) == 0 {
		return nil
	}
	t, err := l.tasks.Transact(l.name+" "+key.String(), func(tx *task.Tx) error {
		for _, dc := range st.drawCalls {
			if w, ok := l.table.Flush(dc); ok {
				tx.Write(w)
			}
		}
		return nil
	})
	if err != nil {
		for _, dc := range st.drawCalls {
			l.drawCalls.Free(dc)
		}
		st.drawCalls, st.owners, st.slots = nil, nil, nil
		return fmt.Errorf("layer %s chunk %v: %w", l.name, key, err)
	}
	st.task = t
	st.state = stateAllocated
	return nil
}

// record converts a generated instance to its table record. Billboards carry
// the geometry index and its frame count in Aux so the shader can pick the
// spritesheet row.
func (l *InstancedLayer) record(in content.Instance, lodIndex int) instance.Record {
	r := instance.Record{
		Position:    in.Position,
		Scale:       in.Scale,
		Orientation: in.Orientation,
		Aux:         in.Aux,
	}
	if lodIndex == l.settings.meshLODs {
		r.Aux[2] = float32(in.Geometry)
		r.Aux[3] = float32(l.pkg.Geometries[in.Geometry].BillboardFrames)
	}
	return r
}

func (l *InstancedLayer) RemoveChunk(c chunk.Chunk) {
	key := c.Key()
	st, ok := l.chunks[key]
	if !ok {
		return
	}
	delete(l.chunks, key)
	l.tasks.Cancel(st.task)
	if st.state == stateAllocated {
		for _, dc := range st.drawCalls {
			l.drawCalls.Free(dc)
		}
	}
	st.drawCalls, st.owners, st.slots = nil, nil, nil
	st.state = stateFreed
}

// Harvest removes one placed instance from a live chunk without evicting the
// chunk. The draw call's last instance moves into the freed slot.
//
// Parameters:
//   - c: the chunk
//   - index: index of the instance in the chunk result's list for this layer
//
// Returns:
//   - error: ErrNotLive or ErrNotPlaced
func (l *InstancedLayer) Harvest(c chunk.Chunk, index int) error {
	st, ok := l.chunks[c.Key()]
	if !ok || st.state != stateAllocated {
		return ErrNotLive
	}
	if index < 0 || index >= len(st.slots) || st.slots[index] == noSlot {
		return ErrNotPlaced
	}
	s := st.slots[index]
	dc := st.drawCalls[s.dc]
	last := dc.ActiveCount() - 1

	if s.local != last {
		l.table.Move(dc, last, s.local)
		moved := st.owners[s.dc][last]
		st.owners[s.dc][s.local] = moved
		st.slots[moved] = slot{dc: s.dc, local: s.local}
	}
	st.owners[s.dc] = st.owners[s.dc][:last]
	st.slots[index] = noSlot
	if err := l.drawCalls.DecrementInstanceCount(dc, 1); err != nil {
		return err
	}

	return st.task.Extend(func(tx *task.Tx) error {
		if w, ok := l.table.Flush(dc); ok {
			tx.Write(w)
		}
		return nil
	})
}

// Update culls draw calls against the view and, for billboards, refreshes the
// uniform holding the camera yaw and the spritesheet frame facing the camera.
func (l *InstancedLayer) Update(v View) {
	var dcs []*instance.DrawCall
	if v.Frustum != nil {
		dcs = l.drawCalls.Visible(v.Frustum)
	} else {
		dcs = l.drawCalls.Active()
	}
	l.visible = l.visible[:0]
	for _, dc := range dcs {
		if dc.ActiveCount() == 0 {
			continue
		}
		first, _ := dc.TableRegion()
		l.visible = append(l.visible, Draw{
			Binding:       l.bindingFor(dc),
			FirstInstance: first,
			InstanceCount: dc.ActiveCount(),
		})
	}

	if l.pkg == nil {
		return
	}
	angle := float32(math.Atan2(float64(v.Forward[0]), float64(v.Forward[2])))
	if angle < 0 {
		angle += 2 * math.Pi
	}
	frame := float32(int(math.Round(float64(angle)/(2*math.Pi)*float64(l.frames))) % l.frames)
	if frame == l.uniform.Frame && mgl32.FloatEqual(angle, l.uniform.Angle) {
		return
	}
	l.uniform = billboardUniform{Angle: angle, Frame: frame, Frames: float32(l.frames), Time: v.Time}
	u := l.uniform
	if _, err := l.tasks.Transact(l.name+" billboard", func(tx *task.Tx) error {
		tx.Write(gpu.BufferWrite{Buffer: l.uniformBuffer, Data: common.CopyToBytes([]billboardUniform{u})})
		return nil
	}); err != nil {
		l.logger.Error("billboard uniform update failed", "error", err)
	}
}

func (l *InstancedLayer) bindingFor(dc *instance.DrawCall) *arena.Binding {
	if dc.LODIndex == l.settings.meshLODs {
		return l.billboard
	}
	return l.lods[dc.GeometryIndex][dc.LODIndex]
}

func (l *InstancedLayer) Stats() Stats {
	s := Stats{Name: l.name, Chunks: len(l.chunks), Arena: l.meshes.Stats()}
	for _, st := range l.chunks {
		if st.state == stateAllocated {
			s.Allocated++
		}
		s.DrawCalls += len(st.drawCalls)
		for _, dc := range st.drawCalls {
			s.Instances += int(dc.ActiveCount())
		}
		s.Dropped += st.dropped
	}
	return s
}

func (l *InstancedLayer) Release() {
	for _, st := range l.chunks {
		l.RemoveChunk(st.chunk)
	}
	l.unbindPackage()
	l.table.Release()
	l.meshes.Release()
	l.uploader.DestroyBuffer(l.uniformBuffer)
}

// billboardQuad is a unit quad in the XY plane, bottom centre at the origin,
// expanded and turned toward the camera in the vertex shader.
func billboardQuad() *common.Mesh {
	n := mgl32.Vec3{0, 0, 1}
	return &common.Mesh{
		Positions: []mgl32.Vec3{{-0.5, 0, 0}, {0.5, 0, 0}, {-0.5, 1, 0}, {0.5, 1, 0}},
		Normals:   []mgl32.Vec3{n, n, n, n},
		Indices:   []uint32{0, 1, 2, 2, 1, 3},
	}
}
