package layer

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/arena"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/diag"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
	"github.com/go-gl/mathgl/mgl32"
)

// manualScheduler queues background work and posted results until the test runs them.
type manualScheduler struct {
	jobs   []func()
	posted []func()
}

func (s *manualScheduler) Go(fn func())   { s.jobs = append(s.jobs, fn) }
func (s *manualScheduler) Post(fn func()) { s.posted = append(s.posted, fn) }

func (s *manualScheduler) runJobs() {
	jobs := s.jobs
	s.jobs = nil
	for _, fn := range jobs {
		fn()
	}
}

func (s *manualScheduler) drain() {
	posted := s.posted
	s.posted = nil
	for _, fn := range posted {
		fn()
	}
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func quad(size float32) *common.Mesh {
	n := mgl32.Vec3{0, 1, 0}
	return &common.Mesh{
		Positions: []mgl32.Vec3{{0, 0, 0}, {size, 0, 0}, {0, 0, size}, {size, 0, size}},
		Normals:   []mgl32.Vec3{n, n, n, n},
		Indices:   []uint32{0, 2, 1, 1, 2, 3},
	}
}

func terrainResult(m *common.Mesh) *content.ChunkResult {
	res := content.NewChunkResult()
	res.Geometry[content.CategoryTerrain] = m
	return res
}

func newGeometryLayer(t *testing.T, options ...LayerBuilderOption) (*GeometryLayer, *task.GpuTaskManager, *gpu.MemoryUploader, *diag.Counter) {
	t.Helper()
	up := gpu.NewMemoryUploader()
	tasks := task.NewGpuTaskManager(context.Background())
	counter := diag.NewCounter(nil)
	options = append([]LayerBuilderOption{WithReporter(counter), WithLogger(quiet), WithArenaCapacity(64, 96)}, options...)
	l, err := NewGeometryLayer(content.CategoryTerrain, up, tasks, options...)
	if err != nil {
		t.Fatalf("NewGeometryLayer: %v", err)
	}
	return l, tasks, up, counter
}

func TestGeometryLayerAddRemove(t *testing.T) {
	l, tasks, up, _ := newGeometryLayer(t)
	c := chunk.Chunk{Min: [2]int32{2, 3}}

	if err := l.AddChunk(c, terrainResult(quad(32))); err != nil {
		t.Fatalf("AddChunk: %v", err)
	}
	if s := l.Stats(); s.Chunks != 1 || s.Allocated != 1 || s.Arena.VertexUsed != 4 || s.Arena.IndexUsed != 6 {
		t.Fatalf("stats after add = %+v", s)
	}
	if n := tasks.Flush(up); n == 0 {
		t.Fatalf("Flush submitted no writes")
	}

	l.Update(View{})
	if draws := l.Draws(); len(draws) != 1 || draws[0].Binding.IndexCount != 6 {
		t.Fatalf("draws = %+v, want one draw of 6 indices", draws)
	}

	l.RemoveChunk(c)
	l.RemoveChunk(c)
	if s := l.Stats(); s.Chunks != 0 || s.Arena.Live != 0 || s.Arena.VertexUsed != 0 {
		t.Fatalf("stats after remove = %+v", s)
	}
}

func TestGeometryLayerRemoveUnknownLeavesArena(t *testing.T) {
	l, _, _, _ := newGeometryLayer(t)
	if err := l.AddChunk(chunk.Chunk{}, terrainResult(quad(1))); err != nil {
		t.Fatal(err)
	}
	before := l.Arena().Stats()
	l.RemoveChunk(chunk.Chunk{Min: [2]int32{9, 9}})
	if after := l.Arena().Stats(); after != before {
		t.Errorf("arena changed by removing an unknown chunk: %+v -> %+v", before, after)
	}
}

func TestGeometryLayerEmptyMeshTracksChunk(t *testing.T) {
	l, tasks, _, _ := newGeometryLayer(t)
	c := chunk.Chunk{}
	if err := l.AddChunk(c, content.NewChunkResult()); err != nil {
		t.Fatal(err)
	}
	if s := l.Stats(); s.Chunks != 1 || s.Allocated != 0 {
		t.Errorf("stats = %+v, want one unallocated chunk", s)
	}
	if tasks.Pending() != 0 {
		t.Errorf("empty chunk queued %d tasks", tasks.Pending())
	}
	l.RemoveChunk(c)
}

func TestGeometryLayerDuplicateAddPanics(t *testing.T) {
	l, _, _, _ := newGeometryLayer(t)
	c := chunk.Chunk{}
	_ = l.AddChunk(c, terrainResult(quad(1)))
	defer func() {
		if recover() == nil {
			t.Error("second AddChunk of the same chunk did not panic")
		}
	}()
	_ = l.AddChunk(c, terrainResult(quad(1)))
}

func TestGeometryLayerOutOfSpaceReported(t *testing.T) {
	l, tasks, _, counter := newGeometryLayer(t, WithArenaCapacity(6, 12))
	if err := l.AddChunk(chunk.Chunk{}, terrainResult(quad(1))); err != nil {
		t.Fatal(err)
	}
	c := chunk.Chunk{Min: [2]int32{1, 0}}
	if err := l.AddChunk(c, terrainResult(quad(1))); err != nil {
		t.Fatalf("AddChunk on a full arena returned %v, want nil", err)
	}
	if counter.Count(diag.AllocationExhausted) != 1 {
		t.Fatalf("allocation_exhausted events = %d, want 1", counter.Count(diag.AllocationExhausted))
	}
	ev := counter.Events()[0]
	if ev.Chunk != c.Key() || !errors.Is(ev.Err, arena.ErrOutOfSpace) {
		t.Errorf("event = %+v", ev)
	}
	if s := l.Stats(); s.Chunks != 2 || s.Allocated != 1 {
		t.Errorf("stats = %+v, want 2 chunks, 1 allocated", s)
	}
	if tasks.Pending() != 1 {
		t.Errorf("pending tasks = %d, want 1", tasks.Pending())
	}
	l.RemoveChunk(c)
}

func TestGeometryLayerInvalidMesh(t *testing.T) {
	l, _, _, _ := newGeometryLayer(t)
	bad := quad(1)
	bad.Indices[0] = 40
	if err := l.AddChunk(chunk.Chunk{}, terrainResult(bad)); err == nil {
		t.Error("AddChunk accepted a mesh with an out of range index")
	}
}

func TestGeometryLayerPhysics(t *testing.T) {
	sched := &manualScheduler{}
	phys := content.NewHeadlessPhysics(0)
	l, _, _, counter := newGeometryLayer(t, WithScheduler(sched), WithPhysics(phys))

	c := chunk.Chunk{}
	if err := l.AddChunk(c, terrainResult(quad(4))); err != nil {
		t.Fatal(err)
	}
	sched.runJobs()
	if l.Physics(c) {
		t.Fatal("physics registered before the result was posted back")
	}
	sched.drain()
	if !l.Physics(c) || phys.Live() != 1 {
		t.Fatalf("physics not registered: layer=%v backend=%d", l.Physics(c), phys.Live())
	}

	l.RemoveChunk(c)
	if phys.Live() != 0 {
		t.Errorf("physics shapes after remove = %d, want 0", phys.Live())
	}
	if counter.Count(diag.LateResultDiscarded) != 0 {
		t.Errorf("unexpected late result")
	}
}

func TestGeometryLayerLateCookDiscarded(t *testing.T) {
	sched := &manualScheduler{}
	phys := content.NewHeadlessPhysics(0)
	l, _, _, counter := newGeometryLayer(t, WithScheduler(sched), WithPhysics(phys))

	c := chunk.Chunk{}
	if err := l.AddChunk(c, terrainResult(quad(4))); err != nil {
		t.Fatal(err)
	}
	first := l.chunks[c.Key()].task.ID()
	sched.runJobs()
	l.RemoveChunk(c)
	// Re-adding the same key must not let the first cook land on the new chunk.
	if err := l.AddChunk(c, terrainResult(quad(4))); err != nil {
		t.Fatal(err)
	}
	sched.drain()

	if counter.Count(diag.LateResultDiscarded) != 1 {
		t.Fatalf("late_result_discarded = %d, want 1", counter.Count(diag.LateResultDiscarded))
	}
	if got := counter.Events()[0].Task; got != first {
		t.Errorf("discarded cook task = %v, want %v", got, first)
	}
	if phys.Live() != 0 || l.Physics(c) {
		t.Errorf("stale cook was applied")
	}

	sched.runJobs()
	sched.drain()
	if !l.Physics(c) {
		t.Errorf("second cook was not applied")
	}
}

func TestGeometryLayerCookAbortedSilently(t *testing.T) {
	sched := &manualScheduler{}
	l, _, _, counter := newGeometryLayer(t, WithScheduler(sched), WithPhysics(content.NewHeadlessPhysics(0)))

	c := chunk.Chunk{}
	_ = l.AddChunk(c, terrainResult(quad(4)))
	l.RemoveChunk(c)
	sched.runJobs()
	sched.drain()
	if n := len(counter.Events()); n != 0 {
		t.Errorf("aborted cook produced %d diagnostics", n)
	}
}

func TestGeometryLayerCulling(t *testing.T) {
	l, _, _, _ := newGeometryLayer(t, WithChunkGeometry(32, -8, 8))
	near := chunk.Chunk{Min: [2]int32{0, -2}}
	far := chunk.Chunk{Min: [2]int32{0, 4}}
	_ = l.AddChunk(near, terrainResult(quad(32)))
	_ = l.AddChunk(far, terrainResult(quad(32)))

	// Looking down -z from z=16: the chunk at z in [-64,-32] is in view, [128,160] is behind.
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 500)
	view := mgl32.LookAtV(mgl32.Vec3{16, 0, 16}, mgl32.Vec3{16, 0, -100}, mgl32.Vec3{0, 1, 0})
	f := common.ExtractFrustum(proj.Mul4(view))
	l.Update(View{Frustum: &f})

	draws := l.Draws()
	if len(draws) != 1 {
		t.Fatalf("visible draws = %d, want 1", len(draws))
	}
}

func TestGeometryLayerDrawsSurviveUpdate(t *testing.T) {
	l, _, _, _ := newGeometryLayer(t)
	a := chunk.Chunk{}
	b := chunk.Chunk{Min: [2]int32{1, 0}}
	_ = l.AddChunk(a, terrainResult(quad(4)))
	l.Update(View{})

	held := l.Draws()
	if len(held) != 1 {
		t.Fatalf("draws = %d, want 1", len(held))
	}
	want := held[0]

	l.RemoveChunk(a)
	_ = l.AddChunk(b, terrainResult(quad(2)))
	l.Update(View{})

	if held[0] != want {
		t.Errorf("held draw changed after Update: %+v, want %+v", held[0], want)
	}
	if now := l.Draws(); len(now) != 1 || now[0].Binding == want.Binding {
		t.Errorf("draws after Update = %+v, want the new chunk's binding", now)
	}
}

// instanced layer

func newInstancedLayer(t *testing.T, options ...LayerBuilderOption) (*InstancedLayer, *task.GpuTaskManager, *gpu.MemoryUploader, *diag.Counter) {
	t.Helper()
	up := gpu.NewMemoryUploader()
	tasks := task.NewGpuTaskManager(context.Background())
	counter := diag.NewCounter(nil)
	options = append([]LayerBuilderOption{
		WithReporter(counter),
		WithLogger(quiet),
		WithMeshLODs(2),
		WithLODCutoff(2),
		WithDrawCalls(4, 8, 2),
	}, options...)
	l, err := NewInstancedLayer(content.CategoryVegetation, up, tasks, options...)
	if err != nil {
		t.Fatalf("NewInstancedLayer: %v", err)
	}
	return l, tasks, up, counter
}

func loadTrees(t *testing.T, l *InstancedLayer) {
	t.Helper()
	bundle := content.Bundle{Name: "trees", Geometries: []string{"tree", "rock"}}
	if err := l.LoadPackage(context.Background(), content.BuiltinAssets(), bundle); err != nil {
		t.Fatalf("LoadPackage: %v", err)
	}
}

func vegetation(geometry, n int) *content.ChunkResult {
	res := content.NewChunkResult()
	for i := range n {
		res.Instances[content.CategoryVegetation] = append(res.Instances[content.CategoryVegetation], content.Instance{
			Geometry:    geometry,
			Position:    mgl32.Vec3{float32(i), 0, 0},
			Orientation: mgl32.QuatIdent(),
			Scale:       1,
		})
	}
	return res
}

func TestInstancedLayerPackageNotReady(t *testing.T) {
	l, _, _, _ := newInstancedLayer(t)
	if err := l.AddChunk(chunk.Chunk{}, vegetation(0, 1)); !errors.Is(err, ErrPackageNotReady) {
		t.Fatalf("AddChunk before package = %v, want ErrPackageNotReady", err)
	}
	loadTrees(t, l)
	if !l.Ready() {
		t.Fatal("layer not ready after LoadPackage")
	}
	if err := l.AddChunk(chunk.Chunk{}, vegetation(0, 1)); err != nil {
		t.Fatalf("AddChunk after package: %v", err)
	}
	if err := l.SetPackage(&content.Package{}); err == nil {
		t.Error("SetPackage with live chunks succeeded")
	}
}

func TestInstancedLayerWaitForLoadExtendsLODChain(t *testing.T) {
	l, _, _, _ := newInstancedLayer(t, WithMeshLODs(3))
	pkg, err := l.WaitForLoad(context.Background(), content.BuiltinAssets(), content.Bundle{Name: "b", Geometries: []string{"tree"}})
	if err != nil {
		t.Fatal(err)
	}
	if pkg.LODCount() != 3 {
		t.Fatalf("LOD chain = %d, want 3", pkg.LODCount())
	}
	for i, m := range pkg.Geometries[0].LODs {
		if err := m.Validate(); err != nil {
			t.Errorf("lod %d invalid: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.WaitForLoad(ctx, content.BuiltinAssets(), content.Bundle{Name: "b", Geometries: []string{"tree"}}); !task.IsAborted(err) {
		t.Errorf("WaitForLoad on cancelled context = %v, want abort", err)
	}
}

func TestInstancedLayerSplitsAndDrops(t *testing.T) {
	l, tasks, up, counter := newInstancedLayer(t)
	loadTrees(t, l)
	tasks.Flush(up)

	c := chunk.Chunk{Min: [2]int32{5, 5}}
	// 4 per call and 2 calls per geometry/LOD: 8 of 10 fit.
	if err := l.AddChunk(c, vegetation(0, 10)); err != nil {
		t.Fatal(err)
	}
	s := l.Stats()
	if s.DrawCalls != 2 || s.Instances != 8 || s.Dropped != 2 {
		t.Fatalf("stats = %+v, want 2 draw calls, 8 instances, 2 dropped", s)
	}
	if counter.Count(diag.InstancesDropped) != 1 {
		t.Fatalf("instances_dropped events = %d, want 1", counter.Count(diag.InstancesDropped))
	}
	if ev := counter.Events()[0]; ev.Requested != 10 || ev.Granted != 8 || ev.Chunk != c.Key() {
		t.Errorf("event = %+v", ev)
	}
	if n := tasks.Flush(up); n != 2 {
		t.Errorf("flushed writes = %d, want one per draw call", n)
	}

	// Another geometry still has room.
	c2 := chunk.Chunk{Min: [2]int32{6, 5}}
	if err := l.AddChunk(c2, vegetation(1, 3)); err != nil {
		t.Fatal(err)
	}
	if l.DrawCalls().InUse(1, 0) != 1 {
		t.Errorf("rock draw calls = %d, want 1", l.DrawCalls().InUse(1, 0))
	}

	l.RemoveChunk(c)
	l.RemoveChunk(c2)
	if n := len(l.DrawCalls().Active()); n != 0 {
		t.Errorf("draw calls after remove = %d, want 0", n)
	}
}

func TestInstancedLayerLODSwitch(t *testing.T) {
	l, _, _, _ := newInstancedLayer(t)
	loadTrees(t, l)

	tests := []struct {
		lod       uint8
		wantIndex int
		billboard bool
	}{
		{lod: 0, wantIndex: 0},
		{lod: 1, wantIndex: 1},
		{lod: 2, wantIndex: 2, billboard: true},
		{lod: 5, wantIndex: 2, billboard: true},
	}
	for i, tt := range tests {
		c := chunk.Chunk{Min: [2]int32{int32(i) * 64, 0}, LOD: tt.lod}
		if err := l.AddChunk(c, vegetation(0, 1)); err != nil {
			t.Fatal(err)
		}
		if l.Billboard(c) != tt.billboard {
			t.Errorf("lod %d: Billboard = %v, want %v", tt.lod, l.Billboard(c), tt.billboard)
		}
		if n := l.DrawCalls().InUse(0, tt.wantIndex); n == 0 {
			t.Errorf("lod %d: no draw call at lod index %d", tt.lod, tt.wantIndex)
		}
		want := l.billboard
		if !tt.billboard {
			want = l.lods[0][tt.wantIndex]
		}
		l.Update(View{Forward: mgl32.Vec3{0, 0, 1}})
		if draws := l.Draws(); len(draws) != 1 || draws[0].Binding != want || draws[0].InstanceCount != 1 {
			t.Errorf("lod %d: draws = %+v, want one draw of binding %d", tt.lod, draws, want.ID())
		}
		l.RemoveChunk(c)
	}
}

func TestInstancedLayerBillboardRecordCarriesGeometry(t *testing.T) {
	l, _, _, _ := newInstancedLayer(t)
	loadTrees(t, l)
	c := chunk.Chunk{LOD: 3}
	if err := l.AddChunk(c, vegetation(1, 1)); err != nil {
		t.Fatal(err)
	}
	dc := l.DrawCalls().Active()[0]
	r := l.Table().Read(dc, 0)
	if r.Aux[2] != 1 || r.Aux[3] != 4 {
		t.Errorf("billboard aux = %v, want geometry 1 with 4 frames", r.Aux)
	}
}

func TestInstancedLayerHarvest(t *testing.T) {
	l, tasks, up, _ := newInstancedLayer(t)
	loadTrees(t, l)
	c := chunk.Chunk{}
	if err := l.AddChunk(c, vegetation(0, 3)); err != nil {
		t.Fatal(err)
	}
	tasks.Flush(up)
	dc := l.DrawCalls().Active()[0]

	if err := l.Harvest(c, 0); err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if dc.ActiveCount() != 2 {
		t.Fatalf("active count = %d, want 2", dc.ActiveCount())
	}
	if p := l.Table().Read(dc, 0).Position; p != (mgl32.Vec3{2, 0, 0}) {
		t.Errorf("slot 0 holds %v, want the last instance moved in", p)
	}
	if n := tasks.Flush(up); n != 1 {
		t.Errorf("harvest flushed %d writes, want 1", n)
	}

	if err := l.Harvest(c, 0); !errors.Is(err, ErrNotPlaced) {
		t.Errorf("second harvest of the same instance = %v, want ErrNotPlaced", err)
	}
	if err := l.Harvest(c, 2); err != nil {
		t.Fatalf("Harvest of moved instance: %v", err)
	}
	if p := l.Table().Read(dc, 0).Position; p != (mgl32.Vec3{1, 0, 0}) {
		t.Errorf("slot 0 holds %v after second harvest, want instance 1", p)
	}
	if err := l.Harvest(chunk.Chunk{Min: [2]int32{1, 1}}, 0); !errors.Is(err, ErrNotLive) {
		t.Errorf("harvest on unknown chunk = %v, want ErrNotLive", err)
	}

	l.RemoveChunk(c)
	if err := l.Harvest(c, 1); !errors.Is(err, ErrNotLive) {
		t.Errorf("harvest after remove = %v, want ErrNotLive", err)
	}
}

func TestInstancedLayerBillboardUniform(t *testing.T) {
	l, tasks, up, _ := newInstancedLayer(t)
	loadTrees(t, l)
	tasks.Flush(up)

	readAngleFrame := func() (float32, float32) {
		raw := up.Read(l.UniformBuffer(), 0, 16)
		return math.Float32frombits(binary.LittleEndian.Uint32(raw)), math.Float32frombits(binary.LittleEndian.Uint32(raw[4:]))
	}

	l.Update(View{Forward: mgl32.Vec3{0, 0, 1}})
	if tasks.Flush(up) != 1 {
		t.Fatal("first Update did not write the uniform")
	}
	if a, f := readAngleFrame(); a != 0 || f != 0 {
		t.Errorf("angle, frame = %v, %v; want 0, 0", a, f)
	}

	l.Update(View{Forward: mgl32.Vec3{0, 0, 1}, Time: 1})
	if n := tasks.Flush(up); n != 0 {
		t.Errorf("unchanged view wrote %d times", n)
	}

	// Quarter turn with 8 frames in the package lands on frame 2.
	l.Update(View{Forward: mgl32.Vec3{1, 0, 0}})
	tasks.Flush(up)
	if a, f := readAngleFrame(); !mgl32.FloatEqual(a, math.Pi/2) || f != 2 {
		t.Errorf("angle, frame = %v, %v; want pi/2, 2", a, f)
	}
}

func TestInstancedLayerRebindCancelsPackageUpload(t *testing.T) {
	l, tasks, up, _ := newInstancedLayer(t)
	loadTrees(t, l)
	if tasks.Pending() != 1 {
		t.Fatalf("pending tasks = %d, want the package upload", tasks.Pending())
	}

	// Rebinding before a flush frees the old meshes; their upload must not run.
	loadTrees(t, l)
	if tasks.Pending() != 1 {
		t.Errorf("pending tasks after rebind = %d, want 1", tasks.Pending())
	}
	if _, cancelled := tasks.Counts(); cancelled != 1 {
		t.Errorf("cancelled tasks = %d, want 1", cancelled)
	}
	if n := tasks.Flush(up); n == 0 {
		t.Error("rebound package wrote nothing")
	}
}

func TestInstancedLayerRelease(t *testing.T) {
	l, _, up, _ := newInstancedLayer(t)
	loadTrees(t, l)
	_ = l.AddChunk(chunk.Chunk{}, vegetation(0, 2))
	l.Release()
	if up.Size(l.UniformBuffer()) != 0 || up.Size(l.Table().Buffer()) != 0 {
		t.Error("buffers survived Release")
	}
}
