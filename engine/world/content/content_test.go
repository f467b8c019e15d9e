package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
	"github.com/go-gl/mathgl/mgl32"
)

func testRequest(c chunk.Chunk) Request {
	return Request{
		Chunk:    c,
		Seed:     42,
		BaseSize: 32,
		Flags:    FlagAll,
		InstanceCounts: map[Category]int{
			CategoryVegetation: 200,
			CategoryGrass:      500,
			CategoryPOI:        20,
		},
	}
}

func TestProcGenTerrain(t *testing.T) {
	g := NewProcGen(42, WithResolution(8), WithSeaLevel(-1000))
	res, err := g.GenerateChunk(context.Background(), testRequest(chunk.Chunk{Min: [2]int32{3, -2}, LOD: 1}))
	if err != nil {
		t.Fatalf("GenerateChunk: %v", err)
	}

	terrain := res.Geometry[CategoryTerrain]
	if terrain == nil {
		t.Fatal("no terrain mesh")
	}
	if terrain.VertexCount() != 81 || terrain.IndexCount() != 8*8*6 {
		t.Errorf("terrain has %d vertices, %d indices", terrain.VertexCount(), terrain.IndexCount())
	}
	if err := terrain.Validate(); err != nil {
		t.Errorf("terrain invalid: %v", err)
	}
	if _, ok := res.Geometry[CategoryWater]; ok {
		t.Errorf("water generated above sea level")
	}

	b := terrain.Bounds()
	if b.Min[0] != 96 || b.Max[0] != 160 || b.Min[2] != -64 || b.Max[2] != 0 {
		t.Errorf("terrain footprint = %+v", b)
	}
	for cat, insts := range res.Instances {
		for _, in := range insts {
			if in.Position[0] < 96 || in.Position[0] > 160 || in.Position[2] < -64 || in.Position[2] > 0 {
				t.Fatalf("%s instance outside chunk: %v", cat, in.Position)
			}
		}
	}
}

func TestProcGenDeterministic(t *testing.T) {
	req := testRequest(chunk.Chunk{Min: [2]int32{1, 1}})
	a, _ := NewProcGen(7).GenerateChunk(context.Background(), req)
	b, _ := NewProcGen(7).GenerateChunk(context.Background(), req)
	if len(a.Instances[CategoryGrass]) != len(b.Instances[CategoryGrass]) {
		t.Fatalf("grass counts differ: %d vs %d", len(a.Instances[CategoryGrass]), len(b.Instances[CategoryGrass]))
	}
	for i := range a.Instances[CategoryGrass] {
		if a.Instances[CategoryGrass][i].Position != b.Instances[CategoryGrass][i].Position {
			t.Fatalf("grass instance %d differs", i)
		}
	}
}

func TestProcGenSeamStitching(t *testing.T) {
	g := NewProcGen(3, WithResolution(8))
	c := chunk.Chunk{Min: [2]int32{0, 0}, LOD: 0, LODArray: [4]uint8{0, 0, 1, 0}}
	res, err := g.GenerateChunk(context.Background(), Request{Chunk: c, BaseSize: 32, Flags: FlagTerrain})
	if err != nil {
		t.Fatal(err)
	}
	south := res.Geometry[CategoryTerrain].Positions[:9]
	for k := 1; k < 8; k += 2 {
		want := (south[k-1][1] + south[k+1][1]) / 2
		if diff := south[k][1] - want; diff > 1e-4 || diff < -1e-4 {
			t.Errorf("south edge vertex %d height %v, want midpoint %v", k, south[k][1], want)
		}
	}
}

func TestProcGenAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewProcGen(1).GenerateChunk(ctx, testRequest(chunk.Chunk{}))
	if !errors.Is(err, task.ErrAborted) || res != nil {
		t.Errorf("GenerateChunk after cancel = %v, %v; want nil, ErrAborted", res, err)
	}
}

func TestSimplifierReducesAndStaysValid(t *testing.T) {
	g := NewProcGen(9, WithResolution(32))
	res, _ := g.GenerateChunk(context.Background(), Request{Chunk: chunk.Chunk{}, BaseSize: 64, Flags: FlagTerrain})
	src := res.Geometry[CategoryTerrain]

	out, err := VertexClusterSimplifier{}.Simplify(context.Background(), src, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	if out.VertexCount() >= src.VertexCount() || out.IndexCount() >= src.IndexCount() {
		t.Errorf("simplified mesh not smaller: %d/%d vertices", out.VertexCount(), src.VertexCount())
	}
	if err := out.Validate(); err != nil {
		t.Errorf("simplified mesh invalid: %v", err)
	}
	if len(out.Normals) != len(out.Positions) || len(out.Materials) != len(out.Positions) {
		t.Errorf("optional channels not carried through")
	}
}

func TestHeadlessPhysicsCancelDuringCook(t *testing.T) {
	p := NewHeadlessPhysics(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.CookGeometry(ctx, Cone(1, 1, 4))
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !task.IsAborted(err) {
			t.Errorf("cook err = %v, want aborted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cook did not observe cancellation")
	}
}

func TestHeadlessPhysicsAddRemove(t *testing.T) {
	p := NewHeadlessPhysics(0)
	buf, err := p.CookGeometry(context.Background(), Cone(1, 2, 6))
	if err != nil {
		t.Fatal(err)
	}
	h, _ := p.AddCookedGeometry(buf, mgl32.Vec3{10, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	if p.Live() != 1 {
		t.Fatalf("Live = %d", p.Live())
	}
	p.RemoveGeometry(h)
	p.RemoveGeometry(h)
	if p.Live() != 0 {
		t.Errorf("Live after remove = %d", p.Live())
	}
}

func TestStaticAssets(t *testing.T) {
	src := BuiltinAssets()
	pkg, err := src.Load(context.Background(), Bundle{Name: "forest", Geometries: []string{"tree", "pine"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(pkg.Geometries) != 2 || pkg.LODCount() != 1 {
		t.Errorf("package = %d geometries, %d lods", len(pkg.Geometries), pkg.LODCount())
	}
	for _, g := range pkg.Geometries {
		if err := g.LODs[0].Validate(); err != nil {
			t.Errorf("%s: %v", g.Name, err)
		}
	}
	if _, err := src.Load(context.Background(), Bundle{Name: "x", Geometries: []string{"missing"}}); err == nil {
		t.Errorf("expected error for unknown geometry")
	}
}
