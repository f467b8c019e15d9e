package arena

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

func newTestArena(t *testing.T, vertices, indices uint32) (GeometryArena, *gpu.MemoryUploader) {
	t.Helper()
	up := gpu.NewMemoryUploader()
	a, err := NewGeometryArena(up, WithVertexCapacity(vertices), WithIndexCapacity(indices), WithLabel("test"))
	if err != nil {
		t.Fatalf("NewGeometryArena: %v", err)
	}
	return a, up
}

func mustAlloc(t *testing.T, a GeometryArena, v, i uint32) *Binding {
	t.Helper()
	b, err := a.Alloc(v, i, common.AABB{})
	if err != nil {
		t.Fatalf("Alloc(%d, %d): %v", v, i, err)
	}
	return b
}

func TestFirstFitReusesFreedRange(t *testing.T) {
	a, _ := newTestArena(t, 1024, 4096)

	bA := mustAlloc(t, a, 100, 150)
	bB := mustAlloc(t, a, 200, 300)
	wantVertex, wantIndex := bA.AttributeOffsets, bA.IndexOffset
	a.Free(bA)
	bC := mustAlloc(t, a, 100, 150)

	if bC.AttributeOffsets != wantVertex || bC.IndexOffset != wantIndex {
		t.Errorf("C got offsets %v/%d, want A's %v/%d", bC.AttributeOffsets, bC.IndexOffset, wantVertex, wantIndex)
	}
	if bB.BaseVertex != 100 {
		t.Errorf("B base vertex = %d, want 100", bB.BaseVertex)
	}
}

func TestAllocOutOfSpace(t *testing.T) {
	tests := []struct {
		name            string
		vertices, index uint32
	}{
		{"vertices exhausted", 65, 1},
		{"indices exhausted", 1, 129},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestArena(t, 64, 128)
			before := a.Stats()
			_, err := a.Alloc(tt.vertices, tt.index, common.AABB{})
			if !errors.Is(err, ErrOutOfSpace) {
				t.Fatalf("err = %v, want ErrOutOfSpace", err)
			}
			after := a.Stats()
			if after.VertexUsed != before.VertexUsed || after.IndexUsed != before.IndexUsed || after.Live != 0 {
				t.Errorf("failed Alloc left a partial reservation: %+v", after)
			}
		})
	}
}

func TestNoOverlapUnderChurn(t *testing.T) {
	a, _ := newTestArena(t, 4096, 8192)
	rng := rand.New(rand.NewSource(7))
	var live []*Binding

	for step := 0; step < 2000; step++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			i := rng.Intn(len(live))
			a.Free(live[i])
			live = append(live[:i], live[i+1:]...)
		} else {
			b, err := a.Alloc(uint32(1+rng.Intn(200)), uint32(3*(1+rng.Intn(100))), common.AABB{})
			if err == nil {
				live = append(live, b)
			} else if !errors.Is(err, ErrOutOfSpace) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assertDisjoint(t, live)
	}

	for _, b := range live {
		a.Free(b)
	}
	s := a.Stats()
	if s.FreeSpans != 1 || s.LargestFree != 4096 || s.VertexUsed != 0 || s.IndexUsed != 0 {
		t.Errorf("arena did not coalesce back to one span: %+v", s)
	}
}

func assertDisjoint(t *testing.T, live []*Binding) {
	t.Helper()
	for i := range live {
		for j := i + 1; j < len(live); j++ {
			x, y := live[i], live[j]
			if x.BaseVertex < y.BaseVertex+y.VertexCount && y.BaseVertex < x.BaseVertex+x.VertexCount {
				t.Fatalf("vertex ranges of bindings %d and %d overlap", x.ID(), y.ID())
			}
			if x.IndexCount > 0 && y.IndexCount > 0 &&
				x.FirstIndex < y.FirstIndex+y.IndexCount && y.FirstIndex < x.FirstIndex+x.IndexCount {
				t.Fatalf("index ranges of bindings %d and %d overlap", x.ID(), y.ID())
			}
		}
	}
}

func TestChurnDoesNotGrowPeak(t *testing.T) {
	a, _ := newTestArena(t, 1024, 1024)
	b := mustAlloc(t, a, 300, 300)
	peak := a.Stats().VertexPeak
	for range 100 {
		a.Free(b)
		b = mustAlloc(t, a, 250, 270)
	}
	if got := a.Stats().VertexPeak; got != peak {
		t.Errorf("peak grew from %d to %d under alloc/free churn", peak, got)
	}
}

func TestFreeMisusePanics(t *testing.T) {
	tests := []struct {
		name string
		run  func(a, other GeometryArena)
	}{
		{"double free", func(a, _ GeometryArena) {
			b, _ := a.Alloc(4, 6, common.AABB{})
			a.Free(b)
			a.Free(b)
		}},
		{"foreign binding", func(a, other GeometryArena) {
			b, _ := other.Alloc(4, 6, common.AABB{})
			a.Free(b)
		}},
		{"nil binding", func(a, _ GeometryArena) {
			a.Free(nil)
		}},
		{"stage twice", func(a, _ GeometryArena) {
			b, _ := a.Alloc(3, 3, common.AABB{})
			m := triangle()
			a.Stage(b, m)
			a.Stage(b, m)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestArena(t, 64, 64)
			other, _ := newTestArena(t, 64, 64)
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic")
				}
			}()
			tt.run(a, other)
		})
	}
}

func triangle() *common.Mesh {
	return &common.Mesh{
		Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 0, 1}},
		Normals:   []mgl32.Vec3{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}},
		Indices:   []uint32{0, 2, 1},
	}
}

func TestStageUploadsRemappedIndices(t *testing.T) {
	a, up := newTestArena(t, 64, 64)
	pad := mustAlloc(t, a, 10, 6)
	b := mustAlloc(t, a, 3, 3)
	if b.BaseVertex != 10 {
		t.Fatalf("base vertex = %d, want 10", b.BaseVertex)
	}

	writes := a.Stage(b, triangle())
	// position, normal, index; no material channel in the mesh
	if len(writes) != 3 {
		t.Fatalf("Stage produced %d writes, want 3", len(writes))
	}
	up.WriteBuffers(writes)

	raw := up.Read(a.IndexBuffer(), b.IndexOffset, 3*IndexSize)
	got := []uint32{
		binary.LittleEndian.Uint32(raw[0:]),
		binary.LittleEndian.Uint32(raw[4:]),
		binary.LittleEndian.Uint32(raw[8:]),
	}
	if want := []uint32{10, 12, 11}; got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("uploaded indices = %v, want %v", got, want)
	}

	pos := up.Read(a.Buffer(ChannelPosition), b.AttributeOffsets[ChannelPosition]+12, 4)
	if x := binary.LittleEndian.Uint32(pos); x != 0x3f800000 {
		t.Errorf("second vertex x bits = %#x, want 1.0", x)
	}
	if !b.Written() || pad.Written() {
		t.Errorf("written flags wrong: b=%v pad=%v", b.Written(), pad.Written())
	}
}

func TestRemapIndices(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for range 50 {
		n := uint32(1 + rng.Intn(500))
		local := make([]uint32, 3*(1+rng.Intn(200)))
		for i := range local {
			local[i] = uint32(rng.Intn(int(n)))
		}
		base := uint64(rng.Intn(10000))
		r := RemapIndices(local, base*ChannelMaterial.Stride(), ChannelMaterial.Stride(), n)
		for i := range local {
			if uint64(r[i]) != uint64(local[i])+base {
				t.Fatalf("R[%d] = %d, want %d + %d", i, r[i], local[i], base)
			}
		}
	}
}

func TestRemapIndicesOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for index past vertex count")
		}
	}()
	RemapIndices([]uint32{0, 1, 3}, 120, 12, 3)
}

func TestVisibleCullsByBounds(t *testing.T) {
	a, up := newTestArena(t, 64, 64)
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	f := common.ExtractFrustum(proj.Mul4(view))

	ahead, _ := a.Alloc(3, 3, common.NewAABB(mgl32.Vec3{-1, -1, -11}, mgl32.Vec3{1, 1, -9}))
	behind, _ := a.Alloc(3, 3, common.NewAABB(mgl32.Vec3{-1, -1, 9}, mgl32.Vec3{1, 1, 11}))
	unwritten, _ := a.Alloc(3, 3, common.NewAABB(mgl32.Vec3{-1, -1, -11}, mgl32.Vec3{1, 1, -9}))
	up.WriteBuffers(a.Stage(ahead, triangle()))
	up.WriteBuffers(a.Stage(behind, triangle()))

	vis := a.Visible(&f)
	if len(vis) != 1 || vis[0] != ahead {
		t.Errorf("Visible = %v, want only the binding ahead", vis)
	}
	_ = unwritten
}
