package content

import (
	"context"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
	"github.com/go-gl/mathgl/mgl32"
)

// StaticAssets is an AssetSource serving geometry registered in memory.
type StaticAssets struct {
	assets map[string]GeometryAsset
}

var _ AssetSource = &StaticAssets{}

// NewStaticAssets creates a source serving the given assets by name.
func NewStaticAssets(assets ...GeometryAsset) *StaticAssets {
	s := &StaticAssets{assets: make(map[string]GeometryAsset, len(assets))}
	for _, a := range assets {
		s.assets[a.Name] = a
	}
	return s
}

func (s *StaticAssets) Load(ctx context.Context, bundle Bundle) (*Package, error) {
	if err := task.CheckAbort(ctx); err != nil {
		return nil, err
	}
	pkg := &Package{Name: bundle.Name, Geometries: make([]GeometryAsset, 0, len(bundle.Geometries))}
	for _, name := range bundle.Geometries {
		a, ok := s.assets[name]
		if !ok {
			return nil, fmt.Errorf("bundle %s: unknown geometry %q", bundle.Name, name)
		}
		pkg.Geometries = append(pkg.Geometries, a)
	}
	return pkg, nil
}

// BuiltinAssets returns a source with simple procedural models:
// "tree" and "pine" for vegetation, "blade" for grass, "rock" for points of interest.
func BuiltinAssets() *StaticAssets {
	return NewStaticAssets(
		GeometryAsset{Name: "tree", LODs: []*common.Mesh{Cone(1.5, 6, 12)}, BillboardFrames: 8},
		GeometryAsset{Name: "pine", LODs: []*common.Mesh{Cone(1, 9, 8)}, BillboardFrames: 8},
		GeometryAsset{Name: "blade", LODs: []*common.Mesh{Blade(0.1, 0.6)}, BillboardFrames: 1},
		GeometryAsset{Name: "rock", LODs: []*common.Mesh{Cone(2, 1.5, 6)}, BillboardFrames: 4},
	)
}

// Cone builds a closed cone standing on the origin.
func Cone(radius, height float32, segments int) *common.Mesh {
	segments = max(segments, 3)
	m := &common.Mesh{}
	apex := mgl32.Vec3{0, height, 0}
	m.Positions = append(m.Positions, apex, mgl32.Vec3{})
	m.Normals = append(m.Normals, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, -1, 0})
	for i := range segments {
		a := 2 * math.Pi * float64(i) / float64(segments)
		p := mgl32.Vec3{radius * float32(math.Cos(a)), 0, radius * float32(math.Sin(a))}
		m.Positions = append(m.Positions, p)
		m.Normals = append(m.Normals, mgl32.Vec3{p[0], radius / height * radius, p[2]}.Normalize())
	}
	for i := range uint32(segments) {
		cur := 2 + i
		next := 2 + (i+1)%uint32(segments)
		m.Indices = append(m.Indices, 0, next, cur, 1, cur, next)
	}
	return m
}

// Blade builds a single upright quad, two-sided through its index order.
func Blade(width, height float32) *common.Mesh {
	w := width / 2
	n := mgl32.Vec3{0, 0, 1}
	return &common.Mesh{
		Positions: []mgl32.Vec3{{-w, 0, 0}, {w, 0, 0}, {-w, height, 0}, {w, height, 0}},
		Normals:   []mgl32.Vec3{n, n, n, n},
		Indices:   []uint32{0, 1, 2, 2, 1, 3, 0, 2, 1, 2, 3, 1},
	}
}
