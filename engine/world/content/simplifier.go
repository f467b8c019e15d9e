package content

import (
	"context"
	"math"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
	"github.com/go-gl/mathgl/mgl32"
)

// VertexClusterSimplifier merges all vertices falling in the same cell of a
// uniform grid over the mesh bounds, then drops triangles that collapsed.
// The grid is sized so the cell count approximates ratio times the vertex count.
type VertexClusterSimplifier struct{}

var _ Simplifier = VertexClusterSimplifier{}

type cluster struct {
	pos    mgl32.Vec3
	normal mgl32.Vec3
	mat    mgl32.Vec4
	count  float32
	index  uint32
}

func (VertexClusterSimplifier) Simplify(ctx context.Context, mesh *common.Mesh, ratio float32) (*common.Mesh, error) {
	if err := task.CheckAbort(ctx); err != nil {
		return nil, err
	}
	if ratio >= 1 || mesh.VertexCount() < 4 {
		return cloneMesh(mesh), nil
	}

	bounds := mesh.Bounds()
	extent := bounds.Max.Sub(bounds.Min)
	cells := max(1, int(math.Cbrt(float64(ratio)*float64(mesh.VertexCount()))))
	var cellSize mgl32.Vec3
	for i := range 3 {
		cellSize[i] = max(extent[i]/float32(cells), 1e-6)
	}

	clusters := make(map[[3]int]*cluster)
	order := make([]*cluster, 0)
	remap := make([]uint32, len(mesh.Positions))
	for v, p := range mesh.Positions {
		if v%1024 == 0 {
			if err := task.CheckAbort(ctx); err != nil {
				return nil, err
			}
		}
		var cell [3]int
		for i := range 3 {
			cell[i] = min(int((p[i]-bounds.Min[i])/cellSize[i]), cells-1)
		}
		c, ok := clusters[cell]
		if !ok {
			c = &cluster{index: uint32(len(order))}
			clusters[cell] = c
			order = append(order, c)
		}
		c.pos = c.pos.Add(p)
		if mesh.Normals != nil {
			c.normal = c.normal.Add(mesh.Normals[v])
		}
		if mesh.Materials != nil {
			c.mat = c.mat.Add(mesh.Materials[v])
		}
		c.count++
		remap[v] = c.index
	}

	out := &common.Mesh{Positions: make([]mgl32.Vec3, len(order))}
	if mesh.Normals != nil {
		out.Normals = make([]mgl32.Vec3, len(order))
	}
	if mesh.Materials != nil {
		out.Materials = make([]mgl32.Vec4, len(order))
	}
	for i, c := range order {
		out.Positions[i] = c.pos.Mul(1 / c.count)
		if out.Normals != nil && c.normal.Len() > 0 {
			out.Normals[i] = c.normal.Normalize()
		}
		if out.Materials != nil {
			out.Materials[i] = c.mat.Mul(1 / c.count)
		}
	}
	for t := 0; t+2 < len(mesh.Indices); t += 3 {
		a, b, c := remap[mesh.Indices[t]], remap[mesh.Indices[t+1]], remap[mesh.Indices[t+2]]
		if a == b || b == c || a == c {
			continue
		}
		out.Indices = append(out.Indices, a, b, c)
	}
	return out, nil
}

func cloneMesh(m *common.Mesh) *common.Mesh {
	return &common.Mesh{
		Positions: append([]mgl32.Vec3(nil), m.Positions...),
		Normals:   append([]mgl32.Vec3(nil), m.Normals...),
		Materials: append([]mgl32.Vec4(nil), m.Materials...),
		Indices:   append([]uint32(nil), m.Indices...),
	}
}
