package common

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Mesh is chunk-local indexed geometry as produced by a generator or loaded
// from an asset package. Indices address Positions starting at zero.
// Normals and Materials are optional; when present they have one entry per position.
type Mesh struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Materials []mgl32.Vec4
	Indices   []uint32
}

// VertexCount returns the number of vertices in the mesh.
func (m *Mesh) VertexCount() uint32 {
	return uint32(len(m.Positions))
}

// IndexCount returns the number of indices in the mesh.
func (m *Mesh) IndexCount() uint32 {
	return uint32(len(m.Indices))
}

// Empty reports whether the mesh has nothing to draw.
func (m *Mesh) Empty() bool {
	return m == nil || len(m.Positions) == 0 || len(m.Indices) == 0
}

// Bounds returns the box enclosing every position.
func (m *Mesh) Bounds() AABB {
	return BoundsOf(m.Positions)
}

// Validate checks that the optional channels match the position count and that
// every index addresses an existing vertex.
//
// Returns:
//   - error: a description of the first inconsistency found, or nil
func (m *Mesh) Validate() error {
	n := len(m.Positions)
	if m.Normals != nil && len(m.Normals) != n {
		return fmt.Errorf("mesh has %d normals for %d positions", len(m.Normals), n)
	}
	if m.Materials != nil && len(m.Materials) != n {
		return fmt.Errorf("mesh has %d material weights for %d positions", len(m.Materials), n)
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh index count %d is not a multiple of 3", len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= n {
			return fmt.Errorf("mesh index %d at %d addresses vertex past %d", idx, i, n)
		}
	}
	return nil
}
