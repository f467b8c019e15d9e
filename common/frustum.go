package common

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// SignedDistance returns the distance from the plane to p, positive on the normal side.
func (p Plane) SignedDistance(v mgl32.Vec3) float32 {
	return p.Normal.Dot(v) + p.Distance
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustum extracts frustum planes from a view-projection matrix.
// The matrix should be the combined Projection * View matrix.
// Uses the Gribb/Hartmann method for plane extraction.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the view-projection matrix (column-major, as mgl32 stores it)
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	var f Frustum

	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)

	f.Planes[FrustumLeft] = planeFromRow(r3.Add(r0))
	f.Planes[FrustumRight] = planeFromRow(r3.Sub(r0))
	f.Planes[FrustumBottom] = planeFromRow(r3.Add(r1))
	f.Planes[FrustumTop] = planeFromRow(r3.Sub(r1))
	f.Planes[FrustumNear] = planeFromRow(r3.Add(r2))
	f.Planes[FrustumFar] = planeFromRow(r3.Sub(r2))

	return f
}

// planeFromRow builds a normalized plane from a combined matrix row.
func planeFromRow(row mgl32.Vec4) Plane {
	p := Plane{Normal: row.Vec3(), Distance: row[3]}
	if length := p.Normal.Len(); length > 0 {
		invLen := 1.0 / length
		p.Normal = p.Normal.Mul(invLen)
		p.Distance *= invLen
	}
	return p
}

// IntersectsAABB reports whether any part of the box lies inside the frustum.
// Tests the box corner furthest along each plane normal (the positive vertex);
// if that corner is outside any plane, the whole box is.
//
// Parameters:
//   - b: the world-space box to test
//
// Returns:
//   - bool: false only if the box is entirely outside at least one plane
func (f *Frustum) IntersectsAABB(b AABB) bool {
	for _, p := range f.Planes {
		var positive mgl32.Vec3
		for i := range 3 {
			if p.Normal[i] >= 0 {
				positive[i] = b.Max[i]
			} else {
				positive[i] = b.Min[i]
			}
		}
		if p.SignedDistance(positive) < 0 {
			return false
		}
	}
	return true
}

// ContainsPoint reports whether v lies inside all six planes.
func (f *Frustum) ContainsPoint(v mgl32.Vec3) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(v) < 0 {
			return false
		}
	}
	return true
}
