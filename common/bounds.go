package common

import "github.com/go-gl/mathgl/mgl32"

// AABB is an axis-aligned bounding box in world space.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// NewAABB returns the box spanning the two corners in any order.
func NewAABB(a, b mgl32.Vec3) AABB {
	var box AABB
	for i := range 3 {
		box.Min[i] = min(a[i], b[i])
		box.Max[i] = max(a[i], b[i])
	}
	return box
}

// BoundsOf returns the smallest box containing every point.
// An empty input yields the zero box.
func BoundsOf(points []mgl32.Vec3) AABB {
	if len(points) == 0 {
		return AABB{}
	}
	box := AABB{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box = box.Extend(p)
	}
	return box
}

// Extend returns the box grown to include p.
func (b AABB) Extend(p mgl32.Vec3) AABB {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

// Union returns the smallest box containing both b and o.
func (b AABB) Union(o AABB) AABB {
	return b.Extend(o.Min).Extend(o.Max)
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extents returns the half-size of the box on each axis.
func (b AABB) Extents() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

// Contains reports whether p lies inside or on the box.
func (b AABB) Contains(p mgl32.Vec3) bool {
	for i := range 3 {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether the two boxes share any point.
func (b AABB) Overlaps(o AABB) bool {
	for i := range 3 {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}
