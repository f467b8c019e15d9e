package instance

import "github.com/Carmen-Shannon/oxy-stream/common"

// DrawCall is a batch of instances sharing one geometry and LOD, drawn with a
// single instanced submission. Its instances occupy a fixed region of the
// instance table: [ID*MaxPerCall, ID*MaxPerCall+Capacity).
type DrawCall struct {
	id            uint32
	GeometryIndex int
	LODIndex      int
	Capacity      uint32
	Bounds        common.AABB

	activeCount uint32
	active      bool
}

// ID returns the draw call slot, which also selects its table region.
func (d *DrawCall) ID() uint32 {
	return d.id
}

// ActiveCount returns the number of instances the draw call renders.
func (d *DrawCall) ActiveCount() uint32 {
	return d.activeCount
}

// Active reports whether the draw call is allocated.
func (d *DrawCall) Active() bool {
	return d.active
}

// TableRegion returns the first global table index of the draw call and its capacity.
func (d *DrawCall) TableRegion() (first, count uint32) {
	return d.id * d.Capacity, d.Capacity
}
