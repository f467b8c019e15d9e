package instance

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-stream/common"
)

var (
	// ErrDrawCallExhausted is returned when no draw call can be allocated for a geometry/LOD.
	ErrDrawCallExhausted = errors.New("instance: draw calls exhausted")
	// ErrCountOutOfRange is returned when an instance count would leave [0, capacity].
	ErrCountOutOfRange = errors.New("instance: instance count out of range")
)

type geometryLOD struct {
	geometry int
	lod      int
}

// DrawCallAllocator hands out draw calls backed by regions of an
// InstanceAttributeTable. Each (geometry, LOD) pair may hold a bounded number
// of draw calls at once; the table bounds the total.
type DrawCallAllocator interface {
	// Alloc allocates a draw call for instanceCount instances of one geometry/LOD.
	//
	// Parameters:
	//   - geometryIndex: index of the geometry in the layer's package
	//   - lodIndex: LOD of that geometry, or the billboard slot
	//   - instanceCount: initial active count, at most MaxPerCall of the table
	//   - bounds: world-space bounds of the instances
	//
	// Returns:
	//   - *DrawCall: the draw call
	//   - error: ErrDrawCallExhausted or ErrCountOutOfRange (wrapped)
	Alloc(geometryIndex, lodIndex int, instanceCount uint32, bounds common.AABB) (*DrawCall, error)

	// Free releases a draw call and its table region. Freeing an inactive draw call panics.
	//
	// Parameters:
	//   - dc: the draw call to free
	Free(dc *DrawCall)

	// IncrementInstanceCount raises dc's active count by n.
	//
	// Returns:
	//   - error: ErrCountOutOfRange if the count would exceed capacity
	IncrementInstanceCount(dc *DrawCall, n uint32) error

	// DecrementInstanceCount lowers dc's active count by n.
	//
	// Returns:
	//   - error: ErrCountOutOfRange if the count would go negative
	DecrementInstanceCount(dc *DrawCall, n uint32) error

	// InUse returns the number of live draw calls for a geometry/LOD.
	InUse(geometryIndex, lodIndex int) int

	// Active returns every live draw call ordered by ID.
	Active() []*DrawCall

	// Visible returns the live draw calls with instances whose bounds intersect f.
	Visible(f *common.Frustum) []*DrawCall

	// Table returns the instance table backing the draw calls.
	Table() InstanceAttributeTable
}

type drawCallAllocator struct {
	table  InstanceAttributeTable
	perKey int

	free   []uint32
	live   map[uint32]*DrawCall
	counts map[geometryLOD]int
}

var _ DrawCallAllocator = &drawCallAllocator{}

// NewDrawCallAllocator creates an allocator over every slot of table.
//
// Parameters:
//   - table: the instance table whose regions back the draw calls
//   - maxPerGeometryLOD: live draw call limit for each geometry/LOD pair
//
// Returns:
//   - DrawCallAllocator: the allocator
func NewDrawCallAllocator(table InstanceAttributeTable, maxPerGeometryLOD int) DrawCallAllocator {
	if table == nil {
		panic("instance: NewDrawCallAllocator requires a non-nil table")
	}
	a := &drawCallAllocator{
		table:  table,
		perKey: maxPerGeometryLOD,
		free:   make([]uint32, 0, table.Slots()),
		live:   make(map[uint32]*DrawCall),
		counts: make(map[geometryLOD]int),
	}
	// Stack of free slots, lowest id on top.
	for id := table.Slots(); id > 0; id-- {
		a.free = append(a.free, id-1)
	}
	return a
}

func (a *drawCallAllocator) Alloc(geometryIndex, lodIndex int, instanceCount uint32, bounds common.AABB) (*DrawCall, error) {
	capacity := a.table.MaxPerCall()
	if instanceCount > capacity {
		return nil, fmt.Errorf("%w: %d instances in a draw call of %d", ErrCountOutOfRange, instanceCount, capacity)
	}
	key := geometryLOD{geometry: geometryIndex, lod: lodIndex}
	if a.perKey > 0 && a.counts[key] >= a.perKey {
		return nil, fmt.Errorf("%w: geometry %d lod %d has %d live", ErrDrawCallExhausted, geometryIndex, lodIndex, a.counts[key])
	}
	if len(a.free) == 0 {
		return nil, fmt.Errorf("%w: all %d table slots live", ErrDrawCallExhausted, a.table.Slots())
	}

	id := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	dc := &DrawCall{
		id:            id,
		GeometryIndex: geometryIndex,
		LODIndex:      lodIndex,
		Capacity:      capacity,
		Bounds:        bounds,
		activeCount:   instanceCount,
		active:        true,
	}
	a.live[id] = dc
	a.counts[key]++
	return dc, nil
}

func (a *drawCallAllocator) Free(dc *DrawCall) {
	if dc == nil || !dc.active || a.live[dc.id] != dc {
		panic("instance: Free of unknown or already freed draw call")
	}
	a.table.discard(dc.id)
	delete(a.live, dc.id)

	key := geometryLOD{geometry: dc.GeometryIndex, lod: dc.LODIndex}
	if a.counts[key]--; a.counts[key] == 0 {
		delete(a.counts, key)
	}
	dc.active = false
	dc.activeCount = 0
	a.free = append(a.free, dc.id)
}

func (a *drawCallAllocator) IncrementInstanceCount(dc *DrawCall, n uint32) error {
	a.mustBeLive(dc)
	if uint64(dc.activeCount)+uint64(n) > uint64(dc.Capacity) {
		return fmt.Errorf("%w: %d + %d exceeds capacity %d", ErrCountOutOfRange, dc.activeCount, n, dc.Capacity)
	}
	dc.activeCount += n
	return nil
}

func (a *drawCallAllocator) DecrementInstanceCount(dc *DrawCall, n uint32) error {
	a.mustBeLive(dc)
	if n > dc.activeCount {
		return fmt.Errorf("%w: %d - %d is negative", ErrCountOutOfRange, dc.activeCount, n)
	}
	dc.activeCount -= n
	return nil
}

func (a *drawCallAllocator) InUse(geometryIndex, lodIndex int) int {
	return a.counts[geometryLOD{geometry: geometryIndex, lod: lodIndex}]
}

func (a *drawCallAllocator) Active() []*DrawCall {
	out := make([]*DrawCall, 0, len(a.live))
	for _, dc := range a.live {
		out = append(out, dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (a *drawCallAllocator) Visible(f *common.Frustum) []*DrawCall {
	all := a.Active()
	out := all[:0]
	for _, dc := range all {
		if dc.activeCount > 0 && f.IntersectsAABB(dc.Bounds) {
			out = append(out, dc)
		}
	}
	return out
}

func (a *drawCallAllocator) Table() InstanceAttributeTable {
	return a.table
}

func (a *drawCallAllocator) mustBeLive(dc *DrawCall) {
	if dc == nil || !dc.active || a.live[dc.id] != dc {
		panic("instance: instance count change on inactive draw call")
	}
}
