package arena

import "fmt"

// RemapIndices rewrites chunk-local indices so they address the binding's
// slice of the shared vertex region: each index i becomes i + offset/itemSize.
// An index that would land outside the allocated vertex range panics; clamping
// it would draw another chunk's vertices.
//
// Parameters:
//   - local: chunk-local indices, each in [0, vertexCount)
//   - vertexByteOffset: byte offset of the binding in a vertex channel
//   - itemSize: byte stride of that channel
//   - vertexCount: number of vertices allocated to the binding
//
// Returns:
//   - []uint32: the remapped indices, in a new slice
func RemapIndices(local []uint32, vertexByteOffset, itemSize uint64, vertexCount uint32) []uint32 {
	if itemSize == 0 || vertexByteOffset%itemSize != 0 {
		panic(fmt.Sprintf("arena: vertex offset %d is not a multiple of item size %d", vertexByteOffset, itemSize))
	}
	base := vertexByteOffset / itemSize
	lo, hi := base, base+uint64(vertexCount)

	out := make([]uint32, len(local))
	for i, idx := range local {
		global := uint64(idx) + base
		if global < lo || global >= hi || global > uint64(^uint32(0)) {
			panic(fmt.Sprintf("arena: index %d at %d remaps to %d outside allocated vertices [%d,%d)", idx, i, global, lo, hi))
		}
		out[i] = uint32(global)
	}
	return out
}
