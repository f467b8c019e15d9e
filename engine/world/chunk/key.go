package chunk

import (
	"fmt"
)

// Field widths of a packed Key. Coordinates are two's complement.
const (
	CoordBits = 24
	LODBits   = 8

	MinCoord = -(1 << (CoordBits - 1))
	MaxCoord = 1<<(CoordBits-1) - 1
	MaxLOD   = 1<<LODBits - 1

	coordMask = 1<<CoordBits - 1
	lodShift  = 2 * CoordBits
)

// Key is the packed identity of a chunk: (minX, minY, lod).
// Distinct chunks always produce distinct keys since every field is stored
// losslessly in its own bit range.
//
//	bits  0..23  minX
//	bits 24..47  minY
//	bits 48..55  lod
type Key uint64

// NewKey packs a chunk identity. It panics when a field does not fit its width;
// wrapping would silently alias two chunks.
//
// Parameters:
//   - minX: grid x of the chunk's minimum corner, in base-chunk units
//   - minY: grid y of the chunk's minimum corner, in base-chunk units
//   - lod: the chunk's level of detail
//
// Returns:
//   - Key: the packed key
func NewKey(minX, minY int32, lod uint8) Key {
	if minX < MinCoord || minX > MaxCoord {
		panic(fmt.Sprintf("chunk: minX %d outside [%d, %d]", minX, MinCoord, MaxCoord))
	}
	if minY < MinCoord || minY > MaxCoord {
		panic(fmt.Sprintf("chunk: minY %d outside [%d, %d]", minY, MinCoord, MaxCoord))
	}
	return Key(uint64(uint32(minX)&coordMask) |
		uint64(uint32(minY)&coordMask)<<CoordBits |
		uint64(lod)<<lodShift)
}

// Unpack returns the fields the key was built from.
func (k Key) Unpack() (minX, minY int32, lod uint8) {
	return signExtend(uint32(k) & coordMask),
		signExtend(uint32(k>>CoordBits) & coordMask),
		uint8(k >> lodShift)
}

// LOD returns the key's level of detail.
func (k Key) LOD() uint8 {
	return uint8(k >> lodShift)
}

func (k Key) String() string {
	x, y, lod := k.Unpack()
	return fmt.Sprintf("%d,%d@%d", x, y, lod)
}

func signExtend(v uint32) int32 {
	return int32(v<<(32-CoordBits)) >> (32 - CoordBits)
}
