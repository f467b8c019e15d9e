package chunk

import (
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"
)

// Edge indices into Chunk.LODArray.
const (
	EdgeNorth = iota
	EdgeEast
	EdgeSouth
	EdgeWest
)

// Chunk is a square grid cell emitted by the LOD tracker.
// Min is in base-chunk units; a chunk at lod L spans 1<<L base chunks per side.
// LODArray holds the LOD of the neighbour across each edge, used by the
// generator to stitch seams.
type Chunk struct {
	Min      [2]int32
	LOD      uint8
	LODArray [4]uint8
}

// Key returns the chunk's packed identity.
func (c Chunk) Key() Key {
	return NewKey(c.Min[0], c.Min[1], c.LOD)
}

// Span returns the chunk's side length in base-chunk units.
func (c Chunk) Span() int32 {
	return 1 << c.LOD
}

// Size returns the chunk's side length in world units.
//
// Parameters:
//   - baseSize: world size of a lod 0 chunk
//
// Returns:
//   - float32: the side length in world units
func (c Chunk) Size(baseSize float32) float32 {
	return baseSize * float32(c.Span())
}

// Origin returns the world-space position of the chunk's minimum corner on the ground plane.
func (c Chunk) Origin(baseSize float32) mgl32.Vec3 {
	return mgl32.Vec3{float32(c.Min[0]) * baseSize, 0, float32(c.Min[1]) * baseSize}
}

// WorldBounds computes the chunk's world-space box. Grid x maps to world x and
// grid y maps to world z; the vertical extent is supplied by the layer.
//
// Parameters:
//   - baseSize: world size of a lod 0 chunk
//   - minHeight: lowest world y any content of the layer reaches
//   - maxHeight: highest world y any content of the layer reaches
//
// Returns:
//   - common.AABB: the chunk's bounding box
func (c Chunk) WorldBounds(baseSize, minHeight, maxHeight float32) common.AABB {
	o := c.Origin(baseSize)
	s := c.Size(baseSize)
	return common.AABB{
		Min: mgl32.Vec3{o[0], minHeight, o[2]},
		Max: mgl32.Vec3{o[0] + s, maxHeight, o[2] + s},
	}
}

// Seed derives a deterministic per-chunk seed from the world seed and the chunk key.
func (c Chunk) Seed(worldSeed int64) int64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(worldSeed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(c.Key()))
	return int64(xxhash.Sum64(buf[:]))
}

// Contains reports whether the base-chunk grid cell (x, y) lies inside the chunk.
func (c Chunk) Contains(x, y int32) bool {
	s := c.Span()
	return x >= c.Min[0] && x < c.Min[0]+s && y >= c.Min[1] && y < c.Min[1]+s
}
