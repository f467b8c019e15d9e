package content

import (
	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/go-gl/mathgl/mgl32"
)

// Category names a kind of generated content. Every rendered layer consumes one.
type Category string

const (
	CategoryTerrain    Category = "terrain"
	CategoryWater      Category = "water"
	CategoryVegetation Category = "vegetation"
	CategoryGrass      Category = "grass"
	CategoryPOI        Category = "poi"
)

// Flags selects which categories a generation request produces.
type Flags uint32

const (
	FlagTerrain Flags = 1 << iota
	FlagWater
	FlagVegetation
	FlagGrass
	FlagPOI

	FlagAll = FlagTerrain | FlagWater | FlagVegetation | FlagGrass | FlagPOI
)

var categoryFlags = map[Category]Flags{
	CategoryTerrain:    FlagTerrain,
	CategoryWater:      FlagWater,
	CategoryVegetation: FlagVegetation,
	CategoryGrass:      FlagGrass,
	CategoryPOI:        FlagPOI,
}

// FlagFor returns the request flag producing category c, or 0 if c is unknown.
func FlagFor(c Category) Flags {
	return categoryFlags[c]
}

// Has reports whether f includes every bit of o.
func (f Flags) Has(o Flags) bool {
	return f&o == o
}

// Request is one chunk generation job for the compute backend.
type Request struct {
	Chunk    chunk.Chunk
	Seed     int64
	BaseSize float32
	Flags    Flags
	// InstanceCounts caps the number of instances generated per instanced category.
	InstanceCounts map[Category]int
}

// Instance is one placed object of an instanced category.
// Geometry indexes the layer's asset package.
type Instance struct {
	Geometry    int
	Position    mgl32.Vec3
	Orientation mgl32.Quat
	Scale       float32
	Aux         [4]float32
}

// ChunkResult is everything generated for one chunk.
type ChunkResult struct {
	Geometry  map[Category]*common.Mesh
	Instances map[Category][]Instance
}

// NewChunkResult returns an empty result with both maps allocated.
func NewChunkResult() *ChunkResult {
	return &ChunkResult{
		Geometry:  make(map[Category]*common.Mesh),
		Instances: make(map[Category][]Instance),
	}
}

// CookedBuffer is an opaque physics shape produced from a mesh.
type CookedBuffer struct {
	Data      []byte
	Bounds    common.AABB
	Triangles int
}

// PhysicsHandle identifies geometry registered with a physics backend.
type PhysicsHandle uint64

// Bundle names the assets an instanced layer needs before it can accept chunks.
type Bundle struct {
	Name       string
	Geometries []string
}

// GeometryAsset is one loaded model with its LOD chain, finest first.
type GeometryAsset struct {
	Name string
	LODs []*common.Mesh
	// BillboardFrames is the number of spritesheet frames around the vertical axis.
	BillboardFrames int
}

// Package is a loaded bundle ready to be bound to a layer.
type Package struct {
	Name       string
	Geometries []GeometryAsset
}

// LODCount returns the length of the shortest LOD chain in the package.
func (p *Package) LODCount() int {
	if p == nil || len(p.Geometries) == 0 {
		return 0
	}
	n := len(p.Geometries[0].LODs)
	for _, g := range p.Geometries[1:] {
		n = min(n, len(g.LODs))
	}
	return n
}
