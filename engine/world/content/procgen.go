package content

import (
	"context"
	"math"
	"math/rand"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"
)

// ProcGen is a CPU reference ComputeBackend: fractal simplex heightfield terrain,
// a flat water sheet wherever terrain dips below sea level, and noise-gated
// scatter for the instanced categories.
// It is safe for concurrent use; every call derives its randomness from the chunk seed.
type ProcGen struct {
	seed        int64
	noise       opensimplex.Noise
	resolution  int
	octaves     int
	noiseScale  float64
	heightScale float32
	seaLevel    float32

	geometries map[Category]int
}

var _ ComputeBackend = &ProcGen{}

// NewProcGen creates a generator for the world seed.
//
// Parameters:
//   - seed: world seed
//   - options: functional options for terrain shape and scatter
//
// Returns:
//   - *ProcGen: the generator
func NewProcGen(seed int64, options ...ProcGenBuilderOption) *ProcGen {
	p := &ProcGen{
		seed:        seed,
		noise:       opensimplex.New(seed),
		resolution:  16,
		octaves:     4,
		noiseScale:  1.0 / 256,
		heightScale: 48,
		seaLevel:    0,
		geometries: map[Category]int{
			CategoryVegetation: 1,
			CategoryGrass:      1,
			CategoryPOI:        1,
		},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Height returns the terrain height at world (x, z).
func (p *ProcGen) Height(x, z float32) float32 {
	var sum, norm float64
	amp, freq := 1.0, p.noiseScale
	for range p.octaves {
		sum += amp * p.noise.Eval2(float64(x)*freq, float64(z)*freq)
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return float32(sum/norm) * p.heightScale
}

// SeaLevel returns the height of the water sheet.
func (p *ProcGen) SeaLevel() float32 {
	return p.seaLevel
}

// HeightRange returns the lowest and highest height the terrain can reach.
func (p *ProcGen) HeightRange() (lo, hi float32) {
	return -p.heightScale, p.heightScale
}

func (p *ProcGen) GenerateChunk(ctx context.Context, req Request) (*ChunkResult, error) {
	if err := task.CheckAbort(ctx); err != nil {
		return nil, err
	}
	res := NewChunkResult()

	var terrain *common.Mesh
	if req.Flags.Has(FlagTerrain) || req.Flags.Has(FlagWater) {
		var err error
		if terrain, err = p.terrain(ctx, req); err != nil {
			return nil, err
		}
	}
	if req.Flags.Has(FlagTerrain) {
		res.Geometry[CategoryTerrain] = terrain
	}
	if req.Flags.Has(FlagWater) {
		if water := p.water(req, terrain); water != nil {
			res.Geometry[CategoryWater] = water
		}
	}

	for i, cat := range []Category{CategoryVegetation, CategoryGrass, CategoryPOI} {
		if !req.Flags.Has(FlagFor(cat)) {
			continue
		}
		insts, err := p.scatter(ctx, req, cat, int64(i+1))
		if err != nil {
			return nil, err
		}
		res.Instances[cat] = insts
	}
	return res, nil
}

func (p *ProcGen) terrain(ctx context.Context, req Request) (*common.Mesh, error) {
	n := p.resolution
	origin := req.Chunk.Origin(req.BaseSize)
	size := req.Chunk.Size(req.BaseSize)
	step := size / float32(n)

	heights := make([]float32, (n+1)*(n+1))
	for j := 0; j <= n; j++ {
		if err := task.CheckAbort(ctx); err != nil {
			return nil, err
		}
		for i := 0; i <= n; i++ {
			heights[j*(n+1)+i] = p.Height(origin[0]+float32(i)*step, origin[2]+float32(j)*step)
		}
	}
	stitchSeams(heights, n, req.Chunk)

	m := &common.Mesh{
		Positions: make([]mgl32.Vec3, 0, len(heights)),
		Normals:   make([]mgl32.Vec3, 0, len(heights)),
		Materials: make([]mgl32.Vec4, 0, len(heights)),
		Indices:   make([]uint32, 0, n*n*6),
	}
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			x, z := origin[0]+float32(i)*step, origin[2]+float32(j)*step
			h := heights[j*(n+1)+i]
			normal := mgl32.Vec3{
				p.Height(x-step, z) - p.Height(x+step, z),
				2 * step,
				p.Height(x, z-step) - p.Height(x, z+step),
			}.Normalize()
			m.Positions = append(m.Positions, mgl32.Vec3{x, h, z})
			m.Normals = append(m.Normals, normal)
			m.Materials = append(m.Materials, p.materialWeights(h, normal))
		}
	}
	row := uint32(n + 1)
	for j := range uint32(n) {
		for i := range uint32(n) {
			v00 := j*row + i
			v10, v01 := v00+1, v00+row
			v11 := v01 + 1
			m.Indices = append(m.Indices, v00, v01, v10, v10, v01, v11)
		}
	}
	return m, nil
}

// stitchSeams flattens edge vertices toward a coarser neighbour so the shared
// edge has no T-junction cracks: vertices between the neighbour's samples are
// linearly interpolated from them.
func stitchSeams(heights []float32, n int, c chunk.Chunk) {
	at := func(edge, k int) int {
		switch edge {
		case chunk.EdgeNorth:
			return n*(n+1) + k
		case chunk.EdgeEast:
			return k*(n+1) + n
		case chunk.EdgeSouth:
			return k
		default:
			return k * (n + 1)
		}
	}
	for edge, nlod := range c.LODArray {
		if nlod <= c.LOD {
			continue
		}
		stride := min(1<<min(nlod-c.LOD, 30), n)
		for k := 0; k <= n; k++ {
			r := k % stride
			if r == 0 {
				continue
			}
			lo, hi := k-r, min(k-r+stride, n)
			t := float32(r) / float32(hi-lo)
			heights[at(edge, k)] = heights[at(edge, lo)]*(1-t) + heights[at(edge, hi)]*t
		}
	}
}

// materialWeights blends sand, grass, rock and snow by height and slope.
func (p *ProcGen) materialWeights(h float32, normal mgl32.Vec3) mgl32.Vec4 {
	rel := (h - p.seaLevel) / p.heightScale
	slope := 1 - normal[1]
	w := mgl32.Vec4{
		clamp01(1 - rel*10),
		clamp01(1 - slope*4),
		clamp01(slope * 3),
		clamp01((rel - 0.6) * 4),
	}
	sum := w[0] + w[1] + w[2] + w[3]
	if sum == 0 {
		return mgl32.Vec4{0, 1, 0, 0}
	}
	return w.Mul(1 / sum)
}

func (p *ProcGen) water(req Request, terrain *common.Mesh) *common.Mesh {
	below := false
	for _, v := range terrain.Positions {
		if v[1] < p.seaLevel {
			below = true
			break
		}
	}
	if !below {
		return nil
	}
	o := req.Chunk.Origin(req.BaseSize)
	s := req.Chunk.Size(req.BaseSize)
	up := mgl32.Vec3{0, 1, 0}
	blue := mgl32.Vec4{0, 0, 0, 1}
	return &common.Mesh{
		Positions: []mgl32.Vec3{
			{o[0], p.seaLevel, o[2]},
			{o[0] + s, p.seaLevel, o[2]},
			{o[0], p.seaLevel, o[2] + s},
			{o[0] + s, p.seaLevel, o[2] + s},
		},
		Normals:   []mgl32.Vec3{up, up, up, up},
		Materials: []mgl32.Vec4{blue, blue, blue, blue},
		Indices:   []uint32{0, 2, 1, 1, 2, 3},
	}
}

var scatterThreshold = map[Category]float64{
	CategoryVegetation: -0.1,
	CategoryGrass:      -0.5,
	CategoryPOI:        0.4,
}

func (p *ProcGen) scatter(ctx context.Context, req Request, cat Category, salt int64) ([]Instance, error) {
	budget := req.InstanceCounts[cat]
	if budget <= 0 {
		return nil, nil
	}
	rng := rand.New(rand.NewSource(req.Chunk.Seed(p.seed) ^ salt*0x5bd1e995))
	origin := req.Chunk.Origin(req.BaseSize)
	size := req.Chunk.Size(req.BaseSize)
	kinds := max(p.geometries[cat], 1)

	out := make([]Instance, 0, budget)
	for i := range budget {
		if i%64 == 0 {
			if err := task.CheckAbort(ctx); err != nil {
				return nil, err
			}
		}
		x := origin[0] + rng.Float32()*size
		z := origin[2] + rng.Float32()*size
		h := p.Height(x, z)
		if h < p.seaLevel {
			continue
		}
		density := p.noise.Eval2(float64(x)/64+float64(salt)*100, float64(z)/64)
		if density < scatterThreshold[cat] {
			continue
		}
		out = append(out, Instance{
			Geometry:    rng.Intn(kinds),
			Position:    mgl32.Vec3{x, h, z},
			Orientation: mgl32.QuatRotate(rng.Float32()*2*math.Pi, mgl32.Vec3{0, 1, 0}),
			Scale:       0.8 + rng.Float32()*0.4,
			Aux:         [4]float32{rng.Float32(), float32(density), 0, 0},
		})
	}
	return out, nil
}

func clamp01(v float32) float32 {
	return max(0, min(1, v))
}
