package streamer

import (
	"math"
	"sort"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/go-gl/mathgl/mgl32"
)

// Listener receives chunk membership changes from a tracker.
type Listener interface {
	OnChunkAdd(c chunk.Chunk)
	OnChunkRemove(c chunk.Chunk)
}

// RingTracker is a quadtree LOD tracker. Around the viewer it keeps a square
// of coarsest-level chunks and splits each chunk closer than splitRadius
// times its own size, so detail falls off in rings. Every Update diffs the
// new leaf set against the previous one and notifies the listener, removals
// first. A chunk whose neighbour LODs changed is removed and re-added so its
// seams are regenerated.
type RingTracker struct {
	listener    Listener
	baseSize    float32
	levels      int
	viewRadius  int
	splitRadius float32

	live map[chunk.Key]chunk.Chunk
}

// NewRingTracker creates a tracker notifying listener.
//
// Parameters:
//   - listener: receives add and remove notifications
//   - options: functional options for the tracker
//
// Returns:
//   - *RingTracker: the tracker
func NewRingTracker(listener Listener, options ...RingTrackerBuilderOption) *RingTracker {
	if listener == nil {
		panic("streamer: NewRingTracker requires a listener")
	}
	t := &RingTracker{
		listener:    listener,
		baseSize:    32,
		levels:      4,
		viewRadius:  2,
		splitRadius: 1.5,
		live:        make(map[chunk.Key]chunk.Chunk),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Live returns the chunks currently added, ordered by key.
func (t *RingTracker) Live() []chunk.Chunk {
	keys := make([]chunk.Key, 0, len(t.live))
	for k := range t.live {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]chunk.Chunk, len(keys))
	for i, k := range keys {
		out[i] = t.live[k]
	}
	return out
}

// Update moves the viewer to pos and notifies the listener of the difference.
//
// Parameters:
//   - pos: viewer world position; y is ignored
//
// Returns:
//   - added, removed: number of notifications sent
func (t *RingTracker) Update(pos mgl32.Vec3) (added, removed int) {
	want := t.leaves(pos)

	var gone, fresh []chunk.Chunk
	for k, c := range t.live {
		if n, ok := want[k]; !ok || n.LODArray != c.LODArray {
			gone = append(gone, c)
		}
	}
	for k, c := range want {
		if o, ok := t.live[k]; !ok || o.LODArray != c.LODArray {
			fresh = append(fresh, c)
		}
	}
	byKey := func(cs []chunk.Chunk) {
		sort.Slice(cs, func(i, j int) bool { return cs[i].Key() < cs[j].Key() })
	}
	byKey(gone)
	byKey(fresh)

	for _, c := range gone {
		delete(t.live, c.Key())
		t.listener.OnChunkRemove(c)
	}
	for _, c := range fresh {
		t.live[c.Key()] = c
		t.listener.OnChunkAdd(c)
	}
	return len(fresh), len(gone)
}

// Clear removes every live chunk.
func (t *RingTracker) Clear() {
	for _, c := range t.Live() {
		delete(t.live, c.Key())
		t.listener.OnChunkRemove(c)
	}
}

func (t *RingTracker) leaves(pos mgl32.Vec3) map[chunk.Key]chunk.Chunk {
	top := uint8(t.levels - 1)
	span := int32(1) << top
	size := t.baseSize * float32(span)
	cx := int32(math.Floor(float64(pos[0] / size)))
	cz := int32(math.Floor(float64(pos[2] / size)))

	out := make(map[chunk.Key]chunk.Chunk)
	r := int32(t.viewRadius)
	for i := cx - r; i <= cx+r; i++ {
		for j := cz - r; j <= cz+r; j++ {
			t.split(chunk.Chunk{Min: [2]int32{i * span, j * span}, LOD: top}, pos, out)
		}
	}
	for k, c := range out {
		c.LODArray = t.neighbours(c, out)
		out[k] = c
	}
	return out
}

func (t *RingTracker) split(c chunk.Chunk, pos mgl32.Vec3, out map[chunk.Key]chunk.Chunk) {
	size := c.Size(t.baseSize)
	if c.LOD == 0 || t.distance(c, pos) >= t.splitRadius*size {
		out[c.Key()] = c
		return
	}
	half := c.Span() / 2
	for _, d := range [4][2]int32{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		t.split(chunk.Chunk{Min: [2]int32{c.Min[0] + d[0]*half, c.Min[1] + d[1]*half}, LOD: c.LOD - 1}, pos, out)
	}
}

// distance is the ground-plane distance from pos to c's footprint.
func (t *RingTracker) distance(c chunk.Chunk, pos mgl32.Vec3) float32 {
	o := c.Origin(t.baseSize)
	size := c.Size(t.baseSize)
	dx := max(o[0]-pos[0], 0, pos[0]-(o[0]+size))
	dz := max(o[2]-pos[2], 0, pos[2]-(o[2]+size))
	return float32(math.Hypot(float64(dx), float64(dz)))
}

// neighbours returns the LOD of the leaf across each edge of c, or c's own
// LOD where the set ends.
func (t *RingTracker) neighbours(c chunk.Chunk, leaves map[chunk.Key]chunk.Chunk) [4]uint8 {
	s := c.Span()
	probes := [4][2]int32{
		chunk.EdgeNorth: {c.Min[0], c.Min[1] + s},
		chunk.EdgeEast:  {c.Min[0] + s, c.Min[1]},
		chunk.EdgeSouth: {c.Min[0], c.Min[1] - 1},
		chunk.EdgeWest:  {c.Min[0] - 1, c.Min[1]},
	}
	var lods [4]uint8
	for e, p := range probes {
		lods[e] = c.LOD
		for lod := range uint8(t.levels) {
			span := int32(1) << lod
			key := chunk.NewKey(floorDiv(p[0], span)*span, floorDiv(p[1], span)*span, lod)
			if _, ok := leaves[key]; ok {
				lods[e] = lod
				break
			}
		}
	}
	return lods
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
