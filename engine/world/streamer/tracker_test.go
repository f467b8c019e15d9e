package streamer

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/go-gl/mathgl/mgl32"
)

type trackerEvent struct {
	add bool
	key chunk.Key
}

type recordingListener struct {
	added   []chunk.Chunk
	removed []chunk.Chunk
	events  []trackerEvent
}

func (r *recordingListener) OnChunkAdd(c chunk.Chunk) {
	r.added = append(r.added, c)
	r.events = append(r.events, trackerEvent{add: true, key: c.Key()})
}

func (r *recordingListener) OnChunkRemove(c chunk.Chunk) {
	r.removed = append(r.removed, c)
	r.events = append(r.events, trackerEvent{key: c.Key()})
}

func cell(v float32, size float32) int32 {
	return int32(math.Floor(float64(v / size)))
}

func TestRingTrackerCoversWithoutOverlap(t *testing.T) {
	tests := []struct {
		name string
		pos  mgl32.Vec3
	}{
		{name: "origin", pos: mgl32.Vec3{0, 0, 0}},
		{name: "positive", pos: mgl32.Vec3{300, 50, 170}},
		{name: "negative", pos: mgl32.Vec3{-250, 0, -90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingListener{}
			tr := NewRingTracker(rec, WithBaseSize(32), WithLevels(3), WithViewRadius(1), WithSplitRadius(1.5))
			tr.Update(tt.pos)
			live := tr.Live()

			// The union must be the (2r+1)^2 square of coarsest chunks around the viewer.
			const span = 4
			cx := cell(tt.pos[0], 32*span)
			cz := cell(tt.pos[2], 32*span)
			for x := (cx - 1) * span; x < (cx+2)*span; x++ {
				for y := (cz - 1) * span; y < (cz+2)*span; y++ {
					n := 0
					for _, c := range live {
						if c.Contains(x, y) {
							n++
						}
					}
					if n != 1 {
						t.Fatalf("base cell %d,%d covered %d times", x, y, n)
					}
				}
			}

			var finest uint8 = 255
			for _, c := range live {
				if c.Contains(cell(tt.pos[0], 32), cell(tt.pos[2], 32)) {
					finest = c.LOD
				}
			}
			if finest != 0 {
				t.Errorf("viewer's chunk has lod %d, want 0", finest)
			}
			if len(rec.added) != len(live) || len(rec.removed) != 0 {
				t.Errorf("added %d removed %d for %d live", len(rec.added), len(rec.removed), len(live))
			}
		})
	}
}

func TestRingTrackerNeighbourLODs(t *testing.T) {
	tr := NewRingTracker(&recordingListener{}, WithLevels(3), WithViewRadius(1))
	tr.Update(mgl32.Vec3{40, 0, 40})
	live := tr.Live()

	owner := func(x, y int32) (chunk.Chunk, bool) {
		for _, c := range live {
			if c.Contains(x, y) {
				return c, true
			}
		}
		return chunk.Chunk{}, false
	}
	coarser := 0
	for _, c := range live {
		s := c.Span()
		probes := [4][2]int32{
			chunk.EdgeNorth: {c.Min[0], c.Min[1] + s},
			chunk.EdgeEast:  {c.Min[0] + s, c.Min[1]},
			chunk.EdgeSouth: {c.Min[0], c.Min[1] - 1},
			chunk.EdgeWest:  {c.Min[0] - 1, c.Min[1]},
		}
		for e, p := range probes {
			want := c.LOD
			if n, ok := owner(p[0], p[1]); ok {
				want = n.LOD
			}
			if c.LODArray[e] != want {
				t.Errorf("chunk %v edge %d lod = %d, want %d", c.Key(), e, c.LODArray[e], want)
			}
			if want > c.LOD {
				coarser++
			}
		}
	}
	if coarser == 0 {
		t.Error("no chunk borders a coarser neighbour")
	}
}

func TestRingTrackerDiff(t *testing.T) {
	rec := &recordingListener{}
	tr := NewRingTracker(rec, WithLevels(2), WithViewRadius(1))

	added, removed := tr.Update(mgl32.Vec3{})
	if added == 0 || removed != 0 {
		t.Fatalf("first update added %d removed %d", added, removed)
	}
	if a, r := tr.Update(mgl32.Vec3{1, 0, 1}); a != 0 || r != 0 {
		t.Errorf("small move added %d removed %d, want no change", a, r)
	}

	before := len(tr.Live())
	added, removed = tr.Update(mgl32.Vec3{10000, 0, 10000})
	if removed != before {
		t.Errorf("far move removed %d of %d", removed, before)
	}
	if added != len(tr.Live()) {
		t.Errorf("far move added %d, live %d", added, len(tr.Live()))
	}

	// Adds and removes alternate per key: never added twice, never removed unless live.
	live := make(map[chunk.Key]bool)
	for _, ev := range rec.events {
		if ev.add == live[ev.key] {
			t.Fatalf("event %+v with live=%v", ev, live[ev.key])
		}
		live[ev.key] = ev.add
	}

	tr.Clear()
	if len(tr.Live()) != 0 || len(rec.removed) != removed+added {
		t.Errorf("Clear left %d live, %d removals", len(tr.Live()), len(rec.removed))
	}
}
