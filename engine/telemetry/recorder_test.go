package telemetry

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/arena"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/layer"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRecorderIntervals(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	r := NewRecorder(
		WithInterval(time.Second),
		WithClock(clock.now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	snap := Snapshot{
		Generations: 3,
		Writes:      2,
		Layers: []layer.Stats{
			{Name: "terrain", Chunks: 3, Allocated: 3, Arena: arena.Stats{VertexCapacity: 100, VertexUsed: 40, LargestFree: 60}},
			{Name: "trees", Chunks: 3, Instances: 12, Dropped: 1},
		},
	}

	for i := range 3 {
		clock.advance(300 * time.Millisecond)
		if r.Tick(snap) {
			t.Fatalf("interval closed early on tick %d", i)
		}
	}
	clock.advance(100 * time.Millisecond)
	if !r.Tick(snap) {
		t.Fatal("interval did not close after 1s")
	}

	rows := r.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want one per layer", len(rows))
	}
	if rows[0].Layer != "terrain" || rows[0].FPS != 4 || rows[0].Writes != 8 || rows[0].Elapsed != 1 {
		t.Errorf("terrain row = %+v", rows[0])
	}
	if rows[0].Fragmentation != 0 {
		t.Errorf("contiguous free space reported fragmentation %v", rows[0].Fragmentation)
	}
	if rows[1].Instances != 12 || rows[1].Dropped != 1 {
		t.Errorf("trees row = %+v", rows[1])
	}

	clock.advance(500 * time.Millisecond)
	if r.Tick(snap) {
		t.Error("counters were not reset after the interval")
	}
}

func TestRecorderWriteCSV(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := NewRecorder(WithClock(clock.now), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	clock.advance(2 * time.Second)
	r.Tick(Snapshot{Layers: []layer.Stats{{Name: "water", Chunks: 1}}})

	var buf bytes.Buffer
	if err := r.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header and one row:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "elapsed_s,fps,layer,chunks") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], ",water,1,") {
		t.Errorf("row = %q", lines[1])
	}
}
