package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/layer"
	"github.com/gocarina/gocsv"
)

// Snapshot is the streaming state handed to Tick once per frame.
type Snapshot struct {
	Generations        int
	PendingGenerations int
	TasksCommitted     int
	TasksCancelled     int
	Writes             int
	Layers             []layer.Stats
}

// Row is one exported line: one layer at the end of one interval.
type Row struct {
	Elapsed            float64 `csv:"elapsed_s"`
	FPS                float64 `csv:"fps"`
	Layer              string  `csv:"layer"`
	Chunks             int     `csv:"chunks"`
	Allocated          int     `csv:"allocated"`
	DrawCalls          int     `csv:"draw_calls"`
	Instances          int     `csv:"instances"`
	Dropped            int     `csv:"dropped"`
	VertexUsed         uint32  `csv:"vertex_used"`
	VertexPeak         uint32  `csv:"vertex_peak"`
	Fragmentation      float64 `csv:"fragmentation"`
	FreeSpanStdDev     float64 `csv:"free_span_stddev"`
	Generations        int     `csv:"generations"`
	PendingGenerations int     `csv:"pending_generations"`
	Writes             int     `csv:"writes"`
	HeapMB             float64 `csv:"heap_mb"`
}

// Recorder aggregates per-frame snapshots into interval rows, logs a summary
// line per interval and exports the rows as CSV.
type Recorder struct {
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	start      time.Time
	lastTime   time.Time
	frameCount int
	writes     int
	memStats   runtime.MemStats

	rows []Row
}

// NewRecorder creates a Recorder. The interval defaults to 1 second.
//
// Parameters:
//   - options: functional options for the recorder
//
// Returns:
//   - *Recorder: the recorder
func NewRecorder(options ...RecorderBuilderOption) *Recorder {
	r := &Recorder{
		logger:   slog.Default(),
		interval: time.Second,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	r.start = r.now()
	r.lastTime = r.start
	return r
}

// Tick should be called once per frame. When the interval has elapsed it
// appends one row per layer and logs a summary.
//
// Parameters:
//   - s: the frame's snapshot
//
// Returns:
//   - bool: true if an interval closed this tick
func (r *Recorder) Tick(s Snapshot) bool {
	r.frameCount++
	r.writes += s.Writes
	now := r.now()
	elapsed := now.Sub(r.lastTime)
	if elapsed < r.interval {
		return false
	}

	fps := float64(r.frameCount) / elapsed.Seconds()
	runtime.ReadMemStats(&r.memStats)
	heapMB := float64(r.memStats.Alloc) / 1024 / 1024
	since := now.Sub(r.start).Seconds()

	chunks, instances, dropped := 0, 0, 0
	for _, ls := range s.Layers {
		r.rows = append(r.rows, Row{
			Elapsed:            since,
			FPS:                fps,
			Layer:              ls.Name,
			Chunks:             ls.Chunks,
			Allocated:          ls.Allocated,
			DrawCalls:          ls.DrawCalls,
			Instances:          ls.Instances,
			Dropped:            ls.Dropped,
			VertexUsed:         ls.Arena.VertexUsed,
			VertexPeak:         ls.Arena.VertexPeak,
			Fragmentation:      ls.Arena.Fragmentation(),
			FreeSpanStdDev:     ls.Arena.FreeStdDev,
			Generations:        s.Generations,
			PendingGenerations: s.PendingGenerations,
			Writes:             r.writes,
			HeapMB:             heapMB,
		})
		chunks += ls.Chunks
		instances += ls.Instances
		dropped += ls.Dropped
	}

	r.logger.Info("stream stats",
		slog.Float64("fps", fps),
		slog.Int("generations", s.Generations),
		slog.Int("pending", s.PendingGenerations),
		slog.Int("chunks", chunks),
		slog.Int("instances", instances),
		slog.Int("dropped", dropped),
		slog.Int("writes", r.writes),
		slog.Int("tasks_cancelled", s.TasksCancelled),
		slog.Float64("heap_mb", heapMB),
	)

	r.frameCount = 0
	r.writes = 0
	r.lastTime = now
	return true
}

// Rows returns a copy of the rows recorded so far.
func (r *Recorder) Rows() []Row {
	return append([]Row(nil), r.rows...)
}

// WriteCSV writes every recorded row, with a header line, to w.
func (r *Recorder) WriteCSV(w io.Writer) error {
	if err := gocsv.Marshal(r.rows, w); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// WriteFile writes the CSV export to path, replacing any existing file.
func (r *Recorder) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := r.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
