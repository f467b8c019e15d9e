package layer

import (
	"errors"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/arena"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/diag"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrPackageNotReady is returned by AddChunk on an instanced layer whose asset package is not bound yet.
	ErrPackageNotReady = errors.New("layer: asset package not ready")
	// ErrNotLive is returned for operations on a chunk the layer does not hold.
	ErrNotLive = errors.New("layer: chunk not live")
)

// View is the per-frame viewer state passed to Update.
type View struct {
	Position mgl32.Vec3
	Forward  mgl32.Vec3
	Frustum  *common.Frustum
	Time     float32
}

// Draw is one instanced draw a renderer issues for a layer: Binding's indices,
// base vertex and first index, with instances [FirstInstance, FirstInstance+InstanceCount)
// of the layer's instance table (unused for geometry layers).
type Draw struct {
	Binding       *arena.Binding
	FirstInstance uint32
	InstanceCount uint32
}

// Stats is a snapshot of one layer.
type Stats struct {
	Name      string
	Chunks    int
	Allocated int
	DrawCalls int
	Instances int
	Dropped   int
	Arena     arena.Stats
}

// Layer is the chunk lifecycle coordinator of one rendered layer. It turns
// chunk results into arena bindings, draw calls and GPU tasks, and frees all
// of them again when the chunk goes away.
//
// All methods must be called from the goroutine that owns lifecycle state.
type Layer interface {
	// Name returns the layer's name.
	Name() string

	// Category returns the content category the layer renders.
	Category() content.Category

	// AddChunk allocates and uploads the layer's share of a chunk result.
	// Capacity exhaustion drops content and is reported, not returned.
	// Adding a chunk the layer already holds panics.
	//
	// Parameters:
	//   - c: the chunk
	//   - res: the chunk's generated content
	//
	// Returns:
	//   - error: ErrPackageNotReady for an unbound instanced layer, or invalid content
	AddChunk(c chunk.Chunk, res *content.ChunkResult) error

	// RemoveChunk cancels the chunk's pending tasks and frees everything it
	// allocated. Removing a chunk the layer does not hold is a no-op.
	//
	// Parameters:
	//   - c: the chunk
	RemoveChunk(c chunk.Chunk)

	// Update refreshes per-frame state: visibility and representation uniforms.
	//
	// Parameters:
	//   - v: the viewer state
	Update(v View)

	// Draws returns the draws visible in the last Update, or every live draw if
	// Update has not been given a frustum. The slice is a copy the caller owns.
	Draws() []Draw

	// Stats returns a snapshot of the layer.
	Stats() Stats

	// Release frees every chunk and destroys the layer's GPU buffers.
	Release()
}

// chunkState is the per-key allocation state: Unallocated -> Allocated -> Freed.
type chunkState int

const (
	stateUnallocated chunkState = iota
	stateAllocated
	stateFreed
)

func (s chunkState) String() string {
	switch s {
	case stateUnallocated:
		return "unallocated"
	case stateAllocated:
		return "allocated"
	case stateFreed:
		return "freed"
	}
	return "unknown"
}

// base holds the collaborators and settings shared by both layer kinds.
type base struct {
	name      string
	category  content.Category
	baseSize  float32
	minHeight float32
	maxHeight float32

	tasks     *task.GpuTaskManager
	scheduler task.Scheduler
	reporter  diag.Reporter
	logger    *slog.Logger

	visible []Draw
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Category() content.Category {
	return b.category
}

func (b *base) Draws() []Draw {
	return append([]Draw(nil), b.visible...)
}

func (b *base) bounds(c chunk.Chunk) common.AABB {
	return c.WorldBounds(b.baseSize, b.minHeight, b.maxHeight)
}

func (b *base) report(kind diag.Kind, key chunk.Key, requested, granted int, err error) {
	b.reporter.Report(diag.Event{
		Kind:      kind,
		Layer:     b.name,
		Chunk:     key,
		Requested: requested,
		Granted:   granted,
		Err:       err,
	})
}

// discard reports a late result for key and logs the task it belonged to.
func (b *base) discard(key chunk.Key, t *task.GpuTask) {
	b.logger.Debug("late result discarded", "chunk", key.String(), "task", t.ID(), "label", t.Label())
	b.reporter.Report(diag.Event{
		Kind:  diag.LateResultDiscarded,
		Layer: b.name,
		Chunk: key,
		Task:  t.ID(),
	})
}
