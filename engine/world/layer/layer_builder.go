package layer

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/diag"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
)

// settings collects the options of both layer kinds before construction.
type settings struct {
	name      string
	category  content.Category
	baseSize  float32
	minHeight float32
	maxHeight float32

	scheduler task.Scheduler
	reporter  diag.Reporter
	logger    *slog.Logger

	vertexCapacity uint32
	indexCapacity  uint32
	physics        content.PhysicsBackend

	lodCutoff         uint8
	meshLODs          int
	maxPerCall        uint32
	drawCallSlots     uint32
	maxPerGeometryLOD int
	simplifier        content.Simplifier
}

func defaultSettings(category content.Category) *settings {
	return &settings{
		name:              string(category),
		category:          category,
		baseSize:          32,
		minHeight:         -64,
		maxHeight:         64,
		scheduler:         task.Inline{},
		reporter:          diag.NewSlogReporter(nil),
		logger:            slog.Default(),
		vertexCapacity:    1 << 18,
		indexCapacity:     3 << 18,
		lodCutoff:         2,
		meshLODs:          2,
		maxPerCall:        1024,
		drawCallSlots:     256,
		maxPerGeometryLOD: 64,
		simplifier:        content.VertexClusterSimplifier{},
	}
}

func (s *settings) base(tasks *task.GpuTaskManager) base {
	return base{
		name:      s.name,
		category:  s.category,
		baseSize:  s.baseSize,
		minHeight: s.minHeight,
		maxHeight: s.maxHeight,
		tasks:     tasks,
		scheduler: s.scheduler,
		reporter:  s.reporter,
		logger:    s.logger.With("layer", s.name),
	}
}

// LayerBuilderOption is a functional option for configuring a GeometryLayer or InstancedLayer.
// Options that only apply to one kind are ignored by the other.
type LayerBuilderOption func(*settings)

// WithName sets the layer name used in labels, logs and diagnostics.
//
// Parameters:
//   - name: the layer name
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithName(name string) LayerBuilderOption {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithChunkGeometry sets the world size of a lod 0 chunk and the vertical
// extent used for chunk bounding volumes.
//
// Parameters:
//   - baseSize: world size of a lod 0 chunk
//   - minHeight: lowest world y of the layer's content
//   - maxHeight: highest world y of the layer's content
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithChunkGeometry(baseSize, minHeight, maxHeight float32) LayerBuilderOption {
	return func(s *settings) {
		s.baseSize = baseSize
		s.minHeight = minHeight
		s.maxHeight = maxHeight
	}
}

// WithScheduler sets where asynchronous work runs and how its results return
// to the owning goroutine. Defaults to task.Inline.
//
// Parameters:
//   - sched: the scheduler
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithScheduler(sched task.Scheduler) LayerBuilderOption {
	return func(s *settings) {
		if sched != nil {
			s.scheduler = sched
		}
	}
}

// WithReporter sets the diagnostic sink for dropped content and late results.
//
// Parameters:
//   - r: the reporter
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithReporter(r diag.Reporter) LayerBuilderOption {
	return func(s *settings) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithLogger sets the layer's logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) LayerBuilderOption {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithArenaCapacity sizes the layer's geometry arena. For instanced layers this
// is the arena holding the package meshes.
//
// Parameters:
//   - vertices: vertex capacity
//   - indices: index capacity
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithArenaCapacity(vertices, indices uint32) LayerBuilderOption {
	return func(s *settings) {
		s.vertexCapacity = vertices
		s.indexCapacity = indices
	}
}

// WithPhysics makes a geometry layer cook and register collision for each chunk.
//
// Parameters:
//   - p: the physics backend
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithPhysics(p content.PhysicsBackend) LayerBuilderOption {
	return func(s *settings) {
		s.physics = p
	}
}

// WithLODCutoff sets the chunk LOD at and beyond which an instanced layer
// switches from meshes to billboards.
//
// Parameters:
//   - cutoff: first billboard LOD
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithLODCutoff(cutoff uint8) LayerBuilderOption {
	return func(s *settings) {
		s.lodCutoff = cutoff
	}
}

// WithMeshLODs sets the length of the mesh LOD chain an instanced layer builds
// for each package geometry, simplifying when the package provides fewer.
//
// Parameters:
//   - n: mesh LOD count (minimum 1)
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithMeshLODs(n int) LayerBuilderOption {
	return func(s *settings) {
		s.meshLODs = max(n, 1)
	}
}

// WithDrawCalls sizes an instanced layer's instance table and draw call limits.
//
// Parameters:
//   - maxPerCall: instances per draw call
//   - slots: draw calls the table can hold at once
//   - maxPerGeometryLOD: live draw calls allowed per geometry/LOD pair
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithDrawCalls(maxPerCall, slots uint32, maxPerGeometryLOD int) LayerBuilderOption {
	return func(s *settings) {
		s.maxPerCall = maxPerCall
		s.drawCallSlots = slots
		s.maxPerGeometryLOD = maxPerGeometryLOD
	}
}

// WithSimplifier sets the simplifier used to build missing mesh LODs.
//
// Parameters:
//   - simp: the simplifier
//
// Returns:
//   - LayerBuilderOption: option function to apply
func WithSimplifier(simp content.Simplifier) LayerBuilderOption {
	return func(s *settings) {
		if simp != nil {
			s.simplifier = simp
		}
	}
}
