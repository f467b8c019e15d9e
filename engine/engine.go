package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Carmen-Shannon/oxy-stream/config"
	"github.com/Carmen-Shannon/oxy-stream/engine/camera"
	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
	"github.com/Carmen-Shannon/oxy-stream/engine/loader"
	"github.com/Carmen-Shannon/oxy-stream/engine/telemetry"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/diag"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/layer"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/streamer"
)

// engine implements the Engine interface.
type engine struct {
	cfg    *config.Config
	logger *slog.Logger

	uploader gpu.Uploader
	compute  content.ComputeBackend
	assets   content.AssetSource
	camera   camera.Camera
	counter  *diag.Counter

	recorder *telemetry.Recorder
	streamer *streamer.Streamer
	layers   map[string]layer.Layer
	physics  map[string]*content.HeadlessPhysics

	elapsed float32
}

// Engine wires a configuration into a running chunk streamer: one layer per
// configured layer, a ring tracker following the camera, and a telemetry
// recorder sampling every frame.
type Engine interface {
	// Streamer returns the underlying streamer.
	//
	// Returns:
	//   - *streamer.Streamer: the streamer
	Streamer() *streamer.Streamer

	// Camera returns the camera whose view drives the tracker.
	Camera() camera.Camera

	// Recorder returns the telemetry recorder.
	Recorder() *telemetry.Recorder

	// Counter returns the diagnostics counter every layer and the streamer report to.
	Counter() *diag.Counter

	// Layer returns the layer with the given name, or nil.
	//
	// Parameters:
	//   - name: the configured layer name
	//
	// Returns:
	//   - layer.Layer: the layer, or nil if not found
	Layer(name string) layer.Layer

	// Physics returns the physics backend of a geometry layer built with
	// physics enabled, or nil.
	Physics(name string) *content.HeadlessPhysics

	// SetTickRate sets the streamer tick rate in frames per second while running.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// Run waits for every asset package to bind, then runs the streamer on
	// the calling goroutine until ctx ends or Quit is called. On exit the
	// telemetry rows are written to the configured CSV path, if any.
	//
	// Parameters:
	//   - ctx: stops the engine when done
	//
	// Returns:
	//   - error: a package load, streamer or telemetry export failure
	Run(ctx context.Context) error

	// Quit stops Run. Safe to call multiple times.
	Quit()

	// Close releases every layer and stops the workers. Call it after Run returns.
	Close()
}

var _ Engine = &engine{}

// NewEngine creates an Engine from cfg. The configuration is validated first.
// Without options the engine uploads to memory, generates with a ProcGen
// seeded from the world seed and loads glTF assets from the configured
// directory, or the builtin models if none is set.
//
// Parameters:
//   - cfg: the configuration
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if cfg is invalid or a layer cannot be built
func NewEngine(cfg *config.Config, options ...EngineBuilderOption) (Engine, error) {
	if cfg == nil {
		panic("engine: NewEngine requires a non-nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &engine{
		cfg:     cfg,
		logger:  slog.Default(),
		layers:  make(map[string]layer.Layer, len(cfg.Layers)),
		physics: make(map[string]*content.HeadlessPhysics),
	}
	for _, opt := range options {
		opt(e)
	}

	if e.uploader == nil {
		e.uploader = gpu.NewMemoryUploader()
	}
	if e.compute == nil {
		var procOpts []content.ProcGenBuilderOption
		for _, lc := range cfg.Layers {
			if lc.Kind == config.LayerInstanced {
				procOpts = append(procOpts, content.WithGeometryCount(lc.Category, len(lc.Bundle)))
			}
		}
		e.compute = content.NewProcGen(cfg.World.Seed, procOpts...)
	}
	if e.assets == nil {
		if cfg.Assets.Dir != "" {
			e.assets = loader.NewGLTFAssets(cfg.Assets.Dir,
				loader.WithBillboardFrames(cfg.Assets.BillboardFrames),
				loader.WithLogger(e.logger),
			)
		} else {
			e.assets = content.BuiltinAssets()
		}
	}
	if e.camera == nil {
		e.camera = camera.NewCamera(camera.WithController(camera.NewCameraController(
			camera.WithRadius(cfg.World.ChunkSize*2),
			camera.WithVelocity(cfg.World.ChunkSize, 0),
		)))
	}
	if e.counter == nil {
		e.counter = diag.NewCounter(diag.NewSlogReporter(e.logger))
	}
	e.recorder = telemetry.NewRecorder(
		telemetry.WithLogger(e.logger),
		telemetry.WithInterval(cfg.Telemetry.Interval),
	)

	streamerOpts := []streamer.StreamerBuilderOption{
		streamer.WithLogger(e.logger),
		streamer.WithReporter(e.counter),
		streamer.WithRecorder(e.recorder),
		streamer.WithWorld(cfg.World.Seed, cfg.World.ChunkSize),
		streamer.WithWorkers(cfg.Streamer.Workers, cfg.Streamer.QueueSize, cfg.Streamer.WorkerIdle),
		streamer.WithTickRate(cfg.Streamer.TickRate),
		streamer.WithRingTracker(
			streamer.WithLevels(cfg.Tracker.Levels),
			streamer.WithViewRadius(cfg.Tracker.ViewRadius),
			streamer.WithSplitRadius(cfg.Tracker.SplitRadius),
		),
		streamer.WithViewer(e.view),
	}
	for _, lc := range cfg.Layers {
		if lc.Kind == config.LayerInstanced {
			streamerOpts = append(streamerOpts, streamer.WithInstanceCount(lc.Category, lc.InstancesPerChunk))
		}
	}
	e.streamer = streamer.NewStreamer(e.compute, e.uploader, streamerOpts...)

	for _, lc := range cfg.Layers {
		l, err := e.buildLayer(lc)
		if err != nil {
			e.streamer.Close()
			return nil, fmt.Errorf("engine: layer %s: %w", lc.Name, err)
		}
		e.layers[lc.Name] = l
		e.streamer.AddLayer(l)
	}
	return e, nil
}

// buildLayer creates the layer for lc on the streamer's task manager and,
// for instanced layers, starts loading its bundle.
func (e *engine) buildLayer(lc config.LayerConfig) (layer.Layer, error) {
	opts := []layer.LayerBuilderOption{
		layer.WithName(lc.Name),
		layer.WithChunkGeometry(e.cfg.World.ChunkSize, e.cfg.World.MinHeight, e.cfg.World.MaxHeight),
		layer.WithScheduler(e.streamer),
		layer.WithReporter(e.counter),
		layer.WithLogger(e.logger),
	}
	if lc.VertexCapacity > 0 && lc.IndexCapacity > 0 {
		opts = append(opts, layer.WithArenaCapacity(lc.VertexCapacity, lc.IndexCapacity))
	}

	switch lc.Kind {
	case config.LayerGeometry:
		if lc.Physics {
			p := content.NewHeadlessPhysics(0)
			e.physics[lc.Name] = p
			opts = append(opts, layer.WithPhysics(p))
		}
		return layer.NewGeometryLayer(lc.Category, e.uploader, e.streamer.Tasks(), opts...)
	case config.LayerInstanced:
		opts = append(opts,
			layer.WithLODCutoff(lc.LODCutoff),
			layer.WithMeshLODs(lc.MeshLODs),
			layer.WithDrawCalls(lc.MaxPerDrawCall, lc.DrawCallSlots, lc.MaxPerGeometryLOD),
		)
		l, err := layer.NewInstancedLayer(lc.Category, e.uploader, e.streamer.Tasks(), opts...)
		if err != nil {
			return nil, err
		}
		name := lc.Name
		e.streamer.LoadPackage(l, e.assets, content.Bundle{Name: name, Geometries: lc.Bundle}, func(err error) {
			if err == nil {
				e.logger.Info("package bound", "layer", name, "meshes", len(lc.Bundle))
			}
		})
		return l, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", lc.Kind)
	}
}

// view advances the camera and returns the frame's view for the streamer.
func (e *engine) view(dt float32) layer.View {
	e.camera.Update(dt)
	e.elapsed = float32(math.Mod(float64(e.elapsed+dt), 3600))
	return e.camera.View(e.elapsed)
}

func (e *engine) Streamer() *streamer.Streamer {
	return e.streamer
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) Recorder() *telemetry.Recorder {
	return e.recorder
}

func (e *engine) Counter() *diag.Counter {
	return e.counter
}

func (e *engine) Layer(name string) layer.Layer {
	l, ok := e.layers[name]
	if !ok {
		return nil
	}
	return l
}

func (e *engine) Physics(name string) *content.HeadlessPhysics {
	return e.physics[name]
}

func (e *engine) SetTickRate(fps float64) {
	e.streamer.SetTickRate(fps)
}

func (e *engine) Run(ctx context.Context) error {
	// packages bind before the tracker emits its first chunks
	if err := e.streamer.Settle(ctx); err != nil {
		// cancelled before the first tick
		return nil
	}
	for name, l := range e.layers {
		if il, ok := l.(*layer.InstancedLayer); ok && !il.Ready() {
			return fmt.Errorf("engine: layer %s: %w", name, layer.ErrPackageNotReady)
		}
	}

	e.logger.Info("engine running", "layers", len(e.layers), "seed", e.cfg.World.Seed)
	err := e.streamer.Run(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		err = nil
	}

	if path := e.cfg.Telemetry.CSVPath; path != "" {
		if werr := e.recorder.WriteFile(path); werr != nil {
			err = errors.Join(err, fmt.Errorf("engine: telemetry: %w", werr))
		} else {
			e.logger.Info("telemetry written", "path", path, "rows", len(e.recorder.Rows()))
		}
	}
	return err
}

func (e *engine) Quit() {
	e.streamer.Quit()
}

func (e *engine) Close() {
	e.streamer.Close()
}
