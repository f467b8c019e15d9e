package streamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
	"github.com/Carmen-Shannon/oxy-stream/engine/telemetry"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/content"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/diag"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/layer"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
	"github.com/google/uuid"
)

// ErrStopped is returned by Run and Settle once the streamer has been closed.
var ErrStopped = errors.New("streamer: stopped")

// Stats is a snapshot of the streamer and its layers.
type Stats struct {
	Generations        int
	PendingGenerations int
	Inflight           int
	Backlog            int
	TasksCommitted     int
	TasksCancelled     int
	Layers             []layer.Stats
}

// Streamer connects a LOD tracker to the chunk layers. It owns the
// generation and GPU task managers and is the single scheduling point for
// all lifecycle state: OnChunkAdd, OnChunkRemove, Update, Pump and the
// layers' methods run on one goroutine, either the caller's or Run's.
// Compute, cooking and package loading run on a worker pool and return
// their results through Post.
type Streamer struct {
	logger   *slog.Logger
	reporter diag.Reporter
	recorder *telemetry.Recorder

	uploader gpu.Uploader
	compute  content.ComputeBackend
	viewer   func(dt float32) layer.View

	tracked        bool
	trackerOptions []RingTrackerBuilderOption
	tracker        *RingTracker

	ctx    context.Context
	cancel context.CancelFunc
	tasks  *task.GpuTaskManager
	gens   *task.GenerationManager[*content.ChunkResult]
	layers []layer.Layer

	worldSeed      int64
	baseSize       float32
	flags          content.Flags
	instanceCounts map[content.Category]int

	pool       worker.DynamicWorkerPool
	workers    int
	queueSize  int
	idle       time.Duration
	nextTaskID int
	inflight   int
	backlog    []func()
	jobs       sync.WaitGroup

	mu    *sync.Mutex
	inbox []func()
	wake  chan struct{}

	tickRate        time.Duration
	tickRateChannel chan time.Duration
	quitChannel     chan struct{}
	quitOnce        sync.Once
	closeOnce       sync.Once
	stopped         bool
}

var (
	_ task.Scheduler = &Streamer{}
	_ Listener       = &Streamer{}
)

// NewStreamer creates a streamer generating chunks with compute and writing
// to uploader. Layers are added with AddLayer after they are built on the
// streamer's Tasks and scheduler.
//
// Parameters:
//   - compute: the chunk content backend
//   - uploader: the GPU upload backend flushed each Update
//   - options: functional options for the streamer
//
// Returns:
//   - *Streamer: the streamer
func NewStreamer(compute content.ComputeBackend, uploader gpu.Uploader, options ...StreamerBuilderOption) *Streamer {
	if compute == nil || uploader == nil {
		panic("streamer: NewStreamer requires a compute backend and an uploader")
	}
	s := &Streamer{
		logger:          slog.Default(),
		reporter:        diag.NewSlogReporter(nil),
		uploader:        uploader,
		compute:         compute,
		baseSize:        32,
		instanceCounts:  make(map[content.Category]int),
		workers:         4,
		queueSize:       64,
		idle:            time.Second,
		mu:              &sync.Mutex{},
		wake:            make(chan struct{}, 1),
		tickRate:        time.Second / 60,
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.tasks = task.NewGpuTaskManager(s.ctx)
	s.gens = task.NewGenerationManager(s.ctx, s.chunkAvailable, s.chunkReleased)
	s.pool = worker.NewDynamicWorkerPool(s.workers, s.queueSize, s.idle)
	if s.tracked {
		s.tracker = NewRingTracker(s, append([]RingTrackerBuilderOption{WithBaseSize(s.baseSize)}, s.trackerOptions...)...)
	}
	return s
}

// Tasks returns the GPU task manager layers must be built on.
func (s *Streamer) Tasks() *task.GpuTaskManager {
	return s.tasks
}

// Generations returns the generation manager.
func (s *Streamer) Generations() *task.GenerationManager[*content.ChunkResult] {
	return s.gens
}

// Tracker returns the LOD tracker driven by Run, or nil.
func (s *Streamer) Tracker() *RingTracker {
	return s.tracker
}

// AddLayer registers l and requests its category from the compute backend.
// Layers must be added before the first chunk.
//
// Parameters:
//   - l: the layer
func (s *Streamer) AddLayer(l layer.Layer) {
	if s.gens.Len() > 0 {
		panic("streamer: AddLayer after chunks were added")
	}
	s.layers = append(s.layers, l)
	s.flags |= content.FlagFor(l.Category())
}

// Layers returns the registered layers in the order they were added.
func (s *Streamer) Layers() []layer.Layer {
	return append([]layer.Layer(nil), s.layers...)
}

// Go runs fn on the worker pool. Work beyond the pool's queue waits in a
// backlog on the owner, so Go never blocks. After Close fn is dropped.
func (s *Streamer) Go(fn func()) {
	if s.stopped {
		return
	}
	s.backlog = append(s.backlog, fn)
	s.dispatch()
}

// Post queues fn to run on the owner goroutine. It is safe to call from any goroutine.
func (s *Streamer) Post(fn func()) {
	s.mu.Lock()
	s.inbox = append(s.inbox, fn)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Streamer) dispatch() {
	for len(s.backlog) > 0 && s.inflight < s.queueSize {
		fn := s.backlog[0]
		s.backlog[0] = nil
		s.backlog = s.backlog[1:]

		s.inflight++
		s.jobs.Add(1)
		s.nextTaskID++
		s.pool.SubmitTask(worker.Task{
			ID: s.nextTaskID,
			Do: func() (any, error) {
				defer s.jobs.Done()
				defer s.Post(s.jobDone)
				fn()
				return nil, nil
			},
		})
	}
}

func (s *Streamer) jobDone() {
	if s.stopped {
		return
	}
	s.inflight--
	s.dispatch()
}

// Pump runs posted closures on the calling goroutine until the inbox is empty.
//
// Returns:
//   - int: number of closures run
func (s *Streamer) Pump() int {
	n := 0
	for {
		s.mu.Lock()
		batch := s.inbox
		s.inbox = nil
		s.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
		}
		n += len(batch)
	}
}

// Settle pumps until no background work is queued, running or waiting to be
// posted back.
//
// Parameters:
//   - ctx: bounds the wait
//
// Returns:
//   - error: ErrStopped after Close, or ctx's error if it ends first
func (s *Streamer) Settle(ctx context.Context) error {
	for {
		if s.stopped {
			return ErrStopped
		}
		s.Pump()
		if s.inflight == 0 && len(s.backlog) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// OnChunkAdd starts generating c. The tracker must not add a chunk that is
// already live.
//
// Parameters:
//   - c: the chunk entering view
func (s *Streamer) OnChunkAdd(c chunk.Chunk) {
	g := s.gens.Create(c)
	req := content.Request{
		Chunk:          c,
		Seed:           c.Seed(s.worldSeed),
		BaseSize:       s.baseSize,
		Flags:          s.flags,
		InstanceCounts: s.instanceCounts,
	}
	ctx := g.Context()
	s.Go(func() {
		res, err := s.compute.GenerateChunk(ctx, req)
		s.Post(func() {
			s.finishGeneration(g, res, err)
		})
	})
}

// OnChunkRemove cancels c's generation if it is still running, or releases
// its content from every layer if it finished. Removing an unknown chunk is a no-op.
//
// Parameters:
//   - c: the chunk leaving view
func (s *Streamer) OnChunkRemove(c chunk.Chunk) {
	s.gens.Delete(c.Key())
}

func (s *Streamer) finishGeneration(g *task.Generation[*content.ChunkResult], res *content.ChunkResult, err error) {
	if err != nil {
		if task.IsAborted(err) {
			return
		}
		s.reporter.Report(diag.Event{Kind: diag.GenerationFailed, Chunk: g.Key(), Generation: g.ID(), Err: err})
		return
	}
	if !s.gens.Finish(g, res) {
		s.reporter.Report(diag.Event{Kind: diag.LateResultDiscarded, Chunk: g.Key(), Generation: g.ID()})
	}
}

func (s *Streamer) chunkAvailable(c chunk.Chunk, res *content.ChunkResult) {
	var id uuid.UUID
	if g, ok := s.gens.Get(c.Key()); ok {
		id = g.ID()
	}
	for _, l := range s.layers {
		if err := l.AddChunk(c, res); err != nil {
			s.reporter.Report(diag.Event{Kind: diag.GenerationFailed, Layer: l.Name(), Chunk: c.Key(), Generation: id, Err: err})
		}
	}
}

func (s *Streamer) chunkReleased(c chunk.Chunk, _ *content.ChunkResult) {
	for _, l := range s.layers {
		l.RemoveChunk(c)
	}
}

// LoadPackage loads bundle for l on the worker pool and binds it on the owner
// goroutine. onDone, if set, runs on the owner with the outcome.
//
// Parameters:
//   - l: the instanced layer
//   - src: the asset source
//   - bundle: the bundle to load
//   - onDone: completion callback, may be nil
func (s *Streamer) LoadPackage(l *layer.InstancedLayer, src content.AssetSource, bundle content.Bundle, onDone func(error)) {
	ctx := s.ctx
	s.Go(func() {
		pkg, err := l.WaitForLoad(ctx, src, bundle)
		s.Post(func() {
			if err == nil {
				err = l.SetPackage(pkg)
			}
			if err != nil && !task.IsAborted(err) {
				s.logger.Error("package load failed", "layer", l.Name(), "bundle", bundle.Name, "error", err)
			}
			if onDone != nil {
				onDone(err)
			}
		})
	})
}

// Update runs one frame on the owner goroutine: applies posted results,
// refreshes every layer for v and submits the frame's GPU writes.
//
// Parameters:
//   - v: the viewer state
//
// Returns:
//   - int: number of buffer writes submitted
func (s *Streamer) Update(v layer.View) int {
	s.Pump()
	for _, l := range s.layers {
		l.Update(v)
	}
	writes := s.tasks.Flush(s.uploader)

	if s.recorder != nil {
		st := s.Stats()
		s.recorder.Tick(telemetry.Snapshot{
			Generations:        st.Generations,
			PendingGenerations: st.PendingGenerations,
			TasksCommitted:     st.TasksCommitted,
			TasksCancelled:     st.TasksCancelled,
			Writes:             writes,
			Layers:             st.Layers,
		})
	}
	return writes
}

// Stats returns a snapshot of the streamer and its layers.
func (s *Streamer) Stats() Stats {
	committed, cancelled := s.tasks.Counts()
	st := Stats{
		Generations:        s.gens.Len(),
		PendingGenerations: s.gens.Pending(),
		Inflight:           s.inflight,
		Backlog:            len(s.backlog),
		TasksCommitted:     committed,
		TasksCancelled:     cancelled,
		Layers:             make([]layer.Stats, len(s.layers)),
	}
	for i, l := range s.layers {
		st.Layers[i] = l.Stats()
	}
	return st
}

// SetTickRate changes Run's tick rate while it is running.
//
// Parameters:
//   - fps: ticks per second, 60 if <= 0
func (s *Streamer) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	select {
	case s.tickRateChannel <- time.Duration(float64(time.Second) / fps):
	default:
	}
}

// Run makes the calling goroutine the owner and ticks until ctx ends or Quit
// is called. Each tick asks the viewer for the frame's view, moves the tracker
// and calls Update. Posted results are applied as they arrive. A panic on the
// owner goroutine is recovered, logged and returned as an error.
//
// Parameters:
//   - ctx: stops the loop when done
//
// Returns:
//   - error: nil after Quit, ErrStopped after Close, ctx's error, or the recovered panic
func (s *Streamer) Run(ctx context.Context) (err error) {
	if s.stopped {
		return ErrStopped
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("streamer goroutine recovered from panic", "panic", r)
			err = fmt.Errorf("streamer: panic: %v", r)
			s.signalQuit()
		}
	}()

	ticker := time.NewTicker(s.tickRate)
	defer ticker.Stop()
	lastTick := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quitChannel:
			return nil
		case <-s.wake:
			s.Pump()
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			s.tick(dt)
		case newRate := <-s.tickRateChannel:
			ticker.Reset(newRate)
			s.tickRate = newRate
		}
	}
}

func (s *Streamer) tick(dt float32) {
	var v layer.View
	if s.viewer != nil {
		v = s.viewer(dt)
	}
	if s.tracker != nil {
		s.tracker.Update(v.Position)
	}
	s.Update(v)
}

// Quit stops Run. Safe to call multiple times.
func (s *Streamer) Quit() {
	s.signalQuit()
}

func (s *Streamer) signalQuit() {
	s.quitOnce.Do(func() {
		close(s.quitChannel)
	})
}

// Close stops Run, cancels every generation and task, waits for the workers
// to observe it and releases the layers. Results posted by the workers are
// discarded. It must be called on the owner goroutine after Run has returned.
// Run and Settle return ErrStopped afterwards.
func (s *Streamer) Close() {
	s.closeOnce.Do(func() {
		s.stopped = true
		s.signalQuit()
		s.cancel()
		s.gens.Clear()
		s.backlog = nil
		s.jobs.Wait()
		s.pool.Stop()
		s.mu.Lock()
		s.inbox = nil
		s.mu.Unlock()
		s.inflight = 0
		for _, l := range s.layers {
			l.Release()
		}
		s.logger.Info("streamer closed")
	})
}
