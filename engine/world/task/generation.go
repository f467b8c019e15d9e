package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/google/uuid"
)

// GenerationState is the lifecycle state of a Generation.
type GenerationState int

const (
	GenerationPending GenerationState = iota
	GenerationFinished
	GenerationCancelled
)

func (s GenerationState) String() string {
	switch s {
	case GenerationPending:
		return "pending"
	case GenerationFinished:
		return "finished"
	case GenerationCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Generation is the cancellable production of one chunk's content.
// Its context is the cancellation token handed to every asynchronous call
// made on the generation's behalf.
type Generation[R any] struct {
	id     uuid.UUID
	chunk  chunk.Chunk
	ctx    context.Context
	cancel context.CancelFunc

	mu     *sync.Mutex
	state  GenerationState
	result R
}

// ID returns the generation's unique id.
func (g *Generation[R]) ID() uuid.UUID {
	return g.id
}

// Chunk returns the chunk the generation produces.
func (g *Generation[R]) Chunk() chunk.Chunk {
	return g.chunk
}

// Key returns the chunk key.
func (g *Generation[R]) Key() chunk.Key {
	return g.chunk.Key()
}

// Context returns the generation's cancellation token.
func (g *Generation[R]) Context() context.Context {
	return g.ctx
}

// State returns the current state. Safe to call from any goroutine.
func (g *Generation[R]) State() GenerationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// GenerationManager tracks at most one live Generation per chunk key and
// delivers each generation's result exactly once to onAvailable and, after
// a finished generation is deleted, exactly once to onReleased.
//
// Create, Finish and Delete must be called from the goroutine that owns
// chunk lifecycle state. Only the generation's context and State are safe to
// use from worker goroutines.
type GenerationManager[R any] struct {
	parent      context.Context
	live        map[chunk.Key]*Generation[R]
	onAvailable func(chunk.Chunk, R)
	onReleased  func(chunk.Chunk, R)
}

// NewGenerationManager creates a manager. Generation contexts derive from parent.
//
// Parameters:
//   - parent: parent of every generation context; cancelling it aborts all in-flight work
//   - onAvailable: called once when a generation finishes
//   - onReleased: called once when a finished generation is deleted
//
// Returns:
//   - *GenerationManager[R]: the manager
func NewGenerationManager[R any](parent context.Context, onAvailable, onReleased func(chunk.Chunk, R)) *GenerationManager[R] {
	if parent == nil {
		parent = context.Background()
	}
	return &GenerationManager[R]{
		parent:      parent,
		live:        make(map[chunk.Key]*Generation[R]),
		onAvailable: onAvailable,
		onReleased:  onReleased,
	}
}

// Create starts tracking a pending generation for c.
// Creating a second generation for a key that already has one panics.
//
// Parameters:
//   - c: the chunk to generate
//
// Returns:
//   - *Generation[R]: the pending generation
func (m *GenerationManager[R]) Create(c chunk.Chunk) *Generation[R] {
	key := c.Key()
	if prev, ok := m.live[key]; ok {
		panic(fmt.Sprintf("task: generation %s already live for chunk %v", prev.id, key))
	}
	ctx, cancel := context.WithCancel(m.parent)
	g := &Generation[R]{
		id:     uuid.New(),
		chunk:  c,
		ctx:    ctx,
		cancel: cancel,
		mu:     &sync.Mutex{},
		state:  GenerationPending,
	}
	m.live[key] = g
	return g
}

// Finish moves g from Pending to Finished and fires onAvailable with result.
// A generation that was cancelled or replaced is left alone and its result dropped.
//
// Parameters:
//   - g: the generation that completed
//   - result: the produced content
//
// Returns:
//   - bool: true if the result was delivered
func (m *GenerationManager[R]) Finish(g *Generation[R], result R) bool {
	g.mu.Lock()
	if g.state != GenerationPending || m.live[g.chunk.Key()] != g {
		g.mu.Unlock()
		return false
	}
	g.state = GenerationFinished
	g.result = result
	g.mu.Unlock()

	if m.onAvailable != nil {
		m.onAvailable(g.chunk, result)
	}
	return true
}

// Delete ends the generation for key. A pending generation is cancelled
// silently; a finished one fires onReleased with its result. Unknown keys are
// ignored.
//
// Parameters:
//   - key: the chunk key
func (m *GenerationManager[R]) Delete(key chunk.Key) {
	g, ok := m.live[key]
	if !ok {
		return
	}
	delete(m.live, key)
	g.cancel()

	g.mu.Lock()
	prev := g.state
	g.state = GenerationCancelled
	result := g.result
	var zero R
	g.result = zero
	g.mu.Unlock()

	if prev == GenerationFinished && m.onReleased != nil {
		m.onReleased(g.chunk, result)
	}
}

// Get returns the live generation for key, if any.
func (m *GenerationManager[R]) Get(key chunk.Key) (*Generation[R], bool) {
	g, ok := m.live[key]
	return g, ok
}

// Len returns the number of live generations.
func (m *GenerationManager[R]) Len() int {
	return len(m.live)
}

// Pending returns the number of live generations still waiting for a result.
func (m *GenerationManager[R]) Pending() int {
	n := 0
	for _, g := range m.live {
		if g.State() == GenerationPending {
			n++
		}
	}
	return n
}

// Clear deletes every live generation, firing onReleased for finished ones.
func (m *GenerationManager[R]) Clear() {
	for key := range m.live {
		m.Delete(key)
	}
}
