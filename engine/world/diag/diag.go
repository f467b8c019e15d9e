package diag

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
	"github.com/google/uuid"
)

// Kind classifies a diagnostic event.
type Kind int

const (
	// AllocationExhausted: arena space or draw calls ran out; the chunk's excess content was dropped.
	AllocationExhausted Kind = iota
	// InstancesDropped: fewer instances were placed than the chunk requested.
	InstancesDropped
	// LateResultDiscarded: an asynchronous result arrived after its chunk was removed.
	LateResultDiscarded
	// GenerationFailed: the compute backend returned an error other than abort.
	GenerationFailed

	kindCount
)

var kindNames = [kindCount]string{
	AllocationExhausted: "allocation_exhausted",
	InstancesDropped:    "instances_dropped",
	LateResultDiscarded: "late_result_discarded",
	GenerationFailed:    "generation_failed",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

// Event is one non-fatal condition worth surfacing. Generation and Task
// identify the generation or GPU task the event belongs to, uuid.Nil if none.
type Event struct {
	Kind       Kind
	Layer      string
	Chunk      chunk.Key
	Generation uuid.UUID
	Task       uuid.UUID
	Requested  int
	Granted    int
	Err        error
}

// Reporter receives diagnostic events. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(e Event)
}

// SlogReporter writes events as WARN records.
type SlogReporter struct {
	logger *slog.Logger
}

var _ Reporter = &SlogReporter{}

// NewSlogReporter creates a reporter on logger, or slog.Default() if nil.
func NewSlogReporter(logger *slog.Logger) *SlogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogReporter{logger: logger}
}

func (r *SlogReporter) Report(e Event) {
	attrs := []slog.Attr{
		slog.String("kind", e.Kind.String()),
		slog.String("layer", e.Layer),
		slog.String("chunk", e.Chunk.String()),
	}
	if e.Generation != uuid.Nil {
		attrs = append(attrs, slog.String("generation", e.Generation.String()))
	}
	if e.Task != uuid.Nil {
		attrs = append(attrs, slog.String("task", e.Task.String()))
	}
	if e.Requested != 0 || e.Granted != 0 {
		attrs = append(attrs, slog.Int("requested", e.Requested), slog.Int("granted", e.Granted))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("err", e.Err))
	}
	r.logger.LogAttrs(context.Background(), slog.LevelWarn, "chunk diagnostic", attrs...)
}

// Counter tallies events by kind and forwards them to an optional next reporter.
type Counter struct {
	mu     *sync.Mutex
	counts [kindCount]int
	events []Event
	next   Reporter
}

var _ Reporter = &Counter{}

// NewCounter creates a Counter forwarding to next, which may be nil.
func NewCounter(next Reporter) *Counter {
	return &Counter{mu: &sync.Mutex{}, next: next}
}

func (c *Counter) Report(e Event) {
	c.mu.Lock()
	if e.Kind >= 0 && e.Kind < kindCount {
		c.counts[e.Kind]++
	}
	c.events = append(c.events, e)
	c.mu.Unlock()

	if c.next != nil {
		c.next.Report(e)
	}
}

// Count returns the number of events of kind k seen so far.
func (c *Counter) Count(k Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k < 0 || k >= kindCount {
		return 0
	}
	return c.counts[k]
}

// Events returns a copy of every event seen so far.
func (c *Counter) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Discard drops every event.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Event) {}
