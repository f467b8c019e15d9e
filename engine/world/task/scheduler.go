package task

// Scheduler splits work between background workers and the single goroutine
// that owns lifecycle state. Work started with Go must not touch owned state;
// it hands results back with Post.
type Scheduler interface {
	// Go runs fn on a background worker.
	Go(fn func())
	// Post runs fn on the owning goroutine.
	Post(fn func())
}

// Inline is a Scheduler that runs everything immediately on the caller's
// goroutine. Suitable when the caller is already the owner and blocking is acceptable.
type Inline struct{}

var _ Scheduler = Inline{}

func (Inline) Go(fn func())   { fn() }
func (Inline) Post(fn func()) { fn() }
