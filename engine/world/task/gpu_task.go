package task

import (
	"context"
	"sync"

	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
	"github.com/google/uuid"
)

// TaskState is the lifecycle state of a GpuTask.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskCommitted
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskCommitted:
		return "committed"
	case TaskCancelled:
		return "cancelled"
	}
	return "unknown"
}

// GpuTask is a deferred batch of buffer writes owned by one chunk in one layer.
// Writes are held until the manager flushes; a cancelled task never writes.
type GpuTask struct {
	id      uuid.UUID
	label   string
	ctx     context.Context
	cancel  context.CancelFunc
	manager *GpuTaskManager

	mu     *sync.Mutex
	state  TaskState
	queued bool
	writes []gpu.BufferWrite
}

// ID returns the task's unique id.
func (t *GpuTask) ID() uuid.UUID {
	return t.id
}

// Label returns the label given at creation.
func (t *GpuTask) Label() string {
	return t.label
}

// Context is cancelled when the task is. Asynchronous work feeding the task
// (physics cooking, simplification) takes this context.
func (t *GpuTask) Context() context.Context {
	return t.ctx
}

// State returns the current state. Safe to call from any goroutine.
func (t *GpuTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Cancelled reports whether the task was cancelled.
func (t *GpuTask) Cancelled() bool {
	return t.State() == TaskCancelled
}

// Extend runs fn as a continuation of the task, for results that arrive after
// the initial transaction. If the task has been cancelled fn is not run and
// ErrAborted is returned. Writes added to a committed task queue it again.
// Like Transact it must be called on the goroutine that owns the manager.
//
// Parameters:
//   - fn: adds writes through the transaction
//
// Returns:
//   - error: ErrAborted if cancelled, otherwise fn's error
func (t *GpuTask) Extend(fn func(tx *Tx) error) error {
	if t.Cancelled() {
		return ErrAborted
	}
	tx := &Tx{task: t}
	if err := fn(tx); err != nil {
		return err
	}
	t.manager.stage(t, tx.writes)
	return nil
}

// Tx collects the writes of one transaction.
type Tx struct {
	task   *GpuTask
	writes []gpu.BufferWrite
}

// Write adds writes to the transaction.
func (tx *Tx) Write(writes ...gpu.BufferWrite) {
	tx.writes = append(tx.writes, writes...)
}

// Context returns the owning task's cancellation token.
func (tx *Tx) Context() context.Context {
	return tx.task.ctx
}

// Task returns the task the transaction belongs to.
func (tx *Tx) Task() *GpuTask {
	return tx.task
}

// GpuTaskManager queues GpuTasks and submits their writes in creation order.
// Transact, Cancel and Flush belong to the goroutine that owns the GPU buffers.
type GpuTaskManager struct {
	parent context.Context
	queue  []*GpuTask

	committed int
	cancelled int
}

// NewGpuTaskManager creates a manager whose task contexts derive from parent.
//
// Parameters:
//   - parent: parent of every task context
//
// Returns:
//   - *GpuTaskManager: the manager
func NewGpuTaskManager(parent context.Context) *GpuTaskManager {
	if parent == nil {
		parent = context.Background()
	}
	return &GpuTaskManager{parent: parent}
}

// Transact creates a task and runs fn to fill it. If fn fails the task is
// cancelled, its writes are dropped and the error returned alongside it.
//
// Parameters:
//   - label: debug label, usually layer and chunk
//   - fn: adds the task's writes
//
// Returns:
//   - *GpuTask: the new task
//   - error: fn's error
func (m *GpuTaskManager) Transact(label string, fn func(tx *Tx) error) (*GpuTask, error) {
	ctx, cancel := context.WithCancel(m.parent)
	t := &GpuTask{
		id:      uuid.New(),
		label:   label,
		ctx:     ctx,
		cancel:  cancel,
		manager: m,
		mu:      &sync.Mutex{},
		state:   TaskPending,
	}
	tx := &Tx{task: t}
	if err := fn(tx); err != nil {
		m.Cancel(t)
		return t, err
	}
	m.stage(t, tx.writes)
	return t, nil
}

// Cancel stops t. Writes not yet flushed are discarded and the task's context
// is cancelled. Cancelling twice, or cancelling a nil task, does nothing.
//
// Parameters:
//   - t: the task to cancel
func (m *GpuTaskManager) Cancel(t *GpuTask) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.state == TaskCancelled {
		t.mu.Unlock()
		return
	}
	t.state = TaskCancelled
	t.writes = nil
	t.mu.Unlock()
	t.cancel()
	m.cancelled++
}

// Flush submits the writes of every pending task, in the order the tasks were
// queued, as one batch.
//
// Parameters:
//   - uploader: the backend receiving the writes
//
// Returns:
//   - int: number of writes submitted
func (m *GpuTaskManager) Flush(uploader gpu.Uploader) int {
	var batch []gpu.BufferWrite
	for _, t := range m.queue {
		t.mu.Lock()
		t.queued = false
		if t.state == TaskPending {
			batch = append(batch, t.writes...)
			t.writes = nil
			t.state = TaskCommitted
			m.committed++
		}
		t.mu.Unlock()
	}
	clear(m.queue)
	m.queue = m.queue[:0]

	if len(batch) > 0 {
		uploader.WriteBuffers(batch)
	}
	return len(batch)
}

// Pending returns the number of queued tasks that will write on the next Flush.
func (m *GpuTaskManager) Pending() int {
	n := 0
	for _, t := range m.queue {
		if t.State() == TaskPending {
			n++
		}
	}
	return n
}

// Counts returns how many tasks have been committed and cancelled so far.
func (m *GpuTaskManager) Counts() (committed, cancelled int) {
	return m.committed, m.cancelled
}

func (m *GpuTaskManager) stage(t *GpuTask, writes []gpu.BufferWrite) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TaskCancelled {
		return
	}
	if len(writes) == 0 && t.state == TaskCommitted {
		return
	}
	t.writes = append(t.writes, writes...)
	t.state = TaskPending
	if !t.queued {
		t.queued = true
		m.queue = append(m.queue, t)
	}
}
