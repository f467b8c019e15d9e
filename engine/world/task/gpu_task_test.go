package task

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
)

func newTarget(t *testing.T) (*gpu.MemoryUploader, gpu.BufferID) {
	t.Helper()
	up := gpu.NewMemoryUploader()
	id := gpu.NewBufferID()
	if err := up.CreateBuffer(id, "target", 8, gpu.UsageStorage); err != nil {
		t.Fatal(err)
	}
	return up, id
}

func TestGpuTaskCommitsInOrder(t *testing.T) {
	up, id := newTarget(t)
	m := NewGpuTaskManager(context.Background())

	first, _ := m.Transact("first", func(tx *Tx) error {
		tx.Write(gpu.BufferWrite{Buffer: id, Offset: 0, Data: []byte{1, 1}})
		return nil
	})
	second, _ := m.Transact("second", func(tx *Tx) error {
		tx.Write(gpu.BufferWrite{Buffer: id, Offset: 1, Data: []byte{2}})
		return nil
	})
	if m.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2", m.Pending())
	}

	if n := m.Flush(up); n != 2 {
		t.Errorf("Flush wrote %d, want 2", n)
	}
	if got := up.Read(id, 0, 2); !bytes.Equal(got, []byte{1, 2}) {
		t.Errorf("buffer = %v, want [1 2]", got)
	}
	if first.State() != TaskCommitted || second.State() != TaskCommitted {
		t.Errorf("states = %v, %v", first.State(), second.State())
	}
	if n := m.Flush(up); n != 0 {
		t.Errorf("second Flush wrote %d", n)
	}
}

func TestGpuTaskCancelPreventsWrites(t *testing.T) {
	up, id := newTarget(t)
	m := NewGpuTaskManager(context.Background())

	task, _ := m.Transact("evicted", func(tx *Tx) error {
		tx.Write(gpu.BufferWrite{Buffer: id, Offset: 0, Data: []byte{9}})
		return nil
	})
	m.Cancel(task)
	m.Cancel(task)

	if err := task.Context().Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("task context err = %v", err)
	}
	ran := false
	err := task.Extend(func(tx *Tx) error {
		ran = true
		tx.Write(gpu.BufferWrite{Buffer: id, Offset: 1, Data: []byte{9}})
		return nil
	})
	if !errors.Is(err, ErrAborted) || ran {
		t.Errorf("Extend on cancelled task: err = %v, ran = %v", err, ran)
	}

	if n := m.Flush(up); n != 0 {
		t.Errorf("cancelled task wrote %d", n)
	}
	if got := up.Read(id, 0, 2); !bytes.Equal(got, []byte{0, 0}) {
		t.Errorf("buffer = %v, want untouched", got)
	}
	if _, cancelled := m.Counts(); cancelled != 1 {
		t.Errorf("cancelled count = %d, want 1", cancelled)
	}
}

func TestGpuTaskExtendAfterCommitRequeues(t *testing.T) {
	up, id := newTarget(t)
	m := NewGpuTaskManager(context.Background())

	task, _ := m.Transact("chunk", func(tx *Tx) error { return nil })
	m.Flush(up)

	if err := task.Extend(func(tx *Tx) error {
		tx.Write(gpu.BufferWrite{Buffer: id, Offset: 4, Data: []byte{7}})
		return nil
	}); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if task.State() != TaskPending {
		t.Errorf("state after Extend = %v, want pending", task.State())
	}
	m.Flush(up)
	if got := up.Read(id, 4, 1); got[0] != 7 {
		t.Errorf("extension write missing: %v", got)
	}
}

func TestGpuTaskTransactError(t *testing.T) {
	up, id := newTarget(t)
	m := NewGpuTaskManager(context.Background())
	boom := errors.New("boom")

	task, err := m.Transact("failing", func(tx *Tx) error {
		tx.Write(gpu.BufferWrite{Buffer: id, Data: []byte{5}})
		return boom
	})
	if !errors.Is(err, boom) || !task.Cancelled() {
		t.Fatalf("err = %v, cancelled = %v", err, task.Cancelled())
	}
	if n := m.Flush(up); n != 0 {
		t.Errorf("failed transaction wrote %d", n)
	}
}
