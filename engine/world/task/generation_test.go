package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/engine/world/chunk"
)

type notification struct {
	kind   string
	key    chunk.Key
	result string
}

func newRecordingManager() (*GenerationManager[string], *[]notification) {
	var log []notification
	m := NewGenerationManager(context.Background(),
		func(c chunk.Chunk, r string) { log = append(log, notification{"available", c.Key(), r}) },
		func(c chunk.Chunk, r string) { log = append(log, notification{"released", c.Key(), r}) },
	)
	return m, &log
}

func TestGenerationFinishThenDelete(t *testing.T) {
	m, log := newRecordingManager()
	k1 := chunk.Chunk{Min: [2]int32{1, 0}}

	g := m.Create(k1)
	if !m.Finish(g, "R") {
		t.Fatal("Finish of pending generation returned false")
	}
	m.Delete(k1.Key())
	m.Delete(k1.Key())
	if m.Finish(g, "late") {
		t.Errorf("Finish after Delete delivered a result")
	}

	want := []notification{
		{"available", k1.Key(), "R"},
		{"released", k1.Key(), "R"},
	}
	if len(*log) != len(want) {
		t.Fatalf("notifications = %v, want %v", *log, want)
	}
	for i := range want {
		if (*log)[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, (*log)[i], want[i])
		}
	}
	if g.State() != GenerationCancelled {
		t.Errorf("state = %v, want cancelled", g.State())
	}
}

func TestGenerationDeleteBeforeFinishCancelsCompute(t *testing.T) {
	m, log := newRecordingManager()
	k2 := chunk.Chunk{Min: [2]int32{2, 0}}
	g := m.Create(k2)

	observed := make(chan error, 1)
	go func() {
		<-g.Context().Done()
		observed <- CheckAbort(g.Context())
	}()

	m.Delete(k2.Key())

	select {
	case err := <-observed:
		if !errors.Is(err, ErrAborted) {
			t.Errorf("compute observed %v, want ErrAborted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("compute never observed cancellation")
	}

	if m.Finish(g, "late") {
		t.Errorf("late result was delivered")
	}
	if len(*log) != 0 {
		t.Errorf("notifications = %v, want none", *log)
	}
}

func TestGenerationRecreateAfterDelete(t *testing.T) {
	m, log := newRecordingManager()
	c := chunk.Chunk{Min: [2]int32{0, 0}, LOD: 2}

	old := m.Create(c)
	m.Delete(c.Key())
	fresh := m.Create(c)

	if m.Finish(old, "stale") {
		t.Errorf("stale generation delivered after being replaced")
	}
	if !m.Finish(fresh, "fresh") {
		t.Errorf("fresh generation not delivered")
	}
	if len(*log) != 1 || (*log)[0].result != "fresh" {
		t.Errorf("notifications = %v, want one fresh", *log)
	}
}

func TestGenerationDoubleCreatePanics(t *testing.T) {
	m, _ := newRecordingManager()
	c := chunk.Chunk{}
	m.Create(c)
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic on second live generation")
		}
	}()
	m.Create(c)
}

func TestGenerationClear(t *testing.T) {
	m, log := newRecordingManager()
	a := chunk.Chunk{Min: [2]int32{0, 1}}
	b := chunk.Chunk{Min: [2]int32{0, 2}}
	m.Finish(m.Create(a), "a")
	m.Create(b)
	if m.Pending() != 1 || m.Len() != 2 {
		t.Fatalf("Pending = %d, Len = %d", m.Pending(), m.Len())
	}

	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len after Clear = %d", m.Len())
	}
	released := 0
	for _, n := range *log {
		if n.kind == "released" {
			released++
		}
	}
	if released != 1 {
		t.Errorf("released %d times, want 1", released)
	}
}

func TestIsAborted(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"aborted", ErrAborted, true},
		{"wrapped aborted", errors.Join(errors.New("generate"), ErrAborted), true},
		{"context canceled", context.Canceled, true},
		{"deadline", context.DeadlineExceeded, false},
		{"other", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAborted(tt.err); got != tt.want {
				t.Errorf("IsAborted(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
