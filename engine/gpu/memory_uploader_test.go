package gpu

import (
	"bytes"
	"testing"
)

func TestMemoryUploader(t *testing.T) {
	m := NewMemoryUploader()
	id := NewBufferID()
	if err := m.CreateBuffer(id, "test", 16, UsageVertex); err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	if err := m.CreateBuffer(id, "dup", 16, UsageVertex); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}

	m.WriteBuffers([]BufferWrite{
		{Buffer: id, Offset: 0, Data: []byte{1, 2, 3, 4}},
		{Buffer: id, Offset: 12, Data: []byte{9, 9, 9, 9}},
		{Buffer: NewBufferID(), Offset: 0, Data: []byte{7}},
	})

	if got := m.Read(id, 0, 4); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("Read head = %v", got)
	}
	if got := m.Read(id, 12, 4); !bytes.Equal(got, []byte{9, 9, 9, 9}) {
		t.Errorf("Read tail = %v", got)
	}
	if got := m.Read(id, 14, 4); got != nil {
		t.Errorf("out of range Read = %v, want nil", got)
	}
	if writes, n := m.Stats(); writes != 2 || n != 8 {
		t.Errorf("Stats = %d writes, %d bytes; want 2, 8", writes, n)
	}

	m.DestroyBuffer(id)
	if m.Size(id) != 0 {
		t.Errorf("buffer still present after DestroyBuffer")
	}
}

func TestMemoryUploaderWritePastEndPanics(t *testing.T) {
	m := NewMemoryUploader()
	id := NewBufferID()
	if err := m.CreateBuffer(id, "small", 4, UsageStorage); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic on write past end")
		}
	}()
	m.WriteBuffers([]BufferWrite{{Buffer: id, Offset: 2, Data: []byte{1, 2, 3}}})
}
