package instance

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/gpu"
)

// InstanceAttributeTable is a flat GPU table of instance records addressed
// arithmetically: instance n of draw call d lives at d*MaxPerCall()+n.
// Writes are staged on the CPU and uploaded per draw call as one contiguous
// dirty range.
type InstanceAttributeTable interface {
	// Write stores r in slot local of dc and widens dc's dirty range.
	// Writing to an inactive draw call or past its capacity panics.
	//
	// Parameters:
	//   - dc: an active draw call
	//   - local: instance index within the draw call
	//   - r: the record
	Write(dc *DrawCall, local uint32, r Record)

	// Read returns the staged record in slot local of dc.
	//
	// Parameters:
	//   - dc: an active draw call
	//   - local: instance index within the draw call
	//
	// Returns:
	//   - Record: the staged record
	Read(dc *DrawCall, local uint32) Record

	// Move copies slot from into slot to within dc, marking to dirty.
	//
	// Parameters:
	//   - dc: an active draw call
	//   - from: source slot
	//   - to: destination slot
	Move(dc *DrawCall, from, to uint32)

	// Flush returns one write covering dc's dirty range and clears it.
	//
	// Parameters:
	//   - dc: an active draw call
	//
	// Returns:
	//   - gpu.BufferWrite: the write, owning its data
	//   - bool: false if nothing was dirty
	Flush(dc *DrawCall) (gpu.BufferWrite, bool)

	// GlobalIndex returns the table index of slot local in dc.
	GlobalIndex(dc *DrawCall, local uint32) uint32

	// MaxPerCall returns the number of slots reserved for every draw call.
	MaxPerCall() uint32

	// Slots returns the number of draw call regions in the table.
	Slots() uint32

	// Buffer returns the id of the table's GPU buffer.
	Buffer() gpu.BufferID

	// Release destroys the table's GPU buffer.
	Release()

	discard(id uint32)
}

type dirtyRange struct {
	lo, hi uint32 // inclusive local slots
}

type instanceAttributeTable struct {
	label      string
	uploader   gpu.Uploader
	buffer     gpu.BufferID
	maxPerCall uint32
	slots      uint32

	records []gpuRecord
	dirty   map[uint32]dirtyRange
}

var _ InstanceAttributeTable = &instanceAttributeTable{}

// NewInstanceAttributeTable creates a table and its storage buffer on uploader.
//
// Parameters:
//   - uploader: the backend that owns the buffer
//   - options: functional options for sizing and labelling
//
// Returns:
//   - InstanceAttributeTable: the table
//   - error: error if the buffer could not be created
func NewInstanceAttributeTable(uploader gpu.Uploader, options ...InstanceAttributeTableBuilderOption) (InstanceAttributeTable, error) {
	if uploader == nil {
		panic("instance: NewInstanceAttributeTable requires a non-nil uploader")
	}
	t := &instanceAttributeTable{
		label:      "instances",
		uploader:   uploader,
		maxPerCall: 1024,
		slots:      64,
		dirty:      make(map[uint32]dirtyRange),
	}
	for _, opt := range options {
		opt(t)
	}
	if t.maxPerCall == 0 || t.slots == 0 {
		return nil, fmt.Errorf("instance table %s: sizes must be positive (per call %d, slots %d)", t.label, t.maxPerCall, t.slots)
	}

	t.records = make([]gpuRecord, t.maxPerCall*t.slots)
	t.buffer = gpu.NewBufferID()
	if err := uploader.CreateBuffer(t.buffer, t.label, uint64(len(t.records))*RecordSize, gpu.UsageStorage); err != nil {
		return nil, fmt.Errorf("instance table %s: %w", t.label, err)
	}
	return t, nil
}

func (t *instanceAttributeTable) Write(dc *DrawCall, local uint32, r Record) {
	t.check(dc, local, "Write")
	t.records[t.GlobalIndex(dc, local)] = toGPU(r)
	t.markDirty(dc.id, local)
}

func (t *instanceAttributeTable) Read(dc *DrawCall, local uint32) Record {
	t.check(dc, local, "Read")
	return fromGPU(t.records[t.GlobalIndex(dc, local)])
}

func (t *instanceAttributeTable) Move(dc *DrawCall, from, to uint32) {
	t.check(dc, from, "Move")
	t.check(dc, to, "Move")
	if from == to {
		return
	}
	t.records[t.GlobalIndex(dc, to)] = t.records[t.GlobalIndex(dc, from)]
	t.markDirty(dc.id, to)
}

func (t *instanceAttributeTable) Flush(dc *DrawCall) (gpu.BufferWrite, bool) {
	if dc == nil || !dc.active {
		panic("instance: Flush of inactive draw call")
	}
	r, ok := t.dirty[dc.id]
	if !ok {
		return gpu.BufferWrite{}, false
	}
	delete(t.dirty, dc.id)

	first := t.GlobalIndex(dc, r.lo)
	last := t.GlobalIndex(dc, r.hi)
	return gpu.BufferWrite{
		Buffer: t.buffer,
		Offset: uint64(first) * RecordSize,
		Data:   common.CopyToBytes(t.records[first : last+1]),
	}, true
}

func (t *instanceAttributeTable) GlobalIndex(dc *DrawCall, local uint32) uint32 {
	return dc.id*t.maxPerCall + local
}

func (t *instanceAttributeTable) MaxPerCall() uint32 {
	return t.maxPerCall
}

func (t *instanceAttributeTable) Slots() uint32 {
	return t.slots
}

func (t *instanceAttributeTable) Buffer() gpu.BufferID {
	return t.buffer
}

func (t *instanceAttributeTable) Release() {
	t.uploader.DestroyBuffer(t.buffer)
}

// discard drops staged state for a freed draw call so a later owner of the
// slot starts clean.
func (t *instanceAttributeTable) discard(id uint32) {
	delete(t.dirty, id)
	clear(t.records[id*t.maxPerCall : (id+1)*t.maxPerCall])
}

func (t *instanceAttributeTable) markDirty(id, local uint32) {
	r, ok := t.dirty[id]
	if !ok {
		t.dirty[id] = dirtyRange{lo: local, hi: local}
		return
	}
	r.lo = min(r.lo, local)
	r.hi = max(r.hi, local)
	t.dirty[id] = r
}

func (t *instanceAttributeTable) check(dc *DrawCall, local uint32, op string) {
	if dc == nil || !dc.active {
		panic(fmt.Sprintf("instance: %s on inactive draw call", op))
	}
	if dc.id >= t.slots {
		panic(fmt.Sprintf("instance: %s on draw call %d outside table of %d slots", op, dc.id, t.slots))
	}
	if local >= t.maxPerCall {
		panic(fmt.Sprintf("instance: %s slot %d past draw call capacity %d", op, local, t.maxPerCall))
	}
}
