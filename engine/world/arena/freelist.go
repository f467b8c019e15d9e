package arena

import (
	"fmt"
	"sort"
)

// span is a run of elements [Offset, Offset+Length) in one region.
type span struct {
	Offset uint32
	Length uint32
}

func (s span) end() uint32 {
	return s.Offset + s.Length
}

// freelist tracks the free spans of a region of fixed capacity, sorted by offset
// and never adjacent (adjacent spans are merged on release).
type freelist struct {
	capacity uint32
	spans    []span
	used     uint32
	peak     uint32
}

func newFreelist(capacity uint32) *freelist {
	f := &freelist{capacity: capacity}
	if capacity > 0 {
		f.spans = []span{{Offset: 0, Length: capacity}}
	}
	return f
}

// take carves n elements from the first span large enough to hold them.
func (f *freelist) take(n uint32) (uint32, bool) {
	for i, s := range f.spans {
		if s.Length < n {
			continue
		}
		off := s.Offset
		if s.Length == n {
			f.spans = append(f.spans[:i], f.spans[i+1:]...)
		} else {
			f.spans[i] = span{Offset: s.Offset + n, Length: s.Length - n}
		}
		f.used += n
		f.peak = max(f.peak, off+n)
		return off, true
	}
	return 0, false
}

// release returns [off, off+n) to the list, merging with free neighbours.
// Releasing a span that overlaps free space means it was already released.
func (f *freelist) release(off, n uint32) {
	if n == 0 {
		return
	}
	if off+n > f.capacity {
		panic(fmt.Sprintf("arena: release [%d,%d) beyond capacity %d", off, off+n, f.capacity))
	}
	i := sort.Search(len(f.spans), func(i int) bool { return f.spans[i].Offset >= off })

	if i < len(f.spans) && f.spans[i].Offset < off+n {
		panic(fmt.Sprintf("arena: release [%d,%d) overlaps free span [%d,%d)", off, off+n, f.spans[i].Offset, f.spans[i].end()))
	}
	if i > 0 && f.spans[i-1].end() > off {
		panic(fmt.Sprintf("arena: release [%d,%d) overlaps free span [%d,%d)", off, off+n, f.spans[i-1].Offset, f.spans[i-1].end()))
	}

	mergePrev := i > 0 && f.spans[i-1].end() == off
	mergeNext := i < len(f.spans) && f.spans[i].Offset == off+n

	switch {
	case mergePrev && mergeNext:
		f.spans[i-1].Length += n + f.spans[i].Length
		f.spans = append(f.spans[:i], f.spans[i+1:]...)
	case mergePrev:
		f.spans[i-1].Length += n
	case mergeNext:
		f.spans[i].Offset = off
		f.spans[i].Length += n
	default:
		f.spans = append(f.spans, span{})
		copy(f.spans[i+1:], f.spans[i:])
		f.spans[i] = span{Offset: off, Length: n}
	}
	f.used -= n
}

// largest returns the length of the biggest free span.
func (f *freelist) largest() uint32 {
	var best uint32
	for _, s := range f.spans {
		best = max(best, s.Length)
	}
	return best
}
