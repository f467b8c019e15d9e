package arena

import (
	"gonum.org/v1/gonum/stat"
)

// Stats is a point-in-time view of arena usage.
type Stats struct {
	Live int

	VertexCapacity uint32
	VertexUsed     uint32
	VertexPeak     uint32
	IndexCapacity  uint32
	IndexUsed      uint32
	IndexPeak      uint32

	// FreeSpans is the number of disjoint free vertex spans.
	FreeSpans int
	// LargestFree is the longest free vertex span.
	LargestFree uint32
	// FreeMean and FreeStdDev describe the free vertex span lengths.
	// A high deviation relative to the mean means space is scattered in slivers.
	FreeMean   float64
	FreeStdDev float64
}

// Fragmentation returns 1 - largest/total free vertices, 0 when all free space is contiguous.
func (s Stats) Fragmentation() float64 {
	free := s.VertexCapacity - s.VertexUsed
	if free == 0 {
		return 0
	}
	return 1 - float64(s.LargestFree)/float64(free)
}

func (a *geometryArena) Stats() Stats {
	s := Stats{
		Live:           len(a.live),
		VertexCapacity: a.vertexCapacity,
		VertexUsed:     a.vertices.used,
		VertexPeak:     a.vertices.peak,
		IndexCapacity:  a.indexCapacity,
		IndexUsed:      a.indices.used,
		IndexPeak:      a.indices.peak,
		FreeSpans:      len(a.vertices.spans),
		LargestFree:    a.vertices.largest(),
	}

	lengths := make([]float64, len(a.vertices.spans))
	for i, sp := range a.vertices.spans {
		lengths[i] = float64(sp.Length)
	}
	switch len(lengths) {
	case 0:
	case 1:
		s.FreeMean = lengths[0]
	default:
		s.FreeMean, s.FreeStdDev = stat.MeanStdDev(lengths, nil)
	}
	return s
}
