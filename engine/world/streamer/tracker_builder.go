package streamer

// RingTrackerBuilderOption is a functional option for configuring a RingTracker.
type RingTrackerBuilderOption func(*RingTracker)

// WithBaseSize sets the world size of a lod 0 chunk. Defaults to 32.
//
// Parameters:
//   - size: world size of a lod 0 chunk
//
// Returns:
//   - RingTrackerBuilderOption: option function to apply
func WithBaseSize(size float32) RingTrackerBuilderOption {
	return func(t *RingTracker) {
		if size > 0 {
			t.baseSize = size
		}
	}
}

// WithLevels sets the number of LODs; the coarsest is levels-1. Defaults to 4.
//
// Parameters:
//   - levels: LOD count, clamped to [1, 16]
//
// Returns:
//   - RingTrackerBuilderOption: option function to apply
func WithLevels(levels int) RingTrackerBuilderOption {
	return func(t *RingTracker) {
		t.levels = min(max(levels, 1), 16)
	}
}

// WithViewRadius sets how many coarsest-level chunks are kept on each side of
// the viewer's. Defaults to 2.
//
// Parameters:
//   - r: radius in coarsest-level chunks
//
// Returns:
//   - RingTrackerBuilderOption: option function to apply
func WithViewRadius(r int) RingTrackerBuilderOption {
	return func(t *RingTracker) {
		t.viewRadius = max(r, 0)
	}
}

// WithSplitRadius sets the split threshold: a chunk is split while the viewer
// is closer than r times its size. Defaults to 1.5.
//
// Parameters:
//   - r: split radius in chunk sizes
//
// Returns:
//   - RingTrackerBuilderOption: option function to apply
func WithSplitRadius(r float32) RingTrackerBuilderOption {
	return func(t *RingTracker) {
		if r > 0 {
			t.splitRadius = r
		}
	}
}
