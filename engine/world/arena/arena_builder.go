package arena

// GeometryArenaBuilderOption is a functional option for configuring a GeometryArena.
type GeometryArenaBuilderOption func(*geometryArena)

// WithVertexCapacity sets the number of vertices every channel buffer holds.
//
// Parameters:
//   - n: vertex capacity
//
// Returns:
//   - GeometryArenaBuilderOption: option function to apply
func WithVertexCapacity(n uint32) GeometryArenaBuilderOption {
	return func(a *geometryArena) {
		a.vertexCapacity = n
	}
}

// WithIndexCapacity sets the number of indices the index buffer holds.
//
// Parameters:
//   - n: index capacity
//
// Returns:
//   - GeometryArenaBuilderOption: option function to apply
func WithIndexCapacity(n uint32) GeometryArenaBuilderOption {
	return func(a *geometryArena) {
		a.indexCapacity = n
	}
}

// WithLabel sets the prefix used for buffer labels and error messages.
//
// Parameters:
//   - label: a short name such as "terrain"
//
// Returns:
//   - GeometryArenaBuilderOption: option function to apply
func WithLabel(label string) GeometryArenaBuilderOption {
	return func(a *geometryArena) {
		if label != "" {
			a.label = label
		}
	}
}
