package content

// ProcGenBuilderOption is a functional option for configuring a ProcGen.
type ProcGenBuilderOption func(*ProcGen)

// WithResolution sets the number of terrain quads along each chunk edge, at every LOD.
//
// Parameters:
//   - quads: quads per edge (minimum 1)
//
// Returns:
//   - ProcGenBuilderOption: option function to apply
func WithResolution(quads int) ProcGenBuilderOption {
	return func(p *ProcGen) {
		p.resolution = max(quads, 1)
	}
}

// WithHeightScale sets the terrain amplitude in world units.
//
// Parameters:
//   - scale: peak height above (and depth below) zero
//
// Returns:
//   - ProcGenBuilderOption: option function to apply
func WithHeightScale(scale float32) ProcGenBuilderOption {
	return func(p *ProcGen) {
		p.heightScale = scale
	}
}

// WithSeaLevel sets the water height.
//
// Parameters:
//   - level: world y of the water sheet
//
// Returns:
//   - ProcGenBuilderOption: option function to apply
func WithSeaLevel(level float32) ProcGenBuilderOption {
	return func(p *ProcGen) {
		p.seaLevel = level
	}
}

// WithOctaves sets the number of noise octaves summed for terrain height.
//
// Parameters:
//   - n: octave count (minimum 1)
//
// Returns:
//   - ProcGenBuilderOption: option function to apply
func WithOctaves(n int) ProcGenBuilderOption {
	return func(p *ProcGen) {
		p.octaves = max(n, 1)
	}
}

// WithGeometryCount sets how many distinct geometries instances of cat pick from.
//
// Parameters:
//   - cat: an instanced category
//   - n: number of geometries in that layer's package
//
// Returns:
//   - ProcGenBuilderOption: option function to apply
func WithGeometryCount(cat Category, n int) ProcGenBuilderOption {
	return func(p *ProcGen) {
		p.geometries[cat] = n
	}
}
