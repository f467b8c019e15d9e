package loader

import "log/slog"

// GLTFAssetsBuilderOption is a functional option for configuring GLTFAssets via NewGLTFAssets.
type GLTFAssetsBuilderOption func(*GLTFAssets)

// WithBillboardFrames sets the spritesheet frame count assets get unless
// overridden per name. Defaults to 8.
//
// Parameters:
//   - n: frames around the vertical axis
//
// Returns:
//   - GLTFAssetsBuilderOption: a function that applies the option
func WithBillboardFrames(n int) GLTFAssetsBuilderOption {
	return func(a *GLTFAssets) {
		a.defaultFrames = n
	}
}

// WithFrames overrides the billboard frame count of one geometry.
//
// Parameters:
//   - name: the geometry name
//   - n: frames around the vertical axis
//
// Returns:
//   - GLTFAssetsBuilderOption: a function that applies the option
func WithFrames(name string, n int) GLTFAssetsBuilderOption {
	return func(a *GLTFAssets) {
		a.frames[name] = n
	}
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger *slog.Logger) GLTFAssetsBuilderOption {
	return func(a *GLTFAssets) {
		if logger != nil {
			a.logger = logger
		}
	}
}
