package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithRadius sets the starting distance from the target, clamped to the radius bounds.
func WithRadius(radius float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.radius = radius
	}
}

// WithAzimuth sets the starting heading in radians. At 0 the camera sits on
// the target's +Z side and looks toward -Z.
func WithAzimuth(azimuth float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.azimuth = azimuth
	}
}

// WithElevation sets the starting pitch above the ground plane in radians.
func WithElevation(elevation float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.elevation = elevation
	}
}

// WithTarget sets the starting point the camera orbits and follows.
func WithTarget(x, y, z float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.target = mgl32.Vec3{x, y, z}
	}
}

// WithRadiusBounds limits Zoom. Defaults to [20, 2000].
func WithRadiusBounds(min, max float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minRadius = min
		cc.maxRadius = max
	}
}

// WithElevationBounds limits Orbit's pitch, in radians.
func WithElevationBounds(min, max float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minElevation = min
		cc.maxElevation = max
	}
}

// WithZoomSpeed sets the multiplier applied to Zoom deltas.
func WithZoomSpeed(speed float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.zoomSpeed = speed
	}
}

// WithVelocity sets the initial ground velocity of the target.
//
// Parameters:
//   - x, z: world units per second along X and Z
//
// Returns:
//   - CameraControllerOption: functional option to set the velocity
func WithVelocity(x, z float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.velocity = mgl32.Vec3{x, 0, z}
	}
}
