package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraController owns the positional state of a camera. It orbits a target
// point using spherical coordinates (radius, azimuth, elevation) and carries
// the target across the world at a constant ground velocity, which is how a
// streaming viewer sweeps over terrain. Camera reads position and target and
// derives its matrices from them.
type CameraController interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - mgl32.Vec3: world-space camera position
	Position() mgl32.Vec3

	// Target returns the look-at point.
	//
	// Returns:
	//   - mgl32.Vec3: world-space target position
	Target() mgl32.Vec3

	// SetTarget sets the look-at/pivot point and recomputes position from spherical coordinates.
	//
	// Parameters:
	//   - target: world-space coordinates
	SetTarget(target mgl32.Vec3)

	// Orbit rotates the camera around the target. Elevation is clamped to the
	// controller's bounds.
	//
	// Parameters:
	//   - dAzimuth: horizontal change in radians
	//   - dElevation: vertical change in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom adjusts the orbit radius, clamped to the radius bounds.
	// Positive delta zooms in (closer to target).
	//
	// Parameters:
	//   - delta: zoom amount scaled by the zoom speed
	Zoom(delta float32)

	// Pan translates target and position along the ground plane relative to
	// the current heading.
	//
	// Parameters:
	//   - right: distance along the camera's right axis
	//   - forward: distance along the camera's horizontal forward axis
	Pan(right, forward float32)

	// Radius returns the current orbit radius (distance from target).
	Radius() float32

	// Azimuth returns the current horizontal angle around the Y axis.
	Azimuth() float32

	// Elevation returns the current vertical angle from the horizontal plane.
	Elevation() float32

	// Velocity returns the ground velocity applied to the target by Advance.
	Velocity() mgl32.Vec3

	// SetVelocity sets the ground velocity in world units per second. The Y
	// component is ignored.
	//
	// Parameters:
	//   - v: velocity
	SetVelocity(v mgl32.Vec3)

	// Advance moves the target by velocity * dt and recomputes position.
	//
	// Parameters:
	//   - dt: elapsed seconds
	Advance(dt float32)
}
