package camera

import "github.com/go-gl/mathgl/mgl32"

type CameraBuilderOption func(*cameraImpl)

// WithUp overrides the world up axis used to build the view matrix. Defaults to +Y.
func WithUp(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = mgl32.Vec3{x, y, z}
	}
}

// WithFov sets the vertical field of view.
//
// Parameters:
//   - fov: radians
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

// WithAspect sets width / height.
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.aspect = aspect
	}
}

// WithClipPlanes sets the near and far plane distances. The far plane bounds
// how far out the culling frustum keeps chunks.
//
// Parameters:
//   - near: near plane distance, > 0
//   - far: far plane distance, > near
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithClipPlanes(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
		c.far = far
	}
}

// WithFar sets only the far plane distance.
func WithFar(far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.far = far
	}
}

// WithLookAt places a camera that has no controller.
//
// Parameters:
//   - eye: world-space position
//   - target: point the camera faces
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithLookAt(eye, target mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position = eye
		if d := target.Sub(eye); d.Len() > 1e-6 {
			c.forward = d.Normalize()
		}
	}
}

// WithController attaches the controller that owns position and target.
// It takes precedence over WithLookAt.
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
