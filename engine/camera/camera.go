package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/layer"
	"github.com/go-gl/mathgl/mgl32"
)

type cameraImpl struct {
	mu *sync.Mutex

	up mgl32.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	position mgl32.Vec3
	forward  mgl32.Vec3

	viewMatrix           mgl32.Mat4
	projectionMatrix     mgl32.Mat4
	viewProjectionMatrix mgl32.Mat4
	frustum              common.Frustum

	controller CameraController
}

// Camera holds perspective settings and derives the view, projection and
// culling frustum from an attached CameraController each frame via Update().
// Its View is what the chunk streamer consumes.
type Camera interface {
	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// ViewProjectionMatrix returns the current combined view-projection matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the combined view-projection matrix
	ViewProjectionMatrix() mgl32.Mat4

	// Frustum returns the culling frustum of the current view-projection matrix.
	//
	// Returns:
	//   - common.Frustum: the frustum
	Frustum() common.Frustum

	// View returns the viewer state for layer updates.
	//
	// Parameters:
	//   - t: time in seconds, passed through to billboard uniforms
	//
	// Returns:
	//   - layer.View: position, horizontal forward direction and frustum
	View(t float32) layer.View

	// Controller returns the attached CameraController, or nil.
	Controller() CameraController

	// Update advances the controller by dt and recomputes matrices.
	// If no controller is attached, this method does nothing.
	//
	// Parameters:
	//   - dt: elapsed seconds
	Update(dt float32)

	// SetAspect sets the aspect ratio (width / height) and recomputes matrices.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// SetFar sets the far clipping plane distance and recomputes matrices.
	//
	// Parameters:
	//   - far: far plane distance
	SetFar(far float32)

	// SetController attaches a CameraController to the camera.
	//
	// Parameters:
	//   - ctrl: the controller to attach
	SetController(ctrl CameraController)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with default perspective settings.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:                   &sync.Mutex{},
		up:                   mgl32.Vec3{0, 1, 0},
		fov:                  45.0 * (math.Pi / 180.0),
		aspect:               16.0 / 9.0,
		near:                 0.5,
		far:                  2000.0,
		forward:              mgl32.Vec3{0, 0, -1},
		viewMatrix:           mgl32.Ident4(),
		projectionMatrix:     mgl32.Ident4(),
		viewProjectionMatrix: mgl32.Ident4(),
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frustum
}

func (c *cameraImpl) View(t float32) layer.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.frustum
	flat := mgl32.Vec3{c.forward[0], 0, c.forward[2]}
	if flat.Len() > 1e-6 {
		flat = flat.Normalize()
	}
	return layer.View{Position: c.position, Forward: flat, Frustum: &f, Time: t}
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update(dt float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.controller.Advance(dt)
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetFar(far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.far = far
	c.updateMatrices()
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.updateMatrices()
}

// updateMatrices recalculates the view, projection and view-projection
// matrices and the frustum. Position and target come from the attached
// controller; without one the camera sits at the origin looking down -z.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	target := c.position.Add(c.forward)
	if c.controller != nil {
		c.position = c.controller.Position()
		target = c.controller.Target()
	}
	if d := target.Sub(c.position); d.Len() > 1e-6 {
		c.forward = d.Normalize()
	}

	c.viewMatrix = mgl32.LookAtV(c.position, c.position.Add(c.forward), c.up)
	c.projectionMatrix = mgl32.Perspective(c.fov, c.aspect, c.near, c.far)
	c.viewProjectionMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
	c.frustum = common.ExtractFrustum(c.viewProjectionMatrix)
}
