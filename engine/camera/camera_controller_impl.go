package camera

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

type cameraControllerImpl struct {
	mu *sync.Mutex

	// position is derived from target + spherical coords
	position mgl32.Vec3
	target   mgl32.Vec3
	velocity mgl32.Vec3

	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	zoomSpeed float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates a new camera controller with sensible defaults.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu: &sync.Mutex{},

		radius:    250.0,
		elevation: float32(math.Pi / 6),

		minRadius:    20.0,
		maxRadius:    2000.0,
		minElevation: 0.05,
		maxElevation: float32(math.Pi/2 - 0.1),

		zoomSpeed: 15.0,
	}
	for _, option := range options {
		option(cc)
	}
	cc.radius = clamp(cc.radius, cc.minRadius, cc.maxRadius)
	cc.elevation = clamp(cc.elevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
	return cc
}

// updatePosition recomputes the camera position from spherical coordinates.
// Caller must hold the mutex.
func (cc *cameraControllerImpl) updatePosition() {
	cosElev := float32(math.Cos(float64(cc.elevation)))
	sinElev := float32(math.Sin(float64(cc.elevation)))
	cosAzim := float32(math.Cos(float64(cc.azimuth)))
	sinAzim := float32(math.Sin(float64(cc.azimuth)))

	cc.position = cc.target.Add(mgl32.Vec3{
		cc.radius * cosElev * sinAzim,
		cc.radius * sinElev,
		cc.radius * cosElev * cosAzim,
	})
}

// heading returns the unit forward and right vectors on the ground plane.
// Caller must hold the mutex.
func (cc *cameraControllerImpl) heading() (forward, right mgl32.Vec3) {
	sinAzim := float32(math.Sin(float64(cc.azimuth)))
	cosAzim := float32(math.Cos(float64(cc.azimuth)))
	// the camera sits at +azimuth and looks back toward the target
	forward = mgl32.Vec3{-sinAzim, 0, -cosAzim}
	right = mgl32.Vec3{cosAzim, 0, -sinAzim}
	return forward, right
}

func clamp(v, lo, hi float32) float32 {
	return float32(math.Max(float64(lo), math.Min(float64(hi), float64(v))))
}

func (cc *cameraControllerImpl) Position() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *cameraControllerImpl) Target() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target
}

func (cc *cameraControllerImpl) SetTarget(target mgl32.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = target
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Orbit(dAzimuth, dElevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth = float32(math.Mod(float64(cc.azimuth+dAzimuth), 2*math.Pi))
	cc.elevation = clamp(cc.elevation+dElevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = clamp(cc.radius-delta*cc.zoomSpeed, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Pan(right, forward float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	f, r := cc.heading()
	cc.target = cc.target.Add(r.Mul(right)).Add(f.Mul(forward))
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *cameraControllerImpl) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *cameraControllerImpl) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}

func (cc *cameraControllerImpl) Velocity() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.velocity
}

func (cc *cameraControllerImpl) SetVelocity(v mgl32.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.velocity = mgl32.Vec3{v[0], 0, v[2]}
}

func (cc *cameraControllerImpl) Advance(dt float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.velocity == (mgl32.Vec3{}) {
		return
	}
	cc.target = cc.target.Add(cc.velocity.Mul(dt))
	cc.updatePosition()
}
