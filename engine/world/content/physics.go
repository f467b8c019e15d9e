package content

import (
	"context"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/Carmen-Shannon/oxy-stream/engine/world/task"
	"github.com/go-gl/mathgl/mgl32"
)

// HeadlessPhysics is a PhysicsBackend without a simulation: cooking packs the
// mesh positions and bounds, and added shapes are only tracked by handle.
type HeadlessPhysics struct {
	cookDelay time.Duration

	mu     *sync.Mutex
	next   PhysicsHandle
	bodies map[PhysicsHandle]common.AABB
}

var _ PhysicsBackend = &HeadlessPhysics{}

// NewHeadlessPhysics creates a HeadlessPhysics. cookDelay simulates cooking
// latency and may be zero.
func NewHeadlessPhysics(cookDelay time.Duration) *HeadlessPhysics {
	return &HeadlessPhysics{
		cookDelay: cookDelay,
		mu:        &sync.Mutex{},
		bodies:    make(map[PhysicsHandle]common.AABB),
	}
}

func (h *HeadlessPhysics) CookGeometry(ctx context.Context, mesh *common.Mesh) (*CookedBuffer, error) {
	if h.cookDelay > 0 {
		timer := time.NewTimer(h.cookDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, task.ErrAborted
		case <-timer.C:
		}
	}
	if err := task.CheckAbort(ctx); err != nil {
		return nil, err
	}
	return &CookedBuffer{
		Data:      common.CopyToBytes(mesh.Positions),
		Bounds:    mesh.Bounds(),
		Triangles: len(mesh.Indices) / 3,
	}, nil
}

func (h *HeadlessPhysics) AddCookedGeometry(buf *CookedBuffer, pos mgl32.Vec3, rot mgl32.Quat, scale mgl32.Vec3) (PhysicsHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	lo := rot.Rotate(mgl32.Vec3{buf.Bounds.Min[0] * scale[0], buf.Bounds.Min[1] * scale[1], buf.Bounds.Min[2] * scale[2]})
	hi := rot.Rotate(mgl32.Vec3{buf.Bounds.Max[0] * scale[0], buf.Bounds.Max[1] * scale[1], buf.Bounds.Max[2] * scale[2]})
	h.bodies[h.next] = common.NewAABB(lo.Add(pos), hi.Add(pos))
	return h.next, nil
}

func (h *HeadlessPhysics) RemoveGeometry(handle PhysicsHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.bodies, handle)
}

// Live returns the number of shapes currently added.
func (h *HeadlessPhysics) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bodies)
}
