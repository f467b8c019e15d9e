package content

import (
	"context"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/go-gl/mathgl/mgl32"
)

// ComputeBackend produces chunk content. Implementations must return an error
// satisfying task.IsAborted when ctx is cancelled, never a partial result.
type ComputeBackend interface {
	// GenerateChunk produces the content of one chunk.
	//
	// Parameters:
	//   - ctx: cancellation token of the chunk's generation
	//   - req: what to generate
	//
	// Returns:
	//   - *ChunkResult: the generated content
	//   - error: task.ErrAborted on cancellation, or a backend failure
	GenerateChunk(ctx context.Context, req Request) (*ChunkResult, error)
}

// PhysicsBackend cooks collision shapes and registers them with a simulation.
type PhysicsBackend interface {
	// CookGeometry converts a mesh to a collision shape. May run on any goroutine.
	//
	// Parameters:
	//   - ctx: cancellation token of the owning chunk task
	//   - mesh: the geometry to cook
	//
	// Returns:
	//   - *CookedBuffer: the cooked shape
	//   - error: task.ErrAborted on cancellation
	CookGeometry(ctx context.Context, mesh *common.Mesh) (*CookedBuffer, error)

	// AddCookedGeometry places a cooked shape in the world.
	//
	// Parameters:
	//   - buf: the cooked shape
	//   - pos: world position
	//   - rot: world orientation
	//   - scale: per-axis scale
	//
	// Returns:
	//   - PhysicsHandle: handle for RemoveGeometry
	//   - error: error if the shape could not be added
	AddCookedGeometry(buf *CookedBuffer, pos mgl32.Vec3, rot mgl32.Quat, scale mgl32.Vec3) (PhysicsHandle, error)

	// RemoveGeometry removes a previously added shape. Unknown handles are ignored.
	RemoveGeometry(h PhysicsHandle)
}

// AssetSource loads asset bundles.
type AssetSource interface {
	// Load resolves a bundle into geometry and billboard data.
	//
	// Parameters:
	//   - ctx: cancellation token
	//   - bundle: the bundle to load
	//
	// Returns:
	//   - *Package: the loaded package
	//   - error: task.ErrAborted on cancellation, or a load failure
	Load(ctx context.Context, bundle Bundle) (*Package, error)
}

// Simplifier reduces a mesh's triangle count.
type Simplifier interface {
	// Simplify returns a coarser copy of mesh.
	//
	// Parameters:
	//   - ctx: cancellation token
	//   - mesh: the source mesh, not modified
	//   - ratio: target fraction of the source triangles, in (0, 1]
	//
	// Returns:
	//   - *common.Mesh: the simplified mesh
	//   - error: task.ErrAborted on cancellation
	Simplify(ctx context.Context, mesh *common.Mesh, ratio float32) (*common.Mesh, error)
}
