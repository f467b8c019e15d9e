package instance

import "github.com/go-gl/mathgl/mgl32"

// RecordSize is the byte size of one instance record in the table buffer.
const RecordSize = 48

// Record is the per-instance data a vertex shader reads by index.
// Aux carries layer-specific values: material weights for meshes, the
// spritesheet frame and tint for billboards.
type Record struct {
	Position    mgl32.Vec3
	Scale       float32
	Orientation mgl32.Quat
	Aux         [4]float32
}

// gpuRecord is Record in buffer layout: vec3 + f32, quat as xyzw, vec4.
type gpuRecord struct {
	Position    [3]float32
	Scale       float32
	Orientation [4]float32
	Aux         [4]float32
}

func toGPU(r Record) gpuRecord {
	return gpuRecord{
		Position:    r.Position,
		Scale:       r.Scale,
		Orientation: [4]float32{r.Orientation.X(), r.Orientation.Y(), r.Orientation.Z(), r.Orientation.W},
		Aux:         r.Aux,
	}
}

func fromGPU(g gpuRecord) Record {
	return Record{
		Position: g.Position,
		Scale:    g.Scale,
		Orientation: mgl32.Quat{
			W: g.Orientation[3],
			V: mgl32.Vec3{g.Orientation[0], g.Orientation[1], g.Orientation[2]},
		},
		Aux: g.Aux,
	}
}
