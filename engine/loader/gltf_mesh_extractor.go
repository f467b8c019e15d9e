package loader

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-stream/common"
	"github.com/go-gl/mathgl/mgl32"
)

// extractLODs flattens the document's default scene into one mesh per LOD.
// A node belongs to LOD n when its name, or its mesh's name, ends in "_LOD<n>";
// anything else is LOD 0. Node transforms are baked into the positions.
//
// Returns:
//   - []*common.Mesh: the LOD chain, finest first
//   - error: error if a primitive cannot be read or the chain has a gap
func (p *gltfParser) extractLODs() ([]*common.Mesh, error) {
	doc := p.document
	lods := make(map[int]*common.Mesh)

	add := func(meshIndex int, name string, world mgl32.Mat4) error {
		if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
			return fmt.Errorf("mesh index %d out of range", meshIndex)
		}
		gm := &doc.Meshes[meshIndex]
		lod, ok := lodSuffix(name)
		if !ok {
			lod, _ = lodSuffix(gm.Name)
		}
		dst := lods[lod]
		if dst == nil {
			dst = &common.Mesh{}
			lods[lod] = dst
		}
		for i := range gm.Primitives {
			if err := p.appendPrimitive(dst, &gm.Primitives[i], world); err != nil {
				return fmt.Errorf("mesh %q primitive %d: %w", gm.Name, i, err)
			}
		}
		return nil
	}

	if len(doc.Nodes) == 0 {
		for i := range doc.Meshes {
			if err := add(i, "", mgl32.Ident4()); err != nil {
				return nil, err
			}
		}
	} else {
		var walk func(n int, parent mgl32.Mat4, depth int) error
		walk = func(n int, parent mgl32.Mat4, depth int) error {
			if n < 0 || n >= len(doc.Nodes) || depth > len(doc.Nodes) {
				return fmt.Errorf("invalid node hierarchy at node %d", n)
			}
			node := &doc.Nodes[n]
			world := parent.Mul4(nodeTransform(node))
			if node.Mesh != nil {
				if err := add(*node.Mesh, node.Name, world); err != nil {
					return err
				}
			}
			for _, c := range node.Children {
				if err := walk(c, world, depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		for _, root := range p.rootNodes() {
			if err := walk(root, mgl32.Ident4(), 0); err != nil {
				return nil, err
			}
		}
	}

	levels := make([]int, 0, len(lods))
	for lod := range lods {
		levels = append(levels, lod)
	}
	sort.Ints(levels)
	chain := make([]*common.Mesh, 0, len(levels))
	for i, lod := range levels {
		if lod != i {
			return nil, fmt.Errorf("LOD chain has a gap: missing LOD %d", i)
		}
		if lods[lod].Empty() {
			return nil, fmt.Errorf("LOD %d has no triangles", lod)
		}
		chain = append(chain, lods[lod])
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("document has no meshes")
	}
	return chain, nil
}

// rootNodes returns the default scene's roots, or every node no other node
// lists as a child.
func (p *gltfParser) rootNodes() []int {
	doc := p.document
	if len(doc.Scenes) > 0 {
		s := 0
		if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
			s = *doc.Scene
		}
		return doc.Scenes[s].Nodes
	}
	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i, isChild := range child {
		if !isChild {
			roots = append(roots, i)
		}
	}
	return roots
}

// appendPrimitive transforms a triangle primitive into dst. Primitives of
// other topologies are skipped.
func (p *gltfParser) appendPrimitive(dst *common.Mesh, prim *gltfPrimitive, world mgl32.Mat4) error {
	if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
		return nil
	}
	posIndex, ok := prim.Attributes["POSITION"]
	if !ok {
		return fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := p.readVec3(posIndex)
	if err != nil {
		return fmt.Errorf("reading positions: %w", err)
	}

	var indices []uint32
	if prim.Indices != nil {
		if indices, err = p.readIndices(*prim.Indices); err != nil {
			return fmt.Errorf("reading indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	if len(indices)%3 != 0 {
		return fmt.Errorf("index count %d is not a multiple of 3", len(indices))
	}
	for _, idx := range indices {
		if int(idx) >= len(positions) {
			return fmt.Errorf("index %d addresses vertex past %d", idx, len(positions))
		}
	}

	var normals []mgl32.Vec3
	if nIndex, ok := prim.Attributes["NORMAL"]; ok {
		if normals, err = p.readVec3(nIndex); err != nil {
			return fmt.Errorf("reading normals: %w", err)
		}
		if len(normals) != len(positions) {
			normals = nil
		}
	}
	if normals == nil {
		normals = generateNormals(positions, indices)
	}

	normalMat := world.Mat3().Inv().Transpose()
	base := uint32(len(dst.Positions))
	for i, pos := range positions {
		dst.Positions = append(dst.Positions, mgl32.TransformCoordinate(pos, world))
		n := normalMat.Mul3x1(normals[i])
		if n.Len() > 1e-8 {
			n = n.Normalize()
		}
		dst.Normals = append(dst.Normals, n)
	}
	for _, idx := range indices {
		dst.Indices = append(dst.Indices, base+idx)
	}
	return nil
}

// nodeTransform returns the node's local matrix: Matrix if set, else T * R * S.
func nodeTransform(n *gltfNode) mgl32.Mat4 {
	if n.Matrix != nil {
		return mgl32.Mat4(*n.Matrix)
	}
	m := mgl32.Ident4()
	if t := n.Translation; t != nil {
		m = mgl32.Translate3D(t[0], t[1], t[2])
	}
	if r := n.Rotation; r != nil {
		q := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}.Normalize()
		m = m.Mul4(q.Mat4())
	}
	if s := n.Scale; s != nil {
		m = m.Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
	}
	return m
}

// lodSuffix parses a trailing "_LOD<n>", case-insensitively.
func lodSuffix(name string) (int, bool) {
	i := strings.LastIndex(strings.ToLower(name), "_lod")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(name[i+4:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// generateNormals computes smooth per-vertex normals by accumulating
// area-weighted face normals.
func generateNormals(positions []mgl32.Vec3, indices []uint32) []mgl32.Vec3 {
	normals := make([]mgl32.Vec3, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		face := positions[b].Sub(positions[a]).Cross(positions[c].Sub(positions[a]))
		normals[a] = normals[a].Add(face)
		normals[b] = normals[b].Add(face)
		normals[c] = normals[c].Add(face)
	}
	for i, n := range normals {
		if n.Len() > 1e-8 {
			normals[i] = n.Normalize()
		} else {
			normals[i] = mgl32.Vec3{0, 1, 0}
		}
	}
	return normals
}
