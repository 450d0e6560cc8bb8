package viewport

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Geometry holds the renderable buffers built from a mesh description.
// Positions and Normals are flat xyz in the viewport convention, UVs are
// flat uv pairs and Index lists triangle corners.
type Geometry struct {
	Positions []float32
	Normals   []float32
	UVs       []float32
	Index     []uint32

	disposed bool
	release  func()
}

// VertexCount returns the number of vertices in the position buffer.
func (g *Geometry) VertexCount() int {
	return len(g.Positions) / 3
}

// TriangleCount returns the number of triangles drawn.
func (g *Geometry) TriangleCount() int {
	if g.Indexed() {
		return len(g.Index) / 3
	}
	return g.VertexCount() / 3
}

// Indexed reports whether an index buffer is attached.
func (g *Geometry) Indexed() bool {
	return len(g.Index) > 0
}

// Disposed reports whether Dispose has been called.
func (g *Geometry) Disposed() bool {
	return g.disposed
}

// Dispose releases the buffers. A second call returns ErrDisposed.
func (g *Geometry) Dispose() error {
	if g.disposed {
		return ErrDisposed
	}
	g.disposed = true
	g.Positions, g.Normals, g.UVs, g.Index = nil, nil, nil, nil
	if g.release != nil {
		g.release()
	}
	return nil
}

// BuildGeometry converts a mesh description into viewport buffers. A mesh
// without vertices yields an empty geometry whatever its other buffers hold.
func BuildGeometry(mesh MeshDescription) (*Geometry, error) {
	geometry := &Geometry{}
	if len(mesh.Vertices) == 0 {
		return geometry, nil
	}

	if err := mesh.Validate(); err != nil {
		return nil, err
	}

	positions, err := ConvertVectors(mesh.Vertices)
	if err != nil {
		return nil, fmt.Errorf("vertices: %w", err)
	}
	geometry.Positions = positions

	if len(mesh.Faces) > 0 {
		geometry.Index = make([]uint32, len(mesh.Faces))
		for i, idx := range mesh.Faces {
			geometry.Index[i] = uint32(idx)
		}
	}

	if len(mesh.Normals) > 0 {
		normals, err := ConvertVectors(mesh.Normals)
		if err != nil {
			return nil, fmt.Errorf("normals: %w", err)
		}
		geometry.Normals = normals
	} else {
		geometry.Normals = computeNormals(geometry.Positions, geometry.Index)
	}

	if len(mesh.UVs) > 0 {
		geometry.UVs = make([]float32, len(mesh.UVs))
		copy(geometry.UVs, mesh.UVs)
	}

	return geometry, nil
}

// computeNormals accumulates area-weighted face normals per vertex, shares
// the sums between vertices at the same position, then normalizes.
func computeNormals(positions []float32, index []uint32) []float32 {
	count := len(positions) / 3
	sums := make([]mgl32.Vec3, count)

	vertex := func(i uint32) mgl32.Vec3 {
		return mgl32.Vec3{positions[3*i], positions[3*i+1], positions[3*i+2]}
	}
	addFace := func(a, b, c uint32) {
		pa, pb, pc := vertex(a), vertex(b), vertex(c)
		// Unnormalized cross product: its length is twice the face area.
		n := pc.Sub(pb).Cross(pa.Sub(pb))
		sums[a] = sums[a].Add(n)
		sums[b] = sums[b].Add(n)
		sums[c] = sums[c].Add(n)
	}

	if len(index) > 0 {
		for i := 0; i+2 < len(index); i += 3 {
			addFace(index[i], index[i+1], index[i+2])
		}
	} else {
		for i := 0; i+2 < count; i += 3 {
			addFace(uint32(i), uint32(i+1), uint32(i+2))
		}
	}

	shared := make(map[mgl32.Vec3]mgl32.Vec3, count)
	for i := 0; i < count; i++ {
		p := vertex(uint32(i))
		shared[p] = shared[p].Add(sums[i])
	}

	normals := make([]float32, len(positions))
	for i := 0; i < count; i++ {
		n := shared[vertex(uint32(i))]
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
		}
		normals[3*i] = n[0]
		normals[3*i+1] = n[1]
		normals[3*i+2] = n[2]
	}
	return normals
}
