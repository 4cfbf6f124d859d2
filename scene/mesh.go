package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/offscreen/math3d"
)

// Mesh validation errors.
var (
	// ErrEmptyMesh is returned for meshes without vertices or indices.
	ErrEmptyMesh = errors.New("scene: empty mesh")

	// ErrIndexOutOfRange is returned when an index references a vertex that
	// does not exist.
	ErrIndexOutOfRange = errors.New("scene: index out of range")

	// ErrBadIndexCount is returned when the index count is not a multiple of 3.
	ErrBadIndexCount = errors.New("scene: index count is not a multiple of 3")

	// ErrUnknownLayout is returned for a Layout value outside the defined set.
	ErrUnknownLayout = errors.New("scene: unknown vertex layout")

	// ErrNonFinite is returned when a vertex or uniform carries NaN or Inf.
	ErrNonFinite = errors.New("scene: non-finite value")
)

// Layout is the vertex attribute layout of a mesh. It is fixed when a
// pipeline is created and selects the shading mode.
type Layout uint8

const (
	// LayoutPositionColor carries a per-vertex color. Meshes with this layout
	// are flat shaded: the face normal is reconstructed per fragment from
	// screen-space derivatives of the world position.
	LayoutPositionColor Layout = iota

	// LayoutPositionNormal carries a per-vertex normal. Meshes with this
	// layout are smooth shaded with ambient, diffuse and specular terms.
	LayoutPositionNormal
)

// VertexStride is the size in bytes of one vertex in GPU memory for every
// layout: two tightly packed float32x3 attributes.
const VertexStride = 24

// String returns the layout name.
func (l Layout) String() string {
	switch l {
	case LayoutPositionColor:
		return "position+color"
	case LayoutPositionNormal:
		return "position+normal"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

// Valid reports whether l is a defined layout.
func (l Layout) Valid() bool {
	return l == LayoutPositionColor || l == LayoutPositionNormal
}

// Vertex is a position plus one attribute. Attr is interpreted through the
// mesh Layout: a linear RGB color in [0, 1] or an object-space normal.
type Vertex struct {
	Position math3d.Vec3
	Attr     math3d.Vec3
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Layout   Layout
	Vertices []Vertex
	Indices  []uint32
}

// MeshSource produces meshes for the renderer. Importers (for example a
// future STEP tessellator) plug in by implementing it.
type MeshSource interface {
	Mesh() (Mesh, error)
}

// Validate checks the mesh before upload.
func (m Mesh) Validate() error {
	if !m.Layout.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownLayout, uint8(m.Layout))
	}
	if len(m.Vertices) == 0 || len(m.Indices) == 0 {
		return ErrEmptyMesh
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: %d indices", ErrBadIndexCount, len(m.Indices))
	}
	n := uint32(len(m.Vertices)) //nolint:gosec // vertex count checked by caller-sized slices
	for i, idx := range m.Indices {
		if idx >= n {
			return fmt.Errorf("%w: indices[%d]=%d, %d vertices", ErrIndexOutOfRange, i, idx, n)
		}
	}
	for i, v := range m.Vertices {
		if !v.Position.Finite() || !v.Attr.Finite() {
			return fmt.Errorf("%w: vertex %d", ErrNonFinite, i)
		}
	}
	return nil
}

// TriangleCount returns the number of triangles.
func (m Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// VertexBytes returns the vertices as little-endian float32 data, VertexStride
// bytes per vertex.
func (m Mesh) VertexBytes() []byte {
	buf := make([]byte, len(m.Vertices)*VertexStride)
	for i, v := range m.Vertices {
		o := i * VertexStride
		for j, f := range [6]float32{v.Position.X, v.Position.Y, v.Position.Z, v.Attr.X, v.Attr.Y, v.Attr.Z} {
			binary.LittleEndian.PutUint32(buf[o+j*4:], math.Float32bits(f))
		}
	}
	return buf
}

// IndexBytes returns the indices as little-endian uint32 data.
func (m Mesh) IndexBytes() []byte {
	buf := make([]byte, len(m.Indices)*4)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

// Mesh returns m itself, so a Mesh is its own MeshSource.
func (m Mesh) Mesh() (Mesh, error) {
	return m, nil
}
