package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chewxy/math32"

	"github.com/gogpu/offscreen/math3d"
)

// ErrUnknownMesh is returned by ByName for names without a built-in mesh.
var ErrUnknownMesh = errors.New("scene: unknown mesh")

// Cube returns the flat-shaded color cube spanning [-1, 1] on every axis.
// Front corners are warm, back corners cool. All faces wind counter-clockwise
// seen from outside.
func Cube() Mesh {
	return Mesh{
		Layout: LayoutPositionColor,
		Vertices: []Vertex{
			// front (z = +1)
			{math3d.V3(-1, -1, 1), math3d.V3(1, 0, 0)},
			{math3d.V3(1, -1, 1), math3d.V3(1, 0.5, 0)},
			{math3d.V3(1, 1, 1), math3d.V3(1, 1, 0)},
			{math3d.V3(-1, 1, 1), math3d.V3(1, 0.5, 0.5)},
			// back (z = -1)
			{math3d.V3(-1, -1, -1), math3d.V3(0, 0, 1)},
			{math3d.V3(1, -1, -1), math3d.V3(0, 0.5, 1)},
			{math3d.V3(1, 1, -1), math3d.V3(0.5, 0.5, 1)},
			{math3d.V3(-1, 1, -1), math3d.V3(0.5, 0, 1)},
		},
		Indices: []uint32{
			0, 1, 2, 2, 3, 0, // front
			1, 5, 6, 6, 2, 1, // right
			5, 4, 7, 7, 6, 5, // back
			4, 0, 3, 3, 7, 4, // left
			3, 2, 6, 6, 7, 3, // top
			4, 5, 1, 1, 0, 4, // bottom
		},
	}
}

// Pyramid returns a flat-shaded square pyramid with a green base and a
// yellow apex.
func Pyramid() Mesh {
	return Mesh{
		Layout: LayoutPositionColor,
		Vertices: []Vertex{
			{math3d.V3(-1.5, -1, -1.5), math3d.V3(0, 1, 0)},
			{math3d.V3(1.5, -1, -1.5), math3d.V3(0.5, 1, 0)},
			{math3d.V3(1.5, -1, 1.5), math3d.V3(0, 1, 0.5)},
			{math3d.V3(-1.5, -1, 1.5), math3d.V3(0.5, 1, 0.5)},
			{math3d.V3(0, 2, 0), math3d.V3(1, 1, 0)},
		},
		Indices: []uint32{
			0, 1, 2, 0, 2, 3, // base
			0, 4, 1,
			1, 4, 2,
			2, 4, 3,
			3, 4, 0,
		},
	}
}

// SmoothCube returns the [-1, 1] cube with 24 vertices carrying per-face
// normals, for the smooth shading mode.
func SmoothCube() Mesh {
	type face struct{ n, u, v math3d.Vec3 }
	// u × v = n keeps each face counter-clockwise from outside.
	faces := [6]face{
		{math3d.V3(0, 0, 1), math3d.V3(1, 0, 0), math3d.V3(0, 1, 0)},
		{math3d.V3(1, 0, 0), math3d.V3(0, 0, -1), math3d.V3(0, 1, 0)},
		{math3d.V3(0, 0, -1), math3d.V3(-1, 0, 0), math3d.V3(0, 1, 0)},
		{math3d.V3(-1, 0, 0), math3d.V3(0, 0, 1), math3d.V3(0, 1, 0)},
		{math3d.V3(0, 1, 0), math3d.V3(1, 0, 0), math3d.V3(0, 0, -1)},
		{math3d.V3(0, -1, 0), math3d.V3(1, 0, 0), math3d.V3(0, 0, 1)},
	}

	m := Mesh{
		Layout:   LayoutPositionNormal,
		Vertices: make([]Vertex, 0, 24),
		Indices:  make([]uint32, 0, 36),
	}
	for _, f := range faces {
		base := uint32(len(m.Vertices)) //nolint:gosec // at most 24 vertices
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := f.n.Add(f.u.Scale(c[0])).Add(f.v.Scale(c[1]))
			m.Vertices = append(m.Vertices, Vertex{Position: p, Attr: f.n})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base+2, base+3, base)
	}
	return m
}

// UVSphere returns a unit sphere tessellated into rings latitude bands and
// segments longitude slices, with smooth normals. Arguments below 2 rings or
// 3 segments are raised to those minimums.
func UVSphere(rings, segments int) Mesh {
	rings = max(rings, 2)
	segments = max(segments, 3)

	m := Mesh{
		Layout:   LayoutPositionNormal,
		Vertices: make([]Vertex, 0, (rings+1)*(segments+1)),
	}
	for r := 0; r <= rings; r++ {
		theta := math32.Pi * float32(r) / float32(rings)
		st, ct := math32.Sin(theta), math32.Cos(theta)
		for s := 0; s <= segments; s++ {
			phi := 2 * math32.Pi * float32(s) / float32(segments)
			p := math3d.V3(st*math32.Sin(phi), ct, st*math32.Cos(phi))
			m.Vertices = append(m.Vertices, Vertex{Position: p, Attr: p})
		}
	}

	row := uint32(segments + 1) //nolint:gosec // small tessellation counts
	for r := 0; r < rings; r++ {
		for s := 0; s < segments; s++ {
			a := uint32(r)*row + uint32(s) //nolint:gosec // small tessellation counts
			b, c, d := a+1, a+row+1, a+row
			if r != rings-1 {
				m.Indices = append(m.Indices, a, d, c)
			}
			if r != 0 {
				m.Indices = append(m.Indices, a, c, b)
			}
		}
	}
	return m
}

var builtins = map[string]func() Mesh{
	"cube":        Cube,
	"pyramid":     Pyramid,
	"smooth-cube": SmoothCube,
	"sphere":      func() Mesh { return UVSphere(24, 48) },
}

// ByName returns the built-in mesh with the given name.
func ByName(name string) (Mesh, error) {
	f, ok := builtins[name]
	if !ok {
		return Mesh{}, fmt.Errorf("%w: %q (have %v)", ErrUnknownMesh, name, Names())
	}
	return f(), nil
}

// Names returns the built-in mesh names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
