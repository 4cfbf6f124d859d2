package reference

import (
	"github.com/gogpu/offscreen/internal/shading"
	"github.com/gogpu/offscreen/math3d"
)

// vertex is a post-vertex-stage vertex: clip position plus the two
// varyings the fragment stage consumes.
type vertex struct {
	clip  math3d.Vec4
	world math3d.Vec3
	attr  math3d.Vec3
}

func lerpVertex(a, b vertex, t float32) vertex {
	return vertex{
		clip: math3d.Vec4{
			X: a.clip.X + (b.clip.X-a.clip.X)*t,
			Y: a.clip.Y + (b.clip.Y-a.clip.Y)*t,
			Z: a.clip.Z + (b.clip.Z-a.clip.Z)*t,
			W: a.clip.W + (b.clip.W-a.clip.W)*t,
		},
		world: a.world.Lerp(b.world, t),
		attr:  a.attr.Lerp(b.attr, t),
	}
}

// fragment carries interpolated varyings and, when requested, the
// screen-space derivatives of the world position.
type fragment struct {
	world, attr math3d.Vec3
	dpdx, dpdy  math3d.Vec3
}

// target is an RGBA8 color attachment with a Depth32Float attachment.
type target struct {
	width, height int
	color         []uint8
	depth         []float32
}

func newTarget(width, height int) *target {
	return &target{
		width:  width,
		height: height,
		color:  make([]uint8, width*height*4),
		depth:  make([]float32, width*height),
	}
}

func (t *target) clear(c math3d.Vec4) {
	px := [4]uint8{math3d.Quantize8(c.X), math3d.Quantize8(c.Y), math3d.Quantize8(c.Z), math3d.Quantize8(c.W)}
	for i := 0; i < len(t.color); i += 4 {
		copy(t.color[i:i+4], px[:])
	}
	for i := range t.depth {
		t.depth[i] = 1
	}
}

// clipPolygon clips against 0 <= z <= w, the WebGPU depth range. Lateral
// clipping is left to the scissor in drawTriangle.
func clipPolygon(poly []vertex) []vertex {
	planes := [2]func(v vertex) float32{
		func(v vertex) float32 { return v.clip.Z },
		func(v vertex) float32 { return v.clip.W - v.clip.Z },
	}
	for _, dist := range planes {
		if len(poly) == 0 {
			return nil
		}
		out := make([]vertex, 0, len(poly)+1)
		for i, cur := range poly {
			prev := poly[(i+len(poly)-1)%len(poly)]
			dc, dp := dist(cur), dist(prev)
			if dc >= 0 {
				if dp < 0 {
					out = append(out, lerpVertex(prev, cur, dp/(dp-dc)))
				}
				out = append(out, cur)
			} else if dp >= 0 {
				out = append(out, lerpVertex(prev, cur, dp/(dp-dc)))
			}
		}
		poly = out
	}
	return poly
}

// screenVertex is a vertex after perspective division and viewport mapping.
type screenVertex struct {
	x, y, z float32
	invW    float32
	v       vertex
}

func (t *target) toScreen(v vertex) screenVertex {
	invW := 1 / v.clip.W
	return screenVertex{
		x:    (v.clip.X*invW*0.5 + 0.5) * float32(t.width),
		y:    (0.5 - v.clip.Y*invW*0.5) * float32(t.height),
		z:    v.clip.Z * invW,
		invW: invW,
		v:    v,
	}
}

func edge(a, b screenVertex, px, py float32) float32 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// topLeft reports whether edge a→b of a positively oriented triangle owns
// the pixels lying exactly on it.
func topLeft(a, b screenVertex) bool {
	dy := b.y - a.y
	return dy < 0 || (dy == 0 && b.x > a.x)
}

// screenTri is a clipped, front-facing triangle in framebuffer space,
// wound so that all edge functions are positive inside.
type screenTri struct {
	a, b, c    screenVertex
	area       float32
	minX, maxX int
	minY, maxY int
}

// setup clips tri, culls back faces (counter-clockwise front in NDC) and
// appends the resulting screen triangles to dst.
func (t *target) setup(dst []screenTri, tri [3]vertex) []screenTri {
	poly := clipPolygon(tri[:])
	if len(poly) < 3 {
		return dst
	}
	sv := make([]screenVertex, len(poly))
	for i, v := range poly {
		sv[i] = t.toScreen(v)
	}
	for i := 1; i+1 < len(sv); i++ {
		a, b, c := sv[0], sv[i], sv[i+1]
		// Counter-clockwise in NDC (y up) is negative area with y down.
		area := edge(a, b, c.x, c.y)
		if area >= 0 {
			continue
		}
		b, c = c, b
		dst = append(dst, screenTri{
			a:    a,
			b:    b,
			c:    c,
			area: -area,
			minX: max(int(min(a.x, b.x, c.x)), 0),
			maxX: min(int(max(a.x, b.x, c.x))+1, t.width-1),
			minY: max(int(min(a.y, b.y, c.y)), 0),
			maxY: min(int(max(a.y, b.y, c.y))+1, t.height-1),
		})
	}
	return dst
}

// drawTriangle rasterizes one triangle over the whole target.
func (t *target) drawTriangle(tri [3]vertex, derivatives bool, shade func(fragment) math3d.Vec3) {
	for _, st := range t.setup(nil, tri) {
		t.rasterize(st, 0, t.height, derivatives, shade)
	}
}

// rasterize fills the rows [y0, y1) of st with the top-left rule and a Less
// depth test, writing the color returned by shade. Calls on disjoint row
// ranges touch disjoint memory.
func (t *target) rasterize(st screenTri, y0, y1 int, derivatives bool, shade func(fragment) math3d.Vec3) {
	a, b, c, area := st.a, st.b, st.c, st.area
	minX, maxX := st.minX, st.maxX
	minY := max(st.minY, y0)
	maxY := min(st.maxY, y1-1)
	if minY > maxY {
		return
	}

	tlBC, tlCA, tlAB := topLeft(b, c), topLeft(c, a), topLeft(a, b)

	// interp evaluates the perspective-correct world position and attribute
	// at any point of the triangle's plane, inside or not.
	interp := func(px, py float32) (world, attr math3d.Vec3) {
		l0 := edge(b, c, px, py) / area
		l1 := edge(c, a, px, py) / area
		l2 := edge(a, b, px, py) / area
		q0, q1, q2 := l0*a.invW, l1*b.invW, l2*c.invW
		s := 1 / (q0 + q1 + q2)
		q0, q1, q2 = q0*s, q1*s, q2*s
		world = a.v.world.Scale(q0).Add(b.v.world.Scale(q1)).Add(c.v.world.Scale(q2))
		attr = a.v.attr.Scale(q0).Add(b.v.attr.Scale(q1)).Add(c.v.attr.Scale(q2))
		return world, attr
	}

	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5
			w0 := edge(b, c, px, py)
			w1 := edge(c, a, px, py)
			w2 := edge(a, b, px, py)
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			if (w0 == 0 && !tlBC) || (w1 == 0 && !tlCA) || (w2 == 0 && !tlAB) {
				continue
			}

			z := (w0*a.z + w1*b.z + w2*c.z) / area
			di := y*t.width + x
			if !(z < t.depth[di]) {
				continue
			}

			var f fragment
			f.world, f.attr = interp(px, py)
			if derivatives {
				wx, _ := interp(px+1, py)
				wy, _ := interp(px, py+1)
				f.dpdx = wx.Sub(f.world)
				f.dpdy = wy.Sub(f.world)
			}

			t.depth[di] = z
			p := shading.Pixel(shade(f))
			copy(t.color[di*4:di*4+4], p[:])
		}
	}
}
