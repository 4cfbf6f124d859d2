package math3d

import "github.com/chewxy/math32"

// Mat4 is a 4x4 matrix stored column-major: element (row r, column c) is
// at index c*4+r.
type Mat4 [16]float32

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at row r, column c.
func (m Mat4) At(r, c int) float32 {
	return m[c*4+r]
}

// Mul returns the matrix product m · n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var s float32
			for k := 0; k < 4; k++ {
				s += m[k*4+r] * n[c*4+k]
			}
			out[c*4+r] = s
		}
	}
	return out
}

// MulVec4 returns m · v.
func (m Mat4) MulVec4(v Vec4) Vec4 {
	return Vec4{
		X: m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12]*v.W,
		Y: m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13]*v.W,
		Z: m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14]*v.W,
		W: m[3]*v.X + m[7]*v.Y + m[11]*v.Z + m[15]*v.W,
	}
}

// MulPoint transforms p as a point (w = 1) and drops w without dividing.
func (m Mat4) MulPoint(p Vec3) Vec3 {
	return m.MulVec4(Vec4{X: p.X, Y: p.Y, Z: p.Z, W: 1}).XYZ()
}

// MulDir transforms d as a direction (w = 0).
func (m Mat4) MulDir(d Vec3) Vec3 {
	return m.MulVec4(Vec4{X: d.X, Y: d.Y, Z: d.Z, W: 0}).XYZ()
}

// Transpose returns the transposed matrix.
func (m Mat4) Transpose() Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[r*4+c] = m[c*4+r]
		}
	}
	return out
}

// Finite reports whether no element is NaN or infinite.
func (m Mat4) Finite() bool {
	for _, v := range m {
		if !finite(v) {
			return false
		}
	}
	return true
}

// ApproxEqual reports whether every element differs by at most eps.
func (m Mat4) ApproxEqual(n Mat4, eps float32) bool {
	for i := range m {
		if math32.Abs(m[i]-n[i]) > eps {
			return false
		}
	}
	return true
}

// IsSimilarity reports whether the upper 3x3 of m is an orthogonal matrix
// times one nonzero scale factor, within relative tolerance eps. Under such
// a matrix MulDir followed by Normalize maps surface normals exactly as the
// inverse transpose does.
func (m Mat4) IsSimilarity(eps float32) bool {
	cols := [3]Vec3{V3(m[0], m[1], m[2]), V3(m[4], m[5], m[6]), V3(m[8], m[9], m[10])}
	s := cols[0].Dot(cols[0])
	if !(s > 0) || !finite(s) {
		return false
	}
	for i := range cols {
		if math32.Abs(cols[i].Dot(cols[i])-s) > eps*s {
			return false
		}
		for j := i + 1; j < len(cols); j++ {
			if math32.Abs(cols[i].Dot(cols[j])) > eps*s {
				return false
			}
		}
	}
	return true
}

// Translate returns a translation matrix.
func Translate(t Vec3) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = t.X, t.Y, t.Z
	return m
}

// Scale returns a scaling matrix.
func Scale(s Vec3) Mat4 {
	m := Identity()
	m[0], m[5], m[10] = s.X, s.Y, s.Z
	return m
}

// RotateX returns a rotation about the X axis (angle in radians).
func RotateX(angle float32) Mat4 {
	s, c := math32.Sin(angle), math32.Cos(angle)
	m := Identity()
	m[5], m[6] = c, s
	m[9], m[10] = -s, c
	return m
}

// RotateY returns a rotation about the Y axis (angle in radians).
func RotateY(angle float32) Mat4 {
	s, c := math32.Sin(angle), math32.Cos(angle)
	m := Identity()
	m[0], m[2] = c, -s
	m[8], m[10] = s, c
	return m
}

// RotateZ returns a rotation about the Z axis (angle in radians).
func RotateZ(angle float32) Mat4 {
	s, c := math32.Sin(angle), math32.Cos(angle)
	m := Identity()
	m[0], m[1] = c, s
	m[4], m[5] = -s, c
	return m
}

// Perspective returns a right-handed perspective projection mapping view
// depth [near, far] to clip depth [0, 1]. fovY is in radians.
func Perspective(fovY, aspect, near, far float32) Mat4 {
	h := 1 / math32.Tan(fovY/2)
	w := h / aspect
	r := far / (near - far)
	return Mat4{
		w, 0, 0, 0,
		0, h, 0, 0,
		0, 0, r, -1,
		0, 0, r * near, 0,
	}
}

// Orthographic returns a right-handed orthographic projection mapping view
// depth [near, far] to clip depth [0, 1].
func Orthographic(left, right, bottom, top, near, far float32) Mat4 {
	rw := 1 / (right - left)
	rh := 1 / (top - bottom)
	r := 1 / (near - far)
	return Mat4{
		2 * rw, 0, 0, 0,
		0, 2 * rh, 0, 0,
		0, 0, r, 0,
		-(left + right) * rw, -(top + bottom) * rh, r * near, 1,
	}
}

// LookAt returns a right-handed view matrix placing the camera at eye,
// looking at center, with up as the approximate up direction.
func LookAt(eye, center, up Vec3) Mat4 {
	f := center.Sub(eye).Normalize()
	s := f.Cross(up).Normalize()
	u := s.Cross(f)
	return Mat4{
		s.X, u.X, -f.X, 0,
		s.Y, u.Y, -f.Y, 0,
		s.Z, u.Z, -f.Z, 0,
		-s.Dot(eye), -u.Dot(eye), f.Dot(eye), 1,
	}
}

// Radians converts degrees to radians.
func Radians(deg float32) float32 {
	return deg * math32.Pi / 180
}
