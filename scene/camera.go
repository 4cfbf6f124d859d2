package scene

import (
	"errors"
	"fmt"

	"github.com/gogpu/offscreen/math3d"
)

// Projection selects the camera projection.
type Projection uint8

const (
	// Perspective is a symmetric perspective frustum defined by FovY.
	Perspective Projection = iota

	// Orthographic is a box of height OrthoSize centered on the view axis.
	Orthographic
)

// String returns the projection name.
func (p Projection) String() string {
	switch p {
	case Perspective:
		return "perspective"
	case Orthographic:
		return "orthographic"
	default:
		return fmt.Sprintf("Projection(%d)", uint8(p))
	}
}

// ErrUnknownProjection is returned by ParseProjection.
var ErrUnknownProjection = errors.New("scene: unknown projection")

// ParseProjection parses "perspective" or "orthographic". The empty string
// is Perspective.
func ParseProjection(s string) (Projection, error) {
	switch s {
	case "", "perspective":
		return Perspective, nil
	case "orthographic":
		return Orthographic, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProjection, s)
}

// Camera is a right-handed look-at camera.
type Camera struct {
	Eye    math3d.Vec3
	Target math3d.Vec3
	Up     math3d.Vec3

	Projection Projection

	// FovY is the vertical field of view in radians (Perspective only).
	FovY float32

	// OrthoSize is the full height of the view volume (Orthographic only).
	OrthoSize float32

	Near float32
	Far  float32
}

// DefaultCamera returns a 45° perspective camera at (6, 4.5, 6) looking at
// the origin.
func DefaultCamera() Camera {
	return Camera{
		Eye:        math3d.V3(6, 4.5, 6),
		Up:         math3d.V3(0, 1, 0),
		Projection: Perspective,
		FovY:       math3d.Radians(45),
		OrthoSize:  10,
		Near:       0.1,
		Far:        100,
	}
}

// View returns the world-to-view matrix.
func (c Camera) View() math3d.Mat4 {
	return math3d.LookAt(c.Eye, c.Target, c.Up)
}

// Proj returns the view-to-clip matrix for the given aspect ratio.
func (c Camera) Proj(aspect float32) math3d.Mat4 {
	if c.Projection == Orthographic {
		h := c.OrthoSize / 2
		w := h * aspect
		return math3d.Orthographic(-w, w, -h, h, c.Near, c.Far)
	}
	return math3d.Perspective(c.FovY, aspect, c.Near, c.Far)
}

// ViewProj returns Proj · View.
func (c Camera) ViewProj(aspect float32) math3d.Mat4 {
	return c.Proj(aspect).Mul(c.View())
}
