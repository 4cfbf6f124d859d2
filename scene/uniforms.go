package scene

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/offscreen/math3d"
)

// Light is a single point light in world space.
type Light struct {
	Position math3d.Vec3

	// Color is linear RGB, each channel in [0, 1].
	Color math3d.Vec3

	// Intensity scales Color. It must not be negative.
	Intensity float32
}

// DefaultLight returns a white light of intensity 1 above and in front of
// the origin.
func DefaultLight() Light {
	return Light{
		Position:  math3d.V3(4, 5, 4),
		Color:     math3d.V3(1, 1, 1),
		Intensity: 1,
	}
}

// Validate checks that the light is finite, its color is normalized and its
// intensity is non-negative.
func (l Light) Validate() error {
	if !l.Position.Finite() || !l.Color.Finite() || !finite(l.Intensity) {
		return fmt.Errorf("%w: light", ErrNonFinite)
	}
	if !l.Color.In01() {
		return fmt.Errorf("scene: light color %v outside [0,1]", l.Color)
	}
	if l.Intensity < 0 {
		return fmt.Errorf("scene: negative light intensity %v", l.Intensity)
	}
	return nil
}

// ErrNonUniformScale is returned for a model matrix that scales
// non-uniformly or shears. Smooth-shaded normals are transformed by the
// model matrix itself, which is only correct for rotation, uniform scale
// and translation.
var ErrNonUniformScale = errors.New("scene: model matrix scales non-uniformly")

// similarityTolerance is the relative tolerance of the model matrix check.
const similarityTolerance = 1e-3

// Transforms is the per-frame transform set.
type Transforms struct {
	// Model must be a similarity: rotation, uniform scale and translation.
	Model    math3d.Mat4
	ViewProj math3d.Mat4
}

// MVP returns ViewProj · Model. It is the only way the composed matrix is
// produced, so it can never drift from its factors.
func (t Transforms) MVP() math3d.Mat4 {
	return t.ViewProj.Mul(t.Model)
}

// Uniforms is the logical uniform block of one frame.
type Uniforms struct {
	Transforms Transforms
	Light      Light

	// BaseColor tints the object. Flat-shaded meshes multiply it with the
	// vertex color.
	BaseColor math3d.Vec3

	// Eye is the camera position in world space, used for specular shading.
	Eye math3d.Vec3
}

// NewUniforms assembles a uniform block from a camera, a model matrix and
// a light.
func NewUniforms(cam Camera, aspect float32, model math3d.Mat4, light Light, base math3d.Vec3) Uniforms {
	return Uniforms{
		Transforms: Transforms{Model: model, ViewProj: cam.ViewProj(aspect)},
		Light:      light,
		BaseColor:  base,
		Eye:        cam.Eye,
	}
}

// Validate checks every field of the block.
func (u Uniforms) Validate() error {
	if !u.Transforms.Model.Finite() || !u.Transforms.ViewProj.Finite() {
		return fmt.Errorf("%w: transforms", ErrNonFinite)
	}
	if !u.Transforms.Model.IsSimilarity(similarityTolerance) {
		return ErrNonUniformScale
	}
	if err := u.Light.Validate(); err != nil {
		return err
	}
	if !u.BaseColor.Finite() || !u.Eye.Finite() {
		return fmt.Errorf("%w: base color or eye", ErrNonFinite)
	}
	if !u.BaseColor.In01() {
		return fmt.Errorf("scene: base color %v outside [0,1]", u.BaseColor)
	}
	return nil
}

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}
