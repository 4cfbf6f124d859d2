package shading

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/offscreen/math3d"
	"github.com/gogpu/offscreen/scene"
)

// Lighting constants. The WGSL template is rendered from these values.
const (
	Ambient          float32 = 0.2
	AttenLinear      float32 = 0.09
	AttenQuadratic   float32 = 0.032
	Shininess        float32 = 32
	SpecularStrength float32 = 0.5
)

// Project transforms an object-space position to clip space.
func Project(position math3d.Vec3, mvp math3d.Mat4) math3d.Vec4 {
	return mvp.MulVec4(math3d.V4(position.X, position.Y, position.Z, 1))
}

// WorldPosition transforms an object-space position to world space.
func WorldPosition(position math3d.Vec3, model math3d.Mat4) math3d.Vec3 {
	return model.MulPoint(position)
}

// Attenuation is the quadratic distance falloff 1/(1 + 0.09d + 0.032d²).
func Attenuation(d float32) float32 {
	return 1 / (1 + AttenLinear*d + AttenQuadratic*d*d)
}

// Diffuse is the Lambert factor max(n·l, 0) for unit vectors n and l.
func Diffuse(normal, lightDir math3d.Vec3) float32 {
	return math32.Max(normal.Dot(lightDir), 0)
}

// Specular is the Phong factor max(v·reflect(-l, n), 0)^Shininess.
func Specular(normal, lightDir, viewDir math3d.Vec3) float32 {
	r := lightDir.Neg().Reflect(normal)
	return math32.Pow(math32.Max(viewDir.Dot(r), 0), Shininess)
}

// FlatNormal returns the unit normal of triangle p0 p1 p2, facing the side
// from which the triangle appears counter-clockwise.
func FlatNormal(p0, p1, p2 math3d.Vec3) math3d.Vec3 {
	return p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
}

// ReconstructFlatNormal builds a face normal from the screen-space
// derivatives of the world position, with x to the right and y down. It
// agrees with FlatNormal for front faces.
func ReconstructFlatNormal(dpdx, dpdy math3d.Vec3) math3d.Vec3 {
	return dpdy.Cross(dpdx).Normalize()
}

// ShadeFlat evaluates the flat mode: ambient plus attenuated diffuse, with
// albedo = base color × vertex color.
func ShadeFlat(normal, worldPos, vertexColor math3d.Vec3, u scene.Uniforms) math3d.Vec3 {
	radiance := u.Light.Color.Scale(u.Light.Intensity)
	toLight := u.Light.Position.Sub(worldPos)
	lightDir := toLight.Normalize()
	albedo := u.BaseColor.Mul(vertexColor)

	diff := Diffuse(normal, lightDir)
	direct := radiance.Mul(albedo).Scale(diff * Attenuation(toLight.Len()))
	return albedo.Scale(Ambient).Add(direct)
}

// ShadeSmooth evaluates the smooth mode: ambient, diffuse and specular with
// no attenuation. normal is the interpolated world-space vertex normal.
func ShadeSmooth(normal, worldPos math3d.Vec3, u scene.Uniforms) math3d.Vec3 {
	n := normal.Normalize()
	radiance := u.Light.Color.Scale(u.Light.Intensity)
	lightDir := u.Light.Position.Sub(worldPos).Normalize()
	viewDir := u.Eye.Sub(worldPos).Normalize()

	ambient := u.BaseColor.Scale(Ambient)
	diffuse := radiance.Mul(u.BaseColor).Scale(Diffuse(n, lightDir))
	specular := radiance.Scale(SpecularStrength * Specular(n, lightDir, viewDir))
	return ambient.Add(diffuse).Add(specular)
}

// Pixel quantizes a linear color the way an RGBA8Unorm target stores it.
// Alpha is always opaque.
func Pixel(c math3d.Vec3) [4]uint8 {
	return [4]uint8{math3d.Quantize8(c.X), math3d.Quantize8(c.Y), math3d.Quantize8(c.Z), 255}
}
