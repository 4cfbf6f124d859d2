package sequencer

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/offscreen/math3d"
	"github.com/gogpu/offscreen/scene"
)

// Trajectory yields the uniform block of every frame in a sequence.
type Trajectory interface {
	// Len returns the number of frames.
	Len() int

	// Step returns the uniforms of frame i, 0 <= i < Len().
	Step(i int) (scene.Uniforms, error)
}

func checkIndex(t Trajectory, i int) error {
	if i < 0 || i >= t.Len() {
		return fmt.Errorf("%w: step %d outside [0, %d)", ErrInvalidTrajectory, i, t.Len())
	}
	return nil
}

// Orbit moves the camera on a horizontal circle around Target while the
// mesh and the light stay fixed.
//
// Frame i looks from angle StartDeg + i*(EndDeg-StartDeg)/Steps. The end
// angle is exclusive, so {0, 360, 4} yields 0, 90, 180 and 270 degrees.
type Orbit struct {
	StartDeg float32
	EndDeg   float32
	Steps    int

	// Radius is the horizontal distance from Target, Height the vertical
	// offset above it.
	Radius float32
	Height float32
	Target math3d.Vec3

	// Camera supplies the projection. Its Eye and Target are replaced per
	// frame; a zero Up defaults to +Y.
	Camera scene.Camera

	// Aspect is the viewport width over height. Zero means 1.
	Aspect float32

	Model     math3d.Mat4
	Light     scene.Light
	BaseColor math3d.Vec3
}

// DefaultOrbit returns a full turn in four steps around the origin.
func DefaultOrbit() Orbit {
	return Orbit{
		StartDeg:  0,
		EndDeg:    360,
		Steps:     4,
		Radius:    6,
		Height:    4.5,
		Camera:    scene.DefaultCamera(),
		Aspect:    1,
		Model:     math3d.Identity(),
		Light:     scene.DefaultLight(),
		BaseColor: math3d.V3(1, 1, 1),
	}
}

// Len returns Steps.
func (o Orbit) Len() int { return o.Steps }

// Angle returns the camera angle of frame i in degrees.
func (o Orbit) Angle(i int) float32 {
	return o.StartDeg + float32(i)*(o.EndDeg-o.StartDeg)/float32(o.Steps)
}

// Step returns the uniforms of frame i.
func (o Orbit) Step(i int) (scene.Uniforms, error) {
	if o.Steps < 1 {
		return scene.Uniforms{}, fmt.Errorf("%w: orbit needs at least one step", ErrInvalidTrajectory)
	}
	if err := checkIndex(o, i); err != nil {
		return scene.Uniforms{}, err
	}
	a := math3d.Radians(o.Angle(i))
	cam := o.Camera
	cam.Target = o.Target
	cam.Eye = o.Target.Add(math3d.V3(o.Radius*math32.Cos(a), o.Height, o.Radius*math32.Sin(a)))
	if cam.Up == (math3d.Vec3{}) {
		cam.Up = math3d.V3(0, 1, 0)
	}
	return scene.NewUniforms(cam, aspectOr1(o.Aspect), o.Model, o.Light, o.BaseColor), nil
}

// Animated reproduces the batch animation of the experimentation renderer:
// over Steps frames the mesh turns once around Y, the light circles at
// radius 8 while bobbing in height, pulsing in intensity and cycling
// through half the hue wheel, and the camera zooms in and back out.
type Animated struct {
	Steps int

	// Camera supplies the projection. Its Eye is replaced per frame.
	Camera scene.Camera

	// Aspect is the viewport width over height. Zero means 1.
	Aspect float32

	BaseColor math3d.Vec3
}

// DefaultAnimated returns the thirty-frame animation.
func DefaultAnimated() Animated {
	return Animated{
		Steps:     30,
		Camera:    scene.DefaultCamera(),
		Aspect:    1,
		BaseColor: math3d.V3(1, 1, 1),
	}
}

// Len returns Steps.
func (a Animated) Len() int { return a.Steps }

// Step returns the uniforms of frame i.
func (a Animated) Step(i int) (scene.Uniforms, error) {
	if a.Steps < 1 {
		return scene.Uniforms{}, fmt.Errorf("%w: animation needs at least one step", ErrInvalidTrajectory)
	}
	if err := checkIndex(a, i); err != nil {
		return scene.Uniforms{}, err
	}
	t := float32(i) / float32(a.Steps)
	turn := t * 2 * math32.Pi

	light := scene.Light{
		Position: math3d.V3(
			8*math32.Cos(turn),
			5+2*math32.Sin(2*turn),
			8*math32.Sin(turn),
		),
		Color:     math3d.HSV(math32.Mod(0.5*t, 1), 0.8, 1).Clamp01(),
		Intensity: 1 + 0.5*math32.Sin(3*turn),
	}

	zoom := 6 - (1 - math32.Cos(turn))
	cam := a.Camera
	cam.Eye = math3d.V3(zoom, 0.75*zoom, zoom)
	cam.Target = math3d.Vec3{}
	cam.Up = math3d.V3(0, 1, 0)

	return scene.NewUniforms(cam, aspectOr1(a.Aspect), math3d.RotateY(turn), light, a.BaseColor), nil
}

func aspectOr1(a float32) float32 {
	if a <= 0 {
		return 1
	}
	return a
}
