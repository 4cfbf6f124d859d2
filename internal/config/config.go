// Package config loads the command-line renderer settings.
//
// Values are layered: built-in defaults, then a YAML file, then flags.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/internal/imageio"
	"github.com/gogpu/offscreen/math3d"
	"github.com/gogpu/offscreen/scene"
	"github.com/gogpu/offscreen/sequencer"
)

// ErrInvalid is returned by Validate and by the conversion helpers.
var ErrInvalid = errors.New("config: invalid")

// Trajectory kinds.
const (
	TrajectoryOrbit    = "orbit"
	TrajectoryAnimated = "animated"
)

// Config holds all renderer settings.
type Config struct {
	// Backend names a registered backend. Empty selects the first
	// available one in priority order.
	Backend    string           `yaml:"backend"`
	Render     RenderConfig     `yaml:"render"`
	Scene      SceneConfig      `yaml:"scene"`
	Light      LightConfig      `yaml:"light"`
	Trajectory TrajectoryConfig `yaml:"trajectory"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RenderConfig holds pipeline settings.
type RenderConfig struct {
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	ClearColor      [4]float32    `yaml:"clear_color"`
	PushConstants   string        `yaml:"push_constants"` // auto, require or off
	ReadbackTimeout time.Duration `yaml:"readback_timeout"`
}

// SceneConfig selects the mesh.
type SceneConfig struct {
	Mesh           string     `yaml:"mesh"`
	BaseColor      [3]float32 `yaml:"base_color"`
	SphereRings    int        `yaml:"sphere_rings"`
	SphereSegments int        `yaml:"sphere_segments"`
}

// LightConfig describes the point light used by orbit trajectories.
type LightConfig struct {
	Position  [3]float32 `yaml:"position"`
	Color     [3]float32 `yaml:"color"`
	Intensity float32    `yaml:"intensity"`
}

// TrajectoryConfig describes the frame sequence.
type TrajectoryConfig struct {
	Kind     string  `yaml:"kind"`
	StartDeg float32 `yaml:"start_deg"`
	EndDeg   float32 `yaml:"end_deg"`
	Steps    int     `yaml:"steps"`
	Radius   float32 `yaml:"radius"`
	Height   float32 `yaml:"height"`
	FovDeg   float32 `yaml:"fov_deg"`

	// Projection is perspective or orthographic. OrthoSize is the full
	// height of the orthographic view volume in world units.
	Projection string  `yaml:"projection"`
	OrthoSize  float32 `yaml:"ortho_size"`
}

// OutputConfig controls file naming and encoding.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
	Digits int    `yaml:"digits"`
	Start  int    `yaml:"start"`
	Format string `yaml:"format"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the settings of the original batch renderer: a
// 1024x1024 cube seen from four sides.
func Default() *Config {
	pc := offscreen.DefaultPipelineConfig()
	light := scene.DefaultLight()
	return &Config{
		Render: RenderConfig{
			Width:           pc.Width,
			Height:          pc.Height,
			ClearColor:      [4]float32{pc.ClearColor.X, pc.ClearColor.Y, pc.ClearColor.Z, pc.ClearColor.W},
			PushConstants:   pc.PushConstants.String(),
			ReadbackTimeout: offscreen.DefaultReadbackTimeout,
		},
		Scene: SceneConfig{
			Mesh:           "cube",
			BaseColor:      [3]float32{1, 1, 1},
			SphereRings:    24,
			SphereSegments: 48,
		},
		Light: LightConfig{
			Position:  vec(light.Position),
			Color:     vec(light.Color),
			Intensity: light.Intensity,
		},
		Trajectory: TrajectoryConfig{
			Kind:       TrajectoryOrbit,
			EndDeg:     360,
			Steps:      4,
			Radius:     6,
			Height:     4.5,
			FovDeg:     45,
			Projection: scene.Perspective.String(),
			OrthoSize:  10,
		},
		Output: OutputConfig{
			Dir:    ".",
			Prefix: "cube_",
			Digits: 3,
			Format: "png",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func vec(v math3d.Vec3) [3]float32 { return [3]float32{v.X, v.Y, v.Z} }

func v3(a [3]float32) math3d.Vec3 { return math3d.V3(a[0], a[1], a[2]) }

func v4(a [4]float32) math3d.Vec4 { return math3d.V4(a[0], a[1], a[2], a[3]) }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// Validate checks every section. It reports the first problem found.
func (c *Config) Validate() error {
	if _, err := c.Pipeline(); err != nil {
		return err
	}
	if _, err := c.Mesh(); err != nil {
		return err
	}
	if _, err := c.Sequence(1); err != nil {
		return err
	}
	if _, err := c.Format(); err != nil {
		return err
	}
	if err := c.Namer().Validate(c.Trajectory.Steps); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return invalid("logging level %q", c.Logging.Level)
	}
	return nil
}

// Pipeline returns the renderer configuration.
func (c *Config) Pipeline() (offscreen.PipelineConfig, error) {
	policy, err := offscreen.ParsePushConstantPolicy(c.Render.PushConstants)
	if err != nil {
		return offscreen.PipelineConfig{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	pc := offscreen.PipelineConfig{
		Width:           c.Render.Width,
		Height:          c.Render.Height,
		ClearColor:      v4(c.Render.ClearColor),
		PushConstants:   policy,
		ReadbackTimeout: c.Render.ReadbackTimeout,
	}
	if err := pc.Validate(); err != nil {
		return offscreen.PipelineConfig{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return pc, nil
}

// Mesh returns the configured built-in mesh.
func (c *Config) Mesh() (scene.Mesh, error) {
	if c.Scene.Mesh == "sphere" {
		if c.Scene.SphereRings < 2 || c.Scene.SphereSegments < 3 {
			return scene.Mesh{}, invalid("sphere needs at least 2 rings and 3 segments")
		}
		return scene.UVSphere(c.Scene.SphereRings, c.Scene.SphereSegments), nil
	}
	m, err := scene.ByName(c.Scene.Mesh)
	if err != nil {
		return scene.Mesh{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return m, nil
}

// Sequence returns the configured trajectory for a viewport of the given
// aspect ratio.
func (c *Config) Sequence(aspect float32) (sequencer.Trajectory, error) {
	t := c.Trajectory
	if t.Steps < 1 {
		return nil, invalid("trajectory steps %d < 1", t.Steps)
	}
	proj, err := scene.ParseProjection(t.Projection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch proj {
	case scene.Perspective:
		if t.FovDeg <= 0 || t.FovDeg >= 180 {
			return nil, invalid("field of view %v outside (0, 180)", t.FovDeg)
		}
	case scene.Orthographic:
		if !(t.OrthoSize > 0) {
			return nil, invalid("ortho size %v <= 0", t.OrthoSize)
		}
	}
	base := v3(c.Scene.BaseColor)
	if !base.In01() {
		return nil, invalid("base color %v outside [0, 1]", c.Scene.BaseColor)
	}
	cam := scene.DefaultCamera()
	cam.Projection = proj
	cam.FovY = math3d.Radians(t.FovDeg)
	cam.OrthoSize = t.OrthoSize

	switch t.Kind {
	case TrajectoryOrbit:
		light := scene.Light{Position: v3(c.Light.Position), Color: v3(c.Light.Color), Intensity: c.Light.Intensity}
		if err := light.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if t.Radius <= 0 {
			return nil, invalid("orbit radius %v <= 0", t.Radius)
		}
		return sequencer.Orbit{
			StartDeg:  t.StartDeg,
			EndDeg:    t.EndDeg,
			Steps:     t.Steps,
			Radius:    t.Radius,
			Height:    t.Height,
			Camera:    cam,
			Aspect:    aspect,
			Model:     math3d.Identity(),
			Light:     light,
			BaseColor: base,
		}, nil
	case TrajectoryAnimated:
		return sequencer.Animated{Steps: t.Steps, Camera: cam, Aspect: aspect, BaseColor: base}, nil
	default:
		return nil, invalid("trajectory kind %q", t.Kind)
	}
}

// Format returns the output image format.
func (c *Config) Format() (imageio.Format, error) {
	f, err := imageio.ParseFormat(c.Output.Format)
	if err != nil {
		return f, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return f, nil
}

// Namer returns the output file namer. The extension follows the format.
func (c *Config) Namer() sequencer.Namer {
	f, _ := imageio.ParseFormat(c.Output.Format)
	return sequencer.Namer{
		Prefix: c.Output.Prefix,
		Digits: c.Output.Digits,
		Start:  c.Output.Start,
		Ext:    f.Ext(),
	}
}
