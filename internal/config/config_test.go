package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/internal/imageio"
	"github.com/gogpu/offscreen/scene"
	"github.com/gogpu/offscreen/sequencer"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Render.Width != 1024 || cfg.Render.Height != 1024 {
		t.Errorf("size = %dx%d, want 1024x1024", cfg.Render.Width, cfg.Render.Height)
	}
	if cfg.Trajectory.Kind != TrajectoryOrbit || cfg.Trajectory.Steps != 4 {
		t.Errorf("trajectory = %+v", cfg.Trajectory)
	}
	if got := cfg.Namer().Name(0); got != "cube_000.png" {
		t.Errorf("first file = %q", got)
	}
	if cfg.Render.ReadbackTimeout != offscreen.DefaultReadbackTimeout {
		t.Errorf("readback timeout = %v", cfg.Render.ReadbackTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offscreen.yaml")
	yamlContent := `
backend: reference
render:
  width: 320
  height: 200
  push_constants: "off"
  readback_timeout: 2s
scene:
  mesh: smooth-cube
  base_color: [0.5, 0.5, 1]
trajectory:
  kind: animated
  steps: 12
output:
  dir: frames
  format: tiff
logging:
  level: debug
  file: run.log
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	pc, err := cfg.Pipeline()
	if err != nil {
		t.Fatal(err)
	}
	if pc.Width != 320 || pc.Height != 200 || pc.PushConstants != offscreen.PushConstantsOff {
		t.Errorf("pipeline = %+v", pc)
	}
	if pc.ReadbackTimeout != 2*time.Second {
		t.Errorf("readback timeout = %v", pc.ReadbackTimeout)
	}

	mesh, err := cfg.Mesh()
	if err != nil {
		t.Fatal(err)
	}
	if mesh.Layout != scene.LayoutPositionNormal {
		t.Errorf("mesh layout = %v", mesh.Layout)
	}

	traj, err := cfg.Sequence(pc.Aspect())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := traj.(sequencer.Animated); !ok || traj.Len() != 12 {
		t.Errorf("trajectory = %T with %d steps", traj, traj.Len())
	}

	if f, _ := cfg.Format(); f != imageio.TIFF {
		t.Errorf("format = %v", f)
	}
	if got := cfg.Namer().Name(3); got != "cube_003.tif" {
		t.Errorf("name = %q", got)
	}

	// Untouched sections keep their defaults.
	if cfg.Light.Intensity != 1 || cfg.Output.Digits != 3 {
		t.Errorf("defaults lost: light %+v, output %+v", cfg.Light, cfg.Output)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offscreen.yaml")
	if err := os.WriteFile(path, []byte("render:\n  widht: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offscreen.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Render.Width != 1024 {
		t.Errorf("width = %d", cfg.Render.Width)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/offscreen.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "offscreen.yaml")
	want := Default()
	want.Render.Width = 640
	want.Trajectory.Kind = TrajectoryAnimated
	if err := want.SaveTo(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Render != want.Render || got.Trajectory != want.Trajectory || got.Output != want.Output {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Render.Width = 0 }},
		{"clear color", func(c *Config) { c.Render.ClearColor[0] = 2 }},
		{"policy", func(c *Config) { c.Render.PushConstants = "sometimes" }},
		{"mesh", func(c *Config) { c.Scene.Mesh = "teapot" }},
		{"sphere", func(c *Config) { c.Scene.Mesh = "sphere"; c.Scene.SphereRings = 1 }},
		{"base color", func(c *Config) { c.Scene.BaseColor[1] = -0.1 }},
		{"light", func(c *Config) { c.Light.Intensity = -1 }},
		{"steps", func(c *Config) { c.Trajectory.Steps = 0 }},
		{"kind", func(c *Config) { c.Trajectory.Kind = "spiral" }},
		{"radius", func(c *Config) { c.Trajectory.Radius = 0 }},
		{"fov", func(c *Config) { c.Trajectory.FovDeg = 180 }},
		{"projection", func(c *Config) { c.Trajectory.Projection = "fisheye" }},
		{"ortho size", func(c *Config) { c.Trajectory.Projection = "orthographic"; c.Trajectory.OrthoSize = 0 }},
		{"format", func(c *Config) { c.Output.Format = "gif" }},
		{"digits", func(c *Config) { c.Output.Digits = 0 }},
		{"prefix", func(c *Config) { c.Output.Prefix = "../x" }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestFlagsOverride(t *testing.T) {
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.Register(fs)
	err := fs.Parse([]string{
		"-backend", "portable",
		"-width", "200",
		"-steps", "8",
		"-format", "bmp",
		"-readback-timeout", "750ms",
		"-debug",
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	f.Apply(cfg)
	if cfg.Backend != "portable" || cfg.Render.Width != 200 || cfg.Render.Height != 1024 {
		t.Errorf("render = %+v, backend %q", cfg.Render, cfg.Backend)
	}
	if cfg.Trajectory.Steps != 8 || cfg.Output.Format != "bmp" || cfg.Logging.Level != "debug" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Render.ReadbackTimeout != 750*time.Millisecond {
		t.Errorf("timeout = %v", cfg.Render.ReadbackTimeout)
	}
	if cfg.Scene.Mesh != "cube" {
		t.Errorf("unset flag changed mesh to %q", cfg.Scene.Mesh)
	}
}

func TestOrthographicProjection(t *testing.T) {
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.Register(fs)
	if err := fs.Parse([]string{"-projection", "orthographic", "-ortho-size", "7.5"}); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	// An orthographic camera ignores the field of view.
	cfg.Trajectory.FovDeg = 0
	f.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	for _, kind := range []string{TrajectoryOrbit, TrajectoryAnimated} {
		cfg.Trajectory.Kind = kind
		traj, err := cfg.Sequence(1)
		if err != nil {
			t.Fatal(err)
		}
		var cam scene.Camera
		switch tr := traj.(type) {
		case sequencer.Orbit:
			cam = tr.Camera
		case sequencer.Animated:
			cam = tr.Camera
		default:
			t.Fatalf("%s: trajectory %T", kind, traj)
		}
		if cam.Projection != scene.Orthographic || cam.OrthoSize != 7.5 {
			t.Errorf("%s: camera %v size %v", kind, cam.Projection, cam.OrthoSize)
		}
		if _, err := traj.Step(0); err != nil {
			t.Errorf("%s: Step(0) = %v", kind, err)
		}
	}
}

func TestFindFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if got := FindFile(); got != "" {
		t.Errorf("FindFile() = %q, want none", got)
	}
	if err := os.WriteFile(FileName, []byte("backend: reference\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := FindFile(); got != FileName {
		t.Errorf("FindFile() = %q, want %q", got, FileName)
	}
}
