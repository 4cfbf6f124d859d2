package config

import (
	"flag"
	"time"
)

// Flags holds command-line overrides. Zero values leave the loaded
// configuration untouched.
type Flags struct {
	Config        string
	Backend       string
	Width         int
	Height        int
	Mesh          string
	Trajectory    string
	Steps         int
	Projection    string
	OrthoSize     float64
	PushConstants string
	Timeout       time.Duration
	OutDir        string
	Prefix        string
	Format        string
	Debug         bool
	LogFile       string
}

// Register binds the flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.StringVar(&f.Backend, "backend", "", "Backend: explicit, portable or reference")
	fs.IntVar(&f.Width, "width", 0, "Frame width")
	fs.IntVar(&f.Height, "height", 0, "Frame height")
	fs.StringVar(&f.Mesh, "mesh", "", "Mesh: cube, pyramid, smooth-cube or sphere")
	fs.StringVar(&f.Trajectory, "trajectory", "", "Trajectory: orbit or animated")
	fs.IntVar(&f.Steps, "steps", 0, "Number of frames")
	fs.StringVar(&f.Projection, "projection", "", "Projection: perspective or orthographic")
	fs.Float64Var(&f.OrthoSize, "ortho-size", 0, "Height of the orthographic view volume")
	fs.StringVar(&f.PushConstants, "push-constants", "", "Push constant policy: auto, require or off")
	fs.DurationVar(&f.Timeout, "readback-timeout", 0, "Readback timeout")
	fs.StringVar(&f.OutDir, "out", "", "Output directory")
	fs.StringVar(&f.Prefix, "prefix", "", "Output file prefix")
	fs.StringVar(&f.Format, "format", "", "Output format: png, bmp or tiff")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.LogFile, "log-file", "", "Also log to this rotating file")
}

// Apply overrides cfg with every flag that was set.
func (f *Flags) Apply(cfg *Config) {
	setString(&cfg.Backend, f.Backend)
	setInt(&cfg.Render.Width, f.Width)
	setInt(&cfg.Render.Height, f.Height)
	setString(&cfg.Scene.Mesh, f.Mesh)
	setString(&cfg.Trajectory.Kind, f.Trajectory)
	setInt(&cfg.Trajectory.Steps, f.Steps)
	setString(&cfg.Trajectory.Projection, f.Projection)
	if f.OrthoSize > 0 {
		cfg.Trajectory.OrthoSize = float32(f.OrthoSize)
	}
	setString(&cfg.Render.PushConstants, f.PushConstants)
	if f.Timeout > 0 {
		cfg.Render.ReadbackTimeout = f.Timeout
	}
	setString(&cfg.Output.Dir, f.OutDir)
	setString(&cfg.Output.Prefix, f.Prefix)
	setString(&cfg.Output.Format, f.Format)
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	setString(&cfg.Logging.File, f.LogFile)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
