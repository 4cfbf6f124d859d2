package offscreen

import (
	"errors"
	"fmt"
	"time"

	"github.com/chewxy/math32"

	"github.com/gogpu/offscreen/math3d"
	"github.com/gogpu/offscreen/scene"
)

// MaxDimension bounds the width and height of a render target.
const MaxDimension = 8192

// DefaultReadbackTimeout bounds how long a backend waits for a readback
// mapping before reporting a ReadbackError.
const DefaultReadbackTimeout = 5 * time.Second

// ErrInvalidConfig is returned for pipeline configurations no backend can
// satisfy.
var ErrInvalidConfig = errors.New("offscreen: invalid pipeline config")

// PushConstantPolicy controls whether a backend transmits the uniform block
// as push constants.
type PushConstantPolicy uint8

const (
	// PushConstantsAuto uses push constants when the device supports them and
	// the block fits the device limit, and a uniform buffer otherwise.
	PushConstantsAuto PushConstantPolicy = iota

	// PushConstantsRequire fails renderer creation when push constants can
	// not carry the block.
	PushConstantsRequire

	// PushConstantsOff always uses a uniform buffer.
	PushConstantsOff
)

// String returns the policy name as used in configuration files.
func (p PushConstantPolicy) String() string {
	switch p {
	case PushConstantsAuto:
		return "auto"
	case PushConstantsRequire:
		return "require"
	case PushConstantsOff:
		return "off"
	default:
		return fmt.Sprintf("PushConstantPolicy(%d)", uint8(p))
	}
}

// ParsePushConstantPolicy parses "auto", "require" or "off".
func ParsePushConstantPolicy(s string) (PushConstantPolicy, error) {
	switch s {
	case "", "auto":
		return PushConstantsAuto, nil
	case "require":
		return PushConstantsRequire, nil
	case "off":
		return PushConstantsOff, nil
	}
	return 0, fmt.Errorf("%w: unknown push constant policy %q", ErrInvalidConfig, s)
}

// PipelineConfig holds the fixed-function state chosen at renderer creation.
type PipelineConfig struct {
	Width  int
	Height int

	// ClearColor is the RGBA color of pixels not covered by the mesh.
	ClearColor math3d.Vec4

	// PushConstants is honored by backends that can transmit the uniform
	// block as push constants. Others always use a uniform buffer.
	PushConstants PushConstantPolicy

	// ReadbackTimeout bounds the wait for a mapped readback buffer.
	// Zero means DefaultReadbackTimeout.
	ReadbackTimeout time.Duration
}

// DefaultPipelineConfig returns a 1024x1024 target cleared to dark gray.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Width:           1024,
		Height:          1024,
		ClearColor:      math3d.Vec4{X: 0.1, Y: 0.1, Z: 0.1, W: 1},
		PushConstants:   PushConstantsAuto,
		ReadbackTimeout: DefaultReadbackTimeout,
	}
}

// Validate checks dimensions and clear color.
func (c PipelineConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 || c.Width > MaxDimension || c.Height > MaxDimension {
		return fmt.Errorf("%w: size %dx%d outside 1..%d", ErrInvalidConfig, c.Width, c.Height, MaxDimension)
	}
	for _, v := range [4]float32{c.ClearColor.X, c.ClearColor.Y, c.ClearColor.Z, c.ClearColor.W} {
		if math32.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: clear color %v outside [0,1]", ErrInvalidConfig, c.ClearColor)
		}
	}
	if c.ReadbackTimeout < 0 {
		return fmt.Errorf("%w: negative readback timeout", ErrInvalidConfig)
	}
	return nil
}

// Aspect returns Width/Height.
func (c PipelineConfig) Aspect() float32 {
	return float32(c.Width) / float32(c.Height)
}

// Timeout returns ReadbackTimeout, or DefaultReadbackTimeout when unset.
func (c PipelineConfig) Timeout() time.Duration {
	if c.ReadbackTimeout == 0 {
		return DefaultReadbackTimeout
	}
	return c.ReadbackTimeout
}

// Renderer draws one mesh with a fixed pipeline. It is created by a
// Backend and is not safe for concurrent use.
type Renderer interface {
	// Render draws the mesh once with the given uniforms and returns the
	// read-back image. Identical inputs produce identical frames on the
	// same device and driver.
	Render(u scene.Uniforms) (*Frame, error)

	// Destroy releases all resources held by the renderer. Calling it more
	// than once is harmless; Render after Destroy returns ErrDestroyed.
	Destroy()

	// Config returns the configuration the renderer was created with.
	Config() PipelineConfig
}

// Backend creates Renderers on a device it owns exclusively.
//
// Backends must be registered via backend.Register and are selected via
// backend.Get or backend.Default.
type Backend interface {
	// Name returns the backend identifier (e.g., "explicit", "portable").
	Name() string

	// Init acquires the device. It must be called before Create.
	Init() error

	// Close releases the device. Renderers must be destroyed first.
	Close()

	// Create builds a pipeline for mesh. Malformed meshes, unsupported
	// attachment formats and uniform blocks exceeding device limits fail
	// with a KindResourceCreation error.
	Create(mesh scene.Mesh, cfg PipelineConfig) (Renderer, error)
}
