// Package portable implements the forward pipeline on the portable wgpu
// API.
//
// Barriers and synchronization are left to wgpu. The uniform block always
// travels in a uniform buffer with the padded layout, rewritten with
// Queue.WriteBuffer before each frame, and the result is read back through
// a mapped staging buffer.
package portable

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	// Register every HAL backend available on this platform.
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/backend"
	"github.com/gogpu/offscreen/scene"
)

// ErrNoHAL is returned when wgpu hands out a device that is not backed by
// a HAL device and can not execute commands.
var ErrNoHAL = errors.New("portable: device has no HAL integration")

func init() {
	backend.Register(backend.Portable, func() backend.Backend {
		return New(Options{})
	})
}

// Options controls instance and adapter selection.
type Options struct {
	// Backends restricts the graphics APIs considered. Zero means all.
	Backends wgpu.Backends

	// PowerPreference defaults to high performance.
	PowerPreference wgpu.PowerPreference

	// ForceFallbackAdapter requests the software adapter.
	ForceFallbackAdapter bool
}

// Backend owns a wgpu instance, adapter and device.
type Backend struct {
	mu   sync.Mutex
	opts Options

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	info     wgpu.AdapterInfo
}

// New returns an unopened backend.
func New(opts Options) *Backend {
	return &Backend{opts: opts}
}

// Open returns an initialized backend.
func Open(opts Options) (*Backend, error) {
	b := New(opts)
	if err := b.Init(); err != nil {
		return nil, err
	}
	return b, nil
}

// Name returns "portable".
func (b *Backend) Name() string { return backend.Portable }

// Info reports the selected adapter.
func (b *Backend) Info() gpucontext.AdapterInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return gpucontext.AdapterInfo{Name: b.info.Name, Type: adapterType(b.info.DeviceType)}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// Init creates the instance, requests an adapter and opens a device.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device != nil {
		return nil
	}

	backends := b.opts.Backends
	if backends == 0 {
		backends = wgpu.BackendsAll
	}
	pref := b.opts.PowerPreference
	if pref == wgpu.PowerPreferenceNone {
		pref = wgpu.PowerPreferenceHighPerformance
	}

	instance, err := wgpu.CreateInstance(&wgpu.InstanceDescriptor{Backends: backends})
	if err != nil {
		return fmt.Errorf("portable: create instance: %w", err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference:      pref,
		ForceFallbackAdapter: b.opts.ForceFallbackAdapter,
	})
	if err != nil {
		instance.Release()
		return fmt.Errorf("portable: request adapter: %w", err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return fmt.Errorf("portable: request device: %w", err)
	}
	if device.Queue() == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return offscreen.NewError(offscreen.KindResourceCreation, "open device", ErrNoHAL)
	}

	b.instance = instance
	b.adapter = adapter
	b.device = device
	b.info = adapter.Info()
	offscreen.Logger().Info("portable: device opened",
		"adapter", b.info.Name, "backend", b.info.Backend, "type", b.info.DeviceType)
	return nil
}

// Close releases the device, adapter and instance.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Create builds the pipeline, attachments and buffers for mesh.
func (b *Backend) Create(mesh scene.Mesh, cfg offscreen.PipelineConfig) (offscreen.Renderer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil {
		return nil, offscreen.NewError(offscreen.KindResourceCreation, "create", backend.ErrNotInitialized)
	}
	if err := cfg.Validate(); err != nil {
		return nil, offscreen.NewError(offscreen.KindResourceCreation, "pipeline config", err)
	}
	if err := mesh.Validate(); err != nil {
		return nil, offscreen.NewError(offscreen.KindResourceCreation, "mesh upload", err)
	}
	if err := checkFormats(colorFormat, depthFormat); err != nil {
		return nil, offscreen.NewError(offscreen.KindResourceCreation, "attachment format", err)
	}

	r := &Renderer{
		device: b.device,
		queue:  b.device.Queue(),
		cfg:    cfg,
		width:  uint32(cfg.Width),  //nolint:gosec // validated against MaxDimension
		height: uint32(cfg.Height), //nolint:gosec // validated against MaxDimension
	}
	if err := r.init(mesh); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

// guaranteedUsage lists the usages every WebGPU adapter supports for the
// formats a renderer may attach. The wgpu Adapter has no per-format
// capability query, so attachments are checked against this table.
var guaranteedUsage = map[gputypes.TextureFormat]gputypes.TextureUsage{
	gputypes.TextureFormatRGBA8Unorm: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc |
		gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	gputypes.TextureFormatBGRA8Unorm: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc |
		gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	gputypes.TextureFormatDepth32Float: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
	gputypes.TextureFormatDepth24Plus:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
}

// checkFormats verifies that color can be rendered to and copied from and
// that depth can be rendered to.
func checkFormats(color, depth gputypes.TextureFormat) error {
	for _, req := range []struct {
		format gputypes.TextureFormat
		usage  gputypes.TextureUsage
	}{
		{color, gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc},
		{depth, gputypes.TextureUsageRenderAttachment},
	} {
		if guaranteedUsage[req.format]&req.usage != req.usage {
			return fmt.Errorf("%w: %w: %v does not support usage %#x",
				offscreen.ErrInvalidConfig, backend.ErrUnsupportedFormat, req.format, uint64(req.usage))
		}
	}
	if !depth.HasDepth() {
		return fmt.Errorf("%w: %w: %v has no depth aspect",
			offscreen.ErrInvalidConfig, backend.ErrUnsupportedFormat, depth)
	}
	return nil
}
