// Package explicit implements the forward pipeline on the explicit
// wgpu hardware abstraction layer.
//
// The backend records command buffers itself, inserts the texture barrier
// before readback, submits and waits for the device to go idle. The uniform
// block travels as push constants when the device and the HAL encoder can
// record them, and as a padded uniform buffer otherwise.
package explicit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/backend"
	"github.com/gogpu/offscreen/scene"
)

func init() {
	backend.Register(backend.Explicit, func() backend.Backend {
		return New(Options{})
	})
}

// Options selects the device the backend opens.
type Options struct {
	// Variant is the HAL backend to enumerate. Zero means Vulkan.
	Variant gputypes.Backend

	// API overrides the registered HAL backend for Variant.
	API hal.Backend

	// Device and Queue inject an already opened device. The backend does not
	// destroy injected devices. Features and Limits describe them.
	Device   hal.Device
	Queue    hal.Queue
	Features gputypes.Features
	Limits   gputypes.Limits
}

// Backend owns one HAL device and creates Renderers on it.
type Backend struct {
	mu   sync.Mutex
	opts Options

	instance hal.Instance
	adapter  hal.Adapter
	device   hal.Device
	queue    hal.Queue
	features gputypes.Features
	limits   gputypes.Limits
	info     gpucontext.AdapterInfo
	external bool
}

// New returns an unopened backend. Call Init before Create.
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

// Name returns "explicit".
func (b *Backend) Name() string { return backend.Explicit }

// Info reports the adapter the device was opened on.
func (b *Backend) Info() gpucontext.AdapterInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}

// Init opens the device. Calling Init on an open backend is a no-op.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device != nil {
		return nil
	}

	if b.opts.Device != nil {
		if b.opts.Queue == nil {
			return errors.New("explicit: injected device without a queue")
		}
		b.device = b.opts.Device
		b.queue = b.opts.Queue
		b.features = b.opts.Features
		b.limits = b.opts.Limits
		b.external = true
		b.info = gpucontext.AdapterInfo{Name: "injected", Type: gpucontext.AdapterTypeUnknown}
		offscreen.Logger().Info("explicit: using injected device")
		return nil
	}

	api := b.opts.API
	if api == nil {
		variant := b.opts.Variant
		if variant == 0 {
			variant = gputypes.BackendVulkan
		}
		var ok bool
		api, ok = hal.GetBackend(variant)
		if !ok {
			return fmt.Errorf("explicit: %v backend not available: %w", variant, hal.ErrBackendNotFound)
		}
	}

	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("explicit: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return errors.New("explicit: no GPU adapters found")
	}
	selected := selectAdapter(adapters)

	// Ask for push constants only when the adapter has them.
	features := selected.Features & gputypes.Features(gputypes.FeaturePushConstants)
	limits := gputypes.DefaultLimits()
	limits.MaxPushConstantSize = selected.Capabilities.Limits.MaxPushConstantSize

	openDev, err := selected.Adapter.Open(features, limits)
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("explicit: open device: %w", err)
	}

	b.instance = instance
	b.adapter = selected.Adapter
	b.device = openDev.Device
	b.queue = openDev.Queue
	b.features = features
	b.limits = limits
	b.info = gpucontext.AdapterInfo{Name: selected.Info.Name, Type: adapterType(selected.Info.DeviceType)}

	offscreen.Logger().Info("explicit: device opened",
		"adapter", selected.Info.Name,
		"type", b.info.Type,
		"push_constants", features.Contains(gputypes.FeaturePushConstants),
		"max_push_constant_size", limits.MaxPushConstantSize)
	return nil
}

// selectAdapter prefers a discrete or integrated GPU over anything else.
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
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

// Close releases the device. Injected devices are left alone.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.external {
		if b.device != nil {
			b.device.Destroy()
		}
		if b.instance != nil {
			b.instance.Destroy()
		}
	}
	b.instance = nil
	b.adapter = nil
	b.device = nil
	b.queue = nil
	b.external = false
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
	if err := b.checkFormats(); err != nil {
		return nil, offscreen.NewError(offscreen.KindResourceCreation, "attachment format", err)
	}

	r := &Renderer{
		device: b.device,
		queue:  b.queue,
		cfg:    cfg,
		width:  uint32(cfg.Width),  //nolint:gosec // validated against MaxDimension
		height: uint32(cfg.Height), //nolint:gosec // validated against MaxDimension
	}
	if err := r.init(mesh, b.features, b.limits); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

// checkFormats verifies the color and depth attachment formats can be
// rendered to. Injected devices come without an adapter and are trusted.
func (b *Backend) checkFormats() error {
	if b.adapter == nil {
		return nil
	}
	for _, f := range []gputypes.TextureFormat{colorFormat, depthFormat} {
		caps := b.adapter.TextureFormatCapabilities(f)
		if caps.Flags&hal.TextureFormatCapabilityRenderAttachment == 0 {
			return fmt.Errorf("%w: %w: %v is not renderable on this adapter",
				offscreen.ErrInvalidConfig, backend.ErrUnsupportedFormat, f)
		}
	}
	return nil
}
