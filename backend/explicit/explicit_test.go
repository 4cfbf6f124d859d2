package explicit

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/backend"
	"github.com/gogpu/offscreen/internal/marshal"
	"github.com/gogpu/offscreen/math3d"
	"github.com/gogpu/offscreen/scene"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// recordingDevice wraps a noop device so its render passes accept push
// constants and remember the last block.
type recordingDevice struct {
	hal.Device
	pushed []byte
}

func (d *recordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &recordingEncoder{CommandEncoder: enc, dev: d}, nil
}

type recordingEncoder struct {
	hal.CommandEncoder
	dev *recordingDevice
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	return &recordingPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), dev: e.dev}
}

type recordingPass struct {
	hal.RenderPassEncoder
	dev *recordingDevice
}

func (p *recordingPass) SetPushConstants(_ gputypes.ShaderStages, _ uint32, data []byte) {
	p.dev.pushed = append(p.dev.pushed[:0], data...)
}

func openNoop(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(Options{API: noop.API{}})
	if err != nil {
		t.Fatalf("Open(noop) = %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func smallConfig() offscreen.PipelineConfig {
	cfg := offscreen.DefaultPipelineConfig()
	cfg.Width, cfg.Height = 100, 60
	return cfg
}

func testUniforms(cfg offscreen.PipelineConfig) scene.Uniforms {
	return scene.NewUniforms(scene.DefaultCamera(), cfg.Aspect(), math3d.RotateY(0.5),
		scene.DefaultLight(), math3d.V3(1, 1, 1))
}

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.Explicit) {
		t.Fatal("explicit backend not registered")
	}
	if got := backend.Get(backend.Explicit).Name(); got != backend.Explicit {
		t.Errorf("Name() = %q", got)
	}
}

func TestCreateBeforeInit(t *testing.T) {
	_, err := New(Options{API: noop.API{}}).Create(scene.Cube(), smallConfig())
	if !errors.Is(err, offscreen.ErrResourceCreation) || !errors.Is(err, backend.ErrNotInitialized) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenNoopInfo(t *testing.T) {
	b := openNoop(t)
	info := b.Info()
	if info.Name != "Noop Adapter" {
		t.Errorf("Info().Name = %q", info.Name)
	}
	if info.Type != gpucontext.AdapterTypeUnknown {
		t.Errorf("Info().Type = %v, want Unknown", info.Type)
	}
	if err := b.Init(); err != nil {
		t.Errorf("second Init() = %v", err)
	}
}

func TestInjectedDeviceWithoutQueue(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()
	if _, err := Open(Options{Device: device}); err == nil {
		t.Fatal("Open() with device but no queue should fail")
	}
}

func TestRenderNoop(t *testing.T) {
	b := openNoop(t)
	cfg := smallConfig()
	for _, mesh := range []scene.Mesh{scene.Cube(), scene.SmoothCube()} {
		r, err := b.Create(mesh, cfg)
		if err != nil {
			t.Fatalf("Create(%v) = %v", mesh.Layout, err)
		}
		er := r.(*Renderer)
		if er.Transmission() != marshal.UniformBuffer || er.Layout() != marshal.Padded {
			t.Errorf("%v: %v/%s, want uniform buffer with padded layout",
				mesh.Layout, er.Transmission(), er.Layout().Name())
		}
		if er.bytesPerRow != 512 {
			t.Errorf("bytesPerRow = %d, want 512", er.bytesPerRow)
		}

		f, err := r.Render(testUniforms(cfg))
		if err != nil {
			t.Fatalf("Render() = %v", err)
		}
		if f.Width != cfg.Width || f.Height != cfg.Height || len(f.Pix) != cfg.Width*cfg.Height*4 {
			t.Errorf("frame %dx%d len %d", f.Width, f.Height, len(f.Pix))
		}
		r.Destroy()
	}
}

func TestCreateRejectsBadMesh(t *testing.T) {
	b := openNoop(t)
	m := scene.Cube()
	m.Indices[0] = uint32(len(m.Vertices))
	_, err := b.Create(m, smallConfig())
	if !errors.Is(err, offscreen.ErrResourceCreation) || !errors.Is(err, scene.ErrIndexOutOfRange) {
		t.Fatalf("err = %v", err)
	}
}

func TestRequirePushConstantsUnsupported(t *testing.T) {
	b := openNoop(t)
	cfg := smallConfig()
	cfg.PushConstants = offscreen.PushConstantsRequire
	_, err := b.Create(scene.Cube(), cfg)
	if !errors.Is(err, offscreen.ErrResourceCreation) || !errors.Is(err, marshal.ErrPushConstantsUnsupported) {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, errNoPushConstantRecorder) || !strings.Contains(err.Error(), "auto or off") {
		t.Errorf("err = %q, want a hint to use auto or off", err)
	}
}

func openRecording(t *testing.T, maxPush uint32) (*Backend, *recordingDevice) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)
	rec := &recordingDevice{Device: device}
	limits := gputypes.DefaultLimits()
	limits.MaxPushConstantSize = maxPush
	b, err := Open(Options{
		Device:   rec,
		Queue:    queue,
		Features: gputypes.Features(gputypes.FeaturePushConstants),
		Limits:   limits,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return b, rec
}

func TestPushConstantPath(t *testing.T) {
	b, rec := openRecording(t, 256)
	cfg := smallConfig()
	r, err := b.Create(scene.Cube(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Destroy()

	er := r.(*Renderer)
	if er.Transmission() != marshal.PushConstant || er.Layout() != marshal.Compact {
		t.Fatalf("%v/%s, want push constants with compact layout", er.Transmission(), er.Layout().Name())
	}
	if er.uniformBuf != nil || er.bindGroup != nil {
		t.Error("push constant renderer allocated a uniform buffer")
	}

	u := testUniforms(cfg)
	if _, err := r.Render(u); err != nil {
		t.Fatal(err)
	}
	want, err := marshal.Compact.Pack(u)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rec.pushed, want) {
		t.Errorf("pushed %d bytes, want the %d byte compact block", len(rec.pushed), len(want))
	}
}

func TestPushConstantLimit(t *testing.T) {
	b, _ := openRecording(t, 128)
	cfg := smallConfig()

	cfg.PushConstants = offscreen.PushConstantsRequire
	_, err := b.Create(scene.Cube(), cfg)
	if !errors.Is(err, offscreen.ErrResourceCreation) {
		t.Fatalf("err = %v, want ResourceCreation", err)
	}
	if !errors.Is(err, offscreen.ErrUniformPacking) || !errors.Is(err, marshal.ErrExceedsLimit) {
		t.Errorf("err = %v, want UniformPacking cause", err)
	}

	cfg.PushConstants = offscreen.PushConstantsAuto
	r, err := b.Create(scene.Cube(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Destroy()
	if got := r.(*Renderer).Transmission(); got != marshal.UniformBuffer {
		t.Errorf("auto with small limit = %v, want uniform buffer", got)
	}
}

func TestPushConstantsOff(t *testing.T) {
	b, rec := openRecording(t, 256)
	cfg := smallConfig()
	cfg.PushConstants = offscreen.PushConstantsOff
	r, err := b.Create(scene.Cube(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Destroy()
	if _, err := r.Render(testUniforms(cfg)); err != nil {
		t.Fatal(err)
	}
	if rec.pushed != nil {
		t.Error("push constants recorded with policy off")
	}
}

func TestRenderAfterDestroy(t *testing.T) {
	b := openNoop(t)
	cfg := smallConfig()
	r, err := b.Create(scene.Pyramid(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	r.Destroy()
	r.Destroy()
	if _, err := r.Render(testUniforms(cfg)); !errors.Is(err, offscreen.ErrDestroyed) {
		t.Fatalf("err = %v, want ErrDestroyed", err)
	}
}

func TestRenderRejectsBadUniforms(t *testing.T) {
	b := openNoop(t)
	cfg := smallConfig()
	r, err := b.Create(scene.Cube(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Destroy()
	u := testUniforms(cfg)
	u.Light.Intensity = -1
	if _, err := r.Render(u); !errors.Is(err, offscreen.ErrUniformPacking) {
		t.Fatalf("err = %v, want UniformPacking", err)
	}
}

func TestAlignedBytesPerRow(t *testing.T) {
	tests := []struct {
		width uint32
		want  uint32
	}{
		{1, 256},
		{64, 256},
		{65, 512},
		{100, 512},
		{1024, 4096},
	}
	for _, tt := range tests {
		if got := alignedBytesPerRow(tt.width); got != tt.want {
			t.Errorf("alignedBytesPerRow(%d) = %d, want %d", tt.width, got, tt.want)
		}
	}
}

func TestAdapterType(t *testing.T) {
	tests := []struct {
		in   gputypes.DeviceType
		want gpucontext.AdapterType
	}{
		{gputypes.DeviceTypeDiscreteGPU, gpucontext.AdapterTypeDiscrete},
		{gputypes.DeviceTypeIntegratedGPU, gpucontext.AdapterTypeIntegrated},
		{gputypes.DeviceTypeCPU, gpucontext.AdapterTypeSoftware},
		{gputypes.DeviceTypeOther, gpucontext.AdapterTypeUnknown},
	}
	for _, tt := range tests {
		if got := adapterType(tt.in); got != tt.want {
			t.Errorf("adapterType(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSelectAdapterPrefersGPU(t *testing.T) {
	adapters := []hal.ExposedAdapter{
		{Info: gputypes.AdapterInfo{Name: "cpu", DeviceType: gputypes.DeviceTypeCPU}},
		{Info: gputypes.AdapterInfo{Name: "igpu", DeviceType: gputypes.DeviceTypeIntegratedGPU}},
	}
	if got := selectAdapter(adapters).Info.Name; got != "igpu" {
		t.Errorf("selectAdapter() = %q, want igpu", got)
	}
	if got := selectAdapter(adapters[:1]).Info.Name; got != "cpu" {
		t.Errorf("selectAdapter() = %q, want cpu fallback", got)
	}
}

// noRenderAdapter reports no capabilities for any texture format.
type noRenderAdapter struct {
	hal.Adapter
}

func (noRenderAdapter) TextureFormatCapabilities(gputypes.TextureFormat) hal.TextureFormatCapabilities {
	return hal.TextureFormatCapabilities{}
}

func TestCreateRejectsUnrenderableFormat(t *testing.T) {
	b := openNoop(t)
	b.adapter = noRenderAdapter{Adapter: b.adapter}

	_, err := b.Create(scene.Cube(), smallConfig())
	if !errors.Is(err, offscreen.ErrResourceCreation) {
		t.Fatalf("err = %v, want ResourceCreation", err)
	}
	if !errors.Is(err, backend.ErrUnsupportedFormat) || !errors.Is(err, offscreen.ErrInvalidConfig) {
		t.Errorf("err = %v, want unsupported format", err)
	}
}
