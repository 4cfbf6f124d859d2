package portable

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/internal/marshal"
	"github.com/gogpu/offscreen/internal/shading"
	"github.com/gogpu/offscreen/scene"
)

const (
	colorFormat = wgpu.TextureFormatRGBA8Unorm
	depthFormat = wgpu.TextureFormatDepth32Float
)

// Renderer draws one mesh through wgpu.
type Renderer struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	cfg    offscreen.PipelineConfig

	width, height uint32
	mode          shading.Mode
	indexCount    uint32
	bytesPerRow   uint32

	colorTex   *wgpu.Texture
	colorView  *wgpu.TextureView
	depthTex   *wgpu.Texture
	depthView  *wgpu.TextureView
	shader     *wgpu.ShaderModule
	bindLayout *wgpu.BindGroupLayout
	pipeLayout *wgpu.PipelineLayout
	pipeline   *wgpu.RenderPipeline
	uniformBuf *wgpu.Buffer
	bindGroup  *wgpu.BindGroup
	vertexBuf  *wgpu.Buffer
	indexBuf   *wgpu.Buffer
	stagingBuf *wgpu.Buffer

	destroyed bool
}

// Config returns the configuration the renderer was created with.
func (r *Renderer) Config() offscreen.PipelineConfig { return r.cfg }

func createErr(op string, err error) error {
	return offscreen.NewError(offscreen.KindResourceCreation, op, err)
}

func (r *Renderer) init(mesh scene.Mesh) error {
	r.mode = shading.ModeFor(mesh.Layout)
	layout := marshal.Padded

	src, err := shading.Generate(shading.Options{Mode: r.mode, Layout: layout, Transmission: marshal.UniformBuffer})
	if err != nil {
		return createErr("shader", err)
	}
	r.shader, err = r.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "offscreen_forward_" + r.mode.String(),
		WGSL:  src,
	})
	if err != nil {
		return createErr("shader", err)
	}

	if err := r.createTargets(); err != nil {
		return createErr("attachments", err)
	}
	if err := r.createPipeline(layout); err != nil {
		return createErr("pipeline", err)
	}
	if err := r.uploadMesh(mesh); err != nil {
		return createErr("mesh upload", err)
	}

	r.bytesPerRow = (r.width*4 + 255) / 256 * 256
	r.stagingBuf, err = r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "offscreen_staging",
		Size:  uint64(r.bytesPerRow) * uint64(r.height),
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return createErr("staging buffer", err)
	}

	offscreen.Logger().Info("portable: renderer created",
		"width", r.width, "height", r.height, "mode", r.mode,
		"layout", layout.Name(), "triangles", mesh.TriangleCount())
	return nil
}

func (r *Renderer) createTargets() error {
	size := wgpu.Extent3D{Width: r.width, Height: r.height, DepthOrArrayLayers: 1}
	var err error

	r.colorTex, err = r.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "offscreen_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        colorFormat,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create color texture: %w", err)
	}
	r.colorView, err = r.device.CreateTextureView(r.colorTex, nil)
	if err != nil {
		return fmt.Errorf("create color view: %w", err)
	}

	r.depthTex, err = r.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "offscreen_depth",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        depthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create depth texture: %w", err)
	}
	r.depthView, err = r.device.CreateTextureView(r.depthTex, &wgpu.TextureViewDescriptor{
		Label:         "offscreen_depth_view",
		Format:        depthFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectDepthOnly,
		MipLevelCount: 1,
	})
	if err != nil {
		return fmt.Errorf("create depth view: %w", err)
	}
	return nil
}

func (r *Renderer) createPipeline(layout marshal.Layout) error {
	var err error
	r.bindLayout, err = r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "offscreen_uniform_layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create uniform layout: %w", err)
	}

	r.uniformBuf, err = r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "offscreen_uniforms",
		Size:  uint64(layout.Size()),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}

	r.bindGroup, err = r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "offscreen_uniform_group",
		Layout:  r.bindLayout,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: r.uniformBuf, Size: uint64(layout.Size())}},
	})
	if err != nil {
		return fmt.Errorf("create uniform bind group: %w", err)
	}

	r.pipeLayout, err = r.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "offscreen_pipe_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{r.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	keep := wgpu.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      wgpu.StencilOperationKeep,
		DepthFailOp: wgpu.StencilOperationKeep,
		PassOp:      wgpu.StencilOperationKeep,
	}
	r.pipeline, err = r.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "offscreen_forward_pipeline",
		Layout: r.pipeLayout,
		Vertex: wgpu.VertexState{
			Module:     r.shader,
			EntryPoint: shading.VertexEntry,
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: scene.VertexStride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     r.shader,
			EntryPoint: shading.FragmentEntry,
			Targets:    []wgpu.ColorTargetState{{Format: colorFormat, WriteMask: gputypes.ColorWriteMaskAll}},
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeBack,
		},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return fmt.Errorf("create render pipeline: %w", err)
	}
	return nil
}

func (r *Renderer) uploadMesh(mesh scene.Mesh) error {
	var err error
	if r.vertexBuf, err = r.upload("offscreen_vertices", mesh.VertexBytes(), wgpu.BufferUsageVertex); err != nil {
		return err
	}
	if r.indexBuf, err = r.upload("offscreen_indices", mesh.IndexBytes(), wgpu.BufferUsageIndex); err != nil {
		return err
	}
	r.indexCount = uint32(len(mesh.Indices)) //nolint:gosec // bounded by mesh validation
	return nil
}

func (r *Renderer) upload(label string, data []byte, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	buf, err := r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	if err := r.queue.WriteBuffer(buf, 0, data); err != nil {
		buf.Release()
		return nil, fmt.Errorf("write %s: %w", label, err)
	}
	return buf, nil
}

// Render writes the uniform buffer, draws the mesh and reads the color
// target back within the configured readback timeout.
func (r *Renderer) Render(u scene.Uniforms) (*offscreen.Frame, error) {
	if r.destroyed {
		return nil, offscreen.NewError(offscreen.KindRenderSubmission, "render", offscreen.ErrDestroyed)
	}
	block, err := marshal.Padded.Pack(u)
	if err != nil {
		return nil, offscreen.NewError(offscreen.KindUniformPacking, "pack", err)
	}
	if err := r.queue.WriteBuffer(r.uniformBuf, 0, block); err != nil {
		return nil, offscreen.NewError(offscreen.KindRenderSubmission, "write uniforms", err)
	}

	cmd, err := r.encode()
	if err != nil {
		return nil, offscreen.NewError(offscreen.KindRenderSubmission, "encode", err)
	}
	// The mapped readback waits on this submission, so the command buffer
	// is idle once readback returns.
	defer cmd.Release()
	if _, err := r.queue.Submit(cmd); err != nil {
		return nil, offscreen.NewError(offscreen.KindRenderSubmission, "submit", err)
	}

	frame, err := r.readback()
	if err != nil {
		return nil, offscreen.NewError(offscreen.KindReadback, "map staging", err)
	}
	return frame, nil
}

func (r *Renderer) encode() (*wgpu.CommandBuffer, error) {
	encoder, err := r.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "offscreen_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}

	c := r.cfg.ClearColor
	pass, err := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "offscreen_forward_pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       r.colorView,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: wgpu.Color{R: float64(c.X), G: float64(c.Y), B: float64(c.Z), A: float64(c.W)},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            r.depthView,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: 1,
		},
	})
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("begin render pass: %w", err)
	}
	pass.SetPipeline(r.pipeline)
	pass.SetBindGroup(0, r.bindGroup, nil)
	pass.SetViewport(0, 0, float32(r.width), float32(r.height), 0, 1)
	pass.SetVertexBuffer(0, r.vertexBuf, 0)
	pass.SetIndexBuffer(r.indexBuf, gputypes.IndexFormatUint32, 0)
	pass.DrawIndexed(r.indexCount, 1, 0, 0, 0)
	if err := pass.End(); err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("end render pass: %w", err)
	}

	encoder.CopyTextureToBuffer(r.colorTex, r.stagingBuf, []wgpu.BufferTextureCopy{{
		BufferLayout: wgpu.ImageDataLayout{Offset: 0, BytesPerRow: r.bytesPerRow, RowsPerImage: r.height},
		TextureBase:  wgpu.ImageCopyTexture{Texture: r.colorTex},
		Size:         wgpu.Extent3D{Width: r.width, Height: r.height, DepthOrArrayLayers: 1},
	}})
	return encoder.Finish()
}

// readback maps the staging buffer, bounded by the configured timeout, and
// strips the row padding.
func (r *Renderer) readback() (*offscreen.Frame, error) {
	size := uint64(r.bytesPerRow) * uint64(r.height)
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout())
	defer cancel()

	if err := r.stagingBuf.Map(ctx, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}
	rng, err := r.stagingBuf.MappedRange(0, size)
	if err != nil {
		_ = r.stagingBuf.Unmap()
		return nil, fmt.Errorf("mapped range: %w", err)
	}
	src := rng.Bytes()
	if uint64(len(src)) < size {
		_ = r.stagingBuf.Unmap()
		return nil, fmt.Errorf("mapped %d bytes, want %d", len(src), size)
	}

	frame := offscreen.NewFrame(int(r.width), int(r.height))
	row := int(r.width) * 4
	for y := 0; y < int(r.height); y++ {
		off := y * int(r.bytesPerRow)
		copy(frame.Pix[y*row:(y+1)*row], src[off:off+row])
	}
	if err := r.stagingBuf.Unmap(); err != nil {
		return nil, fmt.Errorf("unmap: %w", err)
	}
	return frame, nil
}

// Destroy releases every wgpu object. It is safe to call more than once.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	for _, buf := range []**wgpu.Buffer{&r.stagingBuf, &r.indexBuf, &r.vertexBuf, &r.uniformBuf} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
	if r.bindGroup != nil {
		r.bindGroup.Release()
		r.bindGroup = nil
	}
	if r.pipeline != nil {
		r.pipeline.Release()
		r.pipeline = nil
	}
	if r.pipeLayout != nil {
		r.pipeLayout.Release()
		r.pipeLayout = nil
	}
	if r.bindLayout != nil {
		r.bindLayout.Release()
		r.bindLayout = nil
	}
	if r.shader != nil {
		r.shader.Release()
		r.shader = nil
	}
	for _, view := range []**wgpu.TextureView{&r.depthView, &r.colorView} {
		if *view != nil {
			(*view).Release()
			*view = nil
		}
	}
	for _, tex := range []**wgpu.Texture{&r.depthTex, &r.colorTex} {
		if *tex != nil {
			(*tex).Release()
			*tex = nil
		}
	}
}
