package explicit

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/offscreen"
	"github.com/gogpu/offscreen/internal/marshal"
	"github.com/gogpu/offscreen/internal/shading"
	"github.com/gogpu/offscreen/scene"
)

const (
	colorFormat = gputypes.TextureFormatRGBA8Unorm
	depthFormat = gputypes.TextureFormatDepth32Float

	// copyRowAlignment is the required BytesPerRow alignment for
	// texture-to-buffer copies.
	copyRowAlignment = 256
)

// alignedBytesPerRow rounds a tightly packed RGBA8 row up to the copy
// alignment.
func alignedBytesPerRow(width uint32) uint32 {
	return (width*4 + copyRowAlignment - 1) / copyRowAlignment * copyRowAlignment
}

// Renderer draws one mesh on a HAL device.
type Renderer struct {
	device hal.Device
	queue  hal.Queue
	cfg    offscreen.PipelineConfig

	width, height uint32
	mode          shading.Mode
	layout        marshal.Layout
	transmission  marshal.Transmission
	indexCount    uint32

	colorTex  hal.Texture
	colorView hal.TextureView
	depthTex  hal.Texture
	depthView hal.TextureView

	shader      hal.ShaderModule
	bindLayout  hal.BindGroupLayout
	pipeLayout  hal.PipelineLayout
	pipeline    hal.RenderPipeline
	uniformBuf  hal.Buffer
	bindGroup   hal.BindGroup
	vertexBuf   hal.Buffer
	indexBuf    hal.Buffer
	stagingBuf  hal.Buffer
	bytesPerRow uint32

	destroyed bool
}

// Config returns the configuration the renderer was created with.
func (r *Renderer) Config() offscreen.PipelineConfig { return r.cfg }

// Transmission reports how the uniform block reaches the shader.
func (r *Renderer) Transmission() marshal.Transmission { return r.transmission }

// Layout reports the uniform block layout in use.
func (r *Renderer) Layout() marshal.Layout { return r.layout }

func createErr(op string, err error) error {
	return offscreen.NewError(offscreen.KindResourceCreation, op, err)
}

// init creates every device object the renderer needs. On error the caller
// destroys the partially built renderer.
func (r *Renderer) init(mesh scene.Mesh, features gputypes.Features, limits gputypes.Limits) error {
	r.mode = shading.ModeFor(mesh.Layout)

	if err := r.createTargets(); err != nil {
		return createErr("attachments", err)
	}

	caps := marshal.Capabilities{MaxPushConstantSize: limits.MaxPushConstantSize}
	if features.Contains(gputypes.FeaturePushConstants) && r.cfg.PushConstants != offscreen.PushConstantsOff {
		caps.PushConstants = r.probePushConstants()
	}
	layout, transmission, err := marshal.Select(caps, r.cfg.PushConstants)
	if err != nil {
		if errors.Is(err, marshal.ErrPushConstantsUnsupported) {
			err = fmt.Errorf("%w: %w", err, errNoPushConstantRecorder)
		}
		if caps.PushConstants {
			// Supported but too small: the block itself can not be packed.
			err = offscreen.NewError(offscreen.KindUniformPacking, "push constant limit", err)
		}
		return createErr("uniform transmission", err)
	}
	if r.cfg.PushConstants == offscreen.PushConstantsAuto && transmission == marshal.UniformBuffer &&
		features.Contains(gputypes.FeaturePushConstants) {
		offscreen.Logger().Warn("explicit: push constants unavailable, using uniform buffer",
			"recorder", caps.PushConstants, "limit", limits.MaxPushConstantSize, "block", marshal.Compact.Size())
	}
	r.layout, r.transmission = layout, transmission

	if err := r.createPipeline(); err != nil {
		return createErr("pipeline", err)
	}
	if err := r.uploadMesh(mesh); err != nil {
		return createErr("mesh upload", err)
	}

	r.bytesPerRow = alignedBytesPerRow(r.width)
	staging, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "offscreen_staging",
		Size:  uint64(r.bytesPerRow) * uint64(r.height),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return createErr("staging buffer", err)
	}
	r.stagingBuf = staging

	offscreen.Logger().Info("explicit: renderer created",
		"width", r.width, "height", r.height,
		"mode", r.mode, "layout", r.layout.Name(), "transmission", r.transmission,
		"triangles", mesh.TriangleCount())
	offscreen.Logger().Debug("explicit: buffers",
		"vertex_bytes", len(mesh.Vertices)*scene.VertexStride,
		"index_count", r.indexCount,
		"uniform_bytes", r.layout.Size(),
		"bytes_per_row", r.bytesPerRow)
	return nil
}

func (r *Renderer) createTargets() error {
	size := hal.Extent3D{Width: r.width, Height: r.height, DepthOrArrayLayers: 1}

	colorTex, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "offscreen_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        colorFormat,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create color texture: %w", err)
	}
	r.colorTex = colorTex

	colorView, err := r.device.CreateTextureView(colorTex, &hal.TextureViewDescriptor{
		Label:         "offscreen_color_view",
		Format:        colorFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		return fmt.Errorf("create color view: %w", err)
	}
	r.colorView = colorView

	depthTex, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "offscreen_depth",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        depthFormat,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create depth texture: %w", err)
	}
	r.depthTex = depthTex

	depthView, err := r.device.CreateTextureView(depthTex, &hal.TextureViewDescriptor{
		Label:         "offscreen_depth_view",
		Format:        depthFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectDepthOnly,
		MipLevelCount: 1,
	})
	if err != nil {
		return fmt.Errorf("create depth view: %w", err)
	}
	r.depthView = depthView
	return nil
}

func (r *Renderer) createPipeline() error {
	src, err := shading.Generate(shading.Options{Mode: r.mode, Layout: r.layout, Transmission: r.transmission})
	if err != nil {
		return err
	}
	spirv, err := shading.CompileSPIRV(src)
	if err != nil {
		return err
	}
	shader, err := r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "offscreen_forward_" + r.mode.String(),
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	r.shader = shader

	layoutDesc := &hal.PipelineLayoutDescriptor{Label: "offscreen_pipe_layout"}
	if r.transmission == marshal.PushConstant {
		layoutDesc.PushConstantRanges = []hal.PushConstantRange{{
			Stages: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Range:  hal.Range{Start: 0, End: r.layout.Size()},
		}}
	} else {
		if err := r.createUniformBinding(); err != nil {
			return err
		}
		layoutDesc.BindGroupLayouts = []hal.BindGroupLayout{r.bindLayout}
	}
	pipeLayout, err := r.device.CreatePipelineLayout(layoutDesc)
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	r.pipeLayout = pipeLayout

	pipeline, err := r.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "offscreen_forward_pipeline",
		Layout: r.pipeLayout,
		Vertex: hal.VertexState{
			Module:     r.shader,
			EntryPoint: shading.VertexEntry,
			Buffers:    vertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     r.shader,
			EntryPoint: shading.FragmentEntry,
			Targets: []gputypes.ColorTargetState{
				{Format: colorFormat, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeBack,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return fmt.Errorf("create render pipeline: %w", err)
	}
	r.pipeline = pipeline
	return nil
}

func (r *Renderer) createUniformBinding() error {
	bindLayout, err := r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "offscreen_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create uniform layout: %w", err)
	}
	r.bindLayout = bindLayout

	uniformBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "offscreen_uniforms",
		Size:  uint64(r.layout.Size()),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	r.uniformBuf = uniformBuf

	bindGroup, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "offscreen_uniform_group",
		Layout: r.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: uint64(r.layout.Size()),
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("create uniform bind group: %w", err)
	}
	r.bindGroup = bindGroup
	return nil
}

func (r *Renderer) uploadMesh(mesh scene.Mesh) error {
	vb, err := r.createAndUploadBuffer("offscreen_vertices", mesh.VertexBytes(),
		gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	r.vertexBuf = vb
	ib, err := r.createAndUploadBuffer("offscreen_indices", mesh.IndexBytes(),
		gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	r.indexBuf = ib
	r.indexCount = uint32(len(mesh.Indices)) //nolint:gosec // bounded by the vertex count check in Validate
	return nil
}

// createAndUploadBuffer creates a GPU buffer and uploads data.
func (r *Renderer) createAndUploadBuffer(label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	if err := r.queue.WriteBuffer(buf, 0, data); err != nil {
		r.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("write %s: %w", label, err)
	}
	return buf, nil
}

func vertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: scene.VertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},  // position
				{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1}, // color or normal
			},
		},
	}
}

// Render packs u, draws the mesh once and reads the color target back.
func (r *Renderer) Render(u scene.Uniforms) (*offscreen.Frame, error) {
	if r.destroyed {
		return nil, offscreen.NewError(offscreen.KindRenderSubmission, "render", offscreen.ErrDestroyed)
	}
	block, err := r.layout.Pack(u)
	if err != nil {
		return nil, offscreen.NewError(offscreen.KindUniformPacking, "pack", err)
	}
	if r.transmission == marshal.UniformBuffer {
		if err := r.queue.WriteBuffer(r.uniformBuf, 0, block); err != nil {
			return nil, offscreen.NewError(offscreen.KindRenderSubmission, "write uniforms", err)
		}
	}

	cmdBuf, err := r.encode(block)
	if err != nil {
		return nil, offscreen.NewError(offscreen.KindRenderSubmission, "encode", err)
	}
	defer r.device.FreeCommandBuffer(cmdBuf)

	if err := r.submit(cmdBuf); err != nil {
		return nil, offscreen.NewError(offscreen.KindRenderSubmission, "submit", err)
	}

	frame, err := r.readback()
	if err != nil {
		return nil, offscreen.NewError(offscreen.KindReadback, "map staging", err)
	}
	return frame, nil
}

// encode records the render pass, the readback barrier and the copy into
// the staging buffer.
func (r *Renderer) encode(block []byte) (hal.CommandBuffer, error) {
	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "offscreen_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("offscreen_frame"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	c := r.cfg.ClearColor
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "offscreen_forward_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       r.colorView,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{R: float64(c.X), G: float64(c.Y), B: float64(c.Z), A: float64(c.W)},
			},
		},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:            r.depthView,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: 1,
		},
	})
	rp.SetPipeline(r.pipeline)
	if r.transmission == marshal.PushConstant {
		rec, ok := rp.(pushConstantRecorder)
		if !ok {
			rp.End()
			encoder.DiscardEncoding()
			return nil, marshal.ErrPushConstantsUnsupported
		}
		rec.SetPushConstants(gputypes.ShaderStageVertex|gputypes.ShaderStageFragment, 0, block)
	} else {
		rp.SetBindGroup(0, r.bindGroup, nil)
	}
	rp.SetViewport(0, 0, float32(r.width), float32(r.height), 0, 1)
	rp.SetScissorRect(0, 0, r.width, r.height)
	rp.SetVertexBuffer(0, r.vertexBuf, 0)
	rp.SetIndexBuffer(r.indexBuf, gputypes.IndexFormatUint32, 0)
	rp.DrawIndexed(r.indexCount, 1, 0, 0, 0)
	rp.End()

	// The color target leaves the pass in attachment layout; the copy needs
	// it as a transfer source.
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: r.colorTex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(r.colorTex, r.stagingBuf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: r.bytesPerRow, RowsPerImage: r.height},
		TextureBase:  hal.ImageCopyTexture{Texture: r.colorTex, MipLevel: 0},
		Size:         hal.Extent3D{Width: r.width, Height: r.height, DepthOrArrayLayers: 1},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	return cmdBuf, nil
}

// submit hands the command buffer to the queue and blocks until the device
// is idle and the submission is reported complete.
func (r *Renderer) submit(cmdBuf hal.CommandBuffer) error {
	r.queue.SetSwapchainSuppressed(true)
	defer r.queue.SetSwapchainSuppressed(false)

	index, err := r.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return err
	}
	if err := r.device.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	if done := r.queue.PollCompleted(); done < index {
		return fmt.Errorf("submission %d not complete after idle (completed %d)", index, done)
	}
	return nil
}

// readback maps the staging buffer and strips the row padding.
func (r *Renderer) readback() (*offscreen.Frame, error) {
	size := uint64(r.bytesPerRow) * uint64(r.height)
	mapping, err := r.device.MapBuffer(r.stagingBuf, 0, size)
	if err != nil {
		return nil, err
	}
	src := unsafe.Slice((*byte)(mapping.Ptr), size)

	frame := offscreen.NewFrame(int(r.width), int(r.height))
	row := int(r.width) * 4
	for y := 0; y < int(r.height); y++ {
		off := y * int(r.bytesPerRow)
		copy(frame.Pix[y*row:(y+1)*row], src[off:off+row])
	}
	if err := r.device.UnmapBuffer(r.stagingBuf); err != nil {
		return nil, fmt.Errorf("unmap: %w", err)
	}
	return frame, nil
}

// Destroy releases all resources in reverse creation order. It is safe to
// call more than once.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	if r.device == nil {
		return
	}
	for _, buf := range []*hal.Buffer{&r.stagingBuf, &r.indexBuf, &r.vertexBuf} {
		if *buf != nil {
			r.device.DestroyBuffer(*buf)
			*buf = nil
		}
	}
	if r.pipeline != nil {
		r.device.DestroyRenderPipeline(r.pipeline)
		r.pipeline = nil
	}
	if r.pipeLayout != nil {
		r.device.DestroyPipelineLayout(r.pipeLayout)
		r.pipeLayout = nil
	}
	if r.bindGroup != nil {
		r.device.DestroyBindGroup(r.bindGroup)
		r.bindGroup = nil
	}
	if r.uniformBuf != nil {
		r.device.DestroyBuffer(r.uniformBuf)
		r.uniformBuf = nil
	}
	if r.bindLayout != nil {
		r.device.DestroyBindGroupLayout(r.bindLayout)
		r.bindLayout = nil
	}
	if r.shader != nil {
		r.device.DestroyShaderModule(r.shader)
		r.shader = nil
	}
	if r.depthView != nil {
		r.device.DestroyTextureView(r.depthView)
		r.depthView = nil
	}
	if r.depthTex != nil {
		r.device.DestroyTexture(r.depthTex)
		r.depthTex = nil
	}
	if r.colorView != nil {
		r.device.DestroyTextureView(r.colorView)
		r.colorView = nil
	}
	if r.colorTex != nil {
		r.device.DestroyTexture(r.colorTex)
		r.colorTex = nil
	}
}
