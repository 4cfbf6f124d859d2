package explicit

import (
	"errors"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// errNoPushConstantRecorder explains a failed push_constants: require. The
// gogpu/wgpu hal render pass encoders, Vulkan included, do not implement
// pushConstantRecorder, so on stock drivers only auto and off succeed.
var errNoPushConstantRecorder = errors.New(
	"this device's hal render pass encoder cannot record push constants; set push_constants to auto or off")

// pushConstantRecorder is implemented by HAL render pass encoders that can
// record push constants. The HAL interface does not declare it, so support
// is discovered per device.
type pushConstantRecorder interface {
	SetPushConstants(stages gputypes.ShaderStages, offset uint32, data []byte)
}

// probePushConstants opens an empty pass on the renderer's attachments and
// reports whether its encoder records push constants. The pass is
// discarded without submission.
func (r *Renderer) probePushConstants() bool {
	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "offscreen_probe"})
	if err != nil {
		return false
	}
	if err := encoder.BeginEncoding("offscreen_probe"); err != nil {
		return false
	}
	defer encoder.DiscardEncoding()

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "offscreen_probe_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{View: r.colorView, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpDiscard},
		},
	})
	_, ok := rp.(pushConstantRecorder)
	rp.End()
	return ok
}
