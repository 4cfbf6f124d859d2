package marshal

import (
	"errors"
	"fmt"

	"github.com/gogpu/offscreen"
)

// Push-constant selection errors.
var (
	// ErrPushConstantsUnsupported is returned when push constants are
	// required but the device can not record them.
	ErrPushConstantsUnsupported = errors.New("marshal: push constants not supported by device")

	// ErrExceedsLimit is returned when a block is larger than the device's
	// push-constant limit.
	ErrExceedsLimit = errors.New("marshal: uniform block exceeds push constant limit")
)

// Transmission is how the packed block reaches the shader.
type Transmission uint8

const (
	// UniformBuffer binds the block at group 0, binding 0.
	UniformBuffer Transmission = iota

	// PushConstant records the block into the command stream.
	PushConstant
)

// String returns the transmission name.
func (t Transmission) String() string {
	if t == PushConstant {
		return "push-constant"
	}
	return "uniform-buffer"
}

// Capabilities describes what a device can do with push constants.
type Capabilities struct {
	// PushConstants is true when the device exposes the feature and the
	// backend can record push constants into a render pass.
	PushConstants bool

	// MaxPushConstantSize is the device limit in bytes.
	MaxPushConstantSize uint32
}

// CheckLimit fails with ErrExceedsLimit when l does not fit in limit bytes.
func CheckLimit(l Layout, limit uint32) error {
	if l.Size() > limit {
		return fmt.Errorf("%w: %s block is %d bytes, device allows %d", ErrExceedsLimit, l.Name(), l.Size(), limit)
	}
	return nil
}

// Select chooses the layout and transmission for a device.
//
// PushConstantsOff always yields Padded over a uniform buffer.
// PushConstantsAuto yields Compact over push constants when they are
// supported and the block fits, and Padded otherwise. PushConstantsRequire
// yields Compact or fails with ErrPushConstantsUnsupported or
// ErrExceedsLimit. Nothing is ever truncated.
func Select(caps Capabilities, policy offscreen.PushConstantPolicy) (Layout, Transmission, error) {
	switch policy {
	case offscreen.PushConstantsOff:
		return Padded, UniformBuffer, nil

	case offscreen.PushConstantsRequire:
		if !caps.PushConstants {
			return nil, 0, ErrPushConstantsUnsupported
		}
		if err := CheckLimit(Compact, caps.MaxPushConstantSize); err != nil {
			return nil, 0, err
		}
		return Compact, PushConstant, nil

	case offscreen.PushConstantsAuto:
		if caps.PushConstants && CheckLimit(Compact, caps.MaxPushConstantSize) == nil {
			return Compact, PushConstant, nil
		}
		return Padded, UniformBuffer, nil
	}
	return nil, 0, fmt.Errorf("marshal: unknown push constant policy %v", policy)
}
