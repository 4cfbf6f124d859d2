package backend

import (
	"errors"

	"github.com/gogpu/offscreen"
)

// Backend names.
const (
	// Explicit renders through the low-level HAL with push constants.
	Explicit = "explicit"

	// Portable renders through the cross-platform wgpu API with a uniform
	// buffer.
	Portable = "portable"

	// Reference is the CPU rasterizer. It is always available.
	Reference = "reference"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when Create is called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrUnsupportedFormat is returned when the device can not render to
	// or copy from an attachment format. It is reported together with
	// offscreen.ErrInvalidConfig.
	ErrUnsupportedFormat = errors.New("backend: attachment format not supported")
)

// Backend is an alias so callers only need to import this package to
// select and drive a backend.
type Backend = offscreen.Backend
