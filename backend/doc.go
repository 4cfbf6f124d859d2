// Package backend provides the pluggable rendering backend registry.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// Import the backend packages you want to make available:
//
//	import (
//		_ "github.com/gogpu/offscreen/backend/explicit"
//		_ "github.com/gogpu/offscreen/backend/portable"
//		_ "github.com/gogpu/offscreen/backend/reference"
//	)
//
// # Backend Selection
//
// Use InitDefault() to get the best backend that initializes on this
// machine, or Open() to request a specific backend by name:
//
//	b, err := backend.Open("portable")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	r, err := b.Create(scene.Cube(), offscreen.DefaultPipelineConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer r.Destroy()
//
// # Available Backends
//
//   - "explicit": HAL device, push constants when supported (Vulkan)
//   - "portable": wgpu device, uniform buffer
//   - "reference": CPU rasterizer (always available)
package backend
