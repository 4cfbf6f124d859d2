// Package offscreen renders a static triangle mesh lit by a single point
// light into off-screen images and writes them to disk.
//
// # Overview
//
// offscreen is a small forward renderer built for deterministic batch
// capture rather than interactive display. A scene (mesh, camera, light and
// base color) is marshaled into a GPU uniform block, drawn into an
// off-screen RGBA8 color attachment with a depth buffer, and copied back to
// host memory as a [Frame].
//
// # Backends
//
// Two GPU backends implement the same visual contract behind the [Backend]
// and [Renderer] interfaces:
//
//   - backend/explicit drives gogpu/wgpu's hal layer directly: command
//     encoders, texture barriers, explicit submission and wait, and push
//     constants when the device supports them.
//   - backend/portable uses the top-level gogpu/wgpu API: bind groups,
//     uniform buffers and asynchronous buffer mapping.
//
// backend/reference is a CPU rasterizer implementing the same shading
// contract. It needs no GPU and is deterministic by construction.
//
// Backends register themselves with the backend package on import:
//
//	import (
//	    "github.com/gogpu/offscreen/backend"
//	    _ "github.com/gogpu/offscreen/backend/explicit"
//	)
//
//	b := backend.Get("explicit")
//	if err := b.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	r, err := b.Create(scene.Cube(), offscreen.DefaultPipelineConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Destroy()
//
//	frame, err := r.Render(uniforms)
//
// # Shading
//
// The shading mode is tied to the mesh layout. Meshes carrying per-vertex
// colors are flat shaded: the fragment stage rebuilds the face normal from
// screen-space derivatives of the world position and applies ambient plus
// distance-attenuated diffuse lighting. Meshes carrying per-vertex normals
// are smooth shaded with ambient, diffuse and a Phong specular term and no
// attenuation.
//
// # Sequences
//
// The sequencer package drives a Renderer across a camera or light
// trajectory and writes numbered image files (cube_000.png, cube_001.png,
// ...).
//
// # Errors
//
// Failures are reported as *[Error] values carrying a [Kind]; use
// errors.Is with [ErrResourceCreation], [ErrUniformPacking],
// [ErrRenderSubmission], [ErrReadback] or [ErrOutput] to classify them.
package offscreen
