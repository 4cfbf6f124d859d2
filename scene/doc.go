// Package scene describes what gets rendered: triangle meshes with a fixed
// vertex layout, a camera, a point light and the per-frame uniform block.
//
// Scene values are plain data. Backends validate them when a pipeline is
// created (Mesh) and before each frame is packed (Uniforms).
//
// The vertex layout decides the shading mode:
//
//	LayoutPositionColor   flat shading, normal reconstructed per fragment
//	LayoutPositionNormal  smooth shading with specular, no attenuation
package scene
