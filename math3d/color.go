package math3d

import "github.com/chewxy/math32"

// HSV converts a hue/saturation/value triple (all in [0, 1]) to linear RGB.
// Hue wraps around, so 1.25 is the same as 0.25.
func HSV(h, s, v float32) Vec3 {
	h = math32.Mod(h, 1)
	if h < 0 {
		h++
	}
	c := v * s
	x := c * (1 - math32.Abs(math32.Mod(h*6, 2)-1))
	m := v - c

	var r, g, b float32
	switch {
	case h < 1.0/6:
		r, g, b = c, x, 0
	case h < 2.0/6:
		r, g, b = x, c, 0
	case h < 3.0/6:
		r, g, b = 0, c, x
	case h < 4.0/6:
		r, g, b = 0, x, c
	case h < 5.0/6:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return Vec3{X: r + m, Y: g + m, Z: b + m}
}

// Quantize8 converts a channel value to an 8-bit unorm the way GPUs store
// fragment output: clamp to [0, 1], scale by 255 and round to nearest.
func Quantize8(f float32) uint8 {
	if math32.IsNaN(f) {
		return 0
	}
	return uint8(math32.Floor(clamp01(f)*255 + 0.5))
}
