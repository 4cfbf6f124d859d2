package offscreen

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
)

// ParityTolerance is the largest per-channel difference, in 1/255 steps,
// accepted between frames rendered by different backends from the same
// scene.
const ParityTolerance = 2

// Frame is an immutable readback of one rendered image.
//
// Pix holds tightly packed RGBA8 pixels, row-major with the origin at the
// top-left corner. Stride is always 4*Width.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*4),
	}
}

// Stride returns the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * 4
}

// RGBA returns the channels of the pixel at (x, y). Out-of-range
// coordinates return zeros.
func (f *Frame) RGBA(x, y int) (r, g, b, a uint8) {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return 0, 0, 0, 0
	}
	i := y*f.Stride() + x*4
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]
}

// Image returns a copy of the frame as an *image.NRGBA. The color targets
// are opaque, so straight and premultiplied alpha coincide.
func (f *Frame) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pix)
	return img
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := &Frame{Width: f.Width, Height: f.Height, Pix: make([]uint8, len(f.Pix))}
	copy(c.Pix, f.Pix)
	return c
}

// Equal reports whether both frames have the same size and identical pixels.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.Width == o.Width && f.Height == o.Height && bytes.Equal(f.Pix, o.Pix)
}

// MaxChannelDelta returns the largest absolute per-channel difference
// between f and o. Frames of different size are an error.
func (f *Frame) MaxChannelDelta(o *Frame) (int, error) {
	if f.Width != o.Width || f.Height != o.Height {
		return 0, fmt.Errorf("offscreen: frame size mismatch: %dx%d vs %dx%d",
			f.Width, f.Height, o.Width, o.Height)
	}
	maxDelta := 0
	for i := range f.Pix {
		d := int(f.Pix[i]) - int(o.Pix[i])
		if d < 0 {
			d = -d
		}
		if d > maxDelta {
			maxDelta = d
		}
	}
	return maxDelta, nil
}

// WithinTolerance reports whether every channel of f differs from o by at
// most tol.
func (f *Frame) WithinTolerance(o *Frame, tol int) bool {
	d, err := f.MaxChannelDelta(o)
	return err == nil && d <= tol
}

// SavePNG saves the frame to a PNG file.
func (f *Frame) SavePNG(path string) error {
	out, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	if err := png.Encode(out, f.Image()); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
