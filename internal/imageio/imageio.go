// Package imageio encodes rendered frames and writes them to disk.
package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an output image encoding.
type Format uint8

// Supported formats.
const (
	PNG Format = iota
	BMP
	TIFF
)

// ErrUnknownFormat is returned for a format name or value outside the
// supported set.
var ErrUnknownFormat = errors.New("imageio: unknown format")

// String returns the format name.
func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case BMP:
		return "bmp"
	case TIFF:
		return "tiff"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == TIFF {
		return ".tif"
	}
	return "." + f.String()
}

// ParseFormat accepts a format name or extension, with or without the
// leading dot, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png", "":
		return PNG, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	}
	return PNG, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Encode writes img to w in format f. PNG output uses default compression
// so identical images always produce identical bytes.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %v", ErrUnknownFormat, f)
	}
}

// WriteFile encodes img to path. The image is written to a temporary file
// in the same directory and renamed into place, so path either keeps its
// previous content or holds a complete image.
func WriteFile(path string, img image.Image, f Format) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("imageio: create temp: %w", err)
	}
	name := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if err := Encode(bw, img, f); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("imageio: encode %s: %w", f, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("imageio: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("imageio: close %s: %w", path, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("imageio: chmod %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("imageio: rename %s: %w", path, err)
	}
	return nil
}

// Decode reads an image written by Encode.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}

// ReadFile decodes the image at path.
func ReadFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}
