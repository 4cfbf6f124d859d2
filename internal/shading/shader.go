// Package shading holds the one shading contract shared by every backend:
// a WGSL template rendered per mode and transmission, its SPIR-V compilation
// through naga, and a CPU evaluation of the same math.
package shading

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/gogpu/naga"

	"github.com/gogpu/offscreen/internal/marshal"
	"github.com/gogpu/offscreen/scene"
)

// Shader entry points.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

// ErrCompile wraps shader compilation failures.
var ErrCompile = errors.New("shading: shader compilation failed")

// Mode is the lighting model of a pipeline.
type Mode uint8

const (
	// Flat reconstructs the face normal from screen-space derivatives and
	// applies attenuated diffuse lighting.
	Flat Mode = iota

	// Smooth interpolates vertex normals and applies diffuse and specular
	// lighting without attenuation.
	Smooth
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Smooth {
		return "smooth"
	}
	return "flat"
}

// ModeFor returns the shading mode tied to a vertex layout.
func ModeFor(l scene.Layout) Mode {
	if l == scene.LayoutPositionNormal {
		return Smooth
	}
	return Flat
}

// Options selects a shader variant.
type Options struct {
	Mode         Mode
	Layout       marshal.Layout
	Transmission marshal.Transmission
}

//go:embed forward.wgsl.tmpl
var forwardSource string

var forwardTemplate = template.Must(template.New("forward").
	Funcs(template.FuncMap{"f32": formatF32}).
	Parse(forwardSource))

type templateData struct {
	Mode             Mode
	Transmission     marshal.Transmission
	LayoutName       string
	Struct           string
	PushConstant     bool
	Flat             bool
	Ambient          float32
	AttenLinear      float32
	AttenQuadratic   float32
	Shininess        float32
	SpecularStrength float32
}

// Generate renders the WGSL source for a variant. The uniform struct is
// declared from opts.Layout, so its offsets match the host packer.
func Generate(opts Options) (string, error) {
	if opts.Layout == nil {
		return "", errors.New("shading: nil uniform layout")
	}
	var b strings.Builder
	err := forwardTemplate.Execute(&b, templateData{
		Mode:             opts.Mode,
		Transmission:     opts.Transmission,
		LayoutName:       opts.Layout.Name(),
		Struct:           opts.Layout.WGSLStruct("Uniforms"),
		PushConstant:     opts.Transmission == marshal.PushConstant,
		Flat:             opts.Mode == Flat,
		Ambient:          Ambient,
		AttenLinear:      AttenLinear,
		AttenQuadratic:   AttenQuadratic,
		Shininess:        Shininess,
		SpecularStrength: SpecularStrength,
	})
	if err != nil {
		return "", fmt.Errorf("shading: render template: %w", err)
	}
	return b.String(), nil
}

// CompileSPIRV validates wgsl with naga and returns SPIR-V words.
func CompileSPIRV(wgsl string) ([]uint32, error) {
	code, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: SPIR-V length %d not a multiple of 4", ErrCompile, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

// formatF32 prints a WGSL float literal that always carries a decimal point.
func formatF32(f float32) string {
	s := strconv.FormatFloat(float64(f), 'f', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
