// Package marshal packs a scene.Uniforms block into GPU memory.
//
// A Layout is a table of field offsets. The same table drives the host-side
// packer and the WGSL struct declaration emitted for the shader, so the two
// can not disagree about where a field lives.
//
// Two layouts exist:
//
//	Compact  192 bytes, vec3 tails carry scalars, sized for push constants
//	Padded   208 bytes, every vec3 padded to 16 bytes, for uniform buffers
//
// Select picks one from device capabilities and a PushConstantPolicy.
package marshal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gogpu/offscreen/math3d"
	"github.com/gogpu/offscreen/scene"
)

// ErrInvalidLayout is returned by NewLayout for tables that violate WGSL
// host-shareable alignment rules.
var ErrInvalidLayout = errors.New("marshal: invalid layout")

// FieldType is the WGSL type of a uniform field.
type FieldType uint8

const (
	Mat4 FieldType = iota
	Vec3
	F32
)

// WGSL returns the type name as written in WGSL.
func (t FieldType) WGSL() string {
	switch t {
	case Mat4:
		return "mat4x4<f32>"
	case Vec3:
		return "vec3<f32>"
	default:
		return "f32"
	}
}

// Size returns the byte size of the type.
func (t FieldType) Size() uint32 {
	switch t {
	case Mat4:
		return 64
	case Vec3:
		return 12
	default:
		return 4
	}
}

// Align returns the required byte alignment of the type.
func (t FieldType) Align() uint32 {
	if t == F32 {
		return 4
	}
	return 16
}

// FieldID names a logical field of the uniform block.
type FieldID uint8

const (
	FieldMVP FieldID = iota
	FieldModel
	FieldLightPosition
	FieldLightIntensity
	FieldLightColor
	FieldBaseColor
	FieldEye

	numFields
)

var fieldInfo = [numFields]struct {
	name string
	typ  FieldType
}{
	FieldMVP:            {"mvp", Mat4},
	FieldModel:          {"model", Mat4},
	FieldLightPosition:  {"light_position", Vec3},
	FieldLightIntensity: {"light_intensity", F32},
	FieldLightColor:     {"light_color", Vec3},
	FieldBaseColor:      {"base_color", Vec3},
	FieldEye:            {"eye", Vec3},
}

// Name returns the WGSL member name.
func (f FieldID) Name() string { return fieldInfo[f].name }

// Type returns the WGSL member type.
func (f FieldID) Type() FieldType { return fieldInfo[f].typ }

// Field places a logical field at a byte offset.
type Field struct {
	ID     FieldID
	Offset uint32
}

// Layout is a physical packing of the uniform block.
type Layout interface {
	// Name identifies the layout in logs.
	Name() string

	// Size is the byte size of the packed block, a multiple of 16.
	Size() uint32

	// Fields returns the field table sorted by offset.
	Fields() []Field

	// Pack validates u and writes it into a new Size()-byte buffer.
	Pack(u scene.Uniforms) ([]byte, error)

	// WGSLStruct declares a WGSL struct whose natural layout reproduces the
	// field table, with explicit padding members for gaps.
	WGSLStruct(typeName string) string
}

// Compact is the push-constant layout. light_intensity shares the 16-byte
// slot of light_position.
var Compact = mustLayout("compact", 192, []Field{
	{FieldMVP, 0},
	{FieldModel, 64},
	{FieldLightPosition, 128},
	{FieldLightIntensity, 140},
	{FieldLightColor, 144},
	{FieldBaseColor, 160},
	{FieldEye, 176},
})

// Padded is the uniform-buffer layout. Every vec3 occupies a full 16-byte
// slot and the scalar trails the vectors.
var Padded = mustLayout("padded", 208, []Field{
	{FieldMVP, 0},
	{FieldModel, 64},
	{FieldLightPosition, 128},
	{FieldLightColor, 144},
	{FieldBaseColor, 160},
	{FieldEye, 176},
	{FieldLightIntensity, 192},
})

type table struct {
	name   string
	size   uint32
	fields []Field
}

// NewLayout builds a layout from a field table. Every logical field must
// appear exactly once at an offset aligned for its type, fields must not
// overlap, and size must be a multiple of 16 covering the last field.
func NewLayout(name string, size uint32, fields []Field) (Layout, error) {
	t := &table{name: name, size: size, fields: append([]Field(nil), fields...)}
	sort.Slice(t.fields, func(i, j int) bool { return t.fields[i].Offset < t.fields[j].Offset })
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func mustLayout(name string, size uint32, fields []Field) Layout {
	l, err := NewLayout(name, size, fields)
	if err != nil {
		panic(err)
	}
	return l
}

func (t *table) validate() error {
	var seen [numFields]bool
	var end uint32
	for _, f := range t.fields {
		if f.ID >= numFields {
			return fmt.Errorf("%w: %s: unknown field %d", ErrInvalidLayout, t.name, f.ID)
		}
		if seen[f.ID] {
			return fmt.Errorf("%w: %s: duplicate field %s", ErrInvalidLayout, t.name, f.ID.Name())
		}
		seen[f.ID] = true

		typ := f.ID.Type()
		if f.Offset%typ.Align() != 0 {
			return fmt.Errorf("%w: %s: %s at %d not %d-byte aligned",
				ErrInvalidLayout, t.name, f.ID.Name(), f.Offset, typ.Align())
		}
		if f.Offset < end {
			return fmt.Errorf("%w: %s: %s at %d overlaps previous field ending at %d",
				ErrInvalidLayout, t.name, f.ID.Name(), f.Offset, end)
		}
		end = f.Offset + typ.Size()
	}
	for id, ok := range seen {
		if !ok {
			return fmt.Errorf("%w: %s: missing field %s", ErrInvalidLayout, t.name, FieldID(id).Name())
		}
	}
	if t.size%16 != 0 || t.size < end || t.size-end >= 16 {
		return fmt.Errorf("%w: %s: size %d for %d bytes of fields", ErrInvalidLayout, t.name, t.size, end)
	}
	return nil
}

func (t *table) Name() string    { return t.name }
func (t *table) Size() uint32    { return t.size }
func (t *table) Fields() []Field { return append([]Field(nil), t.fields...) }

func (t *table) Pack(u scene.Uniforms) ([]byte, error) {
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("marshal: %s: %w", t.name, err)
	}
	buf := make([]byte, t.size)
	mvp := u.Transforms.MVP()
	for _, f := range t.fields {
		dst := buf[f.Offset:]
		switch f.ID {
		case FieldMVP:
			putMat4(dst, mvp)
		case FieldModel:
			putMat4(dst, u.Transforms.Model)
		case FieldLightPosition:
			putVec3(dst, u.Light.Position)
		case FieldLightIntensity:
			putF32(dst, u.Light.Intensity)
		case FieldLightColor:
			putVec3(dst, u.Light.Color)
		case FieldBaseColor:
			putVec3(dst, u.BaseColor)
		case FieldEye:
			putVec3(dst, u.Eye)
		}
	}
	return buf, nil
}

func (t *table) WGSLStruct(typeName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "struct %s {\n", typeName)
	var cursor uint32
	pad := 0
	for _, f := range t.fields {
		for ; cursor < f.Offset; cursor += 4 {
			fmt.Fprintf(&b, "    pad%d: f32,\n", pad)
			pad++
		}
		fmt.Fprintf(&b, "    %s: %s,\n", f.ID.Name(), f.ID.Type().WGSL())
		cursor = f.Offset + f.ID.Type().Size()
	}
	b.WriteString("}\n")
	return b.String()
}

func putF32(dst []byte, f float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
}

func putVec3(dst []byte, v math3d.Vec3) {
	putF32(dst, v.X)
	putF32(dst[4:], v.Y)
	putF32(dst[8:], v.Z)
}

func putMat4(dst []byte, m math3d.Mat4) {
	for i, f := range m {
		putF32(dst[i*4:], f)
	}
}
