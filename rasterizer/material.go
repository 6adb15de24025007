// rasterizer/material.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Parameters maps uniform names to values. Values may be numbers,
// booleans, numeric slices (including mgl32 vectors and matrices), or
// strings naming textures; the string "@sourceFBO" refers to the color
// attachment of a blit pass's source framebuffer.
type Parameters map[string]any

const SourceFBOParameter = "@sourceFBO"

// standardParameters are used for uniforms that neither the material
// instance nor its class provide.
var standardParameters = Parameters{
	"unifDiffuse":   []float32{0.8, 0.75, 0.75},
	"unifSpecular":  []float32{0.95, 0.95, 0.75},
	"unifAmbient":   []float32{0.1, 0.1, 0.1},
	"unifColor":     []float32{1, 1, 1, 1},
	"unifPointSize": float32(4),
}

// vertexChannel identifies the geometry channel that feeds a vertex
// attribute.
type vertexChannel int

const (
	channelNone vertexChannel = iota
	channelPosition
	channelNormal
	channelColor
	channelUV0
)

// attributeChannel maps shader attribute names to channels: vertPosition,
// vertNormal, vertColor, and vertUV or vertUV0 through vertUV7.
func attributeChannel(name string) vertexChannel {
	switch name {
	case "vertPosition":
		return channelPosition
	case "vertNormal":
		return channelNormal
	case "vertColor":
		return channelColor
	case "vertUV":
		return channelUV0
	}
	if s, ok := strings.CutPrefix(name, "vertUV"); ok {
		if i, err := strconv.Atoi(s); err == nil && i >= 0 && i < MaxUVChannels {
			return channelUV0 + vertexChannel(i)
		}
	}
	return channelNone
}

type attributeBinding struct {
	location uint32
	channel  vertexChannel
}

// MaterialClass is a compiled shader program with its class-wide
// defaults. All Materials of a class share the program.
type MaterialClass struct {
	Name string
	// GeometryType is the primitive type the class' shaders expect.
	GeometryType Primitive
	Defaults     Parameters
	Blend        bool
	DepthTest    bool

	program    uint32
	uniforms   []UniformInfo
	attributes []attributeBinding
	source     ProgramSource
}

// Program returns the native program handle.
func (mc *MaterialClass) Program() uint32 {
	return mc.program
}

func (mc *MaterialClass) Uniforms() []UniformInfo {
	return mc.uniforms
}

// Material is a parameterized instance of a MaterialClass.
type Material struct {
	Class        *MaterialClass
	Instance     string
	Parameters   Parameters
	Blend        bool
	DepthTest    bool
	GeometryType Primitive

	textures map[string]*Texture
}

func (m *Material) Name() string {
	if m.Instance == "" {
		return m.Class.Name
	}
	return m.Class.Name + "." + m.Instance
}

func (m *Material) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", m.Name()),
		slog.String("geometry", m.GeometryType.String()),
		slog.Bool("blend", m.Blend),
		slog.Bool("ztest", m.DepthTest))
}

// lookup resolves a parameter: instance first, then class defaults, then
// the standard values.
func (m *Material) lookup(name string) (any, bool) {
	if v, ok := m.Parameters[name]; ok {
		return v, true
	}
	if v, ok := m.Class.Defaults[name]; ok {
		return v, true
	}
	v, ok := standardParameters[name]
	return v, ok
}

// builtinUniform reports whether the named uniform is supplied by the
// rasterizer itself rather than by material parameters.
func builtinUniform(name string) bool {
	switch name {
	case "unifProjMatrix", "unifViewMatrix", "unifModelMatrix", "unifNormalMatrix",
		"unifFlatNormals", "unifBBoxMin", "unifBBoxMax", "unifCurrentTime",
		"unifCameraPosition", "unifLightCount", "unifLightPosition", "unifLightColor",
		"unifLightAttenuation", "unifTextureSize":
		return true
	}
	return false
}

// Activate binds the material's program, pushes every uniform, binds the
// textures it references to consecutive units, and sets the blend and
// depth-test state. Nothing is restored afterward.
func (m *Material) Activate(r *Rasterizer) error {
	dev, ctx := r.dev, &r.ctx

	if r.frame.program != m.Class.program {
		dev.UseProgram(m.Class.program)
		r.frame.program = m.Class.program
		r.frame.stats.ProgramSwitches++
	}
	if r.frame.material != m {
		r.frame.material = m
		r.frame.stats.MaterialSwitches++
	}

	unit := 0
	for _, u := range m.Class.uniforms {
		if builtinUniform(u.Name) {
			r.setBuiltinUniform(u)
			continue
		}
		if u.Name == "unifAmbient" && ctx.Lights != nil {
			dev.Uniformf(u.Location, ctx.Ambient[:]...)
			continue
		}

		v, ok := m.lookup(u.Name)
		if !ok {
			continue
		}

		if u.Type.IsSampler() {
			id, target := m.samplerTexture(r, u, v)
			dev.BindTexture(unit, target, id)
			dev.Uniformi(u.Location, int32(unit))
			unit++
			continue
		}

		if err := setUniform(dev, u, v); err != nil {
			return fmt.Errorf("material %s: %w", m.Name(), err)
		}
	}

	ctx.attributes = m.Class.attributes
	dev.SetBlend(m.Blend)
	dev.SetDepthTest(m.DepthTest)
	return nil
}

func (m *Material) samplerTexture(r *Rasterizer, u UniformInfo, v any) (uint32, TextureTarget) {
	target := samplerTarget(u.Type)
	switch tv := v.(type) {
	case string:
		if tv == SourceFBOParameter {
			if r.ctx.Source != nil {
				return r.ctx.Source.ColorTexture(), Texture2D
			}
			return 0, target
		}
		if t := m.textures[u.Name]; t != nil {
			return t.ID(), t.Target
		}
	case *Texture:
		return tv.ID(), tv.Target
	}
	return 0, target
}

func samplerTarget(t UniformType) TextureTarget {
	if t == UniformSamplerCube {
		return TextureCube
	}
	return Texture2D
}

func (r *Rasterizer) setBuiltinUniform(u UniformInfo) {
	dev, ctx := r.dev, &r.ctx

	switch u.Name {
	case "unifProjMatrix":
		dev.UniformMatrix4(u.Location, ctx.ProjMatrix)
	case "unifViewMatrix":
		dev.UniformMatrix4(u.Location, ctx.ViewMatrix)
	case "unifModelMatrix":
		dev.UniformMatrix4(u.Location, ctx.ModelMatrix)
	case "unifNormalMatrix":
		dev.UniformMatrix3(u.Location, ctx.ViewMatrix.Mat3().Inv().Transpose())
	case "unifFlatNormals":
		dev.Uniformi(u.Location, int32(boolInt(ctx.FlatShading)))
	case "unifBBoxMin", "unifBBoxMax":
		if g := ctx.Geometry; g != nil && !g.Bounds.Empty() {
			v := g.Bounds.Min
			if u.Name == "unifBBoxMax" {
				v = g.Bounds.Max
			}
			dev.Uniformf(u.Location, v[:]...)
		}
	case "unifCurrentTime":
		dev.Uniformf(u.Location, ctx.Time)
	case "unifCameraPosition":
		dev.Uniformf(u.Location, ctx.CameraPosition[:]...)
	case "unifTextureSize":
		if ctx.Target != nil {
			dev.Uniformf(u.Location, float32(ctx.Target.Width), float32(ctx.Target.Height))
		}
	case "unifLightCount":
		dev.Uniformi(u.Location, int32(len(ctx.Lights)))
	case "unifLightPosition", "unifLightColor", "unifLightAttenuation":
		if len(ctx.Lights) == 0 {
			return
		}
		v := make([]float32, 0, 3*len(ctx.Lights))
		for _, l := range ctx.Lights[:min(len(ctx.Lights), max(u.ArraySize, 1))] {
			switch u.Name {
			case "unifLightPosition":
				// Shaders light in eye space.
				p := mgl32.TransformCoordinate(l.Position, ctx.CameraMatrix)
				v = append(v, p[:]...)
			case "unifLightColor":
				v = append(v, l.Color[:]...)
			case "unifLightAttenuation":
				v = append(v, l.Attenuation[:]...)
			}
		}
		dev.UniformfArray(u.Location, 3, v)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// setUniform converts v to the uniform's type and pushes it.
func setUniform(dev Device, u UniformInfo, v any) error {
	switch u.Type {
	case UniformInt, UniformBool:
		f, ok := toFloats(v)
		if !ok || len(f) != 1 {
			return fmt.Errorf("%s: %v is not a scalar", u.Name, v)
		}
		dev.Uniformi(u.Location, int32(f[0]))
	case UniformFloat:
		f, ok := toFloats(v)
		if !ok {
			return fmt.Errorf("%s: %v is not numeric", u.Name, v)
		}
		n := max(u.Components, 1)
		switch {
		case u.ArraySize > 1 && len(f) >= n && len(f)%n == 0:
			dev.UniformfArray(u.Location, n, f)
		case len(f) >= n:
			dev.Uniformf(u.Location, f[:n]...)
		case len(f) == 3 && n == 4:
			// Colors given as RGB for RGBA uniforms are opaque.
			dev.Uniformf(u.Location, f[0], f[1], f[2], 1)
		default:
			return fmt.Errorf("%s: %d values given for a %d-component uniform", u.Name, len(f), n)
		}
	case UniformMat3:
		f, ok := toFloats(v)
		if !ok || len(f) != 9 {
			return fmt.Errorf("%s: expected 9 values for mat3", u.Name)
		}
		var m mgl32.Mat3
		copy(m[:], f)
		dev.UniformMatrix3(u.Location, m)
	case UniformMat4:
		f, ok := toFloats(v)
		if !ok || len(f) != 16 {
			return fmt.Errorf("%s: expected 16 values for mat4", u.Name)
		}
		var m mgl32.Mat4
		copy(m[:], f)
		dev.UniformMatrix4(u.Location, m)
	default:
		return fmt.Errorf("%s: unsupported uniform type %s", u.Name, u.Type)
	}
	return nil
}

// toFloats flattens the numeric parameter representations that come from
// JSON, msgpack, scripts, and Go callers.
func toFloats(v any) ([]float32, bool) {
	switch tv := v.(type) {
	case float32:
		return []float32{tv}, true
	case float64:
		return []float32{float32(tv)}, true
	case int:
		return []float32{float32(tv)}, true
	case int32:
		return []float32{float32(tv)}, true
	case int64:
		return []float32{float32(tv)}, true
	case int8:
		return []float32{float32(tv)}, true
	case uint8:
		return []float32{float32(tv)}, true
	case bool:
		return []float32{float32(boolInt(tv))}, true
	case []float32:
		return tv, true
	case []float64:
		f := make([]float32, len(tv))
		for i, x := range tv {
			f[i] = float32(x)
		}
		return f, true
	case mgl32.Vec2:
		return tv[:], true
	case mgl32.Vec3:
		return tv[:], true
	case mgl32.Vec4:
		return tv[:], true
	case mgl32.Mat3:
		return tv[:], true
	case mgl32.Mat4:
		return tv[:], true
	case []any:
		var f []float32
		for _, x := range tv {
			xf, ok := toFloats(x)
			if !ok {
				return nil, false
			}
			f = append(f, xf...)
		}
		return f, true
	default:
		return nil, false
	}
}
