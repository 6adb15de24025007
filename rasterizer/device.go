// rasterizer/device.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// Device is the set of GPU operations that the rasterizer issues. There
// is a single production implementation, in the glbackend package, that
// maps these directly to OpenGL 3.3 core profile calls; keeping them
// behind an interface lets the pipeline be exercised without a GPU.
//
// All Device methods must be called from the thread that owns the GL
// context.
type Device interface {
	// CompileProgram compiles and links the given shader stages; the
	// geometry stage is optional.
	CompileProgram(src ProgramSource) (uint32, error)
	DeleteProgram(id uint32)
	// ProgramUniforms returns the active uniforms of a linked program.
	// Array uniforms are reported once with their base name.
	ProgramUniforms(prog uint32) []UniformInfo
	ProgramAttributes(prog uint32) []AttributeInfo
	UseProgram(prog uint32)

	// Uniformf sets a float, vec2, vec3, or vec4 uniform depending on
	// the number of values.
	Uniformf(loc int32, v ...float32)
	// UniformfArray sets count consecutive vectors of the given number
	// of components.
	UniformfArray(loc int32, components int, v []float32)
	Uniformi(loc int32, v int32)
	UniformMatrix3(loc int32, m mgl32.Mat3)
	UniformMatrix4(loc int32, m mgl32.Mat4)

	CreateVertexArray() uint32
	DeleteVertexArray(id uint32)
	BindVertexArray(id uint32)
	CreateArrayBuffer(data []float32) uint32
	CreateIndexBuffer(data []uint32) uint32
	DeleteBuffer(id uint32)
	// BindAttribute sources vertex attribute loc from buf, which holds
	// tightly packed vectors with the given number of components.
	BindAttribute(loc uint32, buf uint32, components int)
	DisableAttribute(loc uint32)

	CreateTexture2D(img *image.RGBA, filter TextureFilter) uint32
	UpdateTexture2D(id uint32, img *image.RGBA, filter TextureFilter)
	CreateCubeMap(faces [6]*image.RGBA) uint32
	DeleteTexture(id uint32)
	BindTexture(unit int, target TextureTarget, id uint32)

	// CreateFramebuffer allocates an offscreen target with an RGBA color
	// texture and a depth renderbuffer.
	CreateFramebuffer(width, height int) (FramebufferHandles, error)
	DeleteFramebuffer(h FramebufferHandles)
	BindFramebuffer(fbo uint32)
	// CheckFramebuffer returns an error if the bound framebuffer is not
	// complete.
	CheckFramebuffer() error
	Viewport(x, y, width, height int)
	// ScreenSize returns the size of the default framebuffer in pixels.
	ScreenSize() (width, height int)

	Clear(color mgl32.Vec4)
	SetBlend(enabled bool)
	SetDepthTest(enabled bool)
	SetWireframe(enabled bool)

	DrawArrays(mode Primitive, count int)
	DrawElements(mode Primitive, indices uint32, count int)

	// ReadPixels returns RGBA bytes for the given rectangle of the bound
	// framebuffer, bottom row first.
	ReadPixels(x, y, width, height int) []byte
}

// ProgramSource holds the GLSL source for the stages of a shader program.
type ProgramSource struct {
	Vertex   string
	Geometry string
	Fragment string
}

type UniformType int

const (
	UniformFloat UniformType = iota // float and vecN; see Components
	UniformInt
	UniformBool
	UniformMat3
	UniformMat4
	UniformSampler2D
	UniformSamplerCube
	UniformUnsupported
)

func (t UniformType) IsSampler() bool {
	return t == UniformSampler2D || t == UniformSamplerCube
}

func (t UniformType) String() string {
	switch t {
	case UniformFloat:
		return "float"
	case UniformInt:
		return "int"
	case UniformBool:
		return "bool"
	case UniformMat3:
		return "mat3"
	case UniformMat4:
		return "mat4"
	case UniformSampler2D:
		return "sampler2D"
	case UniformSamplerCube:
		return "samplerCube"
	default:
		return "unsupported"
	}
}

type UniformInfo struct {
	Name       string
	Location   int32
	Type       UniformType
	Components int // 1-4 for UniformFloat
	ArraySize  int
}

func (u UniformInfo) String() string {
	if u.ArraySize > 1 {
		return fmt.Sprintf("%s %s[%d]@%d", u.Type, u.Name, u.ArraySize, u.Location)
	}
	return fmt.Sprintf("%s %s@%d", u.Type, u.Name, u.Location)
}

type AttributeInfo struct {
	Name     string
	Location uint32
}

type TextureTarget int

const (
	Texture2D TextureTarget = iota
	TextureCube
)

type TextureFilter int

const (
	FilterLinear TextureFilter = iota
	FilterNearest
	FilterMipmap
)

func ParseTextureFilter(s string) (TextureFilter, bool) {
	switch s {
	case "", "linear":
		return FilterLinear, true
	case "nearest":
		return FilterNearest, true
	case "mipmap":
		return FilterMipmap, true
	default:
		return FilterLinear, false
	}
}

// FramebufferHandles are the native objects behind an offscreen
// FrameBuffer.
type FramebufferHandles struct {
	FBO, Color, Depth uint32
}
