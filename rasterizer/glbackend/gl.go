// rasterizer/glbackend/gl.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package glbackend implements rasterizer.Device with OpenGL 3.3 core
// profile calls.
package glbackend

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/lxengine/lxengine/log"
	"github.com/lxengine/lxengine/rasterizer"
	"github.com/lxengine/lxengine/util"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

type Device struct {
	lg *log.Logger
	// size returns the size of the window's framebuffer in pixels.
	size func() (int, int)

	createdTextures map[uint32]int
}

var _ rasterizer.Device = (*Device)(nil)

// New initializes OpenGL for the current context; the context must
// already be current on the calling thread.
func New(size func() (int, int), lg *log.Logger) (*Device, error) {
	lg.Info("Starting OpenGL initialization")
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	lg.Infof("OpenGL vendor %s renderer %s version %s", gl.GoStr(gl.GetString(gl.VENDOR)),
		gl.GoStr(gl.GetString(gl.RENDERER)), gl.GoStr(gl.GetString(gl.VERSION)))

	gl.Enable(gl.PROGRAM_POINT_SIZE)
	gl.DepthFunc(gl.LEQUAL)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)

	return &Device{
		lg:              lg,
		size:            size,
		createdTextures: make(map[uint32]int),
	}, nil
}

///////////////////////////////////////////////////////////////////////////
// Programs

func compileShader(stage uint32, src string) (uint32, error) {
	shader := gl.CreateShader(stage)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
		msg := strings.Repeat("\x00", int(n+1))
		gl.GetShaderInfoLog(shader, n, nil, gl.Str(msg))
		gl.DeleteShader(shader)
		return 0, errors.New(strings.TrimRight(msg, "\x00\n"))
	}
	return shader, nil
}

func (d *Device) CompileProgram(src rasterizer.ProgramSource) (uint32, error) {
	prog := gl.CreateProgram()

	var shaders []uint32
	defer func() {
		for _, s := range shaders {
			gl.DeleteShader(s)
		}
	}()
	for _, st := range []struct {
		name  string
		stage uint32
		src   string
	}{
		{"vertex", gl.VERTEX_SHADER, src.Vertex},
		{"geometry", gl.GEOMETRY_SHADER, src.Geometry},
		{"fragment", gl.FRAGMENT_SHADER, src.Fragment},
	} {
		if st.src == "" {
			if st.stage == gl.GEOMETRY_SHADER {
				continue
			}
			gl.DeleteProgram(prog)
			return 0, fmt.Errorf("no %s shader", st.name)
		}
		s, err := compileShader(st.stage, st.src)
		if err != nil {
			gl.DeleteProgram(prog)
			return 0, fmt.Errorf("%s shader: %w", st.name, err)
		}
		gl.AttachShader(prog, s)
		shaders = append(shaders, s)
	}

	gl.LinkProgram(prog)
	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &n)
		msg := strings.Repeat("\x00", int(n+1))
		gl.GetProgramInfoLog(prog, n, nil, gl.Str(msg))
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("link: %s", strings.TrimRight(msg, "\x00\n"))
	}
	return prog, nil
}

func (d *Device) DeleteProgram(id uint32) {
	gl.DeleteProgram(id)
}

func uniformType(t uint32) (rasterizer.UniformType, int) {
	switch t {
	case gl.FLOAT:
		return rasterizer.UniformFloat, 1
	case gl.FLOAT_VEC2:
		return rasterizer.UniformFloat, 2
	case gl.FLOAT_VEC3:
		return rasterizer.UniformFloat, 3
	case gl.FLOAT_VEC4:
		return rasterizer.UniformFloat, 4
	case gl.INT:
		return rasterizer.UniformInt, 1
	case gl.BOOL:
		return rasterizer.UniformBool, 1
	case gl.FLOAT_MAT3:
		return rasterizer.UniformMat3, 1
	case gl.FLOAT_MAT4:
		return rasterizer.UniformMat4, 1
	case gl.SAMPLER_2D:
		return rasterizer.UniformSampler2D, 1
	case gl.SAMPLER_CUBE:
		return rasterizer.UniformSamplerCube, 1
	default:
		return rasterizer.UniformUnsupported, 1
	}
}

func (d *Device) ProgramUniforms(prog uint32) []rasterizer.UniformInfo {
	var n int32
	gl.GetProgramiv(prog, gl.ACTIVE_UNIFORMS, &n)

	var u []rasterizer.UniformInfo
	buf := make([]uint8, 256)
	for i := range uint32(n) {
		var length, size int32
		var xtype uint32
		gl.GetActiveUniform(prog, i, int32(len(buf)), &length, &size, &xtype, &buf[0])
		// Arrays are reported as "name[0]".
		name, _ := strings.CutSuffix(string(buf[:length]), "[0]")

		ty, comp := uniformType(xtype)
		u = append(u, rasterizer.UniformInfo{
			Name:       name,
			Location:   gl.GetUniformLocation(prog, gl.Str(name+"\x00")),
			Type:       ty,
			Components: comp,
			ArraySize:  int(size),
		})
	}
	return u
}

func (d *Device) ProgramAttributes(prog uint32) []rasterizer.AttributeInfo {
	var n int32
	gl.GetProgramiv(prog, gl.ACTIVE_ATTRIBUTES, &n)

	var a []rasterizer.AttributeInfo
	buf := make([]uint8, 256)
	for i := range uint32(n) {
		var length, size int32
		var xtype uint32
		gl.GetActiveAttrib(prog, i, int32(len(buf)), &length, &size, &xtype, &buf[0])
		name := string(buf[:length])
		if strings.HasPrefix(name, "gl_") {
			continue
		}
		if loc := gl.GetAttribLocation(prog, gl.Str(name+"\x00")); loc >= 0 {
			a = append(a, rasterizer.AttributeInfo{Name: name, Location: uint32(loc)})
		}
	}
	return a
}

func (d *Device) UseProgram(prog uint32) {
	gl.UseProgram(prog)
}

func (d *Device) Uniformf(loc int32, v ...float32) {
	switch len(v) {
	case 1:
		gl.Uniform1f(loc, v[0])
	case 2:
		gl.Uniform2f(loc, v[0], v[1])
	case 3:
		gl.Uniform3f(loc, v[0], v[1], v[2])
	case 4:
		gl.Uniform4f(loc, v[0], v[1], v[2], v[3])
	default:
		d.lg.Warnf("Uniformf: %d values", len(v))
	}
}

func (d *Device) UniformfArray(loc int32, components int, v []float32) {
	if len(v) == 0 || components == 0 {
		return
	}
	count := int32(len(v) / components)
	switch components {
	case 1:
		gl.Uniform1fv(loc, count, &v[0])
	case 2:
		gl.Uniform2fv(loc, count, &v[0])
	case 3:
		gl.Uniform3fv(loc, count, &v[0])
	case 4:
		gl.Uniform4fv(loc, count, &v[0])
	}
}

func (d *Device) Uniformi(loc int32, v int32) {
	gl.Uniform1i(loc, v)
}

func (d *Device) UniformMatrix3(loc int32, m mgl32.Mat3) {
	gl.UniformMatrix3fv(loc, 1, false, &m[0])
}

func (d *Device) UniformMatrix4(loc int32, m mgl32.Mat4) {
	gl.UniformMatrix4fv(loc, 1, false, &m[0])
}

///////////////////////////////////////////////////////////////////////////
// Vertex data

func (d *Device) CreateVertexArray() uint32 {
	var id uint32
	gl.GenVertexArrays(1, &id)
	return id
}

func (d *Device) DeleteVertexArray(id uint32) {
	gl.DeleteVertexArrays(1, &id)
}

func (d *Device) BindVertexArray(id uint32) {
	gl.BindVertexArray(id)
}

func (d *Device) CreateArrayBuffer(data []float32) uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.ARRAY_BUFFER, id)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(data), gl.Ptr(data), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return id
}

func (d *Device) CreateIndexBuffer(data []uint32) uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	// Bind through ARRAY_BUFFER so that no vertex array's element
	// binding is disturbed; the target doesn't matter for the data.
	gl.BindBuffer(gl.ARRAY_BUFFER, id)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(data), gl.Ptr(data), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return id
}

func (d *Device) DeleteBuffer(id uint32) {
	gl.DeleteBuffers(1, &id)
}

func (d *Device) BindAttribute(loc uint32, buf uint32, components int) {
	gl.BindBuffer(gl.ARRAY_BUFFER, buf)
	gl.EnableVertexAttribArray(loc)
	gl.VertexAttribPointer(loc, int32(components), gl.FLOAT, false, 0, nil)
}

func (d *Device) DisableAttribute(loc uint32) {
	gl.DisableVertexAttribArray(loc)
}

///////////////////////////////////////////////////////////////////////////
// Textures

func (d *Device) createdTexture(id uint32, bytes int) {
	_, exists := d.createdTextures[id]
	d.createdTextures[id] = bytes

	total := 0
	for _, b := range d.createdTextures {
		total += b
	}
	mb := float32(total) / (1024 * 1024)
	if exists {
		d.lg.Debugf("Updated tex id %d: %d bytes -> %.2f MiB of textures total", id, bytes, mb)
	} else {
		d.lg.Debugf("Created tex id %d: %d bytes -> %.2f MiB of textures total", id, bytes, mb)
	}
}

func setFilter(target uint32, filter rasterizer.TextureFilter) {
	minf := util.Select(filter == rasterizer.FilterNearest, gl.NEAREST, gl.LINEAR)
	if filter == rasterizer.FilterMipmap {
		minf = gl.LINEAR_MIPMAP_LINEAR
		gl.GenerateMipmap(target)
	}
	gl.TexParameteri(target, gl.TEXTURE_MIN_FILTER, int32(minf))
	gl.TexParameteri(target, gl.TEXTURE_MAG_FILTER, int32(util.Select(filter == rasterizer.FilterNearest, gl.NEAREST, gl.LINEAR)))
}

func texImage(target uint32, img *image.RGBA) {
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	gl.TexImage2D(target, 0, gl.RGBA8, int32(img.Bounds().Dx()), int32(img.Bounds().Dy()), 0, gl.RGBA,
		gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
}

func (d *Device) CreateTexture2D(img *image.RGBA, filter rasterizer.TextureFilter) uint32 {
	var id uint32
	gl.GenTextures(1, &id)
	d.UpdateTexture2D(id, img, filter)
	return id
}

func (d *Device) UpdateTexture2D(id uint32, img *image.RGBA, filter rasterizer.TextureFilter) {
	gl.BindTexture(gl.TEXTURE_2D, id)
	texImage(gl.TEXTURE_2D, img)
	setFilter(gl.TEXTURE_2D, filter)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	d.createdTexture(id, len(img.Pix))
}

func (d *Device) CreateCubeMap(faces [6]*image.RGBA) uint32 {
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, id)
	bytes := 0
	for i, img := range faces {
		texImage(gl.TEXTURE_CUBE_MAP_POSITIVE_X+uint32(i), img)
		bytes += len(img.Pix)
	}
	setFilter(gl.TEXTURE_CUBE_MAP, rasterizer.FilterLinear)
	for _, p := range []uint32{gl.TEXTURE_WRAP_S, gl.TEXTURE_WRAP_T, gl.TEXTURE_WRAP_R} {
		gl.TexParameteri(gl.TEXTURE_CUBE_MAP, p, gl.CLAMP_TO_EDGE)
	}
	gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
	d.createdTexture(id, bytes)
	return id
}

func (d *Device) DeleteTexture(id uint32) {
	gl.DeleteTextures(1, &id)
	delete(d.createdTextures, id)
}

func (d *Device) BindTexture(unit int, target rasterizer.TextureTarget, id uint32) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(util.Select(target == rasterizer.TextureCube, uint32(gl.TEXTURE_CUBE_MAP), uint32(gl.TEXTURE_2D)), id)
}

///////////////////////////////////////////////////////////////////////////
// Framebuffers

func (d *Device) CreateFramebuffer(width, height int) (rasterizer.FramebufferHandles, error) {
	var h rasterizer.FramebufferHandles

	gl.GenTextures(1, &h.Color)
	gl.BindTexture(gl.TEXTURE_2D, h.Color)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenRenderbuffers(1, &h.Depth)
	gl.BindRenderbuffer(gl.RENDERBUFFER, h.Depth)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, int32(width), int32(height))
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)

	gl.GenFramebuffers(1, &h.FBO)
	gl.BindFramebuffer(gl.FRAMEBUFFER, h.FBO)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, h.Color, 0)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, h.Depth)
	err := d.CheckFramebuffer()
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	if err != nil {
		d.DeleteFramebuffer(h)
		return rasterizer.FramebufferHandles{}, err
	}
	d.createdTexture(h.Color, 4*width*height)
	return h, nil
}

func (d *Device) DeleteFramebuffer(h rasterizer.FramebufferHandles) {
	gl.DeleteFramebuffers(1, &h.FBO)
	gl.DeleteRenderbuffers(1, &h.Depth)
	d.DeleteTexture(h.Color)
}

func (d *Device) BindFramebuffer(fbo uint32) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
}

func (d *Device) CheckFramebuffer() error {
	switch status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status {
	case gl.FRAMEBUFFER_COMPLETE:
		return nil
	case gl.FRAMEBUFFER_INCOMPLETE_ATTACHMENT:
		return errors.New("incomplete attachment")
	case gl.FRAMEBUFFER_INCOMPLETE_MISSING_ATTACHMENT:
		return errors.New("missing attachment")
	case gl.FRAMEBUFFER_UNSUPPORTED:
		return errors.New("unsupported format combination")
	default:
		return fmt.Errorf("status 0x%x", status)
	}
}

func (d *Device) Viewport(x, y, width, height int) {
	gl.Viewport(int32(x), int32(y), int32(width), int32(height))
}

func (d *Device) ScreenSize() (int, int) {
	return d.size()
}

///////////////////////////////////////////////////////////////////////////
// State and drawing

func (d *Device) Clear(c mgl32.Vec4) {
	gl.ClearColor(c[0], c[1], c[2], c[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

func enable(c uint32, enabled bool) {
	if enabled {
		gl.Enable(c)
	} else {
		gl.Disable(c)
	}
}

func (d *Device) SetBlend(enabled bool) {
	enable(gl.BLEND, enabled)
}

func (d *Device) SetDepthTest(enabled bool) {
	enable(gl.DEPTH_TEST, enabled)
}

func (d *Device) SetWireframe(enabled bool) {
	gl.PolygonMode(gl.FRONT_AND_BACK, util.Select(enabled, uint32(gl.LINE), uint32(gl.FILL)))
}

func glMode(p rasterizer.Primitive) uint32 {
	switch p {
	case rasterizer.PrimitivePoints:
		return gl.POINTS
	case rasterizer.PrimitiveLines:
		return gl.LINES
	default:
		return gl.TRIANGLES
	}
}

func (d *Device) DrawArrays(mode rasterizer.Primitive, count int) {
	gl.DrawArrays(glMode(mode), 0, int32(count))
}

func (d *Device) DrawElements(mode rasterizer.Primitive, indices uint32, count int) {
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, indices)
	gl.DrawElements(glMode(mode), int32(count), gl.UNSIGNED_INT, nil)
}

func (d *Device) ReadPixels(x, y, width, height int) []byte {
	p := make([]byte, 4*width*height)
	if len(p) == 0 {
		return p
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(int32(x), int32(y), int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(p))
	return p
}
