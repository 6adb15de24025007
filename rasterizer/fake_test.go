// rasterizer/fake_test.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"errors"
	"fmt"
	"image"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

var _ Device = (*fakeDevice)(nil)

// fakeDevice records the calls made to it. Programs report the uniforms
// and attributes declared in their GLSL source, so the real built-in
// materials can be used in tests.
type fakeDevice struct {
	next uint32

	programs      map[uint32]ProgramSource
	uniforms      map[uint32][]UniformInfo
	arrayBuffers  map[uint32][]float32
	indexBuffers  map[uint32][]uint32
	textures      map[uint32]*image.RGBA
	deleted       []string
	clears        []mgl32.Vec4
	draws         []fakeDraw
	compileErr    error
	incompleteFBO uint32

	width, height int
	pixels        []byte

	// current state
	program  uint32
	vao      uint32
	fbo      uint32
	blend    bool
	depth    bool
	units    map[int]uint32
	attribs  map[uint32]uint32
	values   map[uint32]map[int32][]float32
	viewport [4]int
}

type fakeDraw struct {
	mode     Primitive
	count    int
	vao      uint32
	program  uint32
	fbo      uint32
	blend    bool
	depth    bool
	units    map[int]uint32
	attribs  map[uint32]uint32
	indexed  bool
	viewport [4]int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		programs:     make(map[uint32]ProgramSource),
		uniforms:     make(map[uint32][]UniformInfo),
		arrayBuffers: make(map[uint32][]float32),
		indexBuffers: make(map[uint32][]uint32),
		textures:     make(map[uint32]*image.RGBA),
		units:        make(map[int]uint32),
		attribs:      make(map[uint32]uint32),
		values:       make(map[uint32]map[int32][]float32),
		width:        640,
		height:       480,
	}
}

func (d *fakeDevice) id() uint32 {
	d.next++
	return d.next
}

var (
	uniformRE   = regexp.MustCompile(`(?m)^\s*uniform\s+(\w+)\s+(\w+)\s*(?:\[(\d+)\])?\s*;`)
	attributeRE = regexp.MustCompile(`(?m)^\s*in\s+(\w+)\s+(\w+)\s*;`)
)

func glslUniformType(t string) (UniformType, int) {
	switch t {
	case "float":
		return UniformFloat, 1
	case "vec2":
		return UniformFloat, 2
	case "vec3":
		return UniformFloat, 3
	case "vec4":
		return UniformFloat, 4
	case "int":
		return UniformInt, 1
	case "bool":
		return UniformBool, 1
	case "mat3":
		return UniformMat3, 1
	case "mat4":
		return UniformMat4, 1
	case "sampler2D":
		return UniformSampler2D, 1
	case "samplerCube":
		return UniformSamplerCube, 1
	default:
		return UniformUnsupported, 1
	}
}

func (d *fakeDevice) CompileProgram(src ProgramSource) (uint32, error) {
	if d.compileErr != nil {
		return 0, d.compileErr
	}
	if src.Vertex == "" || src.Fragment == "" {
		return 0, errors.New("missing shader stage")
	}
	p := d.id()
	d.programs[p] = src

	seen := make(map[string]bool)
	var loc int32
	for _, s := range []string{src.Vertex, src.Geometry, src.Fragment} {
		for _, m := range uniformRE.FindAllStringSubmatch(s, -1) {
			if seen[m[2]] {
				continue
			}
			seen[m[2]] = true
			ty, n := glslUniformType(m[1])
			size := 1
			if m[3] != "" {
				size, _ = strconv.Atoi(m[3])
			}
			d.uniforms[p] = append(d.uniforms[p], UniformInfo{Name: m[2], Location: loc, Type: ty, Components: n, ArraySize: size})
			loc++
		}
	}
	return p, nil
}

func (d *fakeDevice) DeleteProgram(id uint32) {
	d.deleted = append(d.deleted, fmt.Sprintf("program %d", id))
}

func (d *fakeDevice) ProgramUniforms(prog uint32) []UniformInfo {
	return d.uniforms[prog]
}

func (d *fakeDevice) ProgramAttributes(prog uint32) []AttributeInfo {
	var a []AttributeInfo
	for i, m := range attributeRE.FindAllStringSubmatch(d.programs[prog].Vertex, -1) {
		a = append(a, AttributeInfo{Name: m[2], Location: uint32(i)})
	}
	return a
}

func (d *fakeDevice) UseProgram(prog uint32) { d.program = prog }

func (d *fakeDevice) set(loc int32, v []float32) {
	if d.values[d.program] == nil {
		d.values[d.program] = make(map[int32][]float32)
	}
	d.values[d.program][loc] = append([]float32(nil), v...)
}

func (d *fakeDevice) Uniformf(loc int32, v ...float32)                     { d.set(loc, v) }
func (d *fakeDevice) UniformfArray(loc int32, components int, v []float32) { d.set(loc, v) }
func (d *fakeDevice) Uniformi(loc int32, v int32)                          { d.set(loc, []float32{float32(v)}) }
func (d *fakeDevice) UniformMatrix3(loc int32, m mgl32.Mat3)               { d.set(loc, m[:]) }
func (d *fakeDevice) UniformMatrix4(loc int32, m mgl32.Mat4)               { d.set(loc, m[:]) }

// uniform returns the last value set for the named uniform of prog.
func (d *fakeDevice) uniform(prog uint32, name string) ([]float32, bool) {
	for _, u := range d.uniforms[prog] {
		if u.Name == name {
			v, ok := d.values[prog][u.Location]
			return v, ok
		}
	}
	return nil, false
}

func (d *fakeDevice) CreateVertexArray() uint32 { return d.id() }
func (d *fakeDevice) DeleteVertexArray(id uint32) {
	d.deleted = append(d.deleted, fmt.Sprintf("vao %d", id))
}
func (d *fakeDevice) BindVertexArray(id uint32) { d.vao = id }

func (d *fakeDevice) CreateArrayBuffer(data []float32) uint32 {
	id := d.id()
	d.arrayBuffers[id] = append([]float32(nil), data...)
	return id
}

func (d *fakeDevice) CreateIndexBuffer(data []uint32) uint32 {
	id := d.id()
	d.indexBuffers[id] = append([]uint32(nil), data...)
	return id
}

func (d *fakeDevice) DeleteBuffer(id uint32) {
	d.deleted = append(d.deleted, fmt.Sprintf("buffer %d", id))
}

func (d *fakeDevice) BindAttribute(loc uint32, buf uint32, components int) { d.attribs[loc] = buf }
func (d *fakeDevice) DisableAttribute(loc uint32)                          { delete(d.attribs, loc) }

func (d *fakeDevice) CreateTexture2D(img *image.RGBA, filter TextureFilter) uint32 {
	id := d.id()
	d.textures[id] = img
	return id
}

func (d *fakeDevice) UpdateTexture2D(id uint32, img *image.RGBA, filter TextureFilter) {
	d.textures[id] = img
}

func (d *fakeDevice) CreateCubeMap(faces [6]*image.RGBA) uint32 {
	id := d.id()
	d.textures[id] = faces[0]
	return id
}

func (d *fakeDevice) DeleteTexture(id uint32) {
	d.deleted = append(d.deleted, fmt.Sprintf("texture %d", id))
}

func (d *fakeDevice) BindTexture(unit int, target TextureTarget, id uint32) { d.units[unit] = id }

func (d *fakeDevice) CreateFramebuffer(width, height int) (FramebufferHandles, error) {
	return FramebufferHandles{FBO: d.id(), Color: d.id(), Depth: d.id()}, nil
}

func (d *fakeDevice) DeleteFramebuffer(h FramebufferHandles) {
	d.deleted = append(d.deleted, fmt.Sprintf("fbo %d", h.FBO))
}

func (d *fakeDevice) BindFramebuffer(fbo uint32) { d.fbo = fbo }

func (d *fakeDevice) CheckFramebuffer() error {
	if d.fbo != 0 && d.fbo == d.incompleteFBO {
		return errors.New("GL_FRAMEBUFFER_INCOMPLETE_ATTACHMENT")
	}
	return nil
}

func (d *fakeDevice) Viewport(x, y, width, height int) { d.viewport = [4]int{x, y, width, height} }
func (d *fakeDevice) ScreenSize() (int, int)           { return d.width, d.height }
func (d *fakeDevice) Clear(color mgl32.Vec4)           { d.clears = append(d.clears, color) }
func (d *fakeDevice) SetBlend(enabled bool)            { d.blend = enabled }
func (d *fakeDevice) SetDepthTest(enabled bool)        { d.depth = enabled }
func (d *fakeDevice) SetWireframe(enabled bool)        {}

func (d *fakeDevice) draw(mode Primitive, count int, indexed bool) {
	units := make(map[int]uint32)
	for k, v := range d.units {
		units[k] = v
	}
	attribs := make(map[uint32]uint32)
	for k, v := range d.attribs {
		attribs[k] = v
	}
	d.draws = append(d.draws, fakeDraw{
		mode: mode, count: count, vao: d.vao, program: d.program, fbo: d.fbo,
		blend: d.blend, depth: d.depth, units: units, attribs: attribs, indexed: indexed,
		viewport: d.viewport,
	})
}

func (d *fakeDevice) DrawArrays(mode Primitive, count int) { d.draw(mode, count, false) }
func (d *fakeDevice) DrawElements(mode Primitive, indices uint32, count int) {
	d.draw(mode, count, true)
}

func (d *fakeDevice) ReadPixels(x, y, width, height int) []byte {
	if d.pixels != nil {
		return d.pixels
	}
	return make([]byte, 4*width*height)
}

// programName returns the material class that owns prog in r.
func programName(r *Rasterizer, prog uint32) string {
	for name, mc := range r.classes {
		if mc.program == prog {
			return name
		}
	}
	return "?"
}

func deletedMatching(d *fakeDevice, prefix string) []string {
	var s []string
	for _, x := range d.deleted {
		if strings.HasPrefix(x, prefix) {
			s = append(s, x)
		}
	}
	return s
}
