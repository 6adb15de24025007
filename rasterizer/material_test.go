// rasterizer/material_test.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/lxengine/lxengine/util"

	"github.com/go-gl/mathgl/mgl32"
)

func TestAcquireMaterialIdentity(t *testing.T) {
	r, _ := newTestRasterizer(t, nil)

	m := mustMaterial(t, r, "SolidColor", "")
	if m2 := mustMaterial(t, r, "SolidColor", ""); m2 != m {
		t.Errorf("same key returned different materials")
	}
	glass := mustMaterial(t, r, "SolidColor", "glass")
	if glass == m {
		t.Errorf("instance shares the class material")
	}
	if glass.Class != m.Class {
		t.Errorf("instances of a class should share the class")
	}
	if glass.Name() != "SolidColor.glass" || m.Name() != "SolidColor" {
		t.Errorf("names %q %q", glass.Name(), m.Name())
	}

	if !glass.Blend || m.Blend {
		t.Errorf("blend: glass %v, plain %v", glass.Blend, m.Blend)
	}
	f, _ := toFloats(glass.Parameters["unifColor"])
	if !slices.Equal(f, []float32{0.6, 0.8, 1, 0.35}) {
		t.Errorf("glass color %v", f)
	}
	// Instance overrides must not leak into the class defaults.
	f, _ = toFloats(m.Parameters["unifColor"])
	if !slices.Equal(f, []float32{1, 1, 1, 1}) {
		t.Errorf("plain color %v", f)
	}

	if _, err := r.AcquireMaterial("NoSuchClass", ""); err == nil {
		t.Errorf("expected error for missing class")
	}
}

func TestMaterialUniforms(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	g := mustGeometry(t, r, "tri", triangle())

	for _, test := range []struct {
		instance string
		color    []float32
		blend    bool
	}{
		{"glass", []float32{0.6, 0.8, 1, 0.35}, true},
		{"", []float32{1, 1, 1, 1}, false},
	} {
		inst := &Instance{Geometry: g, Material: mustMaterial(t, r, "SolidColor", test.instance)}
		if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera()}, inst); err != nil {
			t.Fatal(err)
		}
		d := dev.draws[len(dev.draws)-1]
		if v, _ := dev.uniform(d.program, "unifColor"); !slices.Equal(v, test.color) {
			t.Errorf("%q: unifColor %v, expected %v", test.instance, v, test.color)
		}
		if d.blend != test.blend || !d.depth {
			t.Errorf("%q: blend %v depth %v", test.instance, d.blend, d.depth)
		}
	}
}

func TestMaterialFromMedia(t *testing.T) {
	media := fstest.MapFS{
		"materials/Tinted/shader.frag": {Data: []byte(`#version 330 core
uniform vec3 unifTint;
uniform float unifGain;
uniform mat4 unifWarp;
out vec4 outColor;
void main() { outColor = vec4(unifTint * unifGain, 1.0); }
`)},
		"materials/Tinted/material.json": {Data: []byte(`{
    "geometry": "triangles",
    "parameters": {"unifTint": [0.5, 0.25, 1], "unifGain": 2},
    "state": {"ztest": false}
}`)},
		"materials/Broken/shader.frag":   {Data: []byte("void main() {}")},
		"materials/Broken/material.json": {Data: []byte(`{"parameters": {"a": 1, "a": 2}}`)},
		"materials/Lines/shader.frag":    {Data: []byte("void main() {}")},
		"materials/Lines/material.json":  {Data: []byte(`{"geometry": "strips"}`)},
	}
	r, dev := newTestRasterizer(t, media)

	m := mustMaterial(t, r, "Tinted", "")
	if m.DepthTest {
		t.Errorf("state.ztest not applied")
	}
	if !strings.Contains(m.Class.source.Vertex, "vertPosition") {
		t.Errorf("missing vertex shader should fall back to the surface shader")
	}

	g := mustGeometry(t, r, "tri", triangle())
	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera()}, &Instance{Geometry: g, Material: m}); err != nil {
		t.Fatal(err)
	}
	prog := dev.draws[0].program
	if v, _ := dev.uniform(prog, "unifTint"); !slices.Equal(v, []float32{0.5, 0.25, 1}) {
		t.Errorf("unifTint %v", v)
	}
	if v, _ := dev.uniform(prog, "unifGain"); !slices.Equal(v, []float32{2}) {
		t.Errorf("unifGain %v", v)
	}
	if _, ok := dev.uniform(prog, "unifWarp"); ok {
		t.Errorf("uniform without a value should not be set")
	}

	// Bad parameter values are reported at activation.
	m.Parameters["unifGain"] = "loud"
	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera()}, &Instance{Geometry: g, Material: m}); err == nil {
		t.Errorf("expected error for non-numeric parameter")
	}

	if _, err := r.AcquireMaterial("Broken", ""); err == nil || !strings.Contains(err.Error(), "repeated") {
		t.Errorf("expected duplicate key error, got %v", err)
	}
	if _, err := r.AcquireMaterial("Lines", ""); !errors.Is(err, ErrUnknownPrimitive) {
		t.Errorf("expected ErrUnknownPrimitive, got %v", err)
	}
}

func TestMediaOverridesBuiltin(t *testing.T) {
	media := fstest.MapFS{
		"materials/SolidColor/material.json": {Data: []byte(`{"parameters": {"unifColor": [0, 1, 0, 1]}}`)},
	}
	r, _ := newTestRasterizer(t, media)
	m := mustMaterial(t, r, "SolidColor", "")
	if f, _ := toFloats(m.Parameters["unifColor"]); !slices.Equal(f, []float32{0, 1, 0, 1}) {
		t.Errorf("override not used: %v", f)
	}
}

func TestCompileFailure(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	dev.compileErr = errors.New("0:3: syntax error")
	if _, err := r.AcquireMaterial("SolidColor", ""); err == nil || !strings.Contains(err.Error(), "syntax error") {
		t.Errorf("expected compile error, got %v", err)
	}
	if _, err := r.DefaultMaterial(PrimitiveNone); !errors.Is(err, ErrUnknownPrimitive) {
		t.Errorf("expected no default material for none, got %v", err)
	}
}

func TestCreateMaterial(t *testing.T) {
	r, _ := newTestRasterizer(t, nil)
	params := Parameters{"unifColor": mgl32.Vec4{1, 0, 0, 1}}
	m, err := r.CreateMaterial("adhoc", ProgramSource{Fragment: "uniform vec4 unifColor;\nvoid main() {}\n"}, params)
	if err != nil {
		t.Fatal(err)
	}
	params["unifColor"] = mgl32.Vec4{}
	if f, _ := toFloats(m.Parameters["unifColor"]); !slices.Equal(f, []float32{1, 0, 0, 1}) {
		t.Errorf("material shares the caller's parameters: %v", f)
	}
	if _, ok := r.classes["adhoc"]; ok {
		t.Errorf("ad hoc materials should not be cached")
	}
}

func TestInvalidateMaterialClass(t *testing.T) {
	r, _ := newTestRasterizer(t, nil)
	m := mustMaterial(t, r, "SolidColor", "glass")
	other := mustMaterial(t, r, "DefaultLine", "")

	r.applyMediaChange("materials/SolidColor/shader.frag")

	if m2 := mustMaterial(t, r, "SolidColor", "glass"); m2 == m || m2.Class == m.Class {
		t.Errorf("class not reloaded")
	}
	if mustMaterial(t, r, "DefaultLine", "") != other {
		t.Errorf("unrelated class invalidated")
	}
}

func TestSetUniform(t *testing.T) {
	dev := newFakeDevice()
	dev.program = 1
	ident := mgl32.Ident4()

	for _, test := range []struct {
		u    UniformInfo
		v    any
		exp  []float32
		fail bool
	}{
		{UniformInfo{Name: "f", Location: 0, Type: UniformFloat, Components: 1}, 2.5, []float32{2.5}, false},
		{UniformInfo{Name: "v3", Location: 1, Type: UniformFloat, Components: 3}, []any{1.0, 2.0, 3.0}, []float32{1, 2, 3}, false},
		{UniformInfo{Name: "rgb", Location: 2, Type: UniformFloat, Components: 4}, mgl32.Vec3{1, 0, 0}, []float32{1, 0, 0, 1}, false},
		{UniformInfo{Name: "arr", Location: 3, Type: UniformFloat, Components: 2, ArraySize: 2}, []float32{1, 2, 3, 4}, []float32{1, 2, 3, 4}, false},
		{UniformInfo{Name: "i", Location: 4, Type: UniformInt, Components: 1}, 7, []float32{7}, false},
		{UniformInfo{Name: "b", Location: 5, Type: UniformBool, Components: 1}, true, []float32{1}, false},
		{UniformInfo{Name: "m4", Location: 6, Type: UniformMat4}, ident, ident[:], false},
		{UniformInfo{Name: "m3", Location: 7, Type: UniformMat3}, []float32{1, 2}, nil, true},
		{UniformInfo{Name: "short", Location: 8, Type: UniformFloat, Components: 3}, []float32{1}, nil, true},
		{UniformInfo{Name: "str", Location: 9, Type: UniformFloat, Components: 1}, "x", nil, true},
	} {
		err := setUniform(dev, test.u, test.v)
		if test.fail {
			if err == nil {
				t.Errorf("%s: expected error", test.u.Name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", test.u.Name, err)
		} else if got := dev.values[1][test.u.Location]; !slices.Equal(got, test.exp) {
			t.Errorf("%s: got %v, expected %v", test.u.Name, got, test.exp)
		}
	}
}

func TestAttributeChannel(t *testing.T) {
	for name, exp := range map[string]vertexChannel{
		"vertPosition": channelPosition,
		"vertNormal":   channelNormal,
		"vertColor":    channelColor,
		"vertUV":       channelUV0,
		"vertUV0":      channelUV0,
		"vertUV7":      channelUV0 + 7,
		"vertUV8":      channelNone,
		"vertTangent":  channelNone,
	} {
		if got := attributeChannel(name); got != exp {
			t.Errorf("%s: got %d, expected %d", name, got, exp)
		}
	}
}

func encodePNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestTextures(t *testing.T) {
	media := fstest.MapFS{
		"textures/red.png": {Data: encodePNG(t, 4, 2, color.RGBA{255, 0, 0, 255})},
		"materials/Decal/shader.frag": {Data: []byte(`uniform sampler2D unifMap;
uniform sampler2D unifMissing;
void main() {}
`)},
		"materials/Decal/material.json": {Data: []byte(`{"parameters": {"unifMap": "red.png", "unifMapFilter": "nearest", "unifMissing": "nope.png"}}`)},
	}
	for _, f := range cubeFaces {
		media["textures/sky/"+f+".png"] = &fstest.MapFile{Data: encodePNG(t, 8, 8, color.RGBA{0, 0, 255, 255})}
	}
	r, dev := newTestRasterizer(t, media)

	red := r.AcquireTexture("red.png", FilterLinear)
	if red.ID() == 0 || red.Width != 4 || red.Height != 2 || red.Target != Texture2D {
		t.Errorf("red texture %+v", red)
	}
	if r.AcquireTexture("red.png", FilterLinear) != red {
		t.Errorf("texture not cached")
	}
	if r.AcquireTexture("red.png", FilterNearest) == red {
		t.Errorf("filter should be part of the texture key")
	}

	missing := r.AcquireTexture("nope.png", FilterLinear)
	if missing.ID() != 0 {
		t.Errorf("missing texture has handle %d", missing.ID())
	}

	sky := r.AcquireTexture("sky", FilterLinear)
	if sky.Target != TextureCube || sky.ID() == 0 || len(sky.files) != 6 {
		t.Errorf("cube map %+v", sky)
	}

	m := mustMaterial(t, r, "Decal", "")
	if m.textures["unifMap"].Filter != FilterNearest {
		t.Errorf("sampler filter parameter not applied")
	}
	g := mustGeometry(t, r, "tri", triangle())
	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera()}, &Instance{Geometry: g, Material: m}); err != nil {
		t.Fatal(err)
	}
	d := dev.draws[0]
	if d.units[0] != m.textures["unifMap"].ID() || d.units[1] != 0 {
		t.Errorf("texture units %v", d.units)
	}

	// Changing the file and reporting it reloads the texture in place.
	id := red.ID()
	media["textures/red.png"] = &fstest.MapFile{Data: encodePNG(t, 16, 16, color.RGBA{255, 0, 0, 255})}
	r.applyMediaChange("textures/red.png")
	if n := r.RefreshTextures(); n != 2 {
		t.Errorf("refreshed %d textures, expected 2", n)
	}
	if red.ID() != id || red.Width != 16 {
		t.Errorf("texture not reloaded in place: %+v", red)
	}
	if n := r.RefreshTextures(); n != 0 {
		t.Errorf("second refresh reloaded %d", n)
	}
}

func TestProceduralTexture(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	img := image.NewNRGBA(image.Rect(10, 10, 14, 12))
	tex := r.CreateTexture("noise", img, FilterLinear)
	if tex.ID() == 0 || tex.Width != 4 || tex.Height != 2 {
		t.Errorf("procedural texture %+v", tex)
	}
	if b := dev.textures[tex.ID()].Bounds(); b.Min != (image.Point{}) {
		t.Errorf("uploaded image origin %v", b.Min)
	}
	r.DeleteTexture(tex)
	if tex.ID() != 0 || len(deletedMatching(dev, "texture")) != 1 {
		t.Errorf("texture not deleted")
	}
}

func TestShaderGraph(t *testing.T) {
	graph := []byte(`{"_type": "phong", "diffuse": {"_type": "checker", "scale": 4}, "shininess": 16}`)
	src, params, order, err := CompileShaderGraph(graph)
	if err != nil {
		t.Fatal(err)
	}
	expOrder := []string{"unif_n1_color0", "unif_n1_color1", "unif_n1_scale", "unif_n0_specular", "unif_n0_shininess"}
	if !slices.Equal(order, expOrder) {
		t.Errorf("order %v, expected %v", order, expOrder)
	}
	if params["unif_n1_scale"] != float32(4) || params["unif_n0_shininess"] != float32(16) {
		t.Errorf("params %v", params)
	}
	if strings.Index(src.Fragment, "vec4 n1()") > strings.Index(src.Fragment, "vec4 n0()") {
		t.Errorf("child node defined after its caller:\n%s", src.Fragment)
	}
	if !strings.Contains(src.Fragment, "outColor = n0();") {
		t.Errorf("missing entry call:\n%s", src.Fragment)
	}

	for _, bad := range []string{
		`{"_type": "sparkle"}`,
		`{"_type": "solid", "colour": [1, 0, 0]}`,
		`{"_type": "solid", "color": [1, 0]}`,
		`{"_type": "checker", "scale": {"_type": "uv"}}`,
		`{"_type": "texture"}`,
		`[1, 2]`,
	} {
		if _, _, _, err := CompileShaderGraph([]byte(bad)); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}

func TestShaderGraphMaterial(t *testing.T) {
	dir := t.TempDir()
	saved := util.CacheDir
	util.CacheDir = dir
	defer func() { util.CacheDir = saved }()

	media := fstest.MapFS{
		"materials/Checker/shader.graph":  {Data: []byte(`{"_type": "checker", "scale": 4}`)},
		"materials/Checker/material.json": {Data: []byte(`{"parameters": {"unif_n0_scale": 2}}`)},
	}

	for i := range 2 {
		dev := newFakeDevice()
		r, err := New(dev, Options{Media: media, ShaderCache: true})
		if err != nil {
			t.Fatal(err)
		}
		m := mustMaterial(t, r, "Checker", "")

		// The descriptor's value wins over the graph's literal.
		if f, _ := toFloats(m.Class.Defaults["unif_n0_scale"]); !slices.Equal(f, []float32{2}) {
			t.Errorf("pass %d: scale default %v", i, f)
		}
		if f, _ := toFloats(m.Class.Defaults["unif_n0_color1"]); !slices.Equal(f, []float32{0, 0, 0, 1}) {
			t.Errorf("pass %d: color1 default %v", i, f)
		}
		if !strings.Contains(m.Class.source.Vertex, "vertPosition") {
			t.Errorf("pass %d: graph materials use the surface vertex shader", i)
		}

		files, _ := filepath.Glob(filepath.Join(dir, "shadergraph", "*"))
		if len(files) != 1 {
			t.Errorf("pass %d: %d cache files", i, len(files))
		}
	}
}
