// rasterizer/rasterizer_test.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/lxengine/lxengine/math"

	"github.com/go-gl/mathgl/mgl32"
)

func mustGeometry(t *testing.T, r *Rasterizer, name string, pb PrimitiveBuffer) *Geometry {
	t.Helper()
	g, err := r.CreateGeometry(name, pb)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func mustMaterial(t *testing.T, r *Rasterizer, class, instance string) *Material {
	t.Helper()
	m, err := r.AcquireMaterial(class, instance)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestLayerOrder(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	cam := NewCamera()

	a := mustGeometry(t, r, "a", triangle())
	b := mustGeometry(t, r, "b", triangle())
	c := mustGeometry(t, r, "c", triangle())

	list := NewRenderList()
	list.Add(2, &Instance{Geometry: c})
	list.Add(0, &Instance{Geometry: a})
	list.Add(0, &Instance{Geometry: b})
	if list.Len() != 3 {
		t.Errorf("list has %d instances", list.Len())
	}
	if l := list.Layers(); !slices.Equal(l, []int{0, 2}) {
		t.Errorf("layers %v", l)
	}

	alg := &RenderAlgorithm{Passes: []*GlobalPass{{Name: "main", Camera: cam}}}
	if err := r.BeginFrame(alg); err != nil {
		t.Fatal(err)
	}
	if err := r.RasterizeList(alg, list); err != nil {
		t.Fatal(err)
	}
	stats := r.EndFrame()

	var vaos []uint32
	for _, d := range dev.draws {
		vaos = append(vaos, d.vao)
	}
	if exp := []uint32{a.handles.vao, b.handles.vao, c.handles.vao}; !slices.Equal(vaos, exp) {
		t.Errorf("drew %v, expected %v", vaos, exp)
	}
	if stats.Items != 3 || stats.DrawCalls != 3 || stats.Triangles != 3 || stats.ProgramSwitches != 1 {
		t.Errorf("stats %s", stats.String())
	}
}

func TestDefaultMaterialResolution(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	cam := NewCamera()

	for _, test := range []struct {
		pb    PrimitiveBuffer
		class string
	}{
		{triangle(), "DefaultSurface"},
		{PrimitiveBuffer{Type: "lines", Positions: []mgl32.Vec3{{0, 0, 0}, {1, 1, 1}}}, "DefaultLine"},
		{PrimitiveBuffer{Type: "points", Positions: []mgl32.Vec3{{0, 0, 0}}}, "DefaultPoint"},
	} {
		g := mustGeometry(t, r, test.class, test.pb)
		if err := r.RasterizeItem(&GlobalPass{Camera: cam}, &Instance{Geometry: g}); err != nil {
			t.Fatalf("%s: %v", test.class, err)
		}
		d := dev.draws[len(dev.draws)-1]
		if got := programName(r, d.program); got != test.class {
			t.Errorf("drawn with %s, expected %s", got, test.class)
		}
	}

	// A material written for another primitive type is replaced by the
	// default.
	lines := mustGeometry(t, r, "lines", PrimitiveBuffer{Type: "lines", Positions: []mgl32.Vec3{{0, 0, 0}, {1, 1, 1}}})
	inst := &Instance{Geometry: lines, Material: mustMaterial(t, r, "SolidColor", "")}
	if err := r.RasterizeItem(&GlobalPass{Camera: cam}, inst); err != nil {
		t.Fatal(err)
	}
	if got := programName(r, dev.draws[len(dev.draws)-1].program); got != "DefaultLine" {
		t.Errorf("mismatched material drawn with %s", got)
	}
}

func TestMaterialPrecedence(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	g := mustGeometry(t, r, "tri", triangle())
	vc := mustMaterial(t, r, "VertexColor", "")
	solid := mustMaterial(t, r, "SolidColor", "")

	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera()}, &Instance{Geometry: g, Material: vc}); err != nil {
		t.Fatal(err)
	}
	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera(), Material: solid}, &Instance{Geometry: g, Material: vc}); err != nil {
		t.Fatal(err)
	}
	if got := programName(r, dev.draws[0].program); got != "VertexColor" {
		t.Errorf("instance material: drew with %s", got)
	}
	if got := programName(r, dev.draws[1].program); got != "SolidColor" {
		t.Errorf("pass material: drew with %s", got)
	}
}

func TestNoCamera(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	lines := mustGeometry(t, r, "lines", PrimitiveBuffer{Type: "lines", Positions: []mgl32.Vec3{{0, 0, 0}, {1, 1, 1}}})

	err := r.RasterizeItem(&GlobalPass{}, &Instance{Geometry: lines})
	if !errors.Is(err, ErrNoCamera) {
		t.Fatalf("expected ErrNoCamera, got %v", err)
	}
	if !strings.Contains(err.Error(), "No camera set") {
		t.Errorf("error %q", err)
	}
	if errors.Is(err, ErrUnknownState) {
		t.Errorf("single item errors should not be wrapped")
	}

	list := NewRenderList()
	list.Add(0, &Instance{Geometry: lines})
	err = r.RasterizeList(&RenderAlgorithm{Passes: []*GlobalPass{{Name: "main"}}}, list)
	if !errors.Is(err, ErrNoCamera) || !errors.Is(err, ErrUnknownState) {
		t.Errorf("expected ErrNoCamera wrapped in ErrUnknownState, got %v", err)
	}
	if len(dev.draws) != 0 {
		t.Errorf("%d draws issued", len(dev.draws))
	}

	// The instance camera is enough.
	if err := r.RasterizeItem(&GlobalPass{}, &Instance{Geometry: lines, Camera: NewCamera()}); err != nil {
		t.Errorf("instance camera: %v", err)
	}
}

func TestNilInstance(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	g := mustGeometry(t, r, "tri", triangle())

	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera()}, nil); err == nil {
		t.Errorf("no error for a nil instance")
	}

	list := NewRenderList()
	list.Add(0, &Instance{Geometry: g})
	list.Add(0, nil)
	list.Add(1, &Instance{Geometry: g})
	alg := &RenderAlgorithm{Passes: []*GlobalPass{{Name: "main", Camera: NewCamera(), Cull: true}}}
	err := r.RasterizeList(alg, list)
	if !errors.Is(err, ErrUnknownState) || !strings.Contains(err.Error(), "nil instance") {
		t.Errorf("expected a nil instance error wrapped in ErrUnknownState, got %v", err)
	}
	// The frame stops at the bad instance.
	if len(dev.draws) != 1 {
		t.Errorf("%d draws issued, expected 1", len(dev.draws))
	}
}

func TestContextResetAfterItem(t *testing.T) {
	r, _ := newTestRasterizer(t, nil)
	g := mustGeometry(t, r, "tri", triangle())

	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera(), LightSet: &LightSet{Lights: []*Light{NewLight()}}},
		&Instance{Geometry: g}); err != nil {
		t.Fatal(err)
	}
	if r.ctx.Material != nil || r.ctx.Camera != nil || r.ctx.Geometry != nil || r.ctx.Lights != nil ||
		r.ctx.Transform != nil || r.ctx.attributes != nil {
		t.Errorf("per-item context not reset: %+v", r.ctx)
	}
}

func TestPlaceholderGeometry(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	g := mustGeometry(t, r, "empty", PrimitiveBuffer{Type: "none"})

	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera()}, &Instance{Geometry: g}); err != nil {
		t.Errorf("placeholder: %v", err)
	}
	if len(dev.draws) != 0 {
		t.Errorf("placeholder issued %d draws", len(dev.draws))
	}
	if err := r.RasterizeItem(&GlobalPass{}, &Instance{Geometry: g}); !errors.Is(err, ErrNoCamera) {
		t.Errorf("placeholder without camera: %v", err)
	}
}

func TestAttributeBinding(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)

	pb := triangle()
	pb.Normals = []mgl32.Vec3{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}}
	g := mustGeometry(t, r, "tri", pb)

	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera()}, &Instance{Geometry: g}); err != nil {
		t.Fatal(err)
	}
	d := dev.draws[0]
	// DefaultSurface declares vertPosition, vertNormal, and vertUV0 in
	// that order; the geometry has no UVs so that attribute is disabled.
	if d.attribs[0] != g.handles.positions || d.attribs[1] != g.handles.normals {
		t.Errorf("attributes %v", d.attribs)
	}
	if _, ok := d.attribs[2]; ok {
		t.Errorf("missing UV channel should leave the attribute disabled")
	}
}

func TestFlatShadingUniform(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	bare := mustGeometry(t, r, "bare", triangle())
	pb := triangle()
	pb.Normals = []mgl32.Vec3{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}}
	smooth := mustGeometry(t, r, "smooth", pb)

	for _, test := range []struct {
		g    *Geometry
		pass Tribool
		flat float32
	}{
		{bare, Unknown, 1},
		{smooth, Unknown, 0},
		{smooth, True, 1},
		{bare, False, 1},
	} {
		if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera(), FlatShading: test.pass}, &Instance{Geometry: test.g}); err != nil {
			t.Fatal(err)
		}
		prog := dev.draws[len(dev.draws)-1].program
		if v, _ := dev.uniform(prog, "unifFlatNormals"); len(v) != 1 || v[0] != test.flat {
			t.Errorf("%s pass %d: unifFlatNormals %v, expected %v", test.g.Name, test.pass, v, test.flat)
		}
	}
}

func TestClearColors(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	fb, err := r.AcquireFrameBuffer("offscreen", 64, 32)
	if err != nil {
		t.Fatal(err)
	}

	red := mgl32.Vec4{1, 0, 0, 1}
	alg := &RenderAlgorithm{
		ClearColor: mgl32.Vec4{0, 0, 1, 1},
		Passes: []*GlobalPass{
			{Name: "offscreen", FrameBuffer: fb, Camera: NewCamera()},
			{Name: "screen", Camera: NewCamera()},
			{Name: "overlay", Camera: NewCamera(), ClearColor: &red},
		},
	}
	if err := r.BeginFrame(alg); err != nil {
		t.Fatal(err)
	}
	if err := r.RasterizeList(alg, NewRenderList()); err != nil {
		t.Fatal(err)
	}
	exp := []mgl32.Vec4{alg.ClearColor, alg.ClearColor, red}
	if !slices.Equal(dev.clears, exp) {
		t.Errorf("clears %v, expected %v", dev.clears, exp)
	}
}

func TestBlitPass(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	fb, err := r.AcquireFrameBuffer("offscreen", 128, 64)
	if err != nil {
		t.Fatal(err)
	}
	if fb2, _ := r.AcquireFrameBuffer("offscreen", 128, 64); fb2 != fb {
		t.Errorf("framebuffer not cached")
	}

	list := NewRenderList()
	list.Add(0, &Instance{Geometry: mustGeometry(t, r, "tri", triangle())})

	alg := &RenderAlgorithm{Passes: []*GlobalPass{
		{Name: "scene", FrameBuffer: fb, Camera: NewCamera()},
		{Name: "blit", SourceFBO: fb},
	}}
	if err := r.BeginFrame(alg); err != nil {
		t.Fatal(err)
	}
	if err := r.RasterizeList(alg, list); err != nil {
		t.Fatal(err)
	}
	stats := r.EndFrame()

	if len(dev.draws) != 2 {
		t.Fatalf("%d draws, expected 2", len(dev.draws))
	}
	scene, blit := dev.draws[0], dev.draws[1]
	if scene.fbo != fb.handles.FBO || scene.viewport != [4]int{0, 0, 128, 64} {
		t.Errorf("scene pass drew to fbo %d viewport %v", scene.fbo, scene.viewport)
	}
	if blit.fbo != 0 || blit.count != 6 {
		t.Errorf("blit drew %d vertices to fbo %d", blit.count, blit.fbo)
	}
	if got := programName(r, blit.program); got != "BlitFBO" {
		t.Errorf("blit drawn with %s", got)
	}
	if blit.units[0] != fb.ColorTexture() {
		t.Errorf("blit sampled texture %d, expected %d", blit.units[0], fb.ColorTexture())
	}
	if blit.depth {
		t.Errorf("blit should not depth test")
	}
	if stats.Blits != 1 || stats.Passes != 2 {
		t.Errorf("stats %+v", stats)
	}
}

func TestIncompleteFramebuffer(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	fb, err := r.AcquireFrameBuffer("broken", 16, 16)
	if err != nil {
		t.Fatal(err)
	}
	dev.incompleteFBO = fb.handles.FBO

	alg := &RenderAlgorithm{Passes: []*GlobalPass{{Name: "broken", FrameBuffer: fb, Camera: NewCamera()}}}
	err = r.RasterizeList(alg, NewRenderList())
	if !errors.Is(err, ErrFramebufferIncomplete) || !errors.Is(err, ErrUnknownState) {
		t.Errorf("expected incomplete framebuffer error, got %v", err)
	}

	if _, err := r.AcquireFrameBuffer("zero", 0, 16); err == nil {
		t.Errorf("expected error for zero-sized framebuffer")
	}
}

func TestFramebufferResize(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	fb, _ := r.AcquireFrameBuffer("fb", 16, 16)
	old := fb.handles.FBO
	pass := &GlobalPass{Name: "offscreen", FrameBuffer: fb}

	fb2, err := r.AcquireFrameBuffer("fb", 32, 16)
	if err != nil {
		t.Fatal(err)
	}
	if fb2 != fb || fb.Width != 32 || fb.handles.FBO == old {
		t.Errorf("resize did not recreate the framebuffer in place: %+v", fb2)
	}
	if d := deletedMatching(dev, "fbo"); !slices.Equal(d, []string{fmt.Sprintf("fbo %d", old)}) {
		t.Errorf("deleted %v, want the old framebuffer", d)
	}

	// A pass made before the resize renders to the new target.
	alg := &RenderAlgorithm{Passes: []*GlobalPass{pass}}
	if err := r.RasterizeList(alg, NewRenderList()); err != nil {
		t.Fatal(err)
	}
	if dev.fbo != fb.handles.FBO || dev.viewport != [4]int{0, 0, 32, 16} {
		t.Errorf("bound fbo %d viewport %v, want fbo %d 32x16", dev.fbo, dev.viewport, fb.handles.FBO)
	}
}

func TestCulling(t *testing.T) {
	r, _ := newTestRasterizer(t, nil)
	g := mustGeometry(t, r, "tri", triangle())
	cam := NewCamera()
	cam.LookAt(mgl32.Vec3{0, -10, 0}, mgl32.Vec3{}, mgl32.Vec3{0, 0, 1})

	list := NewRenderList()
	list.Add(0, &Instance{Geometry: g, Bounds: math.Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 1}})
	list.Add(0, &Instance{Geometry: g, Bounds: math.Sphere{Center: mgl32.Vec3{0, -100, 0}, Radius: 1}})
	list.Add(0, &Instance{Geometry: g})

	alg := &RenderAlgorithm{Passes: []*GlobalPass{{Camera: cam, Cull: true}}}
	if err := r.BeginFrame(alg); err != nil {
		t.Fatal(err)
	}
	if err := r.RasterizeList(alg, list); err != nil {
		t.Fatal(err)
	}
	stats := r.EndFrame()
	if stats.Culled != 1 || stats.DrawCalls != 2 {
		t.Errorf("culled %d, drew %d", stats.Culled, stats.DrawCalls)
	}
}

func TestLightSelection(t *testing.T) {
	ls := &LightSet{}
	for i := 10; i >= 1; i-- {
		l := NewLight()
		l.Position = mgl32.Vec3{float32(i), 0, 0}
		ls.Lights = append(ls.Lights, l)
	}
	off := NewLight()
	off.Enabled = false
	short := NewLight()
	short.Position = mgl32.Vec3{0.5, 0, 0}
	short.Radius = 0.25
	ls.Lights = append(ls.Lights, off, short, nil)

	sel := ls.selectLights(mgl32.Vec3{})
	if len(sel) != MaxActiveLights {
		t.Fatalf("selected %d lights", len(sel))
	}
	for i, l := range sel {
		if l.Position[0] != float32(i+1) {
			t.Errorf("light %d at %v, expected nearest first", i, l.Position)
		}
	}
}

func TestLightUniforms(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	g := mustGeometry(t, r, "tri", triangle())

	ls := &LightSet{Ambient: mgl32.Vec3{0.2, 0.3, 0.4}}
	for range 3 {
		ls.Lights = append(ls.Lights, NewLight())
	}
	if err := r.BeginFrame(&RenderAlgorithm{}); err != nil {
		t.Fatal(err)
	}
	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera(), LightSet: ls}, &Instance{Geometry: g}); err != nil {
		t.Fatal(err)
	}
	prog := dev.draws[0].program
	if v, _ := dev.uniform(prog, "unifLightCount"); len(v) != 1 || v[0] != 3 {
		t.Errorf("unifLightCount %v", v)
	}
	if v, _ := dev.uniform(prog, "unifLightColor"); len(v) != 9 {
		t.Errorf("unifLightColor %v", v)
	}
	if v, _ := dev.uniform(prog, "unifAmbient"); !slices.Equal(v, ls.Ambient[:]) {
		t.Errorf("unifAmbient %v, expected %v", v, ls.Ambient)
	}
	if len(r.frame.lights) != 1 {
		t.Errorf("%d light selections cached", len(r.frame.lights))
	}

	// Without a light set the standard ambient is used.
	if err := r.RasterizeItem(&GlobalPass{Camera: NewCamera()}, &Instance{Geometry: g}); err != nil {
		t.Fatal(err)
	}
	if v, _ := dev.uniform(prog, "unifLightCount"); len(v) != 1 || v[0] != 0 {
		t.Errorf("unifLightCount without lights %v", v)
	}
}

func TestTransforms(t *testing.T) {
	var ctx Context
	cam := NewCamera()
	ctx.Target = &FrameBuffer{Width: 100, Height: 100}
	cam.Activate(&ctx)

	m := TRS(mgl32.Vec3{1, 2, 3}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	m.Activate(&ctx)
	if !ctx.ViewMatrix.ApproxEqual(cam.ViewMatrix().Mul4(mgl32.Translate3D(1, 2, 3))) {
		t.Errorf("matrix transform view %v", ctx.ViewMatrix)
	}

	IdentityTransform().Activate(&ctx)
	if ctx.ProjMatrix != mgl32.Ident4() || ctx.ViewMatrix != mgl32.Ident4() {
		t.Errorf("identity transform did not override the camera")
	}

	cam.Activate(&ctx)
	BillboardTransform{Position: cam.Target, Scale: 2}.Activate(&ctx)
	// The billboard's axes stay aligned with the eye.
	if ctx.ViewMatrix.Col(0) != (mgl32.Vec4{2, 0, 0, 0}) {
		t.Errorf("billboard view %v", ctx.ViewMatrix)
	}
}

func TestReadBackBuffer(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	dev.width, dev.height = 2, 2
	// Bottom row red, top row green, as GL returns them.
	dev.pixels = []byte{
		255, 0, 0, 255, 255, 0, 0, 255,
		0, 255, 0, 255, 0, 255, 0, 255,
	}
	img := r.ReadBackBuffer()
	if c := img.RGBAAt(0, 0); c.G != 255 {
		t.Errorf("top left %v, expected green", c)
	}
	if c := img.RGBAAt(1, 1); c.R != 255 {
		t.Errorf("bottom right %v, expected red", c)
	}
	if p := r.ReadPixel(0, 0); p[0] != 1 || p[3] != 1 {
		t.Errorf("ReadPixel %v", p)
	}
}

func TestShutdown(t *testing.T) {
	r, dev := newTestRasterizer(t, nil)
	mustMaterial(t, r, "SolidColor", "")
	if _, err := r.AcquireFrameBuffer("fb", 8, 8); err != nil {
		t.Fatal(err)
	}
	r.Shutdown()

	if len(deletedMatching(dev, "program")) == 0 || len(deletedMatching(dev, "fbo")) != 1 {
		t.Errorf("shutdown released %v", dev.deleted)
	}
	if len(r.classes) != 0 || len(r.framebuffers) != 0 {
		t.Errorf("caches not cleared")
	}
}
