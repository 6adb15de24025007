// renderer/renderer_test.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/log"
	"github.com/lxengine/lxengine/rasterizer"
	"github.com/lxengine/lxengine/tasks"

	"github.com/go-gl/mathgl/mgl32"
)

///////////////////////////////////////////////////////////////////////////
// recordingDevice

var _ rasterizer.Device = (*recordingDevice)(nil)

// recordingDevice is a rasterizer.Device that records draws, clears, and
// texture contents.
type recordingDevice struct {
	next     uint32
	textures map[uint32]*image.RGBA
	deleted  []uint32
	clears   []mgl32.Vec4
	draws    []int
	width    int
	height   int
}

func newRecordingDevice() *recordingDevice {
	return &recordingDevice{textures: make(map[uint32]*image.RGBA), width: 64, height: 48}
}

func (d *recordingDevice) id() uint32 {
	d.next++
	return d.next
}

func (d *recordingDevice) CompileProgram(src rasterizer.ProgramSource) (uint32, error) {
	return d.id(), nil
}
func (d *recordingDevice) DeleteProgram(id uint32)                                  {}
func (d *recordingDevice) ProgramUniforms(prog uint32) []rasterizer.UniformInfo     { return nil }
func (d *recordingDevice) ProgramAttributes(prog uint32) []rasterizer.AttributeInfo { return nil }
func (d *recordingDevice) UseProgram(prog uint32)                                   {}
func (d *recordingDevice) Uniformf(loc int32, v ...float32)                         {}
func (d *recordingDevice) UniformfArray(loc int32, components int, v []float32)     {}
func (d *recordingDevice) Uniformi(loc int32, v int32)                              {}
func (d *recordingDevice) UniformMatrix3(loc int32, m mgl32.Mat3)                   {}
func (d *recordingDevice) UniformMatrix4(loc int32, m mgl32.Mat4)                   {}
func (d *recordingDevice) CreateVertexArray() uint32                                { return d.id() }
func (d *recordingDevice) DeleteVertexArray(id uint32)                              {}
func (d *recordingDevice) BindVertexArray(id uint32)                                {}
func (d *recordingDevice) CreateArrayBuffer(data []float32) uint32                  { return d.id() }
func (d *recordingDevice) CreateIndexBuffer(data []uint32) uint32                   { return d.id() }
func (d *recordingDevice) DeleteBuffer(id uint32)                                   {}
func (d *recordingDevice) BindAttribute(loc uint32, buf uint32, components int)     {}
func (d *recordingDevice) DisableAttribute(loc uint32)                              {}

func (d *recordingDevice) CreateTexture2D(img *image.RGBA, filter rasterizer.TextureFilter) uint32 {
	id := d.id()
	d.textures[id] = img
	return id
}

func (d *recordingDevice) UpdateTexture2D(id uint32, img *image.RGBA, filter rasterizer.TextureFilter) {
	d.textures[id] = img
}

func (d *recordingDevice) CreateCubeMap(faces [6]*image.RGBA) uint32 { return d.id() }

func (d *recordingDevice) DeleteTexture(id uint32) {
	d.deleted = append(d.deleted, id)
}

func (d *recordingDevice) BindTexture(unit int, target rasterizer.TextureTarget, id uint32) {}

func (d *recordingDevice) CreateFramebuffer(width, height int) (rasterizer.FramebufferHandles, error) {
	return rasterizer.FramebufferHandles{FBO: d.id(), Color: d.id(), Depth: d.id()}, nil
}

func (d *recordingDevice) DeleteFramebuffer(h rasterizer.FramebufferHandles) {}
func (d *recordingDevice) BindFramebuffer(fbo uint32)                        {}
func (d *recordingDevice) CheckFramebuffer() error                           { return nil }
func (d *recordingDevice) Viewport(x, y, width, height int)                  {}
func (d *recordingDevice) ScreenSize() (int, int)                            { return d.width, d.height }
func (d *recordingDevice) Clear(color mgl32.Vec4)                            { d.clears = append(d.clears, color) }
func (d *recordingDevice) SetBlend(enabled bool)                             {}
func (d *recordingDevice) SetDepthTest(enabled bool)                         {}
func (d *recordingDevice) SetWireframe(enabled bool)                         {}

func (d *recordingDevice) DrawArrays(mode rasterizer.Primitive, count int) {
	d.draws = append(d.draws, count)
}

func (d *recordingDevice) DrawElements(mode rasterizer.Primitive, indices uint32, count int) {
	d.draws = append(d.draws, count)
}

func (d *recordingDevice) ReadPixels(x, y, width, height int) []byte {
	p := make([]byte, 4*width*height)
	for i := range p {
		p[i] = 200
		if i%4 == 3 {
			p[i] = 255
		}
	}
	return p
}

///////////////////////////////////////////////////////////////////////////

type testScene struct {
	doc   *dom.Document
	view  *dom.View
	rd    *Renderer
	dev   *recordingDevice
	group *tasks.Group
	log   *bytes.Buffer
}

func newTestScene(t *testing.T, opts Options) *testScene {
	t.Helper()
	var buf bytes.Buffer
	lg := log.NewWithWriter(&buf, "debug")

	dev := newRecordingDevice()
	ras, err := rasterizer.New(dev, rasterizer.Options{Logger: lg})
	if err != nil {
		t.Fatal(err)
	}
	group := tasks.New(context.Background(), 2, lg)
	t.Cleanup(group.Close)

	doc := dom.NewDocument(nil, lg)
	view := doc.CreateView("main")
	rd := New(ras, group, nil, opts, lg)
	view.Attach(ComponentName, rd)

	return &testScene{doc: doc, view: view, rd: rd, dev: dev, group: group, log: &buf}
}

func (ts *testScene) add(tag string, attrs ...any) *dom.Element {
	e := dom.NewElement(tag)
	for i := 0; i+1 < len(attrs); i += 2 {
		e.SetAttr(attrs[i].(string), attrs[i+1])
	}
	ts.doc.Root().Append(e)
	return e
}

func (ts *testScene) addCamera() *dom.Element {
	return ts.add("Camera", "position", "0 -10 5", "look_at", "0 0 0")
}

func triangleMesh() map[string]any {
	return map[string]any{
		"positions": []any{[]any{0.0, 0.0, 0.0}, []any{2.0, 0.0, 0.0}, []any{0.0, 1.0, 0.0}},
	}
}

func TestRenderLayers(t *testing.T) {
	ts := newTestScene(t, DefaultOptions())
	ts.addCamera()
	ts.add("Light", "position", "0 0 10", "color", "#ffffff")
	ts.add("Sphere", "radius", 1.0, "layer", 1)
	cube := ts.add("Cube", "size", "1 2 3")
	mesh := ts.add("Mesh", "id", "tri")
	mesh.SetValue(triangleMesh())
	ts.add("Ref", "ref", "tri", "translation", "1 0 0")

	if err := ts.doc.Render(); err != nil {
		t.Fatal(err)
	}
	// Layer 0 first, in document order, then the sphere.
	if want := []int{36, 3, 32 * 16 * 6}; !slices.Equal(ts.dev.draws, want) {
		t.Errorf("draws %v, want %v", ts.dev.draws, want)
	}
	if len(ts.dev.clears) != 1 || ts.dev.clears[0] != DefaultOptions().ClearColor {
		t.Errorf("clears %v", ts.dev.clears)
	}
	if s := ts.rd.Stats(); s.Items != 3 || s.Triangles != 12+1+32*16*2 {
		t.Errorf("stats %s", s.String())
	}

	// Hidden elements are skipped; background overrides the clear color.
	ts.dev.draws, ts.dev.clears = nil, nil
	ts.add("Scene", "background", "#ff0000")
	cube.SetAttr("display", "none")
	if err := ts.doc.Render(); err != nil {
		t.Fatal(err)
	}
	if want := []int{3, 32 * 16 * 6}; !slices.Equal(ts.dev.draws, want) {
		t.Errorf("draws %v, want %v", ts.dev.draws, want)
	}
	if ts.dev.clears[0] != (mgl32.Vec4{1, 0, 0, 1}) {
		t.Errorf("clear color %v", ts.dev.clears[0])
	}
}

func TestNoCamera(t *testing.T) {
	ts := newTestScene(t, DefaultOptions())
	ts.add("Sphere")

	err := ts.doc.Render()
	if !errors.Is(err, rasterizer.ErrNoCamera) {
		t.Fatalf("Render returned %v, want ErrNoCamera", err)
	}

	// An empty document renders without a camera.
	ts = newTestScene(t, DefaultOptions())
	if err := ts.doc.Render(); err != nil {
		t.Errorf("empty document: %v", err)
	}
}

func TestCulling(t *testing.T) {
	ts := newTestScene(t, DefaultOptions())
	ts.addCamera()
	ts.add("Sphere", "translation", "0 -100 0")
	ts.add("Sphere")

	if err := ts.doc.Render(); err != nil {
		t.Fatal(err)
	}
	if s := ts.rd.Stats(); s.Culled != 1 || len(ts.dev.draws) != 1 {
		t.Errorf("%d culled, %d draws", s.Culled, len(ts.dev.draws))
	}

	opts := DefaultOptions()
	opts.Cull = false
	ts = newTestScene(t, opts)
	ts.addCamera()
	ts.add("Sphere", "translation", "0 -100 0")
	if err := ts.doc.Render(); err != nil {
		t.Fatal(err)
	}
	if len(ts.dev.draws) != 1 {
		t.Errorf("%d draws with culling disabled", len(ts.dev.draws))
	}
}

func TestBadElementsAreWarnedOnce(t *testing.T) {
	ts := newTestScene(t, DefaultOptions())
	ts.addCamera()
	ts.add("Ref", "ref", "missing")
	ts.add("Cube", "material", "NoSuchMaterial")
	ts.add("Cube", "transform", "sideways")

	for range 3 {
		if err := ts.doc.Render(); err != nil {
			t.Fatal(err)
		}
	}
	// The cube with the unknown material falls back to the default.
	if len(ts.dev.draws) != 3 {
		t.Errorf("%d draws over 3 frames, want 3", len(ts.dev.draws))
	}
	for _, msg := range []string{`ref \"missing\"`, "NoSuchMaterial", "unknown transform"} {
		n := 0
		for line := range strings.Lines(ts.log.String()) {
			if strings.Contains(line, msg) {
				n++
			}
		}
		if n != 1 {
			t.Errorf("%q logged %d times", msg, n)
		}
	}
}

func TestCamera(t *testing.T) {
	ts := newTestScene(t, DefaultOptions())
	if ts.rd.updateCamera() != nil {
		t.Errorf("camera without a Camera element")
	}

	ts.addCamera()
	second := ts.add("Camera", "position", "1 2 3", "target", "4 5 6", "fov", 90.0,
		"projection", "orthographic", "ortho_height", 4.0)
	c := ts.rd.updateCamera()
	if c.Position != (mgl32.Vec3{1, 2, 3}) || c.Target != (mgl32.Vec3{4, 5, 6}) {
		t.Errorf("the last camera is used: %v %v", c.Position, c.Target)
	}
	if !c.Orthographic || c.OrthoHeight != 4 || !mgl32.FloatEqual(c.FieldOfView, mgl32.DegToRad(90)) {
		t.Errorf("lens %+v", c)
	}

	second.Remove()
	if c := ts.rd.updateCamera(); c.Position != (mgl32.Vec3{0, -10, 5}) || c.Orthographic {
		t.Errorf("after removal %+v", c)
	}
}

func TestLights(t *testing.T) {
	ts := newTestScene(t, DefaultOptions())
	ts.add("Scene", "ambient", "0.2 0.2 0.2")
	ts.add("Light", "position", "1 2 3", "color", "#ff0000", "intensity", 2.0)
	off := ts.add("Light", "display", "none")

	ls := ts.rd.updateLights()
	if ls.Ambient != (mgl32.Vec3{0.2, 0.2, 0.2}) {
		t.Errorf("ambient %v", ls.Ambient)
	}
	if len(ls.Lights) != 2 {
		t.Fatalf("%d lights", len(ls.Lights))
	}
	l := ls.Lights[0]
	if l.Position != (mgl32.Vec3{1, 2, 3}) || l.Color != (mgl32.Vec3{2, 0, 0}) || !l.Enabled {
		t.Errorf("light %+v", l)
	}
	if ls.Lights[1].Enabled {
		t.Errorf("display=none light is enabled")
	}

	off.Remove()
	if ls := ts.rd.updateLights(); len(ls.Lights) != 1 || ts.rd.updateLights().Lights[0] != l {
		t.Errorf("lights are not reused across frames")
	}
}

func TestMaterials(t *testing.T) {
	ts := newTestScene(t, DefaultOptions())
	tex := ts.add("Texture", "id", "checks", "width", 8, "height", 8)
	graph := ts.add("Material", "id", "graph")
	graph.SetValue(map[string]any{
		"graph": map[string]any{"_type": "texture", "map": "checks"},
	})
	ts.add("Material", "id", "named", "class", "SolidColor")
	cube := ts.add("Cube", "material", "graph")

	m := ts.rd.material(cube)
	if m == nil {
		t.Fatalf("no material; log:\n%s", ts.log)
	}
	if m.Parameters["unif_n0_map"] != ts.rd.textures[tex].tex {
		t.Errorf("texture parameter %v", m.Parameters["unif_n0_map"])
	}
	if ts.rd.material(cube) != m {
		t.Errorf("material was rebuilt")
	}
	graph.SetAttr("blend", true)
	if m2 := ts.rd.material(cube); m2 == m || !m2.Blend {
		t.Errorf("changed material was not rebuilt")
	}

	cube.SetAttr("material", "named")
	if m := ts.rd.material(cube); m == nil || m.Class.Name != "SolidColor" {
		t.Errorf("class material %v", m)
	}

	cube.SetAttr("material", "VertexColor")
	if m := ts.rd.material(cube); m == nil || m.Class.Name != "VertexColor" {
		t.Errorf("media material %v", m)
	}
}

func TestProceduralTexture(t *testing.T) {
	ts := newTestScene(t, DefaultOptions())
	e := ts.add("Texture", "id", "t", "generator", "checker", "scale", 2.0,
		"width", 4, "height", 4, "color0", "#000000", "color1", "#ffffff")
	pt := ts.rd.textures[e]
	if pt == nil {
		t.Fatal("no texture")
	}
	if img := ts.dev.textures[pt.tex.ID()]; img.Bounds().Dx() != 1 {
		t.Errorf("placeholder is %v", img.Bounds())
	}

	ts.group.Wait()
	if n := ts.rd.uploadTextures(); n != 1 {
		t.Fatalf("uploaded %d textures", n)
	}
	img := ts.dev.textures[pt.tex.ID()]
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 4 {
		t.Fatalf("texture is %v", img.Bounds())
	}
	if img.RGBAAt(0, 0).R != 0 || img.RGBAAt(2, 0).R != 255 || img.RGBAAt(2, 2).R != 0 {
		t.Errorf("checker pixels %v %v %v", img.RGBAAt(0, 0), img.RGBAAt(2, 0), img.RGBAAt(2, 2))
	}

	// A result from a generator that has since been restarted is dropped.
	ts.rd.mu.Lock()
	ts.rd.finished = append(ts.rd.finished, finishedTexture{elem: e, gen: pt.gen - 1, img: placeholder})
	ts.rd.mu.Unlock()
	if n := ts.rd.uploadTextures(); n != 0 {
		t.Errorf("stale texture uploaded")
	}

	// Changing an attribute regenerates it with the same id.
	id := pt.tex.ID()
	e.SetAttr("width", 8)
	ts.group.Wait()
	if err := ts.doc.Render(); err != nil {
		t.Fatal(err)
	}
	if pt.tex.ID() != id || ts.dev.textures[id].Bounds().Dx() != 8 {
		t.Errorf("regenerated texture %d is %v", pt.tex.ID(), ts.dev.textures[id].Bounds())
	}

	e.Remove()
	if _, ok := ts.rd.textures[e]; ok || !slices.Contains(ts.dev.deleted, id) {
		t.Errorf("removed texture was not deleted")
	}
}

func TestBadTexture(t *testing.T) {
	ts := newTestScene(t, DefaultOptions())
	ts.add("Texture", "id", "a", "generator", "plaid")
	ts.add("Texture", "id", "b", "generator", "script:f")
	ts.group.Wait()
	if n := ts.rd.uploadTextures(); n != 0 {
		t.Errorf("%d textures uploaded", n)
	}
	for _, msg := range []string{"unknown texture generator", "scripting is not enabled"} {
		if !strings.Contains(ts.log.String(), msg) {
			t.Errorf("%q was not logged", msg)
		}
	}
}

func TestScreenshotCommand(t *testing.T) {
	opts := DefaultOptions()
	opts.ScreenshotDir = t.TempDir()
	ts := newTestScene(t, opts)
	ts.addCamera()

	if !ts.doc.SendEvent(dom.Event{Kind: dom.EventCommand, Name: "screenshot", Args: []string{"shots/a.png", "0.5"}}) {
		t.Fatal("screenshot command was not handled")
	}
	f, err := os.Open(filepath.Join(opts.ScreenshotDir, "shots", "a.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Errorf("screenshot is %v", b)
	}
	if r, _, _, _ := img.At(5, 5).RGBA(); r>>8 != 200 {
		t.Errorf("pixel %v", img.At(5, 5))
	}

	if ts.doc.SendEvent(dom.Event{Kind: dom.EventResize, Width: 10, Height: 10}) {
		t.Errorf("resize was reported as handled")
	}
	if !ts.doc.SendEvent(dom.Event{Kind: dom.EventKeyDown, Name: "r"}) {
		t.Errorf("refresh key was not handled")
	}
}

func TestViewClose(t *testing.T) {
	ts := newTestScene(t, DefaultOptions())
	ts.add("Texture", "id", "a")
	ts.add("Texture", "id", "b")
	ts.group.Wait()

	ts.doc.DestroyView("main")
	if len(ts.rd.textures) != 0 || len(ts.dev.deleted) != 2 {
		t.Errorf("%d textures left, %d deleted", len(ts.rd.textures), len(ts.dev.deleted))
	}
}

func TestColorAttr(t *testing.T) {
	e := dom.NewElement("Light")
	for _, test := range []struct {
		v    any
		want mgl32.Vec3
	}{
		{"#ff0000", mgl32.Vec3{1, 0, 0}},
		{"#fff", mgl32.Vec3{1, 1, 1}},
		{"0.5 0.25 1", mgl32.Vec3{0.5, 0.25, 1}},
		{0.5, mgl32.Vec3{0.5, 0.5, 0.5}},
		{"#zz0000", mgl32.Vec3{9, 9, 9}},
		{"red", mgl32.Vec3{9, 9, 9}},
	} {
		e.SetAttr("color", test.v)
		if got := colorAttr(e, "color", mgl32.Vec3{9, 9, 9}); got != test.want {
			t.Errorf("%v: got %v, want %v", test.v, got, test.want)
		}
	}
}
