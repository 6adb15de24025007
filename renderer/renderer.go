// renderer/renderer.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package renderer draws a document with the rasterizer. Renderer is a
// view component: it follows the document's Camera, Light, Material,
// Texture, Mesh, and drawable elements and builds a render list from
// their current attributes every frame.
package renderer

import (
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/log"
	"github.com/lxengine/lxengine/rasterizer"
	"github.com/lxengine/lxengine/script"
	"github.com/lxengine/lxengine/tasks"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/nfnt/resize"
)

// ComponentName is the name that renderers are attached under on views.
const ComponentName = "renderer"

// DrawableTags are the element tags that are drawn.
var DrawableTags = []string{"Sphere", "Cube", "Ref"}

type Options struct {
	// ClearColor is used unless the <Scene> element has a background.
	ClearColor mgl32.Vec4
	// ScreenshotDir is where screenshots with relative names are written.
	ScreenshotDir string
	// TileSize is the tile edge length for procedural textures.
	TileSize int
	// Cull enables view frustum culling.
	Cull bool
	// StatsInterval is how often accumulated statistics are logged;
	// zero disables logging them.
	StatsInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		ClearColor:    mgl32.Vec4{0, 0.3, 0.32, 1},
		ScreenshotDir: ".",
		TileSize:      tasks.DefaultTileSize,
		Cull:          true,
		StatsInterval: 10 * time.Second,
	}
}

func (o Options) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("clear_color", o.ClearColor),
		slog.String("screenshot_dir", o.ScreenshotDir),
		slog.Int("tile_size", o.TileSize),
		slog.Bool("cull", o.Cull),
		slog.Duration("stats_interval", o.StatsInterval))
}

// Renderer is the view component that draws the document.
type Renderer struct {
	ras     *rasterizer.Rasterizer
	tasks   *tasks.Group
	scripts *script.Engine
	opts    Options
	lg      *log.Logger

	view      *dom.View
	scene     *dom.Element
	cameras   []*dom.Element
	lights    []*dom.Element
	drawables []*dom.Element
	matElems  []*dom.Element

	camera    *rasterizer.Camera
	lightSet  *rasterizer.LightSet
	lightObjs map[*dom.Element]*rasterizer.Light

	sphere, cube *rasterizer.Geometry
	meshes       map[*dom.Element]*rasterizer.Geometry
	materials    map[*dom.Element]*rasterizer.Material
	textures     map[*dom.Element]*procTexture
	warned       map[*dom.Element]string

	mu       sync.Mutex
	finished []finishedTexture

	stats     rasterizer.RendererStats
	frames    int
	lastStats time.Time
}

// New returns a Renderer that draws with ras. Procedural textures are
// generated on group; scripts, which may be nil, provides "script:"
// texture generators.
func New(ras *rasterizer.Rasterizer, group *tasks.Group, scripts *script.Engine, opts Options, lg *log.Logger) *Renderer {
	def := DefaultOptions()
	if opts.TileSize <= 0 {
		opts.TileSize = def.TileSize
	}
	if opts.ScreenshotDir == "" {
		opts.ScreenshotDir = def.ScreenshotDir
	}
	lg.Info("renderer", slog.Any("options", opts))

	return &Renderer{
		ras:       ras,
		tasks:     group,
		scripts:   scripts,
		opts:      opts,
		lg:        lg,
		camera:    rasterizer.NewCamera(),
		lightSet:  &rasterizer.LightSet{},
		lightObjs: make(map[*dom.Element]*rasterizer.Light),
		meshes:    make(map[*dom.Element]*rasterizer.Geometry),
		materials: make(map[*dom.Element]*rasterizer.Material),
		textures:  make(map[*dom.Element]*procTexture),
		warned:    make(map[*dom.Element]string),
		lastStats: time.Now(),
	}
}

func (rd *Renderer) Rasterizer() *rasterizer.Rasterizer { return rd.ras }

// Stats returns the statistics of the most recent frame.
func (rd *Renderer) Stats() rasterizer.RendererStats { return rd.ras.Stats }

func (rd *Renderer) OnViewAttached(v *dom.View) {
	rd.view = v
}

// elementComponent is the name of the components that the renderer
// attaches to resource elements; views each have their own.
func (rd *Renderer) elementComponent() string {
	if rd.view == nil {
		return ComponentName
	}
	return ComponentName + "/" + rd.view.Name()
}

func (rd *Renderer) OnElementAdded(d *dom.Document, e *dom.Element) {
	switch tag := e.Tag(); {
	case tag == "Scene":
		rd.scene = e
	case tag == "Camera":
		rd.cameras = append(rd.cameras, e)
	case tag == "Light":
		rd.lights = append(rd.lights, e)
	case tag == "Material":
		rd.matElems = append(rd.matElems, e)
		e.Attach(rd.elementComponent(), &resource{rd: rd})
	case tag == "Mesh":
		e.Attach(rd.elementComponent(), &resource{rd: rd})
	case tag == "Texture":
		rd.startTexture(e)
		e.Attach(rd.elementComponent(), &resource{rd: rd})
	case slices.Contains(DrawableTags, tag):
		rd.drawables = append(rd.drawables, e)
	}
}

func (rd *Renderer) OnElementRemoved(d *dom.Document, e *dom.Element) {
	remove := func(s []*dom.Element) []*dom.Element {
		return slices.DeleteFunc(s, func(x *dom.Element) bool { return x == e })
	}
	rd.cameras = remove(rd.cameras)
	rd.lights = remove(rd.lights)
	rd.drawables = remove(rd.drawables)
	rd.matElems = remove(rd.matElems)
	if rd.scene == e {
		rd.scene = nil
	}

	delete(rd.lightObjs, e)
	delete(rd.meshes, e)
	delete(rd.materials, e)
	delete(rd.warned, e)
	rd.stopTexture(e)
	e.Detach(rd.elementComponent())
}

// resource is attached to elements whose GPU resources are built from
// their attributes and value, so that changes rebuild them.
type resource struct {
	rd *Renderer
}

func (rs *resource) OnAttributeChange(e *dom.Element, name string, value any) {
	rs.rd.resourceChanged(e)
}

func (rs *resource) OnValueChange(e *dom.Element, v any) {
	rs.rd.resourceChanged(e)
}

func (rd *Renderer) resourceChanged(e *dom.Element) {
	delete(rd.warned, e)
	switch e.Tag() {
	case "Mesh":
		delete(rd.meshes, e)
	case "Material":
		delete(rd.materials, e)
	case "Texture":
		rd.startTexture(e)
		rd.invalidateMaterials()
	}
}

func (rd *Renderer) invalidateMaterials() {
	clear(rd.materials)
}

// RenderFrame draws the document's current state.
func (rd *Renderer) RenderFrame(v *dom.View) error {
	rd.uploadTextures()

	alg := rd.algorithm()
	list := rd.renderList()

	if err := rd.ras.BeginFrame(alg); err != nil {
		return err
	}
	err := rd.ras.RasterizeList(alg, list)
	rd.stats.Merge(rd.ras.EndFrame())
	rd.frames++

	if rd.opts.StatsInterval > 0 && time.Since(rd.lastStats) >= rd.opts.StatsInterval {
		rd.lg.Info("render statistics", slog.Int("frames", rd.frames), slog.Any("stats", rd.stats))
		rd.stats, rd.frames, rd.lastStats = rasterizer.RendererStats{}, 0, time.Now()
	}
	return err
}

// HandleEvent handles the screenshot and refresh_textures commands and
// the P (screenshot) and R (refresh textures) keys.
func (rd *Renderer) HandleEvent(v *dom.View, ev dom.Event) bool {
	switch ev.Kind {
	case dom.EventCommand:
		switch ev.Name {
		case "screenshot":
			name, scale := "screenshot.png", float32(1)
			if len(ev.Args) > 0 {
				name = ev.Args[0]
			}
			if len(ev.Args) > 1 {
				if s, err := strconv.ParseFloat(ev.Args[1], 32); err == nil && s > 0 {
					scale = float32(s)
				}
			}
			rd.screenshot(v, name, scale)
			return true
		case "refresh_textures":
			rd.refreshTextures()
			return true
		}
	case dom.EventKeyDown:
		switch ev.Name {
		case "p":
			rd.screenshot(v, "screenshot.png", 1)
			return true
		case "r":
			rd.refreshTextures()
			return true
		}
	case dom.EventResize:
		rd.lg.Debug("view resized", slog.String("view", v.Name()), slog.Int("width", ev.Width),
			slog.Int("height", ev.Height))
	}
	return false
}

func (rd *Renderer) refreshTextures() {
	n := rd.ras.RefreshTextures()
	rd.lg.Infof("reloaded %d texture(s)", n)
}

func (rd *Renderer) screenshot(v *dom.View, name string, scale float32) {
	p, err := rd.Screenshot(v, name, scale)
	if err != nil {
		rd.lg.Errorf("screenshot: %v", err)
		return
	}
	rd.lg.Info("saved screenshot", slog.String("path", p))
}

// Screenshot renders a frame and writes the back buffer to a PNG file,
// scaled by the given factor. It returns the path of the file.
func (rd *Renderer) Screenshot(v *dom.View, name string, scale float32) (string, error) {
	if err := rd.RenderFrame(v); err != nil {
		return "", err
	}
	var img image.Image = rd.ras.ReadBackBuffer()
	if b := img.Bounds(); b.Empty() {
		return "", fmt.Errorf("back buffer is empty")
	} else if scale != 1 {
		w := max(uint(float32(b.Dx())*scale), 1)
		img = resize.Resize(w, 0, img, resize.Bilinear)
	}

	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(rd.opts.ScreenshotDir, p)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("%s: %w", p, err)
	}
	return p, f.Close()
}

// Close stops texture generation and releases the procedural textures.
// It runs when the view is destroyed.
func (rd *Renderer) Close() {
	for e := range rd.textures {
		rd.stopTexture(e)
	}
}
