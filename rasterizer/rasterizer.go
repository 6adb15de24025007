// rasterizer/rasterizer.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package rasterizer draws frames described by a RenderAlgorithm and a
// RenderList, and manages the GPU resources (geometry, materials,
// textures, framebuffers) that they refer to.
package rasterizer

import (
	"embed"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"time"

	"github.com/lxengine/lxengine/cache"
	"github.com/lxengine/lxengine/log"
	"github.com/lxengine/lxengine/util"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

//go:embed media
var embeddedMedia embed.FS

// BuiltinMedia returns the materials, shaders, and geometry that ship
// with the rasterizer.
func BuiltinMedia() fs.FS {
	sub, err := fs.Sub(embeddedMedia, "media")
	if err != nil {
		panic(err)
	}
	return sub
}

type Options struct {
	// Media is searched before the built-in media, so files there
	// override built-in materials and geometry of the same name.
	Media fs.FS
	// ShaderCache enables the on-disk cache of compiled shader graphs.
	ShaderCache bool
	Logger      *log.Logger
}

// Rasterizer issues the GPU work for frames. All of its methods must be
// called from the thread that owns the device.
type Rasterizer struct {
	dev   Device
	lg    *log.Logger
	media *util.ResourceFS

	ctx   Context
	frame frameState
	start time.Time

	geometry     *cache.Cache[geometryKey, Geometry]
	classes      map[string]*MaterialClass
	materials    map[MaterialKey]*Material
	textures     map[textureKey]*Texture
	framebuffers map[string]*FrameBuffer
	images       *expirable.LRU[string, *image.RGBA]
	releases     releaseQueue

	screen      *FrameBuffer
	blitCamera  *Camera
	shaderCache bool

	surfaceVertexShader string

	// Stats holds the statistics of the most recently completed frame.
	Stats RendererStats
}

func New(dev Device, opts Options) (*Rasterizer, error) {
	r := &Rasterizer{
		dev:          dev,
		lg:           opts.Logger,
		media:        util.NewResourceFS(opts.Media, BuiltinMedia()),
		start:        time.Now(),
		geometry:     cache.New[geometryKey, Geometry](),
		classes:      make(map[string]*MaterialClass),
		materials:    make(map[MaterialKey]*Material),
		textures:     make(map[textureKey]*Texture),
		framebuffers: make(map[string]*FrameBuffer),
		images:       newImageCache(),
		screen:       &FrameBuffer{Name: "screen", screen: true},
		blitCamera:   &Camera{},
		shaderCache:  opts.ShaderCache,
	}
	r.screen.Width, r.screen.Height = dev.ScreenSize()
	r.frame.lights = make(map[lightSelectionKey][]*Light)

	vs, err := r.media.ReadFile("shaders/surface.vert")
	if err != nil {
		return nil, fmt.Errorf("built-in media: %w", err)
	}
	r.surfaceVertexShader = string(vs)

	return r, nil
}

// Media returns the file system that materials, geometry, and textures
// are loaded from.
func (r *Rasterizer) Media() *util.ResourceFS {
	return r.media
}

func (r *Rasterizer) Device() Device {
	return r.dev
}

// BeginFrame starts a new frame: native objects whose owners were
// collected are released, the per-frame light selection is reset, and
// the screen is cleared with the algorithm's clear color.
func (r *Rasterizer) BeginFrame(alg *RenderAlgorithm) error {
	r.frame.stats = RendererStats{}
	r.frame.start = time.Now()
	r.frame.program = 0
	r.frame.material = nil
	clear(r.frame.lights)
	r.frame.stats.Released = r.releases.drain(r.dev)
	r.ctx.Time = float32(time.Since(r.start).Seconds())

	if err := r.screen.Activate(r); err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownState, err)
	}
	r.dev.SetDepthTest(true)
	r.dev.Clear(alg.ClearColor)
	return nil
}

// EndFrame finishes the frame and returns its statistics.
func (r *Rasterizer) EndFrame() RendererStats {
	r.frame.stats.Elapsed = time.Since(r.frame.start)
	r.Stats = r.frame.stats
	r.ctx.resetPass()
	return r.Stats
}

// RasterizeList draws every pass of the algorithm. Any error leaves the
// GPU state undefined for the rest of the frame; it is returned wrapped
// with ErrUnknownState.
func (r *Rasterizer) RasterizeList(alg *RenderAlgorithm, list *RenderList) error {
	defer r.ctx.resetPass()

	for i, pass := range alg.Passes {
		if err := r.rasterizePass(alg, pass, list); err != nil {
			return fmt.Errorf("%w: pass %d %q: %w", ErrUnknownState, i, pass.Name, err)
		}
	}
	return nil
}

func (r *Rasterizer) rasterizePass(alg *RenderAlgorithm, pass *GlobalPass, list *RenderList) error {
	r.frame.stats.Passes++
	r.ctx.Pass = pass

	target := pass.FrameBuffer
	if target == nil {
		target = r.screen
	}
	r.ctx.Target = target
	if err := target.Activate(r); err != nil {
		return err
	}
	r.dev.SetWireframe(pass.Wireframe)

	if pass.SourceFBO != nil {
		return r.blit(pass)
	}

	if pass.ClearColor != nil || !target.IsScreen() {
		c := alg.ClearColor
		if pass.ClearColor != nil {
			c = *pass.ClearColor
		}
		r.dev.SetDepthTest(true)
		r.dev.Clear(c)
	}

	if list == nil {
		return nil
	}
	for _, inst := range list.All() {
		if inst != nil && pass.Cull && r.culled(pass, inst) {
			r.frame.stats.Culled++
			continue
		}
		if err := r.RasterizeItem(pass, inst); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rasterizer) culled(pass *GlobalPass, inst *Instance) bool {
	cam := inst.Camera
	if cam == nil {
		cam = pass.Camera
	}
	if cam == nil || inst.Bounds.Radius <= 0 {
		return false
	}
	return !cam.Frustum(r.ctx.Target.aspect()).IntersectsSphere(inst.Bounds)
}

// blit draws a full-screen quad that samples the pass' source
// framebuffer.
func (r *Rasterizer) blit(pass *GlobalPass) error {
	r.frame.stats.Blits++
	r.ctx.Source = pass.SourceFBO

	quad, err := r.AcquireGeometry("basic2d/FullScreenQuad")
	if err != nil {
		return err
	}
	mat := pass.Material
	if mat == nil {
		if mat, err = r.AcquireMaterial("BlitFBO", ""); err != nil {
			return err
		}
	}

	// The material is given to the instance rather than left to pass
	// resolution since the pass' material may be nil.
	inst := &Instance{
		Geometry:  quad,
		Material:  mat,
		Transform: IdentityTransform(),
		Camera:    r.blitCamera,
	}
	return r.RasterizeItem(pass, inst)
}

// RasterizeItem resolves the state for a single instance against the
// pass and draws it. The instance's camera and light set take precedence
// over the pass'; the pass' material takes precedence over the
// instance's, and the default material for the geometry's primitive type
// is used if neither is set or if the material was written for a
// different primitive type.
func (r *Rasterizer) RasterizeItem(pass *GlobalPass, inst *Instance) error {
	if inst == nil {
		return fmt.Errorf("nil instance in render list")
	}
	defer r.ctx.resetItem()
	if pass == nil {
		pass = &GlobalPass{}
	}
	if r.ctx.Target == nil {
		r.ctx.Target = r.screen
	}

	ctx := &r.ctx
	ctx.Instance = inst
	r.frame.stats.Items++

	g := inst.Geometry
	if g == nil {
		return fmt.Errorf("instance has no geometry")
	}
	ctx.Geometry = g

	ctx.Camera = inst.Camera
	if ctx.Camera == nil {
		ctx.Camera = pass.Camera
	}
	if ctx.Camera == nil {
		return fmt.Errorf("%s: %w", g.Name, ErrNoCamera)
	}

	lights := inst.LightSet
	if lights == nil {
		lights = pass.LightSet
	}

	if g.Primitive == PrimitiveNone {
		// Placeholders have nothing to draw.
		return nil
	}

	mat := pass.Material
	if mat == nil {
		mat = inst.Material
	}
	if mat == nil || mat.GeometryType != g.Primitive {
		var err error
		if mat, err = r.DefaultMaterial(g.Primitive); err != nil {
			return fmt.Errorf("%s: %w", g.Name, err)
		}
	}
	ctx.Material = mat

	if inst.Transform == nil {
		ctx.Transform = MatrixTransform(mgl32.Ident4())
	} else {
		ctx.Transform = inst.Transform
	}

	ctx.FlatShading = g.FlatShading.Resolve(pass.FlatShading.Resolve(false))

	ctx.Camera.Activate(ctx)
	if lights != nil {
		lights.Activate(r)
	}
	ctx.Transform.Activate(ctx)
	if err := mat.Activate(r); err != nil {
		return err
	}
	g.Activate(r)

	return nil
}

// ReadPixel returns the color of a pixel of the screen; (0,0) is the
// lower left corner.
func (r *Rasterizer) ReadPixel(x, y int) mgl32.Vec4 {
	r.dev.BindFramebuffer(0)
	p := r.dev.ReadPixels(x, y, 1, 1)
	if len(p) < 4 {
		return mgl32.Vec4{}
	}
	return mgl32.Vec4{float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255, float32(p[3]) / 255}
}

// ReadBackBuffer returns the contents of the screen as an image, top row
// first.
func (r *Rasterizer) ReadBackBuffer() *image.RGBA {
	w, h := r.dev.ScreenSize()
	r.dev.BindFramebuffer(0)
	p := r.dev.ReadPixels(0, 0, w, h)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	stride := 4 * w
	for y := 0; y < h && (y+1)*stride <= len(p); y++ {
		copy(img.Pix[(h-1-y)*stride:(h-y)*stride], p[y*stride:(y+1)*stride])
	}
	return img
}

// Shutdown releases every native object that the rasterizer owns. It
// must be called on the render thread after all background work that
// might produce resources has finished.
func (r *Rasterizer) Shutdown() {
	r.releases.close(r.dev)

	for _, mc := range r.classes {
		r.dev.DeleteProgram(mc.program)
	}
	for _, t := range r.textures {
		if t.id != 0 {
			r.dev.DeleteTexture(t.id)
		}
	}
	for _, fb := range r.framebuffers {
		r.dev.DeleteFramebuffer(fb.handles)
	}
	clear(r.classes)
	clear(r.materials)
	clear(r.textures)
	clear(r.framebuffers)
	r.geometry.Purge()
	r.images.Purge()

	r.lg.Info("rasterizer shut down", slog.Any("last_frame", r.Stats))
}
