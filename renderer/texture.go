// renderer/texture.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	gomath "math"
	"strings"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/math"
	"github.com/lxengine/lxengine/rasterizer"
	"github.com/lxengine/lxengine/script"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/nfnt/resize"
)

// Generator returns the color at texture coordinates (u, v), both in
// [0, 1].
type Generator func(u, v float32) mgl32.Vec3

// procTexture is a <Texture> element's texture. It holds a placeholder
// until its generator finishes.
type procTexture struct {
	tex    *rasterizer.Texture
	cancel context.CancelFunc
	gen    int
}

type finishedTexture struct {
	elem *dom.Element
	gen  int
	img  *image.RGBA
}

var placeholder = func() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, color.RGBA{128, 128, 128, 255})
	return img
}()

// Checker alternates two colors in an n by n grid.
func Checker(n float32, c0, c1 mgl32.Vec3) Generator {
	return func(u, v float32) mgl32.Vec3 {
		if (int(u*n)+int(v*n))%2 == 0 {
			return c0
		}
		return c1
	}
}

// Gradient blends linearly from c0 to c1 along u, or along v if vertical
// is set.
func Gradient(c0, c1 mgl32.Vec3, vertical bool) Generator {
	return func(u, v float32) mgl32.Vec3 {
		t := math.Clamp(u, 0, 1)
		if vertical {
			t = math.Clamp(v, 0, 1)
		}
		return c0.Mul(1 - t).Add(c1.Mul(t))
	}
}

// Noise is smoothly interpolated value noise on an n by n lattice that
// blends between c0 and c1. The same seed always gives the same texture.
func Noise(n float32, seed uint32, c0, c1 mgl32.Vec3) Generator {
	lattice := func(x, y int32) float32 {
		h := uint32(x)*374761393 + uint32(y)*668265263 + seed*2246822519
		h = (h ^ (h >> 13)) * 1274126177
		h ^= h >> 16
		return float32(h&0xffff) / 0xffff
	}
	smooth := func(t float32) float32 { return t * t * (3 - 2*t) }

	return func(u, v float32) mgl32.Vec3 {
		x, y := u*n, v*n
		x0, y0 := float32(gomath.Floor(float64(x))), float32(gomath.Floor(float64(y)))
		tx, ty := smooth(x-x0), smooth(y-y0)
		ix, iy := int32(x0), int32(y0)

		a := math.Lerp(tx, lattice(ix, iy), lattice(ix+1, iy))
		b := math.Lerp(tx, lattice(ix, iy+1), lattice(ix+1, iy+1))
		t := math.Lerp(ty, a, b)
		return c0.Mul(1 - t).Add(c1.Mul(t))
	}
}

// generator builds the generator named by a <Texture> element's
// generator attribute. "script:fn" calls the script function
//
//	func fn(u, v float64) (r, g, b float64)
func (rd *Renderer) generator(e *dom.Element) (Generator, error) {
	c0 := colorAttr(e, "color0", mgl32.Vec3{0, 0, 0})
	c1 := colorAttr(e, "color1", mgl32.Vec3{1, 1, 1})
	scale := max(e.AttrFloat("scale", 8), 1)

	name := e.AttrString("generator", "checker")
	switch {
	case name == "checker":
		return Checker(scale, c0, c1), nil
	case name == "gradient":
		return Gradient(c0, c1, e.AttrString("direction", "") == "vertical"), nil
	case name == "noise":
		return Noise(scale, uint32(e.AttrFloat("seed", 0)), c0, c1), nil
	case strings.HasPrefix(name, "script:"):
		if rd.scripts == nil {
			return nil, fmt.Errorf("%s: scripting is not enabled", name)
		}
		fn, err := script.Acquire[func(u, v float64) (float64, float64, float64)](rd.scripts, strings.TrimPrefix(name, "script:"))
		if err != nil {
			return nil, err
		}
		return func(u, v float32) mgl32.Vec3 {
			r, g, b := fn(float64(u), float64(v))
			return mgl32.Vec3{float32(r), float32(g), float32(b)}
		}, nil
	default:
		return nil, fmt.Errorf("%q: unknown texture generator", name)
	}
}

// renderTexture fills an image of the given size with g, using the task
// group to shade tiles concurrently. With supersample above 1 the image
// is rendered larger and filtered down.
func (rd *Renderer) renderTexture(ctx context.Context, g Generator, width, height, supersample int) (*image.RGBA, error) {
	w, h := width*supersample, height*supersample
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shade := func(x, y int) color.RGBA {
		c := g((float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h))
		return color.RGBA{toByte(c[0]), toByte(c[1]), toByte(c[2]), 255}
	}
	if err := rd.tasks.Scan(ctx, img, rd.opts.TileSize, shade); err != nil {
		return nil, err
	}
	if supersample == 1 {
		return img, nil
	}
	return rasterizer.ToRGBA(resize.Resize(uint(width), uint(height), img, resize.Lanczos3)), nil
}

func toByte(f float32) uint8 {
	return uint8(math.Clamp(f, 0, 1)*255 + 0.5)
}

// startTexture (re)generates the texture of a <Texture> element in the
// background. The texture keeps its previous contents until the new ones
// are ready.
func (rd *Renderer) startTexture(e *dom.Element) {
	id := e.AttrString("id", "")
	pt := rd.textures[e]
	if pt == nil {
		filter, ok := rasterizer.ParseTextureFilter(e.AttrString("filter", ""))
		if !ok {
			rd.lg.Warnf("%s: unknown filter %q", e, e.AttrString("filter", ""))
		}
		pt = &procTexture{tex: rd.ras.CreateTexture(id, placeholder, filter)}
		rd.textures[e] = pt
		rd.invalidateMaterials()
	}
	if pt.cancel != nil {
		pt.cancel()
	}
	pt.gen++

	g, err := rd.generator(e)
	if err != nil {
		rd.lg.Warnf("%s: %v", e, err)
		pt.cancel = nil
		return
	}
	width := int(e.AttrFloat("width", 256))
	height := int(e.AttrFloat("height", 256))
	if width <= 0 || height <= 0 {
		rd.lg.Warnf("%s: invalid size %dx%d", e, width, height)
		pt.cancel = nil
		return
	}
	ss := math.Clamp(int(e.AttrFloat("supersample", 1)), 1, 4)

	ctx, cancel := context.WithCancel(rd.tasks.Context())
	pt.cancel = cancel
	gen := pt.gen
	rd.tasks.Go("texture "+id, func(context.Context) error {
		defer cancel()
		img, err := rd.renderTexture(ctx, g, width, height, ss)
		if err != nil {
			return err
		}
		rd.mu.Lock()
		rd.finished = append(rd.finished, finishedTexture{elem: e, gen: gen, img: img})
		rd.mu.Unlock()
		return nil
	})
}

func (rd *Renderer) stopTexture(e *dom.Element) {
	pt, ok := rd.textures[e]
	if !ok {
		return
	}
	if pt.cancel != nil {
		pt.cancel()
	}
	rd.ras.DeleteTexture(pt.tex)
	delete(rd.textures, e)
	rd.invalidateMaterials()
}

// uploadTextures uploads the textures that finished since the last frame
// and returns how many there were. Results from generators that have
// since been restarted are dropped.
func (rd *Renderer) uploadTextures() int {
	rd.mu.Lock()
	done := rd.finished
	rd.finished = nil
	rd.mu.Unlock()

	n := 0
	for _, f := range done {
		pt, ok := rd.textures[f.elem]
		if !ok || pt.gen != f.gen {
			continue
		}
		rd.ras.UpdateTexture(pt.tex, f.img)
		pt.cancel = nil
		n++
		rd.lg.Debug("uploaded procedural texture", slog.String("element", f.elem.String()),
			slog.Int("width", f.img.Bounds().Dx()), slog.Int("height", f.img.Bounds().Dy()))
	}
	return n
}

// texture returns the procedural texture with the given element id.
func (rd *Renderer) texture(id string) *rasterizer.Texture {
	for e, pt := range rd.textures {
		if e.AttrString("id", "") == id {
			return pt.tex
		}
	}
	return nil
}
