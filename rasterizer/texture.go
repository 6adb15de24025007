// rasterizer/texture.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"path"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Texture is a GPU texture map. Textures loaded from media files are
// cached by name for the lifetime of the Rasterizer; a texture whose file
// is missing has a zero handle and is bound as such.
type Texture struct {
	Name          string
	Target        TextureTarget
	Filter        TextureFilter
	Width, Height int

	id    uint32
	files []string // media paths backing the texture; empty for procedural textures
	stale bool
}

// ID returns the native texture handle; it is zero if the texture could
// not be loaded.
func (t *Texture) ID() uint32 {
	if t == nil {
		return 0
	}
	return t.id
}

type textureKey struct {
	name   string
	filter TextureFilter
}

// cubeFaces are the file names of the six faces of a cube map, in the
// order the GPU expects them.
var cubeFaces = [6]string{"posx", "negx", "posy", "negy", "posz", "negz"}

func newImageCache() *expirable.LRU[string, *image.RGBA] {
	return expirable.NewLRU[string, *image.RGBA](32, nil, 10*time.Minute)
}

// texturePath resolves a texture name to a media path: names with a
// directory component are used as is and bare names are looked up under
// textures/.
func texturePath(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return path.Join("textures", name)
}

// AcquireTexture returns the named texture, loading it on first use. A
// missing or undecodable file is logged and results in a texture with a
// zero handle rather than an error. If name refers to a directory with
// posx..negz images, a cube map is created.
func (r *Rasterizer) AcquireTexture(name string, filter TextureFilter) *Texture {
	key := textureKey{name: name, filter: filter}
	if t, ok := r.textures[key]; ok {
		return t
	}

	t := &Texture{Name: name, Filter: filter}
	r.textures[key] = t
	r.loadTexture(t)
	return t
}

func (r *Rasterizer) loadTexture(t *Texture) {
	p := texturePath(t.Name)

	if r.media.Exists(path.Join(p, cubeFaces[0]+".png")) {
		var faces [6]*image.RGBA
		t.files = nil
		for i, f := range cubeFaces {
			fp := path.Join(p, f+".png")
			img, err := r.decodeImage(fp)
			if err != nil {
				r.lg.Warn("unable to load cube map face", slog.String("texture", t.Name), slog.Any("error", err))
				return
			}
			faces[i] = img
			t.files = append(t.files, fp)
		}
		t.Target = TextureCube
		t.Width, t.Height = faces[0].Bounds().Dx(), faces[0].Bounds().Dy()
		if t.id != 0 {
			r.dev.DeleteTexture(t.id)
		}
		t.id = r.dev.CreateCubeMap(faces)
		return
	}

	img, err := r.decodeImage(p)
	if err != nil {
		r.lg.Warn("unable to load texture", slog.String("texture", t.Name), slog.Any("error", err))
		t.files = []string{p}
		return
	}
	t.files = []string{p}
	r.uploadTexture(t, img)
}

func (r *Rasterizer) uploadTexture(t *Texture, img *image.RGBA) {
	t.Target = Texture2D
	t.Width, t.Height = img.Bounds().Dx(), img.Bounds().Dy()
	if t.id == 0 {
		t.id = r.dev.CreateTexture2D(img, t.Filter)
	} else {
		r.dev.UpdateTexture2D(t.id, img, t.Filter)
	}
}

func (r *Rasterizer) decodeImage(p string) (*image.RGBA, error) {
	if img, ok := r.images.Get(p); ok {
		return img, nil
	}

	b, err := r.media.ReadFile(p)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	rgba := ToRGBA(img)
	r.images.Add(p, rgba)
	return rgba, nil
}

// ToRGBA returns img as an *image.RGBA with its origin at (0,0),
// converting it if necessary.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// CreateTexture creates an uncached texture from the provided image, for
// procedurally generated textures.
func (r *Rasterizer) CreateTexture(name string, img image.Image, filter TextureFilter) *Texture {
	t := &Texture{Name: name, Filter: filter}
	r.uploadTexture(t, ToRGBA(img))
	return t
}

// UpdateTexture replaces the contents of t with img.
func (r *Rasterizer) UpdateTexture(t *Texture, img image.Image) {
	r.uploadTexture(t, ToRGBA(img))
}

// DeleteTexture releases the native texture; t must not be used again.
func (r *Rasterizer) DeleteTexture(t *Texture) {
	if t.id != 0 {
		r.dev.DeleteTexture(t.id)
		t.id = 0
	}
	for k, ct := range r.textures {
		if ct == t {
			delete(r.textures, k)
		}
	}
}

// markTexturesStale flags the cached textures backed by the given media
// path so that the next RefreshTextures reloads them.
func (r *Rasterizer) markTexturesStale(p string) bool {
	found := false
	for _, t := range r.textures {
		for _, f := range t.files {
			if f == p {
				t.stale = true
				found = true
			}
		}
	}
	if found {
		r.images.Remove(p)
	}
	return found
}

// RefreshTextures reloads every cached texture whose file has changed
// since it was loaded, returning the number reloaded.
func (r *Rasterizer) RefreshTextures() int {
	n := 0
	for _, t := range r.textures {
		if t.stale {
			t.stale = false
			for _, f := range t.files {
				r.images.Remove(f)
			}
			r.loadTexture(t)
			n++
		}
	}
	if n > 0 {
		r.lg.Infof("reloaded %d textures", n)
	}
	return n
}
