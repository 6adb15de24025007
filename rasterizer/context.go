// rasterizer/context.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrNoCamera              = errors.New("No camera set")
	ErrFramebufferIncomplete = errors.New("framebuffer incomplete")
	ErrUnknownPrimitive      = errors.New("unknown primitive type")
	ErrEmptyGeometry         = errors.New("geometry has no vertices")
	ErrUnknownState          = errors.New("rasterizer in unknown state")
)

// Context holds the state resolved for the item being rasterized. The
// per-item fields are reset after every item so that nothing carries
// over to an item that doesn't set it.
type Context struct {
	Pass   *GlobalPass
	Target *FrameBuffer
	Source *FrameBuffer

	Instance  *Instance
	Camera    *Camera
	Geometry  *Geometry
	Material  *Material
	Transform Transform
	Lights    []*Light
	Ambient   mgl32.Vec3

	FlatShading bool

	ProjMatrix     mgl32.Mat4
	CameraMatrix   mgl32.Mat4 // world to eye
	ModelMatrix    mgl32.Mat4
	ViewMatrix     mgl32.Mat4 // object to eye: CameraMatrix * ModelMatrix
	CameraPosition mgl32.Vec3

	// Time is the number of seconds since the rasterizer was created.
	Time float32

	attributes []attributeBinding
}

func (c *Context) resetItem() {
	c.Instance = nil
	c.Camera = nil
	c.Geometry = nil
	c.Material = nil
	c.Transform = nil
	c.Lights = nil
	c.Ambient = mgl32.Vec3{}
	c.FlatShading = false
	c.ProjMatrix = mgl32.Mat4{}
	c.CameraMatrix = mgl32.Mat4{}
	c.ModelMatrix = mgl32.Mat4{}
	c.ViewMatrix = mgl32.Mat4{}
	c.CameraPosition = mgl32.Vec3{}
	c.attributes = nil
}

func (c *Context) resetPass() {
	c.resetItem()
	c.Pass = nil
	c.Target = nil
	c.Source = nil
}

// frameState is per-frame bookkeeping.
type frameState struct {
	start    time.Time
	lights   map[lightSelectionKey][]*Light
	program  uint32
	material *Material
	stats    RendererStats
}
