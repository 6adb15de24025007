// rasterizer/camera.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"github.com/lxengine/lxengine/math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera defines the view and projection. The aspect ratio comes from
// the framebuffer being rendered to.
type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3
	// FieldOfView is the vertical field of view, in radians.
	FieldOfView float32
	Near, Far   float32
	// Orthographic cameras show OrthoHeight world units vertically.
	Orthographic bool
	OrthoHeight  float32
}

func NewCamera() *Camera {
	return &Camera{
		Position:    mgl32.Vec3{0, -10, 5},
		Up:          mgl32.Vec3{0, 0, 1},
		FieldOfView: math.Radians(60),
		Near:        0.1,
		Far:         1000,
		OrthoHeight: 10,
	}
}

// LookAt positions the camera at eye, looking at target.
func (c *Camera) LookAt(eye, target, up mgl32.Vec3) {
	c.Position, c.Target, c.Up = eye, target, up
}

func (c *Camera) ViewMatrix() mgl32.Mat4 {
	up := c.Up
	if up.Len() == 0 {
		up = mgl32.Vec3{0, 0, 1}
	}
	return mgl32.LookAtV(c.Position, c.Target, up)
}

func (c *Camera) ProjectionMatrix(aspect float32) mgl32.Mat4 {
	near, far := c.Near, c.Far
	if near <= 0 {
		near = 0.1
	}
	if far <= near {
		far = near * 1e4
	}
	if c.Orthographic {
		h := c.OrthoHeight / 2
		return mgl32.Ortho(-h*aspect, h*aspect, -h, h, near, far)
	}
	fov := c.FieldOfView
	if fov <= 0 {
		fov = math.Radians(60)
	}
	return mgl32.Perspective(fov, aspect, near, far)
}

// Activate loads the camera's matrices into the context; the item's
// transform composes with them afterward.
func (c *Camera) Activate(ctx *Context) {
	ctx.ProjMatrix = c.ProjectionMatrix(ctx.Target.aspect())
	ctx.CameraMatrix = c.ViewMatrix()
	ctx.ViewMatrix = ctx.CameraMatrix
	ctx.CameraPosition = c.Position
}

// Frustum returns the view volume for the given aspect ratio.
func (c *Camera) Frustum(aspect float32) math.Frustum {
	return math.FrustumFromMatrix(c.ProjectionMatrix(aspect).Mul4(c.ViewMatrix()))
}
