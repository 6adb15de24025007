// rasterizer/transform.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform places an Instance. Activation composes the transform into
// the view matrix that was set up by the camera.
type Transform interface {
	Activate(ctx *Context)
}

// MatrixTransform is an object-to-world matrix.
type MatrixTransform mgl32.Mat4

func (m MatrixTransform) Activate(ctx *Context) {
	ctx.ModelMatrix = mgl32.Mat4(m)
	ctx.ViewMatrix = ctx.CameraMatrix.Mul4(ctx.ModelMatrix)
}

// TRS returns the transform that scales, rotates, and then translates.
func TRS(translation mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) MatrixTransform {
	m := mgl32.Translate3D(translation[0], translation[1], translation[2]).
		Mul4(rotation.Mat4()).
		Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))
	return MatrixTransform(m)
}

// ProjViewModelTransform overrides the camera entirely; it is used for
// screen-space geometry such as the full-screen quad of blit passes.
type ProjViewModelTransform struct {
	Proj, View, Model mgl32.Mat4
}

func IdentityTransform() ProjViewModelTransform {
	return ProjViewModelTransform{Proj: mgl32.Ident4(), View: mgl32.Ident4(), Model: mgl32.Ident4()}
}

func (t ProjViewModelTransform) Activate(ctx *Context) {
	ctx.ProjMatrix = t.Proj
	ctx.CameraMatrix = t.View
	ctx.ModelMatrix = t.Model
	ctx.ViewMatrix = t.View.Mul4(t.Model)
}

// EyeTransform positions geometry relative to the eye, ignoring the
// camera's orientation; it is used for things like weapon models and
// HUD elements that move with the viewer.
type EyeTransform mgl32.Mat4

func (t EyeTransform) Activate(ctx *Context) {
	ctx.ModelMatrix = ctx.CameraMatrix.Inv().Mul4(mgl32.Mat4(t))
	ctx.ViewMatrix = mgl32.Mat4(t)
}

// BillboardTransform positions geometry at a world-space point but keeps
// it facing the camera.
type BillboardTransform struct {
	Position mgl32.Vec3
	Scale    float32
}

func (t BillboardTransform) Activate(ctx *Context) {
	s := t.Scale
	if s == 0 {
		s = 1
	}
	eye := mgl32.TransformCoordinate(t.Position, ctx.CameraMatrix)
	ctx.ViewMatrix = mgl32.Translate3D(eye[0], eye[1], eye[2]).Mul4(mgl32.Scale3D(s, s, s))
	ctx.ModelMatrix = ctx.CameraMatrix.Inv().Mul4(ctx.ViewMatrix)
}
