// physics/world.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package physics keeps rigid bodies for document elements in a
// simulation and writes their motion back to the elements' translation
// and rotation attributes each tick.
package physics

import (
	"fmt"
	gomath "math"
	"slices"

	"github.com/lxengine/lxengine/math"

	"github.com/go-gl/mathgl/mgl32"
)

// BodyHandle identifies a body in a Simulation. The zero handle is never
// issued; contacts with the ground plane report it as their second body.
type BodyHandle uint32

const Ground BodyHandle = 0

// Material holds a body's surface and damping coefficients.
type Material struct {
	Friction       float32
	Restitution    float32
	LinearDamping  float32
	AngularDamping float32
}

func DefaultMaterial() Material {
	return Material{Friction: 0.5, Restitution: 0.1}
}

// BodyDesc describes a body to add to a Simulation. Bodies with zero
// mass are static.
type BodyDesc struct {
	Shape    *Shape
	Mass     float32
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Velocity mgl32.Vec3
	Material Material
}

// Contact reports that two bodies touched during a step.
type Contact struct {
	A, B BodyHandle
	// Normal points from A to B.
	Normal mgl32.Vec3
	Depth  float32
}

// Simulation is the interface between the physics document component and
// a rigid-body engine.
type Simulation interface {
	AddBody(desc BodyDesc) (BodyHandle, error)
	RemoveBody(h BodyHandle)
	HasBody(h BodyHandle) bool

	Transform(h BodyHandle) (mgl32.Vec3, mgl32.Quat)
	SetTransform(h BodyHandle, pos mgl32.Vec3, rot mgl32.Quat)
	Velocity(h BodyHandle) mgl32.Vec3
	SetVelocity(h BodyHandle, v mgl32.Vec3)
	SetMass(h BodyHandle, mass float32)
	SetMaterial(h BodyHandle, m Material)
	ApplyImpulse(h BodyHandle, impulse mgl32.Vec3)
	// BoundingRadius returns the radius of the body's shape.
	BoundingRadius(h BodyHandle) float32

	SetGravity(g mgl32.Vec3)
	// Step advances the simulation by dt seconds and returns the contacts
	// that occurred.
	Step(dt float32) []Contact
}

type rigidBody struct {
	shape    *Shape
	mass     float32
	pos      mgl32.Vec3
	rot      mgl32.Quat
	vel      mgl32.Vec3
	angVel   mgl32.Vec3
	material Material
}

func (b *rigidBody) invMass() float32 {
	if b.mass <= 0 {
		return 0
	}
	return 1 / b.mass
}

// World is the built-in Simulation: an integrator with a static ground
// plane at z=0 and contacts between the bounding spheres of bodies.
type World struct {
	gravity mgl32.Vec3
	ground  Material
	bodies  map[BodyHandle]*rigidBody
	order   []BodyHandle
	next    BodyHandle
}

var _ Simulation = (*World)(nil)

// NewWorld returns an empty world without gravity.
func NewWorld() *World {
	return &World{
		ground: DefaultMaterial(),
		bodies: make(map[BodyHandle]*rigidBody),
	}
}

func (w *World) AddBody(desc BodyDesc) (BodyHandle, error) {
	if desc.Shape == nil {
		return 0, fmt.Errorf("body has no shape")
	}
	if desc.Mass < 0 {
		return 0, fmt.Errorf("mass %v: must not be negative", desc.Mass)
	}
	rot := desc.Rotation
	if rot.Len() == 0 {
		rot = mgl32.QuatIdent()
	}

	w.next++
	h := w.next
	w.bodies[h] = &rigidBody{
		shape:    desc.Shape,
		mass:     desc.Mass,
		pos:      desc.Position,
		rot:      rot.Normalize(),
		vel:      desc.Velocity,
		material: desc.Material,
	}
	w.order = append(w.order, h)
	return h, nil
}

func (w *World) RemoveBody(h BodyHandle) {
	if _, ok := w.bodies[h]; ok {
		delete(w.bodies, h)
		w.order = slices.DeleteFunc(w.order, func(o BodyHandle) bool { return o == h })
	}
}

func (w *World) HasBody(h BodyHandle) bool {
	_, ok := w.bodies[h]
	return ok
}

func (w *World) Transform(h BodyHandle) (mgl32.Vec3, mgl32.Quat) {
	if b, ok := w.bodies[h]; ok {
		return b.pos, b.rot
	}
	return mgl32.Vec3{}, mgl32.QuatIdent()
}

func (w *World) SetTransform(h BodyHandle, pos mgl32.Vec3, rot mgl32.Quat) {
	if b, ok := w.bodies[h]; ok {
		b.pos = pos
		if rot.Len() > 0 {
			b.rot = rot.Normalize()
		}
	}
}

func (w *World) Velocity(h BodyHandle) mgl32.Vec3 {
	if b, ok := w.bodies[h]; ok {
		return b.vel
	}
	return mgl32.Vec3{}
}

func (w *World) SetVelocity(h BodyHandle, v mgl32.Vec3) {
	if b, ok := w.bodies[h]; ok {
		b.vel = v
	}
}

func (w *World) SetMass(h BodyHandle, mass float32) {
	if b, ok := w.bodies[h]; ok {
		b.mass = max(mass, 0)
	}
}

func (w *World) SetMaterial(h BodyHandle, m Material) {
	if b, ok := w.bodies[h]; ok {
		b.material = m
	}
}

func (w *World) ApplyImpulse(h BodyHandle, impulse mgl32.Vec3) {
	if b, ok := w.bodies[h]; ok {
		b.vel = b.vel.Add(impulse.Mul(b.invMass()))
	}
}

func (w *World) BoundingRadius(h BodyHandle) float32 {
	if b, ok := w.bodies[h]; ok {
		return b.shape.BoundingRadius()
	}
	return 0
}

func (w *World) SetGravity(g mgl32.Vec3) {
	w.gravity = g
}

func (w *World) Gravity() mgl32.Vec3 {
	return w.gravity
}

// restingSpeed is the normal speed below which a bounce off the ground is
// absorbed.
const restingSpeed = 0.05

func (w *World) Step(dt float32) []Contact {
	if dt <= 0 {
		return nil
	}

	for _, h := range w.order {
		b := w.bodies[h]
		if b.invMass() == 0 {
			continue
		}
		b.vel = b.vel.Add(w.gravity.Mul(dt))
		b.vel = b.vel.Mul(damping(b.material.LinearDamping, dt))
		b.angVel = b.angVel.Mul(damping(b.material.AngularDamping, dt))
		b.pos = b.pos.Add(b.vel.Mul(dt))
		if b.angVel.Len() > 0 {
			spin := mgl32.Quat{V: b.angVel}.Mul(b.rot).Scale(dt / 2)
			b.rot = b.rot.Add(spin).Normalize()
		}
	}

	var contacts []Contact
	for _, h := range w.order {
		if c, ok := w.collideGround(h, dt); ok {
			contacts = append(contacts, c)
		}
	}
	for i, ha := range w.order {
		for _, hb := range w.order[i+1:] {
			if c, ok := w.collide(ha, hb); ok {
				contacts = append(contacts, c)
			}
		}
	}
	return contacts
}

// damping returns the factor that velocities are scaled by over dt for
// the given damping coefficient.
func damping(d, dt float32) float32 {
	return float32(gomath.Pow(float64(1-math.Clamp(d, 0, 1)), float64(dt)))
}

func (w *World) collideGround(h BodyHandle, dt float32) (Contact, bool) {
	b := w.bodies[h]
	if b.invMass() == 0 {
		return Contact{}, false
	}
	up := mgl32.Vec3{0, 0, 1}
	extent := b.shape.Support(b.rot, up.Mul(-1))
	depth := extent - b.pos[2]
	if depth < 0 {
		return Contact{}, false
	}
	c := Contact{A: h, B: Ground, Normal: up.Mul(-1), Depth: depth}

	b.pos[2] = extent
	if b.vel[2] < 0 {
		b.vel[2] = -b.vel[2] * b.material.Restitution * w.ground.Restitution
		if b.vel[2] < restingSpeed {
			b.vel[2] = 0
		}
	}

	// Coulomb friction removes up to mu*g*dt of tangential speed.
	tangent := mgl32.Vec3{b.vel[0], b.vel[1], 0}
	if speed := tangent.Len(); speed > 0 {
		mu := b.material.Friction * w.ground.Friction
		loss := mu * max(-w.gravity[2], 0) * dt
		scale := max(speed-loss, 0) / speed
		b.vel[0] *= scale
		b.vel[1] *= scale
		if b.shape.Kind == ShapeSphere {
			// Roll without slipping.
			b.angVel = up.Cross(tangent.Mul(scale)).Mul(1 / b.shape.Radius)
		}
	}
	return c, true
}

func (w *World) collide(ha, hb BodyHandle) (Contact, bool) {
	a, b := w.bodies[ha], w.bodies[hb]
	ia, ib := a.invMass(), b.invMass()
	if ia == 0 && ib == 0 {
		return Contact{}, false
	}

	ra, rb := a.shape.BoundingRadius(), b.shape.BoundingRadius()
	d := b.pos.Sub(a.pos)
	dist := d.Len()
	if dist >= ra+rb {
		return Contact{}, false
	}

	n := mgl32.Vec3{0, 0, 1}
	if dist > 0 {
		n = d.Mul(1 / dist)
	}
	depth := ra + rb - dist

	// Separate in proportion to inverse mass.
	a.pos = a.pos.Sub(n.Mul(depth * ia / (ia + ib)))
	b.pos = b.pos.Add(n.Mul(depth * ib / (ia + ib)))

	if vn := b.vel.Sub(a.vel).Dot(n); vn < 0 {
		e := a.material.Restitution * b.material.Restitution
		j := -(1 + e) * vn / (ia + ib)
		a.vel = a.vel.Sub(n.Mul(j * ia))
		b.vel = b.vel.Add(n.Mul(j * ib))
	}
	return Contact{A: ha, B: hb, Normal: n, Depth: depth}, true
}
