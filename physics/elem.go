// physics/elem.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package physics

import (
	"fmt"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/math"
	"github.com/lxengine/lxengine/util"

	"github.com/go-gl/mathgl/mgl32"
)

// Body is the element component that ties an element to a rigid body.
// The body is created when the element enters the document and is
// configured from these attributes:
//
//	mass             0 (static) by default
//	translation      initial position
//	rotation         quaternion "x y z w" or Euler angles in degrees
//	velocity         initial linear velocity
//	friction         0.5
//	restitution      0.1
//	linear_damping   0
//	angular_damping  0
//	display          "none" takes the body out of the world
//	bounds_type      "box", "sphere", or "capsule"
//
// The shape's size comes from radius (Sphere), size (Cube), half_extents,
// or the bounds of the Mesh element named by ref, scaled so that its
// largest dimension is max_extent.
type Body struct {
	doc    *Doc
	elem   *dom.Element
	handle BodyHandle
	shape  *Shape
}

func (b *Body) Handle() BodyHandle { return b.handle }

func (b *Body) Shape() *Shape { return b.shape }

// InWorld reports whether the body is currently part of the simulation.
func (b *Body) InWorld() bool { return b.handle != 0 }

func (b *Body) OnAdded(e *dom.Element) {
	b.elem = e
	e.AddCallback("addImpulse", func(e *dom.Element, args ...any) any {
		if len(args) == 1 {
			if v, ok := dom.Vec3(args[0]); ok {
				b.AddImpulse(v)
			}
		}
		return nil
	})
	if err := b.rebuild(); err != nil {
		b.doc.lg.Warnf("%s: %v", e, err)
	}
}

func (b *Body) OnRemoved(e *dom.Element) {
	b.unlink()
	e.RemoveCallback("addImpulse")
}

func (b *Body) OnAttributeChange(e *dom.Element, name string, value any) {
	if b.elem == nil {
		return
	}
	sim := b.doc.sim

	switch name {
	case "translation", "rotation":
		if b.doc.writing || !b.InWorld() {
			return
		}
		sim.SetTransform(b.handle, b.position(), b.rotation())
	case "velocity":
		if b.InWorld() {
			sim.SetVelocity(b.handle, e.AttrVec3("velocity", mgl32.Vec3{}))
		}
	case "friction", "restitution", "linear_damping", "angular_damping":
		if b.InWorld() {
			sim.SetMaterial(b.handle, b.material())
		}
	case "mass":
		if b.InWorld() {
			sim.SetMass(b.handle, b.mass())
		}
	case "display", "bounds_type", "radius", "size", "half_extents", "height", "ref", "max_extent":
		if err := b.rebuild(); err != nil {
			b.doc.lg.Warnf("%s: %v", e, err)
		}
	}
}

// AddImpulse applies an instantaneous change in momentum to the body.
func (b *Body) AddImpulse(v mgl32.Vec3) {
	if !b.InWorld() {
		return
	}
	if b.mass() == 0 {
		b.doc.lg.Warnf("%s: impulse on a static body has no effect", b.elem)
	}
	b.doc.sim.ApplyImpulse(b.handle, v)
}

// rebuild recreates the body from the element's attributes if its shape
// or display state changed. Write-back keeps translation and rotation
// current, so the body stays in place; a body already in the world keeps
// its velocity.
func (b *Body) rebuild() error {
	if b.elem.AttrString("display", "") == "none" {
		b.unlink()
		return nil
	}

	shape, err := b.acquireShape()
	if err != nil {
		b.unlink()
		return err
	}
	if b.InWorld() && shape == b.shape {
		return nil
	}

	velocity := b.elem.AttrVec3("velocity", mgl32.Vec3{})
	if b.InWorld() {
		velocity = b.doc.sim.Velocity(b.handle)
	}
	b.unlink()
	h, err := b.doc.sim.AddBody(BodyDesc{
		Shape:    shape,
		Mass:     b.mass(),
		Position: b.position(),
		Rotation: b.rotation(),
		Velocity: velocity,
		Material: b.material(),
	})
	if err != nil {
		return err
	}
	b.shape = shape
	b.handle = h
	b.doc.bodies[h] = b
	return nil
}

func (b *Body) unlink() {
	if b.handle == 0 {
		return
	}
	b.doc.sim.RemoveBody(b.handle)
	delete(b.doc.bodies, b.handle)
	b.handle = 0
}

func (b *Body) mass() float32 {
	return max(b.elem.AttrFloat("mass", 0), 0)
}

func (b *Body) position() mgl32.Vec3 {
	return b.elem.AttrVec3("translation", mgl32.Vec3{})
}

func (b *Body) rotation() mgl32.Quat {
	q, _ := dom.Quat(b.elem.Attr("rotation"))
	return q
}

func (b *Body) material() Material {
	return Material{
		Friction:       b.elem.AttrFloat("friction", 0.5),
		Restitution:    b.elem.AttrFloat("restitution", 0.1),
		LinearDamping:  b.elem.AttrFloat("linear_damping", 0),
		AngularDamping: b.elem.AttrFloat("angular_damping", 0),
	}
}

func (b *Body) acquireShape() (*Shape, error) {
	e := b.elem
	kind := e.AttrString("bounds_type", "")
	if kind == "" {
		kind = util.Select(e.Tag() == "Sphere", "sphere", "box")
	}

	switch kind {
	case "sphere":
		if e.HasAttr("radius") || e.Tag() == "Sphere" {
			return b.doc.shapes.Sphere(e.AttrFloat("radius", 0.5))
		}
		half, err := b.halfExtents()
		if err != nil {
			return nil, err
		}
		return b.doc.shapes.Sphere(half.Len())
	case "capsule":
		return b.doc.shapes.Capsule(e.AttrFloat("radius", 0.5), e.AttrFloat("height", 1))
	case "box":
		half, err := b.halfExtents()
		if err != nil {
			return nil, err
		}
		return b.doc.shapes.Box(half)
	default:
		return nil, fmt.Errorf("%q: unknown bounds_type", kind)
	}
}

func (b *Body) halfExtents() (mgl32.Vec3, error) {
	e := b.elem
	switch {
	case e.HasAttr("half_extents"):
		return e.AttrVec3("half_extents", mgl32.Vec3{}), nil
	case e.Tag() == "Sphere":
		r := e.AttrFloat("radius", 0.5)
		return mgl32.Vec3{r, r, r}, nil
	case e.Tag() == "Cube" || e.HasAttr("size"):
		return e.AttrVec3("size", mgl32.Vec3{1, 1, 1}).Mul(0.5), nil
	case e.HasAttr("ref"):
		return b.refExtents()
	default:
		return mgl32.Vec3{0.5, 0.5, 0.5}, nil
	}
}

// refExtents returns the half extents of the referenced mesh.
func (b *Body) refExtents() (mgl32.Vec3, error) {
	ref := b.elem.AttrString("ref", "")
	d := b.elem.Document()
	if d == nil {
		return mgl32.Vec3{}, fmt.Errorf("ref %q: element is not in a document", ref)
	}
	mesh := d.GetElementByID(ref)
	if mesh == nil {
		return mgl32.Vec3{}, fmt.Errorf("ref %q: no such element", ref)
	}
	bounds, ok := MeshBounds(mesh.Value())
	if !ok {
		return mgl32.Vec3{}, fmt.Errorf("ref %q: element has no mesh positions", ref)
	}

	half := bounds.Diagonal().Mul(0.5)
	if ext := b.elem.AttrFloat("max_extent", 0); ext > 0 {
		if m := max(half[0], half[1], half[2]); m > 0 {
			half = half.Mul(ext / (2 * m))
		}
	}
	return half, nil
}

// MeshBounds returns the bounds of mesh data held in an element's value:
// either something with a Bounds method or decoded JSON with a
// "positions" array.
func MeshBounds(v any) (math.Bounds3, bool) {
	if bv, ok := v.(interface{ Bounds() math.Bounds3 }); ok {
		b := bv.Bounds()
		return b, !b.Empty()
	}

	m, ok := v.(map[string]any)
	if !ok {
		return math.Bounds3{}, false
	}
	positions, ok := m["positions"].([]any)
	if !ok {
		return math.Bounds3{}, false
	}
	b := math.EmptyBounds3()
	for _, p := range positions {
		if v, ok := dom.Vec3(p); ok {
			b = b.Extend(v)
		}
	}
	return b, !b.Empty()
}

// Scene is the component of the <Scene> element; its gravity,
// wind_velocity, and wind_direction attributes configure the world.
type Scene struct {
	doc *Doc
}

func (s *Scene) OnAdded(e *dom.Element) {
	s.reset(e)
}

func (s *Scene) OnAttributeChange(e *dom.Element, name string, value any) {
	s.reset(e)
}

// reset derives all of the world settings from the element's current
// attributes.
func (s *Scene) reset(e *dom.Element) {
	speed, dir := s.doc.Wind()
	if e.HasAttr("wind_velocity") {
		speed = e.AttrFloat("wind_velocity", 0)
	}
	if e.HasAttr("wind_direction") {
		if v, ok := dom.Vec3(e.Attr("wind_direction")); ok && v.Len() > 0 {
			dir = v
		} else {
			s.doc.lg.Warnf("%s: invalid wind_direction %v", e, e.Attr("wind_direction"))
		}
	}
	s.doc.SetWind(speed, dir)

	if e.HasAttr("gravity") {
		if g, ok := dom.Vec3(e.Attr("gravity")); ok {
			s.doc.SetGravity(g)
		} else {
			s.doc.lg.Warnf("%s: invalid gravity %v", e, e.Attr("gravity"))
		}
	}
}
