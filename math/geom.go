// math/geom.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// Bounds3 is an axis-aligned bounding box. The zero value is not empty;
// use EmptyBounds3 to start accumulating points.
type Bounds3 struct {
	Min, Max mgl32.Vec3
}

func EmptyBounds3() Bounds3 {
	inf := float32(gomath.Inf(1))
	return Bounds3{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

func (b Bounds3) Empty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

func (b Bounds3) Extend(p mgl32.Vec3) Bounds3 {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

func (b Bounds3) Union(o Bounds3) Bounds3 {
	if o.Empty() {
		return b
	}
	return b.Extend(o.Min).Extend(o.Max)
}

func (b Bounds3) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b Bounds3) Diagonal() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Transform returns the bounds of the eight transformed corners of b.
func (b Bounds3) Transform(m mgl32.Mat4) Bounds3 {
	if b.Empty() {
		return b
	}
	r := EmptyBounds3()
	for i := range 8 {
		c := mgl32.Vec3{
			Select(i&1 != 0, b.Max[0], b.Min[0]),
			Select(i&2 != 0, b.Max[1], b.Min[1]),
			Select(i&4 != 0, b.Max[2], b.Min[2]),
		}
		r = r.Extend(mgl32.TransformCoordinate(c, m))
	}
	return r
}

func Select[T any](sel bool, a, b T) T {
	if sel {
		return a
	}
	return b
}

// Sphere is a bounding sphere, used for culling and for the physics
// contact approximation.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// BoundingSphere returns the sphere that circumscribes b.
func (b Bounds3) BoundingSphere() Sphere {
	if b.Empty() {
		return Sphere{}
	}
	return Sphere{Center: b.Center(), Radius: b.Diagonal().Len() / 2}
}

// Transform returns a sphere that bounds s after transformation by m; the
// radius is scaled by the largest axis scale of m.
func (s Sphere) Transform(m mgl32.Mat4) Sphere {
	scale := max(m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len())
	return Sphere{Center: mgl32.TransformCoordinate(s.Center, m), Radius: s.Radius * scale}
}

func (s Sphere) Intersects(o Sphere) bool {
	return s.Center.Sub(o.Center).Len() <= s.Radius+o.Radius
}

// Frustum holds the six clip planes of a view volume as (a,b,c,d) with
// normals pointing inward.
type Frustum [6]mgl32.Vec4

// FrustumFromMatrix extracts the planes of the view volume from a
// combined projection*view matrix.
func FrustumFromMatrix(m mgl32.Mat4) Frustum {
	r := [4]mgl32.Vec4{m.Row(0), m.Row(1), m.Row(2), m.Row(3)}
	f := Frustum{
		r[3].Add(r[0]), r[3].Sub(r[0]),
		r[3].Add(r[1]), r[3].Sub(r[1]),
		r[3].Add(r[2]), r[3].Sub(r[2]),
	}
	for i, p := range f {
		if l := p.Vec3().Len(); l > 0 {
			f[i] = p.Mul(1 / l)
		}
	}
	return f
}

// IntersectsSphere returns false only if s is entirely outside of one of
// the planes.
func (f Frustum) IntersectsSphere(s Sphere) bool {
	for _, p := range f {
		if p.Vec3().Dot(s.Center)+p[3] < -s.Radius {
			return false
		}
	}
	return true
}
