// physics/shape.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package physics

import (
	"fmt"

	"github.com/lxengine/lxengine/cache"
	"github.com/lxengine/lxengine/math"

	"github.com/go-gl/mathgl/mgl32"
)

// ShapeGranularity is the size of the buckets that shape dimensions are
// rounded up to before shapes are shared.
const ShapeGranularity = 0.05

type ShapeKind int

const (
	ShapeBox ShapeKind = iota
	ShapeSphere
	// ShapeCapsule is a cylinder along the local z axis capped with
	// hemispheres.
	ShapeCapsule
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeBox:
		return "box"
	case ShapeSphere:
		return "sphere"
	case ShapeCapsule:
		return "capsule"
	default:
		return fmt.Sprintf("ShapeKind(%d)", int(k))
	}
}

// Shape is an immutable collision shape. Shapes are shared between
// bodies through a ShapeCache.
type Shape struct {
	Kind ShapeKind
	// HalfExtents is set for boxes.
	HalfExtents mgl32.Vec3
	// Radius is set for spheres and capsules; Height is the length of a
	// capsule's cylinder.
	Radius, Height float32
}

// BoundingRadius returns the radius of the sphere about the shape's
// origin that encloses it.
func (s *Shape) BoundingRadius() float32 {
	switch s.Kind {
	case ShapeBox:
		return s.HalfExtents.Len()
	case ShapeCapsule:
		return s.Radius + s.Height/2
	default:
		return s.Radius
	}
}

// Support returns how far the shape extends from its origin along the
// unit vector dir when rotated by rot.
func (s *Shape) Support(rot mgl32.Quat, dir mgl32.Vec3) float32 {
	switch s.Kind {
	case ShapeBox:
		var d float32
		for i := range 3 {
			var axis mgl32.Vec3
			axis[i] = 1
			d += math.Abs(rot.Rotate(axis).Dot(dir)) * s.HalfExtents[i]
		}
		return d
	case ShapeCapsule:
		return s.Radius + math.Abs(rot.Rotate(mgl32.Vec3{0, 0, 1}).Dot(dir))*s.Height/2
	default:
		return s.Radius
	}
}

// shapeKey is a shape's quantized dimensions.
type shapeKey struct {
	kind    ShapeKind
	a, b, c int32
}

func (k shapeKey) Create() (*Shape, error) {
	a := math.Dequantize(k.a, ShapeGranularity)
	b := math.Dequantize(k.b, ShapeGranularity)
	c := math.Dequantize(k.c, ShapeGranularity)

	switch k.kind {
	case ShapeBox:
		if a <= 0 || b <= 0 || c <= 0 {
			return nil, fmt.Errorf("box half extents %v %v %v: must be positive", a, b, c)
		}
		return &Shape{Kind: ShapeBox, HalfExtents: mgl32.Vec3{a, b, c}}, nil
	case ShapeSphere:
		if a <= 0 {
			return nil, fmt.Errorf("sphere radius %v: must be positive", a)
		}
		return &Shape{Kind: ShapeSphere, Radius: a}, nil
	case ShapeCapsule:
		if a <= 0 || b < 0 {
			return nil, fmt.Errorf("capsule radius %v height %v: invalid", a, b)
		}
		return &Shape{Kind: ShapeCapsule, Radius: a, Height: b}, nil
	default:
		return nil, fmt.Errorf("%s: unknown shape kind", k.kind)
	}
}

// ShapeCache shares collision shapes between bodies whose dimensions fall
// in the same buckets. Dimensions are rounded up to a multiple of
// ShapeGranularity, so the shared shape is never smaller than requested.
type ShapeCache struct {
	shapes *cache.Cache[shapeKey, Shape]
}

func NewShapeCache() *ShapeCache {
	return &ShapeCache{shapes: cache.New[shapeKey, Shape]()}
}

func (sc *ShapeCache) Box(halfExtents mgl32.Vec3) (*Shape, error) {
	q := math.QuantizeVec3(halfExtents, ShapeGranularity)
	return sc.shapes.Acquire(shapeKey{kind: ShapeBox, a: q[0], b: q[1], c: q[2]})
}

func (sc *ShapeCache) Sphere(radius float32) (*Shape, error) {
	return sc.shapes.Acquire(shapeKey{kind: ShapeSphere, a: math.Quantize(radius, ShapeGranularity)})
}

func (sc *ShapeCache) Capsule(radius, height float32) (*Shape, error) {
	return sc.shapes.Acquire(shapeKey{
		kind: ShapeCapsule,
		a:    math.Quantize(radius, ShapeGranularity),
		b:    math.Quantize(height, ShapeGranularity),
	})
}

func (sc *ShapeCache) Stats() cache.Stats {
	return sc.shapes.Stats()
}
