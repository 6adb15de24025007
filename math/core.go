// math/core.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/constraints"
)

const Pi = gomath.Pi

func Radians(d float32) float32 {
	return d / 180 * Pi
}

func Degrees(r float32) float32 {
	return r * 180 / Pi
}

func Clamp[T constraints.Ordered](x, low, high T) T {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}

func Lerp(x, a, b float32) float32 {
	return (1-x)*a + x*b
}

func Abs[T constraints.Integer | constraints.Float](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

func Sqrt(a float32) float32 {
	return float32(gomath.Sqrt(float64(a)))
}

func Ceil(v float32) float32 {
	return float32(gomath.Ceil(float64(v)))
}

// Quantize maps v to the integer bucket ceil(v/granularity). Values that
// fall in the same bucket are treated as identical by the resource
// caches, so that continuously varying sizes share GPU and physics
// objects.
func Quantize(v, granularity float32) int32 {
	return int32(Ceil(v / granularity))
}

// Dequantize returns the size represented by bucket q.
func Dequantize(q int32, granularity float32) float32 {
	return float32(q) * granularity
}

// QuantizeVec3 quantizes each component of v.
func QuantizeVec3(v mgl32.Vec3, granularity float32) [3]int32 {
	return [3]int32{Quantize(v[0], granularity), Quantize(v[1], granularity), Quantize(v[2], granularity)}
}

// EulerToQuat returns the rotation that applies rotations about x, y,
// and z, in that order; angles are in radians.
func EulerToQuat(e mgl32.Vec3) mgl32.Quat {
	return mgl32.AnglesToQuat(e[0], e[1], e[2], mgl32.XYZ).Normalize()
}

// QuatToEuler is the inverse of EulerToQuat.
func QuatToEuler(q mgl32.Quat) mgl32.Vec3 {
	m := q.Normalize().Mat4()
	// m = Rx * Ry * Rz; see mgl32.AnglesToQuat.
	sy := Clamp(m.At(0, 2), -1, 1)
	y := float32(gomath.Asin(float64(sy)))
	if Abs(sy) < 0.99999 {
		x := float32(gomath.Atan2(float64(-m.At(1, 2)), float64(m.At(2, 2))))
		z := float32(gomath.Atan2(float64(-m.At(0, 1)), float64(m.At(0, 0))))
		return mgl32.Vec3{x, y, z}
	}
	// Gimbal lock; fold all of the rotation into x.
	x := float32(gomath.Atan2(float64(m.At(2, 1)), float64(m.At(1, 1))))
	return mgl32.Vec3{x, y, 0}
}
