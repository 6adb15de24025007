// renderer/shapes.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"encoding/json"
	"fmt"
	gomath "math"

	"github.com/lxengine/lxengine/rasterizer"
	"github.com/lxengine/lxengine/util"

	"github.com/go-gl/mathgl/mgl32"
)

// UnitSphere returns a triangulated sphere of radius 0.5 centered at the
// origin, with normals and texture coordinates.
func UnitSphere(slices, stacks int) rasterizer.PrimitiveBuffer {
	slices, stacks = max(slices, 3), max(stacks, 2)
	pb := rasterizer.PrimitiveBuffer{Type: "triangles", UVs: make([][]mgl32.Vec2, 1)}

	for i := 0; i <= stacks; i++ {
		v := float64(i) / float64(stacks)
		phi := v * gomath.Pi
		for j := 0; j <= slices; j++ {
			u := float64(j) / float64(slices)
			theta := u * 2 * gomath.Pi
			n := mgl32.Vec3{
				float32(gomath.Sin(phi) * gomath.Cos(theta)),
				float32(gomath.Sin(phi) * gomath.Sin(theta)),
				float32(gomath.Cos(phi)),
			}
			pb.Positions = append(pb.Positions, n.Mul(0.5))
			pb.Normals = append(pb.Normals, n)
			pb.UVs[0] = append(pb.UVs[0], mgl32.Vec2{float32(u), float32(v)})
		}
	}

	row := uint32(slices + 1)
	for i := range uint32(stacks) {
		for j := range uint32(slices) {
			a, b := i*row+j, (i+1)*row+j
			pb.Indices = append(pb.Indices, a, b, a+1, a+1, b, b+1)
		}
	}
	return pb
}

// UnitCube returns an axis-aligned cube with edges of length 1 centered
// at the origin, as quads with per-face normals.
func UnitCube() rasterizer.PrimitiveBuffer {
	pb := rasterizer.PrimitiveBuffer{Type: "quads", UVs: make([][]mgl32.Vec2, 1)}
	faces := []struct{ n, u, v mgl32.Vec3 }{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}
	corners := [4]mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for _, f := range faces {
		center := f.n.Mul(0.5)
		for _, c := range corners {
			p := center.Add(f.u.Mul(c[0] - 0.5)).Add(f.v.Mul(c[1] - 0.5))
			pb.Positions = append(pb.Positions, p)
			pb.Normals = append(pb.Normals, f.n)
			pb.UVs[0] = append(pb.UVs[0], c)
		}
	}
	return pb
}

// MeshBuffer converts the value of a <Mesh> element to a PrimitiveBuffer.
// The value is either a PrimitiveBuffer or the decoded JSON of a geometry
// file.
func MeshBuffer(v any) (rasterizer.PrimitiveBuffer, error) {
	switch mv := v.(type) {
	case rasterizer.PrimitiveBuffer:
		return mv, nil
	case *rasterizer.PrimitiveBuffer:
		return *mv, nil
	case map[string]any:
		b, err := json.Marshal(mv)
		if err != nil {
			return rasterizer.PrimitiveBuffer{}, err
		}
		var pb rasterizer.PrimitiveBuffer
		if err := util.UnmarshalJSONBytes(b, &pb); err != nil {
			return rasterizer.PrimitiveBuffer{}, err
		}
		if pb.Type == "" {
			pb.Type = "triangles"
		}
		return pb, nil
	case nil:
		return rasterizer.PrimitiveBuffer{}, fmt.Errorf("mesh has no data")
	default:
		return rasterizer.PrimitiveBuffer{}, fmt.Errorf("mesh value of type %T", v)
	}
}
