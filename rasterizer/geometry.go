// rasterizer/geometry.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/lxengine/lxengine/math"
	"github.com/lxengine/lxengine/util"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mmp/earcut-go"
)

// Primitive is the type of primitive that a Geometry is drawn with.
type Primitive int

const (
	PrimitiveNone Primitive = iota
	PrimitivePoints
	PrimitiveLines
	PrimitiveTriangles
)

func (p Primitive) String() string {
	switch p {
	case PrimitiveNone:
		return "none"
	case PrimitivePoints:
		return "points"
	case PrimitiveLines:
		return "lines"
	case PrimitiveTriangles:
		return "triangles"
	default:
		return fmt.Sprintf("Primitive(%d)", int(p))
	}
}

// ParsePrimitive maps the primitive names used in geometry files and
// material descriptors to the primitive that is drawn. Quads and
// polygons are converted to triangles when the geometry is created.
func ParsePrimitive(s string) (Primitive, error) {
	switch s {
	case "none":
		return PrimitiveNone, nil
	case "points":
		return PrimitivePoints, nil
	case "lines":
		return PrimitiveLines, nil
	case "triangles", "quads", "polygon":
		return PrimitiveTriangles, nil
	default:
		return PrimitiveNone, fmt.Errorf("%q: %w", s, ErrUnknownPrimitive)
	}
}

// Tribool is a flag that may be left unspecified so that it can be
// resolved against another source.
type Tribool int8

const (
	Unknown Tribool = iota
	False
	True
)

func TriboolFrom(b bool) Tribool {
	return util.Select(b, True, False)
}

// Resolve returns the flag's value, or def if it is Unknown.
func (t Tribool) Resolve(def bool) bool {
	switch t {
	case True:
		return true
	case False:
		return false
	default:
		return def
	}
}

// Channel is a bitmask of the optional vertex attribute channels that a
// Geometry carries. Positions are always present.
type Channel uint16

const (
	ChannelNormals Channel = 1 << iota
	ChannelColors
	ChannelIndices
	ChannelUV0
)

const MaxUVChannels = 8

func ChannelUV(i int) Channel {
	return ChannelUV0 << i
}

func (c Channel) Has(o Channel) bool {
	return c&o == o
}

func (c Channel) String() string {
	var s []string
	if c.Has(ChannelNormals) {
		s = append(s, "normals")
	}
	if c.Has(ChannelColors) {
		s = append(s, "colors")
	}
	if c.Has(ChannelIndices) {
		s = append(s, "indices")
	}
	for i := range MaxUVChannels {
		if c.Has(ChannelUV(i)) {
			s = append(s, fmt.Sprintf("uv%d", i))
		}
	}
	return strings.Join(s, "|")
}

// PrimitiveBuffer is decoded mesh data as produced by the geometry file
// loader or by procedural generators.
type PrimitiveBuffer struct {
	Type      string         `json:"type"`
	Positions []mgl32.Vec3   `json:"positions"`
	Normals   []mgl32.Vec3   `json:"normals,omitempty"`
	Colors    []mgl32.Vec3   `json:"colors,omitempty"`
	UVs       [][]mgl32.Vec2 `json:"uv,omitempty"`
	Indices   []uint32       `json:"indices,omitempty"`
	// FlatShading overrides the flag that is otherwise derived from the
	// presence of normals.
	FlatShading *bool `json:"flat_shading,omitempty"`
}

// Bounds returns the bounding box of the positions.
func (pb PrimitiveBuffer) Bounds() math.Bounds3 {
	b := math.EmptyBounds3()
	for _, p := range pb.Positions {
		b = b.Extend(p)
	}
	return b
}

// Geometry is a set of GPU vertex buffers and the information needed to
// draw them. It is immutable after creation.
type Geometry struct {
	Name        string
	Primitive   Primitive
	Channels    Channel
	FlatShading Tribool
	Bounds      math.Bounds3
	// Count is the number of vertices issued by the draw call: the index
	// count for indexed geometry and the vertex count otherwise.
	Count int

	handles geometryHandles
}

type geometryHandles struct {
	vao       uint32
	positions uint32
	normals   uint32
	colors    uint32
	uvs       [MaxUVChannels]uint32
	indices   uint32
}

func (h geometryHandles) release(dev Device) {
	for _, b := range append([]uint32{h.positions, h.normals, h.colors, h.indices}, h.uvs[:]...) {
		if b != 0 {
			dev.DeleteBuffer(b)
		}
	}
	if h.vao != 0 {
		dev.DeleteVertexArray(h.vao)
	}
}

// buffer returns the buffer and component count for the channel that
// feeds the named vertex attribute; a zero buffer means the geometry
// lacks that channel.
func (g *Geometry) buffer(ch vertexChannel) (uint32, int) {
	switch {
	case ch == channelPosition:
		return g.handles.positions, 3
	case ch == channelNormal:
		return g.handles.normals, 3
	case ch == channelColor:
		return g.handles.colors, 3
	case ch >= channelUV0 && int(ch-channelUV0) < MaxUVChannels:
		return g.handles.uvs[ch-channelUV0], 2
	default:
		return 0, 0
	}
}

// Activate binds the geometry's vertex array, sources the attributes
// that the active material requested, and issues the draw call.
func (g *Geometry) Activate(r *Rasterizer) {
	if g.Primitive == PrimitiveNone {
		return
	}

	dev := r.dev
	dev.BindVertexArray(g.handles.vao)
	for _, b := range r.ctx.attributes {
		if buf, n := g.buffer(b.channel); buf != 0 {
			dev.BindAttribute(b.location, buf, n)
		} else {
			dev.DisableAttribute(b.location)
		}
	}

	if g.handles.indices != 0 {
		dev.DrawElements(g.Primitive, g.handles.indices, g.Count)
	} else {
		dev.DrawArrays(g.Primitive, g.Count)
	}
	r.frame.stats.addDraw(g.Primitive, g.Count)
}

// CreateGeometry uploads the given mesh data and returns a Geometry for
// it. Quads are split into triangle pairs and polygons are triangulated
// first. Empty data is an error for every primitive type other than
// "none".
func (r *Rasterizer) CreateGeometry(name string, pb PrimitiveBuffer) (*Geometry, error) {
	prim, err := ParsePrimitive(pb.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if prim != PrimitiveNone && len(pb.Positions) == 0 {
		return nil, fmt.Errorf("%s: %q: %w", name, pb.Type, ErrEmptyGeometry)
	}
	if len(pb.UVs) > MaxUVChannels {
		return nil, fmt.Errorf("%s: %d UV channels given; at most %d are supported", name, len(pb.UVs), MaxUVChannels)
	}

	switch pb.Type {
	case "quads":
		if pb, err = expandQuads(pb); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	case "polygon":
		if pb, err = triangulatePolygon(pb); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := checkChannels(pb); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	g := &Geometry{
		Name:      name,
		Primitive: prim,
		Bounds:    math.EmptyBounds3(),
	}
	for _, p := range pb.Positions {
		g.Bounds = g.Bounds.Extend(p)
	}

	if prim == PrimitiveNone {
		return g, nil
	}

	dev := r.dev
	nbuf := 1
	g.handles.vao = dev.CreateVertexArray()
	g.handles.positions = dev.CreateArrayBuffer(flattenVec3(pb.Positions))
	if len(pb.Normals) > 0 {
		g.handles.normals = dev.CreateArrayBuffer(flattenVec3(pb.Normals))
		g.Channels |= ChannelNormals
		nbuf++
	}
	if len(pb.Colors) > 0 {
		g.handles.colors = dev.CreateArrayBuffer(flattenVec3(pb.Colors))
		g.Channels |= ChannelColors
		nbuf++
	}
	for i, uv := range pb.UVs {
		if len(uv) > 0 {
			g.handles.uvs[i] = dev.CreateArrayBuffer(flattenVec2(uv))
			g.Channels |= ChannelUV(i)
			nbuf++
		}
	}
	if len(pb.Indices) > 0 {
		g.handles.indices = dev.CreateIndexBuffer(pb.Indices)
		g.Channels |= ChannelIndices
		g.Count = len(pb.Indices)
		nbuf++
	} else {
		g.Count = len(pb.Positions)
	}
	r.frame.stats.Buffers += nbuf

	if pb.FlatShading != nil {
		g.FlatShading = TriboolFrom(*pb.FlatShading)
	} else if !g.Channels.Has(ChannelNormals) {
		g.FlatShading = True
	}

	// The native objects are released on the render thread once the
	// Geometry is no longer referenced.
	runtime.AddCleanup(g, r.releases.pushGeometry, g.handles)

	return g, nil
}

func checkChannels(pb PrimitiveBuffer) error {
	n := len(pb.Positions)
	check := func(what string, m int) error {
		if m != 0 && m != n {
			return fmt.Errorf("%s has %d entries but there are %d positions", what, m, n)
		}
		return nil
	}
	if err := check("normals", len(pb.Normals)); err != nil {
		return err
	}
	if err := check("colors", len(pb.Colors)); err != nil {
		return err
	}
	for i, uv := range pb.UVs {
		if err := check(fmt.Sprintf("uv%d", i), len(uv)); err != nil {
			return err
		}
	}
	for _, idx := range pb.Indices {
		if int(idx) >= n {
			return fmt.Errorf("index %d out of range for %d positions", idx, n)
		}
	}
	return nil
}

// quadSplit gives the corners of each quad used for its two triangles.
var quadSplit = [6]int{0, 1, 2, 0, 2, 3}

func expandQuadRuns[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	r := make([]T, 0, len(s)/4*6)
	for q := 0; q+4 <= len(s); q += 4 {
		for _, c := range quadSplit {
			r = append(r, s[q+c])
		}
	}
	return r
}

// expandQuads converts a quad list to a triangle list. With indices, the
// index list is expanded; otherwise every vertex channel is.
func expandQuads(pb PrimitiveBuffer) (PrimitiveBuffer, error) {
	if len(pb.Indices) > 0 {
		if len(pb.Indices)%4 != 0 {
			return pb, fmt.Errorf("quad index count %d is not a multiple of 4", len(pb.Indices))
		}
		pb.Indices = expandQuadRuns(pb.Indices)
	} else {
		if len(pb.Positions)%4 != 0 {
			return pb, fmt.Errorf("quad vertex count %d is not a multiple of 4", len(pb.Positions))
		}
		if err := checkChannels(pb); err != nil {
			return pb, err
		}
		pb.Positions = expandQuadRuns(pb.Positions)
		pb.Normals = expandQuadRuns(pb.Normals)
		pb.Colors = expandQuadRuns(pb.Colors)
		pb.UVs = util.MapSlice(pb.UVs, expandQuadRuns[mgl32.Vec2])
	}
	pb.Type = "triangles"
	return pb, nil
}

// triangulatePolygon triangulates a single planar outline given by the
// positions, producing an index list.
func triangulatePolygon(pb PrimitiveBuffer) (PrimitiveBuffer, error) {
	if len(pb.Positions) < 3 {
		return pb, fmt.Errorf("polygon needs at least 3 vertices, got %d", len(pb.Positions))
	}

	// Project onto the plane of the polygon's dominant axis, using
	// Newell's method for the normal.
	var n mgl32.Vec3
	for i, p := range pb.Positions {
		q := pb.Positions[(i+1)%len(pb.Positions)]
		n = n.Add(mgl32.Vec3{(p[1] - q[1]) * (p[2] + q[2]), (p[2] - q[2]) * (p[0] + q[0]), (p[0] - q[0]) * (p[1] + q[1])})
	}
	u, v := 0, 1
	if ax, ay, az := math.Abs(n[0]), math.Abs(n[1]), math.Abs(n[2]); ax >= ay && ax >= az {
		u, v = 1, 2
	} else if ay >= az {
		u, v = 2, 0
	}

	verts := make([]earcut.Vertex, len(pb.Positions))
	index := make(map[[2]float64]uint32)
	for i, p := range pb.Positions {
		verts[i].P = [2]float64{float64(p[u]), float64(p[v])}
		index[verts[i].P] = uint32(i)
	}

	var indices []uint32
	for _, tri := range earcut.Triangulate(earcut.Polygon{Rings: [][]earcut.Vertex{verts}}) {
		for _, tv := range tri.Vertices {
			indices = append(indices, index[tv.P])
		}
	}
	if len(indices) == 0 {
		return pb, fmt.Errorf("polygon is degenerate")
	}

	pb.Indices = indices
	pb.Type = "triangles"
	return pb, nil
}

func flattenVec3(v []mgl32.Vec3) []float32 {
	f := make([]float32, 0, 3*len(v))
	for _, p := range v {
		f = append(f, p[:]...)
	}
	return f
}

func flattenVec2(v []mgl32.Vec2) []float32 {
	f := make([]float32, 0, 2*len(v))
	for _, p := range v {
		f = append(f, p[:]...)
	}
	return f
}

///////////////////////////////////////////////////////////////////////////
// Geometry cache

type geometryKey struct {
	name string
	r    *Rasterizer
}

func (k geometryKey) Create() (*Geometry, error) {
	return k.r.loadGeometry(k.name)
}

func (k geometryKey) String() string {
	return "geometry " + k.name
}

// AcquireGeometry returns the Geometry described by geometry/<name>.json
// in the media directories, sharing it with any other live users.
func (r *Rasterizer) AcquireGeometry(name string) (*Geometry, error) {
	return r.geometry.Acquire(geometryKey{name: name, r: r})
}

func (r *Rasterizer) loadGeometry(name string) (*Geometry, error) {
	b, err := r.media.ReadFile("geometry/" + name + ".json")
	if err != nil {
		return nil, err
	}

	var pb PrimitiveBuffer
	if err := util.UnmarshalJSONBytes(b, &pb); err != nil {
		return nil, fmt.Errorf("geometry/%s.json: %w", name, err)
	}
	return r.CreateGeometry(name, pb)
}
