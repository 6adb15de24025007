// rasterizer/pipeline.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"iter"
	"slices"

	"github.com/lxengine/lxengine/math"
	"github.com/lxengine/lxengine/util"

	"github.com/go-gl/mathgl/mgl32"
)

// Instance is one thing to draw in a frame. Instances are built each
// frame and discarded after rasterization; the resources they refer to
// are shared and long-lived.
type Instance struct {
	Geometry *Geometry
	// Material may be nil, in which case the pass' material or the
	// default material for the geometry's primitive type is used.
	Material  *Material
	Transform Transform
	Camera    *Camera
	LightSet  *LightSet
	Bounds    math.Sphere
	// UserData is not used by the rasterizer; renderers store the
	// element that produced the instance here.
	UserData any
}

// RenderList holds the instances of a frame by layer. Layers are drawn
// in ascending order and instances within a layer in the order they were
// added, so blended geometry can be drawn last by giving it a higher
// layer.
type RenderList struct {
	layers map[int][]*Instance
	n      int
}

func NewRenderList() *RenderList {
	return &RenderList{layers: make(map[int][]*Instance)}
}

func (l *RenderList) Add(layer int, inst *Instance) {
	if l.layers == nil {
		l.layers = make(map[int][]*Instance)
	}
	l.layers[layer] = append(l.layers[layer], inst)
	l.n++
}

func (l *RenderList) Len() int {
	return l.n
}

// Layers returns the populated layer ids in ascending order.
func (l *RenderList) Layers() []int {
	return util.SortedMapKeys(l.layers)
}

// Layer returns the instances of a single layer in insertion order.
func (l *RenderList) Layer(layer int) []*Instance {
	return slices.Clone(l.layers[layer])
}

// All iterates over all instances in draw order.
func (l *RenderList) All() iter.Seq2[int, *Instance] {
	return func(yield func(int, *Instance) bool) {
		for _, layer := range l.Layers() {
			for _, inst := range l.layers[layer] {
				if !yield(layer, inst) {
					return
				}
			}
		}
	}
}

// GlobalPass is one stage of a RenderAlgorithm. Its fields override the
// corresponding instance state where documented; nil and zero values
// leave the instance's state in effect.
type GlobalPass struct {
	Name string
	// Camera and LightSet are used by instances that don't specify their
	// own.
	Camera   *Camera
	LightSet *LightSet
	// Material, if set, is used for every instance in the pass.
	Material *Material
	// FrameBuffer is the render target; nil means the screen.
	FrameBuffer *FrameBuffer
	// SourceFBO makes this a blit pass: a single full-screen quad is
	// drawn sampling the source's color attachment and the render list
	// is ignored.
	SourceFBO *FrameBuffer
	// ClearColor, if set, clears the target before drawing.
	ClearColor  *mgl32.Vec4
	FlatShading Tribool
	Wireframe   bool
	// Cull enables bounding sphere culling against the pass camera.
	Cull bool
}

// RenderAlgorithm is the ordered set of passes used to draw a frame.
type RenderAlgorithm struct {
	Passes     []*GlobalPass
	ClearColor mgl32.Vec4
}
