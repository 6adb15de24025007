// rasterizer/light.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxActiveLights is the number of lights that shaders are given for
// each item.
const MaxActiveLights = 8

// Light is a point light.
type Light struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	// Attenuation holds the constant, linear, and quadratic terms.
	Attenuation mgl32.Vec3
	// Radius limits the light's influence; zero means unlimited.
	Radius  float32
	Enabled bool
}

func NewLight() *Light {
	return &Light{
		Color:       mgl32.Vec3{1, 1, 1},
		Attenuation: mgl32.Vec3{1, 0, 0},
		Enabled:     true,
	}
}

// LightSet is the set of lights that may affect a group of instances.
// Each frame the lights nearest the camera are selected for shading.
type LightSet struct {
	Ambient mgl32.Vec3
	Lights  []*Light
}

// selectLights returns up to MaxActiveLights enabled lights that are
// within range of p, nearest first.
func (ls *LightSet) selectLights(p mgl32.Vec3) []*Light {
	type cand struct {
		l *Light
		d float32
	}
	var c []cand
	for _, l := range ls.Lights {
		if l == nil || !l.Enabled {
			continue
		}
		d := l.Position.Sub(p).Len()
		if l.Radius > 0 && d > l.Radius {
			continue
		}
		c = append(c, cand{l: l, d: d})
	}
	slices.SortStableFunc(c, func(a, b cand) int {
		switch {
		case a.d < b.d:
			return -1
		case a.d > b.d:
			return 1
		default:
			return 0
		}
	})

	sel := make([]*Light, 0, min(len(c), MaxActiveLights))
	for _, cd := range c[:min(len(c), MaxActiveLights)] {
		sel = append(sel, cd.l)
	}
	return sel
}

type lightSelectionKey struct {
	ls     *LightSet
	camera mgl32.Vec3
}

// Activate resolves the active lights for the current camera, reusing
// the selection already made this frame for the same set and viewpoint.
// Materials push the selected lights when they are activated.
func (ls *LightSet) Activate(r *Rasterizer) {
	key := lightSelectionKey{ls: ls, camera: r.ctx.CameraPosition}
	sel, ok := r.frame.lights[key]
	if !ok {
		sel = ls.selectLights(r.ctx.CameraPosition)
		r.frame.lights[key] = sel
	}
	r.ctx.Lights = sel
	r.ctx.Ambient = ls.Ambient
}
