// renderer/scene.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/math"
	"github.com/lxengine/lxengine/rasterizer"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
)

// lookupVec3 returns the first of the named attributes that holds a
// vector, falling back to the same keys in a decoded JSON value.
func lookupVec3(e *dom.Element, names ...string) (mgl32.Vec3, bool) {
	for _, n := range names {
		if v, ok := dom.Vec3(e.Attr(n)); ok {
			return v, true
		}
	}
	if m, ok := e.Value().(map[string]any); ok {
		for _, n := range names {
			if v, ok := dom.Vec3(m[n]); ok {
				return v, true
			}
		}
	}
	return mgl32.Vec3{}, false
}

func lookupFloat(e *dom.Element, def float32, names ...string) float32 {
	for _, n := range names {
		if f, ok := dom.Float(e.Attr(n)); ok {
			return float32(f)
		}
	}
	if m, ok := e.Value().(map[string]any); ok {
		for _, n := range names {
			if f, ok := dom.Float(m[n]); ok {
				return float32(f)
			}
		}
	}
	return def
}

// ParseColor accepts "#rgb" and "#rrggbb" strings as well as anything
// dom.Vec3 accepts.
func ParseColor(v any) (mgl32.Vec3, bool) {
	if s, ok := v.(string); ok && strings.HasPrefix(s, "#") {
		c, err := colorful.Hex(s)
		if err != nil {
			return mgl32.Vec3{}, false
		}
		return mgl32.Vec3{float32(c.R), float32(c.G), float32(c.B)}, true
	}
	return dom.Vec3(v)
}

func colorAttr(e *dom.Element, name string, def mgl32.Vec3) mgl32.Vec3 {
	if c, ok := ParseColor(e.Attr(name)); ok {
		return c
	}
	return def
}

// warn logs a problem with an element, once until the problem changes.
func (rd *Renderer) warn(e *dom.Element, err error) {
	msg := err.Error()
	if rd.warned[e] == msg {
		return
	}
	rd.warned[e] = msg
	rd.lg.Warnf("%s: %v", e, err)
}

///////////////////////////////////////////////////////////////////////////
// Algorithm

func (rd *Renderer) algorithm() *rasterizer.RenderAlgorithm {
	pass := &rasterizer.GlobalPass{
		Name:     "scene",
		Camera:   rd.updateCamera(),
		LightSet: rd.updateLights(),
		Cull:     rd.opts.Cull,
	}
	alg := &rasterizer.RenderAlgorithm{
		Passes:     []*rasterizer.GlobalPass{pass},
		ClearColor: rd.opts.ClearColor,
	}

	if s := rd.scene; s != nil {
		if c, ok := ParseColor(s.Attr("background")); ok {
			alg.ClearColor = c.Vec4(1)
		}
		pass.Wireframe = s.AttrBool("wireframe", false)
		if b, ok := dom.Bool(s.Attr("flat_shading")); ok {
			pass.FlatShading = rasterizer.TriboolFrom(b)
		}
	}
	return alg
}

// updateCamera configures the camera from the most recently added
// <Camera> element and returns nil if there is none.
func (rd *Renderer) updateCamera() *rasterizer.Camera {
	if len(rd.cameras) == 0 {
		return nil
	}
	e, c := rd.cameras[len(rd.cameras)-1], rd.camera

	if p, ok := lookupVec3(e, "position", "translation"); ok {
		c.Position = p
	}
	if t, ok := lookupVec3(e, "look_at", "target"); ok {
		c.Target = t
	}
	if up, ok := lookupVec3(e, "up"); ok {
		c.Up = up
	} else {
		c.Up = mgl32.Vec3{0, 0, 1}
	}
	c.FieldOfView = math.Radians(lookupFloat(e, 60, "fov"))
	c.Near = lookupFloat(e, 0.1, "near")
	c.Far = lookupFloat(e, 1000, "far")
	c.Orthographic = e.AttrString("projection", "") == "orthographic"
	c.OrthoHeight = lookupFloat(e, 10, "ortho_height")
	return c
}

func (rd *Renderer) updateLights() *rasterizer.LightSet {
	ls := rd.lightSet
	ls.Lights = ls.Lights[:0]
	ls.Ambient = mgl32.Vec3{0.1, 0.1, 0.1}
	if rd.scene != nil {
		ls.Ambient = colorAttr(rd.scene, "ambient", ls.Ambient)
	}

	for _, e := range rd.lights {
		l, ok := rd.lightObjs[e]
		if !ok {
			l = rasterizer.NewLight()
			rd.lightObjs[e] = l
		}
		if p, ok := lookupVec3(e, "position", "translation"); ok {
			l.Position = p
		}
		l.Color = colorAttr(e, "color", mgl32.Vec3{1, 1, 1}).Mul(e.AttrFloat("intensity", 1))
		l.Attenuation = e.AttrVec3("attenuation", mgl32.Vec3{1, 0, 0})
		l.Radius = e.AttrFloat("radius", 0)
		l.Enabled = e.AttrString("display", "") != "none"
		ls.Lights = append(ls.Lights, l)
	}
	return ls
}

///////////////////////////////////////////////////////////////////////////
// Render list

func (rd *Renderer) renderList() *rasterizer.RenderList {
	list := rasterizer.NewRenderList()
	for _, e := range rd.drawables {
		if e.AttrString("display", "") == "none" {
			continue
		}
		inst, err := rd.instance(e)
		if err != nil {
			rd.warn(e, err)
			continue
		}
		list.Add(int(e.AttrFloat("layer", 0)), inst)
	}
	return list
}

// instance builds the instance that draws e. Spheres and cubes are unit
// shapes scaled by radius and size; a Ref draws the <Mesh> whose id is
// its ref attribute, scaled by scale and then so that its largest
// dimension is max_extent if that is given.
func (rd *Renderer) instance(e *dom.Element) (*rasterizer.Instance, error) {
	var g *rasterizer.Geometry
	var err error
	var scale mgl32.Vec3

	switch e.Tag() {
	case "Sphere":
		if g, err = rd.unitSphere(); err != nil {
			return nil, err
		}
		d := 2 * e.AttrFloat("radius", 0.5)
		scale = mgl32.Vec3{d, d, d}
	case "Cube":
		if g, err = rd.unitCube(); err != nil {
			return nil, err
		}
		scale = e.AttrVec3("size", mgl32.Vec3{1, 1, 1})
	case "Ref":
		ref := e.AttrString("ref", "")
		mesh := e.Document().GetElementByID(ref)
		if mesh == nil {
			return nil, fmt.Errorf("ref %q: no such element", ref)
		}
		if g, err = rd.mesh(mesh); err != nil {
			return nil, fmt.Errorf("ref %q: %w", ref, err)
		}
		scale = e.AttrVec3("scale", mgl32.Vec3{1, 1, 1})
		if ext := e.AttrFloat("max_extent", 0); ext > 0 {
			d := g.Bounds.Diagonal()
			if m := max(d[0], d[1], d[2]); m > 0 {
				scale = scale.Mul(ext / m)
			}
		}
	default:
		return nil, fmt.Errorf("%s elements are not drawable", e.Tag())
	}

	pos := e.AttrVec3("translation", mgl32.Vec3{})
	rot, _ := dom.Quat(e.Attr("rotation"))
	model := rasterizer.TRS(pos, rot, scale)

	inst := &rasterizer.Instance{
		Geometry: g,
		Material: rd.material(e),
		UserData: e,
	}
	switch kind := e.AttrString("transform", "world"); kind {
	case "world":
		inst.Transform = model
		inst.Bounds = g.Bounds.BoundingSphere().Transform(mgl32.Mat4(model))
	case "eye":
		inst.Transform = rasterizer.EyeTransform(model)
	case "billboard":
		inst.Transform = rasterizer.BillboardTransform{Position: pos, Scale: max(scale[0], scale[1], scale[2])}
	default:
		return nil, fmt.Errorf("%q: unknown transform", kind)
	}
	return inst, nil
}

func (rd *Renderer) unitSphere() (*rasterizer.Geometry, error) {
	if rd.sphere == nil {
		g, err := rd.ras.CreateGeometry("unit sphere", UnitSphere(32, 16))
		if err != nil {
			return nil, err
		}
		rd.sphere = g
	}
	return rd.sphere, nil
}

func (rd *Renderer) unitCube() (*rasterizer.Geometry, error) {
	if rd.cube == nil {
		g, err := rd.ras.CreateGeometry("unit cube", UnitCube())
		if err != nil {
			return nil, err
		}
		rd.cube = g
	}
	return rd.cube, nil
}

var errBuildFailed = errors.New("could not be built")

// mesh returns the geometry of a <Mesh> element. A mesh that fails to
// build is not retried until the element changes.
func (rd *Renderer) mesh(e *dom.Element) (*rasterizer.Geometry, error) {
	if g, ok := rd.meshes[e]; ok {
		if g == nil {
			return nil, fmt.Errorf("%s %w", e, errBuildFailed)
		}
		return g, nil
	}

	pb, err := MeshBuffer(e.Value())
	if err == nil {
		var g *rasterizer.Geometry
		if g, err = rd.ras.CreateGeometry("document/"+e.AttrString("id", ""), pb); err == nil {
			rd.meshes[e] = g
			return g, nil
		}
	}
	rd.meshes[e] = nil
	rd.warn(e, err)
	return nil, fmt.Errorf("%s %w", e, errBuildFailed)
}

// material resolves an element's material attribute: the id of a
// <Material> element, or "Class" or "Class.instance" for a material from
// the media directories. Problems are logged and the rasterizer's
// default material is used.
func (rd *Renderer) material(e *dom.Element) *rasterizer.Material {
	name := e.AttrString("material", "")
	if name == "" {
		return nil
	}
	for _, me := range rd.matElems {
		if me.AttrString("id", "") == name {
			return rd.buildMaterial(me)
		}
	}

	class, instance, _ := strings.Cut(name, ".")
	m, err := rd.ras.AcquireMaterial(class, instance)
	if err != nil {
		rd.warn(e, err)
		return nil
	}
	return m
}

// buildMaterial creates the material of a <Material> element, either
// from its class and instance attributes or from a shader graph in its
// value:
//
//	{"graph": {"_type": "texture", "map": "checker"}, "parameters": {...}}
//
// Texture names that match the id of a <Texture> element are bound to
// that element's texture.
func (rd *Renderer) buildMaterial(e *dom.Element) *rasterizer.Material {
	if m, ok := rd.materials[e]; ok {
		return m
	}
	m, err := rd.createMaterial(e)
	if err != nil {
		rd.warn(e, err)
	}
	rd.materials[e] = m
	return m
}

func (rd *Renderer) createMaterial(e *dom.Element) (*rasterizer.Material, error) {
	if class := e.AttrString("class", ""); class != "" {
		return rd.ras.AcquireMaterial(class, e.AttrString("instance", ""))
	}

	desc, _ := e.Value().(map[string]any)
	graph, ok := desc["graph"]
	if !ok {
		return nil, fmt.Errorf("material has neither a class nor a graph")
	}
	b, err := json.Marshal(graph)
	if err != nil {
		return nil, err
	}
	src, params, _, err := rasterizer.CompileShaderGraph(b)
	if err != nil {
		return nil, err
	}

	if p, ok := desc["parameters"].(map[string]any); ok {
		maps.Copy(params, p)
	}
	textures := make(map[string]*rasterizer.Texture)
	for k, v := range params {
		if s, ok := v.(string); ok {
			if t := rd.texture(s); t != nil {
				textures[k] = t
				delete(params, k)
			}
		}
	}

	m, err := rd.ras.CreateMaterial("document/"+e.AttrString("id", ""), src, params)
	if err != nil {
		return nil, err
	}
	for k, t := range textures {
		m.Parameters[k] = t
	}
	if b, ok := dom.Bool(desc["blend"]); ok {
		m.Blend = b
	}
	m.Blend = e.AttrBool("blend", m.Blend)
	return m, nil
}
