// rasterizer/materials.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"runtime"

	"github.com/lxengine/lxengine/util"

	"github.com/brunoga/deep"
	"github.com/iancoleman/orderedmap"
)

// MaterialKey identifies a cached Material.
type MaterialKey struct {
	Class    string
	Instance string
}

func (k MaterialKey) String() string {
	if k.Instance == "" {
		return k.Class
	}
	return k.Class + "." + k.Instance
}

// materialDescriptor is the format of material.json and of the
// instance-<name>.json files.
type materialDescriptor struct {
	Geometry   string                 `json:"geometry"`
	Parameters *orderedmap.OrderedMap `json:"parameters"`
	State      struct {
		Blend *bool `json:"blend"`
		ZTest *bool `json:"ztest"`
	} `json:"state"`
}

// parameters returns the descriptor's parameters in file order.
func (d *materialDescriptor) parameters() ([]string, Parameters) {
	if d == nil || d.Parameters == nil {
		return nil, Parameters{}
	}
	keys := d.Parameters.Keys()
	p := make(Parameters, len(keys))
	for _, k := range keys {
		p[k], _ = d.Parameters.Get(k)
	}
	return keys, p
}

// readDescriptor loads an optional descriptor; a missing file returns
// nil and no error.
func (r *Rasterizer) readDescriptor(p string) (*materialDescriptor, error) {
	b, err := r.media.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var e util.ErrorLogger
	e.Push(p)
	util.CheckJSON(b, &e)
	e.Pop()
	if e.HaveErrors() {
		return nil, e.Err()
	}

	var d materialDescriptor
	if err := util.UnmarshalJSONBytes(b, &d); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return &d, nil
}

func (r *Rasterizer) readOptional(p string) (string, error) {
	b, err := r.media.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return string(b), err
}

// AcquireMaterial returns the Material for the given class and instance
// names, loading it from materials/<class>/ on first use. Repeated calls
// with the same names return the same *Material until the class is
// invalidated.
func (r *Rasterizer) AcquireMaterial(class, instance string) (*Material, error) {
	key := MaterialKey{Class: class, Instance: instance}
	if m, ok := r.materials[key]; ok {
		return m, nil
	}

	mc, err := r.acquireMaterialClass(class)
	if err != nil {
		return nil, err
	}

	m := r.newMaterial(mc, instance, nil)
	if instance != "" {
		p := path.Join("materials", class, "instance-"+instance+".json")
		desc, err := r.readDescriptor(p)
		if err != nil {
			return nil, err
		}
		if desc != nil {
			_, params := desc.parameters()
			for k, v := range params {
				m.Parameters[k] = v
			}
			applyState(desc, &m.Blend, &m.DepthTest)
			if desc.Geometry != "" {
				if m.GeometryType, err = ParsePrimitive(desc.Geometry); err != nil {
					return nil, fmt.Errorf("%s: %w", p, err)
				}
			}
		}
	}
	r.resolveTextures(m)

	r.materials[key] = m
	r.lg.Debug("created material", slog.Any("material", m))
	return m, nil
}

func applyState(d *materialDescriptor, blend, ztest *bool) {
	if d.State.Blend != nil {
		*blend = *d.State.Blend
	}
	if d.State.ZTest != nil {
		*ztest = *d.State.ZTest
	}
}

// newMaterial returns a Material whose parameters start as a copy of the
// class defaults merged with params.
func (r *Rasterizer) newMaterial(mc *MaterialClass, instance string, params Parameters) *Material {
	m := &Material{
		Class:        mc,
		Instance:     instance,
		Parameters:   deep.MustCopy(mc.Defaults),
		Blend:        mc.Blend,
		DepthTest:    mc.DepthTest,
		GeometryType: mc.GeometryType,
		textures:     make(map[string]*Texture),
	}
	if m.Parameters == nil {
		m.Parameters = Parameters{}
	}
	for k, v := range params {
		m.Parameters[k] = v
	}
	return m
}

// resolveTextures loads the textures named by sampler parameters.
func (r *Rasterizer) resolveTextures(m *Material) {
	for _, u := range m.Class.uniforms {
		if !u.Type.IsSampler() {
			continue
		}
		v, ok := m.lookup(u.Name)
		if !ok {
			continue
		}
		if name, ok := v.(string); ok && name != SourceFBOParameter {
			filter := FilterLinear
			if f, ok := m.Parameters[u.Name+"Filter"].(string); ok {
				filter, _ = ParseTextureFilter(f)
			}
			m.textures[u.Name] = r.AcquireTexture(name, filter)
		}
	}
}

func (r *Rasterizer) acquireMaterialClass(class string) (*MaterialClass, error) {
	if mc, ok := r.classes[class]; ok {
		return mc, nil
	}

	dir := path.Join("materials", class)
	desc, err := r.readDescriptor(path.Join(dir, "material.json"))
	if err != nil {
		return nil, err
	}
	order, defaults := desc.parameters()

	var src ProgramSource
	graph, err := r.readOptional(path.Join(dir, "shader.graph"))
	if err != nil {
		return nil, err
	}
	if graph != "" {
		g, err := r.compileShaderGraph(class, []byte(graph))
		if err != nil {
			return nil, err
		}
		src = g.Source
		for _, name := range g.Order {
			if _, ok := defaults[name]; !ok {
				defaults[name] = g.Parameters[name]
				order = append(order, name)
			}
		}
	} else {
		for _, s := range []struct {
			file string
			dst  *string
		}{
			{"shader.vert", &src.Vertex},
			{"shader.geom", &src.Geometry},
			{"shader.frag", &src.Fragment},
		} {
			if *s.dst, err = r.readOptional(path.Join(dir, s.file)); err != nil {
				return nil, err
			}
		}
		if src.Vertex == "" && src.Fragment == "" {
			return nil, fmt.Errorf("material class %q: no shaders found in %s", class, dir)
		}
		if src.Vertex == "" {
			src.Vertex = r.surfaceVertexShader
		}
	}

	mc, err := r.compileMaterialClass(class, src, defaults)
	if err != nil {
		return nil, err
	}
	if desc != nil {
		applyState(desc, &mc.Blend, &mc.DepthTest)
		if desc.Geometry != "" {
			if mc.GeometryType, err = ParsePrimitive(desc.Geometry); err != nil {
				return nil, fmt.Errorf("%s: %w", dir, err)
			}
		}
	}

	r.classes[class] = mc
	r.lg.Debug("compiled material class", slog.String("class", class),
		slog.Any("parameters", order), slog.Int("uniforms", len(mc.uniforms)))
	return mc, nil
}

// compileMaterialClass compiles the program and builds the uniform and
// attribute plan used at activation.
func (r *Rasterizer) compileMaterialClass(name string, src ProgramSource, defaults Parameters) (*MaterialClass, error) {
	prog, err := r.dev.CompileProgram(src)
	if err != nil {
		return nil, fmt.Errorf("material class %q: %w", name, err)
	}

	mc := &MaterialClass{
		Name:         name,
		GeometryType: PrimitiveTriangles,
		Defaults:     defaults,
		DepthTest:    true,
		program:      prog,
		uniforms:     r.dev.ProgramUniforms(prog),
		source:       src,
	}
	if mc.Defaults == nil {
		mc.Defaults = Parameters{}
	}

	for _, a := range r.dev.ProgramAttributes(prog) {
		ch := attributeChannel(a.Name)
		if ch == channelNone {
			r.lg.Warn("unknown vertex attribute", slog.String("class", name), slog.String("attribute", a.Name))
			continue
		}
		mc.attributes = append(mc.attributes, attributeBinding{location: a.Location, channel: ch})
	}

	for _, u := range mc.uniforms {
		if u.Type == UniformUnsupported {
			r.lg.Warn("unsupported uniform type", slog.String("class", name), slog.String("uniform", u.Name))
		} else if !builtinUniform(u.Name) {
			if _, ok := mc.Defaults[u.Name]; !ok {
				if _, ok := standardParameters[u.Name]; !ok {
					r.lg.Info("uniform has no default value", slog.String("class", name), slog.String("uniform", u.Name))
				}
			}
		}
	}

	// The program is deleted on the render thread once neither the class
	// cache nor any Material refers to the class.
	runtime.AddCleanup(mc, r.releases.pushProgram, prog)

	return mc, nil
}

// CreateMaterial builds a Material directly from shader source and
// parameters, bypassing the media directories. The result is not cached.
func (r *Rasterizer) CreateMaterial(name string, src ProgramSource, params Parameters) (*Material, error) {
	if src.Vertex == "" {
		src.Vertex = r.surfaceVertexShader
	}
	mc, err := r.compileMaterialClass(name, src, deep.MustCopy(params))
	if err != nil {
		return nil, err
	}
	m := r.newMaterial(mc, "", nil)
	r.resolveTextures(m)
	return m, nil
}

// InvalidateMaterialClass drops the named class and all of its cached
// instances so that the next AcquireMaterial reloads them from disk.
// Materials already handed out keep working until they are released.
func (r *Rasterizer) InvalidateMaterialClass(class string) {
	mc, ok := r.classes[class]
	if !ok {
		return
	}
	delete(r.classes, class)
	for k := range r.materials {
		if k.Class == class {
			delete(r.materials, k)
		}
	}
	r.lg.Info("invalidated material class", slog.String("class", class),
		slog.Uint64("program", uint64(mc.program)))
}

// defaultMaterialClass gives the material used for each primitive type
// when an instance has no compatible material.
func defaultMaterialClass(p Primitive) (string, error) {
	switch p {
	case PrimitiveTriangles:
		return "DefaultSurface", nil
	case PrimitiveLines:
		return "DefaultLine", nil
	case PrimitivePoints:
		return "DefaultPoint", nil
	default:
		return "", fmt.Errorf("no default material for %s: %w", p, ErrUnknownPrimitive)
	}
}

// DefaultMaterial returns the cached default material for a primitive
// type.
func (r *Rasterizer) DefaultMaterial(p Primitive) (*Material, error) {
	class, err := defaultMaterialClass(p)
	if err != nil {
		return nil, err
	}
	return r.AcquireMaterial(class, "")
}
