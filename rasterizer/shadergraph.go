// rasterizer/shadergraph.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lxengine/lxengine/util"
)

// A shader graph is a tree of nodes, written as nested JSON objects with
// a "_type" field, that is compiled to a fragment shader. Literal inputs
// become uniforms whose values are the material's default parameters, so
// instances can override them like any other parameter. For example:
//
//	{"_type": "phong", "diffuse": {"_type": "checker", "scale": 4}, "shininess": 16}

// graphVersion is mixed into the cache key; bump it when code generation
// changes.
const graphVersion = "lxgraph-2"

type inputKind int

const (
	inputColor inputKind = iota
	inputFloat
	inputTexture
)

type graphInput struct {
	name string
	kind inputKind
	def  any
}

type graphNodeType struct {
	inputs []graphInput
	// body is the GLSL body of a function returning vec4; inputs are
	// referenced as {name}.
	body string
}

var (
	white = []float32{1, 1, 1, 1}
	black = []float32{0, 0, 0, 1}
)

var graphNodeTypes = map[string]graphNodeType{
	"solid": {
		inputs: []graphInput{{"color", inputColor, white}},
		body:   "return {color};",
	},
	"checker": {
		inputs: []graphInput{{"color0", inputColor, white}, {"color1", inputColor, black}, {"scale", inputFloat, float32(8)}},
		body: `vec2 c = floor(fragUV * {scale});
    return mod(c.x + c.y, 2.0) < 1.0 ? {color0} : {color1};`,
	},
	"gradient": {
		inputs: []graphInput{{"color0", inputColor, black}, {"color1", inputColor, white}},
		body:   "return mix({color0}, {color1}, clamp(fragUV.y, 0.0, 1.0));",
	},
	"texture": {
		inputs: []graphInput{{"map", inputTexture, ""}, {"scale", inputFloat, float32(1)}},
		body:   "return texture({map}, fragUV * {scale});",
	},
	"mix": {
		inputs: []graphInput{{"a", inputColor, black}, {"b", inputColor, white}, {"t", inputFloat, float32(0.5)}},
		body:   "return mix({a}, {b}, {t});",
	},
	"normal": {
		body: "return vec4(normalize(fragNormal) * 0.5 + 0.5, 1.0);",
	},
	"uv": {
		body: "return vec4(fragUV, 0.0, 1.0);",
	},
	"phong": {
		inputs: []graphInput{
			{"diffuse", inputColor, []float32{0.8, 0.75, 0.75, 1}},
			{"specular", inputColor, []float32{0.95, 0.95, 0.75, 1}},
			{"shininess", inputFloat, float32(32)},
		},
		body: `vec3 N = unifFlatNormals != 0 ?
        normalize(cross(dFdx(fragPosition), dFdy(fragPosition))) : normalize(fragNormal);
    vec3 V = normalize(-fragPosition);
    vec4 d = {diffuse};
    vec3 s = {specular}.rgb;
    vec3 c = unifAmbient * d.rgb;
    if (unifLightCount == 0)
        c += d.rgb * max(dot(N, V), 0.0);
    for (int i = 0; i < unifLightCount; ++i) {
        vec3 L = unifLightPosition[i] - fragPosition;
        float dist = length(L);
        L /= dist;
        float att = 1.0 / max(dot(unifLightAttenuation[i], vec3(1.0, dist, dist * dist)), 1e-4);
        vec3 H = normalize(L + V);
        c += att * unifLightColor[i] * (d.rgb * max(dot(N, L), 0.0) + s * pow(max(dot(N, H), 0.0), {shininess}));
    }
    return vec4(c, d.a);`,
	},
}

const graphHeader = `#version 330 core

uniform vec3 unifAmbient;
uniform int unifFlatNormals;
uniform int unifLightCount;
uniform vec3 unifLightPosition[8];
uniform vec3 unifLightColor[8];
uniform vec3 unifLightAttenuation[8];

in vec3 fragPosition;
in vec3 fragNormal;
in vec2 fragUV;

out vec4 outColor;
`

// compiledGraph is the output of the shader graph compiler. It is stored
// in the on-disk cache, so its fields are exported.
type compiledGraph struct {
	Source     ProgramSource
	Parameters Parameters
	Order      []string
}

type graphBuilder struct {
	uniforms  []string
	functions []string
	params    Parameters
	order     []string
	next      int
}

func (b *graphBuilder) node(v any, where string) (string, error) {
	n, ok := v.(map[string]any)
	if !ok {
		return "", fmt.Errorf("%s: expected a node object, got %v", where, v)
	}
	tname, _ := n["_type"].(string)
	nt, ok := graphNodeTypes[tname]
	if !ok {
		return "", fmt.Errorf("%s: unknown node type %q", where, tname)
	}

	fn := fmt.Sprintf("n%d", b.next)
	b.next++

	known := map[string]bool{"_type": true}
	var repl []string
	for _, in := range nt.inputs {
		known[in.name] = true
		iv, given := n[in.name]
		where := where + "." + in.name

		if sub, isNode := iv.(map[string]any); isNode {
			if in.kind != inputColor {
				return "", fmt.Errorf("%s: only color inputs may be nodes", where)
			}
			call, err := b.node(sub, where)
			if err != nil {
				return "", err
			}
			repl = append(repl, "{"+in.name+"}", call+"()")
			continue
		}

		uname := "unif_" + fn + "_" + in.name
		if !given {
			iv = in.def
		}
		switch in.kind {
		case inputColor:
			f, ok := toFloats(iv)
			if !ok || (len(f) != 3 && len(f) != 4) {
				return "", fmt.Errorf("%s: expected an RGB or RGBA color", where)
			}
			if len(f) == 3 {
				f = append(f, 1)
			}
			b.uniforms = append(b.uniforms, "uniform vec4 "+uname+";")
			b.setParam(uname, f)
		case inputFloat:
			f, ok := toFloats(iv)
			if !ok || len(f) != 1 {
				return "", fmt.Errorf("%s: expected a number", where)
			}
			b.uniforms = append(b.uniforms, "uniform float "+uname+";")
			b.setParam(uname, f[0])
		case inputTexture:
			s, ok := iv.(string)
			if !ok || s == "" {
				return "", fmt.Errorf("%s: expected a texture name", where)
			}
			b.uniforms = append(b.uniforms, "uniform sampler2D "+uname+";")
			b.setParam(uname, s)
		}
		repl = append(repl, "{"+in.name+"}", uname)
	}
	for k := range n {
		if !known[k] {
			return "", fmt.Errorf("%s: %q is not an input of %q", where, k, tname)
		}
	}

	body := strings.NewReplacer(repl...).Replace(nt.body)
	b.functions = append(b.functions, "vec4 "+fn+"() {\n    "+body+"\n}\n")
	return fn, nil
}

func (b *graphBuilder) setParam(name string, v any) {
	b.params[name] = v
	b.order = append(b.order, name)
}

// CompileShaderGraph compiles a JSON shader graph to a fragment shader
// and its default parameters.
func CompileShaderGraph(graph []byte) (ProgramSource, Parameters, []string, error) {
	var root map[string]any
	if err := util.UnmarshalJSONBytes(graph, &root); err != nil {
		return ProgramSource{}, nil, nil, err
	}

	b := &graphBuilder{params: make(Parameters)}
	entry, err := b.node(root, "graph")
	if err != nil {
		return ProgramSource{}, nil, nil, err
	}

	var sb strings.Builder
	sb.WriteString(graphHeader)
	sb.WriteString("\n")
	for _, u := range b.uniforms {
		sb.WriteString(u + "\n")
	}
	// Nodes are emitted children first, so every function is defined
	// before it is called.
	for _, f := range b.functions {
		sb.WriteString("\n" + f)
	}
	sb.WriteString("\nvoid main() {\n    outColor = " + entry + "();\n}\n")

	return ProgramSource{Fragment: sb.String()}, b.params, b.order, nil
}

func (r *Rasterizer) compileShaderGraph(class string, graph []byte) (*compiledGraph, error) {
	sum := sha256.Sum256(append([]byte(graphVersion), graph...))
	cachePath := "shadergraph/" + hex.EncodeToString(sum[:16])

	var cg compiledGraph
	if r.shaderCache {
		if _, err := util.CacheRetrieveObject(cachePath, &cg); err == nil && cg.Source.Fragment != "" {
			r.lg.Debug("shader graph cache hit", slog.String("class", class))
			cg.Source.Vertex = r.surfaceVertexShader
			return &cg, nil
		}
	}

	src, params, order, err := CompileShaderGraph(graph)
	if err != nil {
		return nil, fmt.Errorf("material class %q: shader.graph: %w", class, err)
	}
	cg = compiledGraph{Source: src, Parameters: params, Order: order}

	if r.shaderCache {
		if err := util.CacheStoreObject(cachePath, cg); err != nil {
			r.lg.Warn("unable to cache shader graph", slog.String("class", class), slog.Any("error", err))
		}
	}

	cg.Source.Vertex = r.surfaceVertexShader
	return &cg, nil
}
