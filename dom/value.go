// dom/value.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package dom

import (
	"strconv"
	"strings"

	"github.com/lxengine/lxengine/math"

	"github.com/go-gl/mathgl/mgl32"
)

// Attribute and element values are dynamically typed. Values parsed from
// scene files are int64, float64, bool, string, []float64, or whatever
// encoding/json produces for structured text; code may additionally
// store any Go value, including opaque handles. The helpers below do the
// lenient conversions that components rely on.

// ParseValue converts the text of an attribute to a typed value:
// integers and floats become int64 and float64, "true" and "false"
// become bools, whitespace- or comma-separated numbers become []float64,
// and anything else is left as a string.
func ParseValue(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return s
	}
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return f
	}
	if t == "true" || t == "false" {
		return t == "true"
	}

	fields := strings.FieldsFunc(t, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\n' })
	if len(fields) > 1 {
		v := make([]float64, len(fields))
		for i, f := range fields {
			var err error
			if v[i], err = strconv.ParseFloat(f, 64); err != nil {
				return s
			}
		}
		return v
	}
	return s
}

// Float returns v as a float64 if it is numeric or a string holding a
// number.
func Float(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int32:
		return float64(f), true
	case int64:
		return float64(f), true
	case bool:
		if f {
			return 1, true
		}
		return 0, true
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		return x, err == nil
	default:
		return 0, false
	}
}

func Int(v any) (int, bool) {
	f, ok := Float(v)
	return int(f), ok
}

func Bool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "on", "1":
			return true, true
		case "false", "no", "off", "0":
			return false, true
		}
		return false, false
	default:
		f, ok := Float(v)
		return f != 0, ok
	}
}

// String returns v as a string. Numbers and lists are formatted the way
// ParseValue reads them.
func String(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int:
		return strconv.Itoa(s), true
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	case []float64:
		strs := make([]string, len(s))
		for i, f := range s {
			strs[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(strs, " "), true
	default:
		return "", false
	}
}

// Floats returns the numbers held by v, which may be a single number, a
// numeric slice, a JSON array, or a string of numbers.
func Floats(v any) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []float32:
		f := make([]float64, len(s))
		for i := range s {
			f[i] = float64(s[i])
		}
		return f, true
	case mgl32.Vec3:
		return []float64{float64(s[0]), float64(s[1]), float64(s[2])}, true
	case mgl32.Vec4:
		return []float64{float64(s[0]), float64(s[1]), float64(s[2]), float64(s[3])}, true
	case mgl32.Quat:
		return []float64{float64(s.V[0]), float64(s.V[1]), float64(s.V[2]), float64(s.W)}, true
	case []any:
		f := make([]float64, len(s))
		for i := range s {
			var ok bool
			if f[i], ok = Float(s[i]); !ok {
				return nil, false
			}
		}
		return f, true
	case string:
		p := ParseValue(s)
		if _, ok := p.(string); ok {
			return nil, false
		}
		return Floats(p)
	default:
		if f, ok := Float(v); ok {
			return []float64{f}, true
		}
		return nil, false
	}
}

// Vec3 returns v as a vector. A single number is splatted across all
// three components.
func Vec3(v any) (mgl32.Vec3, bool) {
	f, ok := Floats(v)
	switch {
	case !ok:
		return mgl32.Vec3{}, false
	case len(f) == 1:
		return mgl32.Vec3{float32(f[0]), float32(f[0]), float32(f[0])}, true
	case len(f) == 3:
		return mgl32.Vec3{float32(f[0]), float32(f[1]), float32(f[2])}, true
	default:
		return mgl32.Vec3{}, false
	}
}

// Vec4 returns v as a vector; three values are extended with w=1.
func Vec4(v any) (mgl32.Vec4, bool) {
	f, ok := Floats(v)
	switch {
	case !ok:
		return mgl32.Vec4{}, false
	case len(f) == 3:
		return mgl32.Vec4{float32(f[0]), float32(f[1]), float32(f[2]), 1}, true
	case len(f) == 4:
		return mgl32.Vec4{float32(f[0]), float32(f[1]), float32(f[2]), float32(f[3])}, true
	default:
		return mgl32.Vec4{}, false
	}
}

// Quat returns v as a rotation. Four values are a quaternion in x, y, z,
// w order; three are Euler angles in degrees.
func Quat(v any) (mgl32.Quat, bool) {
	f, ok := Floats(v)
	switch {
	case !ok:
		return mgl32.QuatIdent(), false
	case len(f) == 4:
		q := mgl32.Quat{W: float32(f[3]), V: mgl32.Vec3{float32(f[0]), float32(f[1]), float32(f[2])}}
		if q.Len() == 0 {
			return mgl32.QuatIdent(), false
		}
		return q.Normalize(), true
	case len(f) == 3:
		e := mgl32.Vec3{math.Radians(float32(f[0])), math.Radians(float32(f[1])), math.Radians(float32(f[2]))}
		return math.EulerToQuat(e), true
	default:
		return mgl32.QuatIdent(), false
	}
}
