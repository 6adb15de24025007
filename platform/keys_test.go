// platform/keys_test.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func TestSpecialKeyName(t *testing.T) {
	for _, test := range []struct {
		key  glfw.Key
		name string
		ok   bool
	}{
		{glfw.KeyEscape, "escape", true},
		{glfw.KeyF1, "f1", true},
		{glfw.KeyF12, "f12", true},
		{glfw.KeyKPEnter, "enter", true},
		{glfw.KeyRightShift, "shift", true},
		{glfw.KeyA, "", false},
		{glfw.Key1, "", false},
	} {
		name, ok := specialKeyName(test.key)
		if name != test.name || ok != test.ok {
			t.Errorf("key %d: got %q %v, want %q %v", test.key, name, ok, test.name, test.ok)
		}
	}
}
