// platform/keys.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package platform

import (
	"strconv"
	"strings"

	"github.com/go-gl/glfw/v3.3/glfw"
)

var specialKeys = map[glfw.Key]string{
	glfw.KeyEscape:       "escape",
	glfw.KeySpace:        "space",
	glfw.KeyEnter:        "enter",
	glfw.KeyKPEnter:      "enter",
	glfw.KeyTab:          "tab",
	glfw.KeyBackspace:    "backspace",
	glfw.KeyDelete:       "delete",
	glfw.KeyInsert:       "insert",
	glfw.KeyHome:         "home",
	glfw.KeyEnd:          "end",
	glfw.KeyPageUp:       "page_up",
	glfw.KeyPageDown:     "page_down",
	glfw.KeyLeft:         "left",
	glfw.KeyRight:        "right",
	glfw.KeyUp:           "up",
	glfw.KeyDown:         "down",
	glfw.KeyLeftShift:    "shift",
	glfw.KeyRightShift:   "shift",
	glfw.KeyLeftControl:  "control",
	glfw.KeyRightControl: "control",
	glfw.KeyLeftAlt:      "alt",
	glfw.KeyRightAlt:     "alt",
}

// specialKeyName names the keys that have no printable character:
// "escape", "left", "f1", and so forth.
func specialKeyName(key glfw.Key) (string, bool) {
	if key >= glfw.KeyF1 && key <= glfw.KeyF25 {
		return "f" + strconv.Itoa(int(key-glfw.KeyF1)+1), true
	}
	name, ok := specialKeys[key]
	return name, ok
}

// KeyName returns the name that key events carry: the lowercase
// character a printable key produces in the current keyboard layout, or
// the name of a special key. Unknown keys give "".
func KeyName(key glfw.Key, scancode int) string {
	if name, ok := specialKeyName(key); ok {
		return name
	}
	return strings.ToLower(glfw.GetKeyName(key, scancode))
}
