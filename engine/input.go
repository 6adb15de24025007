// engine/input.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package engine

import (
	"github.com/lxengine/lxengine/dom"
)

const inputComponentName = "input"

// input is the view component that forwards key events to the elements
// that bound the onKeyDown or onKeyUp callbacks, typically through
// on_key_down and on_key_up script attributes. The callbacks receive the
// key name.
type input struct{}

func keyCallback(k dom.EventKind) (string, bool) {
	switch k {
	case dom.EventKeyDown:
		return "onKeyDown", true
	case dom.EventKeyUp:
		return "onKeyUp", true
	default:
		return "", false
	}
}

func (in *input) HandleEvent(v *dom.View, ev dom.Event) bool {
	name, ok := keyCallback(ev.Kind)
	if !ok {
		return false
	}

	// Callbacks may change the tree, so collect the targets first.
	var targets []*dom.Element
	for e := range v.Document().All() {
		if e.HasCallback(name) {
			targets = append(targets, e)
		}
	}
	for _, e := range targets {
		e.Call(name, ev.Name)
	}
	return len(targets) > 0
}
