// dom/view.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package dom

import (
	"fmt"
	"slices"
)

type EventKind int

const (
	EventKeyDown EventKind = iota
	EventKeyUp
	EventResize
	// EventCommand carries a named request such as "screenshot" in Name,
	// with optional Args.
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventKeyDown:
		return "keydown"
	case EventKeyUp:
		return "keyup"
	case EventResize:
		return "resize"
	case EventCommand:
		return "command"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is input delivered to views: key presses, window size changes,
// and commands.
type Event struct {
	Kind EventKind
	// Name is the key name for key events and the command for commands.
	Name          string
	Width, Height int
	Args          []string
}

// View presents a document. Its components, such as a renderer, receive
// the same element and update notifications as document components, plus
// events and a per-frame RenderFrame call.
type View struct {
	name  string
	doc   *Document
	comps components
}

func (v *View) Name() string { return v.name }

func (v *View) Document() *Document { return v.doc }

func (v *View) Component(name string) Component {
	return v.comps.get(name)
}

// Attach attaches a view component. As with document components, a
// component that handles added elements is told about the elements that
// are already in the tree.
func (v *View) Attach(name string, c Component) {
	sub := viewSubsystem(v.name, name)
	if old := v.comps.set(name, c); old != nil {
		v.doc.release(sub, old)
	}
	if h, ok := c.(ViewAttacher); ok {
		h.OnViewAttached(v)
	}
	if h, ok := c.(ElementAddedHandler); ok {
		for e := range v.doc.All() {
			v.doc.visit(sub, h, e)
		}
	}
}

func (v *View) Detach(name string) Component {
	c := v.comps.remove(name)
	if c != nil {
		v.doc.release(viewSubsystem(v.name, name), c)
	}
	return c
}

// Render calls RenderFrame on each component that implements it.
func (v *View) Render() error {
	for _, nc := range v.comps {
		if r, ok := nc.c.(FrameRenderer); ok {
			if err := r.RenderFrame(v); err != nil {
				return fmt.Errorf("%s: %w", nc.name, err)
			}
		}
	}
	return nil
}

// SendEvent delivers ev to all of the view's event handlers.
func (v *View) SendEvent(ev Event) bool {
	handled := false
	for _, nc := range slices.Clone(v.comps) {
		if h, ok := nc.c.(EventHandler); ok && h.HandleEvent(v, ev) {
			handled = true
		}
	}
	return handled
}
