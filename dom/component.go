// dom/component.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package dom

import "slices"

// Component is a named unit of behavior attached to an Element, a
// Document, or a View. The dom package never calls a component directly;
// it discovers what a component cares about by asserting the optional
// interfaces below.
type Component any

// Element components.

// AttributeChangeHandler is called synchronously after every SetAttr on
// the owning element. Implementations must be idempotent: setting the
// same value twice must leave the same state as setting it once.
type AttributeChangeHandler interface {
	OnAttributeChange(e *Element, name string, value any)
}

type ValueChangeHandler interface {
	OnValueChange(e *Element, value any)
}

// AddedHandler is called when the owning element enters a document's
// tree, or when the component is attached to an element that is already
// in one.
type AddedHandler interface {
	OnAdded(e *Element)
}

// RemovedHandler is called when the owning element leaves the document's
// tree; components release their native resources here.
type RemovedHandler interface {
	OnRemoved(e *Element)
}

// ElementUpdater is called once per tick for every element in the tree,
// after the document and view components have updated.
type ElementUpdater interface {
	OnUpdate(e *Element)
}

// Document and view components.

type DocumentAttacher interface {
	OnAttached(d *Document)
}

type DocumentUpdater interface {
	OnDocumentUpdate(d *Document)
}

// ElementAddedHandler is called exactly once for each element as it
// enters the tree.
type ElementAddedHandler interface {
	OnElementAdded(d *Document, e *Element)
}

type ElementRemovedHandler interface {
	OnElementRemoved(d *Document, e *Element)
}

// RunHandler brackets a run of the engine's main loop.
type RunHandler interface {
	OnBeginRun(d *Document)
	OnEndRun(d *Document)
}

// Closer is called when a component is detached or its owner is closed.
type Closer interface {
	Close()
}

// View components.

type ViewAttacher interface {
	OnViewAttached(v *View)
}

// FrameRenderer draws the view; errors abort the frame.
type FrameRenderer interface {
	RenderFrame(v *View) error
}

// EventHandler receives the events sent to a view and returns true if it
// acted on the event.
type EventHandler interface {
	HandleEvent(v *View, ev Event) bool
}

///////////////////////////////////////////////////////////////////////////
// components

type namedComponent struct {
	name string
	c    Component
}

// components is a name-keyed set of components that remembers attachment
// order.
type components []namedComponent

func (cs components) get(name string) Component {
	if i := cs.index(name); i != -1 {
		return cs[i].c
	}
	return nil
}

func (cs components) index(name string) int {
	return slices.IndexFunc(cs, func(nc namedComponent) bool { return nc.name == name })
}

// set attaches c under name, replacing and returning any component that
// already has the name.
func (cs *components) set(name string, c Component) Component {
	if i := cs.index(name); i != -1 {
		old := (*cs)[i].c
		(*cs)[i].c = c
		return old
	}
	*cs = append(*cs, namedComponent{name: name, c: c})
	return nil
}

func (cs *components) remove(name string) Component {
	i := cs.index(name)
	if i == -1 {
		return nil
	}
	old := (*cs)[i].c
	*cs = slices.Delete(*cs, i, i+1)
	return old
}

func (cs components) names() []string {
	n := make([]string, len(cs))
	for i, nc := range cs {
		n[i] = nc.name
	}
	return n
}

// ComponentAs returns the component attached to e under name if it has
// type T.
func ComponentAs[T any](e *Element, name string) (T, bool) {
	c, ok := e.Component(name).(T)
	return c, ok
}
