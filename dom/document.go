// dom/document.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package dom implements the engine's document model: a tree of
// Elements with dynamically typed attributes, plus named Components
// attached to elements, to the Document, and to its Views that keep
// derived state (physics bodies, scripts, GPU resources) in sync with
// the tree.
package dom

import (
	"fmt"
	"iter"
	"slices"

	"github.com/lxengine/lxengine/log"
)

// ComponentFactory creates the component that the Registry attaches to
// an element when it enters a document.
type ComponentFactory func(e *Element) Component

// Registry maps element tags to the components that are automatically
// attached to elements with that tag.
type Registry struct {
	byTag map[string][]registration
}

type registration struct {
	name    string
	factory ComponentFactory
}

func NewRegistry() *Registry {
	return &Registry{byTag: make(map[string][]registration)}
}

// Register arranges for f to be called for each element with the given
// tag that enters a document, attaching its result under name. Elements
// that already have a component with that name are left alone.
func (r *Registry) Register(tag, name string, f ComponentFactory) {
	r.byTag[tag] = append(r.byTag[tag], registration{name: name, factory: f})
}

type visitKey struct {
	subsystem string
	e         *Element
}

// Document owns the element tree, document-level components, and views.
type Document struct {
	root      *Element
	comps     components
	views     []*View
	registry  *Registry
	visited   map[visitKey]struct{}
	functions map[string]Callback
	lg        *log.Logger
}

// NewDocument returns a document whose tree holds a single empty
// <Document> element. reg may be nil.
func NewDocument(reg *Registry, lg *log.Logger) *Document {
	if reg == nil {
		reg = NewRegistry()
	}
	d := &Document{
		registry:  reg,
		visited:   make(map[visitKey]struct{}),
		functions: make(map[string]Callback),
		lg:        lg,
	}
	d.SetRoot(NewElement("Document"))
	return d
}

func (d *Document) Logger() *log.Logger { return d.lg }

func (d *Document) Root() *Element { return d.root }

// SetRoot replaces the document's tree. The old root and its descendants
// are removed from the document before the new ones are added.
func (d *Document) SetRoot(e *Element) {
	if e.parent != nil {
		panic(fmt.Sprintf("dom: new root %s has a parent", e))
	}
	if old := d.root; old != nil {
		d.root = nil
		old.notifyRemoved(d)
	}
	d.root = e
	e.notifyAdded(d)
}

// CreateElement returns a new detached element.
func (d *Document) CreateElement(tag string) *Element {
	return NewElement(tag)
}

// AddFunction registers a callback that any element in the document can
// Call by name if it has no callback of its own with that name.
func (d *Document) AddFunction(name string, fn Callback) {
	d.functions[name] = fn
}

///////////////////////////////////////////////////////////////////////////
// Lookup

// All returns an iterator over the elements in the tree in depth-first
// order.
func (d *Document) All() iter.Seq[*Element] {
	return func(yield func(*Element) bool) {
		if d.root != nil {
			d.root.walk(yield)
		}
	}
}

func (d *Document) Elements() []*Element {
	return slices.Collect(d.All())
}

// GetElementByID returns the first element, in depth-first order, whose
// id attribute is id.
func (d *Document) GetElementByID(id string) *Element {
	for e := range d.All() {
		if s, ok := e.Attr("id").(string); ok && s == id {
			return e
		}
	}
	return nil
}

func (d *Document) GetElementsByTagName(tag string) []*Element {
	var els []*Element
	for e := range d.All() {
		if e.tag == tag {
			els = append(els, e)
		}
	}
	return els
}

///////////////////////////////////////////////////////////////////////////
// Components

func (d *Document) Component(name string) Component {
	return d.comps.get(name)
}

func (d *Document) ComponentNames() []string {
	return d.comps.names()
}

// Attach attaches a document component. If the component handles added
// elements, it is told about every element already in the tree.
func (d *Document) Attach(name string, c Component) {
	if old := d.comps.set(name, c); old != nil {
		d.release(documentSubsystem(name), old)
	}
	if h, ok := c.(DocumentAttacher); ok {
		h.OnAttached(d)
	}
	if h, ok := c.(ElementAddedHandler); ok {
		for e := range d.All() {
			d.visit(documentSubsystem(name), h, e)
		}
	}
}

func (d *Document) Detach(name string) Component {
	c := d.comps.remove(name)
	if c != nil {
		d.release(documentSubsystem(name), c)
	}
	return c
}

// release lets a component that is going away forget the elements it has
// seen and then closes it.
func (d *Document) release(subsystem string, c Component) {
	for k := range d.visited {
		if k.subsystem == subsystem {
			delete(d.visited, k)
		}
	}
	if cl, ok := c.(Closer); ok {
		cl.Close()
	}
}

func documentSubsystem(name string) string { return "document/" + name }

func viewSubsystem(v, name string) string { return "view/" + v + "/" + name }

// visit delivers OnElementAdded for the (subsystem, element) pair. Each
// pair may be visited only once while the element is in the tree.
func (d *Document) visit(subsystem string, h ElementAddedHandler, e *Element) {
	k := visitKey{subsystem: subsystem, e: e}
	if _, ok := d.visited[k]; ok {
		panic(fmt.Sprintf("dom: %s: OnElementAdded for %s called twice", subsystem, e))
	}
	d.visited[k] = struct{}{}
	h.OnElementAdded(d, e)
}

func (d *Document) notifyElementAdded(e *Element) {
	for _, r := range d.registry.byTag[e.tag] {
		if e.Component(r.name) != nil {
			continue
		}
		if c := r.factory(e); c != nil {
			e.comps.set(r.name, c)
		}
	}

	for _, nc := range slices.Clone(d.comps) {
		if h, ok := nc.c.(ElementAddedHandler); ok {
			d.visit(documentSubsystem(nc.name), h, e)
		}
	}
	for _, v := range slices.Clone(d.views) {
		for _, nc := range slices.Clone(v.comps) {
			if h, ok := nc.c.(ElementAddedHandler); ok {
				d.visit(viewSubsystem(v.name, nc.name), h, e)
			}
		}
	}
}

// notifyElementRemoved runs the document components' removal hooks
// before the element's own components see OnRemoved, so that e.g. a
// physics body is unlinked from its world before the element's physics
// component lets go of it.
func (d *Document) notifyElementRemoved(e *Element) {
	for _, nc := range slices.Clone(d.comps) {
		delete(d.visited, visitKey{subsystem: documentSubsystem(nc.name), e: e})
		if h, ok := nc.c.(ElementRemovedHandler); ok {
			h.OnElementRemoved(d, e)
		}
	}
	for _, v := range slices.Clone(d.views) {
		for _, nc := range slices.Clone(v.comps) {
			delete(d.visited, visitKey{subsystem: viewSubsystem(v.name, nc.name), e: e})
			if h, ok := nc.c.(ElementRemovedHandler); ok {
				h.OnElementRemoved(d, e)
			}
		}
	}
}

///////////////////////////////////////////////////////////////////////////
// Update

// BeginRun and EndRun bracket a run of the engine's main loop.
func (d *Document) BeginRun() {
	for _, c := range d.runHandlers() {
		c.OnBeginRun(d)
	}
}

func (d *Document) EndRun() {
	for _, c := range d.runHandlers() {
		c.OnEndRun(d)
	}
}

func (d *Document) runHandlers() []RunHandler {
	var rh []RunHandler
	for _, nc := range d.comps {
		if h, ok := nc.c.(RunHandler); ok {
			rh = append(rh, h)
		}
	}
	for _, v := range d.views {
		for _, nc := range v.comps {
			if h, ok := nc.c.(RunHandler); ok {
				rh = append(rh, h)
			}
		}
	}
	return rh
}

// Update runs one tick: document components in attachment order, then
// each view's components, then the components of every element in the
// tree.
func (d *Document) Update() {
	for _, nc := range slices.Clone(d.comps) {
		if u, ok := nc.c.(DocumentUpdater); ok {
			u.OnDocumentUpdate(d)
		}
	}
	for _, v := range slices.Clone(d.views) {
		for _, nc := range slices.Clone(v.comps) {
			if u, ok := nc.c.(DocumentUpdater); ok {
				u.OnDocumentUpdate(d)
			}
		}
	}
	for _, e := range d.Elements() {
		for _, nc := range slices.Clone(e.comps) {
			if u, ok := nc.c.(ElementUpdater); ok {
				u.OnUpdate(e)
			}
		}
	}
}

// Render asks each view to draw itself, stopping at the first error.
func (d *Document) Render() error {
	for _, v := range d.views {
		if err := v.Render(); err != nil {
			return fmt.Errorf("view %q: %w", v.name, err)
		}
	}
	return nil
}

// Close removes the tree from the document and then closes the views
// and the document components.
func (d *Document) Close() {
	if d.root != nil {
		root := d.root
		d.root = nil
		root.notifyRemoved(d)
	}
	for len(d.views) > 0 {
		d.DestroyView(d.views[0].name)
	}
	for _, nc := range slices.Clone(d.comps) {
		d.Detach(nc.name)
	}
}

///////////////////////////////////////////////////////////////////////////
// Views

// CreateView adds a view with the given name. Views are rendered in
// creation order.
func (d *Document) CreateView(name string) *View {
	if v := d.View(name); v != nil {
		d.lg.Warnf("%s: view already exists", name)
		return v
	}
	v := &View{name: name, doc: d}
	d.views = append(d.views, v)
	return v
}

func (d *Document) View(name string) *View {
	if i := slices.IndexFunc(d.views, func(v *View) bool { return v.name == name }); i != -1 {
		return d.views[i]
	}
	return nil
}

func (d *Document) Views() []*View { return slices.Clone(d.views) }

func (d *Document) DestroyView(name string) {
	i := slices.IndexFunc(d.views, func(v *View) bool { return v.name == name })
	if i == -1 {
		return
	}
	v := d.views[i]
	d.views = slices.Delete(d.views, i, i+1)
	for _, nc := range slices.Clone(v.comps) {
		v.Detach(nc.name)
	}
}

// SendEvent delivers ev to every view and reports whether any component
// handled it.
func (d *Document) SendEvent(ev Event) bool {
	handled := false
	for _, v := range slices.Clone(d.views) {
		if v.SendEvent(ev) {
			handled = true
		}
	}
	return handled
}
