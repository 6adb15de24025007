// dom/element.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package dom

import (
	"fmt"
	"slices"

	"github.com/brunoga/deep"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/iancoleman/orderedmap"
)

// Element is a node in the document tree. It has a tag, ordered
// attributes, a value, and named components. Elements are created
// detached; they join a document when appended under an element that is
// already in its tree.
type Element struct {
	tag       string
	attrs     *orderedmap.OrderedMap
	value     any
	parent    *Element
	children  []*Element
	doc       *Document
	comps     components
	callbacks map[string]Callback
}

// Callback is a function bound to an element by name, e.g. by a script
// attribute, and invoked with Call.
type Callback func(e *Element, args ...any) any

// NewElement returns a detached element with the given tag.
func NewElement(tag string) *Element {
	return &Element{tag: tag, attrs: orderedmap.New()}
}

func (e *Element) Tag() string { return e.tag }

// Document returns the document whose tree holds e, or nil.
func (e *Element) Document() *Document { return e.doc }

func (e *Element) Parent() *Element { return e.parent }

func (e *Element) Children() []*Element { return slices.Clone(e.children) }

func (e *Element) ChildCount() int { return len(e.children) }

func (e *Element) Child(i int) *Element { return e.children[i] }

func (e *Element) String() string {
	if id := e.AttrString("id", ""); id != "" {
		return fmt.Sprintf("<%s id=%q>", e.tag, id)
	}
	return "<" + e.tag + ">"
}

///////////////////////////////////////////////////////////////////////////
// Attributes

// Attr returns the named attribute or nil if it is unset.
func (e *Element) Attr(name string) any {
	v, _ := e.attrs.Get(name)
	return v
}

func (e *Element) HasAttr(name string) bool {
	_, ok := e.attrs.Get(name)
	return ok
}

// AttrNames returns the attribute names in the order they were first set.
func (e *Element) AttrNames() []string {
	return e.attrs.Keys()
}

// SetAttr stores the attribute and then calls the OnAttributeChange
// method of each component that has one, in attachment order.
func (e *Element) SetAttr(name string, value any) {
	e.attrs.Set(name, value)
	for _, nc := range slices.Clone(e.comps) {
		if h, ok := nc.c.(AttributeChangeHandler); ok {
			h.OnAttributeChange(e, name, value)
		}
	}
}

// RemoveAttr deletes the attribute; handlers see a nil value.
func (e *Element) RemoveAttr(name string) {
	if !e.HasAttr(name) {
		return
	}
	e.attrs.Delete(name)
	for _, nc := range slices.Clone(e.comps) {
		if h, ok := nc.c.(AttributeChangeHandler); ok {
			h.OnAttributeChange(e, name, nil)
		}
	}
}

func (e *Element) AttrString(name string, def string) string {
	if s, ok := String(e.Attr(name)); ok {
		return s
	}
	return def
}

func (e *Element) AttrFloat(name string, def float32) float32 {
	if f, ok := Float(e.Attr(name)); ok {
		return float32(f)
	}
	return def
}

func (e *Element) AttrBool(name string, def bool) bool {
	if b, ok := Bool(e.Attr(name)); ok {
		return b
	}
	return def
}

func (e *Element) AttrVec3(name string, def mgl32.Vec3) mgl32.Vec3 {
	if v, ok := Vec3(e.Attr(name)); ok {
		return v
	}
	return def
}

func (e *Element) AttrVec4(name string, def mgl32.Vec4) mgl32.Vec4 {
	if v, ok := Vec4(e.Attr(name)); ok {
		return v
	}
	return def
}

///////////////////////////////////////////////////////////////////////////
// Value

func (e *Element) Value() any { return e.value }

func (e *Element) SetValue(v any) {
	e.value = v
	for _, nc := range slices.Clone(e.comps) {
		if h, ok := nc.c.(ValueChangeHandler); ok {
			h.OnValueChange(e, v)
		}
	}
}

///////////////////////////////////////////////////////////////////////////
// Components

// Component returns the component attached under name, or nil.
func (e *Element) Component(name string) Component {
	return e.comps.get(name)
}

func (e *Element) ComponentNames() []string {
	return e.comps.names()
}

// Attach attaches c under name. An element holds at most one component
// per name; a previous component with the same name is detached first and
// the new one takes its place in the attachment order.
func (e *Element) Attach(name string, c Component) {
	if old := e.comps.set(name, c); old != nil {
		e.release(old)
	}
	if e.doc != nil {
		if h, ok := c.(AddedHandler); ok {
			h.OnAdded(e)
		}
	}
}

// Detach removes and returns the named component after letting it
// release its resources.
func (e *Element) Detach(name string) Component {
	c := e.comps.remove(name)
	if c != nil {
		e.release(c)
	}
	return c
}

func (e *Element) release(c Component) {
	if e.doc != nil {
		if h, ok := c.(RemovedHandler); ok {
			h.OnRemoved(e)
		}
	}
	if cl, ok := c.(Closer); ok {
		cl.Close()
	}
}

///////////////////////////////////////////////////////////////////////////
// Callbacks

func (e *Element) AddCallback(name string, cb Callback) {
	if e.callbacks == nil {
		e.callbacks = make(map[string]Callback)
	}
	e.callbacks[name] = cb
}

func (e *Element) RemoveCallback(name string) {
	delete(e.callbacks, name)
}

// HasCallback reports whether the element has its own callback with the
// given name; document functions are not considered.
func (e *Element) HasCallback(name string) bool {
	_, ok := e.callbacks[name]
	return ok
}

// Call invokes the element's callback with the given name, falling back
// to a function registered with the document. It returns false if
// neither exists.
func (e *Element) Call(name string, args ...any) (any, bool) {
	if cb, ok := e.callbacks[name]; ok {
		return cb(e, args...), true
	}
	if e.doc != nil {
		if fn, ok := e.doc.functions[name]; ok {
			return fn(e, args...), true
		}
	}
	return nil, false
}

///////////////////////////////////////////////////////////////////////////
// Tree

// Append adds child as the last child of e. The child must not already
// have a parent.
func (e *Element) Append(child *Element) {
	e.insert(len(e.children), child)
}

func (e *Element) Prepend(child *Element) {
	e.insert(0, child)
}

func (e *Element) insert(at int, child *Element) {
	if child.parent != nil {
		panic(fmt.Sprintf("dom: %s already has parent %s", child, child.parent))
	}
	if child.doc != nil {
		panic(fmt.Sprintf("dom: %s is the root of a document", child))
	}
	for p := e; p != nil; p = p.parent {
		if p == child {
			panic(fmt.Sprintf("dom: appending %s would create a cycle", child))
		}
	}

	child.parent = e
	e.children = slices.Insert(e.children, at, child)
	if e.doc != nil {
		child.notifyAdded(e.doc)
	}
}

// RemoveChild detaches child from e and returns false if child was not
// one of its children.
func (e *Element) RemoveChild(child *Element) bool {
	i := slices.Index(e.children, child)
	if i == -1 {
		return false
	}
	e.children = slices.Delete(e.children, i, i+1)
	child.parent = nil
	if e.doc != nil {
		child.notifyRemoved(e.doc)
	}
	return true
}

// RemoveAll detaches all of e's children.
func (e *Element) RemoveAll() {
	for len(e.children) > 0 {
		e.RemoveChild(e.children[len(e.children)-1])
	}
}

// Remove detaches e from its parent, if it has one.
func (e *Element) Remove() {
	if e.parent != nil {
		e.parent.RemoveChild(e)
	}
}

// Clone returns a detached deep copy of e and its descendants. The copy
// carries attributes and values but no components or callbacks; those are
// reattached when the copy is added to a document.
func (e *Element) Clone() *Element {
	c := NewElement(e.tag)
	for _, k := range e.attrs.Keys() {
		v, _ := e.attrs.Get(k)
		c.attrs.Set(k, copyValue(v))
	}
	c.value = copyValue(e.value)
	for _, ch := range e.children {
		cc := ch.Clone()
		cc.parent = c
		c.children = append(c.children, cc)
	}
	return c
}

// copyValue deep-copies plain data; values that can't be copied, such as
// handles holding functions or channels, are shared.
func copyValue(v any) any {
	if v == nil {
		return nil
	}
	if c, err := deep.Copy(v); err == nil {
		return c
	}
	return v
}

// walk calls fn for e and its descendants in depth-first order, stopping
// if fn returns false.
func (e *Element) walk(fn func(*Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, ch := range slices.Clone(e.children) {
		if !ch.walk(fn) {
			return false
		}
	}
	return true
}

func (e *Element) notifyAdded(d *Document) {
	if e.doc != nil {
		panic(fmt.Sprintf("dom: %s added to a document twice", e))
	}
	// Components that document components attach from OnElementAdded get
	// OnAdded below with the rest.
	d.notifyElementAdded(e)
	e.doc = d

	for _, nc := range slices.Clone(e.comps) {
		if h, ok := nc.c.(AddedHandler); ok {
			h.OnAdded(e)
		}
	}
	for _, ch := range slices.Clone(e.children) {
		ch.notifyAdded(d)
	}
}

func (e *Element) notifyRemoved(d *Document) {
	d.notifyElementRemoved(e)

	for _, nc := range slices.Clone(e.comps) {
		if h, ok := nc.c.(RemovedHandler); ok {
			h.OnRemoved(e)
		}
	}
	e.doc = nil
	for _, ch := range slices.Clone(e.children) {
		ch.notifyRemoved(d)
	}
}
