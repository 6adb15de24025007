// script/doc.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package script

import (
	"context"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/log"
)

// ComponentName is the name that script components are attached under.
const ComponentName = "script"

// Doc is the document component that evaluates <Script> elements and
// binds the on_* attributes of other elements to script functions:
//
//	on_update="spin"        spin(e *dom.Element) runs on every update
//	on_collision="bounce"   bounce(e, other *dom.Element) runs on contact
//
// Any other on_name attribute binds the element callback onName, which is
// called with the element followed by the callback's arguments.
type Doc struct {
	ctx  context.Context
	eng  *Engine
	fsys fs.FS
	lg   *log.Logger
}

// NewDoc returns a Doc that evaluates scripts with eng. Script src
// attributes are read from fsys, which may be nil if no scripts refer to
// files.
func NewDoc(ctx context.Context, eng *Engine, fsys fs.FS, lg *log.Logger) *Doc {
	return &Doc{ctx: ctx, eng: eng, fsys: fsys, lg: lg}
}

func (sd *Doc) Engine() *Engine { return sd.eng }

// OnAttached registers the document function "script", which calls the
// script function named by its first argument with the element and the
// remaining arguments.
func (sd *Doc) OnAttached(d *dom.Document) {
	d.AddFunction("script", func(e *dom.Element, args ...any) any {
		if len(args) == 0 {
			return nil
		}
		name, ok := args[0].(string)
		if !ok {
			return nil
		}
		out, err := sd.eng.Call(name, append([]any{e}, args[1:]...)...)
		if err != nil {
			sd.lg.Warnf("%s: %v", e, err)
		}
		return out
	})
}

func (sd *Doc) OnElementAdded(d *dom.Document, e *dom.Element) {
	if e.Component(ComponentName) != nil {
		return
	}
	if e.Tag() == "Script" {
		e.Attach(ComponentName, &Source{doc: sd})
		return
	}
	for _, name := range e.AttrNames() {
		if strings.HasPrefix(name, "on_") {
			e.Attach(ComponentName, &Handlers{doc: sd})
			return
		}
	}
}

func (sd *Doc) OnElementRemoved(d *dom.Document, e *dom.Element) {
	e.Detach(ComponentName)
}

// Source is the component of a <Script> element. The script is the
// element's text or the file named by its src attribute, and it is
// evaluated when the element joins the document and whenever its value
// changes.
type Source struct {
	doc *Doc
}

func (s *Source) OnAdded(e *dom.Element) {
	s.run(e)
}

func (s *Source) OnValueChange(e *dom.Element, v any) {
	if e.Document() != nil {
		s.run(e)
	}
}

func (s *Source) run(e *dom.Element) {
	if lang := e.AttrString("language", "go"); lang != "go" {
		s.doc.lg.Warnf("%s: unsupported script language %q", e, lang)
		return
	}

	name := e.String()
	var src string
	if file := e.AttrString("src", ""); file != "" {
		if s.doc.fsys == nil {
			s.doc.lg.Errorf("%s: no file system for script %q", e, file)
			return
		}
		b, err := fs.ReadFile(s.doc.fsys, path.Clean(file))
		if err != nil {
			s.doc.lg.Errorf("%s: %v", e, err)
			return
		}
		name, src = file, string(b)
	} else if str, ok := dom.String(e.Value()); ok {
		src = str
	}
	if strings.TrimSpace(src) == "" {
		return
	}

	if err := s.doc.eng.Eval(s.doc.ctx, name, src); err != nil {
		s.doc.lg.Error("script", slog.String("element", e.String()), slog.Any("error", err))
	}
}

// Handlers binds an element's on_* attributes to script functions.
// Functions are looked up when first called so that scripts may be
// evaluated after the elements that use them.
type Handlers struct {
	doc *Doc

	updateName string
	update     func(*dom.Element)
	bound      []string
	failed     map[string]bool
}

func (h *Handlers) OnAdded(e *dom.Element) {
	h.bind(e)
}

func (h *Handlers) OnRemoved(e *dom.Element) {
	h.unbind(e)
}

func (h *Handlers) OnAttributeChange(e *dom.Element, name string, value any) {
	if strings.HasPrefix(name, "on_") {
		h.bind(e)
	}
}

func (h *Handlers) OnUpdate(e *dom.Element) {
	if h.updateName == "" {
		return
	}
	if h.update == nil {
		if h.failed[h.updateName] {
			return
		}
		fn, err := Acquire[func(*dom.Element)](h.doc.eng, h.updateName)
		if err != nil {
			h.fail(e, h.updateName, err)
			return
		}
		h.update = fn
	}
	h.update(e)
}

func (h *Handlers) bind(e *dom.Element) {
	h.unbind(e)
	h.failed = nil

	for _, attr := range e.AttrNames() {
		event, ok := strings.CutPrefix(attr, "on_")
		if !ok || event == "" {
			continue
		}
		fn := e.AttrString(attr, "")
		if fn == "" {
			continue
		}
		if event == "update" {
			h.updateName = fn
			continue
		}

		cb := CallbackName(event)
		h.bound = append(h.bound, cb)
		e.AddCallback(cb, func(e *dom.Element, args ...any) any {
			if h.failed[fn] {
				return nil
			}
			out, err := h.doc.eng.Call(fn, append([]any{e}, args...)...)
			if err != nil {
				h.fail(e, fn, err)
			}
			return out
		})
	}
}

func (h *Handlers) unbind(e *dom.Element) {
	for _, cb := range h.bound {
		e.RemoveCallback(cb)
	}
	h.bound = nil
	h.updateName = ""
	h.update = nil
}

// fail logs the first error from a script function; later calls are
// skipped until the element's handlers are rebound.
func (h *Handlers) fail(e *dom.Element, fn string, err error) {
	if h.failed == nil {
		h.failed = make(map[string]bool)
	}
	h.failed[fn] = true
	h.doc.lg.Warnf("%s: %v", e, err)
}

// CallbackName converts an attribute event name to the element callback
// it binds: "collision" becomes "onCollision" and "key_down" becomes
// "onKeyDown".
func CallbackName(event string) string {
	var sb strings.Builder
	sb.WriteString("on")
	for part := range strings.SplitSeq(event, "_") {
		if part == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(part[:1]))
		sb.WriteString(part[1:])
	}
	return sb.String()
}
