// dom/load.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package dom

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/lxengine/lxengine/util"
)

// externalValueTags are the elements whose src attribute names a JSON
// file holding the element's value.
var externalValueTags = map[string]bool{"Mesh": true, "Camera": true}

// LoadFile reads the named scene file from fsys; see Load.
func LoadFile(fsys fs.FS, name string, e *util.ErrorLogger) (*Element, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	e.Push(name)
	defer e.Pop()
	return Load(f, fsys, path.Dir(name), e)
}

// Load parses an XML scene into a detached element tree and returns its
// root. Attribute text is converted with ParseValue. An element's value
// comes from, in order of preference, the JSON file named by its src
// attribute (for Mesh and Camera elements), its inner text parsed as
// JSON (or kept as a string if it isn't JSON), or the text of a comment
// inside it.
//
// Malformed XML is returned as an error. Problems with individual
// elements are reported to e and loading continues.
func Load(r io.Reader, fsys fs.FS, dir string, e *util.ErrorLogger) (*Element, error) {
	type frame struct {
		el            *Element
		text, comment strings.Builder
	}

	dec := xml.NewDecoder(r)
	var stack []*frame
	var root *Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := NewElement(t.Name.Local)
			for _, a := range t.Attr {
				el.SetAttr(a.Name.Local, ParseValue(a.Value))
			}
			if n := len(stack); n > 0 {
				stack[n-1].el.Append(el)
			} else if root != nil {
				line, _ := dec.InputPos()
				return nil, fmt.Errorf("line %d: multiple root elements", line)
			} else {
				root = el
			}
			stack = append(stack, &frame{el: el})
			e.Push(el.String())

		case xml.CharData:
			if n := len(stack); n > 0 {
				stack[n-1].text.Write(t)
			}

		case xml.Comment:
			if n := len(stack); n > 0 {
				stack[n-1].comment.Write(t)
			}

		case xml.EndElement:
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			finishElement(f.el, strings.TrimSpace(f.text.String()), strings.TrimSpace(f.comment.String()),
				fsys, dir, e)
			e.Pop()
		}
	}

	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

func finishElement(el *Element, text, comment string, fsys fs.FS, dir string, e *util.ErrorLogger) {
	if text != "" && comment != "" {
		e.ErrorString("element has both inner text and a comment; its value must be one or the other")
	}

	if src, ok := el.Attr("src").(string); ok && externalValueTags[el.tag] {
		if text != "" {
			e.ErrorString("%q: src attribute overrides the inline value", src)
		}
		if fsys == nil {
			e.ErrorString("%q: no file system for external values", src)
			return
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, src))
		if err != nil {
			e.Error(err)
			return
		}
		var v any
		if err := util.UnmarshalJSONBytes(b, &v); err != nil {
			e.Error(fmt.Errorf("%s: %w", src, err))
			return
		}
		el.value = v
		return
	}

	switch {
	case text != "":
		var v any
		if err := util.UnmarshalJSONBytes([]byte(text), &v); err == nil {
			el.value = v
		} else {
			el.value = text
		}
	case comment != "":
		el.value = comment
	}
}
