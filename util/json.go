// util/json.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

///////////////////////////////////////////////////////////////////////////
// JSON

// UnmarshalJSON reads all of r and unmarshals it into out; see
// UnmarshalJSONBytes.
func UnmarshalJSON[T any](r io.Reader, out *T) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return UnmarshalJSONBytes(b, out)
}

// UnmarshalJSONBytes unmarshals the bytes into the given type, reporting
// the line and character of the problem if the JSON is malformed.
func UnmarshalJSONBytes[T any](b []byte, out *T) error {
	err := json.Unmarshal(b, out)
	if err == nil {
		return nil
	}

	switch jerr := err.(type) {
	case *json.SyntaxError:
		line, char := jsonOffsetPosition(b, jerr.Offset)
		return fmt.Errorf("Error at line %d, character %d: %w", line, char, jerr)

	case *json.UnmarshalTypeError:
		line, char := jsonOffsetPosition(b, jerr.Offset)
		return fmt.Errorf("Error at line %d, character %d: %s value for %s.%s invalid for type %s",
			line, char, jerr.Value, jerr.Struct, jerr.Field, jerr.Type.String())

	default:
		return err
	}
}

func jsonOffsetPosition(b []byte, offset int64) (line, char int) {
	line, char = 1, 1
	for i := 0; i < int(offset) && i < len(b); i++ {
		if b[i] == '\n' {
			line++
			char = 1
		} else {
			char++
		}
	}
	return
}

// DuplicateJSONKey represents a key that appears more than once in the
// same JSON object.
type DuplicateJSONKey struct {
	Path string // dotted path of the enclosing object, e.g. "parameters.unifColor"
	Key  string
}

// FindDuplicateJSONKeys walks the token stream of data and returns every
// object key that is repeated within its object. Malformed JSON stops the
// walk; the caller is expected to report syntax errors separately.
func FindDuplicateJSONKeys(data []byte) []DuplicateJSONKey {
	dec := json.NewDecoder(bytes.NewReader(data))
	var dups []DuplicateJSONKey

	var walk func(path []string) error
	walk = func(path []string) error {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			return nil
		}

		switch delim {
		case '{':
			seen := make(map[string]bool)
			for dec.More() {
				tok, err := dec.Token()
				if err != nil {
					return err
				}
				key, _ := tok.(string)
				if seen[key] {
					dups = append(dups, DuplicateJSONKey{Path: strings.Join(path, "."), Key: key})
				}
				seen[key] = true
				if err := walk(append(path, key)); err != nil {
					return err
				}
			}
		case '[':
			for dec.More() {
				if err := walk(path); err != nil {
					return err
				}
			}
		}
		// Consume the closing delimiter.
		_, err = dec.Token()
		return err
	}
	walk(nil)

	return dups
}

// CheckJSON reports syntax errors and duplicate keys in the provided
// JSON to e.
func CheckJSON(contents []byte, e *ErrorLogger) {
	var items any
	if err := UnmarshalJSONBytes(contents, &items); err != nil {
		e.Error(err)
		return
	}
	for _, d := range FindDuplicateJSONKeys(contents) {
		if d.Path == "" {
			e.ErrorString("key %q repeated", d.Key)
		} else {
			e.ErrorString("key %q repeated in %q", d.Key, d.Path)
		}
	}
}
