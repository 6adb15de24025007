// script/engine.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package script runs the Go code in a document's <Script> elements with
// the yaegi interpreter and binds the functions it defines to element
// events.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/log"

	"github.com/cogentcore/yaegi/interp"
	"github.com/cogentcore/yaegi/stdlib"
)

var ErrNotFunction = errors.New("not a function")

// Symbols are the engine packages that scripts may import.
var Symbols = interp.Exports{
	"github.com/lxengine/lxengine/dom/dom": {
		"Element":    reflect.ValueOf((*dom.Element)(nil)),
		"Event":      reflect.ValueOf((*dom.Event)(nil)),
		"NewElement": reflect.ValueOf(dom.NewElement),
		"ParseValue": reflect.ValueOf(dom.ParseValue),
		"Float":      reflect.ValueOf(dom.Float),
		"Floats":     reflect.ValueOf(dom.Floats),
		"String":     reflect.ValueOf(dom.String),
		"Bool":       reflect.ValueOf(dom.Bool),
	},
}

// Engine is a Go interpreter shared by all of a document's scripts.
// Interpreted functions may be called from any goroutine, but only one
// runs at a time.
type Engine struct {
	mu     sync.Mutex
	interp *interp.Interpreter
	lg     *log.Logger
}

// New returns an Engine whose scripts can import the standard library and
// the engine's dom package. Script output goes to stdout.
func New(stdout io.Writer, lg *log.Logger) (*Engine, error) {
	if stdout == nil {
		stdout = io.Discard
	}
	in := interp.New(interp.Options{Stdout: stdout, Stderr: stdout})
	if err := in.Use(stdlib.Symbols); err != nil {
		return nil, err
	}
	if err := in.Use(Symbols); err != nil {
		return nil, err
	}
	return &Engine{interp: in, lg: lg}, nil
}

// Eval runs src, which may declare functions, types, and variables for
// later use. ctx cancels long-running scripts.
func (e *Engine) Eval(ctx context.Context, name, src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.interp.EvalWithContext(ctx, src); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	e.lg.Debug("evaluated script", slog.String("name", name), slog.Int("length", len(src)))
	return nil
}

func (e *Engine) lookup(name string) (reflect.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.interp.Eval(name)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%s: %w", name, err)
	}
	if v.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("%s: %w", name, ErrNotFunction)
	}
	return v, nil
}

// Acquire returns the script function name as a Go function of type F.
// The function's signature must be convertible to F. Calls through the
// returned function are serialized with other script calls, and a panic
// in the script is logged and turned into a zero result.
func Acquire[F any](e *Engine, name string) (F, error) {
	var zero F
	ft := reflect.TypeFor[F]()
	if ft.Kind() != reflect.Func {
		return zero, fmt.Errorf("%s: %w", ft, ErrNotFunction)
	}

	v, err := e.lookup(name)
	if err != nil {
		return zero, err
	}
	if !v.Type().ConvertibleTo(ft) {
		return zero, fmt.Errorf("%s: script function has type %s, want %s", name, v.Type(), ft)
	}
	v = v.Convert(ft)

	guarded := reflect.MakeFunc(ft, func(args []reflect.Value) (results []reflect.Value) {
		e.mu.Lock()
		defer e.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				e.lg.Error("script panic", slog.String("function", name), slog.Any("panic", r))
				results = make([]reflect.Value, ft.NumOut())
				for i := range results {
					results[i] = reflect.Zero(ft.Out(i))
				}
			}
		}()
		if ft.IsVariadic() {
			return v.CallSlice(args)
		}
		return v.Call(args)
	})
	return guarded.Interface().(F), nil
}

// Call calls the script function name with the given arguments and
// returns its first result, if it has one.
func (e *Engine) Call(name string, args ...any) (any, error) {
	v, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	t := v.Type()
	if !t.IsVariadic() && len(args) != t.NumIn() {
		return nil, fmt.Errorf("%s: called with %d arguments, want %d", name, len(args), t.NumIn())
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		want := t.In(min(i, t.NumIn()-1))
		if t.IsVariadic() && i >= t.NumIn()-1 {
			want = want.Elem()
		}
		if a == nil {
			in[i] = reflect.Zero(want)
			continue
		}
		av := reflect.ValueOf(a)
		if !av.Type().AssignableTo(want) {
			if !av.Type().ConvertibleTo(want) {
				return nil, fmt.Errorf("%s: argument %d: %s is not assignable to %s", name, i, av.Type(), want)
			}
			av = av.Convert(want)
		}
		in[i] = av
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	var out []reflect.Value
	if err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: panic: %v", name, r)
			}
		}()
		out = v.Call(in)
		return nil
	}(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}
