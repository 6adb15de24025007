// util/error.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lxengine/lxengine/log"
)

// ErrorLogger accumulates errors found while validating scene files and
// material descriptors. It tracks the hierarchy of what is being
// validated so that each message carries its context, and it allows
// validation to continue after the first problem.
type ErrorLogger struct {
	hierarchy []string
	errors    []string
}

func (e *ErrorLogger) Push(s string) {
	e.hierarchy = append(e.hierarchy, s)
}

func (e *ErrorLogger) Pop() {
	e.hierarchy = e.hierarchy[:len(e.hierarchy)-1]
}

func (e *ErrorLogger) prefix() string {
	if len(e.hierarchy) == 0 {
		return ""
	}
	return strings.Join(e.hierarchy, " / ") + ": "
}

func (e *ErrorLogger) ErrorString(s string, args ...any) {
	e.errors = append(e.errors, e.prefix()+fmt.Sprintf(s, args...))
}

func (e *ErrorLogger) Error(err error) {
	e.errors = append(e.errors, e.prefix()+err.Error())
}

func (e *ErrorLogger) HaveErrors() bool {
	return e != nil && len(e.errors) > 0
}

// PrintErrors logs all of the accumulated errors and also writes them to
// w, which is typically os.Stderr.
func (e *ErrorLogger) PrintErrors(w io.Writer, lg *log.Logger) {
	// Two loops so they aren't interleaved with logging to stdout
	for _, err := range e.errors {
		lg.Errorf("%+v", err)
	}
	for _, err := range e.errors {
		fmt.Fprintln(w, err)
	}
}

// Err returns nil if there are no errors and otherwise returns an error
// that joins all of them.
func (e *ErrorLogger) Err() error {
	if !e.HaveErrors() {
		return nil
	}
	errs := make([]error, len(e.errors))
	for i, s := range e.errors {
		errs[i] = errors.New(s)
	}
	return errors.Join(errs...)
}

func (e *ErrorLogger) String() string {
	return strings.Join(e.errors, "\n")
}

func (e *ErrorLogger) CurrentDepth() int {
	if e == nil {
		return 0
	}
	return len(e.hierarchy)
}
