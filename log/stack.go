// log/stack.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package log

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const modulePath = "github.com/lxengine/lxengine/"

// StackFrame is one entry of the callstack attribute of a log record.
type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// Callstack returns the calling goroutine's stack, innermost first,
// without the Logger's own frames. It ends at main.main or at the
// testing package. The storage of fr is reused.
func Callstack(fr []StackFrame) []StackFrame {
	pcs := make([]uintptr, 24)
	pcs = pcs[:runtime.Callers(2, pcs)]
	frames := runtime.CallersFrames(pcs)

	fr = fr[:0]
	for {
		f, more := frames.Next()
		if strings.HasPrefix(f.Function, "testing.") || strings.HasPrefix(f.Function, "runtime.") {
			return fr
		}
		if !isLoggerFrame(f.Function) {
			fr = append(fr, StackFrame{
				File:     filepath.Base(f.File),
				Line:     f.Line,
				Function: shortFunction(f.Function),
			})
		}
		if !more || f.Function == "main.main" {
			return fr
		}
	}
}

func isLoggerFrame(fn string) bool {
	rest, ok := strings.CutPrefix(fn, modulePath+"log.")
	return ok && (strings.HasPrefix(rest, "(*Logger).") || rest == "Callstack")
}

func shortFunction(fn string) string {
	if rest, ok := strings.CutPrefix(fn, modulePath); ok {
		return rest
	}
	return strings.TrimPrefix(fn, "main.")
}

func (f StackFrame) String() string {
	return f.File + ":" + strconv.Itoa(f.Line) + ":" + f.Function
}
