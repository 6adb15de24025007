// log/log.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*slog.Logger
	LogFile string
	LogDir  string
	Start   time.Time
}

// ParseLevel maps the level names accepted on the command line and in
// the config file to slog levels. Unknown names map to info.
func ParseLevel(level string) (slog.Level, bool) {
	switch level {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// New returns a Logger that writes JSON records to a rotating log file in
// dir; if dir is empty, the user config directory is used.
func New(level string, dir string) *Logger {
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unable to find user config dir: %v", err)
			dir = "."
		}
		dir = filepath.Join(dir, "LxEngine")
	}

	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "lxengine.slog"),
		MaxSize:    32, // MB
		MaxBackups: 1,
	}
	if level == "debug" {
		w.MaxSize = 512
	}

	l := NewWithWriter(w, level)
	l.LogFile = w.Filename
	l.LogDir = dir

	// Start out the logs with some basic information about the system
	// and the build being used.
	l.Info("Hello logging", slog.Time("start", time.Now()))
	l.Info("System information",
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("GOOS", runtime.GOOS),
		slog.Int("NumCPUs", runtime.NumCPU()),
		slog.Bool("race", RaceEnabled))

	var deps, settings []any
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			deps = append(deps, slog.String(dep.Path, dep.Version))
		}
		for _, setting := range bi.Settings {
			settings = append(settings, slog.String(setting.Key, setting.Value))
		}

		l.Info("Build",
			slog.String("Go version", bi.GoVersion),
			slog.String("Path", bi.Path),
			slog.Group("Dependencies", deps...),
			slog.Group("Settings", settings...))
	}

	return l
}

// NewWithWriter returns a Logger writing JSON records to w. It is mostly
// useful for tests, which log to a bytes.Buffer or io.Discard.
func NewWithWriter(w io.Writer, level string) *Logger {
	lvl, ok := ParseLevel(level)
	if !ok {
		fmt.Fprintf(os.Stderr, "%s: invalid log level", level)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return &Logger{
		Logger: slog.New(h),
		Start:  time.Now(),
	}
}

// The logging methods add the caller's stack to each record as the
// callstack attribute. They allow a nil *Logger, in which case debug and
// info messages are discarded, though warnings and errors still go
// through to the default slog logger.

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }

func (l *Logger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args) }

func (l *Logger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args) }

func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

// Debugf is a convenience wrapper that logs just a message and allows
// printf-style formatting of the provided args.
func (l *Logger) Debugf(msg string, args ...any) { l.logf(slog.LevelDebug, msg, args) }

func (l *Logger) Infof(msg string, args ...any) { l.logf(slog.LevelInfo, msg, args) }

func (l *Logger) Warnf(msg string, args ...any) { l.logf(slog.LevelWarn, msg, args) }

func (l *Logger) Errorf(msg string, args ...any) { l.logf(slog.LevelError, msg, args) }

// handler returns the slog.Logger that records at level go to, or nil if
// they are dropped.
func (l *Logger) handler(level slog.Level) *slog.Logger {
	var sl *slog.Logger
	switch {
	case l != nil:
		sl = l.Logger
	case level >= slog.LevelWarn:
		sl = slog.Default()
	default:
		return nil
	}
	if !sl.Enabled(context.Background(), level) {
		return nil
	}
	return sl
}

func (l *Logger) log(level slog.Level, msg string, args []any) {
	if sl := l.handler(level); sl != nil {
		args = append([]any{slog.Any("callstack", Callstack(nil))}, args...)
		sl.Log(context.Background(), level, msg, args...)
	}
}

func (l *Logger) logf(level slog.Level, msg string, args []any) {
	if sl := l.handler(level); sl != nil {
		sl.Log(context.Background(), level, fmt.Sprintf(msg, args...), slog.Any("callstack", Callstack(nil)))
	}
}

// With returns a Logger that includes the given attributes in each
// record. It is safe to call with a nil receiver, in which case it
// returns nil.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		Logger:  l.Logger.With(args...),
		LogFile: l.LogFile,
		LogDir:  l.LogDir,
		Start:   l.Start,
	}
}
