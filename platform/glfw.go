// platform/glfw.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package platform provides the application window, its OpenGL context,
// and input events, using GLFW.
package platform

import (
	"fmt"
	"log/slog"
	"runtime"
	"strconv"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/log"

	"github.com/go-gl/glfw/v3.3/glfw"
)

type Config struct {
	WindowSize     [2]int
	WindowPosition [2]int
	Title          string

	EnableMSAA bool

	StartInFullScreen bool
	FullScreenMonitor int
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("window_size", c.WindowSize),
		slog.Any("window_position", c.WindowPosition),
		slog.Bool("msaa", c.EnableMSAA),
		slog.Bool("fullscreen", c.StartInFullScreen),
		slog.Int("monitor", c.FullScreenMonitor))
}

// Window is a GLFW window with a current OpenGL 3.3 core context. Its
// methods must be called from the main thread.
type Window struct {
	window *glfw.Window
	config *Config
	lg     *log.Logger

	events []dom.Event
}

// New opens a window of the configured size and makes its context
// current. The caller must have locked the main goroutine to its thread.
func New(config *Config, lg *log.Logger) (*Window, error) {
	lg.Info("Starting GLFW initialization")
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize glfw: %w", err)
	}
	lg.Infof("GLFW: %s", glfw.GetVersionString())

	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	vm := glfw.GetPrimaryMonitor().GetVideoMode()
	if config.WindowSize[0] == 0 || config.WindowSize[1] == 0 {
		config.WindowSize = [2]int{vm.Width - 150, vm.Height - 150}
	}
	if config.WindowPosition[0] < 0 || config.WindowPosition[1] < 0 ||
		config.WindowPosition[0] > vm.Width || config.WindowPosition[1] > vm.Height {
		config.WindowPosition = [2]int{100, 100}
	}
	if config.Title == "" {
		config.Title = "lxengine"
	}

	// Start invisible so the window can be positioned first.
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.AutoIconify, glfw.False)
	if config.EnableMSAA {
		glfw.WindowHint(glfw.Samples, 4)
	}

	monitors := glfw.GetMonitors()
	if config.FullScreenMonitor >= len(monitors) {
		config.FullScreenMonitor = 0
	}
	var window *glfw.Window
	var err error
	if config.StartInFullScreen {
		m := monitors[config.FullScreenMonitor]
		vm := m.GetVideoMode()
		window, err = glfw.CreateWindow(vm.Width, vm.Height, config.Title, m, nil)
	} else {
		window, err = glfw.CreateWindow(config.WindowSize[0], config.WindowSize[1], config.Title, nil, nil)
	}
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	window.SetPos(config.WindowPosition[0], config.WindowPosition[1])
	window.Show()
	window.MakeContextCurrent()

	w := &Window{window: window, config: config, lg: lg}
	w.installCallbacks()
	w.EnableVSync(true)
	glfw.SetMonitorCallback(w.monitorCallback)

	lg.Info("Finished GLFW initialization", slog.Any("config", config))
	return w, nil
}

func (w *Window) EnableVSync(sync bool) {
	if sync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}
}

func (w *Window) SetTitle(title string) {
	w.window.SetTitle(title)
}

// ShouldStop reports whether the user asked to close the window.
func (w *Window) ShouldStop() bool {
	return w.window.ShouldClose()
}

func (w *Window) RequestStop() {
	w.window.SetShouldClose(true)
}

// ProcessEvents polls GLFW and returns the key and resize events that
// arrived since the previous call.
func (w *Window) ProcessEvents() []dom.Event {
	w.events = w.events[:0]
	glfw.PollEvents()
	return w.events
}

// FramebufferSize returns the size of the default framebuffer in pixels,
// which differs from the window size on high-DPI displays.
func (w *Window) FramebufferSize() (int, int) {
	return w.window.GetFramebufferSize()
}

func (w *Window) WindowSize() [2]int {
	x, y := w.window.GetSize()
	return [2]int{x, y}
}

func (w *Window) WindowPosition() [2]int {
	x, y := w.window.GetPos()
	return [2]int{x, y}
}

func (w *Window) SwapBuffers() {
	w.window.SwapBuffers()
}

func (w *Window) MonitorNames() []string {
	var names []string
	for i, m := range glfw.GetMonitors() {
		names = append(names, "("+strconv.Itoa(i)+") "+m.GetName())
	}
	return names
}

func (w *Window) IsFullScreen() bool {
	return w.window.GetMonitor() != nil
}

func (w *Window) EnableFullScreen(fullscreen bool) {
	monitors := glfw.GetMonitors()
	if w.config.FullScreenMonitor >= len(monitors) {
		w.config.FullScreenMonitor = 0
	}
	m := monitors[w.config.FullScreenMonitor]
	vm := m.GetVideoMode()
	if fullscreen {
		w.window.SetMonitor(m, 0, 0, vm.Width, vm.Height, vm.RefreshRate)
	} else {
		size := w.config.WindowSize
		if size[0] == 0 || size[1] == 0 {
			size = [2]int{vm.Width - 150, vm.Height - 150}
		}
		w.window.SetMonitor(nil, w.config.WindowPosition[0], w.config.WindowPosition[1],
			size[0], size[1], glfw.DontCare)
	}
}

func (w *Window) monitorCallback(monitor *glfw.Monitor, event glfw.PeripheralEvent) {
	if event == glfw.Disconnected {
		w.config.FullScreenMonitor = 0
		w.config.StartInFullScreen = false
	}
}

func (w *Window) Dispose() {
	w.window.Destroy()
	glfw.Terminate()
}

func (w *Window) installCallbacks() {
	w.window.SetKeyCallback(w.keyChange)
	w.window.SetFramebufferSizeCallback(w.framebufferResize)
}

func (w *Window) keyChange(window *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	name := KeyName(key, scancode)
	if name == "" {
		return
	}

	switch action {
	case glfw.Press, glfw.Repeat:
		// Alt-Enter toggles full screen, except on macOS, where the
		// window manager provides it.
		if key == glfw.KeyEnter && mods&glfw.ModAlt != 0 && runtime.GOOS != "darwin" {
			if action == glfw.Press {
				w.EnableFullScreen(!w.IsFullScreen())
			}
			return
		}
		w.events = append(w.events, dom.Event{Kind: dom.EventKeyDown, Name: name})
	case glfw.Release:
		w.events = append(w.events, dom.Event{Kind: dom.EventKeyUp, Name: name})
	}
}

func (w *Window) framebufferResize(window *glfw.Window, width, height int) {
	w.events = append(w.events, dom.Event{Kind: dom.EventResize, Width: width, Height: height})
}
