// engine/engine.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package engine ties the document to its subsystems: it attaches the
// script and physics components, creates the main view with its
// renderer, and runs the frame loop against a platform window.
package engine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/log"
	"github.com/lxengine/lxengine/physics"
	"github.com/lxengine/lxengine/platform"
	"github.com/lxengine/lxengine/rasterizer"
	"github.com/lxengine/lxengine/rasterizer/glbackend"
	"github.com/lxengine/lxengine/renderer"
	"github.com/lxengine/lxengine/script"
	"github.com/lxengine/lxengine/tasks"
	"github.com/lxengine/lxengine/util"

	"github.com/go-gl/mathgl/mgl32"
)

// MainView is the name of the view that the engine renders to the
// window.
const MainView = "main"

// Engine owns a document and the subsystems that act on it. Its methods
// must be called from the thread that owns the window.
type Engine struct {
	config Config
	lg     *log.Logger

	doc     *dom.Document
	view    *dom.View
	tasks   *tasks.Group
	scripts *script.Engine
	physics *physics.Doc

	window   *platform.Window
	ras      *rasterizer.Rasterizer
	renderer *renderer.Renderer
	watcher  *rasterizer.Watcher

	title  string
	stop   bool
	frames int
	start  time.Time
}

// New creates the document and its device-independent subsystems.
// Scripts read files that <Script src=...> names from fsys, which may be
// nil. Rendering starts once a device is attached with AttachDevice or
// when Run opens a window.
func New(ctx context.Context, config Config, fsys fs.FS, lg *log.Logger) (*Engine, error) {
	var e util.ErrorLogger
	if config.Validate(&e); e.HaveErrors() {
		return nil, e.Err()
	}
	lg.Info("engine", slog.Any("config", config))

	eng := &Engine{
		config: config,
		lg:     lg,
		doc:    dom.NewDocument(nil, lg),
		tasks:  tasks.New(ctx, config.Workers, lg),
		title:  "lxengine",
	}

	if config.Scripts {
		s, err := script.New(os.Stdout, lg)
		if err != nil {
			eng.tasks.Close()
			return nil, fmt.Errorf("script engine: %w", err)
		}
		eng.scripts = s
		eng.doc.Attach(script.ComponentName, script.NewDoc(eng.tasks.Context(), s, fsys, lg))
	}
	if config.Physics {
		opts := physics.DefaultOptions()
		opts.Step = config.PhysicsStep
		opts.TimeScale = config.TimeScale
		eng.physics = physics.NewDoc(physics.NewWorld(), nil, opts, lg)
		eng.doc.Attach(physics.ComponentName, eng.physics)
	}

	eng.view = eng.doc.CreateView(MainView)
	eng.view.Attach(inputComponentName, &input{})

	return eng, nil
}

func (eng *Engine) Config() Config { return eng.config }

func (eng *Engine) Document() *dom.Document { return eng.doc }

// Renderer returns the main view's renderer, or nil if no device is
// attached.
func (eng *Engine) Renderer() *renderer.Renderer { return eng.renderer }

// Physics returns the physics component, or nil if physics is disabled.
func (eng *Engine) Physics() *physics.Doc { return eng.physics }

// Scripts returns the script engine, or nil if scripts are disabled.
func (eng *Engine) Scripts() *script.Engine { return eng.scripts }

// Load replaces the document's tree with root. A title attribute on the
// root names the window.
func (eng *Engine) Load(root *dom.Element) {
	eng.doc.SetRoot(root)
	if t := root.AttrString("title", ""); t != "" {
		eng.title = t
		if eng.window != nil {
			eng.window.SetTitle(t)
		}
	}
}

// AttachDevice creates the rasterizer for dev and attaches a renderer to
// the main view. Media files come from the configured media directory,
// which is watched for changes if WatchMedia is set.
func (eng *Engine) AttachDevice(dev rasterizer.Device) error {
	if eng.ras != nil {
		return fmt.Errorf("a device is already attached")
	}

	var media fs.FS
	if eng.config.MediaDir != "" {
		media = util.DirFS(eng.config.MediaDir)
	}
	ras, err := rasterizer.New(dev, rasterizer.Options{
		Media:       media,
		ShaderCache: eng.config.ShaderCache,
		Logger:      eng.lg,
	})
	if err != nil {
		return err
	}
	eng.ras = ras

	stats, _ := eng.config.statsInterval()
	eng.renderer = renderer.New(ras, eng.tasks, eng.scripts, renderer.Options{
		ClearColor:    mgl32.Vec4(eng.config.ClearColor),
		ScreenshotDir: eng.config.ScreenshotDir,
		TileSize:      eng.config.TileSize,
		Cull:          eng.config.Cull,
		StatsInterval: stats,
	}, eng.lg)
	eng.view.Attach(renderer.ComponentName, eng.renderer)

	if eng.config.WatchMedia {
		if eng.watcher, err = ras.Watch(); err != nil {
			eng.lg.Warnf("unable to watch media: %v", err)
		}
	}
	return nil
}

// Frame runs one tick of the main loop: it delivers events to the views,
// updates the document, and renders. Reloaded media files are picked up
// after rendering.
func (eng *Engine) Frame(events []dom.Event) error {
	if eng.frames == 0 {
		eng.start = time.Now()
	}
	eng.frames++

	for _, ev := range events {
		if !eng.doc.SendEvent(ev) {
			eng.unhandled(ev)
		}
	}

	eng.doc.Update()
	if err := eng.doc.Render(); err != nil {
		return err
	}

	if eng.watcher != nil {
		for _, p := range eng.watcher.Poll(eng.ras) {
			eng.lg.Info("reloaded media file", slog.String("path", p))
		}
	}
	return nil
}

// unhandled acts on the events that no component claimed.
func (eng *Engine) unhandled(ev dom.Event) {
	switch {
	case ev.Kind == dom.EventKeyDown && ev.Name == "escape":
		eng.RequestStop()
	case ev.Kind == dom.EventCommand && ev.Name == "quit":
		eng.RequestStop()
	case ev.Kind == dom.EventCommand:
		eng.lg.Warnf("%s: unknown command", ev.Name)
	}
}

// RequestStop asks Run to return after the current frame.
func (eng *Engine) RequestStop() {
	eng.stop = true
	if eng.window != nil {
		eng.window.RequestStop()
	}
}

// Stopping reports whether the engine has been asked to stop.
func (eng *Engine) Stopping() bool {
	return eng.stop || (eng.window != nil && eng.window.ShouldStop())
}

// Run opens the window, renders the document until the window is closed
// or a stop is requested, and returns the first rendering error. The
// caller must have locked the main goroutine to its thread and must call
// Shutdown afterward.
func (eng *Engine) Run() error {
	w, err := platform.New(&platform.Config{
		WindowSize:        eng.config.WindowSize,
		WindowPosition:    eng.config.WindowPosition,
		Title:             eng.title,
		EnableMSAA:        eng.config.MSAA,
		StartInFullScreen: eng.config.FullScreen,
		FullScreenMonitor: eng.config.Monitor,
	}, eng.lg)
	if err != nil {
		return err
	}
	eng.window = w
	w.EnableVSync(eng.config.VSync)

	dev, err := glbackend.New(w.FramebufferSize, eng.lg)
	if err != nil {
		return err
	}
	if err := eng.AttachDevice(dev); err != nil {
		return err
	}

	eng.lg.Info("Starting main loop")
	for !eng.Stopping() {
		if err := eng.Frame(w.ProcessEvents()); err != nil {
			return err
		}
		w.SwapBuffers()
	}
	eng.lg.Info("Main loop finished", slog.Int("frames", eng.frames),
		slog.Duration("elapsed", time.Since(eng.start)))
	return nil
}

// Shutdown stops the background tasks, closes the document, and then
// releases the GPU resources and the window, in that order.
func (eng *Engine) Shutdown() {
	eng.tasks.Close()
	eng.doc.Close()
	if eng.watcher != nil {
		if err := eng.watcher.Close(); err != nil {
			eng.lg.Warnf("media watcher: %v", err)
		}
		eng.watcher = nil
	}
	if eng.ras != nil {
		eng.ras.Shutdown()
		eng.ras = nil
	}
	if eng.window != nil {
		eng.window.Dispose()
		eng.window = nil
	}
}
