// cmd/lxview/main.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// lxview loads a scene document and displays it in a window.
// Usage: lxview [flags] <scene.xml>
//
// Settings come from lxengine.json, lxengine.toml, or lxengine.yaml in
// the scene's directory or the current directory; flags override them.
// Press Escape to quit, P to save a screenshot, and R to reload
// textures.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/lxengine/lxengine/dom"
	"github.com/lxengine/lxengine/engine"
	"github.com/lxengine/lxengine/log"
	"github.com/lxengine/lxengine/util"

	"github.com/goforj/godump"
)

var (
	configFile    = flag.String("config", "", "configuration file (default: lxengine.{json,toml,yaml} next to the scene)")
	logLevel      = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir        = flag.String("logdir", "", "log file directory")
	mediaDir      = flag.String("media", "", "directory of materials, geometry, and textures that override the built-in media")
	screenshotDir = flag.String("screenshots", ".", "directory that screenshots are saved to")
	fullScreen    = flag.Bool("fullscreen", false, "start in full screen mode")
	noVSync       = flag.Bool("novsync", false, "render without waiting for vertical sync")
	noPhysics     = flag.Bool("nophysics", false, "disable the physics simulation")
	noScripts     = flag.Bool("noscripts", false, "do not run the scene's scripts")
	workers       = flag.Int("workers", 0, "number of background workers (default: one per CPU)")
	check         = flag.Bool("check", false, "check the scene and configuration for errors and exit")
	dump          = flag.Bool("dump", false, "print the loaded document tree and exit")
)

func init() {
	// OpenGL and GLFW calls must all be made from the main thread, so
	// keep the main goroutine on it.
	runtime.LockOSThread()
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: lxview [flags] <scene.xml>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "lxview: %v\n", err)
		os.Exit(1)
	}
}

func run(scene string) error {
	scene, err := filepath.Abs(scene)
	if err != nil {
		return err
	}
	dir, name := filepath.Split(scene)

	config, err := loadConfig(dir)
	if err != nil {
		return err
	}
	var e util.ErrorLogger
	if config.Validate(&e); e.HaveErrors() {
		return e.Err()
	}

	lg := log.New(config.LogLevel, config.LogDir)

	fsys := os.DirFS(dir)
	root, err := dom.LoadFile(fsys, name, &e)
	if e.HaveErrors() {
		e.PrintErrors(os.Stderr, lg)
		return fmt.Errorf("%s: errors in scene", scene)
	} else if err != nil {
		return err
	}

	switch {
	case *dump:
		godump.Dump(tree(root))
		return nil
	case *check:
		fmt.Printf("%s: ok\n", scene)
		return nil
	}

	eng, err := engine.New(context.Background(), config, fsys, lg)
	if err != nil {
		return err
	}
	defer eng.Shutdown()

	eng.Load(root)
	return eng.Run()
}

// loadConfig reads the file named by -config, or else the first
// configuration file found in the scene's directory or the current one,
// and then applies the flags given on the command line.
func loadConfig(sceneDir string) (engine.Config, error) {
	path := *configFile
	if path == "" {
		path = util.FirstNonZero(engine.FindConfig(sceneDir), engine.FindConfig("."))
	}

	config := engine.DefaultConfig()
	if path != "" {
		var err error
		if config, err = engine.LoadConfig(path); err != nil {
			return engine.Config{}, err
		} else if *configFile == "" {
			fmt.Fprintf(os.Stderr, "lxview: using %s\n", path)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "loglevel":
			config.LogLevel = *logLevel
		case "logdir":
			config.LogDir = *logDir
		case "media":
			config.MediaDir = *mediaDir
		case "screenshots":
			config.ScreenshotDir = *screenshotDir
		case "fullscreen":
			config.FullScreen = *fullScreen
		case "novsync":
			config.VSync = !*noVSync
		case "nophysics":
			config.Physics = !*noPhysics
		case "noscripts":
			config.Scripts = !*noScripts
		case "workers":
			config.Workers = *workers
		}
	})
	return config, nil
}

// tree returns a plain representation of the element and its
// descendants for printing.
func tree(e *dom.Element) map[string]any {
	m := map[string]any{"tag": e.Tag()}
	if names := e.AttrNames(); len(names) > 0 {
		attrs := make(map[string]any, len(names))
		for _, n := range names {
			attrs[n] = e.Attr(n)
		}
		m["attributes"] = attrs
	}
	if v := e.Value(); v != nil {
		m["value"] = v
	}
	if n := e.ChildCount(); n > 0 {
		children := make([]map[string]any, n)
		for i := range n {
			children[i] = tree(e.Child(i))
		}
		m["children"] = children
	}
	return m
}
