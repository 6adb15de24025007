// engine/config.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lxengine/lxengine/log"
	"github.com/lxengine/lxengine/util"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the engine settings. It is read from lxengine.json,
// lxengine.toml, or lxengine.yaml; command-line flags override it.
type Config struct {
	WindowSize     [2]int `json:"window_size" toml:"window_size" yaml:"window_size"`
	WindowPosition [2]int `json:"window_position" toml:"window_position" yaml:"window_position"`
	FullScreen     bool   `json:"fullscreen" toml:"fullscreen" yaml:"fullscreen"`
	Monitor        int    `json:"monitor" toml:"monitor" yaml:"monitor"`
	MSAA           bool   `json:"msaa" toml:"msaa" yaml:"msaa"`
	VSync          bool   `json:"vsync" toml:"vsync" yaml:"vsync"`

	// MediaDir overrides and extends the built-in materials, geometry,
	// and textures. Files in it are watched and reloaded when they change
	// if WatchMedia is set.
	MediaDir   string `json:"media_dir" toml:"media_dir" yaml:"media_dir"`
	WatchMedia bool   `json:"watch_media" toml:"watch_media" yaml:"watch_media"`

	LogLevel string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogDir   string `json:"log_dir" toml:"log_dir" yaml:"log_dir"`

	ClearColor    [4]float32 `json:"clear_color" toml:"clear_color" yaml:"clear_color"`
	ShaderCache   bool       `json:"shader_cache" toml:"shader_cache" yaml:"shader_cache"`
	ScreenshotDir string     `json:"screenshot_dir" toml:"screenshot_dir" yaml:"screenshot_dir"`
	// StatsInterval is how often rendering statistics are logged, as a
	// duration string such as "30s"; "0" disables them.
	StatsInterval string `json:"stats_interval" toml:"stats_interval" yaml:"stats_interval"`

	// Workers bounds the number of background tasks that run at once;
	// zero means one per CPU.
	Workers  int  `json:"workers" toml:"workers" yaml:"workers"`
	TileSize int  `json:"tile_size" toml:"tile_size" yaml:"tile_size"`
	Cull     bool `json:"cull" toml:"cull" yaml:"cull"`

	Physics     bool    `json:"physics" toml:"physics" yaml:"physics"`
	PhysicsStep float32 `json:"physics_step" toml:"physics_step" yaml:"physics_step"`
	TimeScale   float32 `json:"time_scale" toml:"time_scale" yaml:"time_scale"`

	Scripts bool `json:"scripts" toml:"scripts" yaml:"scripts"`
}

// ConfigNames are the file names that FindConfig looks for, in order.
var ConfigNames = []string{"lxengine.json", "lxengine.toml", "lxengine.yaml", "lxengine.yml"}

func DefaultConfig() Config {
	return Config{
		VSync:         true,
		MSAA:          true,
		WatchMedia:    true,
		LogLevel:      "info",
		ClearColor:    [4]float32{0, 0.3, 0.32, 1},
		ShaderCache:   true,
		ScreenshotDir: ".",
		StatsInterval: "10s",
		TileSize:      32,
		Cull:          true,
		Physics:       true,
		PhysicsStep:   1.0 / 60,
		TimeScale:     1,
		Scripts:       true,
	}
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("window_size", c.WindowSize),
		slog.Bool("fullscreen", c.FullScreen),
		slog.Bool("vsync", c.VSync),
		slog.String("media_dir", c.MediaDir),
		slog.Bool("watch_media", c.WatchMedia),
		slog.String("log_level", c.LogLevel),
		slog.Any("clear_color", c.ClearColor),
		slog.Bool("shader_cache", c.ShaderCache),
		slog.String("stats_interval", c.StatsInterval),
		slog.Int("workers", c.Workers),
		slog.Bool("physics", c.Physics),
		slog.Float64("physics_step", float64(c.PhysicsStep)),
		slog.Bool("scripts", c.Scripts))
}

// FindConfig returns the path of the first of ConfigNames that exists in
// dir, or "" if there is none.
func FindConfig(dir string) string {
	for _, n := range ConfigNames {
		p := filepath.Join(dir, n)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadConfig reads the configuration file at path, choosing the format
// from its extension. Settings that the file doesn't mention keep their
// default values.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	c, err := DecodeConfig(f, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// DecodeConfig decodes a configuration in the format given by ext:
// ".json", ".toml", ".yaml", or ".yml". Unknown settings are errors.
func DecodeConfig(r io.Reader, ext string) (Config, error) {
	c := DefaultConfig()
	switch strings.ToLower(ext) {
	case ".json":
		b, err := io.ReadAll(r)
		if err != nil {
			return Config{}, err
		}
		var e util.ErrorLogger
		if util.CheckJSON(b, &e); e.HaveErrors() {
			return Config{}, e.Err()
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return Config{}, err
		}
	case ".toml":
		if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&c); err != nil {
			return Config{}, err
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("%q: unknown configuration format", ext)
	}

	var e util.ErrorLogger
	c.Validate(&e)
	if err := e.Err(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports invalid settings to e.
func (c *Config) Validate(e *util.ErrorLogger) {
	if c.WindowSize[0] < 0 || c.WindowSize[1] < 0 {
		e.ErrorString("window_size: %v: negative size", c.WindowSize)
	}
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		e.ErrorString("log_level: %q: unknown level", c.LogLevel)
	}
	if _, err := c.statsInterval(); err != nil {
		e.ErrorString("stats_interval: %v", err)
	}
	if c.Workers < 0 {
		e.ErrorString("workers: %d: must not be negative", c.Workers)
	}
	if c.TileSize < 0 {
		e.ErrorString("tile_size: %d: must not be negative", c.TileSize)
	}
	if c.PhysicsStep <= 0 || c.PhysicsStep > 1 {
		e.ErrorString("physics_step: %g: must be in (0, 1]", c.PhysicsStep)
	}
	if c.TimeScale <= 0 {
		e.ErrorString("time_scale: %g: must be positive", c.TimeScale)
	}
	if c.MediaDir != "" {
		if fi, err := os.Stat(c.MediaDir); err != nil {
			e.Error(fmt.Errorf("media_dir: %w", err))
		} else if !fi.IsDir() {
			e.ErrorString("media_dir: %s: not a directory", c.MediaDir)
		}
	}
}

func (c *Config) statsInterval() (time.Duration, error) {
	if c.StatsInterval == "" || c.StatsInterval == "0" {
		return 0, nil
	}
	return time.ParseDuration(c.StatsInterval)
}
