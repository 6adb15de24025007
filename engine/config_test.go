// engine/config_test.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeConfig(t *testing.T) {
	for _, test := range []struct {
		ext, src string
	}{
		{".json", `{"window_size": [800, 600], "log_level": "debug", "clear_color": [1, 0, 0, 1], "vsync": false}`},
		{".toml", "window_size = [800, 600]\nlog_level = \"debug\"\nclear_color = [1.0, 0.0, 0.0, 1.0]\nvsync = false\n"},
		{".yaml", "window_size: [800, 600]\nlog_level: debug\nclear_color: [1, 0, 0, 1]\nvsync: false\n"},
		{".YML", "window_size:\n  - 800\n  - 600\nlog_level: debug\nclear_color: [1, 0, 0, 1]\nvsync: false\n"},
	} {
		c, err := DecodeConfig(strings.NewReader(test.src), test.ext)
		if err != nil {
			t.Errorf("%s: %v", test.ext, err)
			continue
		}
		if c.WindowSize != [2]int{800, 600} || c.LogLevel != "debug" || c.ClearColor != [4]float32{1, 0, 0, 1} || c.VSync {
			t.Errorf("%s: decoded %+v", test.ext, c)
		}
		// Unmentioned settings keep their defaults.
		def := DefaultConfig()
		if c.PhysicsStep != def.PhysicsStep || c.TileSize != def.TileSize || !c.Scripts || c.StatsInterval != "10s" {
			t.Errorf("%s: defaults not kept: %+v", test.ext, c)
		}
	}
}

func TestDecodeEmptyConfig(t *testing.T) {
	for _, test := range []struct{ ext, src string }{
		{".json", "{}"},
		{".toml", ""},
		{".yaml", ""},
	} {
		c, err := DecodeConfig(strings.NewReader(test.src), test.ext)
		if err != nil {
			t.Errorf("%s: %v", test.ext, err)
		} else if c != DefaultConfig() {
			t.Errorf("%s: got %+v, want the defaults", test.ext, c)
		}
	}
}

func TestDecodeConfigErrors(t *testing.T) {
	for _, test := range []struct {
		ext, src, want string
	}{
		{".json", `{"log_level": "debug", "bogus": 1}`, "bogus"},
		{".toml", "bogus = 1\n", "bogus"},
		{".yaml", "bogus: 1\n", "bogus"},
		{".json", `{"log_level": "debug",}`, "line 1"},
		{".json", `{"workers": 2, "workers": 3}`, "repeated"},
		{".json", `{"log_level": "loud"}`, "log_level"},
		{".yaml", "workers: -1\n", "workers"},
		{".toml", "tile_size = -4\n", "tile_size"},
		{".yaml", "stats_interval: often\n", "stats_interval"},
		{".yaml", "physics_step: 0\n", "physics_step"},
		{".yaml", "physics_step: 2\n", "physics_step"},
		{".json", `{"time_scale": -1}`, "time_scale"},
		{".json", `{"window_size": [-1, 10]}`, "window_size"},
		{".yaml", "media_dir: /nonexistent/lxengine/media\n", "media_dir"},
		{".ini", "log_level=debug", "unknown configuration format"},
	} {
		_, err := DecodeConfig(strings.NewReader(test.src), test.ext)
		if err == nil {
			t.Errorf("%s %q: no error", test.ext, test.src)
		} else if !strings.Contains(err.Error(), test.want) {
			t.Errorf("%s %q: error %q does not mention %q", test.ext, test.src, err, test.want)
		}
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	_, err := DecodeConfig(strings.NewReader("workers: -1\ntime_scale: 0\nlog_level: chatty\n"), ".yaml")
	if err == nil {
		t.Fatal("no error")
	}
	for _, s := range []string{"workers", "time_scale", "log_level"} {
		if !strings.Contains(err.Error(), s) {
			t.Errorf("error %q does not mention %s", err, s)
		}
	}
}

func TestStatsInterval(t *testing.T) {
	for _, test := range []struct {
		s    string
		secs float64
	}{
		{"", 0},
		{"0", 0},
		{"30s", 30},
		{"1m", 60},
	} {
		c := Config{StatsInterval: test.s}
		d, err := c.statsInterval()
		if err != nil || d.Seconds() != test.secs {
			t.Errorf("%q: got %v %v, want %gs", test.s, d, err, test.secs)
		}
	}
}

func TestFindAndLoadConfig(t *testing.T) {
	dir := t.TempDir()
	if p := FindConfig(dir); p != "" {
		t.Errorf("found %q in an empty directory", p)
	}

	media := filepath.Join(dir, "media")
	if err := os.Mkdir(media, 0o755); err != nil {
		t.Fatal(err)
	}
	yml := filepath.Join(dir, "lxengine.yml")
	if err := os.WriteFile(yml, []byte("media_dir: "+media+"\nworkers: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	toml := filepath.Join(dir, "lxengine.toml")
	if err := os.WriteFile(toml, []byte("workers = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The TOML file comes first in ConfigNames.
	if p := FindConfig(dir); p != toml {
		t.Errorf("FindConfig = %q, want %q", p, toml)
	}
	if c, err := LoadConfig(toml); err != nil || c.Workers != 2 {
		t.Errorf("LoadConfig(%s): %+v %v", toml, c, err)
	}
	if c, err := LoadConfig(yml); err != nil || c.Workers != 3 || c.MediaDir != media {
		t.Errorf("LoadConfig(%s): %+v %v", yml, c, err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"workers": "many"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil || !strings.Contains(err.Error(), bad) {
		t.Errorf("LoadConfig(%s): error %v does not name the file", bad, err)
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Errorf("no error for a missing file")
	}
}
