// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Helper.Timeout != 0 {
		t.Errorf("helper.timeout = %v, want 0 (unbounded)", cfg.Helper.Timeout)
	}
	if cfg.Hooks.TrackRelease {
		t.Error("hooks.track_release should default to false")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "framehook.yaml", `
log_level: debug
module:
  name: d3d9.dll
  poll_interval: 250ms
helper:
  path: /opt/framehook/framehook-helper
  timeout: 5s
hooks:
  track_release: true
`)

	cfg, err := Load(filepath.Join(dir, "framehook.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Module.PollInterval != 250*time.Millisecond {
		t.Errorf("poll_interval = %v, want 250ms", cfg.Module.PollInterval)
	}
	if cfg.Helper.Path != "/opt/framehook/framehook-helper" || cfg.Helper.Timeout != 5*time.Second {
		t.Errorf("helper = %+v", cfg.Helper)
	}
	if !cfg.Hooks.TrackRelease {
		t.Error("track_release not applied")
	}
	// Untouched keys keep their defaults.
	if cfg.Helper.MapPrefix == "" || !cfg.Hooks.VerifyTargets {
		t.Errorf("defaults lost: %+v %+v", cfg.Helper, cfg.Hooks)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadDirOverrideOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "log_level: warn\nhooks:\n  verify_targets: true\n")
	writeFile(t, dir, "hooks.yaml", "hooks:\n  verify_targets: false\n  track_release: true\n")
	writeFile(t, dir, "export.yaml", "exporters:\n  interval: 30s\n  stdout:\n    enabled: true\n    format: json\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log_level = %q, want warn", cfg.LogLevel)
	}
	if cfg.Hooks.VerifyTargets {
		t.Error("hooks.yaml should override base.yaml")
	}
	if !cfg.Hooks.TrackRelease {
		t.Error("track_release not applied")
	}
	if cfg.Exporters.Interval != 30*time.Second || cfg.Exporters.Stdout.Format != "json" {
		t.Errorf("exporters = %+v", cfg.Exporters)
	}
}

func TestLoadDirEmpty(t *testing.T) {
	cfg, err := LoadDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if cfg.Module.Name != DefaultConfig().Module.Name {
		t.Errorf("module.name = %q", cfg.Module.Name)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FRAMEHOOK_LOG_LEVEL", "error")
	t.Setenv("FRAMEHOOK_HELPER_TIMEOUT", "3s")
	t.Setenv("FRAMEHOOK_HOOKS_TRACK_RELEASE", "yes")
	t.Setenv("FRAMEHOOK_MODULE_POLL_INTERVAL", "not-a-duration")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.LogLevel != "error" {
		t.Errorf("log_level = %q, want error", cfg.LogLevel)
	}
	if cfg.Helper.Timeout != 3*time.Second {
		t.Errorf("helper.timeout = %v, want 3s", cfg.Helper.Timeout)
	}
	if !cfg.Hooks.TrackRelease {
		t.Error("track_release override not applied")
	}
	if cfg.Module.PollInterval != time.Second {
		t.Errorf("poll_interval = %v, invalid override should be ignored", cfg.Module.PollInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no module", func(c *Config) { c.Module.Name = "" }, "module.name"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"poll too fast", func(c *Config) { c.Module.PollInterval = time.Millisecond }, "poll_interval"},
		{"no prefix", func(c *Config) { c.Helper.MapPrefix = "" }, "map_prefix"},
		{"negative timeout", func(c *Config) { c.Helper.Timeout = -time.Second }, "helper.timeout"},
		{"health without port", func(c *Config) { c.Health.Enabled = true; c.Health.Port = "" }, "health.port"},
		{"otlp without endpoint", func(c *Config) { c.Exporters.OTLP.Enabled = true; c.Exporters.OTLP.Endpoint = "" }, "otlp.endpoint"},
		{"bad otlp protocol", func(c *Config) { c.Exporters.OTLP.Enabled = true; c.Exporters.OTLP.Protocol = "udp" }, "otlp.protocol"},
		{"bad compression", func(c *Config) { c.Exporters.OTLP.Enabled = true; c.Exporters.OTLP.Compression = "zstd" }, "otlp.compression"},
		{"bad stdout format", func(c *Config) { c.Exporters.Stdout.Enabled = true; c.Exporters.Stdout.Format = "xml" }, "stdout.format"},
		{"interval too short", func(c *Config) { c.Exporters.Stdout.Enabled = true; c.Exporters.Interval = 10 * time.Millisecond }, "exporters.interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "log_level: info\n")

	changed := make(chan *Config, 4)
	w := NewWatcher(dir, func(cfg *Config, _ string) { changed <- cfg }, zap.NewNop())
	w.debounce = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "base.yaml", "log_level: debug\n")

	select {
	case cfg := <-changed:
		if cfg.LogLevel != "debug" {
			t.Errorf("log_level = %q, want debug", cfg.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after base.yaml changed")
	}
}
