// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mbeema/framehook/pkg/offsets"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for framehook.
type Config struct {
	ServiceName string          `yaml:"service_name"`
	LogLevel    string          `yaml:"log_level"`
	Module      ModuleConfig    `yaml:"module"`
	Helper      HelperConfig    `yaml:"helper"`
	Hooks       HooksConfig     `yaml:"hooks"`
	Health      HealthConfig    `yaml:"health"`
	Exporters   ExportersConfig `yaml:"exporters"`
}

// ModuleConfig selects the graphics module to intercept.
type ModuleConfig struct {
	Name         string        `yaml:"name"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// HelperConfig configures the offset helper handshake.
type HelperConfig struct {
	Path      string        `yaml:"path"` // empty: beside the framehook image
	MapPrefix string        `yaml:"map_prefix"`
	RegionDir string        `yaml:"region_dir"` // unix only
	Timeout   time.Duration `yaml:"timeout"`    // 0 = wait indefinitely
}

type HooksConfig struct {
	TrackRelease  bool `yaml:"track_release"`  // Also detour AddRef/Release
	VerifyTargets bool `yaml:"verify_targets"` // Decode the prologue before patching
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

type ExportersConfig struct {
	Interval time.Duration `yaml:"interval"`
	OTLP     OTLPConfig    `yaml:"otlp"`
	Stdout   StdoutConfig  `yaml:"stdout"`
}

type OTLPConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	Protocol    string            `yaml:"protocol"`    // "grpc" or "http"
	Compression string            `yaml:"compression"` // "gzip" or "none"
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
}

type StdoutConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"` // "text" or "json"
}

// Load reads configuration from a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFileInto(path, cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "framehook",
		LogLevel:    "info",
		Module: ModuleConfig{
			Name:         "d3d9.dll",
			PollInterval: time.Second,
		},
		Helper: HelperConfig{
			MapPrefix: offsets.DefaultMapPrefix,
		},
		Hooks: HooksConfig{
			VerifyTargets: true,
		},
		Health: HealthConfig{
			Enabled: false,
			Port:    "127.0.0.1:8687",
		},
		Exporters: ExportersConfig{
			Interval: 10 * time.Second,
			OTLP: OTLPConfig{
				Enabled:     false,
				Endpoint:    "localhost:4317",
				Protocol:    "grpc",
				Compression: "gzip",
				Insecure:    true,
			},
			Stdout: StdoutConfig{
				Enabled: false,
				Format:  "text",
			},
		},
	}
}

// LoadDir loads base.yaml then the per-area files from dir. Later files
// override earlier ones; missing files are skipped.
func LoadDir(dir string) (*Config, error) {
	cfg := DefaultConfig()

	for _, f := range []string{"base.yaml", "hooks.yaml", "export.yaml"} {
		if err := loadFileInto(filepath.Join(dir, f), cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func loadFileInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ApplyEnvOverrides applies FRAMEHOOK_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	stringOverrides := map[string]*string{
		"FRAMEHOOK_SERVICE_NAME":            &c.ServiceName,
		"FRAMEHOOK_LOG_LEVEL":               &c.LogLevel,
		"FRAMEHOOK_MODULE_NAME":             &c.Module.Name,
		"FRAMEHOOK_HELPER_PATH":             &c.Helper.Path,
		"FRAMEHOOK_HELPER_MAP_PREFIX":       &c.Helper.MapPrefix,
		"FRAMEHOOK_HELPER_REGION_DIR":       &c.Helper.RegionDir,
		"FRAMEHOOK_HEALTH_PORT":             &c.Health.Port,
		"FRAMEHOOK_EXPORTERS_OTLP_ENDPOINT": &c.Exporters.OTLP.Endpoint,
		"FRAMEHOOK_EXPORTERS_OTLP_PROTOCOL": &c.Exporters.OTLP.Protocol,
	}

	boolOverrides := map[string]*bool{
		"FRAMEHOOK_HOOKS_TRACK_RELEASE":      &c.Hooks.TrackRelease,
		"FRAMEHOOK_HOOKS_VERIFY_TARGETS":     &c.Hooks.VerifyTargets,
		"FRAMEHOOK_HEALTH_ENABLED":           &c.Health.Enabled,
		"FRAMEHOOK_EXPORTERS_OTLP_ENABLED":   &c.Exporters.OTLP.Enabled,
		"FRAMEHOOK_EXPORTERS_STDOUT_ENABLED": &c.Exporters.Stdout.Enabled,
	}

	durationOverrides := map[string]*time.Duration{
		"FRAMEHOOK_MODULE_POLL_INTERVAL": &c.Module.PollInterval,
		"FRAMEHOOK_HELPER_TIMEOUT":       &c.Helper.Timeout,
		"FRAMEHOOK_EXPORTERS_INTERVAL":   &c.Exporters.Interval,
	}

	for envKey, target := range stringOverrides {
		if val := os.Getenv(envKey); val != "" {
			*target = val
		}
	}

	for envKey, target := range boolOverrides {
		if val := os.Getenv(envKey); val != "" {
			*target = parseBool(val)
		}
	}

	for envKey, target := range durationOverrides {
		if val := os.Getenv(envKey); val != "" {
			if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
				*target = d
			}
		}
	}
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		s = strings.ToLower(strings.TrimSpace(s))
		return s == "yes" || s == "on"
	}
	return b
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Module.Name == "" {
		return fmt.Errorf("module.name is required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}

	if c.Module.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("module.poll_interval must be at least 10ms")
	}

	if c.Helper.MapPrefix == "" {
		return fmt.Errorf("helper.map_prefix is required")
	}

	if c.Helper.Timeout < 0 {
		return fmt.Errorf("helper.timeout must not be negative")
	}

	if c.Health.Enabled && c.Health.Port == "" {
		return fmt.Errorf("health.port is required when health is enabled")
	}

	if c.Exporters.OTLP.Enabled {
		if c.Exporters.OTLP.Endpoint == "" {
			return fmt.Errorf("exporters.otlp.endpoint is required when OTLP is enabled")
		}
		if c.Exporters.OTLP.Protocol != "grpc" && c.Exporters.OTLP.Protocol != "http" {
			return fmt.Errorf("exporters.otlp.protocol must be 'grpc' or 'http'")
		}
		if c.Exporters.OTLP.Compression != "" && c.Exporters.OTLP.Compression != "gzip" && c.Exporters.OTLP.Compression != "none" {
			return fmt.Errorf("exporters.otlp.compression must be 'gzip' or 'none'")
		}
	}

	if c.Exporters.Stdout.Enabled && c.Exporters.Stdout.Format != "text" && c.Exporters.Stdout.Format != "json" {
		return fmt.Errorf("exporters.stdout.format must be 'text' or 'json'")
	}

	if (c.Exporters.OTLP.Enabled || c.Exporters.Stdout.Enabled) && c.Exporters.Interval < time.Second {
		return fmt.Errorf("exporters.interval must be at least 1s")
	}

	return nil
}
