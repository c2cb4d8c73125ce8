// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Command framehook is the diagnostic CLI: it validates configuration and
// runs the offset handshake against the current process.
package main

import (
	"fmt"
	"os"

	"github.com/mbeema/framehook/pkg/config"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type globalOptions struct {
	configPath string
	configDir  string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "framehook: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalOptions

	root := &cobra.Command{
		Use:           "framehook",
		Short:         "Diagnostics for the framehook graphics interception layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to configuration file")
	root.PersistentFlags().StringVar(&g.configDir, "config-dir", "", "path to config directory (multi-file mode)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newResolveCmd(&g),
		newCheckCmd(&g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "framehook %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}

func newCheckCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "module:         %s (poll %s)\n", cfg.Module.Name, cfg.Module.PollInterval)
			fmt.Fprintf(out, "helper:         %s\n", orDefault(cfg.Helper.Path, "<beside framehook>"))
			fmt.Fprintf(out, "track_release:  %t\n", cfg.Hooks.TrackRelease)
			fmt.Fprintf(out, "verify_targets: %t\n", cfg.Hooks.VerifyTargets)
			fmt.Fprintf(out, "health:         %t %s\n", cfg.Health.Enabled, cfg.Health.Port)
			fmt.Fprintf(out, "otlp:           %t %s (%s)\n", cfg.Exporters.OTLP.Enabled, cfg.Exporters.OTLP.Endpoint, cfg.Exporters.OTLP.Protocol)
			fmt.Fprintf(out, "stdout:         %t\n", cfg.Exporters.Stdout.Enabled)
			fmt.Fprintln(out, "configuration OK")
			return nil
		},
	}
}

// loadConfig honors --config-dir, then --config, then the default locations.
func loadConfig(g *globalOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case g.configDir != "":
		cfg, err = config.LoadDir(g.configDir)
	case g.configPath != "":
		cfg, err = config.Load(g.configPath)
	default:
		cfg, err = loadDefaultConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDefaultConfig() (*config.Config, error) {
	for _, p := range []string{
		"configs/framehook.yaml",
		"/etc/framehook/framehook.yaml",
	} {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	cfg := config.DefaultConfig()
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
