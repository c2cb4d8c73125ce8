// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Command framehook-helper resolves graphics module offsets on behalf of a
// process running framehook and publishes them into that process's shared
// region. It is launched with the target pid as its only argument.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mbeema/framehook/pkg/module"
	"github.com/mbeema/framehook/pkg/offsets"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"
)

var version = "dev"

const (
	envCatalog = "FRAMEHOOK_CATALOG"
	envModule  = "FRAMEHOOK_MODULE"

	defaultCatalog = "offsets.yaml"
	defaultModule  = "d3d9.dll"
)

type helperOptions struct {
	catalog   string
	module    string
	regionDir string
	mapPrefix string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := helperOptions{
		catalog:   os.Getenv(envCatalog),
		module:    envOr(envModule, defaultModule),
		regionDir: os.Getenv(offsets.EnvRegionDir),
		mapPrefix: envOr(offsets.EnvMapPrefix, offsets.DefaultMapPrefix),
	}

	cmd := &cobra.Command{
		Use:           offsets.HelperName + " <pid>",
		Short:         "Publish graphics module offsets for a framehook process",
		Args:          cobra.ExactArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[0])
			if err != nil || pid <= 0 {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			if err := run(pid, opts); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", offsets.HelperName, err)
				return err
			}
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.Flags().StringVar(&opts.catalog, "catalog", opts.catalog, "offset catalog (default: "+defaultCatalog+" beside the helper)")
	cmd.Flags().StringVar(&opts.module, "module", opts.module, "graphics module to resolve")
	cmd.Flags().StringVar(&opts.regionDir, "region-dir", opts.regionDir, "directory holding file-backed regions (unix)")
	cmd.Flags().StringVar(&opts.mapPrefix, "map-prefix", opts.mapPrefix, "shared region name prefix")
	return cmd
}

// run looks up the module's offsets and writes them into the region the
// target process created before launching us.
func run(pid int, opts helperOptions) error {
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		return fmt.Errorf("check pid %d: %w", pid, err)
	}
	if !exists {
		return fmt.Errorf("process %d is not running", pid)
	}

	catalogPath, err := resolveCatalog(opts.catalog)
	if err != nil {
		return err
	}
	catalog, err := offsets.LoadCatalog(catalogPath)
	if err != nil {
		return err
	}
	table, err := catalog.Lookup(opts.module)
	if err != nil {
		return err
	}
	if table.IsZero() {
		return fmt.Errorf("catalog entry for %s is empty", opts.module)
	}

	return offsets.Publish(opts.regionDir, offsets.RegionName(opts.mapPrefix, pid), table)
}

func resolveCatalog(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	dir, err := module.SelfDir()
	if err != nil {
		return "", fmt.Errorf("locate catalog: %w", err)
	}
	return filepath.Join(dir, defaultCatalog), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
