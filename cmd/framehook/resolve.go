// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mbeema/framehook/pkg/agent"
	"github.com/mbeema/framehook/pkg/module"
	"github.com/mbeema/framehook/pkg/offsets"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newResolveCmd(g *globalOptions) *cobra.Command {
	var base, size string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Run the offset helper for this process and print the table",
		Long: `Locates the configured graphics module in this process, runs the helper
handshake exactly as an attach would, and prints the resulting offsets.
--base and --size describe the module explicitly when it is not loaded here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			logger, _, err := agent.NewLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			h, err := moduleHandle(module.DefaultFinder(), cfg.Module.Name, base, size)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			describeSelf(cmd.OutOrStdout(), logger)

			resolver := offsets.NewResolver(offsets.ResolverConfig{
				HelperPath: cfg.Helper.Path,
				MapPrefix:  cfg.Helper.MapPrefix,
				RegionDir:  cfg.Helper.RegionDir,
				Timeout:    cfg.Helper.Timeout,
			}, logger.Named("offsets"))

			tbl, err := resolver.Resolve(ctx, h)
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), cfg.Module.Name, h, tbl)
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "module base address (hex), overrides lookup")
	cmd.Flags().StringVar(&size, "size", "", "module image size (hex), used with --base")
	return cmd
}

func moduleHandle(finder module.Finder, name, base, size string) (module.Handle, error) {
	if base != "" {
		b, err := strconv.ParseUint(base, 0, 64)
		if err != nil {
			return module.Handle{}, fmt.Errorf("invalid --base %q: %w", base, err)
		}
		var s uint64
		if size != "" {
			if s, err = strconv.ParseUint(size, 0, 64); err != nil {
				return module.Handle{}, fmt.Errorf("invalid --size %q: %w", size, err)
			}
		}
		if b == 0 || s == 0 {
			return module.Handle{}, fmt.Errorf("--base and --size must both be non-zero")
		}
		return module.Handle{Base: uintptr(b), Size: uintptr(s)}, nil
	}

	h, ok := finder.FindLoaded(name)
	if !ok {
		return module.Handle{}, fmt.Errorf("module %s is not loaded in this process (use --base/--size)", name)
	}
	return h, nil
}

func describeSelf(w io.Writer, logger *zap.Logger) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Debug("process info unavailable", zap.Error(err))
		return
	}
	name, _ := proc.Name()
	threads, _ := proc.NumThreads()
	fmt.Fprintf(w, "process %d (%s), %d threads\n", proc.Pid, name, threads)
}

func printTable(w io.Writer, name string, h module.Handle, tbl *offsets.Table) {
	fmt.Fprintf(w, "%s at %s\n", name, h)
	for _, f := range offsets.Funcs {
		off := tbl.Offset(f)
		if off == 0 {
			fmt.Fprintf(w, "  %-18s -\n", f)
			continue
		}
		fmt.Fprintf(w, "  %-18s %#08x  %#x\n", f, off, uint64(h.Base)+off)
	}
}
