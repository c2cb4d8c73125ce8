// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package offsets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/mbeema/framehook/pkg/module"
	"go.uber.org/zap"
)

var (
	ErrHelperFailed  = errors.New("offset helper failed")
	ErrHelperTimeout = errors.New("offset helper did not finish in time")
)

// ResolverConfig configures the helper handshake.
type ResolverConfig struct {
	HelperPath string        // empty: look beside the framehook image
	MapPrefix  string        // empty: DefaultMapPrefix
	RegionDir  string        // empty: DefaultRegionDir (unix only)
	Timeout    time.Duration // zero: wait for the helper indefinitely
	Env        []string      // extra environment for the helper
}

// Resolver turns a loaded module into an offset Table by running the helper
// process against a shared region.
type Resolver struct {
	cfg    ResolverConfig
	pid    int
	logger *zap.Logger
}

// NewResolver creates a resolver for the current process.
func NewResolver(cfg ResolverConfig, logger *zap.Logger) *Resolver {
	if cfg.MapPrefix == "" {
		cfg.MapPrefix = DefaultMapPrefix
	}
	if cfg.RegionDir == "" {
		cfg.RegionDir = DefaultRegionDir()
	}
	return &Resolver{
		cfg:    cfg,
		pid:    os.Getpid(),
		logger: logger,
	}
}

// Resolve runs one handshake. Every failure is fatal for this attach attempt;
// nothing is retried and no partially written table is trusted.
func (r *Resolver) Resolve(ctx context.Context, base module.Handle) (*Table, error) {
	name := RegionName(r.cfg.MapPrefix, r.pid)
	r.logger.Debug("creating offset region", zap.String("name", name))

	region, err := CreateRegion(r.cfg.RegionDir, name, TableSize)
	if err != nil {
		return nil, err
	}
	defer region.Close()

	helper, err := FindHelper(r.cfg.HelperPath)
	if err != nil {
		return nil, err
	}

	if err := r.runHelper(ctx, helper); err != nil {
		return nil, err
	}

	tbl, err := region.Table()
	if err != nil {
		return nil, err
	}
	if err := tbl.Validate(base); err != nil {
		return nil, fmt.Errorf("helper produced unusable offsets: %w", err)
	}

	r.logger.Info("offsets resolved",
		zap.Stringer("module", base),
		zap.Uint64("present", tbl.Present),
		zap.Uint64("reset", tbl.Reset),
		zap.Uint64("swap_chain_present", tbl.SwapChainPresent),
	)
	return tbl, nil
}

func (r *Resolver) runHelper(ctx context.Context, helper string) error {
	runCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, helper, strconv.Itoa(r.pid))
	cmd.Env = append(os.Environ(),
		EnvRegionDir+"="+r.cfg.RegionDir,
		EnvMapPrefix+"="+r.cfg.MapPrefix,
	)
	cmd.Env = append(cmd.Env, r.cfg.Env...)

	r.logger.Info("launching offset helper", zap.String("path", helper), zap.Int("pid", r.pid))

	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if r.cfg.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s", ErrHelperTimeout, r.cfg.Timeout)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("offset helper: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: exit code %d\noutput: %s", ErrHelperFailed, exitErr.ExitCode(), string(output))
	}
	return fmt.Errorf("run offset helper %s: %w", helper, err)
}
