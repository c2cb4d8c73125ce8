// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package agent wires framehook together inside the host process: the
// interception session, the attach lifecycle, the module monitor and the
// optional health, export and config-reload services.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/mbeema/framehook/pkg/config"
	"github.com/mbeema/framehook/pkg/d3d9"
	"github.com/mbeema/framehook/pkg/export"
	"github.com/mbeema/framehook/pkg/health"
	"github.com/mbeema/framehook/pkg/hook"
	"github.com/mbeema/framehook/pkg/module"
	"github.com/mbeema/framehook/pkg/offsets"
	"github.com/mbeema/framehook/pkg/reentrancy"
	"go.uber.org/zap"
)

// Options supplies the pieces the host payload owns.
type Options struct {
	// Patcher rewrites function prologues. Required.
	Patcher hook.Patcher
	// Finder locates the graphics module. Nil uses module.DefaultFinder.
	Finder module.Finder
	// Resolver produces offset tables. Nil runs the helper process as
	// configured under helper.
	Resolver hook.OffsetResolver
	// Level is adjusted on Reload when set.
	Level *zap.AtomicLevel
	// ConfigDir enables the directory watcher.
	ConfigDir string
	// Version is reported by /health and in OTLP resources.
	Version string
	// SessionOptions are appended to the session defaults.
	SessionOptions []d3d9.Option
}

// Agent owns every framehook component for one process.
type Agent struct {
	cfg    atomic.Pointer[config.Config]
	logger *zap.Logger
	opts   Options

	stats   *health.Stats
	session *d3d9.Session
	manager *hook.Manager
	monitor *module.Monitor
	meter   *export.FrameMeter

	healthServer *health.Server
	reporter     *export.Reporter
	watcher      *config.Watcher

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	stopped bool
}

// New builds an agent. Nothing is hooked until Start.
func New(cfg *config.Config, logger *zap.Logger, opts Options) (*Agent, error) {
	if opts.Patcher == nil {
		return nil, errors.New("agent: a patcher is required")
	}
	if err := reentrancy.CheckThreadID(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	if opts.Finder == nil {
		opts.Finder = module.DefaultFinder()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	a := &Agent{
		logger: logger,
		opts:   opts,
		stats:  health.NewStats(),
		meter:  export.NewFrameMeter(),
	}
	a.cfg.Store(cfg)

	sessOpts := append([]d3d9.Option{
		d3d9.WithStats(a.stats),
		d3d9.WithTrackRelease(cfg.Hooks.TrackRelease),
	}, opts.SessionOptions...)
	a.session = d3d9.NewSession(logger.Named("d3d9"), sessOpts...)

	resolver := opts.Resolver
	if resolver == nil {
		resolver = offsets.NewResolver(offsets.ResolverConfig{
			HelperPath: cfg.Helper.Path,
			MapPrefix:  cfg.Helper.MapPrefix,
			RegionDir:  cfg.Helper.RegionDir,
			Timeout:    cfg.Helper.Timeout,
		}, logger.Named("offsets"))
	}

	mgrOpts := []hook.Option{hook.WithStats(a.stats)}
	if cfg.Hooks.VerifyTargets {
		mgrOpts = append(mgrOpts, hook.WithVerifier(hook.NewDecodeVerifier(logger)))
	}
	a.manager = hook.NewManager(resolver, a.session, opts.Patcher, logger.Named("hook"), mgrOpts...)

	a.monitor = module.NewMonitor(cfg.Module.Name, opts.Finder, a.manager, cfg.Module.PollInterval, logger.Named("module"))

	return a, nil
}

// Session returns the subscriber surface.
func (a *Agent) Session() *d3d9.Session { return a.session }

// Manager returns the attach lifecycle, for payloads that receive their own
// module load notifications.
func (a *Agent) Manager() *hook.Manager { return a.manager }

// Stats returns the self-monitoring counters.
func (a *Agent) Stats() *health.Stats { return a.stats }

// Config returns the active configuration.
func (a *Agent) Config() *config.Config { return a.cfg.Load() }

// Start launches the services and attaches if the module is already loaded.
// An agent cannot be restarted after Stop.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return errors.New("agent already started")
	}
	if a.stopped {
		return errors.New("agent stopped")
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	cfg := a.cfg.Load()

	if cfg.Health.Enabled {
		if err := a.startHealth(cfg); err != nil {
			a.cancel()
			return err
		}
	}

	a.meter.Subscribe(a.session)
	a.startReporter(cfg)

	if a.opts.ConfigDir != "" {
		a.watcher = config.NewWatcher(a.opts.ConfigDir, func(newCfg *config.Config, file string) {
			if err := a.Reload(newCfg); err != nil {
				a.logger.Error("failed to apply reloaded config", zap.String("file", file), zap.Error(err))
			}
		}, a.logger.Named("config"))
		if err := a.watcher.Start(a.ctx); err != nil {
			a.logger.Warn("config watcher unavailable", zap.Error(err))
			a.watcher = nil
		}
	}

	a.monitor.Start(a.ctx)
	a.running = true

	a.logger.Info("framehook started",
		zap.String("module", cfg.Module.Name),
		zap.Stringer("state", a.manager.State()),
		zap.Bool("track_release", cfg.Hooks.TrackRelease),
	)
	return nil
}

// Stop detaches and shuts every service down.
func (a *Agent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false
	a.stopped = true

	// Cancel first so a helper still running for an attach is killed and the
	// monitor loop can exit.
	a.cancel()
	a.monitor.Stop()
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}

	// The module is still mapped, so original bytes go back.
	err := a.manager.OnModuleUnload(true)

	a.meter.Unsubscribe(a.session)
	a.stopReporter()
	if a.healthServer != nil {
		a.healthServer.Stop()
		a.healthServer = nil
	}

	snap := a.stats.Snapshot()
	a.logger.Info("framehook stopped",
		zap.Int64("frames", snap.FramesDispatched),
		zap.Int64("resets", snap.ResetsDispatched),
		zap.Int64("attach_failures", snap.AttachFailures),
		zap.Int64("subscriber_panics", snap.SubscriberPanics),
	)
	if err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	return nil
}

// Reload applies a new configuration. Log level, health and exporters change
// immediately; module, helper and hook settings apply on the next attach.
func (a *Agent) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	old := a.cfg.Swap(cfg)

	if a.opts.Level != nil {
		a.opts.Level.SetLevel(ParseLevel(cfg.LogLevel))
	}
	if !a.running {
		return nil
	}

	if old.Health != cfg.Health {
		if a.healthServer != nil {
			a.healthServer.Stop()
			a.healthServer = nil
		}
		if cfg.Health.Enabled {
			if err := a.startHealth(cfg); err != nil {
				return err
			}
		}
	}

	if !reflect.DeepEqual(old.Exporters, cfg.Exporters) || old.ServiceName != cfg.ServiceName {
		a.stopReporter()
		a.startReporter(cfg)
	}

	if old.Module != cfg.Module || old.Helper != cfg.Helper || old.Hooks != cfg.Hooks {
		a.logger.Info("module, helper and hook settings take effect on the next attach")
	}

	a.logger.Info("configuration reloaded",
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("health", cfg.Health.Enabled),
		zap.Int("exporters", a.exporterCount()),
	)
	return nil
}

func (a *Agent) exporterCount() int {
	if a.reporter == nil {
		return 0
	}
	return a.reporter.Exporters()
}

func (a *Agent) startHealth(cfg *config.Config) error {
	srv := health.NewServer(cfg.Health.Port, a.opts.Version, a.stats, a.logger.Named("health"))
	srv.Ready = func() bool { return a.manager.State() == hook.Attached }
	srv.Devices = a.devices
	if err := srv.Start(a.ctx); err != nil {
		return fmt.Errorf("start health server: %w", err)
	}
	a.healthServer = srv
	return nil
}

func (a *Agent) devices() []health.DeviceInfo {
	entries := a.session.Devices()
	out := make([]health.DeviceInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, health.DeviceInfo{
			ID:        fmt.Sprintf("%#x", e.ID),
			RefCount:  e.RefCount,
			FirstSeen: e.FirstSeen,
		})
	}
	return out
}

func (a *Agent) startReporter(cfg *config.Config) {
	res := export.Resource{ServiceName: cfg.ServiceName, ServiceVersion: a.opts.Version}
	collectors := export.Collectors{a.meter, export.NewProcessCollector(os.Getpid(), a.logger)}
	r := export.NewReporterFromConfig(&cfg.Exporters, res, collectors, a.logger.Named("export"))
	if r.Exporters() == 0 {
		return
	}
	r.Start(a.ctx)
	a.reporter = r
}

func (a *Agent) stopReporter() {
	if a.reporter != nil {
		a.reporter.Stop()
		a.reporter = nil
	}
}
