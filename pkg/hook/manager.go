// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package hook installs and removes the detours for one graphics module and
// tracks whether the module is currently intercepted.
package hook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mbeema/framehook/pkg/health"
	"github.com/mbeema/framehook/pkg/module"
	"github.com/mbeema/framehook/pkg/offsets"
	"go.uber.org/zap"
)

var (
	ErrResolve = errors.New("resolve offsets")
	ErrInstall = errors.New("install detour")
)

// State is the lifecycle state of a Manager.
type State int32

const (
	Detached State = iota
	Attaching
	Attached
	Detaching
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Attaching:
		return "attaching"
	case Attached:
		return "attached"
	case Detaching:
		return "detaching"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// OffsetResolver produces the offset table for a freshly loaded module.
type OffsetResolver interface {
	Resolve(ctx context.Context, base module.Handle) (*offsets.Table, error)
}

// Target is one function to intercept.
type Target struct {
	Name   string
	Offset uint64  // relative to the module base; zero is skipped
	Detour uintptr // native entry point that replaces the target
	// Bind publishes the trampoline to the entry point. It is called with nil
	// when the detour goes away.
	Bind func(Detour)
}

// TargetSource maps an offset table to the targets to intercept.
type TargetSource interface {
	Targets(t *offsets.Table) []Target
}

type installed struct {
	target Target
	detour Detour
}

// Manager drives the attach/detach lifecycle for one module.
type Manager struct {
	resolver OffsetResolver
	targets  TargetSource
	patcher  Patcher
	verify   Verifier
	stats    *health.Stats
	logger   *zap.Logger

	state atomic.Int32

	mu      sync.Mutex
	handle  module.Handle
	detours []installed
}

// Option configures a Manager.
type Option func(*Manager)

// WithStats reports attach attempts and detour counts to s.
func WithStats(s *health.Stats) Option {
	return func(m *Manager) { m.stats = s }
}

// WithVerifier checks every target address before it is patched.
func WithVerifier(v Verifier) Option {
	return func(m *Manager) { m.verify = v }
}

// NewManager creates a manager in the Detached state.
func NewManager(resolver OffsetResolver, targets TargetSource, patcher Patcher, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		resolver: resolver,
		targets:  targets,
		patcher:  patcher,
		logger:   logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Module returns the attached module, or the zero Handle.
func (m *Manager) Module() module.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Installed returns the number of live detours.
func (m *Manager) Installed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.detours)
}

// OnModuleLoad attaches to the module at h. It is a no-op unless the manager
// is Detached. Either every non-zero target is intercepted or none is.
func (m *Manager) OnModuleLoad(ctx context.Context, h module.Handle) error {
	if !m.state.CompareAndSwap(int32(Detached), int32(Attaching)) {
		m.logger.Debug("module load ignored", zap.Stringer("state", m.State()))
		return nil
	}
	if m.stats != nil {
		m.stats.AttachAttempts.Add(1)
	}

	pending, err := m.attach(ctx, h)
	if err != nil {
		m.rollback(pending)
		if m.stats != nil {
			m.stats.AttachFailures.Add(1)
		}
		m.state.Store(int32(Detached))
		m.logger.Error("attach failed", zap.Stringer("module", h), zap.Error(err))
		return err
	}

	m.mu.Lock()
	m.handle = h
	m.detours = pending
	m.mu.Unlock()
	if m.stats != nil {
		m.stats.DetoursInstalled.Store(int64(len(pending)))
	}
	m.state.Store(int32(Attached))

	m.logger.Info("module attached",
		zap.Stringer("module", h),
		zap.Int("detours", len(pending)),
	)
	return nil
}

func (m *Manager) attach(ctx context.Context, h module.Handle) ([]installed, error) {
	table, err := m.resolver.Resolve(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolve, err)
	}

	var pending []installed
	for _, t := range m.targets.Targets(table) {
		if t.Offset == 0 {
			m.logger.Debug("target not resolved, skipping", zap.String("target", t.Name))
			continue
		}
		addr := h.Base + uintptr(t.Offset)
		if m.verify != nil {
			if err := m.verify(addr); err != nil {
				return pending, fmt.Errorf("%w: %s at %#x: %w", ErrInstall, t.Name, addr, err)
			}
		}
		d, err := m.patcher.Prepare(addr, t.Detour)
		if err != nil {
			return pending, fmt.Errorf("%w: %s at %#x: %w", ErrInstall, t.Name, addr, err)
		}
		// The trampoline must be reachable before the first redirected call.
		if t.Bind != nil {
			t.Bind(d)
		}
		if err := m.patcher.Enable(d); err != nil {
			if t.Bind != nil {
				t.Bind(nil)
			}
			if rerr := m.patcher.Remove(d, false); rerr != nil {
				m.logger.Warn("discard prepared detour", zap.String("target", t.Name), zap.Error(rerr))
			}
			return pending, fmt.Errorf("%w: %s at %#x: %w", ErrInstall, t.Name, addr, err)
		}
		pending = append(pending, installed{target: t, detour: d})
		m.logger.Debug("detour installed",
			zap.String("target", t.Name),
			zap.String("addr", fmt.Sprintf("%#x", addr)),
		)
	}
	return pending, nil
}

// rollback tears down detours from a failed attach. The module is still
// mapped, so original bytes are restored.
func (m *Manager) rollback(pending []installed) {
	if err := m.teardown(pending, true); err != nil {
		m.logger.Warn("rollback incomplete", zap.Error(err))
	}
}

// OnModuleUnload detaches. remove=false means the module is already gone and
// its memory must not be written.
func (m *Manager) OnModuleUnload(remove bool) error {
	if !m.state.CompareAndSwap(int32(Attached), int32(Detaching)) {
		m.logger.Debug("module unload ignored", zap.Stringer("state", m.State()))
		return nil
	}

	m.mu.Lock()
	detours := m.detours
	h := m.handle
	m.detours = nil
	m.handle = module.Handle{}
	m.mu.Unlock()

	err := m.teardown(detours, remove)
	if m.stats != nil {
		m.stats.DetoursInstalled.Store(0)
	}
	m.state.Store(int32(Detached))

	m.logger.Info("module detached",
		zap.Stringer("module", h),
		zap.Bool("unpatched", remove),
		zap.Int("detours", len(detours)),
	)
	return err
}

// teardown removes detours in reverse install order. The trampoline is
// unbound only after the detour is gone so in-flight calls can finish.
func (m *Manager) teardown(detours []installed, remove bool) error {
	var errs []error
	for i := len(detours) - 1; i >= 0; i-- {
		in := detours[i]
		if err := m.patcher.Remove(in.detour, remove); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", in.target.Name, err))
		}
		if in.target.Bind != nil {
			in.target.Bind(nil)
		}
	}
	return errors.Join(errs...)
}
