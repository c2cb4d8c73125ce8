// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package module

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Listener receives load/unload transitions for one module.
type Listener interface {
	OnModuleLoad(ctx context.Context, h Handle) error
	OnModuleUnload(remove bool) error
}

// Monitor polls a Finder and reports transitions of one module to a Listener.
// A module that is already loaded when Start is called is reported at once.
type Monitor struct {
	name     string
	finder   Finder
	listener Listener
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	current Handle

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewMonitor creates a monitor for the named module.
func NewMonitor(name string, finder Finder, listener Listener, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{
		name:     name,
		finder:   finder,
		listener: listener,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start performs an initial check and begins polling.
func (m *Monitor) Start(ctx context.Context) {
	m.Poll(ctx)

	m.wg.Add(1)
	go m.loop(ctx)

	m.logger.Info("module monitor started",
		zap.String("module", m.name),
		zap.Duration("interval", m.interval),
	)
}

// Stop ends polling. It does not detach; the owner decides that.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll checks the module once and notifies the listener of any transition.
func (m *Monitor) Poll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.finder.FindLoaded(m.name)
	if !ok {
		h = Handle{}
	}
	if h == m.current {
		return
	}

	if !m.current.IsZero() {
		m.logger.Info("module unloaded", zap.String("module", m.name), zap.Stringer("handle", m.current))
		// The image is already gone, so detours are dropped without unpatching.
		if err := m.listener.OnModuleUnload(false); err != nil {
			m.logger.Warn("module unload handling failed", zap.String("module", m.name), zap.Error(err))
		}
		m.current = Handle{}
	}

	if h.IsZero() {
		return
	}

	m.logger.Info("module loaded", zap.String("module", m.name), zap.Stringer("handle", h))
	m.current = h
	if err := m.listener.OnModuleLoad(ctx, h); err != nil {
		// Non-fatal: the module runs un-intercepted.
		m.logger.Warn("module attach failed", zap.String("module", m.name), zap.Error(err))
	}
}
