// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package d3d9 implements the intercepted IDirect3DDevice9 entry points and
// the subscriber surface they feed.
//
// A Session owns the callback brokers, the device registry and the
// reentrancy counters. Its entry points run on host threads, inside native
// calls, and never return an error or panic to the host: whatever the
// original function returns is handed back unchanged.
package d3d9

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
	"github.com/mbeema/framehook/pkg/callbacks"
	"github.com/mbeema/framehook/pkg/device"
	"github.com/mbeema/framehook/pkg/health"
	"github.com/mbeema/framehook/pkg/hook"
	"github.com/mbeema/framehook/pkg/lasterror"
	"github.com/mbeema/framehook/pkg/offsets"
	"github.com/mbeema/framehook/pkg/reentrancy"
	"go.uber.org/zap"
)

// CallbackFactory turns a Go function into a native function pointer.
type CallbackFactory func(fn any) uintptr

type binding struct {
	detour hook.Detour
}

// Session is one interception context for a D3D9 module.
type Session struct {
	logger *zap.Logger
	stats  *health.Stats

	frames   *callbacks.Broker[FrameFunc]
	resets   *callbacks.Broker[ResetFunc]
	releases *callbacks.Broker[ReleaseFunc]

	registry *device.Registry
	guard    *reentrancy.Counters
	lastErr  lasterror.Source
	devices  DeviceResolver

	trackRelease bool
	threadID     func() uint64

	bound [len(offsets.Funcs)]atomic.Pointer[binding]

	cbMu        sync.Mutex
	newCallback CallbackFactory
	natives     [len(offsets.Funcs)]uintptr
}

// Option configures a Session.
type Option func(*Session)

// WithStats reports dispatch counters to s.
func WithStats(s *health.Stats) Option {
	return func(sess *Session) { sess.stats = s }
}

// WithLastError overrides the thread error source.
func WithLastError(src lasterror.Source) Option {
	return func(sess *Session) { sess.lastErr = src }
}

// WithDeviceResolver overrides how swap chains are mapped to devices.
func WithDeviceResolver(r DeviceResolver) Option {
	return func(sess *Session) { sess.devices = r }
}

// WithThreadID overrides the thread identity used by the reentrancy guard.
func WithThreadID(fn func() uint64) Option {
	return func(sess *Session) { sess.threadID = fn }
}

// WithTrackRelease also intercepts AddRef and Release so released devices
// leave the registry and fire release subscribers.
func WithTrackRelease(on bool) Option {
	return func(sess *Session) { sess.trackRelease = on }
}

// WithCallbackFactory overrides how native entry points are created.
func WithCallbackFactory(f CallbackFactory) Option {
	return func(sess *Session) { sess.newCallback = f }
}

// NewSession creates a session with empty brokers and registry.
func NewSession(logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		logger:      logger,
		registry:    device.NewRegistry(),
		lastErr:     lasterror.Platform(),
		devices:     COMDeviceResolver{},
		newCallback: purego.NewCallback,
	}
	for _, o := range opts {
		o(s)
	}
	s.guard = reentrancy.NewCounters(s.threadID)

	s.frames = callbacks.NewBroker[FrameFunc]("frame", logger)
	s.resets = callbacks.NewBroker[ResetFunc]("reset", logger)
	s.releases = callbacks.NewBroker[ReleaseFunc]("release", logger)
	onPanic := func(uint64, any) {
		if s.stats != nil {
			s.stats.SubscriberPanics.Add(1)
		}
	}
	s.frames.OnPanic = onPanic
	s.resets.OnPanic = onPanic
	s.releases.OnPanic = onPanic
	return s
}

func (s *Session) RegisterOnFrame(fn FrameFunc) uint64 { return s.frames.Register(fn) }
func (s *Session) UnregisterOnFrame(id uint64)          { s.frames.Unregister(id) }

func (s *Session) RegisterOnReset(fn ResetFunc) uint64 { return s.resets.Register(fn) }
func (s *Session) UnregisterOnReset(id uint64)         { s.resets.Unregister(id) }

func (s *Session) RegisterOnRelease(fn ReleaseFunc) uint64 { return s.releases.Register(fn) }
func (s *Session) UnregisterOnRelease(id uint64)           { s.releases.Unregister(id) }

// Devices returns the tracked devices ordered by address.
func (s *Session) Devices() []device.Entry {
	return s.registry.Snapshot()
}

// Targets lists the detours for t. AddRef and Release are only included when
// release tracking is on. Native entry points are created once per session.
func (s *Session) Targets(t *offsets.Table) []hook.Target {
	var out []hook.Target
	for _, f := range offsets.Funcs {
		if (f == offsets.AddRef || f == offsets.Release) && !s.trackRelease {
			continue
		}
		f := f
		out = append(out, hook.Target{
			Name:   f.String(),
			Offset: t.Offset(f),
			Detour: s.native(f),
			Bind:   func(d hook.Detour) { s.bind(f, d) },
		})
	}
	return out
}

func (s *Session) native(f offsets.Func) uintptr {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	if s.natives[f] == 0 {
		s.natives[f] = s.newCallback(s.entryPoint(f))
	}
	return s.natives[f]
}

func (s *Session) entryPoint(f offsets.Func) any {
	switch f {
	case offsets.AddRef:
		return s.AddRef
	case offsets.Release:
		return s.Release
	case offsets.Present:
		return s.Present
	case offsets.Reset:
		return s.Reset
	case offsets.EndScene:
		return s.EndScene
	case offsets.PresentEx:
		return s.PresentEx
	case offsets.ResetEx:
		return s.ResetEx
	case offsets.SwapChainPresent:
		return s.SwapChainPresent
	default:
		panic(fmt.Sprintf("d3d9: no entry point for %v", f))
	}
}

// bind publishes the trampoline for f. nil unbinds.
func (s *Session) bind(f offsets.Func, d hook.Detour) {
	if d == nil {
		s.bound[f].Store(nil)
		return
	}
	s.bound[f].Store(&binding{detour: d})
}
