// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mbeema/framehook/pkg/config"
	"github.com/mbeema/framehook/pkg/d3d9"
	"github.com/mbeema/framehook/pkg/hook"
	"github.com/mbeema/framehook/pkg/hook/hooktest"
	"github.com/mbeema/framehook/pkg/module"
	"github.com/mbeema/framehook/pkg/offsets"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var testModule = module.Handle{Base: 0x10000000, Size: 0x100000}

type staticResolver struct {
	table *offsets.Table
	err   error
	calls int
}

func (r *staticResolver) Resolve(context.Context, module.Handle) (*offsets.Table, error) {
	r.calls++
	return r.table, r.err
}

func testTable() *offsets.Table {
	t := &offsets.Table{}
	t.SetOffset(offsets.Present, 0x100)
	t.SetOffset(offsets.Reset, 0x200)
	return t
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Hooks.VerifyTargets = false
	cfg.Module.PollInterval = time.Hour
	return cfg
}

func fakeCallbacks() d3d9.Option {
	var next uintptr
	return d3d9.WithCallbackFactory(func(any) uintptr {
		next += 0x10
		return 0xC0DE0000 + next
	})
}

func newTestAgent(t *testing.T, cfg *config.Config, res *staticResolver, p *hooktest.Patcher, opts Options) *Agent {
	t.Helper()
	opts.Patcher = p
	opts.Resolver = res
	opts.Finder = module.FinderFunc(func(string) (module.Handle, bool) { return testModule, true })
	opts.SessionOptions = append(opts.SessionOptions, fakeCallbacks())

	a, err := New(cfg, zap.NewNop(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewRequiresPatcher(t *testing.T) {
	if _, err := New(testConfig(), zap.NewNop(), Options{}); err == nil {
		t.Fatal("expected error without a patcher")
	}
}

func TestStartAttachesAndStopDetaches(t *testing.T) {
	p := hooktest.NewPatcher()
	p.Original = func(...uintptr) uintptr { return 0 }
	res := &staticResolver{table: testTable()}
	a := newTestAgent(t, testConfig(), res, p, Options{})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := a.Manager().State(); got != hook.Attached {
		t.Fatalf("state = %v, want attached", got)
	}
	if got := p.Live(); got != 2 {
		t.Errorf("live detours = %d, want 2", got)
	}
	if !p.Installed(testModule.Base + 0x100) {
		t.Error("Present detour not installed at base+0x100")
	}

	frames := 0
	a.Session().RegisterOnFrame(func(uintptr) { frames++ })
	if ret := a.Session().Present(0xD3D90000, 0, 0, 0, 0); ret != d3d9.D3D_OK {
		t.Errorf("Present = %#x, want D3D_OK", ret)
	}
	if frames != 1 {
		t.Errorf("frames = %d, want 1", frames)
	}
	if got := a.Stats().Snapshot().FramesDispatched; got != 1 {
		t.Errorf("FramesDispatched = %d, want 1", got)
	}

	if err := a.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := a.Manager().State(); got != hook.Detached {
		t.Errorf("state after Stop = %v, want detached", got)
	}
	if got := p.Live(); got != 0 {
		t.Errorf("live detours after Stop = %d, want 0", got)
	}
	for _, rc := range p.Removed() {
		if !rc.Unpatch {
			t.Errorf("remove of %#x did not unpatch", rc.Target)
		}
	}

	// Stop is idempotent.
	if err := a.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestStartWithResolveFailureStaysDetached(t *testing.T) {
	p := hooktest.NewPatcher()
	res := &staticResolver{err: errors.New("helper missing")}
	a := newTestAgent(t, testConfig(), res, p, Options{})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	if got := a.Manager().State(); got != hook.Detached {
		t.Errorf("state = %v, want detached", got)
	}
	if got := a.Stats().Snapshot().AttachFailures; got != 1 {
		t.Errorf("AttachFailures = %d, want 1", got)
	}
	if res.calls != 1 {
		t.Errorf("resolver calls = %d, want 1", res.calls)
	}
}

func TestTrackReleaseFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Hooks.TrackRelease = true

	table := testTable()
	table.SetOffset(offsets.AddRef, 0x300)
	table.SetOffset(offsets.Release, 0x400)

	p := hooktest.NewPatcher()
	a := newTestAgent(t, cfg, &staticResolver{table: table}, p, Options{})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	if got := p.Live(); got != 4 {
		t.Errorf("live detours = %d, want 4", got)
	}
}

func TestReloadUpdatesLevel(t *testing.T) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	p := hooktest.NewPatcher()
	a := newTestAgent(t, testConfig(), &staticResolver{table: testTable()}, p, Options{Level: &level})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	next := testConfig()
	next.LogLevel = "debug"
	if err := a.Reload(next); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if level.Level() != zapcore.DebugLevel {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if a.Config() != next {
		t.Error("Config did not return the reloaded config")
	}
	// Hooks stay in place across reloads.
	if got := a.Manager().State(); got != hook.Attached {
		t.Errorf("state = %v, want attached", got)
	}
}

func TestReloadRejectsInvalid(t *testing.T) {
	p := hooktest.NewPatcher()
	cfg := testConfig()
	a := newTestAgent(t, cfg, &staticResolver{table: testTable()}, p, Options{})

	bad := testConfig()
	bad.Module.Name = ""
	if err := a.Reload(bad); err == nil {
		t.Fatal("expected validation error")
	}
	if a.Config() != cfg {
		t.Error("invalid config replaced the active one")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStartAfterStop(t *testing.T) {
	p := hooktest.NewPatcher()
	a := newTestAgent(t, testConfig(), &staticResolver{table: testTable()}, p, Options{})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := a.Start(context.Background()); err == nil {
		t.Fatal("Start after Stop should fail")
	}
}

// blockingResolver waits for its context, like a helper that never exits.
type blockingResolver struct {
	entered chan struct{}
}

func (r *blockingResolver) Resolve(ctx context.Context, _ module.Handle) (*offsets.Table, error) {
	close(r.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStopCancelsPendingResolve(t *testing.T) {
	cfg := testConfig()
	cfg.Module.PollInterval = 10 * time.Millisecond

	// The module shows up after Start, so the attach runs on the monitor loop.
	var polls atomic.Int32
	finder := module.FinderFunc(func(string) (module.Handle, bool) {
		return testModule, polls.Add(1) > 1
	})
	res := &blockingResolver{entered: make(chan struct{})}

	a, err := New(cfg, zap.NewNop(), Options{
		Patcher:        hooktest.NewPatcher(),
		Finder:         finder,
		Resolver:       res,
		SessionOptions: []d3d9.Option{fakeCallbacks()},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-res.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("resolver never called")
	}

	done := make(chan error, 1)
	go func() { done <- a.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked on a pending resolve")
	}
	if got := a.Manager().State(); got != hook.Detached {
		t.Errorf("state = %v, want detached", got)
	}
}
