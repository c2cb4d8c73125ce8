// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package offsets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/mbeema/framehook/pkg/module"
	"go.uber.org/zap"
)

// TestMain lets the test binary double as the helper process.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		os.Exit(fakeHelper())
	}
	os.Exit(m.Run())
}

func fakeHelper() int {
	pid, err := strconv.Atoi(os.Args[len(os.Args)-1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad pid:", err)
		return 2
	}

	switch os.Getenv("FAKE_HELPER_MODE") {
	case "fail":
		return 3
	case "hang":
		time.Sleep(time.Minute)
		return 0
	case "silent":
		return 0
	}

	tbl := &Table{Present: 0x100, Reset: 0x200}
	name := RegionName(os.Getenv(EnvMapPrefix), pid)
	if err := Publish(os.Getenv(EnvRegionDir), name, tbl); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newTestResolver(t *testing.T, mode string, timeout time.Duration) *Resolver {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	return NewResolver(ResolverConfig{
		HelperPath: exe,
		MapPrefix:  "framehook-test-" + mode + "-",
		RegionDir:  t.TempDir(),
		Timeout:    timeout,
		Env:        []string{"GO_WANT_HELPER_PROCESS=1", "FAKE_HELPER_MODE=" + mode},
	}, zap.NewNop())
}

func TestResolveSuccess(t *testing.T) {
	r := newTestResolver(t, "ok", 0)

	tbl, err := r.Resolve(context.Background(), module.Handle{Base: 0x10000000, Size: 0x100000})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tbl.Present != 0x100 {
		t.Errorf("Present = %#x, want 0x100", tbl.Present)
	}
	if tbl.Reset != 0x200 {
		t.Errorf("Reset = %#x, want 0x200", tbl.Reset)
	}
	if tbl.EndScene != 0 {
		t.Errorf("EndScene = %#x, want 0", tbl.EndScene)
	}
}

func TestResolveNonZeroExit(t *testing.T) {
	r := newTestResolver(t, "fail", 0)

	_, err := r.Resolve(context.Background(), module.Handle{Base: 0x10000000})
	if !errors.Is(err, ErrHelperFailed) {
		t.Fatalf("err = %v, want ErrHelperFailed", err)
	}
}

func TestResolveEmptyRegion(t *testing.T) {
	r := newTestResolver(t, "silent", 0)

	// Exit code 0 alone is not success; the table must be filled in.
	_, err := r.Resolve(context.Background(), module.Handle{Base: 0x10000000})
	if !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("err = %v, want ErrEmptyTable", err)
	}
}

func TestResolveOffsetsOutsideModule(t *testing.T) {
	r := newTestResolver(t, "ok", 0)

	_, err := r.Resolve(context.Background(), module.Handle{Base: 0x10000000, Size: 0x150})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}

func TestResolveTimeout(t *testing.T) {
	r := newTestResolver(t, "hang", 200*time.Millisecond)

	start := time.Now()
	_, err := r.Resolve(context.Background(), module.Handle{Base: 0x10000000})
	if !errors.Is(err, ErrHelperTimeout) {
		t.Fatalf("err = %v, want ErrHelperTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 30*time.Second {
		t.Errorf("Resolve took %s after timeout", elapsed)
	}
}

func TestResolveMissingHelper(t *testing.T) {
	r := NewResolver(ResolverConfig{
		HelperPath: "/nonexistent/framehook-helper",
		RegionDir:  t.TempDir(),
	}, zap.NewNop())

	if _, err := r.Resolve(context.Background(), module.Handle{Base: 0x10000000}); err == nil {
		t.Fatal("expected error for missing helper")
	}
}
