// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestHealthEndpoint(t *testing.T) {
	stats := NewStats()
	srv := NewServer(":0", "1.0.0-test", stats, zap.NewNop())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var hr healthResponse
	if err := json.Unmarshal(body, &hr); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if hr.Status != "healthy" {
		t.Errorf("expected status=healthy, got %q", hr.Status)
	}
	if hr.Version != "1.0.0-test" {
		t.Errorf("expected version=1.0.0-test, got %q", hr.Version)
	}
}

func TestReadyEndpoint_Detached(t *testing.T) {
	srv := NewServer(":0", "test", NewStats(), zap.NewNop())

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	srv.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestReadyEndpoint_Attached(t *testing.T) {
	srv := NewServer(":0", "test", NewStats(), zap.NewNop())
	attached := false
	srv.Ready = func() bool { return attached }

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	srv.handleReady(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("before attach: expected 503, got %d", w.Code)
	}

	attached = true
	w = httptest.NewRecorder()
	srv.handleReady(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("after attach: expected 200, got %d", w.Code)
	}
}

func TestDevicesEndpoint(t *testing.T) {
	srv := NewServer(":0", "test", NewStats(), zap.NewNop())
	seen := time.Unix(1700000000, 0).UTC()
	srv.Devices = func() []DeviceInfo {
		return []DeviceInfo{{ID: "0x1000", RefCount: 1, FirstSeen: seen}}
	}

	req := httptest.NewRequest("GET", "/devices", nil)
	w := httptest.NewRecorder()
	srv.handleDevices(w, req)

	var got []DeviceInfo
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d devices, want 1", len(got))
	}
	if got[0].ID != "0x1000" || got[0].RefCount != 1 || !got[0].FirstSeen.Equal(seen) {
		t.Errorf("device = %+v", got[0])
	}
}

func TestDevicesEndpoint_Empty(t *testing.T) {
	srv := NewServer(":0", "test", NewStats(), zap.NewNop())

	req := httptest.NewRequest("GET", "/devices", nil)
	w := httptest.NewRecorder()
	srv.handleDevices(w, req)

	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	stats := NewStats()
	stats.FramesDispatched.Add(42)
	stats.SubscriberPanics.Add(3)
	stats.DetoursInstalled.Store(2)

	srv := NewServer(":0", "test", stats, zap.NewNop())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.handleMetrics(w, req)

	body := w.Body.String()
	for _, want := range []string{
		"framehook_frames_dispatched_total 42",
		"framehook_subscriber_panics_total 3",
		"framehook_detours_installed 2",
		"# TYPE framehook_detours_installed gauge",
		"framehook_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServerStartStop(t *testing.T) {
	stats := NewStats()
	srv := NewServer("127.0.0.1:0", "test", stats, zap.NewNop())

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
