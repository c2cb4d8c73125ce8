// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"testing"
	"time"

	"github.com/mbeema/framehook/pkg/d3d9"
	"go.uber.org/zap"
)

func byName(metrics []*Metric, name, device string) *Metric {
	for _, m := range metrics {
		if m.Name == name && m.Labels["device"] == device {
			return m
		}
	}
	return nil
}

func TestFrameMeterCollect(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewFrameMeter()
	m.now = clk.now

	for i := 0; i < 120; i++ {
		m.OnFrame(0x1000)
	}
	m.OnReset(0x1000, &d3d9.PresentParameters{})
	m.OnFrame(0x2000)

	clk.advance(2 * time.Second)
	metrics := m.Collect()
	if len(metrics) != 6 {
		t.Fatalf("got %d metrics, want 6", len(metrics))
	}

	frames := byName(metrics, MetricFrames, "0x1000")
	if frames == nil || frames.Value != 120 || frames.Type != MetricCounter {
		t.Fatalf("frames = %+v", frames)
	}
	if resets := byName(metrics, MetricResets, "0x1000"); resets == nil || resets.Value != 1 {
		t.Errorf("resets = %+v", resets)
	}
	if fps := byName(metrics, MetricFPS, "0x1000"); fps == nil || fps.Value != 60 {
		t.Errorf("fps = %+v, want 60", fps)
	}

	// Second window: counters stay cumulative, fps covers only the window.
	for i := 0; i < 30; i++ {
		m.OnFrame(0x1000)
	}
	clk.advance(time.Second)
	metrics = m.Collect()
	if frames := byName(metrics, MetricFrames, "0x1000"); frames.Value != 150 {
		t.Errorf("cumulative frames = %v, want 150", frames.Value)
	}
	if fps := byName(metrics, MetricFPS, "0x1000"); fps.Value != 30 {
		t.Errorf("fps = %v, want 30", fps.Value)
	}
}

func TestFrameMeterRelease(t *testing.T) {
	m := NewFrameMeter()
	m.OnFrame(0x1000)
	m.OnRelease(0x1000)

	if got := len(m.Collect()); got != 0 {
		t.Errorf("got %d metrics after release, want 0", got)
	}
}

func TestFrameMeterSubscribe(t *testing.T) {
	s := d3d9.NewSession(zap.NewNop())
	m := NewFrameMeter()

	m.Subscribe(s)
	if m.frameID == 0 || m.resetID == 0 || m.releaseID == 0 {
		t.Fatalf("ids = %d %d %d, want non-zero", m.frameID, m.resetID, m.releaseID)
	}
	m.Unsubscribe(s)
}
