// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mbeema/framehook/pkg/d3d9"
)

// Metric names produced by FrameMeter.
const (
	MetricFrames = "framehook.frames"
	MetricResets = "framehook.resets"
	MetricFPS    = "framehook.fps"
)

type deviceCounts struct {
	frames     uint64
	resets     uint64
	firstSeen  time.Time
	lastFrames uint64
	lastAt     time.Time
}

// FrameMeter counts frames and resets per device. Its callbacks run on the
// host's render thread, so they only bump counters under a short lock.
type FrameMeter struct {
	now func() time.Time

	mu      sync.Mutex
	devices map[uintptr]*deviceCounts

	frameID, resetID, releaseID uint64
}

// NewFrameMeter creates an empty meter.
func NewFrameMeter() *FrameMeter {
	return &FrameMeter{
		now:     time.Now,
		devices: make(map[uintptr]*deviceCounts),
	}
}

// Subscribe registers the meter's callbacks with s.
func (m *FrameMeter) Subscribe(s *d3d9.Session) {
	m.frameID = s.RegisterOnFrame(m.OnFrame)
	m.resetID = s.RegisterOnReset(m.OnReset)
	m.releaseID = s.RegisterOnRelease(m.OnRelease)
}

// Unsubscribe removes the callbacks added by Subscribe.
func (m *FrameMeter) Unsubscribe(s *d3d9.Session) {
	s.UnregisterOnFrame(m.frameID)
	s.UnregisterOnReset(m.resetID)
	s.UnregisterOnRelease(m.releaseID)
}

func (m *FrameMeter) device(dev uintptr) *deviceCounts {
	d, ok := m.devices[dev]
	if !ok {
		now := m.now()
		d = &deviceCounts{firstSeen: now, lastAt: now}
		m.devices[dev] = d
	}
	return d
}

// OnFrame is a d3d9.FrameFunc.
func (m *FrameMeter) OnFrame(dev uintptr) {
	m.mu.Lock()
	m.device(dev).frames++
	m.mu.Unlock()
}

// OnReset is a d3d9.ResetFunc.
func (m *FrameMeter) OnReset(dev uintptr, _ *d3d9.PresentParameters) {
	m.mu.Lock()
	m.device(dev).resets++
	m.mu.Unlock()
}

// OnRelease is a d3d9.ReleaseFunc. The device's series stop being reported.
func (m *FrameMeter) OnRelease(dev uintptr) {
	m.mu.Lock()
	delete(m.devices, dev)
	m.mu.Unlock()
}

// Collect returns cumulative frame and reset counters and the frame rate
// since the previous Collect, one set per device ordered by address.
func (m *FrameMeter) Collect() []*Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ids := make([]uintptr, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*Metric, 0, 3*len(ids))
	for _, id := range ids {
		d := m.devices[id]
		labels := map[string]string{"device": fmt.Sprintf("%#x", id)}

		fps := 0.0
		if elapsed := now.Sub(d.lastAt).Seconds(); elapsed > 0 {
			fps = float64(d.frames-d.lastFrames) / elapsed
		}
		d.lastFrames = d.frames
		d.lastAt = now

		out = append(out,
			&Metric{
				Name:        MetricFrames,
				Description: "Frames presented",
				Unit:        "{frame}",
				Type:        MetricCounter,
				Value:       float64(d.frames),
				StartTime:   d.firstSeen,
				Timestamp:   now,
				Labels:      labels,
			},
			&Metric{
				Name:        MetricResets,
				Description: "Device resets",
				Unit:        "{reset}",
				Type:        MetricCounter,
				Value:       float64(d.resets),
				StartTime:   d.firstSeen,
				Timestamp:   now,
				Labels:      labels,
			},
			&Metric{
				Name:        MetricFPS,
				Description: "Frames per second since the previous report",
				Unit:        "{frame}/s",
				Type:        MetricGauge,
				Value:       fps,
				Timestamp:   now,
				Labels:      labels,
			},
		)
	}
	return out
}
