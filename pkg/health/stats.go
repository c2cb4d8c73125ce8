// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package health

import (
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

// Stats tracks self-monitoring counters for the interception layer.
type Stats struct {
	startTime time.Time

	FramesDispatched   atomic.Int64
	ResetsDispatched   atomic.Int64
	ReleasesDispatched atomic.Int64
	NestedCalls        atomic.Int64
	SideEffectFailures atomic.Int64
	SubscriberPanics   atomic.Int64
	AttachAttempts     atomic.Int64
	AttachFailures     atomic.Int64
	DetoursInstalled   atomic.Int64
	DevicesTracked     atomic.Int64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		startTime: time.Now(),
	}
}

// Uptime returns time since NewStats.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds      float64
	Goroutines         int
	MemorySysBytes     uint64
	FramesDispatched   int64
	ResetsDispatched   int64
	ReleasesDispatched int64
	NestedCalls        int64
	SideEffectFailures int64
	SubscriberPanics   int64
	AttachAttempts     int64
	AttachFailures     int64
	DetoursInstalled   int64
	DevicesTracked     int64
}

// Snapshot returns current stats.
func (s *Stats) Snapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Snapshot{
		UptimeSeconds:      s.Uptime().Seconds(),
		Goroutines:         runtime.NumGoroutine(),
		MemorySysBytes:     memStats.Sys,
		FramesDispatched:   s.FramesDispatched.Load(),
		ResetsDispatched:   s.ResetsDispatched.Load(),
		ReleasesDispatched: s.ReleasesDispatched.Load(),
		NestedCalls:        s.NestedCalls.Load(),
		SideEffectFailures: s.SideEffectFailures.Load(),
		SubscriberPanics:   s.SubscriberPanics.Load(),
		AttachAttempts:     s.AttachAttempts.Load(),
		AttachFailures:     s.AttachFailures.Load(),
		DetoursInstalled:   s.DetoursInstalled.Load(),
		DevicesTracked:     s.DevicesTracked.Load(),
	}
}

// PrometheusMetrics returns stats in Prometheus text exposition format.
func (s *Stats) PrometheusMetrics() string {
	return prometheusFormat(s.Snapshot())
}

func prometheusFormat(snap Snapshot) string {
	var b []byte
	b = appendMetric(b, "framehook_uptime_seconds", "gauge", "Time since the interception layer started", snap.UptimeSeconds)
	b = appendMetric(b, "framehook_goroutines", "gauge", "Number of goroutines", float64(snap.Goroutines))
	b = appendMetric(b, "framehook_memory_sys_bytes", "gauge", "Memory obtained from the OS by the Go runtime", float64(snap.MemorySysBytes))
	b = appendMetric(b, "framehook_frames_dispatched_total", "counter", "Outermost frame events delivered to subscribers", float64(snap.FramesDispatched))
	b = appendMetric(b, "framehook_resets_dispatched_total", "counter", "Outermost reset events delivered to subscribers", float64(snap.ResetsDispatched))
	b = appendMetric(b, "framehook_releases_dispatched_total", "counter", "Device release events delivered to subscribers", float64(snap.ReleasesDispatched))
	b = appendMetric(b, "framehook_nested_calls_total", "counter", "Intercepted calls forwarded without side effects because they were nested", float64(snap.NestedCalls))
	b = appendMetric(b, "framehook_side_effect_failures_total", "counter", "Intercepted calls whose side effects were skipped after a failure", float64(snap.SideEffectFailures))
	b = appendMetric(b, "framehook_subscriber_panics_total", "counter", "Subscriber callbacks that panicked", float64(snap.SubscriberPanics))
	b = appendMetric(b, "framehook_attach_attempts_total", "counter", "Module attach attempts", float64(snap.AttachAttempts))
	b = appendMetric(b, "framehook_attach_failures_total", "counter", "Module attach attempts that failed", float64(snap.AttachFailures))
	b = appendMetric(b, "framehook_detours_installed", "gauge", "Detours currently installed", float64(snap.DetoursInstalled))
	b = appendMetric(b, "framehook_devices_tracked", "gauge", "Devices currently in the registry", float64(snap.DevicesTracked))
	return string(b)
}

func appendMetric(b []byte, name, typ, help string, value float64) []byte {
	b = append(b, "# HELP "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, help...)
	b = append(b, '\n')
	b = append(b, "# TYPE "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, typ...)
	b = append(b, '\n')
	b = append(b, name...)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, value, 'f', -1, 64)
	b = append(b, '\n')
	return b
}
