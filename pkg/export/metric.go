// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package export turns intercepted frame traffic into metrics and ships them
// to OTLP collectors or stdout.
package export

import (
	"context"
	"time"
)

// Metric represents a metric data point for export.
type Metric struct {
	Name        string
	Description string
	Unit        string
	Type        MetricType
	Value       float64
	StartTime   time.Time // start of the cumulative window (counters)
	Timestamp   time.Time
	Labels      map[string]string
}

// MetricType identifies the kind of metric.
type MetricType int

const (
	MetricGauge MetricType = iota
	MetricCounter
)

func (t MetricType) String() string {
	switch t {
	case MetricGauge:
		return "gauge"
	case MetricCounter:
		return "counter"
	default:
		return "unknown"
	}
}

// Exporter ships a batch of metrics.
type Exporter interface {
	ExportMetrics(ctx context.Context, metrics []*Metric) error
	Shutdown(ctx context.Context) error
}
