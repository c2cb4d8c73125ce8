// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StdoutExporter prints metrics for debugging.
type StdoutExporter struct {
	format string // "text" or "json"
	logger *zap.Logger

	mu  sync.Mutex
	out io.Writer
}

// NewStdoutExporter creates a new stdout exporter.
func NewStdoutExporter(format string, logger *zap.Logger) *StdoutExporter {
	if format == "" {
		format = "text"
	}
	return &StdoutExporter{
		format: format,
		logger: logger,
		out:    os.Stdout,
	}
}

// ExportMetrics prints one line per metric.
func (e *StdoutExporter) ExportMetrics(_ context.Context, metrics []*Metric) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, m := range metrics {
		if e.format == "json" {
			b, err := json.Marshal(map[string]interface{}{
				"_type":     "metric",
				"name":      m.Name,
				"type":      m.Type.String(),
				"value":     m.Value,
				"unit":      m.Unit,
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"labels":    m.Labels,
			})
			if err != nil {
				return fmt.Errorf("encode %s: %w", m.Name, err)
			}
			fmt.Fprintf(e.out, "%s\n", b)
			continue
		}
		fmt.Fprintf(e.out,
			"[METRIC] %-24s %-7s %.4f %s %s\n",
			m.Name, m.Type, m.Value, m.Unit,
			formatLabels(m.Labels),
		)
	}
	return nil
}

// Shutdown is a no-op for stdout.
func (e *StdoutExporter) Shutdown(context.Context) error {
	return nil
}

// formatLabels renders labels in key order so output is stable.
func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
