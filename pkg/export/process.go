// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// ProcessCollector reports resource usage of the host process so frame
// rates can be read against CPU and memory pressure.
type ProcessCollector struct {
	logger    *zap.Logger
	pid       int32
	startTime time.Time
	now       func() time.Time
}

// NewProcessCollector observes pid, normally os.Getpid().
func NewProcessCollector(pid int, logger *zap.Logger) *ProcessCollector {
	return &ProcessCollector{
		logger:    logger,
		pid:       int32(pid),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Collect samples the process once. Failed probes are skipped.
func (pc *ProcessCollector) Collect() []*Metric {
	proc, err := process.NewProcess(pc.pid)
	if err != nil {
		pc.logger.Debug("process not found", zap.Int32("pid", pc.pid), zap.Error(err))
		return nil
	}

	now := pc.now()
	labels := map[string]string{"pid": strconv.Itoa(int(pc.pid))}
	if name, err := proc.Name(); err == nil {
		labels["process_name"] = name
	}

	var out []*Metric
	gauge := func(name, unit string, v float64) {
		out = append(out, &Metric{
			Name:      name,
			Unit:      unit,
			Type:      MetricGauge,
			Value:     v,
			Timestamp: now,
			Labels:    labels,
		})
	}

	// OTEL semconv: 0-1 ratio
	if pct, err := proc.CPUPercent(); err == nil {
		gauge("process.cpu.utilization", "1", pct/100)
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		gauge("process.memory.usage", "By", float64(mem.RSS))
		gauge("process.memory.virtual", "By", float64(mem.VMS))
	}
	if threads, err := proc.NumThreads(); err == nil {
		gauge("process.thread.count", "{threads}", float64(threads))
	}
	if sw, err := proc.NumCtxSwitches(); err == nil {
		for kind, v := range map[string]int64{"voluntary": sw.Voluntary, "involuntary": sw.Involuntary} {
			out = append(out, &Metric{
				Name:      "process.context_switches",
				Unit:      "{switches}",
				Type:      MetricCounter,
				Value:     float64(v),
				StartTime: pc.startTime,
				Timestamp: now,
				Labels:    mergeLabels(labels, "process.context_switch.type", kind),
			})
		}
	}
	return out
}

func mergeLabels(base map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(base)+1)
	for bk, bv := range base {
		out[bk] = bv
	}
	out[k] = v
	return out
}

// Collectors merges several collectors into one report.
type Collectors []Collector

// Collect concatenates every member's metrics in order.
func (cs Collectors) Collect() []*Metric {
	var out []*Metric
	for _, c := range cs {
		out = append(out, c.Collect()...)
	}
	return out
}
