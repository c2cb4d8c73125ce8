// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbeema/framehook/pkg/config"
	"go.uber.org/zap"
)

const (
	defaultInterval = 10 * time.Second
	exportTimeout   = 10 * time.Second

	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	backoffFactor  = 2.0

	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

// Collector produces the metrics for one report.
type Collector interface {
	Collect() []*Metric
}

type sink struct {
	name    string
	exp     Exporter
	breaker *CircuitBreaker
}

// Reporter periodically collects metrics and sends them to every exporter.
type Reporter struct {
	logger    *zap.Logger
	collector Collector
	interval  time.Duration
	sinks     []sink

	backoff time.Duration

	exported atomic.Int64
	dropped  atomic.Int64

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewReporter creates a reporter with no exporters.
func NewReporter(collector Collector, interval time.Duration, logger *zap.Logger) *Reporter {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Reporter{
		logger:    logger,
		collector: collector,
		interval:  interval,
		backoff:   initialBackoff,
		stopCh:    make(chan struct{}),
	}
}

// NewReporterFromConfig creates a reporter with the exporters cfg enables.
// An exporter that cannot be created is logged and skipped.
func NewReporterFromConfig(cfg *config.ExportersConfig, res Resource, collector Collector, logger *zap.Logger) *Reporter {
	r := NewReporter(collector, cfg.Interval, logger)

	if cfg.OTLP.Enabled {
		if cfg.OTLP.Protocol == "http" {
			r.AddExporter("otlp-http", NewHTTPOTLPExporter(&cfg.OTLP, res, logger))
		} else if exp, err := NewOTLPExporter(&cfg.OTLP, res, logger); err != nil {
			logger.Warn("failed to create OTLP exporter", zap.Error(err))
		} else {
			r.AddExporter("otlp-grpc", exp)
		}
	}
	if cfg.Stdout.Enabled {
		r.AddExporter("stdout", NewStdoutExporter(cfg.Stdout.Format, logger))
	}
	return r
}

// AddExporter registers exp. Call before Start.
func (r *Reporter) AddExporter(name string, exp Exporter) {
	r.sinks = append(r.sinks, sink{
		name:    name,
		exp:     exp,
		breaker: NewCircuitBreaker(breakerThreshold, breakerCooldown),
	})
}

// Exporters returns the number of configured exporters.
func (r *Reporter) Exporters() int {
	return len(r.sinks)
}

// Start begins the report loop.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.Info("metrics reporter started",
		zap.Int("exporters", len(r.sinks)),
		zap.Duration("interval", r.interval),
	)
}

// Stop sends a final report and shuts the exporters down.
func (r *Reporter) Stop() {
	close(r.stopCh)
	r.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	for _, s := range r.sinks {
		if err := s.exp.Shutdown(ctx); err != nil {
			r.logger.Error("exporter shutdown error", zap.String("exporter", s.name), zap.Error(err))
		}
	}

	r.logger.Info("metrics reporter stopped",
		zap.Int64("exported", r.exported.Load()),
		zap.Int64("dropped", r.dropped.Load()),
	)
}

func (r *Reporter) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Report(ctx)
		case <-r.stopCh:
			r.Report(context.Background())
			return
		case <-ctx.Done():
			r.Report(context.Background())
			return
		}
	}
}

// Report collects once and sends the batch to every exporter.
func (r *Reporter) Report(ctx context.Context) {
	metrics := r.collector.Collect()
	if len(metrics) == 0 {
		return
	}
	for _, s := range r.sinks {
		if err := r.send(ctx, s, metrics); err != nil {
			r.dropped.Add(int64(len(metrics)))
			continue
		}
		r.exported.Add(int64(len(metrics)))
	}
}

// send exports with exponential backoff behind the exporter's breaker.
func (r *Reporter) send(ctx context.Context, s sink, metrics []*Metric) error {
	if !s.breaker.Allow() {
		r.logger.Debug("circuit breaker open, dropping report", zap.String("exporter", s.name))
		return fmt.Errorf("%s: circuit open", s.name)
	}

	backoff := r.backoff
	for attempt := 0; ; attempt++ {
		exportCtx, cancel := context.WithTimeout(ctx, exportTimeout)
		err := s.exp.ExportMetrics(exportCtx, metrics)
		cancel()

		if err == nil {
			s.breaker.Record(nil)
			return nil
		}
		if attempt == maxRetries {
			s.breaker.Record(err)
			r.logger.Error("export failed after retries",
				zap.String("exporter", s.name),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			return err
		}

		r.logger.Warn("export failed, retrying",
			zap.String("exporter", s.name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			s.breaker.Record(ctx.Err())
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(backoff)*backoffFactor, float64(maxBackoff)))
	}
}

// Stats returns how many metrics were exported and dropped.
func (r *Reporter) Stats() (exported, dropped int64) {
	return r.exported.Load(), r.dropped.Load()
}
