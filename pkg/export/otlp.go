// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/mbeema/framehook/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	_ "google.golang.org/grpc/encoding/gzip" // Register gzip compressor
	"google.golang.org/grpc/metadata"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

const scopeName = "github.com/mbeema/framehook"

// Resource describes the process the metrics come from.
type Resource struct {
	ServiceName    string
	ServiceVersion string
}

// OTLPExporter sends metrics via OTLP gRPC with automatic reconnection.
type OTLPExporter struct {
	logger   *zap.Logger
	resource *resourcepb.Resource
	endpoint string
	headers  metadata.MD
	opts     []grpc.DialOption

	mu        sync.RWMutex
	conn      *grpc.ClientConn
	metricSvc colmetricspb.MetricsServiceClient
}

// NewOTLPExporter creates a new OTLP gRPC exporter. The connection is lazy;
// an unreachable collector surfaces as an export error.
func NewOTLPExporter(cfg *config.OTLPConfig, res Resource, logger *zap.Logger, extra ...grpc.DialOption) (*OTLPExporter, error) {
	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(4 * 1024 * 1024)),
	}
	if cfg.Insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	}
	if cfg.Compression == "" || cfg.Compression == "gzip" {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.UseCompressor("gzip")))
	}
	opts = append(opts, extra...)

	e := &OTLPExporter{
		logger:   logger,
		resource: buildResource(res),
		endpoint: cfg.Endpoint,
		headers:  metadata.New(cfg.Headers),
		opts:     opts,
	}
	if err := e.connect(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *OTLPExporter) connect() error {
	conn, err := grpc.Dial(e.endpoint, e.opts...)
	if err != nil {
		return fmt.Errorf("dial OTLP endpoint %s: %w", e.endpoint, err)
	}
	e.conn = conn
	e.metricSvc = colmetricspb.NewMetricsServiceClient(conn)
	return nil
}

// ensureConnected replaces a connection that has failed or been shut down.
func (e *OTLPExporter) ensureConnected() error {
	e.mu.RLock()
	conn := e.conn
	e.mu.RUnlock()

	if conn != nil {
		switch conn.GetState() {
		case connectivity.TransientFailure, connectivity.Shutdown:
		default:
			return nil
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn != nil {
		state := e.conn.GetState()
		if state != connectivity.TransientFailure && state != connectivity.Shutdown {
			return nil
		}
		e.conn.Close()
	}

	e.logger.Info("reconnecting to OTLP endpoint", zap.String("endpoint", e.endpoint))
	return e.connect()
}

// ExportMetrics sends one ExportMetricsServiceRequest for the batch.
func (e *OTLPExporter) ExportMetrics(ctx context.Context, metrics []*Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	if err := e.ensureConnected(); err != nil {
		return fmt.Errorf("connection not ready: %w", err)
	}

	e.mu.RLock()
	svc := e.metricSvc
	e.mu.RUnlock()

	if len(e.headers) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, e.headers)
	}
	_, err := svc.Export(ctx, buildRequest(e.resource, metrics))
	return err
}

// Shutdown closes the gRPC connection.
func (e *OTLPExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

func buildResource(res Resource) *resourcepb.Resource {
	hostname, _ := os.Hostname()
	pid := os.Getpid()

	attrs := []*commonpb.KeyValue{
		strAttr("service.name", res.ServiceName),
		strAttr("service.instance.id", fmt.Sprintf("%s-%d", hostname, pid)),
		strAttr("telemetry.sdk.name", "framehook"),
		strAttr("telemetry.sdk.language", "go"),
		strAttr("host.name", hostname),
		strAttr("host.arch", runtime.GOARCH),
		intAttr("process.pid", int64(pid)),
	}
	if exe, err := os.Executable(); err == nil {
		attrs = append(attrs, strAttr("process.executable.path", exe))
	}
	if res.ServiceVersion != "" {
		attrs = append(attrs, strAttr("service.version", res.ServiceVersion))
	}
	return &resourcepb.Resource{Attributes: attrs}
}

func buildRequest(res *resourcepb.Resource, metrics []*Metric) *colmetricspb.ExportMetricsServiceRequest {
	pms := make([]*metricspb.Metric, 0, len(metrics))
	for _, m := range metrics {
		pms = append(pms, convertMetric(m))
	}
	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			Resource: res,
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Scope:   &commonpb.InstrumentationScope{Name: scopeName},
				Metrics: pms,
			}},
		}},
	}
}

func convertMetric(m *Metric) *metricspb.Metric {
	pm := &metricspb.Metric{
		Name:        m.Name,
		Description: m.Description,
		Unit:        m.Unit,
	}

	dp := &metricspb.NumberDataPoint{
		TimeUnixNano: uint64(m.Timestamp.UnixNano()),
		Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: m.Value},
		Attributes:   labelAttrs(m.Labels),
	}

	switch m.Type {
	case MetricCounter:
		if !m.StartTime.IsZero() {
			dp.StartTimeUnixNano = uint64(m.StartTime.UnixNano())
		}
		pm.Data = &metricspb.Metric_Sum{
			Sum: &metricspb.Sum{
				IsMonotonic:            true,
				AggregationTemporality: metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE,
				DataPoints:             []*metricspb.NumberDataPoint{dp},
			},
		}
	default:
		pm.Data = &metricspb.Metric_Gauge{
			Gauge: &metricspb.Gauge{DataPoints: []*metricspb.NumberDataPoint{dp}},
		}
	}
	return pm
}

// labelAttrs converts labels in key order.
func labelAttrs(labels map[string]string) []*commonpb.KeyValue {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]*commonpb.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, strAttr(k, labels[k]))
	}
	return attrs
}

func strAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func intAttr(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}},
	}
}
