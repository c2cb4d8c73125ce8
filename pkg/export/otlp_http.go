// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mbeema/framehook/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

const metricsPath = "/v1/metrics"

// HTTPOTLPExporter sends metrics via OTLP HTTP/protobuf.
type HTTPOTLPExporter struct {
	logger   *zap.Logger
	resource *resourcepb.Resource
	url      string
	gzip     bool
	headers  map[string]string
	client   *http.Client
}

// NewHTTPOTLPExporter creates a new OTLP HTTP exporter. The endpoint may
// carry a scheme; otherwise Insecure selects http or https.
func NewHTTPOTLPExporter(cfg *config.OTLPConfig, res Resource, logger *zap.Logger) *HTTPOTLPExporter {
	base := cfg.Endpoint
	if !strings.Contains(base, "://") {
		scheme := "https"
		if cfg.Insecure {
			scheme = "http"
		}
		base = scheme + "://" + base
	}

	return &HTTPOTLPExporter{
		logger:   logger,
		resource: buildResource(res),
		url:      strings.TrimSuffix(base, "/") + metricsPath,
		gzip:     cfg.Compression == "" || cfg.Compression == "gzip",
		headers:  cfg.Headers,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// ExportMetrics posts one protobuf request for the batch.
func (e *HTTPOTLPExporter) ExportMetrics(ctx context.Context, metrics []*Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	data, err := proto.Marshal(buildRequest(e.resource, metrics))
	if err != nil {
		return fmt.Errorf("marshal protobuf: %w", err)
	}

	var body io.Reader = bytes.NewReader(data)
	if e.gzip {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err != nil {
			return fmt.Errorf("gzip compress: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("gzip close: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	if e.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", metricsPath, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("OTLP HTTP %s returned %d", metricsPath, resp.StatusCode)
	}
	return nil
}

// Shutdown closes idle connections.
func (e *HTTPOTLPExporter) Shutdown(context.Context) error {
	e.client.CloseIdleConnections()
	return nil
}
