// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DeviceInfo is one row of the /devices endpoint.
type DeviceInfo struct {
	ID        string    `json:"id"`
	RefCount  uint64    `json:"ref_count"`
	FirstSeen time.Time `json:"first_seen"`
}

// Server provides health, readiness, device and metrics HTTP endpoints.
type Server struct {
	logger  *zap.Logger
	stats   *Stats
	version string
	addr    string
	server  *http.Server

	// Ready reports readiness; nil means never ready.
	Ready func() bool
	// Devices lists tracked devices for /devices; nil serves an empty list.
	Devices func() []DeviceInfo
}

// NewServer creates a health server.
func NewServer(addr, version string, stats *Stats, logger *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		version: version,
		stats:   stats,
		logger:  logger,
	}
}

// Start begins serving health endpoints.
func (s *Server) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/devices", s.handleDevices)
	mux.HandleFunc("/metrics", s.handleMetrics)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health server error", zap.Error(err))
		}
	}()

	s.logger.Info("health server started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop gracefully shuts down the health server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: s.version,
		Uptime:  s.stats.Uptime().Truncate(time.Second).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleReady reports 200 only while the target module is intercepted.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.Ready == nil || !s.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"detached"}`))
		return
	}
	w.Write([]byte(`{"status":"attached"}`))
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices := []DeviceInfo{}
	if s.Devices != nil {
		devices = s.Devices()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Write([]byte(s.stats.PrometheusMetrics()))
}
