// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package export

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker(threshold, time.Minute)
	cb.now = clk.now
	return cb, clk
}

var errExport = errors.New("collector unavailable")

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3)

	for i := 0; i < 2; i++ {
		if !cb.Allow() {
			t.Fatalf("attempt %d rejected below threshold", i)
		}
		cb.Record(errExport)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}

	cb.Allow()
	cb.Record(errExport)
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	if cb.Allow() {
		t.Error("open breaker allowed an export")
	}
}

func TestCircuitBreakerSuccessResets(t *testing.T) {
	cb, _ := newTestBreaker(2)

	cb.Record(errExport)
	cb.Record(nil)
	cb.Record(errExport)
	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed; success should reset the count", cb.State())
	}
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb, clk := newTestBreaker(1)

	cb.Record(errExport)
	clk.advance(59 * time.Second)
	if cb.Allow() {
		t.Fatal("allowed before cooldown")
	}

	clk.advance(time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("probe rejected")
	}
	if cb.Allow() {
		t.Fatal("second caller allowed while probe in flight")
	}

	cb.Record(errExport)
	if cb.State() != CircuitOpen {
		t.Fatalf("failed probe: state = %v, want open", cb.State())
	}

	clk.advance(time.Minute)
	cb.Allow()
	cb.Record(nil)
	if cb.State() != CircuitClosed {
		t.Errorf("successful probe: state = %v, want closed", cb.State())
	}
}

func TestCircuitStateString(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
