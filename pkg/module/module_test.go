// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package module

import (
	"testing"
)

func TestHandleIsZero(t *testing.T) {
	if !(Handle{}).IsZero() {
		t.Error("zero Handle should be unattached")
	}
	if (Handle{Base: 0x1000, Size: 0x100}).IsZero() {
		t.Error("non-zero Handle reported as unattached")
	}
}

func TestHandleContains(t *testing.T) {
	h := Handle{Base: 0x1000, Size: 0x100}
	tests := []struct {
		addr uintptr
		want bool
	}{
		{0x0fff, false},
		{0x1000, true},
		{0x10ff, true},
		{0x1100, false},
	}
	for _, tt := range tests {
		if got := h.Contains(tt.addr); got != tt.want {
			t.Errorf("Contains(%#x) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestMatchName(t *testing.T) {
	tests := []struct {
		path, name string
		want       bool
	}{
		{"/usr/lib/d3d9.dll", "d3d9.dll", true},
		{"/usr/lib/d3d9.dll", "D3D9", true},
		{"/usr/lib/libd3d9.so.1", "d3d9", false},
		{"/usr/lib/d3d9.so.1", "d3d9", true},
		{"/usr/lib/d3d11.dll", "d3d9", false},
	}
	for _, tt := range tests {
		if got := matchName(tt.path, tt.name); got != tt.want {
			t.Errorf("matchName(%q, %q) = %v, want %v", tt.path, tt.name, got, tt.want)
		}
	}
}
