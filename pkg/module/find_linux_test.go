// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build linux

package module

import (
	"strings"
	"testing"
)

const sampleMaps = `55d0c0a00000-55d0c0a02000 r--p 00000000 08:01 1234 /usr/bin/host
7f1000000000-7f1000010000 r--p 00000000 08:01 42 /opt/wine/lib/d3d9.dll
7f1000010000-7f1000080000 r-xp 00010000 08:01 42 /opt/wine/lib/d3d9.dll
7f1000080000-7f1000090000 rw-p 00080000 08:01 42 /opt/wine/lib/d3d9.dll
7f1000090000-7f10000a0000 rw-p 00000000 00:00 0
7ffd00000000-7ffd00021000 rw-p 00000000 00:00 0 [stack]
`

func TestParseMaps(t *testing.T) {
	h, ok := parseMaps(strings.NewReader(sampleMaps), "d3d9.dll")
	if !ok {
		t.Fatal("expected d3d9.dll to be found")
	}
	if h.Base != 0x7f1000000000 {
		t.Errorf("Base = %#x, want 0x7f1000000000", h.Base)
	}
	if h.Size != 0x90000 {
		t.Errorf("Size = %#x, want 0x90000", h.Size)
	}
}

func TestParseMapsMissing(t *testing.T) {
	if _, ok := parseMaps(strings.NewReader(sampleMaps), "d3d11.dll"); ok {
		t.Error("d3d11.dll should not be found")
	}
}

func TestSelfDir(t *testing.T) {
	dir, err := SelfDir()
	if err != nil {
		t.Fatalf("SelfDir: %v", err)
	}
	if dir == "" {
		t.Error("SelfDir returned empty path")
	}
}
