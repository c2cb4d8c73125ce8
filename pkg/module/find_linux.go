// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build linux

package module

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// ProcFinder reads module mappings from /proc/self/maps.
type ProcFinder struct {
	MapsPath string // defaults to /proc/self/maps
}

// DefaultFinder returns the platform finder.
func DefaultFinder() Finder {
	return &ProcFinder{}
}

func (f *ProcFinder) FindLoaded(name string) (Handle, bool) {
	path := f.MapsPath
	if path == "" {
		path = "/proc/self/maps"
	}
	file, err := os.Open(path)
	if err != nil {
		return Handle{}, false
	}
	defer file.Close()
	return parseMaps(file, name)
}

// parseMaps returns the span covering every mapping of the named file.
func parseMaps(r io.Reader, name string) (Handle, bool) {
	var lo, hi uint64
	found := false

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 || !matchName(fields[5], name) {
			continue
		}
		start, end, ok := parseRange(fields[0])
		if !ok {
			continue
		}
		if !found || start < lo {
			lo = start
		}
		if !found || end > hi {
			hi = end
		}
		found = true
	}
	if !found {
		return Handle{}, false
	}
	return Handle{Base: uintptr(lo), Size: uintptr(hi - lo)}, true
}

func parseRange(s string) (uint64, uint64, bool) {
	dash := strings.IndexByte(s, '-')
	if dash < 0 {
		return 0, 0, false
	}
	start, err := strconv.ParseUint(s[:dash], 16, 64)
	if err != nil {
		return 0, 0, false
	}
	end, err := strconv.ParseUint(s[dash+1:], 16, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}
