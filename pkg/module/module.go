// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package module locates native modules loaded in the current process.
package module

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Handle is the (base, size) pair of a loaded module. The zero Handle means
// "unattached".
type Handle struct {
	Base uintptr
	Size uintptr
}

// IsZero reports whether h is the unattached sentinel.
func (h Handle) IsZero() bool {
	return h.Base == 0 && h.Size == 0
}

// Contains reports whether addr lies inside the module image.
func (h Handle) Contains(addr uintptr) bool {
	return addr >= h.Base && addr-h.Base < h.Size
}

func (h Handle) String() string {
	return fmt.Sprintf("%#x+%#x", h.Base, h.Size)
}

// Finder looks up a loaded module by name.
type Finder interface {
	FindLoaded(name string) (Handle, bool)
}

// FinderFunc adapts a function to Finder.
type FinderFunc func(name string) (Handle, bool)

func (f FinderFunc) FindLoaded(name string) (Handle, bool) { return f(name) }

// matchName compares a module file path against a name such as "d3d9" or
// "d3d9.dll", case-insensitively.
func matchName(path, name string) bool {
	base := strings.ToLower(filepath.Base(path))
	name = strings.ToLower(name)
	if base == name {
		return true
	}
	stem := base
	if i := strings.IndexByte(stem, '.'); i > 0 {
		stem = stem[:i]
	}
	return stem == strings.TrimSuffix(name, filepath.Ext(name))
}
