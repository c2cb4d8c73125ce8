// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build !linux && !windows

package module

// DefaultFinder returns a finder that never finds anything; module lookup is
// not implemented on this platform.
func DefaultFinder() Finder {
	return FinderFunc(func(string) (Handle, bool) { return Handle{}, false })
}
