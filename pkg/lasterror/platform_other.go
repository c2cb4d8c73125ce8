// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build !windows

package lasterror

// Platform returns Nop: errno is not observable across a native callback
// boundary from Go, so there is nothing to preserve.
func Platform() Source {
	return Nop
}
