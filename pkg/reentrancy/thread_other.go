// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build !linux && !windows && !darwin && !freebsd

package reentrancy

import (
	"fmt"
	"runtime"
)

// CurrentThreadID cannot tell threads apart on this platform.
func CurrentThreadID() uint64 {
	return 0
}

// CheckThreadID reports that per-thread counting is unavailable, so callers
// must not intercept calls here.
func CheckThreadID() error {
	return fmt.Errorf("%w on %s", ErrNoThreadID, runtime.GOOS)
}
