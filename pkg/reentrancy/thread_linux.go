// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build linux

package reentrancy

import "golang.org/x/sys/unix"

// CurrentThreadID returns the kernel thread id of the calling thread.
func CurrentThreadID() uint64 {
	return uint64(unix.Gettid())
}

// CheckThreadID reports whether CurrentThreadID identifies OS threads.
func CheckThreadID() error { return nil }
