// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build freebsd

package reentrancy

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// CurrentThreadID returns the kernel thread id of the calling thread.
func CurrentThreadID() uint64 {
	var id int64
	unix.Syscall(unix.SYS_THR_SELF, uintptr(unsafe.Pointer(&id)), 0, 0)
	return uint64(id)
}

// CheckThreadID reports whether CurrentThreadID identifies OS threads.
func CheckThreadID() error { return nil }
