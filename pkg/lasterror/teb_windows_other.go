// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build windows && !amd64 && !386

package lasterror

import "golang.org/x/sys/windows"

var (
	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	procSetLastError = kernel32.NewProc("SetLastError")
)

// Without direct TEB access the entry value cannot be read: the runtime
// clears it before any syscall. Get reports 0 and the value the original
// function leaves is still carried through Preserver.Update.
func getLastError() uint32 { return 0 }

func setLastError(code uint32) {
	procSetLastError.Call(uintptr(code))
}
