// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build windows

package lasterror

// tebSource reads and writes LastErrorValue in the calling thread's TEB.
// A syscall would not do: the runtime clears the value before every call
// it makes through syscall.SyscallN.
type tebSource struct{}

func (tebSource) Get() uint32     { return getLastError() }
func (tebSource) Set(code uint32) { setLastError(code) }

// Platform returns the Win32 last-error source.
func Platform() Source {
	return tebSource{}
}
