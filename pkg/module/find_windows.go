// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build windows

package module

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsFinder struct{}

// DefaultFinder returns the platform finder.
func DefaultFinder() Finder {
	return windowsFinder{}
}

func (windowsFinder) FindLoaded(name string) (Handle, bool) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return Handle{}, false
	}

	var mod windows.Handle
	// UNCHANGED_REFCOUNT: lookup only, never pin the module.
	if err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, namePtr, &mod); err != nil {
		return Handle{}, false
	}

	var info windows.ModuleInfo
	if err := windows.GetModuleInformation(windows.CurrentProcess(), mod, &info, uint32(unsafe.Sizeof(info))); err != nil {
		return Handle{}, false
	}
	return Handle{Base: info.BaseOfDll, Size: uintptr(info.SizeOfImage)}, true
}
