// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build windows

package module

import (
	"fmt"
	"path/filepath"
	"reflect"
	"unsafe"

	"golang.org/x/sys/windows"
)

// SelfDir returns the directory of the image containing this code. When
// framehook is loaded as a DLL into a host, that is the DLL's directory rather
// than the host executable's.
func SelfDir() (string, error) {
	addr := reflect.ValueOf(SelfDir).Pointer()

	var mod windows.Handle
	flags := uint32(windows.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS | windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT)
	if err := windows.GetModuleHandleEx(flags, (*uint16)(unsafe.Pointer(addr)), &mod); err != nil {
		return "", fmt.Errorf("GetModuleHandleEx: %w", err)
	}

	buf := make([]uint16, windows.MAX_LONG_PATH)
	n, err := windows.GetModuleFileName(mod, &buf[0], uint32(len(buf)))
	if err != nil {
		return "", fmt.Errorf("GetModuleFileName: %w", err)
	}
	return filepath.Dir(windows.UTF16ToString(buf[:n])), nil
}
