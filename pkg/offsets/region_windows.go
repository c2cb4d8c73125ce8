// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build windows

package offsets

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var procOpenFileMappingW = windows.NewLazySystemDLL("kernel32.dll").NewProc("OpenFileMappingW")

type regionSys struct {
	mapping windows.Handle
	view    uintptr
}

// CreateRegion creates a pagefile-backed named mapping of size bytes and maps
// it for reading. dir is ignored.
func CreateRegion(_ string, name string, size int) (*Region, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}

	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(size), namePtr)
	if h == 0 {
		return nil, fmt.Errorf("CreateFileMapping: %w", err)
	}
	// ERROR_ALREADY_EXISTS still yields a usable handle to the same section.
	if err != nil && !errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("CreateFileMapping: %w", err)
	}

	view, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, 0)
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("MapViewOfFile: %w", err)
	}

	return &Region{
		name: name,
		size: size,
		data: unsafe.Slice((*byte)(unsafe.Pointer(view)), size),
		sys:  regionSys{mapping: h, view: view},
	}, nil
}

// Close unmaps the view and closes the mapping handle.
func (r *Region) Close() error {
	var firstErr error
	if r.sys.view != 0 {
		if err := windows.UnmapViewOfFile(r.sys.view); err != nil {
			firstErr = err
		}
		r.sys.view = 0
		r.data = nil
	}
	if r.sys.mapping != 0 {
		if err := windows.CloseHandle(r.sys.mapping); err != nil && firstErr == nil {
			firstErr = err
		}
		r.sys.mapping = 0
	}
	return firstErr
}

func writeRegion(_ string, name string, b []byte) error {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return err
	}

	r, _, callErr := procOpenFileMappingW.Call(uintptr(windows.FILE_MAP_WRITE), 0, uintptr(unsafe.Pointer(namePtr)))
	if r == 0 {
		return fmt.Errorf("OpenFileMapping: %w", callErr)
	}
	h := windows.Handle(r)
	defer windows.CloseHandle(h)

	view, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(len(b)))
	if err != nil {
		return fmt.Errorf("MapViewOfFile: %w", err)
	}
	defer windows.UnmapViewOfFile(view)

	copy(unsafe.Slice((*byte)(unsafe.Pointer(view)), len(b)), b)
	return nil
}
