// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package d3d9

import (
	"unsafe"

	"github.com/ebitengine/purego"
)

// vtable slots used on IDirect3DSwapChain9 / IDirect3DDevice9.
const (
	slotRelease   = 2
	slotGetDevice = 8
)

// DeviceResolver finds the device that owns a swap chain.
type DeviceResolver interface {
	// DeviceOf returns the owning device with a reference held. release
	// drops that reference and must be called once the device is no longer
	// needed.
	DeviceOf(swapChain uintptr) (device uintptr, release func(), err error)
}

// COMDeviceResolver calls IDirect3DSwapChain9::GetDevice through the object's
// vtable.
type COMDeviceResolver struct{}

func (COMDeviceResolver) DeviceOf(swapChain uintptr) (uintptr, func(), error) {
	var dev uintptr
	r1, _, _ := purego.SyscallN(method(swapChain, slotGetDevice), swapChain, uintptr(unsafe.Pointer(&dev)))
	if hr := HRESULT(int32(uint32(r1))); hr.Failed() {
		return 0, nil, hr
	}
	release := func() {
		purego.SyscallN(method(dev, slotRelease), dev)
	}
	return dev, release, nil
}

// method reads slot from the vtable of the COM object at obj.
func method(obj uintptr, slot int) uintptr {
	vtbl := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtbl + uintptr(slot)*unsafe.Sizeof(uintptr(0))))
}
