// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package d3d9

import "fmt"

// HRESULT values returned to the host.
const (
	D3D_OK             uintptr = 0
	D3DERR_INVALIDCALL uintptr = 0x8876086C
)

// HRESULT is a COM status code.
type HRESULT int32

// Failed reports whether hr is an error code.
func (hr HRESULT) Failed() bool { return hr < 0 }

func (hr HRESULT) Error() string {
	return fmt.Sprintf("HRESULT %#08x", uint32(hr))
}

// PresentParameters mirrors D3DPRESENT_PARAMETERS. Reset subscribers receive
// a pointer into host memory; it is only valid during the callback.
type PresentParameters struct {
	BackBufferWidth           uint32
	BackBufferHeight          uint32
	BackBufferFormat          uint32
	BackBufferCount           uint32
	MultiSampleType           uint32
	MultiSampleQuality        uint32
	SwapEffect                uint32
	DeviceWindow              uintptr
	Windowed                  int32
	EnableAutoDepthStencil    int32
	AutoDepthStencilFormat    uint32
	Flags                     uint32
	FullScreenRefreshRateInHz uint32
	PresentationInterval      uint32
}

// FrameFunc is called once per outermost Present, EndScene, PresentEx or
// swap chain Present.
type FrameFunc func(device uintptr)

// ResetFunc is called once per outermost Reset or ResetEx, before the device
// is reset.
type ResetFunc func(device uintptr, params *PresentParameters)

// ReleaseFunc is called after the final reference to a device is released.
type ReleaseFunc func(device uintptr)
