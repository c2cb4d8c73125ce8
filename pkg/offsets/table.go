// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package offsets obtains the per-load addresses of the intercepted D3D9
// functions from a short-lived helper process.
package offsets

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mbeema/framehook/pkg/module"
)

// TableSize is the fixed size of the encoded Table, and of the shared region
// the helper writes it into.
const TableSize = 8 * int(numFuncs)

// Func identifies one slot in the Table.
type Func int

// Slot order is the wire order.
const (
	AddRef Func = iota
	Release
	Present
	Reset
	EndScene
	PresentEx
	ResetEx
	SwapChainPresent
	numFuncs
)

// Funcs lists every slot in wire order.
var Funcs = [...]Func{AddRef, Release, Present, Reset, EndScene, PresentEx, ResetEx, SwapChainPresent}

// String returns the COM method name for f.
func (f Func) String() string {
	switch f {
	case AddRef:
		return "IDirect3DDevice9::AddRef"
	case Release:
		return "IDirect3DDevice9::Release"
	case Present:
		return "IDirect3DDevice9::Present"
	case Reset:
		return "IDirect3DDevice9::Reset"
	case EndScene:
		return "IDirect3DDevice9::EndScene"
	case PresentEx:
		return "IDirect3DDevice9Ex::PresentEx"
	case ResetEx:
		return "IDirect3DDevice9Ex::ResetEx"
	case SwapChainPresent:
		return "IDirect3DSwapChain9::Present"
	default:
		return fmt.Sprintf("Func(%d)", int(f))
	}
}

var (
	ErrShortTable = errors.New("offset table too short")
	ErrEmptyTable = errors.New("offset table is empty")
	ErrOutOfRange = errors.New("offset outside module image")
)

// Table holds byte offsets from the module base. A zero offset means the
// function was not resolved.
type Table struct {
	AddRef           uint64 `yaml:"add_ref"`
	Release          uint64 `yaml:"release"`
	Present          uint64 `yaml:"present"`
	Reset            uint64 `yaml:"reset"`
	EndScene         uint64 `yaml:"end_scene"`
	PresentEx        uint64 `yaml:"present_ex"`
	ResetEx          uint64 `yaml:"reset_ex"`
	SwapChainPresent uint64 `yaml:"swap_chain_present"`
}

func (t *Table) slot(f Func) *uint64 {
	switch f {
	case AddRef:
		return &t.AddRef
	case Release:
		return &t.Release
	case Present:
		return &t.Present
	case Reset:
		return &t.Reset
	case EndScene:
		return &t.EndScene
	case PresentEx:
		return &t.PresentEx
	case ResetEx:
		return &t.ResetEx
	case SwapChainPresent:
		return &t.SwapChainPresent
	}
	return nil
}

// Offset returns the offset stored for f.
func (t *Table) Offset(f Func) uint64 {
	if p := t.slot(f); p != nil {
		return *p
	}
	return 0
}

// SetOffset stores off for f.
func (t *Table) SetOffset(f Func, off uint64) {
	if p := t.slot(f); p != nil {
		*p = off
	}
}

// IsZero reports whether no function was resolved.
func (t *Table) IsZero() bool {
	return *t == Table{}
}

// Encode writes the little-endian wire form into buf, which must be at least
// TableSize bytes.
func (t *Table) Encode(buf []byte) error {
	if len(buf) < TableSize {
		return ErrShortTable
	}
	for i, f := range Funcs {
		binary.LittleEndian.PutUint64(buf[i*8:], t.Offset(f))
	}
	return nil
}

// Bytes returns the wire form.
func (t *Table) Bytes() []byte {
	buf := make([]byte, TableSize)
	t.Encode(buf)
	return buf
}

// Decode parses the wire form.
func Decode(buf []byte) (*Table, error) {
	if len(buf) < TableSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrShortTable, len(buf), TableSize)
	}
	t := &Table{}
	for i, f := range Funcs {
		t.SetOffset(f, binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return t, nil
}

// Validate checks that the table is usable against the module it was resolved
// for: at least one offset is set and every set offset lies inside the image.
// A zero Size skips the range check.
func (t *Table) Validate(h module.Handle) error {
	if t.IsZero() {
		return ErrEmptyTable
	}
	if h.Size == 0 {
		return nil
	}
	for _, f := range Funcs {
		off := t.Offset(f)
		if off != 0 && off >= uint64(h.Size) {
			return fmt.Errorf("%w: %s at %#x, image size %#x", ErrOutOfRange, f, off, h.Size)
		}
	}
	return nil
}
