// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package offsets

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/mbeema/framehook/pkg/module"
)

func TestDecodeWireOrder(t *testing.T) {
	buf := make([]byte, TableSize)
	for i := range Funcs {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(0x100*(i+1)))
	}

	tbl, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	tests := []struct {
		f    Func
		want uint64
	}{
		{AddRef, 0x100},
		{Release, 0x200},
		{Present, 0x300},
		{Reset, 0x400},
		{EndScene, 0x500},
		{PresentEx, 0x600},
		{ResetEx, 0x700},
		{SwapChainPresent, 0x800},
	}
	for _, tt := range tests {
		if got := tbl.Offset(tt.f); got != tt.want {
			t.Errorf("%s = %#x, want %#x", tt.f, got, tt.want)
		}
	}

	if got := tbl.Bytes(); string(got) != string(buf) {
		t.Error("Bytes does not reproduce the decoded buffer")
	}
}

func TestDecodeShort(t *testing.T) {
	_, err := Decode(make([]byte, TableSize-1))
	if !errors.Is(err, ErrShortTable) {
		t.Errorf("err = %v, want ErrShortTable", err)
	}
}

func TestValidate(t *testing.T) {
	h := module.Handle{Base: 0x10000000, Size: 0x1000}

	empty := &Table{}
	if err := empty.Validate(h); !errors.Is(err, ErrEmptyTable) {
		t.Errorf("empty table err = %v, want ErrEmptyTable", err)
	}

	ok := &Table{Present: 0x100, Reset: 0x200}
	if err := ok.Validate(h); err != nil {
		t.Errorf("Validate: %v", err)
	}

	bad := &Table{Present: 0x100, Reset: 0x2000}
	if err := bad.Validate(h); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("out-of-range err = %v, want ErrOutOfRange", err)
	}

	if err := bad.Validate(module.Handle{Base: 0x10000000}); err != nil {
		t.Errorf("unknown size should skip range check, got %v", err)
	}
}

func TestTableSize(t *testing.T) {
	var n int = TableSize
	if n != 8*len(Funcs) {
		t.Errorf("TableSize = %d, want %d", n, 8*len(Funcs))
	}
	if got := len((&Table{}).Bytes()); got != TableSize {
		t.Errorf("len(Bytes()) = %d, want %d", got, TableSize)
	}
}
