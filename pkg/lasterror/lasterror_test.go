// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package lasterror

import "testing"

type fakeSource struct{ code uint32 }

func (f *fakeSource) Get() uint32     { return f.code }
func (f *fakeSource) Set(code uint32) { f.code = code }

func TestPreserverRoundTrip(t *testing.T) {
	src := &fakeSource{code: 5}

	p := Capture(src)
	src.Set(99) // detour work clobbers the value

	p.Revert()
	if src.code != 5 {
		t.Fatalf("after Revert code = %d, want 5", src.code)
	}

	p.Update(87) // value the real function left
	src.Set(1)   // more detour work

	p.Restore()
	if src.code != 87 {
		t.Errorf("after Restore code = %d, want 87", src.code)
	}
}

func TestNop(t *testing.T) {
	Nop.Set(10)
	if Nop.Get() != 0 {
		t.Error("Nop should always report 0")
	}
}
