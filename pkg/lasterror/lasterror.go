// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package lasterror keeps the host's thread error state unchanged across an
// intercepted call.
package lasterror

// Source reads and writes the calling thread's last-error value.
type Source interface {
	Get() uint32
	Set(code uint32)
}

// Preserver snapshots the last-error value on entry to a detour. Revert puts
// the host's value back right before the real function runs, Update records
// what the real function left, and Restore reinstates that value on exit so
// any work done by the detour itself is invisible to the caller.
type Preserver struct {
	src  Source
	code uint32
}

// Capture records the current last-error value.
func Capture(src Source) Preserver {
	return Preserver{src: src, code: src.Get()}
}

// Revert sets the thread's last-error to the recorded value.
func (p *Preserver) Revert() {
	p.src.Set(p.code)
}

// Update records code as the value the real function left. It is taken
// from the call itself because reading the thread state afterwards may go
// through code that resets it.
func (p *Preserver) Update(code uint32) {
	p.code = code
}

// Restore sets the thread's last-error to the recorded value. Call it with
// defer right after Capture.
func (p *Preserver) Restore() {
	p.src.Set(p.code)
}

// Code returns the recorded value.
func (p *Preserver) Code() uint32 {
	return p.code
}

type nopSource struct{}

func (nopSource) Get() uint32 { return 0 }
func (nopSource) Set(uint32)  {}

// Nop is a Source that always reports zero and ignores writes.
var Nop Source = nopSource{}
