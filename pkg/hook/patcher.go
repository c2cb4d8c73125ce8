// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package hook

import (
	"errors"

	"github.com/ebitengine/purego"
)

var (
	// ErrDoubleHook means the target already has a detour from this patcher.
	ErrDoubleHook = errors.New("double hook")
	// ErrHookNotFound means the detour is not (or no longer) installed.
	ErrHookNotFound = errors.New("hook not found")
)

// Detour is one installed interception of one target function.
type Detour interface {
	// Target is the patched function address.
	Target() uintptr

	// Call invokes the original implementation through the trampoline. It
	// returns the result and the thread's last-error value as the original
	// left it.
	Call(args ...uintptr) (ret uintptr, lastErr uint32)
}

// Patcher rewrites function prologues. It is supplied by the embedding
// payload; framehook only drives it.
//
// Installation has two phases. Prepare builds the trampoline without
// touching the target, so the caller can publish it to the entry point;
// Enable then rewrites the prologue. Once Enable starts, a host thread may
// already be running the detour.
type Patcher interface {
	// Prepare builds the detour for target without patching it.
	Prepare(target, detour uintptr) (Detour, error)

	// Enable redirects the target of a prepared detour.
	Enable(d Detour) error

	// Remove tears down d, enabled or not. unpatch=false forgets the detour
	// without touching memory, for modules that are already unmapped.
	Remove(d Detour, unpatch bool) error
}

// NativeDetour is a Detour whose trampoline is a native function pointer.
// Patchers built on a trampoline-returning engine can return it directly.
type NativeDetour struct {
	TargetAddr     uintptr
	TrampolineAddr uintptr
}

func (d *NativeDetour) Target() uintptr { return d.TargetAddr }

// Call invokes the trampoline with the platform C calling convention. The
// last-error value is the one the runtime reads back right after the call.
func (d *NativeDetour) Call(args ...uintptr) (uintptr, uint32) {
	r1, _, errno := purego.SyscallN(d.TrampolineAddr, args...)
	return r1, uint32(errno)
}
