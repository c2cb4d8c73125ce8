// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package hook

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/arch/x86/x86asm"
)

// Verifier checks a resolved target address before a detour is installed.
type Verifier func(addr uintptr) error

var (
	ErrNullTarget  = errors.New("null target address")
	ErrBadPrologue = errors.New("target does not start with a valid instruction")
)

const prologueLen = 16

// NewDecodeVerifier returns a Verifier that decodes the first instruction at
// the target. It rejects breakpoints, zero fill and bytes that are not x86
// code, and logs targets that already begin with a jump. On other
// architectures it only rejects null.
func NewDecodeVerifier(logger *zap.Logger) Verifier {
	return func(addr uintptr) error {
		if addr == 0 {
			return ErrNullTarget
		}
		mode := 0
		switch runtime.GOARCH {
		case "amd64":
			mode = 64
		case "386":
			mode = 32
		default:
			return nil
		}
		code := unsafe.Slice((*byte)(unsafe.Pointer(addr)), prologueLen)
		inst, err := checkPrologue(code, mode)
		if err != nil {
			return err
		}
		if alreadyRedirected(inst) {
			logger.Warn("target already starts with a jump; another hook may be installed",
				zap.String("addr", fmt.Sprintf("%#x", addr)),
				zap.String("inst", inst.String()),
			)
		}
		return nil
	}
}

// checkPrologue decodes the first instruction of code.
func checkPrologue(code []byte, mode int) (x86asm.Inst, error) {
	if len(code) >= 2 && code[0] == 0 && code[1] == 0 {
		return x86asm.Inst{}, fmt.Errorf("%w: zero filled", ErrBadPrologue)
	}
	if len(code) >= 1 && code[0] == 0xCC {
		return x86asm.Inst{}, fmt.Errorf("%w: breakpoint", ErrBadPrologue)
	}

	inst, err := x86asm.Decode(code, mode)
	if err != nil {
		return x86asm.Inst{}, fmt.Errorf("%w: %v", ErrBadPrologue, err)
	}
	// The decoder accepts a lone prefix at the end of input.
	if inst.Op == 0 || inst.Len <= prefixBytes(inst) || (mode == 64 && isREX(code[0]) && inst.Len < 2) {
		return x86asm.Inst{}, fmt.Errorf("%w: prefix without opcode", ErrBadPrologue)
	}
	return inst, nil
}

func prefixBytes(inst x86asm.Inst) int {
	n := 0
	for _, p := range inst.Prefix {
		if p == 0 {
			break
		}
		if p&x86asm.PrefixImplicit == 0 {
			n++
		}
	}
	return n
}

func isREX(b byte) bool { return b&0xF0 == 0x40 }

// alreadyRedirected reports whether inst is an unconditional jump, which
// usually means another hooking library got there first.
func alreadyRedirected(inst x86asm.Inst) bool {
	return inst.Op == x86asm.JMP
}
