// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package d3d9

import (
	"fmt"
	"unsafe"

	"github.com/mbeema/framehook/pkg/lasterror"
	"github.com/mbeema/framehook/pkg/offsets"
	"github.com/mbeema/framehook/pkg/reentrancy"
	"go.uber.org/zap"
)

// Present intercepts IDirect3DDevice9::Present.
func (s *Session) Present(dev, srcRect, dstRect, window, dirty uintptr) uintptr {
	return s.intercept(offsets.Present, reentrancy.Frame, func() { s.frame(dev) }, nil,
		dev, srcRect, dstRect, window, dirty)
}

// EndScene intercepts IDirect3DDevice9::EndScene.
func (s *Session) EndScene(dev uintptr) uintptr {
	return s.intercept(offsets.EndScene, reentrancy.Frame, func() { s.frame(dev) }, nil, dev)
}

// PresentEx intercepts IDirect3DDevice9Ex::PresentEx.
func (s *Session) PresentEx(dev, srcRect, dstRect, window, dirty, flags uintptr) uintptr {
	return s.intercept(offsets.PresentEx, reentrancy.Frame, func() { s.frame(dev) }, nil,
		dev, srcRect, dstRect, window, dirty, flags)
}

// SwapChainPresent intercepts IDirect3DSwapChain9::Present. The frame is
// reported against the device that owns the swap chain.
func (s *Session) SwapChainPresent(swapChain, srcRect, dstRect, window, dirty, flags uintptr) uintptr {
	return s.intercept(offsets.SwapChainPresent, reentrancy.Frame, func() { s.swapChainFrame(swapChain) }, nil,
		swapChain, srcRect, dstRect, window, dirty, flags)
}

// Reset intercepts IDirect3DDevice9::Reset.
func (s *Session) Reset(dev, params uintptr) uintptr {
	return s.intercept(offsets.Reset, reentrancy.Reset, func() { s.reset(dev, params) }, nil, dev, params)
}

// ResetEx intercepts IDirect3DDevice9Ex::ResetEx.
func (s *Session) ResetEx(dev, params, mode uintptr) uintptr {
	return s.intercept(offsets.ResetEx, reentrancy.Reset, func() { s.reset(dev, params) }, nil, dev, params, mode)
}

// AddRef intercepts IDirect3DDevice9::AddRef. It only participates in the
// release nesting count so references taken inside Release are ignored.
func (s *Session) AddRef(dev uintptr) uintptr {
	return s.intercept(offsets.AddRef, reentrancy.Release, nil, nil, dev)
}

// Release intercepts IDirect3DDevice9::Release. When the outermost call
// drops the last reference the device leaves the registry and release
// subscribers run.
func (s *Session) Release(dev uintptr) uintptr {
	return s.intercept(offsets.Release, reentrancy.Release, nil, func(ret uintptr) { s.released(dev, ret) }, dev)
}

// intercept is the shared shape of every entry point. before runs ahead of
// the original function and after sees its result; both only run on the
// outermost call of kind on this thread.
func (s *Session) intercept(f offsets.Func, kind reentrancy.Kind, before func(), after func(ret uintptr), args ...uintptr) uintptr {
	le := lasterror.Capture(s.lastErr)
	defer le.Restore()

	scope := s.guard.Enter(kind)
	defer scope.Release()

	b := s.bound[f].Load()
	if b == nil {
		s.logger.Error("intercepted call has no trampoline", zap.Stringer("func", f))
		return D3DERR_INVALIDCALL
	}

	outer := scope.Outermost()
	if ce := s.logger.Check(zap.DebugLevel, "intercepted call"); ce != nil {
		ce.Write(zap.Stringer("func", f), zap.Uint32("depth", scope.Count()), zap.String("this", fmt.Sprintf("%#x", args[0])))
	}
	if outer && before != nil {
		s.sideEffect(f, before)
	} else if !outer && s.stats != nil {
		s.stats.NestedCalls.Add(1)
	}

	le.Revert()
	ret, code := b.detour.Call(args...)
	le.Update(code)

	if outer && after != nil {
		s.sideEffect(f, func() { after(ret) })
	}
	return ret
}

// sideEffect runs fn and contains any panic so the original call still runs.
func (s *Session) sideEffect(f offsets.Func, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("side effect panicked",
				zap.Stringer("func", f),
				zap.String("panic", fmt.Sprint(r)),
			)
			if s.stats != nil {
				s.stats.SideEffectFailures.Add(1)
			}
		}
	}()
	fn()
}

func (s *Session) track(dev uintptr) {
	s.registry.EnsureTracked(dev)
	if s.stats != nil {
		s.stats.DevicesTracked.Store(int64(s.registry.Len()))
	}
}

func (s *Session) frame(dev uintptr) {
	s.track(dev)
	s.frames.Run(func(fn FrameFunc) { fn(dev) })
	if s.stats != nil {
		s.stats.FramesDispatched.Add(1)
	}
}

func (s *Session) swapChainFrame(swapChain uintptr) {
	dev, release, err := s.devices.DeviceOf(swapChain)
	if err != nil {
		s.logger.Warn("IDirect3DSwapChain9::GetDevice failed",
			zap.String("swap_chain", fmt.Sprintf("%#x", swapChain)),
			zap.Error(err),
		)
		if s.stats != nil {
			s.stats.SideEffectFailures.Add(1)
		}
		return
	}
	if release != nil {
		defer release()
	}
	s.frame(dev)
}

func (s *Session) reset(dev, params uintptr) {
	s.track(dev)
	pp := (*PresentParameters)(unsafe.Pointer(params))
	s.resets.Run(func(fn ResetFunc) { fn(dev, pp) })
	if s.stats != nil {
		s.stats.ResetsDispatched.Add(1)
	}
}

func (s *Session) released(dev, ret uintptr) {
	if uint32(ret) != 0 {
		return
	}
	if !s.registry.Remove(dev) {
		return
	}
	if s.stats != nil {
		s.stats.DevicesTracked.Store(int64(s.registry.Len()))
		s.stats.ReleasesDispatched.Add(1)
	}
	s.logger.Debug("device released", zap.String("device", fmt.Sprintf("%#x", dev)))
	s.releases.Run(func(fn ReleaseFunc) { fn(dev) })
}
