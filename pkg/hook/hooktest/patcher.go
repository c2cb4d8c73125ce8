// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package hooktest provides an in-memory Patcher for tests.
package hooktest

import (
	"fmt"
	"sync"

	"github.com/mbeema/framehook/pkg/hook"
)

// Detour is a fake detour whose Call is served by Original.
type Detour struct {
	TargetAddr uintptr
	DetourAddr uintptr
	Original   func(args ...uintptr) uintptr
	// LastError, when set, supplies the last-error value Call reports.
	LastError func() uint32
	Calls     int
}

func (d *Detour) Target() uintptr { return d.TargetAddr }

func (d *Detour) Call(args ...uintptr) (uintptr, uint32) {
	d.Calls++
	var ret uintptr
	if d.Original != nil {
		ret = d.Original(args...)
	}
	var code uint32
	if d.LastError != nil {
		code = d.LastError()
	}
	return ret, code
}

// Patcher records prepared, enabled and removed detours without touching memory.
type Patcher struct {
	mu       sync.Mutex
	prepared map[uintptr]*Detour
	live     map[uintptr]*Detour
	removed  []RemoveCall

	// FailAt makes Prepare fail for that target address.
	FailAt map[uintptr]error
	// FailEnable makes Enable fail for that target address.
	FailEnable map[uintptr]error
	// FailRemove makes Remove fail (the detour is still forgotten).
	FailRemove error
	// Original is copied into every new Detour.
	Original func(args ...uintptr) uintptr
	// OnEnable runs right after a target is redirected, standing in for a
	// host thread that enters the patched function at once.
	OnEnable func(d *Detour)
}

// RemoveCall records one Remove invocation.
type RemoveCall struct {
	Target  uintptr
	Unpatch bool
}

// NewPatcher returns an empty fake patcher.
func NewPatcher() *Patcher {
	return &Patcher{
		prepared: make(map[uintptr]*Detour),
		live:     make(map[uintptr]*Detour),
	}
}

func (p *Patcher) Prepare(target, detour uintptr) (hook.Detour, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.FailAt[target]; err != nil {
		return nil, err
	}
	if p.prepared[target] != nil || p.live[target] != nil {
		return nil, fmt.Errorf("%#x: %w", target, hook.ErrDoubleHook)
	}
	d := &Detour{TargetAddr: target, DetourAddr: detour, Original: p.Original}
	p.prepared[target] = d
	return d, nil
}

func (p *Patcher) Enable(hd hook.Detour) error {
	p.mu.Lock()
	d, ok := p.prepared[hd.Target()]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%#x: %w", hd.Target(), hook.ErrHookNotFound)
	}
	if err := p.FailEnable[d.TargetAddr]; err != nil {
		p.mu.Unlock()
		return err
	}
	delete(p.prepared, d.TargetAddr)
	p.live[d.TargetAddr] = d
	onEnable := p.OnEnable
	p.mu.Unlock()

	if onEnable != nil {
		onEnable(d)
	}
	return nil
}

func (p *Patcher) Remove(d hook.Detour, unpatch bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := d.Target()
	switch {
	case p.live[target] != nil:
		delete(p.live, target)
	case p.prepared[target] != nil:
		delete(p.prepared, target)
	default:
		return fmt.Errorf("%#x: %w", target, hook.ErrHookNotFound)
	}
	p.removed = append(p.removed, RemoveCall{Target: target, Unpatch: unpatch})
	return p.FailRemove
}

// Live returns the number of redirected targets.
func (p *Patcher) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Pending returns the number of prepared but not enabled detours.
func (p *Patcher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prepared)
}

// Installed reports whether target is currently redirected.
func (p *Patcher) Installed(target uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.live[target]
	return ok
}

// Removed returns every Remove call so far.
func (p *Patcher) Removed() []RemoveCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RemoveCall(nil), p.removed...)
}
