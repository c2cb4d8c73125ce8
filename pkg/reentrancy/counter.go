// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package reentrancy tracks per-thread nesting depth of intercepted calls.
//
// Intercepted functions are entered from native code on whatever OS thread the
// host uses, and a native callback stays on that thread until it returns. The
// counters are therefore keyed by OS thread id, which gives the same semantics
// as a thread-local variable per event kind.
package reentrancy

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrNoThreadID means OS thread ids are not available, so nesting cannot be
// tracked per thread.
var ErrNoThreadID = errors.New("no OS thread id")

// Kind identifies an independent nesting counter.
type Kind uint8

const (
	Frame   Kind = iota // Present, EndScene, PresentEx, swap chain Present
	Reset               // Reset, ResetEx
	Release             // AddRef, Release
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Frame:
		return "frame"
	case Reset:
		return "reset"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type threadCounters [numKinds]atomic.Uint32

func (tc *threadCounters) idle() bool {
	for i := range tc {
		if tc[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Counters holds one counter per (thread, Kind). Only the owning thread ever
// modifies its counters. A thread's entry exists only while it is inside at
// least one intercepted call.
type Counters struct {
	threadID func() uint64
	threads  sync.Map // uint64 -> *threadCounters
}

// NewCounters creates a counter set. threadID identifies the calling thread;
// nil selects the OS thread id.
func NewCounters(threadID func() uint64) *Counters {
	if threadID == nil {
		threadID = CurrentThreadID
	}
	return &Counters{threadID: threadID}
}

func (c *Counters) forThread(tid uint64) *threadCounters {
	if v, ok := c.threads.Load(tid); ok {
		return v.(*threadCounters)
	}
	v, _ := c.threads.LoadOrStore(tid, new(threadCounters))
	return v.(*threadCounters)
}

// Scope is an acquired guard. Release must be called exactly once, normally
// with defer.
type Scope struct {
	owner *Counters
	tid   uint64
	set   *threadCounters
	kind  Kind
	count uint32
}

// Enter increments the calling thread's counter for kind.
func (c *Counters) Enter(kind Kind) Scope {
	tid := c.threadID()
	set := c.forThread(tid)
	return Scope{owner: c, tid: tid, set: set, kind: kind, count: set[kind].Add(1)}
}

// Count is the depth observed immediately after Enter. 1 means outermost.
func (s Scope) Count() uint32 {
	return s.count
}

// Outermost reports whether this is the first, non-nested invocation.
func (s Scope) Outermost() bool {
	return s.count == 1
}

// Release decrements the counter acquired by Enter. The thread's entry is
// dropped once every kind is back at zero.
func (s Scope) Release() {
	if s.set[s.kind].Add(^uint32(0)) == 0 && s.set.idle() {
		s.owner.threads.CompareAndDelete(s.tid, s.set)
	}
}

// Threads returns the number of threads currently inside an intercepted call.
func (c *Counters) Threads() int {
	n := 0
	c.threads.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Depth returns the calling thread's current depth for kind.
func (c *Counters) Depth(kind Kind) uint32 {
	v, ok := c.threads.Load(c.threadID())
	if !ok {
		return 0
	}
	return v.(*threadCounters)[kind].Load()
}
