// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package callbacks implements a per-event subscriber registry used to fan out
// intercepted graphics events to in-process observers.
package callbacks

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type subscription[F any] struct {
	id uint64
	fn F
}

// Broker holds the subscribers for one event kind. F is the callback type,
// e.g. func(device uintptr).
//
// Run iterates an immutable snapshot, so Register and Unregister are safe to
// call from inside a callback. Changes take effect on the next Run.
type Broker[F any] struct {
	name   string
	logger *zap.Logger

	// OnPanic, when set, is called after a subscriber panic has been recovered.
	OnPanic func(id uint64, recovered any)

	mu     sync.Mutex // serializes writers
	nextID uint64
	subs   atomic.Pointer[[]subscription[F]]
}

// NewBroker creates an empty broker. name is only used in log output.
func NewBroker[F any](name string, logger *zap.Logger) *Broker[F] {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Broker[F]{name: name, logger: logger}
	empty := []subscription[F]{}
	b.subs.Store(&empty)
	return b
}

// Register adds fn and returns its id. Ids start at 1 and are never reused.
func (b *Broker[F]) Register(fn F) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	cur := *b.subs.Load()
	next := make([]subscription[F], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, subscription[F]{id: id, fn: fn})
	b.subs.Store(&next)

	b.logger.Debug("callback registered", zap.String("event", b.name), zap.Uint64("id", id))
	return id
}

// Unregister removes the subscription with the given id. Unknown or already
// removed ids are ignored.
func (b *Broker[F]) Unregister(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.subs.Load()
	idx := -1
	for i := range cur {
		if cur[i].id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	next := make([]subscription[F], 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	b.subs.Store(&next)

	b.logger.Debug("callback unregistered", zap.String("event", b.name), zap.Uint64("id", id))
}

// Run calls invoke once per subscriber, in registration order, on the calling
// goroutine. A panicking subscriber is logged and skipped.
func (b *Broker[F]) Run(invoke func(fn F)) {
	for _, s := range *b.subs.Load() {
		b.runOne(s, invoke)
	}
}

// Len returns the number of registered subscribers.
func (b *Broker[F]) Len() int {
	return len(*b.subs.Load())
}

func (b *Broker[F]) runOne(s subscription[F], invoke func(fn F)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("callback panicked",
				zap.String("event", b.name),
				zap.Uint64("id", s.id),
				zap.String("panic", fmt.Sprint(r)),
			)
			if b.OnPanic != nil {
				b.OnPanic(s.id, r)
			}
		}
	}()
	invoke(s.fn)
}
