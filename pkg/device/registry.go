// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package device

import (
	"sort"
	"sync"
	"time"
)

// Entry is a device observed through intercepted traffic.
type Entry struct {
	ID        uintptr
	RefCount  uint64
	FirstSeen time.Time
}

// Registry tracks devices by object address. Entries are created on first
// sight and only removed when the device is released.
type Registry struct {
	mu      sync.Mutex
	entries map[uintptr]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[uintptr]*Entry),
	}
}

// EnsureTracked inserts id with a reference count of 1 if it is not present.
// Existing entries are left unchanged.
func (r *Registry) EnsureTracked(id uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return
	}
	r.entries[id] = &Entry{
		ID:        id,
		RefCount:  1,
		FirstSeen: time.Now(),
	}
}

// Remove drops id and reports whether it was tracked.
func (r *Registry) Remove(id uintptr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Lookup returns a copy of the entry for id.
func (r *Registry) Lookup(id uintptr) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of tracked devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns copies of all entries ordered by ID.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
