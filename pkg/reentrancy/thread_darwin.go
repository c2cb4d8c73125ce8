// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build darwin

package reentrancy

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
)

var (
	threadIDOnce sync.Once
	threadIDErr  error
	// int pthread_threadid_np(pthread_t thread, uint64_t *thread_id)
	pthreadThreadID func(thread uintptr, id *uint64) int32
)

func loadThreadID() {
	lib, err := purego.Dlopen("/usr/lib/libSystem.B.dylib", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		threadIDErr = fmt.Errorf("load libSystem: %w", err)
		return
	}
	purego.RegisterLibFunc(&pthreadThreadID, lib, "pthread_threadid_np")
}

// CurrentThreadID returns the system-wide id of the calling thread.
func CurrentThreadID() uint64 {
	threadIDOnce.Do(loadThreadID)
	if threadIDErr != nil {
		return 0
	}
	var id uint64
	pthreadThreadID(0, &id) // a null thread means the caller
	return id
}

// CheckThreadID reports whether CurrentThreadID identifies OS threads.
func CheckThreadID() error {
	threadIDOnce.Do(loadThreadID)
	return threadIDErr
}
