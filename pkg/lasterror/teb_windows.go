// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build windows && (amd64 || 386)

package lasterror

// Implemented in teb_windows_$GOARCH.s.
func getLastError() uint32
func setLastError(code uint32)
