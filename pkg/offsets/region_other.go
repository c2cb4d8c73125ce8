// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build !unix && !windows

package offsets

import "errors"

var errNoRegions = errors.New("shared regions are not supported on this platform")

type regionSys struct{}

func CreateRegion(string, string, int) (*Region, error) { return nil, errNoRegions }

func (r *Region) Close() error { return nil }

func writeRegion(string, string, []byte) error { return errNoRegions }
