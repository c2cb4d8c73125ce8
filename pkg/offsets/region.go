// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package offsets

import (
	"fmt"
	"os"
	"strconv"
)

// DefaultMapPrefix prefixes the pid to form the shared region name.
const DefaultMapPrefix = "framehook-d3d9-offsets-"

// Environment passed to the helper so it opens the same region. The pid is
// still its only argument.
const (
	EnvRegionDir = "FRAMEHOOK_REGION_DIR"
	EnvMapPrefix = "FRAMEHOOK_MAP_PREFIX"
)

// RegionName returns the shared region name for pid.
func RegionName(prefix string, pid int) string {
	if prefix == "" {
		prefix = DefaultMapPrefix
	}
	return prefix + strconv.Itoa(pid)
}

// DefaultRegionDir is where file-backed regions live on unix: /dev/shm when
// present, the temp directory otherwise. Ignored on Windows.
func DefaultRegionDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Region is a named shared memory region mapped read-only by its creator.
// The helper process opens it by name and writes exactly one Table.
type Region struct {
	name string
	size int
	data []byte
	sys  regionSys
}

// Name returns the region name.
func (r *Region) Name() string { return r.name }

// Bytes returns the mapped contents. Valid until Close.
func (r *Region) Bytes() []byte { return r.data }

// Table decodes the region contents.
func (r *Region) Table() (*Table, error) {
	return Decode(r.data)
}

// Publish writes t into the region named name, which must already exist.
// This is the helper side of the handshake.
func Publish(dir, name string, t *Table) error {
	if err := writeRegion(dir, name, t.Bytes()); err != nil {
		return fmt.Errorf("publish offsets to %s: %w", name, err)
	}
	return nil
}
