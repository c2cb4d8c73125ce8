// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

//go:build unix

package offsets

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

type regionSys struct {
	path string
	file *os.File
}

// CreateRegion creates the named region under dir, sized to size bytes and
// zero filled, and maps it for reading. A stale region with the same name is
// truncated.
func CreateRegion(dir, name string, size int) (*Region, error) {
	if dir == "" {
		dir = DefaultRegionDir()
	}
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("create region: %w", err)
	}

	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("size region: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("map region: %w", err)
	}

	return &Region{
		name: name,
		size: size,
		data: data,
		sys:  regionSys{path: path, file: f},
	}, nil
}

// Close unmaps and removes the region.
func (r *Region) Close() error {
	var firstErr error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			firstErr = err
		}
		r.data = nil
	}
	if r.sys.file != nil {
		if err := r.sys.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.sys.file = nil
	}
	os.Remove(r.sys.path)
	return firstErr
}

func writeRegion(dir, name string, b []byte) error {
	if dir == "" {
		dir = DefaultRegionDir()
	}
	path := filepath.Join(dir, name)

	// No O_CREATE: the region must have been created by the target process.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() != int64(len(b)) {
		return fmt.Errorf("region size %d, want %d", fi.Size(), len(b))
	}

	if _, err := f.WriteAt(b, 0); err != nil {
		return err
	}
	return f.Sync()
}
