// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package offsets

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mbeema/framehook/pkg/module"
)

// HelperName is the helper executable's file name without extension.
const HelperName = "framehook-helper"

func helperFileName() string {
	if runtime.GOOS == "windows" {
		return HelperName + ".exe"
	}
	return HelperName
}

// FindHelper locates the helper executable. An explicit path wins; otherwise
// the helper is expected next to the framehook image.
func FindHelper(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("helper %s: %w", explicit, err)
		}
		return explicit, nil
	}

	var candidates []string
	if dir, err := module.SelfDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, helperFileName()))
	}
	candidates = append(candidates, filepath.Join(".", "bin", helperFileName()))

	for _, path := range candidates {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
	}

	return "", fmt.Errorf("%s not found; build it with 'go build ./cmd/%s'", helperFileName(), HelperName)
}
