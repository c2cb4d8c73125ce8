// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package offsets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog maps module names to known offset tables. The helper uses it as its
// discovery step.
type Catalog struct {
	Modules map[string]Table `yaml:"modules"`
}

// LoadCatalog reads a YAML catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &c, nil
}

// Lookup returns the table for name. Matching ignores case and a file
// extension, so "D3D9.dll" finds "d3d9".
func (c *Catalog) Lookup(name string) (*Table, error) {
	want := normalizeModule(name)
	for k, t := range c.Modules {
		if normalizeModule(k) == want {
			t := t
			return &t, nil
		}
	}
	return nil, fmt.Errorf("no offsets for module %q", name)
}

func normalizeModule(name string) string {
	name = strings.ToLower(filepath.Base(name))
	return strings.TrimSuffix(name, filepath.Ext(name))
}
