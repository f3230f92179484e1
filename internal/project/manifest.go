// Copyright 2021 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package project is the narrow project-manifest loader spec.md
// deliberately keeps out of the core's scope: "TOML/JSON parsing of
// the project manifest (interface: a loader yielding a normalized
// project struct)". It reads just enough of pyproject.toml's
// [project] table to hand the resolver a requirement list, and
// round-trips the dependencies array for `pybun add`/`pybun remove`.
package project

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// ManifestFile is the conventional project-manifest filename, looked
// up in the current directory.
const ManifestFile = "pyproject.toml"

// Manifest is the normalized subset of pyproject.toml pybun consumes.
type Manifest struct {
	Project struct {
		Name           string   `toml:"name"`
		Version        string   `toml:"version"`
		RequiresPython string   `toml:"requires-python"`
		Dependencies   []string `toml:"dependencies"`
	} `toml:"project"`

	path string
}

// Load reads and decodes the manifest at dir/pyproject.toml.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to read project manifest %s", path)
	}
	m.path = path
	return &m, nil
}

// Dependencies returns the manifest's declared dependency strings.
func (m *Manifest) Dependencies() []string {
	return m.Project.Dependencies
}

// AddDependency adds spec to the manifest's dependency list,
// replacing any existing entry for the same package name, sorts the
// list, and rewrites the manifest file in place.
func (m *Manifest) AddDependency(spec string) error {
	name := dependencyName(spec)
	deps := make([]string, 0, len(m.Project.Dependencies)+1)
	for _, d := range m.Project.Dependencies {
		if dependencyName(d) == name {
			continue
		}
		deps = append(deps, d)
	}
	deps = append(deps, spec)
	sort.Strings(deps)
	m.Project.Dependencies = deps
	return m.save()
}

// RemoveDependency deletes the dependency named name from the
// manifest, if present, and rewrites the manifest file in place.
func (m *Manifest) RemoveDependency(name string) error {
	deps := make([]string, 0, len(m.Project.Dependencies))
	for _, d := range m.Project.Dependencies {
		if dependencyName(d) != name {
			deps = append(deps, d)
		}
	}
	m.Project.Dependencies = deps
	return m.save()
}

func (m *Manifest) save() error {
	f, err := os.Create(m.path)
	if err != nil {
		return errors.Wrap(err, "failed to write project manifest")
	}
	defer f.Close() // nolint:errcheck
	enc := toml.NewEncoder(f)
	return errors.Wrap(enc.Encode(m), "failed to encode project manifest")
}

// dependencyName extracts the bare package name from a requirement
// string such as "requests>=2.28.0" or "requests==2.0".
func dependencyName(spec string) string {
	for i, r := range spec {
		if r == '=' || r == '>' || r == '<' || r == '!' || r == '~' || r == '[' || r == ' ' {
			return spec[:i]
		}
	}
	return spec
}
