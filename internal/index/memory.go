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

package index

import (
	"context"
	"strings"
)

// InMemoryIndex is a static, in-process Index implementation used by
// tests and offline mode. It is built incrementally with Add.
type InMemoryIndex struct {
	packages map[string]map[string]ResolvedPackage // name -> version -> package
}

// NewInMemoryIndex returns an empty InMemoryIndex.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{packages: map[string]map[string]ResolvedPackage{}}
}

// Add registers a package version with its dependency requirements,
// given in the compact "name==version" or bare "name" (any version)
// form used throughout test fixtures.
func (m *InMemoryIndex) Add(name, version string, deps ...string) {
	reqs := make([]Requirement, 0, len(deps))
	for _, d := range deps {
		reqs = append(reqs, parseCompactRequirement(d))
	}
	m.AddPackage(ResolvedPackage{
		Name:         name,
		Version:      version,
		Dependencies: reqs,
	})
}

// AddPackage registers a fully constructed ResolvedPackage.
func (m *InMemoryIndex) AddPackage(pkg ResolvedPackage) {
	if m.packages[pkg.Name] == nil {
		m.packages[pkg.Name] = map[string]ResolvedPackage{}
	}
	m.packages[pkg.Name][pkg.Version] = pkg
}

// Get implements Index.
func (m *InMemoryIndex) Get(_ context.Context, name, version string) (*ResolvedPackage, error) {
	versions, ok := m.packages[name]
	if !ok {
		return nil, nil
	}
	pkg, ok := versions[version]
	if !ok {
		return nil, nil
	}
	return &pkg, nil
}

// All implements Index.
func (m *InMemoryIndex) All(_ context.Context, name string) ([]ResolvedPackage, error) {
	versions, ok := m.packages[name]
	if !ok {
		return nil, nil
	}
	out := make([]ResolvedPackage, 0, len(versions))
	for _, pkg := range versions {
		out = append(out, pkg)
	}
	return out, nil
}

func parseCompactRequirement(input string) Requirement {
	if name, version, ok := strings.Cut(input, "=="); ok {
		return Requirement{Name: strings.TrimSpace(name), Version: strings.TrimSpace(version)}
	}
	return Requirement{Name: strings.TrimSpace(input), Range: ">=0.0.0"}
}
