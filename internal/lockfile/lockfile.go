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

// Package lockfile persists a Resolution to disk: platform tags, the
// interpreter minor versions the lock was produced for, and for each
// package its pinned version, source, wheel filename, content hash and
// dependency list. Encoding is canonical JSON, matching the teacher's
// encoding/json use in internal/config rather than any binary format.
package lockfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/pybun/pybun/internal/index"
	"github.com/pybun/pybun/internal/resolver"
)

// FileName is the canonical lockfile name written by this
// implementation. LegacyFileName is accepted on read only, for
// backward compatibility with lockfiles written under the binary-
// suffixed name by the original implementation.
const (
	FileName       = "pybun.lock"
	LegacyFileName = "pybun.lockb"

	schemaVersion = 1
)

const (
	errEncode = "failed to encode lockfile"
	errWrite  = "failed to write lockfile"
	errRead   = "failed to read lockfile"
	errDecode = "failed to decode lockfile"
)

// SourceKind distinguishes where a locked package's artifact came
// from.
type SourceKind string

// Recognized source kinds.
const (
	SourceRegistry SourceKind = "registry"
	SourcePath     SourceKind = "path"
	SourceURL      SourceKind = "url"
)

// Source records a locked package's provenance.
type Source struct {
	Kind      SourceKind `json:"kind"`
	IndexName string     `json:"index_name,omitempty"`
	URL       string     `json:"url,omitempty"`
	Path      string     `json:"path,omitempty"`
}

// Package is one locked entry: a pinned name+version, its source, the
// wheel that satisfies it, and its dependency list rendered as
// "name==version" strings for exact pins and "name<range>" strings
// (e.g. "werkzeug>=3.0") for ranges (string-encoded, rather
// than nested Requirement objects, so the lockfile stays a flat,
// diffable record).
type Package struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Source       Source   `json:"source"`
	WheelName    string   `json:"wheel_filename,omitempty"`
	Hash         string   `json:"hash,omitempty"`
	Dependencies []string `json:"dependencies"`
}

// Lockfile is a persisted Resolution plus the platform and interpreter
// context it was produced for.
type Lockfile struct {
	SchemaVersion int       `json:"schema_version"`
	Platforms     []string  `json:"platforms"`
	Interpreters  []string  `json:"interpreters"`
	Packages      []Package `json:"packages"`
}

// FromResolution builds a Lockfile from a completed Resolution,
// preserving its insertion order (roots first, depth-first).
func FromResolution(res *resolver.Resolution, platforms, interpreters []string) *Lockfile {
	lf := &Lockfile{
		SchemaVersion: schemaVersion,
		Platforms:     append([]string(nil), platforms...),
		Interpreters:  append([]string(nil), interpreters...),
	}
	for _, pkg := range res.Packages() {
		lf.Packages = append(lf.Packages, fromResolvedPackage(pkg))
	}
	return lf
}

func fromResolvedPackage(pkg index.ResolvedPackage) Package {
	deps := make([]string, 0, len(pkg.Dependencies))
	for _, d := range pkg.Dependencies {
		if d.Range != "" {
			deps = append(deps, d.Name+d.Range)
			continue
		}
		deps = append(deps, d.Name+"=="+d.Version)
	}

	var wheelName, hash string
	if len(pkg.Artifacts.Wheels) > 0 {
		w := pkg.Artifacts.Wheels[0]
		wheelName = w.Filename
		hash = w.Hash
	}

	return Package{
		Name:    pkg.Name,
		Version: pkg.Version,
		Source: Source{
			Kind:      SourceRegistry,
			IndexName: pkg.Provenance.IndexName,
			URL:       pkg.Provenance.URL,
		},
		WheelName:    wheelName,
		Hash:         hash,
		Dependencies: deps,
	}
}

// Save writes lf as canonical JSON to dir/FileName, using the same
// write-temp-then-rename discipline as the cache layer so a reader
// never observes a partial lockfile.
func Save(fs afero.Fs, dir string, lf *Lockfile) error {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return errors.Wrap(err, errEncode)
	}
	data = append(data, '\n')

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errWrite)
	}

	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"

	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return errors.Wrap(err, errWrite)
	}
	if f, err := fs.Open(tmp); err == nil {
		if syncer, ok := f.(interface{ Sync() error }); ok {
			_ = syncer.Sync()
		}
		_ = f.Close()
	}
	if err := fs.Rename(tmp, path); err != nil {
		return errors.Wrap(err, errWrite)
	}
	return nil
}

// Load reads a lockfile from dir, trying FileName first and falling
// back to LegacyFileName.
func Load(fs afero.Fs, dir string) (*Lockfile, error) {
	for _, name := range []string{FileName, LegacyFileName} {
		data, err := afero.ReadFile(fs, filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrap(err, errRead)
		}
		var lf Lockfile
		if err := json.Unmarshal(data, &lf); err != nil {
			return nil, errors.Wrap(err, errDecode)
		}
		return &lf, nil
	}
	return nil, errors.Wrap(os.ErrNotExist, errRead)
}

// PackageNames returns the locked package names in lock-file order.
func (lf *Lockfile) PackageNames() []string {
	names := make([]string, len(lf.Packages))
	for i, p := range lf.Packages {
		names[i] = p.Name
	}
	return names
}

// Sorted returns a copy of lf with its Packages sorted by name, for
// callers that want a diff-stable view independent of resolution
// order (resolution order is still what gets written by Save).
func (lf *Lockfile) Sorted() *Lockfile {
	out := *lf
	out.Packages = append([]Package(nil), lf.Packages...)
	sort.Slice(out.Packages, func(i, j int) bool {
		return out.Packages[i].Name < out.Packages[j].Name
	})
	return &out
}
