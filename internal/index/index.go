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

// Package index implements the Package Index capability: a two-method
// asynchronous contract (Get, All) with an in-memory implementation for
// tests and offline mode, and a remote implementation backed by a
// PyPI-style JSON API with per-name memoization, request coalescing,
// conditional-GET caching and lazy per-version dependency fetch.
package index

import "context"

// Requirement is a dependency declared by a ResolvedPackage: a
// normalized name plus either an exact version or a range expression.
type Requirement struct {
	Name    string
	Version string
	Range   string
}

// Wheel is a single binary distribution artifact.
type Wheel struct {
	Filename     string
	URL          string
	Hash         string // hex sha256, optional "sha256:" prefix
	PlatformTags []string
}

// SourceDist is a source distribution artifact.
type SourceDist struct {
	Filename string
	URL      string
	Hash     string
}

// ArtifactSet is the zero-or-more wheels and at-most-one source
// distribution associated with a pinned package version.
type ArtifactSet struct {
	Wheels []Wheel
	SDist  *SourceDist
}

// Provenance records which index produced a ResolvedPackage and which
// URL it came from.
type Provenance struct {
	IndexName string
	URL       string
}

// ResolvedPackage is a pinned package: name, version, its ordered
// dependencies, provenance, and its artifact set. Immutable after
// construction.
type ResolvedPackage struct {
	Name         string
	Version      string
	Dependencies []Requirement
	Provenance   Provenance
	Artifacts    ArtifactSet
}

// ErrorKind distinguishes why an Index operation failed.
type ErrorKind string

// Recognized index error kinds.
const (
	// KindOfflineNotCached is returned when offline mode is enabled and
	// no cache entry exists for the requested name.
	KindOfflineNotCached ErrorKind = "offline_not_cached"
)

// Error is returned by Index implementations for well-known failure
// kinds; lower-level transport errors are wrapped rather than
// represented here.
type Error struct {
	Kind ErrorKind
	Name string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindOfflineNotCached:
		return "offline mode: no cached entry for " + e.Name
	default:
		return "index error for " + e.Name
	}
}

// Index is the Package Index capability: fetch the exact package
// pinned at name+version, or every known version of name.
type Index interface {
	// Get returns the ResolvedPackage for name at version, or nil if no
	// such version exists.
	Get(ctx context.Context, name, version string) (*ResolvedPackage, error)
	// All returns every known ResolvedPackage for name (dependencies may
	// be left unpopulated; callers that need them call Get on the
	// specific version they select).
	All(ctx context.Context, name string) ([]ResolvedPackage, error)
}
