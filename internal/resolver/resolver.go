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

// Package resolver implements the depth-first dependency resolution
// algorithm: given a set of Requirements and a Package Index, it
// produces a Resolution whose insertion order is deterministic and
// reflects declaration order.
package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	"github.com/pybun/pybun/internal/index"
)

const (
	errInvalidRange = "invalid version range constraint"
)

// ConstraintKind distinguishes an exact-version Requirement from a
// range-constrained one.
type ConstraintKind string

// Recognized constraint kinds.
const (
	KindExact ConstraintKind = "exact"
	KindRange ConstraintKind = "range"
)

// Requirement is a request for a package: a normalized name and a
// version constraint. Two Requirements are equal iff both fields
// match after normalization.
type Requirement struct {
	Name    string
	Kind    ConstraintKind
	Version string // exact version, for Kind == KindExact
	Range   string // semver range expression, for Kind == KindRange
}

// Exact builds an exact-version Requirement.
func Exact(name, version string) Requirement {
	return Requirement{Name: NormalizeName(name), Kind: KindExact, Version: version}
}

// WithRange builds a range-constrained Requirement.
func WithRange(name, rng string) Requirement {
	return Requirement{Name: NormalizeName(name), Kind: KindRange, Range: rng}
}

// ParseRequirement parses a CLI-supplied requirement string such as
// "requests>=2.28.0", "flask==3.0.0", or bare "numpy" (any version).
// Unparseable input falls back to an unconstrained requirement on the
// trimmed string, mirroring the tolerant fallback callers rely on when
// forwarding raw CLI arguments.
func ParseRequirement(s string) Requirement {
	trimmed := strings.TrimSpace(s)
	i := strings.IndexAny(trimmed, "<>=!~")
	if i < 0 {
		return WithRange(trimmed, "*")
	}

	name := strings.TrimSpace(trimmed[:i])
	spec := strings.TrimSpace(trimmed[i:])
	if name == "" {
		return WithRange(trimmed, "*")
	}
	if strings.HasPrefix(spec, "==") {
		return Exact(name, strings.TrimPrefix(spec, "=="))
	}
	return WithRange(name, spec)
}

// NormalizeName applies the ecosystem's package-name normalization:
// lowercase, with runs of '.', '_', or '-' collapsed to a single '-'.
// Two names that normalize to the same string are the same package.
func NormalizeName(name string) string {
	out := make([]byte, 0, len(name))
	lastDash := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '.' || c == '_' || c == '-':
			if !lastDash && len(out) > 0 {
				out = append(out, '-')
				lastDash = true
			}
		case c >= 'A' && c <= 'Z':
			out = append(out, c-'A'+'a')
			lastDash = false
		default:
			out = append(out, c)
			lastDash = false
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}

// ErrorKind distinguishes the reasons a resolve can fail.
type ErrorKind string

// Recognized resolve error kinds.
const (
	KindMissing  ErrorKind = "missing"
	KindConflict ErrorKind = "conflict"
)

// ResolveError is returned when resolution cannot complete.
type ResolveError struct {
	Kind      ErrorKind
	Name      string
	Version   string // the requested/missing version
	Existing  string // populated for KindConflict
	Requested string // populated for KindConflict
}

func (e *ResolveError) Error() string {
	switch e.Kind {
	case KindConflict:
		return "version conflict for " + e.Name + ": existing " + e.Existing + " vs requested " + e.Requested
	default:
		return "package " + e.Name + "==" + e.Version + " not found"
	}
}

// Resolution is an ordered mapping from package name to
// ResolvedPackage. Insertion order reflects resolution order: roots
// first, then a depth-first walk of dependencies.
type Resolution struct {
	order    []string
	packages map[string]index.ResolvedPackage
}

// NewResolution returns an empty Resolution.
func NewResolution() *Resolution {
	return &Resolution{packages: map[string]index.ResolvedPackage{}}
}

// Names returns the package names in insertion order.
func (r *Resolution) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the pinned package for name, if present.
func (r *Resolution) Get(name string) (index.ResolvedPackage, bool) {
	p, ok := r.packages[name]
	return p, ok
}

// Len returns the number of pinned packages.
func (r *Resolution) Len() int {
	return len(r.order)
}

// Packages returns the pinned packages in insertion order.
func (r *Resolution) Packages() []index.ResolvedPackage {
	out := make([]index.ResolvedPackage, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.packages[n])
	}
	return out
}

func (r *Resolution) insert(pkg index.ResolvedPackage) {
	if _, exists := r.packages[pkg.Name]; !exists {
		r.order = append(r.order, pkg.Name)
	}
	r.packages[pkg.Name] = pkg
}

// Resolver runs the depth-first resolution algorithm over a Package
// Index.
type Resolver struct {
	idx index.Index
}

// New constructs a Resolver over the given index.
func New(idx index.Index) *Resolver {
	return &Resolver{idx: idx}
}

// Resolve runs exact-version-first depth-first resolution. Requirements
// carrying a range are expanded against the index's full version list
// before being pushed onto the work stack.
func (r *Resolver) Resolve(ctx context.Context, requirements []Requirement) (*Resolution, error) {
	res := NewResolution()
	// Seed the stack in reverse so the roots, like dependencies below,
	// are popped in declaration order.
	stack := make([]Requirement, 0, len(requirements))
	for i := len(requirements) - 1; i >= 0; i-- {
		stack = append(stack, requirements[i])
	}

	for len(stack) > 0 {
		req := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		version := req.Version
		if req.Kind == KindRange {
			v, err := r.highestSatisfying(ctx, req.Name, req.Range)
			if err != nil {
				return nil, err
			}
			version = v
		}

		if existing, ok := res.Get(req.Name); ok {
			if existing.Version != version {
				return nil, &ResolveError{Kind: KindConflict, Name: req.Name, Existing: existing.Version, Requested: version}
			}
			continue
		}

		pkg, err := r.idx.Get(ctx, req.Name, version)
		if err != nil {
			return nil, errors.Wrapf(err, "index lookup failed for %s==%s", req.Name, version)
		}
		if pkg == nil {
			return nil, &ResolveError{Kind: KindMissing, Name: req.Name, Version: version}
		}

		// Push dependencies in reverse declaration order so they are
		// popped, and therefore processed, in declaration order.
		for i := len(pkg.Dependencies) - 1; i >= 0; i-- {
			stack = append(stack, fromIndexRequirement(pkg.Dependencies[i]))
		}

		res.insert(*pkg)
	}

	return res, nil
}

// highestSatisfying queries every known version of name, filters those
// satisfying rng, and returns the highest. Deterministic; returns a
// Missing error when the filtered set is empty.
func (r *Resolver) highestSatisfying(ctx context.Context, name, rng string) (string, error) {
	c, err := semver.NewConstraint(rng)
	if err != nil {
		return "", errors.Wrap(err, errInvalidRange)
	}

	all, err := r.idx.All(ctx, name)
	if err != nil {
		return "", errors.Wrapf(err, "failed to list versions for %s", name)
	}

	type cand struct {
		raw string
		v   *semver.Version
	}
	var candidates []cand
	for _, pkg := range all {
		v, err := semver.NewVersion(pkg.Version)
		if err != nil {
			continue
		}
		if c.Check(v) {
			candidates = append(candidates, cand{raw: pkg.Version, v: v})
		}
	}
	if len(candidates) == 0 {
		return "", &ResolveError{Kind: KindMissing, Name: name, Version: rng}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].v.GreaterThan(candidates[j].v)
	})
	return candidates[0].raw, nil
}

func fromIndexRequirement(r index.Requirement) Requirement {
	if r.Range != "" {
		return WithRange(r.Name, r.Range)
	}
	return Exact(r.Name, r.Version)
}
