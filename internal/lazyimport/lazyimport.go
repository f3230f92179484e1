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

// Package lazyimport decides which imports a generated environment
// shim should defer, and renders the Python shim source that performs
// the deferral. It backs `pybun lazy-import`.
package lazyimport

import (
	"strings"
)

// Decision is the outcome of evaluating a module name against a
// Config's allow/deny rules.
type Decision string

// Recognized decisions.
const (
	DecisionLazy   Decision = "lazy"
	DecisionEager  Decision = "eager"
	DecisionDenied Decision = "denied"
)

// DefaultDenylist are modules that must never be lazily imported:
// core runtime machinery and modules with import-time side effects.
var DefaultDenylist = []string{
	"sys", "builtins", "importlib", "importlib.abc", "importlib.machinery",
	"importlib.util", "_frozen_importlib", "_frozen_importlib_external",
	"os", "os.path", "io", "abc", "types", "functools", "collections",
	"collections.abc", "warnings", "contextlib", "typing",
	"signal", "threading", "multiprocessing", "atexit", "gc", "traceback", "logging",
}

// Config controls which modules are eligible for lazy import.
type Config struct {
	Enabled           bool
	Allowlist         map[string]bool
	Denylist          map[string]bool
	FallbackToCPython bool
	LogImports        bool
}

// DefaultConfig returns a disabled Config with the default denylist and
// CPython fallback on.
func DefaultConfig() Config {
	deny := make(map[string]bool, len(DefaultDenylist))
	for _, m := range DefaultDenylist {
		deny[m] = true
	}
	return Config{Enabled: false, Allowlist: map[string]bool{}, Denylist: deny, FallbackToCPython: true}
}

// WithDefaults returns a Config identical to DefaultConfig but enabled.
func WithDefaults() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	return cfg
}

// Allow adds moduleName to the allowlist.
func (c *Config) Allow(moduleName string) {
	c.Allowlist[moduleName] = true
}

// Deny adds moduleName to the denylist.
func (c *Config) Deny(moduleName string) {
	c.Denylist[moduleName] = true
}

// IsDenied reports whether moduleName or any dotted-path ancestor of it
// is in the denylist.
func (c *Config) IsDenied(moduleName string) bool {
	return matchesSelfOrAncestor(c.Denylist, moduleName)
}

// IsAllowed reports whether moduleName or any dotted-path ancestor of
// it is in the allowlist.
func (c *Config) IsAllowed(moduleName string) bool {
	return matchesSelfOrAncestor(c.Allowlist, moduleName)
}

// ShouldLazyImport decides whether moduleName should be lazily
// imported under this configuration: denylist wins outright; if the
// allowlist is non-empty, only allowlisted modules are lazy; otherwise
// every non-denied module is lazy.
func (c *Config) ShouldLazyImport(moduleName string) Decision {
	if !c.Enabled {
		return DecisionEager
	}
	if c.IsDenied(moduleName) {
		return DecisionDenied
	}
	if len(c.Allowlist) > 0 {
		if c.IsAllowed(moduleName) {
			return DecisionLazy
		}
		return DecisionEager
	}
	return DecisionLazy
}

func matchesSelfOrAncestor(set map[string]bool, moduleName string) bool {
	if set[moduleName] {
		return true
	}
	parts := strings.Split(moduleName, ".")
	for i := 1; i < len(parts); i++ {
		if set[strings.Join(parts[:i], ".")] {
			return true
		}
	}
	return false
}

// Stats accumulates lazy-import outcome counts for a run.
type Stats struct {
	LazyImports          int   `json:"lazy_imports"`
	EagerImports         int   `json:"eager_imports"`
	DeniedImports        int   `json:"denied_imports"`
	FallbackImports      int   `json:"fallback_imports"`
	EstimatedTimeSavedMs int64 `json:"estimated_time_saved_ms"`
}

// RecordDecision tallies one module's decision into Stats.
func (s *Stats) RecordDecision(d Decision) {
	switch d {
	case DecisionLazy:
		s.LazyImports++
	case DecisionDenied:
		s.DeniedImports++
	default:
		s.EagerImports++
	}
}

// RecordFallback tallies a lazy import that fell back to an eager
// CPython import after failing.
func (s *Stats) RecordFallback() {
	s.FallbackImports++
}
