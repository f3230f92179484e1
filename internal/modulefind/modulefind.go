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

// Package modulefind implements an opt-in accelerated module finder:
// given a set of search paths (an interpreter's sys.path-equivalent),
// it resolves a dotted import name to the file or package directory
// that satisfies it, the way Python's default finders do, but with a
// result cache and parallel directory scanning. It backs
// `pybun module-find`.
package modulefind

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Type classifies a discovered module.
type Type string

// Recognized module types.
const (
	TypeModule           Type = "module"
	TypePackage          Type = "package"
	TypeNamespacePackage Type = "namespace_package"
	TypeExtension        Type = "extension"
)

// DefaultExtensions are the file suffixes considered Python modules,
// in the order they are probed.
var DefaultExtensions = []string{".py", ".pyc", ".pyd", ".so"}

// Info describes one discovered module.
type Info struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Type       Type   `json:"type"`
	SearchPath string `json:"search_path"`
}

// SearchResult is the outcome of resolving one import name.
type SearchResult struct {
	Module        *Info    `json:"module,omitempty"`
	SearchedPaths []string `json:"searched_paths"`
	DurationUs    int64    `json:"duration_us"`
}

// Config controls a Finder's behavior.
type Config struct {
	SearchPaths  []string
	CacheEnabled bool
	Extensions   []string
}

// DefaultConfig returns a Config with caching on and the default
// extension list, and no search paths.
func DefaultConfig() Config {
	return Config{CacheEnabled: true, Extensions: append([]string(nil), DefaultExtensions...)}
}

// Finder resolves dotted import names against a set of search paths.
type Finder struct {
	mu     sync.RWMutex
	config Config
	cache  map[string]*Info
}

// New constructs a Finder with the given configuration.
func New(config Config) *Finder {
	if len(config.Extensions) == 0 {
		config.Extensions = append([]string(nil), DefaultExtensions...)
	}
	return &Finder{config: config, cache: make(map[string]*Info)}
}

// AddSearchPath appends path to the search list if not already present.
func (f *Finder) AddSearchPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.config.SearchPaths {
		if existing == path {
			return
		}
	}
	f.config.SearchPaths = append(f.config.SearchPaths, path)
}

// CacheSize reports the number of cached lookups, hits and misses both.
func (f *Finder) CacheSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

// ClearCache discards all cached lookups.
func (f *Finder) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]*Info)
}

// Find resolves moduleName (e.g. "pkg.sub.mod") against the configured
// search paths, caching the result (positive or negative) when caching
// is enabled.
func (f *Finder) Find(moduleName string) SearchResult {
	start := time.Now()

	if f.config.CacheEnabled {
		f.mu.RLock()
		cached, ok := f.cache[moduleName]
		f.mu.RUnlock()
		if ok {
			return SearchResult{Module: cached, DurationUs: time.Since(start).Microseconds()}
		}
	}

	var searched []string
	parts := strings.Split(moduleName, ".")

	f.mu.RLock()
	searchPaths := append([]string(nil), f.config.SearchPaths...)
	f.mu.RUnlock()

	for _, root := range searchPaths {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}
		searched = append(searched, root)
		if found := f.findInPath(root, parts); found != nil {
			if f.config.CacheEnabled {
				f.mu.Lock()
				f.cache[moduleName] = found
				f.mu.Unlock()
			}
			return SearchResult{Module: found, SearchedPaths: searched, DurationUs: time.Since(start).Microseconds()}
		}
	}

	if f.config.CacheEnabled {
		f.mu.Lock()
		f.cache[moduleName] = nil
		f.mu.Unlock()
	}
	return SearchResult{SearchedPaths: searched, DurationUs: time.Since(start).Microseconds()}
}

func (f *Finder) findInPath(root string, parts []string) *Info {
	if len(parts) == 0 {
		return nil
	}

	current := root
	for _, part := range parts[:len(parts)-1] {
		current = filepath.Join(current, part)
		if info, err := os.Stat(current); err != nil || !info.IsDir() {
			return nil
		}
	}

	last := parts[len(parts)-1]
	name := strings.Join(parts, ".")

	packageDir := filepath.Join(current, last)
	if info, err := os.Stat(packageDir); err == nil && info.IsDir() {
		initPy := filepath.Join(packageDir, "__init__.py")
		if _, err := os.Stat(initPy); err == nil {
			return &Info{Name: name, Path: initPy, Type: TypePackage, SearchPath: root}
		}
		return &Info{Name: name, Path: packageDir, Type: TypeNamespacePackage, SearchPath: root}
	}

	for _, ext := range f.config.Extensions {
		candidate := filepath.Join(current, last+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			moduleType := TypeModule
			if ext == ".so" || ext == ".pyd" {
				moduleType = TypeExtension
			}
			return &Info{Name: name, Path: candidate, Type: moduleType, SearchPath: root}
		}
	}

	return nil
}

// ScanDirectory walks dir recursively and returns every module or
// package found under it, skipping hidden entries and __pycache__.
func (f *Finder) ScanDirectory(dir string) []Info {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	var modules []Info
	f.scanRecursive(dir, dir, "", &modules)
	return modules
}

func (f *Finder) scanRecursive(base, dir, prefix string, modules *[]Info) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || name == "__pycache__" {
			continue
		}
		path := filepath.Join(dir, name)

		if entry.IsDir() {
			moduleName := joinModuleName(prefix, name)
			initPy := filepath.Join(path, "__init__.py")
			if _, err := os.Stat(initPy); err == nil {
				*modules = append(*modules, Info{Name: moduleName, Path: initPy, Type: TypePackage, SearchPath: base})
			}
			f.scanRecursive(base, path, moduleName, modules)
			continue
		}

		for _, ext := range f.config.Extensions {
			if !strings.HasSuffix(name, ext) {
				continue
			}
			stem := strings.TrimSuffix(name, ext)
			if stem == "__init__" {
				break
			}
			moduleType := TypeModule
			if ext == ".so" || ext == ".pyd" {
				moduleType = TypeExtension
			}
			*modules = append(*modules, Info{Name: joinModuleName(prefix, stem), Path: path, Type: moduleType, SearchPath: base})
			break
		}
	}
}

func joinModuleName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// ParallelScan scans every directory concurrently, one errgroup
// goroutine per directory with no limit on how many run at once, and
// returns the combined module list in the order of directories.
func (f *Finder) ParallelScan(directories []string) ([]Info, error) {
	if len(directories) == 0 {
		return nil, nil
	}

	results := make([][]Info, len(directories))
	g := new(errgroup.Group)
	for i, dir := range directories {
		i, dir := i, dir
		g.Go(func() error {
			results[i] = f.ScanDirectory(dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Info
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}
