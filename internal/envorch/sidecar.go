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

package envorch

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// sidecarFileName is the per-working-directory cache file recording a
// previously resolved environment, so repeated invocations in the same
// directory skip the full discovery walk.
const sidecarFileName = "env-cache.json"

// sidecarEntry is one working-directory's cached resolution.
type sidecarEntry struct {
	PythonPath string `json:"python_path"`
	Version    string `json:"version,omitempty"`
	Source     Source `json:"source"`
}

// SidecarCache is a small on-disk map from working directory to its
// last-resolved environment. A cache hit is invalidated and re-resolved
// the moment the recorded binary stops existing, so a removed venv
// never leaves behind a stale, non-functional entry.
type SidecarCache struct {
	path    string
	entries map[string]sidecarEntry
}

// LoadSidecarCache reads the cache file under dir (typically
// PybunHome()), tolerating a missing or corrupt file by starting
// empty.
func LoadSidecarCache(dir string) *SidecarCache {
	path := filepath.Join(dir, sidecarFileName)
	c := &SidecarCache{path: path, entries: map[string]sidecarEntry{}}

	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	_ = json.Unmarshal(data, &c.entries)
	return c
}

// Get returns the cached environment for workingDir, if any, and if
// its recorded interpreter binary still exists.
func (c *SidecarCache) Get(workingDir string) (Env, bool) {
	entry, ok := c.entries[workingDir]
	if !ok {
		return Env{}, false
	}
	if _, err := os.Stat(entry.PythonPath); err != nil {
		delete(c.entries, workingDir)
		return Env{}, false
	}
	return Env{PythonPath: entry.PythonPath, Version: entry.Version, Source: entry.Source}, true
}

// Put records env as workingDir's resolution.
func (c *SidecarCache) Put(workingDir string, env Env) {
	c.entries[workingDir] = sidecarEntry{PythonPath: env.PythonPath, Version: env.Version, Source: env.Source}
}

// Save persists the cache to disk, best-effort: callers that ignore
// its error (as the resolution flow does) only lose the speedup on
// the next run, never correctness.
func (c *SidecarCache) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create env-cache directory")
	}
	data, err := json.Marshal(c.entries)
	if err != nil {
		return errors.Wrap(err, "failed to encode env cache")
	}
	return os.WriteFile(c.path, data, 0o644)
}

// FindPythonEnvCached resolves workingDir's environment the way
// FindPythonEnv does, but consults and updates a SidecarCache around
// the project-local-venv and fallback steps, so repeat calls with an
// unchanged venv skip re-walking the directory tree.
func FindPythonEnvCached(workingDir string, cache *SidecarCache) (Env, error) {
	if venvPath := os.Getenv("PYBUN_ENV"); venvPath != "" {
		if python, ok := findVenvPython(venvPath); ok {
			return Env{PythonPath: python, Version: versionFromVenvCfg(venvPath), Source: SourcePybunEnv}, nil
		}
	}
	if pythonPath := os.Getenv("PYBUN_PYTHON"); pythonPath != "" {
		if _, err := os.Stat(pythonPath); err == nil {
			return Env{PythonPath: pythonPath, Source: SourcePybunPython}, nil
		}
	}

	if venvPath, ok := findProjectVenv(workingDir); ok {
		if python, ok := findVenvPython(venvPath); ok {
			env := Env{PythonPath: python, Version: versionFromVenvCfg(venvPath), Source: SourceProjectLocal}
			cache.Put(workingDir, env)
			_ = cache.Save()
			return env, nil
		}
	}

	if env, ok := cache.Get(workingDir); ok {
		return env, nil
	}

	env, err := FindPythonEnv(workingDir)
	if err != nil {
		return Env{}, err
	}
	cache.Put(workingDir, env)
	_ = cache.Save()
	return env, nil
}
