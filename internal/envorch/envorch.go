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

// Package envorch selects which Python interpreter a command should
// run against: an explicit override, a project-local virtual
// environment, a pinned version file, or the system interpreter, in
// that priority order.
package envorch

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Source records how a PythonEnv was selected, for diagnostics and
// `pybun env` output.
type Source string

const (
	SourcePybunEnv      Source = "PYBUN_ENV"
	SourcePybunPython   Source = "PYBUN_PYTHON"
	SourceProjectLocal  Source = "project-local venv"
	SourcePythonVersion Source = "python-version-file"
	SourceSystem        Source = "system"
)

// Env is a resolved Python environment.
type Env struct {
	PythonPath string
	Version    string
	Source     Source
	// VersionFile is set only when Source is SourcePythonVersion.
	VersionFile string
}

func (s Source) String() string {
	switch s {
	case SourcePybunEnv:
		return "PYBUN_ENV (local)"
	case SourcePybunPython:
		return "PYBUN_PYTHON (local)"
	case SourceProjectLocal:
		return "project-local venv (local)"
	case SourcePythonVersion:
		return ".python-version (local)"
	case SourceSystem:
		return "system PATH (global)"
	default:
		return string(s)
	}
}

const errNoInterpreter = "no python interpreter found: set PYBUN_PYTHON or ensure python3/python is on PATH"

// FindPythonEnv resolves the interpreter to use for workingDir,
// following the priority chain: PYBUN_ENV, PYBUN_PYTHON, project-local
// venv, .python-version, system python3/python.
func FindPythonEnv(workingDir string) (Env, error) {
	if venvPath := os.Getenv("PYBUN_ENV"); venvPath != "" {
		if python, ok := findVenvPython(venvPath); ok {
			return Env{PythonPath: python, Version: versionFromVenvCfg(venvPath), Source: SourcePybunEnv}, nil
		}
	}

	if pythonPath := os.Getenv("PYBUN_PYTHON"); pythonPath != "" {
		if _, err := os.Stat(pythonPath); err == nil {
			return Env{PythonPath: pythonPath, Source: SourcePybunPython}, nil
		}
		if resolved, err := exec.LookPath(pythonPath); err == nil {
			return Env{PythonPath: resolved, Source: SourcePybunPython}, nil
		}
	}

	if venvPath, ok := findProjectVenv(workingDir); ok {
		if python, ok := findVenvPython(venvPath); ok {
			return Env{PythonPath: python, Version: versionFromVenvCfg(venvPath), Source: SourceProjectLocal}, nil
		}
	}

	if versionFile, version, ok := findPythonVersionFile(workingDir); ok {
		if python, ok := findPythonForVersion(version); ok {
			return Env{PythonPath: python, Version: version, Source: SourcePythonVersion, VersionFile: versionFile}, nil
		}
	}

	if python, ok := findSystemPython(); ok {
		return Env{PythonPath: python, Source: SourceSystem}, nil
	}

	return Env{}, errors.New(errNoInterpreter)
}

// PythonInVenv returns the interpreter binary inside the venv directory
// at venvPath, checking the Unix layout before the Windows one.
func PythonInVenv(venvPath string) (string, bool) {
	return findVenvPython(venvPath)
}

// findVenvPython locates the interpreter binary inside a venv
// directory, trying the Unix layout before the Windows one.
func findVenvPython(venvPath string) (string, bool) {
	for _, rel := range []string{
		filepath.Join("bin", "python"),
		filepath.Join("bin", "python3"),
		filepath.Join("Scripts", "python.exe"),
	} {
		candidate := filepath.Join(venvPath, rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// versionFromVenvCfg reads the "version" key out of a venv's
// pyvenv.cfg, if present.
func versionFromVenvCfg(venvPath string) string {
	data, err := os.ReadFile(filepath.Join(venvPath, "pyvenv.cfg"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		rest, ok := strings.CutPrefix(line, "version")
		if !ok {
			continue
		}
		value := strings.TrimLeft(strings.TrimSpace(rest), "= ")
		if value != "" {
			return value
		}
	}
	return ""
}

// findProjectVenv walks up from workingDir looking for a venv under
// .pybun/venv, .venv, or venv, stopping at the first directory
// containing a pyproject.toml (the project root) if none is found.
func findProjectVenv(workingDir string) (string, bool) {
	current := workingDir
	for {
		for _, name := range []string{filepath.Join(".pybun", "venv"), ".venv", "venv"} {
			candidate := filepath.Join(current, name)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				if _, ok := findVenvPython(candidate); ok {
					return candidate, true
				}
			}
		}

		if _, err := os.Stat(filepath.Join(current, "pyproject.toml")); err == nil {
			return "", false
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// findPythonVersionFile walks up from workingDir looking for a
// non-empty, non-comment .python-version file.
func findPythonVersionFile(workingDir string) (string, string, bool) {
	current := workingDir
	for {
		path := filepath.Join(current, ".python-version")
		if data, err := os.ReadFile(path); err == nil {
			version := strings.TrimSpace(string(data))
			if version != "" && !strings.HasPrefix(version, "#") {
				return path, version, true
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", "", false
		}
		current = parent
	}
}

// findPythonForVersion resolves a requested version (major, or
// major.minor) against a pyenv installation first, then a versioned
// system binary (python3.11), then the bare major-version binary.
func findPythonForVersion(version string) (string, bool) {
	parts := strings.SplitN(version, ".", 3)
	major := parts[0]
	var minor string
	if len(parts) > 1 {
		minor = parts[1]
	}

	if python, ok := findPyenvPython(version); ok {
		return python, true
	}

	if minor != "" {
		if path, err := exec.LookPath("python" + major + "." + minor); err == nil {
			return path, true
		}
	}

	if path, err := exec.LookPath("python" + major); err == nil {
		return path, true
	}

	return "", false
}

// findPyenvPython looks for version under $PYENV_ROOT/versions (or
// ~/.pyenv/versions), trying an exact match first, then the highest
// installed version prefixed by the requested string.
func findPyenvPython(version string) (string, bool) {
	root := os.Getenv("PYENV_ROOT")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false
		}
		root = filepath.Join(home, ".pyenv")
	}
	if _, err := os.Stat(root); err != nil {
		return "", false
	}

	versionsDir := filepath.Join(root, "versions")
	exact := filepath.Join(versionsDir, version, "bin", "python")
	if _, err := os.Stat(exact); err == nil {
		return exact, true
	}

	entries, err := os.ReadDir(versionsDir)
	if err != nil {
		return "", false
	}
	var matching []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), version) {
			matching = append(matching, e.Name())
		}
	}
	if len(matching) == 0 {
		return "", false
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matching)))
	candidate := filepath.Join(versionsDir, matching[0], "bin", "python")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, true
	}
	return "", false
}

// findSystemPython prefers python3 over the bare python binary, since
// on many distributions "python" is unmapped or points at Python 2.
func findSystemPython() (string, bool) {
	if path, err := exec.LookPath("python3"); err == nil {
		return path, true
	}
	if path, err := exec.LookPath("python"); err == nil {
		return path, true
	}
	return "", false
}

// FindUVExecutable looks for a `uv` binary on PATH, for callers that
// can delegate install operations to it when present.
func FindUVExecutable() (string, bool) {
	path, err := exec.LookPath("uv")
	return path, err == nil
}

// PybunHome returns $PYBUN_HOME if set, else the OS user-cache
// directory joined with "pybun".
func PybunHome() string {
	if home := os.Getenv("PYBUN_HOME"); home != "" {
		return home
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "pybun")
}

// GlobalEnvsDir returns the global virtual-environments directory.
func GlobalEnvsDir() string { return filepath.Join(PybunHome(), "envs") }

// GlobalPackagesDir returns the global wheel-cache directory.
func GlobalPackagesDir() string { return filepath.Join(PybunHome(), "packages") }

// CreateVenv materializes a new virtual environment at dest using
// pythonPath, the interpreter selected by FindPythonEnv or the
// runtime manager. It is a no-op success if dest already contains an
// interpreter binary.
func CreateVenv(pythonPath, dest string) error {
	if _, ok := findVenvPython(dest); ok {
		return nil
	}
	cmd := exec.Command(pythonPath, "-m", "venv", dest)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "failed to create virtual environment: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// InstallIntoVenv installs deps into the venv at venvPath's pip, using
// the venv's own interpreter so packages land in the right site-packages.
func InstallIntoVenv(venvPath string, deps []string) error {
	if len(deps) == 0 {
		return nil
	}
	python, ok := findVenvPython(venvPath)
	if !ok {
		return errors.Errorf("no interpreter found in venv at %s", venvPath)
	}
	args := append([]string{"-m", "pip", "install", "--quiet"}, deps...)
	cmd := exec.Command(python, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "failed to install dependencies: %s", strings.TrimSpace(string(out)))
	}
	return nil
}
