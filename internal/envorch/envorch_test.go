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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("fake"), 0o755))
}

func TestFindVenvPythonUnix(t *testing.T) {
	venv := filepath.Join(t.TempDir(), "venv")
	bin := filepath.Join(venv, "bin", "python")
	writeExecutable(t, bin)

	path, ok := findVenvPython(venv)
	require.True(t, ok)
	assert.Equal(t, bin, path)
}

func TestFindVenvPythonUnixPython3Fallback(t *testing.T) {
	venv := filepath.Join(t.TempDir(), "venv")
	bin := filepath.Join(venv, "bin", "python3")
	writeExecutable(t, bin)

	path, ok := findVenvPython(venv)
	require.True(t, ok)
	assert.Equal(t, bin, path)
}

func TestPythonVersionFileParsing(t *testing.T) {
	dir := t.TempDir()
	versionFile := filepath.Join(dir, ".python-version")
	require.NoError(t, os.WriteFile(versionFile, []byte("3.11.5\n"), 0o644))

	path, version, ok := findPythonVersionFile(dir)
	require.True(t, ok)
	assert.Equal(t, versionFile, path)
	assert.Equal(t, "3.11.5", version)
}

func TestPythonVersionFileCommentIsIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".python-version"), []byte("# comment\n"), 0o644))

	_, _, ok := findPythonVersionFile(dir)
	assert.False(t, ok)
}

func TestFindProjectVenvDiscoversPybunVenv(t *testing.T) {
	dir := t.TempDir()
	pybunVenv := filepath.Join(dir, ".pybun", "venv")
	writeExecutable(t, filepath.Join(pybunVenv, "bin", "python"))

	found, ok := findProjectVenv(dir)
	require.True(t, ok)
	assert.Equal(t, pybunVenv, found)
}

func TestFindProjectVenvStopsAtPyprojectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyproject.toml"), []byte(""), 0o644))
	sub := filepath.Join(root, "src", "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	_, ok := findProjectVenv(sub)
	assert.False(t, ok)
}

func TestEnvSourceDisplay(t *testing.T) {
	assert.Equal(t, "PYBUN_ENV (local)", SourcePybunEnv.String())
	assert.Equal(t, "system PATH (global)", SourceSystem.String())
}

func TestPybunHomeOverride(t *testing.T) {
	t.Setenv("PYBUN_HOME", "/custom/path")
	assert.Equal(t, "/custom/path", PybunHome())
	assert.Equal(t, "/custom/path/envs", GlobalEnvsDir())
}
