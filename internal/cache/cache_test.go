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

package cache

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return New(afero.NewMemMapFs(), "/home/user/.cache/pybun")
}

func TestEnsureDirsCreatesAllSubdirs(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.EnsureDirs())

	for _, dir := range []string{
		c.PackagesDirPath(), c.EnvsDirPath(), c.Pep723EnvsDirPath(),
		c.BuildDirPath(), c.PypiDirPath(), c.LogsDirPath(), c.SupportDirPath(),
	} {
		info, err := c.fs.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestStoreAndHasWheel(t *testing.T) {
	c := newTestCache(t)
	assert.False(t, c.HasWheel("requests", "requests-2.31.0-py3-none-any.whl"))

	err := c.StoreWheel("requests", "requests-2.31.0-py3-none-any.whl", bytes.NewReader([]byte("wheel bytes")))
	require.NoError(t, err)
	assert.True(t, c.HasWheel("requests", "requests-2.31.0-py3-none-any.whl"))

	data, err := afero.ReadFile(c.fs, c.WheelPath("requests", "requests-2.31.0-py3-none-any.whl"))
	require.NoError(t, err)
	assert.Equal(t, "wheel bytes", string(data))
}

func TestAtomicWriteLeavesNoTempFile(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.StoreWheel("pkg", "pkg-1.0.0-py3-none-any.whl", bytes.NewReader([]byte("x"))))

	infos, err := afero.ReadDir(c.fs, c.PackageDir("pkg"))
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "pkg-1.0.0-py3-none-any.whl", infos[0].Name())
}

func TestBuildFingerprintDeterministicAndSensitive(t *testing.T) {
	files := []FileInput{
		{RelPath: "pyproject.toml", Content: []byte("[project]\nname = \"x\"\n")},
		{RelPath: "src/x/__init__.py", Content: []byte("")},
	}
	fp1 := BuildFingerprint("setuptools", "pep517", "/usr/bin/python3.11", files)
	fp2 := BuildFingerprint("setuptools", "pep517", "/usr/bin/python3.11", files)
	assert.Equal(t, fp1, fp2)

	// Order of the input slice must not matter.
	reordered := []FileInput{files[1], files[0]}
	fp3 := BuildFingerprint("setuptools", "pep517", "/usr/bin/python3.11", reordered)
	assert.Equal(t, fp1, fp3)

	// A single-byte change in a tracked file must change the fingerprint.
	changed := []FileInput{
		{RelPath: "pyproject.toml", Content: []byte("[project]\nname = \"y\"\n")},
		files[1],
	}
	fp4 := BuildFingerprint("setuptools", "pep517", "/usr/bin/python3.11", changed)
	assert.NotEqual(t, fp1, fp4)

	// A different interpreter path must also change the fingerprint.
	fp5 := BuildFingerprint("setuptools", "pep517", "/usr/bin/python3.12", files)
	assert.NotEqual(t, fp1, fp5)
}

func TestStoreAndRestoreBuildOutput(t *testing.T) {
	c := newTestCache(t)
	fp := BuildFingerprint("setuptools", "pep517", "/usr/bin/python3.11", nil)
	assert.False(t, c.HasBuildOutput(fp))

	out := []FileInput{
		{RelPath: "x-1.0.0-py3-none-any.whl", Content: []byte("wheel")},
		{RelPath: "nested/metadata.json", Content: []byte("{}")},
	}
	require.NoError(t, c.StoreBuildOutput(fp, out))
	assert.True(t, c.HasBuildOutput(fp))

	restored, ok, err := c.RestoreBuildOutput(fp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, restored, 2)

	byPath := map[string][]byte{}
	for _, f := range restored {
		byPath[f.RelPath] = f.Content
	}
	assert.Equal(t, []byte("wheel"), byPath["x-1.0.0-py3-none-any.whl"])
	assert.Equal(t, []byte("{}"), byPath["nested/metadata.json"])
}

func TestRestoreBuildOutputMiss(t *testing.T) {
	c := newTestCache(t)
	restored, ok, err := c.RestoreBuildOutput("does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, restored)
}

func TestScriptEnvHashOrderCaseWhitespaceInsensitive(t *testing.T) {
	h1 := ScriptEnvHash([]string{"requests>=2.0", "click"})
	h2 := ScriptEnvHash([]string{" CLICK ", "Requests>=2.0"})
	assert.Equal(t, h1, h2)

	h3 := ScriptEnvHash([]string{"requests>=2.0", "flask"})
	assert.NotEqual(t, h1, h3)
}

func TestScriptEnvHashEmptyDepsIsNonEmpty(t *testing.T) {
	h := ScriptEnvHash(nil)
	assert.NotEmpty(t, h)
	assert.Len(t, h, 32)
}

func TestRecordAndTouchScriptEnv(t *testing.T) {
	c := newTestCache(t)
	hash := ScriptEnvHash([]string{"requests"})
	assert.False(t, c.HasScriptEnv(hash))

	require.NoError(t, c.fs.MkdirAll(c.ScriptEnvDir(hash), 0o755))
	assert.True(t, c.HasScriptEnv(hash))

	require.NoError(t, c.RecordScriptEnv(hash, []string{"requests"}, "3.11.8"))
	meta, ok, err := c.LoadScriptEnvMeta(hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3.11.8", meta.InterpreterVersion)
	created := meta.CreatedAt

	time.Sleep(time.Millisecond)
	require.NoError(t, c.TouchScriptEnv(hash))
	meta2, ok, err := c.LoadScriptEnvMeta(hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, meta2.LastUsedAt.After(meta.LastUsedAt) || meta2.LastUsedAt.Equal(created))
}

func TestLoadScriptEnvMetaMissingIsNotError(t *testing.T) {
	c := newTestCache(t)
	_, ok, err := c.LoadScriptEnvMeta("unknownhash")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGCNoEvictionUnderBudget(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.StoreWheel("a", "a-1.0.0-py3-none-any.whl", bytes.NewReader([]byte("12345"))))

	result, err := c.GC(1<<30, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.EvictedBytes)
	assert.Empty(t, result.EvictedPaths)
	assert.True(t, c.HasWheel("a", "a-1.0.0-py3-none-any.whl"))
}

func TestGCEvictsLeastRecentlyUsedFirst(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.StoreWheel("old", "old-1.0.0-py3-none-any.whl", bytes.NewReader(bytes.Repeat([]byte("a"), 100))))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, c.fs.Chtimes(c.WheelPath("old", "old-1.0.0-py3-none-any.whl"), old, old))

	require.NoError(t, c.StoreWheel("new", "new-1.0.0-py3-none-any.whl", bytes.NewReader(bytes.Repeat([]byte("b"), 100))))

	result, err := c.GC(100, false)
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.EvictedBytes)
	require.Len(t, result.EvictedPaths, 1)
	assert.Contains(t, result.EvictedPaths[0], "old-1.0.0-py3-none-any.whl")
	assert.False(t, c.HasWheel("old", "old-1.0.0-py3-none-any.whl"))
	assert.True(t, c.HasWheel("new", "new-1.0.0-py3-none-any.whl"))
}

func TestGCDryRunDoesNotRemove(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.StoreWheel("a", "a-1.0.0-py3-none-any.whl", bytes.NewReader(bytes.Repeat([]byte("a"), 100))))

	result, err := c.GC(0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.EvictedBytes)
	assert.True(t, result.DryRun)
	assert.True(t, c.HasWheel("a", "a-1.0.0-py3-none-any.whl"))
}
