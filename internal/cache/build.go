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
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// FileInput is a single tracked project file contributing to a build
// fingerprint: its path relative to the project root, and its bytes.
type FileInput struct {
	RelPath string
	Content []byte
}

// BuildFingerprint computes the SHA-256 over backend name, backend
// kind tag, interpreter path, and the sorted list of
// (relative-path, content-bytes) pairs for every tracked file. Any
// change to a tracked input yields a new fingerprint.
func BuildFingerprint(backendName, backendKind, interpreterPath string, files []FileInput) string {
	sorted := make([]FileInput, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	h := sha256.New()
	_, _ = io.WriteString(h, backendName)
	_, _ = h.Write([]byte{0})
	_, _ = io.WriteString(h, backendKind)
	_, _ = h.Write([]byte{0})
	_, _ = io.WriteString(h, interpreterPath)
	_, _ = h.Write([]byte{0})
	for _, f := range sorted {
		_, _ = io.WriteString(h, f.RelPath)
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(f.Content)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IgnoredDirs lists directory names never considered a tracked build
// input.
var IgnoredDirs = map[string]bool{
	".git":          true,
	".venv":         true,
	"__pycache__":   true,
	"dist":          true,
	"build":         true,
	"target":        true,
	"node_modules":  true,
	".cache":        true,
	".mypy_cache":   true,
	".pytest_cache": true,
	".ruff_cache":   true,
}

// BuildDistDir returns the directory build outputs for fingerprint are
// (or would be) stored under.
func (c *Cache) BuildDistDir(fingerprint string) string {
	return filepath.Join(c.BuildDirPath(), fingerprint, "dist")
}

// HasBuildOutput reports whether a build output is already cached for
// fingerprint.
func (c *Cache) HasBuildOutput(fingerprint string) bool {
	info, err := c.fs.Stat(c.BuildDistDir(fingerprint))
	return err == nil && info.IsDir()
}

// StoreBuildOutput atomically writes every (relative path, content)
// pair into the fingerprint's dist directory. Each file is written
// independently through the temp-then-rename discipline.
func (c *Cache) StoreBuildOutput(fingerprint string, files []FileInput) error {
	dir := c.BuildDistDir(fingerprint)
	for _, f := range files {
		dst := filepath.Join(dir, filepath.FromSlash(f.RelPath))
		if err := atomicWriteFile(c.fs, dst, f.Content, 0o644); err != nil {
			return errors.Wrapf(err, "failed to store build output %s", f.RelPath)
		}
	}
	return nil
}

// RestoreBuildOutput reads back every file stored under fingerprint's
// dist directory. Returns (nil, false, nil) on a cache miss.
func (c *Cache) RestoreBuildOutput(fingerprint string) ([]FileInput, bool, error) {
	dir := c.BuildDistDir(fingerprint)
	if info, err := c.fs.Stat(dir); err != nil || !info.IsDir() {
		return nil, false, nil
	}

	var out []FileInput
	err := afero.Walk(c.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(c.fs, path)
		if err != nil {
			return err
		}
		out = append(out, FileInput{RelPath: filepath.ToSlash(rel), Content: data})
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to restore build output")
	}
	return out, true, nil
}
