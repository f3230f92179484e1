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

// Package cache implements the multi-tier content-addressed cache
// root: wheel objects, virtual environments, inline-script
// environments, build outputs, package-index snapshots, structured
// logs and support bundles all live under one rooted directory.
//
// Every write goes through atomicWriteFile or, for streamed content,
// atomicWriteReader: write to a sibling temp
// file, fsync, then rename into place, so a reader never observes a
// partial write.
package cache

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Subdirectory names under the cache root.
const (
	PackagesDir = "packages"
	EnvsDir     = "envs"
	Pep723Envs  = "pep723-envs"
	BuildDir    = "build"
	PypiDir     = "pypi"
	LogsDir     = "logs"
	SupportDir  = "support"

	defaultCacheParent = ".cache"
	defaultCacheName   = "pybun"
)

const (
	errCreateDir = "failed to create cache directory"
	errHomeDir   = "failed to determine home directory"
)

// Cache is a rooted, content-addressed storage area backed by an
// afero.Fs, mirroring the teacher's cache.Local wrapper but generalized
// to pybun's multi-tier layout.
type Cache struct {
	fs   afero.Fs
	root string
	mu   sync.Mutex
}

// New constructs a Cache rooted at root, backed by fs.
func New(fs afero.Fs, root string) *Cache {
	return &Cache{fs: fs, root: root}
}

// NewDefault constructs a Cache rooted at $PYBUN_HOME, or
// ~/.cache/pybun if unset, backed by the real filesystem.
func NewDefault() (*Cache, error) {
	if home := os.Getenv("PYBUN_HOME"); home != "" {
		return New(afero.NewOsFs(), home), nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, errHomeDir)
	}
	return New(afero.NewOsFs(), filepath.Join(h, defaultCacheParent, defaultCacheName)), nil
}

// Root returns the cache's root directory.
func (c *Cache) Root() string { return c.root }

// Fs returns the underlying filesystem, for callers (support bundle,
// doctor checks) that need to walk the cache tree directly.
func (c *Cache) Fs() afero.Fs { return c.fs }

func (c *Cache) dir(sub string) string {
	return filepath.Join(c.root, sub)
}

// PackagesDirPath returns the wheel-objects directory.
func (c *Cache) PackagesDirPath() string { return c.dir(PackagesDir) }

// EnvsDirPath returns the virtual-environments directory.
func (c *Cache) EnvsDirPath() string { return c.dir(EnvsDir) }

// Pep723EnvsDirPath returns the inline-script environments directory.
func (c *Cache) Pep723EnvsDirPath() string { return c.dir(Pep723Envs) }

// BuildDirPath returns the build-output cache directory.
func (c *Cache) BuildDirPath() string { return c.dir(BuildDir) }

// PypiDirPath returns the package-index snapshot directory.
func (c *Cache) PypiDirPath() string { return c.dir(PypiDir) }

// LogsDirPath returns the structured-event-log directory.
func (c *Cache) LogsDirPath() string { return c.dir(LogsDir) }

// SupportDirPath returns the support-bundle output directory.
func (c *Cache) SupportDirPath() string { return c.dir(SupportDir) }

// EnsureDirs creates every top-level cache subdirectory.
func (c *Cache) EnsureDirs() error {
	for _, dir := range []string{
		c.PackagesDirPath(), c.EnvsDirPath(), c.Pep723EnvsDirPath(),
		c.BuildDirPath(), c.PypiDirPath(), c.LogsDirPath(), c.SupportDirPath(),
	} {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "%s: %s", errCreateDir, dir)
		}
	}
	return nil
}

// PackageDir returns the per-package wheel directory.
func (c *Cache) PackageDir(name string) string {
	return filepath.Join(c.PackagesDirPath(), name)
}

// EnsurePackageDir creates and returns the per-package wheel directory.
func (c *Cache) EnsurePackageDir(name string) (string, error) {
	dir := c.PackageDir(name)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "%s: %s", errCreateDir, dir)
	}
	return dir, nil
}

// WheelPath returns the path at which a wheel's bytes are (or would
// be) stored. Filename is the natural cache key: the upstream
// ecosystem treats wheel filenames as immutable identifiers.
func (c *Cache) WheelPath(name, filename string) string {
	return filepath.Join(c.PackageDir(name), filename)
}

// HasWheel reports whether a wheel is already cached.
func (c *Cache) HasWheel(name, filename string) bool {
	_, err := c.fs.Stat(c.WheelPath(name, filename))
	return err == nil
}

// StoreWheel atomically writes a wheel's bytes into the cache. Once
// written, a wheel file is never mutated again.
func (c *Cache) StoreWheel(name, filename string, r io.Reader) error {
	if _, err := c.EnsurePackageDir(name); err != nil {
		return err
	}
	return atomicWriteReader(c.fs, c.WheelPath(name, filename), r, 0o644)
}

// atomicWriteReader streams r to a sibling temp file in dir(path),
// fsyncs it, then renames it into place.
func atomicWriteReader(fs afero.Fs, path string, r io.Reader, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errCreateDir)
	}
	tmp := filepath.Join(dir, tempName())
	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close() //nolint:errcheck
		_ = fs.Remove(tmp)
		return errors.Wrap(err, "failed to write temp file")
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := renameAtomic(fs, tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}

// atomicWriteFile is the []byte convenience form of atomicWriteReader.
func atomicWriteFile(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errCreateDir)
	}
	tmp := filepath.Join(dir, tempName())
	if err := afero.WriteFile(fs, tmp, data, perm); err != nil {
		return errors.Wrap(err, "failed to write temp file")
	}
	if f, err := fs.OpenFile(tmp, os.O_WRONLY, perm); err == nil {
		if syncer, ok := f.(interface{ Sync() error }); ok {
			_ = syncer.Sync()
		}
		f.Close() //nolint:errcheck
	}
	if err := renameAtomic(fs, tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}

// renameAtomic renames src to dst, falling back to copy-then-unlink
// when the underlying Fs cannot rename across filesystems.
func renameAtomic(fs afero.Fs, src, dst string) error {
	if err := fs.Rename(src, dst); err == nil {
		return nil
	}
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return errors.Wrap(err, "rename fallback: failed to read source")
	}
	if err := afero.WriteFile(fs, dst, data, 0o644); err != nil {
		return errors.Wrap(err, "rename fallback: failed to write destination")
	}
	return fs.Remove(src)
}

func tempName() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return ".tmp-" + hex.EncodeToString(b[:])
}
