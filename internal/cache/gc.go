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
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// entryKind identifies which cache tier an evictable entry belongs to,
// for reporting and logging purposes.
type entryKind string

const (
	entryKindWheel     entryKind = "wheel"
	entryKindBuild     entryKind = "build"
	entryKindScriptEnv entryKind = "pep723-env"
)

// evictable is a single unit of GC bookkeeping: one wheel file, one
// build-output dist directory, or one script-env directory. Eviction
// happens at this granularity, never at the file-within-wheel level.
type evictable struct {
	kind     entryKind
	path     string
	size     int64
	lastUsed time.Time
}

// GCResult reports what a GC pass did (or, for a dry run, would do).
type GCResult struct {
	ScannedBytes int64
	EvictedBytes int64
	EvictedPaths []string
	FailedPaths  []string
	DryRun       bool
}

// GC walks packages, build, and pep723-envs, evicting least-recently-used
// entries until the cache's total size is at or under maxBytes. Wheel
// files use their mtime as the last-used marker; build outputs and
// script envs use their recorded/mtime metadata. A single entry's
// removal failure is logged into FailedPaths and does not abort the
// walk — GC is best-effort.
func (c *Cache) GC(maxBytes int64, dryRun bool) (GCResult, error) {
	entries, total, err := c.collectEvictable()
	if err != nil {
		return GCResult{}, err
	}

	result := GCResult{ScannedBytes: total, DryRun: dryRun}
	if total <= maxBytes {
		return result, nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].lastUsed.Before(entries[j].lastUsed) })

	remaining := total
	for _, e := range entries {
		if remaining <= maxBytes {
			break
		}
		if !dryRun {
			if err := c.fs.RemoveAll(e.path); err != nil {
				result.FailedPaths = append(result.FailedPaths, e.path)
				continue
			}
		}
		result.EvictedBytes += e.size
		result.EvictedPaths = append(result.EvictedPaths, e.path)
		remaining -= e.size
	}
	return result, nil
}

// collectEvictable inventories every wheel file, build-output dist
// directory, and script-env directory under the cache root, along with
// each entry's total byte size and last-used timestamp.
func (c *Cache) collectEvictable() ([]evictable, int64, error) {
	var entries []evictable
	var total int64

	wheelEntries, wheelTotal, err := c.collectDirEntries(c.PackagesDirPath(), entryKindWheel, true)
	if err != nil {
		return nil, 0, err
	}
	entries = append(entries, wheelEntries...)
	total += wheelTotal

	buildEntries, buildTotal, err := c.collectDirEntries(c.BuildDirPath(), entryKindBuild, false)
	if err != nil {
		return nil, 0, err
	}
	entries = append(entries, buildEntries...)
	total += buildTotal

	envEntries, envTotal, err := c.collectScriptEnvEntries()
	if err != nil {
		return nil, 0, err
	}
	entries = append(entries, envEntries...)
	total += envTotal

	return entries, total, nil
}

// collectDirEntries treats every top-level subdirectory of root as one
// evictable unit (or, when perFile is true, every regular file directly
// under root's package subdirectories).
func (c *Cache) collectDirEntries(root string, kind entryKind, perFile bool) ([]evictable, int64, error) {
	infos, err := afero.ReadDir(c.fs, root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, errors.Wrapf(err, "failed to scan %s", root)
	}

	var entries []evictable
	var total int64
	for _, info := range infos {
		sub := filepath.Join(root, info.Name())
		if !perFile {
			size, lastUsed, err := c.dirSizeAndLastUsed(sub)
			if err != nil {
				return nil, 0, err
			}
			entries = append(entries, evictable{kind: kind, path: sub, size: size, lastUsed: lastUsed})
			total += size
			continue
		}
		files, err := afero.ReadDir(c.fs, sub)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			path := filepath.Join(sub, f.Name())
			entries = append(entries, evictable{kind: kind, path: path, size: f.Size(), lastUsed: f.ModTime()})
			total += f.Size()
		}
	}
	return entries, total, nil
}

// collectScriptEnvEntries inventories pep723-envs/<hash> directories,
// preferring each entry's recorded meta.json last-used timestamp over
// directory mtime since the venv's own files are rewritten by pip.
func (c *Cache) collectScriptEnvEntries() ([]evictable, int64, error) {
	infos, err := afero.ReadDir(c.fs, c.Pep723EnvsDirPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, errors.Wrap(err, "failed to scan script-env cache")
	}

	var entries []evictable
	var total int64
	for _, info := range infos {
		hash := info.Name()
		dir := filepath.Join(c.Pep723EnvsDirPath(), hash)
		size, dirLastUsed, err := c.dirSizeAndLastUsed(dir)
		if err != nil {
			return nil, 0, err
		}
		lastUsed := dirLastUsed
		if meta, ok, err := c.LoadScriptEnvMeta(hash); err == nil && ok {
			lastUsed = meta.LastUsedAt
		}
		entries = append(entries, evictable{kind: entryKindScriptEnv, path: dir, size: size, lastUsed: lastUsed})
		total += size
	}
	return entries, total, nil
}

// dirSizeAndLastUsed sums every regular file's size under dir and
// returns the most recent mtime seen, as a fallback last-used marker
// for entries with no dedicated metadata.
func (c *Cache) dirSizeAndLastUsed(dir string) (int64, time.Time, error) {
	var size int64
	var lastUsed time.Time
	err := afero.Walk(c.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		size += info.Size()
		if info.ModTime().After(lastUsed) {
			lastUsed = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, errors.Wrapf(err, "failed to size %s", dir)
	}
	return size, lastUsed, nil
}
