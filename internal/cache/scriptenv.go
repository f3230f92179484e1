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
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// scriptEnvHashSize truncates the dependency-list digest to 16 bytes
// (32 hex chars).
const scriptEnvHashSize = 16

// ScriptEnvHash computes an order-independent, case-insensitive,
// whitespace-insensitive digest of an inline-dependency script's
// dependency list: trim, lowercase, sort, then SHA-256, truncated to
// 32 hex characters. An empty dependency list still yields a
// well-formed, non-empty hash.
func ScriptEnvHash(deps []string) string {
	normalized := make([]string, len(deps))
	for i, d := range deps {
		normalized[i] = strings.ToLower(strings.TrimSpace(d))
	}
	sort.Strings(normalized)

	h := sha256.New()
	for _, d := range normalized {
		_, _ = io.WriteString(h, d)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:scriptEnvHashSize])
}

// ScriptEnvDir returns the venv directory for an inline-dependency
// script's environment hash.
func (c *Cache) ScriptEnvDir(hash string) string {
	return c.Pep723EnvsDirPath() + "/" + hash + "/venv"
}

// scriptEnvMetaPath returns the metadata sidecar path for hash.
func (c *Cache) scriptEnvMetaPath(hash string) string {
	return c.Pep723EnvsDirPath() + "/" + hash + "/meta.json"
}

// ScriptEnvMeta is the persisted metadata for a cached inline-script
// environment.
type ScriptEnvMeta struct {
	Hash               string    `json:"hash"`
	Dependencies       []string  `json:"dependencies"`
	InterpreterVersion string    `json:"interpreter_version"`
	CreatedAt          time.Time `json:"created_at"`
	LastUsedAt         time.Time `json:"last_used_at"`
}

// HasScriptEnv reports whether a venv already exists for hash.
func (c *Cache) HasScriptEnv(hash string) bool {
	info, err := c.fs.Stat(c.ScriptEnvDir(hash))
	return err == nil && info.IsDir()
}

// RecordScriptEnv persists metadata for a freshly created inline-script
// environment.
func (c *Cache) RecordScriptEnv(hash string, deps []string, interpreterVersion string) error {
	now := time.Now().UTC()
	meta := ScriptEnvMeta{
		Hash:               hash,
		Dependencies:       deps,
		InterpreterVersion: interpreterVersion,
		CreatedAt:          now,
		LastUsedAt:         now,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "failed to encode script-env metadata")
	}
	return atomicWriteFile(c.fs, c.scriptEnvMetaPath(hash), data, 0o644)
}

// TouchScriptEnv updates the last-used timestamp for an existing
// cached environment.
func (c *Cache) TouchScriptEnv(hash string) error {
	meta, ok, err := c.LoadScriptEnvMeta(hash)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("no script env recorded for hash %s", hash)
	}
	meta.LastUsedAt = time.Now().UTC()
	data, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "failed to encode script-env metadata")
	}
	return atomicWriteFile(c.fs, c.scriptEnvMetaPath(hash), data, 0o644)
}

// LoadScriptEnvMeta reads back a cached environment's metadata.
func (c *Cache) LoadScriptEnvMeta(hash string) (ScriptEnvMeta, bool, error) {
	data, err := afero.ReadFile(c.fs, c.scriptEnvMetaPath(hash))
	if err != nil {
		return ScriptEnvMeta{}, false, nil
	}
	var meta ScriptEnvMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return ScriptEnvMeta{}, false, errors.Wrap(err, "failed to decode script-env metadata")
	}
	return meta, true, nil
}
