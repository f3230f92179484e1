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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/pybun/pybun/internal/index"
)

// LoadSnapshot implements index.SnapshotStore, satisfying it
// structurally so internal/index never needs to import this package.
func (c *Cache) LoadSnapshot(name string) (*index.Snapshot, error) {
	path := c.pypiSnapshotPath(name)
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read index snapshot")
	}
	var snap index.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "failed to decode index snapshot")
	}
	return &snap, nil
}

// SaveSnapshot implements index.SnapshotStore. The validator fields
// and body are written together in a single atomic replace, so a
// reader never observes a snapshot whose validators don't match its
// body.
func (c *Cache) SaveSnapshot(name string, snap *index.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to encode index snapshot")
	}
	return atomicWriteFile(c.fs, c.pypiSnapshotPath(name), data, 0o644)
}

func (c *Cache) pypiSnapshotPath(name string) string {
	return filepath.Join(c.PypiDirPath(), strings.ToLower(name)+".json")
}
