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

package support

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWritesCoreFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	collection, err := Build(fs, "/support/bundle-1", Context{
		Command: "pybun doctor",
		TraceID: "trace-123",
		Checks: []map[string]interface{}{
			{"name": "python", "status": "ok"},
		},
	})
	require.NoError(t, err)
	assert.False(t, collection.LogsIncluded)

	names := map[string]bool{}
	for _, f := range collection.Files {
		names[f.Path] = true
	}
	assert.True(t, names["manifest.json"])
	assert.True(t, names["doctor.json"])
	assert.True(t, names["env.json"])
	assert.True(t, names["versions.json"])

	raw, err := afero.ReadFile(fs, "/support/bundle-1/manifest.json")
	require.NoError(t, err)
	var manifest map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, "pybun doctor", manifest["command"])
	assert.Equal(t, "trace-123", manifest["trace_id"])
}

func TestBuildRedactsEnvironment(t *testing.T) {
	t.Setenv("AWS_SECRET_KEY", "super-secret-value")
	fs := afero.NewMemMapFs()
	_, err := Build(fs, "/support/bundle-2", Context{Command: "pybun doctor"})
	require.NoError(t, err)

	raw, err := afero.ReadFile(fs, "/support/bundle-2/env.json")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "super-secret-value")
	assert.Contains(t, string(raw), redactedPlaceholder)
}

func TestBuildIncludesLogsWhenVerbose(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cache/logs/pybun.log", []byte("GITHUB_TOKEN=ghp_abc123\nstarted up fine\n"), 0o644))

	collection, err := Build(fs, "/support/bundle-3", Context{
		Command:     "pybun doctor",
		VerboseLogs: true,
		LogDirs:     []string{"/cache/logs"},
	})
	require.NoError(t, err)
	assert.True(t, collection.LogsIncluded)

	found := false
	for _, f := range collection.Files {
		if f.Path == "logs/pybun.log" {
			found = true
			assert.Equal(t, 1, f.Redactions)
		}
	}
	assert.True(t, found)

	raw, err := afero.ReadFile(fs, "/support/bundle-3/logs/pybun.log")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ghp_abc123")
}

func TestBuildTruncatesOversizedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	big := make([]byte, maxFileBytes+500)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, afero.WriteFile(fs, "/cache/logs/big.log", big, 0o644))

	collection, err := Build(fs, "/support/bundle-4", Context{
		Command:     "pybun doctor",
		VerboseLogs: true,
		LogDirs:     []string{"/cache/logs"},
	})
	require.NoError(t, err)

	var bigFile *File
	for i := range collection.Files {
		if collection.Files[i].Path == "logs/big.log" {
			bigFile = &collection.Files[i]
		}
	}
	require.NotNil(t, bigFile)
	assert.True(t, bigFile.Truncated)
	assert.LessOrEqual(t, bigFile.Bytes, int64(maxFileBytes))
}

func TestBuildIncludesExistingConfigFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/.pybun/telemetry.json", []byte(`{"enabled":false}`), 0o644))

	collection, err := Build(fs, "/support/bundle-5", Context{
		Command:     "pybun doctor",
		ConfigFiles: []string{"/home/.pybun/telemetry.json", "/home/.pybun/missing.json"},
	})
	require.NoError(t, err)

	found := false
	for _, f := range collection.Files {
		if f.Path == "config/telemetry.json" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCollectionToJSON(t *testing.T) {
	c := &Collection{Path: "/support/bundle-6", Redactions: 2, LogsIncluded: true}
	asJSON := c.ToJSON()
	assert.Equal(t, "/support/bundle-6", asJSON["path"])
	assert.Equal(t, 2, asJSON["redactions"])
	assert.Equal(t, true, asJSON["logs_included"])
}
