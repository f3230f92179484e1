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

package lazyimport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigDisabled(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.FallbackToCPython)
	assert.True(t, cfg.Denylist["os"])
}

func TestShouldLazyImportDisabledIsEager(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DecisionEager, cfg.ShouldLazyImport("numpy"))
}

func TestShouldLazyImportDeniedWins(t *testing.T) {
	cfg := WithDefaults()
	assert.Equal(t, DecisionDenied, cfg.ShouldLazyImport("os"))
	assert.Equal(t, DecisionDenied, cfg.ShouldLazyImport("os.path.posixpath"))
}

func TestShouldLazyImportDefaultAllowsEverythingElse(t *testing.T) {
	cfg := WithDefaults()
	assert.Equal(t, DecisionLazy, cfg.ShouldLazyImport("numpy"))
	assert.Equal(t, DecisionLazy, cfg.ShouldLazyImport("pandas.core.frame"))
}

func TestShouldLazyImportAllowlistRestricts(t *testing.T) {
	cfg := WithDefaults()
	cfg.Allow("numpy")
	assert.Equal(t, DecisionLazy, cfg.ShouldLazyImport("numpy"))
	assert.Equal(t, DecisionLazy, cfg.ShouldLazyImport("numpy.linalg"))
	assert.Equal(t, DecisionEager, cfg.ShouldLazyImport("pandas"))
}

func TestDenyAddsModule(t *testing.T) {
	cfg := WithDefaults()
	cfg.Deny("pandas")
	assert.Equal(t, DecisionDenied, cfg.ShouldLazyImport("pandas"))
}

func TestStatsRecordDecision(t *testing.T) {
	var stats Stats
	stats.RecordDecision(DecisionLazy)
	stats.RecordDecision(DecisionLazy)
	stats.RecordDecision(DecisionDenied)
	stats.RecordDecision(DecisionEager)
	stats.RecordFallback()

	assert.Equal(t, 2, stats.LazyImports)
	assert.Equal(t, 1, stats.DeniedImports)
	assert.Equal(t, 1, stats.EagerImports)
	assert.Equal(t, 1, stats.FallbackImports)
}

func TestGenerateShimContainsConfig(t *testing.T) {
	cfg := WithDefaults()
	cfg.LogImports = true
	cfg.Allow("numpy")

	shim, err := GenerateShim(cfg)
	require.NoError(t, err)
	assert.Contains(t, shim, "_ENABLED = True")
	assert.Contains(t, shim, "_LOG_IMPORTS = True")
	assert.Contains(t, shim, `"os",`)
	assert.Contains(t, shim, `"numpy"`)
	assert.Contains(t, shim, "class _LazyFinder")
}

func TestGenerateShimEmptyAllowlistIsNone(t *testing.T) {
	cfg := WithDefaults()
	shim, err := GenerateShim(cfg)
	require.NoError(t, err)
	assert.True(t, strings.Contains(shim, "_ALLOWLIST = None"))
}
