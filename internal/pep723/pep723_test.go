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

package pep723

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicScriptMetadata(t *testing.T) {
	content := `# /// script
# requires-python = ">=3.11"
# dependencies = [
#   "requests>=2.28.0",
#   "rich",
# ]
# ///

print("hello")
`
	meta, err := ParseString(content)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, ">=3.11", meta.RequiresPython)
	assert.Equal(t, []string{"requests>=2.28.0", "rich"}, meta.Dependencies)
}

func TestParseEmptyDependencies(t *testing.T) {
	content := `# /// script
# requires-python = ">=3.12"
# dependencies = []
# ///
`
	meta, err := ParseString(content)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, ">=3.12", meta.RequiresPython)
	assert.Empty(t, meta.Dependencies)
}

func TestParseNoMetadata(t *testing.T) {
	meta, err := ParseString("print(\"just a script\")\n")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestParseOnlyDependencies(t *testing.T) {
	content := `# /// script
# dependencies = ["click"]
# ///
`
	meta, err := ParseString(content)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "", meta.RequiresPython)
	assert.Equal(t, []string{"click"}, meta.Dependencies)
}

func TestHasMetadataTrue(t *testing.T) {
	assert.True(t, HasMetadata("# /// script\n# ///\n"))
}

func TestHasMetadataFalse(t *testing.T) {
	assert.False(t, HasMetadata("print(1)\n"))
}

func TestParseMultilineArray(t *testing.T) {
	content := `# /// script
# dependencies = [
#   "a",
#   "b",
#   "c",
# ]
# ///
`
	meta, err := ParseString(content)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, []string{"a", "b", "c"}, meta.Dependencies)
}

func TestParseEmptyBlock(t *testing.T) {
	content := `# /// script
# ///
`
	meta, err := ParseString(content)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "", meta.RequiresPython)
	assert.Empty(t, meta.Dependencies)
}

func TestIgnoresContentAfterBlock(t *testing.T) {
	content := `# /// script
# requires-python = ">=3.11"
# ///
import requests

# /// script
# requires-python = ">=3.99"
# ///
`
	meta, err := ParseString(content)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, ">=3.11", meta.RequiresPython)
}
