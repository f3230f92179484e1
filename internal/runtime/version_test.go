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

package runtime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportedVersionsCoversAllMinors(t *testing.T) {
	versions := SupportedVersions()
	require.NotEmpty(t, versions)

	var have39, have310, have311, have312 bool
	for _, v := range versions {
		switch {
		case strings.HasPrefix(v.Version, "3.9"):
			have39 = true
		case strings.HasPrefix(v.Version, "3.10"):
			have310 = true
		case strings.HasPrefix(v.Version, "3.11"):
			have311 = true
		case strings.HasPrefix(v.Version, "3.12"):
			have312 = true
		}
	}
	assert.True(t, have39)
	assert.True(t, have310)
	assert.True(t, have311)
	assert.True(t, have312)
}

func TestFindVersionExact(t *testing.T) {
	v, ok := FindVersion("3.11.10")
	require.True(t, ok)
	assert.Equal(t, "3.11.10", v.Version)
}

func TestFindVersionPrefix(t *testing.T) {
	v, ok := FindVersion("3.11")
	require.True(t, ok)
	assert.Equal(t, "3.11.10", v.Version)
}

func TestFindVersionNotFound(t *testing.T) {
	_, ok := FindVersion("2.7")
	assert.False(t, ok)
}

func TestVersionLess(t *testing.T) {
	assert.False(t, versionLess("3.11.0", "3.11.0"))
	assert.False(t, versionLess("3.11.1", "3.11.0"))
	assert.True(t, versionLess("3.10.0", "3.11.0"))
	assert.False(t, versionLess("3.12.0", "3.9.0"))
}

func TestAbiCompatibilitySameMinor(t *testing.T) {
	result := CheckAbiCompatibility("3.11.5", "3.11.10")
	assert.Equal(t, AbiCompatible, result.Status)
}

func TestAbiCompatibilityMismatch(t *testing.T) {
	result := CheckAbiCompatibility("3.11.5", "3.12.0")
	assert.Equal(t, AbiMismatch, result.Status)
	assert.Equal(t, "3.11.5", result.Installed)
	assert.Equal(t, "3.12.0", result.Expected)
	assert.NotEmpty(t, result.Warning)
}
