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

package telemetry

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pybun/pybun/internal/config"
)

type memSource struct {
	conf *config.Config
}

func newMemSource() *memSource { return &memSource{conf: &config.Config{}} }

func (m *memSource) GetConfig() (*config.Config, error) { return m.conf, nil }
func (m *memSource) UpdateConfig(c *config.Config) error { m.conf = c; return nil }

func TestDefaultStatusIsDisabled(t *testing.T) {
	m := NewManager(newMemSource())
	status := m.Status()
	assert.False(t, status.Enabled)
	assert.Equal(t, SourceConfig, status.Source)
	assert.NotEmpty(t, status.RedactionPatterns)
}

func TestEnableThenStatusPersists(t *testing.T) {
	m := NewManager(newMemSource())

	status, err := m.Enable()
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, SourceConfig, status.Source)

	status2 := m.Status()
	assert.True(t, status2.Enabled)
	assert.Equal(t, SourceConfig, status2.Source)
}

func TestDisableAfterEnable(t *testing.T) {
	m := NewManager(newMemSource())
	_, err := m.Enable()
	require.NoError(t, err)

	status, err := m.Disable()
	require.NoError(t, err)
	assert.False(t, status.Enabled)
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	m := NewManager(newMemSource())
	_, err := m.Enable()
	require.NoError(t, err)

	t.Setenv("PYBUN_TELEMETRY", "0")
	status := m.Status()
	assert.False(t, status.Enabled)
	assert.Equal(t, SourceEnvironment, status.Source)
}

func TestShouldRedact(t *testing.T) {
	m := NewManager(newMemSource())
	assert.True(t, m.ShouldRedact("AWS_SECRET_KEY"))
	assert.True(t, m.ShouldRedact("GITHUB_TOKEN"))
	assert.True(t, m.ShouldRedact("MY_PASSWORD"))
	assert.False(t, m.ShouldRedact("PYBUN_HOME"))
	assert.False(t, m.ShouldRedact("PATH"))
}

func TestRedactExtraEnvVarExtendsPatterns(t *testing.T) {
	m := NewManager(newMemSource())
	assert.False(t, m.ShouldRedact("MY_CUSTOM_FIELD"))

	os.Setenv("PYBUN_REDACT_EXTRA", "*_CUSTOM_FIELD")
	defer os.Unsetenv("PYBUN_REDACT_EXTRA")
	assert.True(t, m.ShouldRedact("MY_CUSTOM_FIELD"))
}

func TestMatchesGlobPatternSuffix(t *testing.T) {
	assert.True(t, MatchesGlobPattern("*_KEY", "AWS_SECRET_KEY"))
	assert.True(t, MatchesGlobPattern("*_KEY", "GITHUB_KEY"))
	assert.False(t, MatchesGlobPattern("*_KEY", "KEY_VALUE"))
}

func TestMatchesGlobPatternPrefix(t *testing.T) {
	assert.True(t, MatchesGlobPattern("AWS_*", "AWS_SECRET_KEY"))
	assert.True(t, MatchesGlobPattern("AWS_*", "AWS_ACCESS_KEY_ID"))
	assert.False(t, MatchesGlobPattern("AWS_*", "SOME_AWS_KEY"))
}

func TestMatchesGlobPatternContains(t *testing.T) {
	assert.True(t, MatchesGlobPattern("*_TOKEN*", "GITHUB_TOKEN"))
	assert.True(t, MatchesGlobPattern("*_TOKEN*", "MY_TOKEN_VALUE"))
	assert.True(t, MatchesGlobPattern("*_CREDENTIAL*", "AWS_CREDENTIAL_ID"))
}
