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

package lockfile

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pybun/pybun/internal/index"
	"github.com/pybun/pybun/internal/resolver"
)

func sampleLockfile() *Lockfile {
	return &Lockfile{
		SchemaVersion: schemaVersion,
		Platforms:     []string{"linux_x86_64", "macosx_11_0_arm64"},
		Interpreters:  []string{"3.11", "3.12"},
		Packages: []Package{
			{
				Name:         "urllib3",
				Version:      "2.0.0",
				Source:       Source{Kind: SourceRegistry, IndexName: "pypi"},
				Dependencies: []string{},
			},
			{
				Name:         "requests",
				Version:      "2.31.0",
				Source:       Source{Kind: SourceRegistry, IndexName: "pypi", URL: "https://pypi.org/simple/requests/"},
				WheelName:    "requests-2.31.0-py3-none-any.whl",
				Hash:         "sha256:abc123",
				Dependencies: []string{"urllib3==2.0.0"},
			},
		},
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	lf := sampleLockfile()

	require.NoError(t, Save(fs, "/project", lf))

	loaded, err := Load(fs, "/project")
	require.NoError(t, err)
	assert.Equal(t, lf, loaded)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, Save(fs, "/project", sampleLockfile()))

	exists, err := afero.Exists(fs, "/project/pybun.lock.tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = afero.Exists(fs, "/project/pybun.lock")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLoadFallsBackToLegacyName(t *testing.T) {
	fs := afero.NewMemMapFs()
	lf := sampleLockfile()
	require.NoError(t, Save(fs, "/project", lf))

	require.NoError(t, fs.Rename("/project/pybun.lock", "/project/pybun.lockb"))

	loaded, err := Load(fs, "/project")
	require.NoError(t, err)
	assert.Equal(t, lf, loaded)
}

func TestLoadMissingReturnsError(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Load(fs, "/project")
	assert.Error(t, err)
}

func TestSaveIsByteIdenticalOnRepeat(t *testing.T) {
	fs := afero.NewMemMapFs()
	lf := sampleLockfile()

	require.NoError(t, Save(fs, "/project", lf))
	first, err := afero.ReadFile(fs, "/project/pybun.lock")
	require.NoError(t, err)

	require.NoError(t, Save(fs, "/project", lf))
	second, err := afero.ReadFile(fs, "/project/pybun.lock")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFromResolutionEmptyResolutionKeepsPlatforms(t *testing.T) {
	lf := FromResolution(resolver.NewResolution(), []string{"linux_x86_64"}, []string{"3.11"})
	assert.Empty(t, lf.Packages)
	assert.Equal(t, []string{"linux_x86_64"}, lf.Platforms)
}

func TestFromResolvedPackageEncodesRangeDependencies(t *testing.T) {
	pkg := index.ResolvedPackage{
		Name:    "flask",
		Version: "3.0.0",
		Dependencies: []index.Requirement{
			{Name: "werkzeug", Range: ">=3.0"},
			{Name: "jinja2", Version: "3.1.2"},
		},
		Provenance: index.Provenance{IndexName: "pypi"},
		Artifacts: index.ArtifactSet{
			Wheels: []index.Wheel{{Filename: "flask-3.0.0-py3-none-any.whl", Hash: "sha256:deadbeef"}},
		},
	}

	p := fromResolvedPackage(pkg)
	assert.Equal(t, "flask", p.Name)
	assert.Equal(t, "flask-3.0.0-py3-none-any.whl", p.WheelName)
	assert.Equal(t, "sha256:deadbeef", p.Hash)
	assert.ElementsMatch(t, []string{"werkzeug>=3.0", "jinja2==3.1.2"}, p.Dependencies)
}

func TestSortedDoesNotMutateOriginalOrder(t *testing.T) {
	lf := sampleLockfile()
	sorted := lf.Sorted()

	assert.Equal(t, []string{"urllib3", "requests"}, lf.PackageNames())
	assert.Equal(t, "requests", sorted.Packages[0].Name)
	assert.Equal(t, "urllib3", sorted.Packages[1].Name)
}
