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

package config

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfig(t *testing.T) {
	testConf := &Config{Telemetry: Telemetry{Enabled: true}}

	cases := map[string]struct {
		reason    string
		modifiers []FSSourceModifier
		want      *Config
	}{
		"SuccessfulEmptyConfig": {
			reason: "An empty file should return an empty config.",
			modifiers: []FSSourceModifier{
				func(f *FSSource) {
					f.fs = afero.NewMemMapFs()
				},
			},
			want: &Config{},
		},
		"SuccessfulAlternateHome": {
			reason: "Setting an alternate home directory should resolve correctly.",
			modifiers: []FSSourceModifier{
				func(f *FSSource) {
					f.fs = afero.NewMemMapFs()
					f.home = func() (string, error) {
						return "/", nil
					}
				},
			},
			want: &Config{},
		},
		"Successful": {
			reason: "An existing populated config file should round-trip.",
			modifiers: []FSSourceModifier{
				func(f *FSSource) {
					f.home = func() (string, error) {
						return "/", nil
					}
					fs := afero.NewMemMapFs()
					_ = fs.MkdirAll("/"+ConfigParentDir+"/"+ConfigDir, 0755)
					file, _ := fs.OpenFile("/"+ConfigParentDir+"/"+ConfigDir+"/"+ConfigFile, os.O_CREATE, 0600)
					defer file.Close()
					b, _ := json.Marshal(testConf)
					_, _ = file.Write(b)
					f.fs = fs
				},
			},
			want: testConf,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			src, err := NewFSSource(tc.modifiers...)
			require.NoError(t, err)
			conf, err := src.GetConfig()
			require.NoError(t, err)
			assert.Equal(t, tc.want, conf)
		})
	}
}

func TestUpdateConfig(t *testing.T) {
	testConf := &Config{Telemetry: Telemetry{Enabled: true}}

	cases := map[string]struct {
		reason    string
		modifiers []FSSourceModifier
		conf      *Config
	}{
		"EmptyConfig": {
			reason: "Updating with empty config should not cause an error.",
			modifiers: []FSSourceModifier{
				func(f *FSSource) {
					f.fs = afero.NewMemMapFs()
				},
			},
		},
		"PopulatedConfig": {
			reason: "Updating with populated config should not cause an error.",
			modifiers: []FSSourceModifier{
				func(f *FSSource) {
					f.fs = afero.NewMemMapFs()
				},
			},
			conf: testConf,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			src, err := NewFSSource(tc.modifiers...)
			require.NoError(t, err)
			err = src.UpdateConfig(tc.conf)
			assert.NoError(t, err)
		})
	}
}

func TestPybunHomeOverride(t *testing.T) {
	t.Setenv("PYBUN_HOME", "/custom/home")
	src, err := NewFSSource(func(f *FSSource) {
		f.fs = afero.NewMemMapFs()
	})
	require.NoError(t, err)
	assert.Equal(t, "/custom/home/config.json", src.path)
}
