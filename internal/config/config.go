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
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Location of the persisted pybun config file, relative to the user's
// home directory. PYBUN_HOME overrides the parent directory entirely
// (see GetDefaultPath).
const (
	ConfigParentDir = ".cache"
	ConfigDir       = "pybun"
	ConfigFile      = "config.json"
)

const (
	errNoIndexNamed = "no index configured with name: %s"
)

// Format is the allowed set of values for the global --format option.
type Format string

// Allowed values for Format.
const (
	Default Format = "text"
	JSON    Format = "json"
)

// Config is the persisted shape of pybun's user-level configuration
// file: telemetry opt-in, package-index overrides and support-bundle
// redaction extensions that should survive across invocations.
type Config struct {
	Telemetry Telemetry         `json:"telemetry"`
	Indexes   map[string]Index  `json:"indexes,omitempty"`
	Redact    RedactionSettings `json:"redact,omitempty"`
}

// Telemetry holds the user's telemetry opt-in state.
type Telemetry struct {
	Enabled bool `json:"enabled"`
}

// Index describes an additional or overriding package index.
type Index struct {
	URL     string `json:"url"`
	Default bool   `json:"default,omitempty"`
}

// RedactionSettings extends the support bundle's built-in redaction
// glob list (see internal/support) with user-supplied patterns.
type RedactionSettings struct {
	ExtraPatterns []string `json:"extraPatterns,omitempty"`
}

// Extract performs extraction of configuration from the provided source.
func Extract(src Source) (*Config, error) {
	conf, err := src.GetConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	return conf, nil
}

// GetDefaultPath returns the default config file path. PYBUN_HOME, if
// set, replaces the home-directory-relative prefix entirely.
func GetDefaultPath() (string, error) {
	if home := os.Getenv("PYBUN_HOME"); home != "" {
		return filepath.Join(home, ConfigFile), nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, ConfigParentDir, ConfigDir, ConfigFile), nil
}

// GetIndex returns the named index configuration, or an error if no
// index with that name has been configured.
func (c *Config) GetIndex(name string) (Index, error) {
	idx, ok := c.Indexes[name]
	if !ok {
		return Index{}, errors.Errorf(errNoIndexNamed, name)
	}
	return idx, nil
}

// SetIndex adds or updates a named index configuration.
func (c *Config) SetIndex(name string, idx Index) {
	if c.Indexes == nil {
		c.Indexes = map[string]Index{}
	}
	c.Indexes[name] = idx
}
