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

// Package telemetry implements the opt-in telemetry toggle backing
// `pybun telemetry status|enable|disable`: an env var override, a
// persisted config-file flag, and a disabled-by-default fallback, plus
// the default redaction-pattern list the support bundle extends.
package telemetry

import (
	"os"
	"strings"

	"github.com/pybun/pybun/internal/config"
)

// Source is the precedence a Status was resolved from.
type Source string

// Recognized Sources, in descending precedence order.
const (
	SourceEnvironment Source = "environment"
	SourceConfig      Source = "config"
	SourceDefault     Source = "default"
)

// DefaultRedactionPatterns are the built-in glob patterns the support
// bundle (internal/support) and telemetry redaction both match
// environment-variable and config keys against.
var DefaultRedactionPatterns = []string{
	"*_KEY",
	"*_TOKEN",
	"*_SECRET",
	"*_PASSWORD",
	"*_CREDENTIAL*",
	"AWS_*",
	"GITHUB_*",
	"AZURE_*",
	"GCP_*",
	"PYBUN_*_TOKEN",
}

// Status is the resolved telemetry state: whether it is enabled, which
// precedence level decided that, and the redaction patterns in effect.
type Status struct {
	Enabled           bool     `json:"enabled"`
	Source            Source   `json:"source"`
	RedactionPatterns []string `json:"redaction_patterns"`
}

// Manager resolves and persists telemetry opt-in state through a
// config.Source, honoring the PYBUN_TELEMETRY environment variable as
// the highest-precedence override.
type Manager struct {
	src config.Source
}

// NewManager constructs a Manager backed by src.
func NewManager(src config.Source) *Manager {
	return &Manager{src: src}
}

// Status resolves the current telemetry status: PYBUN_TELEMETRY env
// var, then the persisted config flag, then disabled-by-default.
func (m *Manager) Status() Status {
	if raw, ok := os.LookupEnv("PYBUN_TELEMETRY"); ok {
		return Status{
			Enabled:           isTruthy(raw),
			Source:            SourceEnvironment,
			RedactionPatterns: m.redactionPatterns(),
		}
	}

	cfg, err := m.src.GetConfig()
	if err != nil {
		return Status{Enabled: false, Source: SourceDefault, RedactionPatterns: m.redactionPatterns()}
	}
	return Status{
		Enabled:           cfg.Telemetry.Enabled,
		Source:            SourceConfig,
		RedactionPatterns: m.redactionPatterns(),
	}
}

// IsEnabled reports whether telemetry is enabled under current
// precedence rules.
func (m *Manager) IsEnabled() bool {
	return m.Status().Enabled
}

// Enable persists telemetry=true to the config file.
func (m *Manager) Enable() (Status, error) {
	return m.setEnabled(true)
}

// Disable persists telemetry=false to the config file.
func (m *Manager) Disable() (Status, error) {
	return m.setEnabled(false)
}

func (m *Manager) setEnabled(enabled bool) (Status, error) {
	cfg, err := m.src.GetConfig()
	if err != nil {
		cfg = &config.Config{}
	}
	cfg.Telemetry.Enabled = enabled
	if err := m.src.UpdateConfig(cfg); err != nil {
		return Status{}, err
	}
	return Status{Enabled: enabled, Source: SourceConfig, RedactionPatterns: m.redactionPatterns()}, nil
}

// ShouldRedact reports whether key matches a built-in or user-extended
// redaction pattern.
func (m *Manager) ShouldRedact(key string) bool {
	for _, pattern := range m.redactionPatterns() {
		if MatchesGlobPattern(pattern, key) {
			return true
		}
	}
	return false
}

// redactionPatterns returns the built-in patterns plus any
// PYBUN_REDACT_EXTRA and persisted config.Redact.ExtraPatterns
// additions, per SPEC_FULL.md's redaction-pattern extension variable.
func (m *Manager) redactionPatterns() []string {
	patterns := append([]string(nil), DefaultRedactionPatterns...)

	if cfg, err := m.src.GetConfig(); err == nil {
		patterns = append(patterns, cfg.Redact.ExtraPatterns...)
	}
	if extra := os.Getenv("PYBUN_REDACT_EXTRA"); extra != "" {
		for _, p := range strings.Split(extra, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
	}
	return patterns
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MatchesGlobPattern reports whether text matches pattern, where '*'
// matches any run of characters. Comparison is case-insensitive,
// matching the original's uppercase-normalized key matching.
func MatchesGlobPattern(pattern, text string) bool {
	pattern = strings.ToUpper(pattern)
	text = strings.ToUpper(text)

	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == text
	}

	parts := strings.Split(pattern, "*")
	first, last := 0, len(parts)-1
	if parts[first] != "" && !strings.HasPrefix(text, parts[first]) {
		return false
	}
	if parts[last] != "" && !strings.HasSuffix(text, parts[last]) {
		return false
	}

	searchStart := len(parts[first])
	searchEnd := len(text) - len(parts[last])
	if searchEnd < searchStart {
		return false
	}
	middle := text[searchStart:searchEnd]
	for _, part := range parts[first+1 : last] {
		if part == "" {
			continue
		}
		idx := strings.Index(middle, part)
		if idx < 0 {
			return false
		}
		middle = middle[idx+len(part):]
	}
	return true
}
