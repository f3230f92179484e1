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

// Package selfupdate implements the release-manifest fetch, asset
// selection, verification, and atomic binary swap that back the
// `pybun self-update` subcommand.
package selfupdate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	pybunhttp "github.com/pybun/pybun/internal/http"
	"github.com/pybun/pybun/internal/runtime"
)

// ReleaseSignature is an optional detached signature over a release
// asset, verified by verifySignature ("ed25519" or "minisign").
type ReleaseSignature struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	PublicKey string `json:"public_key,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ReleaseAsset is one downloadable, checksummed artifact in a
// ReleaseManifest, scoped to a single release target triple.
type ReleaseAsset struct {
	Name      string            `json:"name"`
	Target    string            `json:"target"`
	URL       string            `json:"url"`
	SHA256    string            `json:"sha256"`
	Signature *ReleaseSignature `json:"signature,omitempty"`
}

// ReleaseAttachment is a supplementary file (release notes, SBOM,
// provenance statement) published alongside a release.
type ReleaseAttachment struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// ReleaseManifest describes one published pybun release: its version,
// channel, and the per-target assets available for self-update.
type ReleaseManifest struct {
	Version      string             `json:"version"`
	Channel      string             `json:"channel"`
	PublishedAt  string             `json:"published_at"`
	Assets       []ReleaseAsset     `json:"assets"`
	ReleaseNotes *ReleaseAttachment `json:"release_notes,omitempty"`
	ReleaseURL   string             `json:"release_url,omitempty"`
	SBOM         *ReleaseAttachment `json:"sbom,omitempty"`
	Provenance   *ReleaseAttachment `json:"provenance,omitempty"`
}

// ParseManifest decodes a release manifest from raw JSON.
func ParseManifest(raw []byte) (*ReleaseManifest, error) {
	var m ReleaseManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "failed to parse release manifest")
	}
	return &m, nil
}

// LoadManifest fetches a release manifest from source, which may be a
// file:// URL, an http(s):// URL, or a bare filesystem path.
func LoadManifest(ctx context.Context, client pybunhttp.Client, source string) (*ReleaseManifest, error) {
	if path, ok := strings.CutPrefix(source, "file://"); ok {
		return loadManifestFromPath(path)
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return loadManifestFromURL(ctx, client, source)
	}
	return loadManifestFromPath(source)
}

func loadManifestFromPath(path string) (*ReleaseManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest from %s", path)
	}
	return ParseManifest(data)
}

func loadManifestFromURL(ctx context.Context, client pybunhttp.Client, url string) (*ReleaseManifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request for %s", url)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch manifest from %s", url)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("failed to fetch manifest from %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest body from %s", url)
	}
	return ParseManifest(body)
}

// SelectAsset returns the asset scoped to target, if present.
func (m *ReleaseManifest) SelectAsset(target string) (*ReleaseAsset, bool) {
	for i := range m.Assets {
		if m.Assets[i].Target == target {
			return &m.Assets[i], true
		}
	}
	return nil, false
}

// CompareVersion compares the manifest's version against currentVersion,
// returning semver.Version.Compare's tri-state result. ok is false if
// either version fails to parse.
func (m *ReleaseManifest) CompareVersion(currentVersion string) (cmp int, ok bool) {
	latest, err := semver.NewVersion(strings.TrimPrefix(m.Version, "v"))
	if err != nil {
		return 0, false
	}
	current, err := semver.NewVersion(strings.TrimPrefix(currentVersion, "v"))
	if err != nil {
		return 0, false
	}
	return latest.Compare(current), true
}

// releaseTargets maps a runtime.Platform to the release-asset target
// triple pybun publishes archives under.
var releaseTargets = map[runtime.Platform]string{
	runtime.MacOSArm64:    "aarch64-apple-darwin",
	runtime.MacOSX64:      "x86_64-apple-darwin",
	runtime.LinuxX64Gnu:   "x86_64-unknown-linux-gnu",
	runtime.LinuxArm64Gnu: "aarch64-unknown-linux-gnu",
	runtime.LinuxX64Musl:  "x86_64-unknown-linux-musl",
	runtime.WindowsX64:    "x86_64-pc-windows-msvc",
}

// CurrentReleaseTarget returns the release-asset target triple for the
// running platform, or "" if this platform is not published.
func CurrentReleaseTarget() string {
	platform, ok := runtime.CurrentPlatform()
	if !ok {
		return ""
	}
	return releaseTargets[platform]
}
