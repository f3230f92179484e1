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
	"bytes"
	"os"
	"runtime"
)

// Platform identifies a target OS/arch/libc combination for interpreter
// downloads.
type Platform string

const (
	MacOSArm64    Platform = "macos_arm64"
	MacOSX64      Platform = "macos_x64"
	LinuxX64Gnu   Platform = "linux_x64_gnu"
	LinuxArm64Gnu Platform = "linux_arm64_gnu"
	LinuxX64Musl  Platform = "linux_x64_musl"
	WindowsX64    Platform = "windows_x64"
)

// CurrentPlatform detects the running OS/arch/libc, returning ("", false)
// for combinations python-build-standalone does not publish.
func CurrentPlatform() (Platform, bool) {
	switch runtime.GOOS {
	case "darwin":
		switch runtime.GOARCH {
		case "arm64":
			return MacOSArm64, true
		case "amd64":
			return MacOSX64, true
		}
	case "linux":
		switch runtime.GOARCH {
		case "amd64":
			if isMusl() {
				return LinuxX64Musl, true
			}
			return LinuxX64Gnu, true
		case "arm64":
			return LinuxArm64Gnu, true
		}
	case "windows":
		if runtime.GOARCH == "amd64" {
			return WindowsX64, true
		}
	}
	return "", false
}

// isMusl heuristically detects a musl libc userland, the way
// python-build-standalone distinguishes its musl and glibc Linux
// archives.
func isMusl() bool {
	if _, err := os.Stat("/etc/alpine-release"); err == nil {
		return true
	}
	data, err := os.ReadFile("/proc/self/maps")
	if err != nil {
		return false
	}
	return bytes.Contains(data, []byte("musl"))
}

// ArchiveSuffix returns the python-build-standalone archive filename
// suffix for p.
func (p Platform) ArchiveSuffix() string {
	switch p {
	case MacOSArm64:
		return "aarch64-apple-darwin-install_only.tar.gz"
	case MacOSX64:
		return "x86_64-apple-darwin-install_only.tar.gz"
	case LinuxX64Gnu:
		return "x86_64-unknown-linux-gnu-install_only.tar.gz"
	case LinuxArm64Gnu:
		return "aarch64-unknown-linux-gnu-install_only.tar.gz"
	case LinuxX64Musl:
		return "x86_64-unknown-linux-musl-install_only.tar.gz"
	case WindowsX64:
		return "x86_64-pc-windows-msvc-install_only.tar.gz"
	default:
		return ""
	}
}

// ChecksumKey returns the key this platform uses in a PythonVersion's
// Checksums map. It is identical to the Platform's own string value,
// kept as a separate method because the embedded table and platform
// identity are conceptually distinct.
func (p Platform) ChecksumKey() string {
	return string(p)
}
