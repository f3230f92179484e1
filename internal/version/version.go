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

// Package version records the build-time version stamped into the
// pybun binary, surfaced by the --version flag and the support bundle's
// version record.
package version

// version is set at build time via -ldflags "-X ...version.version=vX.Y.Z".
var version = "dev"

// GetVersion returns the current build version.
func GetVersion() string {
	return version
}
