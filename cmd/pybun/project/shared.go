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

// Package project implements pybun's project-lifecycle subcommands:
// install, add, remove, lock, run, x, test, build. Each Run method
// follows the teacher's pattern of taking its dependencies as
// additional Run parameters bound by AfterApply, rather than reaching
// for globals.
package project

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/pybun/pybun/internal/cache"
	pybunhttp "github.com/pybun/pybun/internal/http"
	"github.com/pybun/pybun/internal/index"
	"github.com/pybun/pybun/internal/lockfile"
	"github.com/pybun/pybun/internal/project"
	"github.com/pybun/pybun/internal/resolver"
	"github.com/pybun/pybun/internal/runtime"
)

// DefaultIndexURL is the upstream package index base URL, overridden
// by PYBUN_INDEX_URL (spec §6: "Index endpoints: base-URL ...
// overrides").
const DefaultIndexURL = "https://pypi.org/pypi"

const indexURLEnvVar = "PYBUN_INDEX_URL"
const offlineEnvVar = "PYBUN_OFFLINE"

func indexURL() string {
	if v := os.Getenv(indexURLEnvVar); v != "" {
		return v
	}
	return DefaultIndexURL
}

func isOffline() bool {
	return os.Getenv(offlineEnvVar) != ""
}

func buildIndex(cch *cache.Cache, client pybunhttp.Client) index.Index {
	return index.NewRemoteIndex(indexURL(), client, cch, isOffline())
}

// resolveProject loads the project manifest from workingDir, resolves
// its declared dependencies against the package index, and returns
// the Resolution. It does not write the lockfile.
func resolveProject(ctx context.Context, workingDir string, idx index.Index) (*resolver.Resolution, error) {
	manifest, err := project.Load(workingDir)
	if err != nil {
		return nil, err
	}

	reqs := make([]resolver.Requirement, 0, len(manifest.Dependencies()))
	for _, dep := range manifest.Dependencies() {
		reqs = append(reqs, resolver.ParseRequirement(dep))
	}

	res, err := resolver.New(idx).Resolve(ctx, reqs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve project dependencies")
	}
	return res, nil
}

// lockAndSave tags res with the current platform and the interpreter
// versions rt knows about, then writes it to workingDir/pybun.lock.
func lockAndSave(fs afero.Fs, workingDir string, res *resolver.Resolution, rt *runtime.Manager) (*lockfile.Lockfile, error) {
	platform, _ := runtime.CurrentPlatform()
	installed, _ := rt.ListInstalled()

	lf := lockfile.FromResolution(res, []string{string(platform)}, installed)
	if err := lockfile.Save(fs, workingDir, lf); err != nil {
		return nil, err
	}
	return lf, nil
}
