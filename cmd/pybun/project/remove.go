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

package project

import (
	"context"
	"os"

	"github.com/spf13/afero"

	"github.com/pybun/pybun/internal/cache"
	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	pybunhttp "github.com/pybun/pybun/internal/http"
	"github.com/pybun/pybun/internal/output"
	"github.com/pybun/pybun/internal/project"
	"github.com/pybun/pybun/internal/resolver"
	"github.com/pybun/pybun/internal/runtime"
)

// RemoveCmd removes a requirement from the project manifest and
// re-resolves.
type RemoveCmd struct {
	Name string `arg:"" help:"Name of the dependency to remove."`
}

// Run executes the remove command.
func (c *RemoveCmd) Run(ctx context.Context, fs afero.Fs, cch *cache.Cache, client pybunhttp.Client, format config.Format) error {
	collector := envelope.NewCollector("remove")

	workingDir, err := os.Getwd()
	if err != nil {
		return finish(collector, format, err)
	}

	manifest, err := project.Load(workingDir)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_MANIFEST", err.Error())
		return finish(collector, format, err)
	}
	if err := manifest.RemoveDependency(c.Name); err != nil {
		collector.Diagnostic(envelope.LevelError, "E_MANIFEST", err.Error())
		return finish(collector, format, err)
	}
	collector.Event(envelope.EventCustom, "removed "+c.Name+" from project manifest")

	idx := buildIndex(cch, client)
	reqs := make([]resolver.Requirement, 0, len(manifest.Dependencies()))
	for _, dep := range manifest.Dependencies() {
		reqs = append(reqs, resolver.ParseRequirement(dep))
	}
	res, err := resolver.New(idx).Resolve(ctx, reqs)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_RESOLVE", err.Error())
		return finish(collector, format, err)
	}

	rt := runtime.New(fs, cch.Root(), client)
	lf, err := lockAndSave(fs, workingDir, res, rt)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_LOCKFILE", err.Error())
		return finish(collector, format, err)
	}

	env := collector.Finish(envelope.StatusOK, map[string]interface{}{
		"removed":  c.Name,
		"packages": lf.PackageNames(),
	})
	return output.Emit(os.Stdout, format, env)
}
