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
	"github.com/pybun/pybun/internal/runtime"
)

// LockCmd resolves the project's declared dependencies and writes the
// lockfile without fetching any wheels or touching an environment.
type LockCmd struct{}

// Run executes the lock command.
func (c *LockCmd) Run(ctx context.Context, fs afero.Fs, cch *cache.Cache, client pybunhttp.Client, format config.Format) error {
	collector := envelope.NewCollector("lock")

	workingDir, err := os.Getwd()
	if err != nil {
		return finish(collector, format, err)
	}

	idx := buildIndex(cch, client)
	collector.Event(envelope.EventResolveStart, "resolving against package index")
	res, err := resolveProject(ctx, workingDir, idx)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_RESOLVE", err.Error())
		return finish(collector, format, err)
	}
	collector.Progress(envelope.EventResolveComplete, 100, "resolution complete")

	rt := runtime.New(fs, cch.Root(), client)
	lf, err := lockAndSave(fs, workingDir, res, rt)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_LOCKFILE", err.Error())
		return finish(collector, format, err)
	}

	env := collector.Finish(envelope.StatusOK, map[string]interface{}{
		"packages": lf.PackageNames(),
		"count":    len(lf.Packages),
	})
	return output.Emit(os.Stdout, format, env)
}
