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
	"strconv"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/pybun/pybun/internal/cache"
	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/downloader"
	"github.com/pybun/pybun/internal/envelope"
	pybunhttp "github.com/pybun/pybun/internal/http"
	"github.com/pybun/pybun/internal/output"
	"github.com/pybun/pybun/internal/runtime"
)

// InstallCmd resolves the project's declared dependencies, fetches
// any wheels missing from the cache, and writes the lockfile.
type InstallCmd struct {
	Concurrency int `default:"4" help:"Maximum number of wheels to download in parallel."`
}

// Run executes the install command.
func (c *InstallCmd) Run(ctx context.Context, fs afero.Fs, cch *cache.Cache, client pybunhttp.Client, format config.Format) error {
	collector := envelope.NewCollector("install")
	collector.Event(envelope.EventInstallStart, "resolving project dependencies")

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

	dl := downloader.New(client)
	fetcher := downloader.NewWheelFetcher(cch, dl)

	collector.Event(envelope.EventDownloadStart, "fetching wheels")
	limit := c.Concurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, pkg := range res.Packages() {
		if len(pkg.Artifacts.Wheels) == 0 {
			continue
		}
		name, wheel := pkg.Name, pkg.Artifacts.Wheels[0]
		g.Go(func() error {
			_, err := fetcher.GetWheel(gctx, name, wheel.Filename, wheel.URL, wheel.Hash)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		collector.Diagnostic(envelope.LevelError, "E_DOWNLOAD", err.Error())
		return finish(collector, format, err)
	}
	collector.Progress(envelope.EventDownloadComplete, 100, "all wheels cached")

	rt := runtime.New(fs, cch.Root(), client)
	lf, err := lockAndSave(fs, workingDir, res, rt)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_LOCKFILE", err.Error())
		return finish(collector, format, err)
	}

	collector.Event(envelope.EventInstallComplete, "install complete")
	detail := map[string]interface{}{
		"packages": lf.PackageNames(),
		"count":    strconv.Itoa(len(lf.Packages)),
	}
	env := collector.Finish(envelope.StatusOK, detail)
	return output.Emit(os.Stdout, format, env)
}

// finish renders a failed envelope and returns the triggering error so
// kong reports exit code 1.
func finish(collector *envelope.Collector, format config.Format, cause error) error {
	env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": cause.Error()})
	_ = output.Emit(os.Stdout, format, env)
	return cause
}
