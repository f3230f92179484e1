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

// Package doctor implements pybun's environment/cache health check and
// cache garbage collection subcommands.
package doctor

import (
	"context"
	"os"

	"github.com/spf13/afero"

	"github.com/pybun/pybun/internal/cache"
	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	"github.com/pybun/pybun/internal/envorch"
	"github.com/pybun/pybun/internal/output"
	"github.com/pybun/pybun/internal/support"
)

// DoctorCmd checks the environment and cache for common problems,
// optionally assembling a support bundle from the results.
type DoctorCmd struct {
	Verbose bool   `help:"Include verbose detail in each check."`
	Bundle  string `optional:"" help:"If set, also write a support bundle to this directory."`
}

// Run executes the doctor command.
func (c *DoctorCmd) Run(goCtx context.Context, fs afero.Fs, cch *cache.Cache, format config.Format) error {
	collector := envelope.NewCollector("doctor")

	workingDir, err := os.Getwd()
	if err != nil {
		return err
	}

	var checks []map[string]interface{}
	healthy := true

	sidecar := envorch.LoadSidecarCache(envorch.PybunHome())
	if env, findErr := envorch.FindPythonEnvCached(workingDir, sidecar); findErr != nil {
		checks = append(checks, map[string]interface{}{
			"name": "python", "status": "error",
			"message": "Python not found: " + findErr.Error(),
		})
		collector.Diagnostic(envelope.LevelError, "E_NO_INTERPRETER", findErr.Error())
		healthy = false
	} else {
		checks = append(checks, map[string]interface{}{
			"name": "python", "status": "ok",
			"message": "Python found at " + env.PythonPath + " (" + env.Source.String() + ")",
		})
	}

	cacheMessage := "Cache directory: " + cch.Root()
	if c.Verbose {
		if size, sizeErr := cch.TotalSize(); sizeErr == nil {
			cacheMessage += " (" + cache.FormatSize(size) + ")"
		}
	}
	checks = append(checks, map[string]interface{}{"name": "cache", "status": "ok", "message": cacheMessage})

	status := envelope.StatusOK
	summary := "all checks passed"
	if !healthy {
		status = envelope.StatusError
		summary = "some issues found"
	}

	detail := map[string]interface{}{"checks": checks, "summary": summary}

	if c.Bundle != "" {
		bundleCtx := support.Context{Command: "doctor", Checks: checks, LogDirs: []string{cch.LogsDirPath()}}
		bundle, buildErr := support.Build(fs, c.Bundle, bundleCtx)
		if buildErr != nil {
			collector.Diagnostic(envelope.LevelWarning, "E_BUNDLE", buildErr.Error())
		} else {
			detail["bundle_path"] = bundle.Path
			collector.Event(envelope.EventCustom, "wrote support bundle to "+bundle.Path)
		}
	}

	env := collector.Finish(status, detail)
	if err := output.Emit(os.Stdout, format, env); err != nil {
		return err
	}
	if status == envelope.StatusError {
		os.Exit(output.ExitCode(env))
	}
	return nil
}
