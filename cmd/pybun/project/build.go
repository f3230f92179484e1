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
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/pybun/pybun/internal/cache"
	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	"github.com/pybun/pybun/internal/envorch"
	"github.com/pybun/pybun/internal/output"
)

// BuildCmd invokes the project's build backend, reusing a cached dist
// directory when the project tree's fingerprint is unchanged.
type BuildCmd struct {
	Backend string `default:"build" help:"Build-backend module to invoke, e.g. python -m build."`
}

// Run executes the build command.
func (c *BuildCmd) Run(ctx context.Context, fs afero.Fs, cch *cache.Cache, format config.Format) error {
	collector := envelope.NewCollector("build")

	workingDir, err := os.Getwd()
	if err != nil {
		return finish(collector, format, err)
	}

	sidecar := envorch.LoadSidecarCache(envorch.PybunHome())
	env, err := envorch.FindPythonEnvCached(workingDir, sidecar)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_NO_INTERPRETER", err.Error())
		return finish(collector, format, err)
	}

	files, err := collectTrackedFiles(fs, workingDir)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_FINGERPRINT", err.Error())
		return finish(collector, format, err)
	}
	fingerprint := cache.BuildFingerprint(c.Backend, "pep517", env.PythonPath, files)

	if cch.HasBuildOutput(fingerprint) {
		collector.Event(envelope.EventCacheHit, "reusing build output "+fingerprint)
	} else {
		collector.Event(envelope.EventCacheMiss, "running build backend")
		cmd := exec.CommandContext(ctx, env.PythonPath, "-m", c.Backend, "--outdir", cch.BuildDistDir(fingerprint))
		cmd.Dir = workingDir
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			collector.Diagnostic(envelope.LevelError, "E_BUILD_FAILED", err.Error())
			return finish(collector, format, err)
		}
		collector.Event(envelope.EventCacheWrite, "cached build output "+fingerprint)
	}

	outputs, _, err := cch.RestoreBuildOutput(fingerprint)
	if err != nil {
		collector.Diagnostic(envelope.LevelWarning, "E_BUILD_RESTORE", err.Error())
	}
	names := make([]string, 0, len(outputs))
	for _, f := range outputs {
		names = append(names, f.RelPath)
	}

	envOut := collector.Finish(envelope.StatusOK, map[string]interface{}{
		"fingerprint": fingerprint,
		"dist_dir":    cch.BuildDistDir(fingerprint),
		"artifacts":   names,
	})
	return output.Emit(os.Stdout, format, envOut)
}

// collectTrackedFiles walks root, skipping cache.IgnoredDirs and
// hidden directories, and returns every file's relative path and
// content for fingerprinting.
func collectTrackedFiles(fs afero.Fs, root string) ([]cache.FileInput, error) {
	var files []cache.FileInput
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if path != root && (cache.IgnoredDirs[name] || (len(name) > 1 && name[0] == '.')) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		files = append(files, cache.FileInput{RelPath: filepath.ToSlash(rel), Content: data})
		return nil
	})
	return files, err
}
