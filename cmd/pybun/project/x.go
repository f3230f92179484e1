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

	"github.com/pybun/pybun/internal/cache"
	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	"github.com/pybun/pybun/internal/envorch"
	"github.com/pybun/pybun/internal/output"
	"github.com/pybun/pybun/internal/pep723"
)

// XCmd runs an ad-hoc inline-dependency script, materializing (or
// reusing) a script-environment venv keyed by its dependency hash.
type XCmd struct {
	Script string   `arg:"" help:"Path to the inline-dependency script to run."`
	Args   []string `arg:"" optional:"" help:"Arguments passed through to the script."`
}

// Run executes the x command.
func (c *XCmd) Run(ctx context.Context, cch *cache.Cache, format config.Format) error {
	collector := envelope.NewCollector("x")

	meta, err := pep723.ParseFile(c.Script)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_SCRIPT_METADATA", err.Error())
		return finish(collector, format, err)
	}
	deps := []string{}
	if meta != nil {
		deps = meta.Dependencies
	}

	hash := cache.ScriptEnvHash(deps)
	venvPath := cch.ScriptEnvDir(hash)

	sidecar := envorch.LoadSidecarCache(envorch.PybunHome())
	systemEnv, err := envorch.FindPythonEnvCached(".", sidecar)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_NO_INTERPRETER", err.Error())
		return finish(collector, format, err)
	}

	if cch.HasScriptEnv(hash) {
		collector.Event(envelope.EventCacheHit, "reusing script environment "+hash)
		_ = cch.TouchScriptEnv(hash)
	} else {
		collector.Event(envelope.EventCacheMiss, "creating script environment "+hash)
		collector.Event(envelope.EventEnvCreate, venvPath)
		if err := envorch.CreateVenv(systemEnv.PythonPath, venvPath); err != nil {
			collector.Diagnostic(envelope.LevelError, "E_VENV_CREATE", err.Error())
			return finish(collector, format, err)
		}
		if err := envorch.InstallIntoVenv(venvPath, deps); err != nil {
			collector.Diagnostic(envelope.LevelError, "E_VENV_INSTALL", err.Error())
			return finish(collector, format, err)
		}
		if err := cch.RecordScriptEnv(hash, deps, systemEnv.Version); err != nil {
			collector.Diagnostic(envelope.LevelWarning, "E_VENV_RECORD", err.Error())
		}
		collector.Event(envelope.EventCacheWrite, "recorded script environment "+hash)
	}

	pythonPath := systemEnv.PythonPath
	if scriptPython, ok := envorch.PythonInVenv(venvPath); ok {
		pythonPath = scriptPython
	}

	collector.Event(envelope.EventScriptStart, c.Script)
	cmd := exec.CommandContext(ctx, pythonPath, append([]string{c.Script}, c.Args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	runErr := cmd.Run()

	exitCode := 0
	status := envelope.StatusOK
	if runErr != nil {
		status = envelope.StatusError
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
		collector.Diagnostic(envelope.LevelError, "E_SCRIPT_FAILED", runErr.Error())
	}
	collector.Event(envelope.EventScriptEnd, c.Script)

	env := collector.Finish(status, map[string]interface{}{
		"python":          pythonPath,
		"exit_code":       exitCode,
		"dependency_hash": hash,
	})
	if err := output.Emit(os.Stdout, format, env); err != nil {
		return err
	}
	if status == envelope.StatusError {
		return runErr
	}
	return nil
}
