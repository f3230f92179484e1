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

	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	"github.com/pybun/pybun/internal/envorch"
	"github.com/pybun/pybun/internal/output"
)

// RunCmd runs a project script inside the interpreter environment
// orchestration selects for the current directory.
type RunCmd struct {
	Script string   `arg:"" help:"Path to the script to run."`
	Args   []string `arg:"" optional:"" help:"Arguments passed through to the script."`
}

// Run executes the run command.
func (c *RunCmd) Run(ctx context.Context, format config.Format) error {
	collector := envelope.NewCollector("run")

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
	collector.Event(envelope.EventEnvActivate, "using interpreter from "+string(env.Source))

	collector.Event(envelope.EventScriptStart, c.Script)
	cmd := exec.CommandContext(ctx, env.PythonPath, append([]string{c.Script}, c.Args...)...)
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
	collector.EventWithPayload(envelope.EventScriptEnd, c.Script, nil, map[string]interface{}{"exit_code": exitCode})

	envelopeOut := collector.Finish(status, map[string]interface{}{
		"python":    env.PythonPath,
		"exit_code": exitCode,
	})
	if err := output.Emit(os.Stdout, format, envelopeOut); err != nil {
		return err
	}
	if status == envelope.StatusError {
		return runErr
	}
	return nil
}
