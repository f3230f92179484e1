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

// TestCmd runs the project's test suite inside the resolved
// interpreter environment, delegating test discovery/execution to
// whatever runner the project uses (out of scope for the core per
// spec.md §1; pybun only locates the interpreter and execs it).
type TestCmd struct {
	Runner string   `default:"pytest" help:"Test-runner module to invoke, e.g. pytest or unittest."`
	Args   []string `arg:"" optional:"" help:"Arguments passed through to the test runner."`
}

// Run executes the test command.
func (c *TestCmd) Run(ctx context.Context, format config.Format) error {
	collector := envelope.NewCollector("test")

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

	collector.Event(envelope.EventScriptStart, c.Runner)
	args := append([]string{"-m", c.Runner}, c.Args...)
	cmd := exec.CommandContext(ctx, env.PythonPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	runErr := cmd.Run()

	status := envelope.StatusOK
	exitCode := 0
	if runErr != nil {
		status = envelope.StatusError
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
		collector.Diagnostic(envelope.LevelError, "E_TEST_FAILED", runErr.Error())
	}
	collector.Event(envelope.EventScriptEnd, c.Runner)

	envOut := collector.Finish(status, map[string]interface{}{
		"runner":    c.Runner,
		"exit_code": exitCode,
	})
	if err := output.Emit(os.Stdout, format, envOut); err != nil {
		return err
	}
	if status == envelope.StatusError {
		return runErr
	}
	return nil
}
