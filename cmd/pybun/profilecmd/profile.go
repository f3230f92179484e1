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

// Package profilecmd implements `pybun profile`, which shows the
// Python environment pybun would select for the current directory
// without running anything in it.
package profilecmd

import (
	"os"

	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	"github.com/pybun/pybun/internal/envorch"
	"github.com/pybun/pybun/internal/output"
)

// ProfileCmd reports the interpreter pybun would select for the
// current directory and why.
type ProfileCmd struct{}

// Run executes the profile command.
func (c *ProfileCmd) Run(format config.Format) error {
	collector := envelope.NewCollector("profile")

	workingDir, err := os.Getwd()
	if err != nil {
		return err
	}

	sidecar := envorch.LoadSidecarCache(envorch.PybunHome())
	env, err := envorch.FindPythonEnvCached(workingDir, sidecar)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_NO_INTERPRETER", err.Error())
		envOut := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, envOut)
		return err
	}

	detail := map[string]interface{}{
		"python":  env.PythonPath,
		"version": env.Version,
		"source":  env.Source.String(),
	}
	if env.VersionFile != "" {
		detail["version_file"] = env.VersionFile
	}

	envOut := collector.Finish(envelope.StatusOK, detail)
	return output.Emit(os.Stdout, format, envOut)
}
