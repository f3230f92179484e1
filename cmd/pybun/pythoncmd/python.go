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

// Package pythoncmd implements the `pybun python` subcommand family,
// wrapping the managed interpreter runtime (internal/runtime) for
// listing, installing, removing, and locating Python versions.
package pythoncmd

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

// PythonCmd groups the python subcommand family.
type PythonCmd struct {
	List    ListCmd    `cmd:"" help:"List installed managed Python versions."`
	Install InstallCmd `cmd:"" help:"Download and install a Python version."`
	Remove  RemoveCmd  `cmd:"" help:"Remove an installed Python version."`
	Which   WhichCmd   `cmd:"" help:"Print the interpreter path for a version."`
}

func manager(fs afero.Fs, cch *cache.Cache, client pybunhttp.Client) *runtime.Manager {
	return runtime.New(fs, cch.Root(), client)
}

// ListCmd lists every managed interpreter version installed locally.
type ListCmd struct{}

// Run executes the python list command.
func (c *ListCmd) Run(fs afero.Fs, cch *cache.Cache, client pybunhttp.Client, format config.Format) error {
	collector := envelope.NewCollector("python list")
	collector.Event(envelope.EventPythonListStart, "")

	versions, err := manager(fs, cch, client).ListInstalled()
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_LIST", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}

	collector.Event(envelope.EventPythonListComplete, "")
	env := collector.Finish(envelope.StatusOK, map[string]interface{}{"versions": versions})
	return output.Emit(os.Stdout, format, env)
}

// InstallCmd downloads and installs a managed Python version.
type InstallCmd struct {
	Version string `arg:"" help:"Python version to install, e.g. 3.12.4."`
}

// Run executes the python install command.
func (c *InstallCmd) Run(ctx context.Context, fs afero.Fs, cch *cache.Cache, client pybunhttp.Client, format config.Format) error {
	collector := envelope.NewCollector("python install")
	collector.Event(envelope.EventPythonInstallStart, c.Version)

	resolved, err := manager(fs, cch, client).EnsureVersion(ctx, c.Version)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_INSTALL", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}

	collector.Event(envelope.EventPythonInstallComplete, resolved)
	env := collector.Finish(envelope.StatusOK, map[string]interface{}{"version": resolved})
	return output.Emit(os.Stdout, format, env)
}

// RemoveCmd deletes an installed managed Python version.
type RemoveCmd struct {
	Version string `arg:"" help:"Python version to remove, e.g. 3.12.4."`
}

// Run executes the python remove command.
func (c *RemoveCmd) Run(fs afero.Fs, cch *cache.Cache, client pybunhttp.Client, format config.Format) error {
	collector := envelope.NewCollector("python remove")
	collector.Event(envelope.EventPythonRemoveStart, c.Version)

	if err := manager(fs, cch, client).RemoveVersion(c.Version); err != nil {
		collector.Diagnostic(envelope.LevelError, "E_REMOVE", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}

	collector.Event(envelope.EventPythonRemoveComplete, c.Version)
	env := collector.Finish(envelope.StatusOK, map[string]interface{}{"version": c.Version})
	return output.Emit(os.Stdout, format, env)
}

// WhichCmd prints the resolved interpreter path for a managed
// version.
type WhichCmd struct {
	Version string `arg:"" help:"Python version to locate, e.g. 3.12.4."`
}

// Run executes the python which command.
func (c *WhichCmd) Run(fs afero.Fs, cch *cache.Cache, client pybunhttp.Client, format config.Format) error {
	collector := envelope.NewCollector("python which")

	info, err := manager(fs, cch, client).GetVersionInfo(c.Version)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_NOT_INSTALLED", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}

	env := collector.Finish(envelope.StatusOK, map[string]interface{}{
		"path":    info.Path,
		"version": info.Version,
	})
	return output.Emit(os.Stdout, format, env)
}
