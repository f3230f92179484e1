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

// Package selfupdatecmd implements `pybun self update`.
package selfupdatecmd

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	pybunhttp "github.com/pybun/pybun/internal/http"
	"github.com/pybun/pybun/internal/output"
	"github.com/pybun/pybun/internal/selfupdate"
	"github.com/pybun/pybun/internal/version"
)

// SelfCmd groups the self-update subcommand family.
type SelfCmd struct {
	Update UpdateCmd `cmd:"" help:"Check for and apply a pybun self-update."`
}

// UpdateCmd fetches a release manifest, verifies the matching asset,
// and atomically swaps the running binary.
type UpdateCmd struct {
	Manifest string `arg:"" help:"Release-manifest URL or file path."`
	DryRun   bool   `help:"Report the asset selected for this platform; nothing is downloaded, verified or swapped."`
}

// Run executes the self update command.
func (c *UpdateCmd) Run(ctx context.Context, client pybunhttp.Client, format config.Format) error {
	collector := envelope.NewCollector("self update")

	manifest, err := selfupdate.LoadManifest(ctx, client, c.Manifest)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_MANIFEST", err.Error())
		return failSelfUpdate(collector, format, err)
	}

	target := selfupdate.CurrentReleaseTarget()
	asset, ok := manifest.SelectAsset(target)
	if !ok {
		err := errNoAssetFor(target)
		collector.Diagnostic(envelope.LevelError, "E_NO_ASSET", err.Error())
		return failSelfUpdate(collector, format, err)
	}
	collector.Event(envelope.EventCustom, "selected asset for "+target)

	if cmp, ok := manifest.CompareVersion(version.GetVersion()); ok && cmp <= 0 {
		env := collector.Finish(envelope.StatusOK, map[string]interface{}{
			"status":  "up_to_date",
			"version": manifest.Version,
		})
		return output.Emit(os.Stdout, format, env)
	}

	if c.DryRun {
		env := collector.Finish(envelope.StatusOK, map[string]interface{}{
			"status": "selected",
			"asset":  asset.Name,
		})
		return output.Emit(os.Stdout, format, env)
	}

	outcome, err := selfupdate.ApplyUpdateForAsset(ctx, client, asset, target, selfupdate.Options{})
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_APPLY", err.Error())
		return failSelfUpdate(collector, format, err)
	}

	env := collector.Finish(envelope.StatusOK, map[string]interface{}{
		"status":             "updated",
		"install_path":       outcome.InstallPath,
		"rollback_performed": outcome.RollbackPerformed,
		"version":            manifest.Version,
	})
	return output.Emit(os.Stdout, format, env)
}

func failSelfUpdate(collector *envelope.Collector, format config.Format, cause error) error {
	env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": cause.Error()})
	_ = output.Emit(os.Stdout, format, env)
	return cause
}

func errNoAssetFor(target string) error {
	return errors.Errorf("no release asset found for target %s", target)
}
