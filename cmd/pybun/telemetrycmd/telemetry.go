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

// Package telemetrycmd implements `pybun telemetry status|enable|disable`.
package telemetrycmd

import (
	"os"

	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	"github.com/pybun/pybun/internal/output"
	"github.com/pybun/pybun/internal/telemetry"
)

// TelemetryCmd groups the telemetry subcommand family.
type TelemetryCmd struct {
	Status  StatusCmd  `cmd:"" help:"Show the resolved telemetry opt-in state."`
	Enable  EnableCmd  `cmd:"" help:"Enable telemetry."`
	Disable DisableCmd `cmd:"" help:"Disable telemetry."`
}

func statusDetail(s telemetry.Status) map[string]interface{} {
	return map[string]interface{}{
		"enabled":            s.Enabled,
		"source":             s.Source,
		"redaction_patterns": s.RedactionPatterns,
	}
}

// StatusCmd reports the resolved telemetry state.
type StatusCmd struct{}

// Run executes the telemetry status command.
func (c *StatusCmd) Run(cfgSrc config.Source, format config.Format) error {
	collector := envelope.NewCollector("telemetry status")
	status := telemetry.NewManager(cfgSrc).Status()
	env := collector.Finish(envelope.StatusOK, statusDetail(status))
	return output.Emit(os.Stdout, format, env)
}

// EnableCmd persists an opt-in to telemetry.
type EnableCmd struct{}

// Run executes the telemetry enable command.
func (c *EnableCmd) Run(cfgSrc config.Source, format config.Format) error {
	collector := envelope.NewCollector("telemetry enable")
	status, err := telemetry.NewManager(cfgSrc).Enable()
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_TELEMETRY", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}
	env := collector.Finish(envelope.StatusOK, statusDetail(status))
	return output.Emit(os.Stdout, format, env)
}

// DisableCmd persists an opt-out from telemetry.
type DisableCmd struct{}

// Run executes the telemetry disable command.
func (c *DisableCmd) Run(cfgSrc config.Source, format config.Format) error {
	collector := envelope.NewCollector("telemetry disable")
	status, err := telemetry.NewManager(cfgSrc).Disable()
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_TELEMETRY", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}
	env := collector.Finish(envelope.StatusOK, statusDetail(status))
	return output.Emit(os.Stdout, format, env)
}
