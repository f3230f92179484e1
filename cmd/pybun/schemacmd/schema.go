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

// Package schemacmd implements `pybun schema print|check`.
package schemacmd

import (
	"os"

	"github.com/spf13/afero"

	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	"github.com/pybun/pybun/internal/output"
	"github.com/pybun/pybun/internal/schema"
)

// SchemaCmd groups the schema subcommand family.
type SchemaCmd struct {
	Print PrintCmd `cmd:"" help:"Print the JSON Schema for a pybun wire format."`
	Check CheckCmd `cmd:"" help:"Validate a document against a pybun wire-format schema."`
}

// PrintCmd renders the JSON Schema document for a document kind.
type PrintCmd struct {
	Kind string `arg:"" help:"Schema kind: lockfile or release-manifest."`
}

// Run executes the schema print command.
func (c *PrintCmd) Run(format config.Format) error {
	collector := envelope.NewCollector("schema print")

	doc, err := schema.Print(schema.Kind(c.Kind))
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_UNKNOWN_KIND", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}

	env := collector.Finish(envelope.StatusOK, map[string]interface{}{"kind": c.Kind, "schema": doc})
	return output.Emit(os.Stdout, format, env)
}

// CheckCmd validates a document on disk against a wire-format schema.
type CheckCmd struct {
	Kind string `arg:"" help:"Schema kind: lockfile or release-manifest."`
	File string `arg:"" help:"Path to the document to validate."`
}

// Run executes the schema check command.
func (c *CheckCmd) Run(fs afero.Fs, format config.Format) error {
	collector := envelope.NewCollector("schema check")

	raw, err := afero.ReadFile(fs, c.File)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_READ", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}

	if err := schema.Check(schema.Kind(c.Kind), raw); err != nil {
		collector.Diagnostic(envelope.LevelError, "E_SCHEMA_INVALID", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"valid": false, "error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}

	env := collector.Finish(envelope.StatusOK, map[string]interface{}{"valid": true, "kind": c.Kind, "file": c.File})
	return output.Emit(os.Stdout, format, env)
}
