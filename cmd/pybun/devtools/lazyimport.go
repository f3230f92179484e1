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

package devtools

import (
	"os"

	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	"github.com/pybun/pybun/internal/lazyimport"
	"github.com/pybun/pybun/internal/output"
)

// LazyImportCmd renders the Python shim that defers module imports
// until first attribute access, restricted by an allow/deny list.
type LazyImportCmd struct {
	Allow  []string `help:"Modules eligible for lazy import. Empty means every non-denied module."`
	Deny   []string `help:"Modules that must always import eagerly, in addition to the built-in denylist."`
	Output string   `help:"Write the generated shim to this path instead of stdout." short:"o"`
}

// Run executes the lazy-import command.
func (c *LazyImportCmd) Run(format config.Format) error {
	collector := envelope.NewCollector("lazy-import")

	cfg := lazyimport.WithDefaults()
	for _, m := range c.Allow {
		cfg.Allow(m)
	}
	for _, m := range c.Deny {
		cfg.Deny(m)
	}

	collector.Event(envelope.EventLazyImport, "")
	shim, err := lazyimport.GenerateShim(cfg)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_SHIM", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}

	if c.Output != "" {
		if err := os.WriteFile(c.Output, []byte(shim), 0o644); err != nil {
			collector.Diagnostic(envelope.LevelError, "E_WRITE", err.Error())
			env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
			_ = output.Emit(os.Stdout, format, env)
			return err
		}
	}

	detail := map[string]interface{}{
		"allowlist": c.Allow,
		"denylist":  c.Deny,
	}
	if c.Output != "" {
		detail["output"] = c.Output
	} else {
		detail["shim"] = shim
	}

	env := collector.Finish(envelope.StatusOK, detail)
	return output.Emit(os.Stdout, format, env)
}
