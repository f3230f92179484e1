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

// Package devtools implements pybun's smaller developer-facing
// subcommands: module-find, lazy-import, and watch.
package devtools

import (
	"os"

	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	"github.com/pybun/pybun/internal/modulefind"
	"github.com/pybun/pybun/internal/output"
)

// ModuleFindCmd locates a Python module within a set of search paths,
// the way pybun's import resolution does internally.
type ModuleFindCmd struct {
	Module string   `arg:"" help:"Dotted module name to locate, e.g. pkg.sub.mod."`
	Path   []string `help:"Search paths, in priority order." short:"p"`
}

// Run executes the module-find command.
func (c *ModuleFindCmd) Run(format config.Format) error {
	collector := envelope.NewCollector("module-find")

	cfg := modulefind.DefaultConfig()
	finder := modulefind.New(cfg)
	for _, p := range c.Path {
		finder.AddSearchPath(p)
	}
	if len(c.Path) == 0 {
		finder.AddSearchPath(".")
	}

	collector.Event(envelope.EventModuleFind, c.Module)
	result := finder.Find(c.Module)

	status := envelope.StatusOK
	detail := map[string]interface{}{
		"module":         c.Module,
		"found":          result.Module != nil,
		"searched_paths": result.SearchedPaths,
	}
	if result.Module != nil {
		detail["path"] = result.Module.Path
		detail["type"] = string(result.Module.Type)
	} else {
		status = envelope.StatusError
		collector.Diagnostic(envelope.LevelError, "E_NOT_FOUND", "module "+c.Module+" not found on search path")
	}

	env := collector.Finish(status, detail)
	if err := output.Emit(os.Stdout, format, env); err != nil {
		return err
	}
	if status == envelope.StatusError {
		return errNotFound(c.Module)
	}
	return nil
}
