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
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	pybunoutput "github.com/pybun/pybun/internal/output"
	"github.com/pybun/pybun/internal/watch"
)

// WatchCmd re-runs a script whenever a watched path's files change,
// until interrupted.
type WatchCmd struct {
	Script string   `arg:"" help:"Script to run on every change."`
	Args   []string `arg:"" optional:"" help:"Arguments passed through to the script."`
	Path   []string `help:"Paths to watch, recursively." short:"p"`
}

type collectorHandler struct {
	collector *envelope.Collector
}

func (h collectorHandler) WatchStarted(paths []string) {
	h.collector.Event(envelope.EventWatch, "watching")
}

func (h collectorHandler) WatchTriggered(changed []string) {
	h.collector.Event(envelope.EventWatch, "change detected")
}

func (h collectorHandler) WatchActionFailed(err error) {
	h.collector.Diagnostic(envelope.LevelWarning, "E_WATCH_ACTION", err.Error())
}

// Run executes the watch command.
func (c *WatchCmd) Run(ctx context.Context, format config.Format) error {
	collector := envelope.NewCollector("watch")

	paths := c.Path
	if len(paths) == 0 {
		paths = []string{"."}
	}

	action := func(ctx context.Context, changed []string) error {
		args := append([]string{c.Script}, c.Args...)
		cmd := exec.CommandContext(ctx, "python", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}

	w := watch.New(watch.Options{
		Paths:  paths,
		Action: action,
		Events: collectorHandler{collector: collector},
	})

	err := w.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		collector.Diagnostic(envelope.LevelError, "E_WATCH", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = pybunoutput.Emit(os.Stdout, format, env)
		return err
	}

	env := collector.Finish(envelope.StatusOK, map[string]interface{}{"paths": paths})
	return pybunoutput.Emit(os.Stdout, format, env)
}
