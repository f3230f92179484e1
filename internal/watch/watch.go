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

// Package watch runs an action whenever files under a set of paths
// change, backing `pybun watch`, which re-runs a script. It follows the
// same radovskyb/watcher event-loop shape as the teacher's cache
// watcher, generalized from LSP diagnostics to an arbitrary rerun
// action.
package watch

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/radovskyb/watcher"
)

// Action is invoked once per detected change batch. ctx is the context
// passed to Watcher.Run; Watcher.Close does not cancel it.
type Action func(ctx context.Context, changed []string) error

// EventHandler receives lifecycle notifications the way the rest of
// pybun reports progress into its envelope, without Watcher importing
// internal/envelope directly.
type EventHandler interface {
	WatchStarted(paths []string)
	WatchTriggered(changed []string)
	WatchActionFailed(err error)
}

// NoopEventHandler discards every notification.
type NoopEventHandler struct{}

// WatchStarted implements EventHandler.
func (NoopEventHandler) WatchStarted([]string) {}

// WatchTriggered implements EventHandler.
func (NoopEventHandler) WatchTriggered([]string) {}

// WatchActionFailed implements EventHandler.
func (NoopEventHandler) WatchActionFailed(error) {}

// Options configures a Watcher.
type Options struct {
	Paths        []string
	PollInterval time.Duration
	Action       Action
	Events       EventHandler
}

// Watcher recursively watches a set of paths and runs an action on
// every write/create/remove/rename batch, coalescing rapid-fire events
// the way watcher.SetMaxEvents(1) does in the teacher's cache watcher.
type Watcher struct {
	w       *watcher.Watcher
	options Options
}

// New constructs a Watcher from opts. PollInterval defaults to 200ms
// and Events defaults to NoopEventHandler when left unset.
func New(opts Options) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	if opts.Events == nil {
		opts.Events = NoopEventHandler{}
	}
	w := watcher.New()
	w.SetMaxEvents(1)
	return &Watcher{w: w, options: opts}
}

// Run watches the configured paths and runs Action on every change
// batch until ctx is cancelled or an unrecoverable watcher error
// occurs.
func (wch *Watcher) Run(ctx context.Context) error {
	for _, path := range wch.options.Paths {
		if err := wch.w.AddRecursive(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
	}
	wch.options.Events.WatchStarted(wch.watchedPaths())

	done := make(chan error, 1)
	go func() {
		done <- wch.w.Start(wch.options.PollInterval)
	}()

	for {
		select {
		case <-ctx.Done():
			wch.w.Close()
			<-done
			return ctx.Err()

		case event, ok := <-wch.w.Event:
			if !ok {
				continue
			}
			changed := []string{event.Path}
			wch.options.Events.WatchTriggered(changed)
			if wch.options.Action != nil {
				if err := wch.options.Action(ctx, changed); err != nil {
					wch.options.Events.WatchActionFailed(err)
				}
			}

		case err, ok := <-wch.w.Error:
			if !ok {
				continue
			}
			wch.w.Close()
			<-done
			return errors.Wrap(err, "watcher reported an error")

		case <-wch.w.Closed:
			return <-done
		}
	}
}

// Close stops the underlying watcher.
func (wch *Watcher) Close() {
	wch.w.Close()
}

func (wch *Watcher) watchedPaths() []string {
	files := wch.w.WatchedFiles()
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	return paths
}
