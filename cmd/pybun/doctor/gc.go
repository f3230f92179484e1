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

package doctor

import (
	"context"
	"os"

	"github.com/pybun/pybun/internal/cache"
	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
	"github.com/pybun/pybun/internal/output"
)

// GCCmd evicts least-recently-used cache entries until the cache is
// under a target size.
type GCCmd struct {
	MaxSize string `default:"5G" help:"Target maximum cache size, e.g. 500M or 5G."`
	DryRun  bool   `help:"Enumerate the eviction set without removing anything."`
}

// Run executes the gc command.
func (c *GCCmd) Run(ctx context.Context, cch *cache.Cache, format config.Format) error {
	collector := envelope.NewCollector("gc")

	maxBytes, err := cache.ParseSize(c.MaxSize)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_BAD_SIZE", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}

	collector.Event(envelope.EventCustom, "scanning cache for eviction candidates")
	result, err := cch.GC(maxBytes, c.DryRun)
	if err != nil {
		collector.Diagnostic(envelope.LevelError, "E_GC_FAILED", err.Error())
		env := collector.Finish(envelope.StatusError, map[string]interface{}{"error": err.Error()})
		_ = output.Emit(os.Stdout, format, env)
		return err
	}

	for _, failed := range result.FailedPaths {
		collector.Diagnostic(envelope.LevelWarning, "E_GC_EVICT", "failed to evict "+failed)
	}

	env := collector.Finish(envelope.StatusOK, map[string]interface{}{
		"evicted_bytes": result.EvictedBytes,
		"evicted_human": cache.FormatSize(result.EvictedBytes),
		"evicted_count": len(result.EvictedPaths),
		"failed_count":  len(result.FailedPaths),
		"dry_run":       c.DryRun,
	})
	return output.Emit(os.Stdout, format, env)
}
