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

// Package mcpcmd implements `pybun mcp serve`, the JSON-RPC stdio
// server that exposes pybun's operations as MCP tools.
package mcpcmd

import (
	"context"
	"os"

	"github.com/pybun/pybun/internal/cache"
	"github.com/pybun/pybun/internal/config"
	pybunhttp "github.com/pybun/pybun/internal/http"
	"github.com/pybun/pybun/internal/index"
	"github.com/pybun/pybun/internal/rpc"
)

// MCPCmd groups the mcp subcommand family.
type MCPCmd struct {
	Serve ServeCmd `cmd:"" help:"Serve JSON-RPC requests over stdin/stdout."`
}

// ServeCmd runs the JSON-RPC server until stdin closes or ctx is
// cancelled.
type ServeCmd struct {
	IndexURL string `help:"Package index base URL." env:"PYBUN_INDEX_URL"`
	Offline  bool   `help:"Serve entirely from cache, never hitting the network." env:"PYBUN_OFFLINE"`
}

// Run executes the mcp serve command.
func (c *ServeCmd) Run(ctx context.Context, cch *cache.Cache, client pybunhttp.Client, format config.Format) error {
	url := c.IndexURL
	if url == "" {
		url = "https://pypi.org/pypi"
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return err
	}

	idx := index.NewRemoteIndex(url, client, cch, c.Offline)
	server := rpc.New(idx, cch, workingDir)
	return server.Serve(ctx, os.Stdin, os.Stdout)
}
