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

// Command pybun is the project-aware Python package and runtime
// manager's CLI entry point. Its structure mirrors the teacher's
// cmd/up/main.go: a single kong-parsed root command binding shared
// state in AfterApply, then signal-driven cancellation around Run.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/willabides/kongplete"

	pybunhttp "github.com/pybun/pybun/internal/http"

	"github.com/pybun/pybun/cmd/pybun/devtools"
	"github.com/pybun/pybun/cmd/pybun/doctor"
	"github.com/pybun/pybun/cmd/pybun/mcpcmd"
	"github.com/pybun/pybun/cmd/pybun/profilecmd"
	"github.com/pybun/pybun/cmd/pybun/project"
	"github.com/pybun/pybun/cmd/pybun/pythoncmd"
	"github.com/pybun/pybun/cmd/pybun/schemacmd"
	"github.com/pybun/pybun/cmd/pybun/selfupdatecmd"
	"github.com/pybun/pybun/cmd/pybun/telemetrycmd"
	"github.com/pybun/pybun/internal/cache"
	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/logging"
	"github.com/pybun/pybun/internal/version"
)

type versionFlag bool

// BeforeApply prints the client version and exits, the same early-exit
// shape as the teacher's versionFlag.
func (v versionFlag) BeforeApply(ctx *kong.Context) error { //nolint:unparam
	fmt.Fprintln(ctx.Stdout, "pybun version "+version.GetVersion())
	ctx.Exit(0)
	return nil
}

type cli struct {
	Format  config.Format `name:"format" enum:"text,json" default:"text" help:"Output format: text or json."`
	Quiet   bool          `short:"q" name:"quiet" help:"Suppress all output."`
	Version versionFlag   `short:"v" name:"version" help:"Print version and exit."`

	Install project.InstallCmd `cmd:"" help:"Resolve the project's dependencies, download their wheels into the cache, and write the lockfile. No environment is created or populated."`
	Add     project.AddCmd     `cmd:"" help:"Add a requirement to the project and re-resolve."`
	Remove  project.RemoveCmd  `cmd:"" help:"Remove a requirement from the project and re-resolve."`
	Lock    project.LockCmd    `cmd:"" help:"Resolve the project's dependencies and write the lockfile without installing."`
	Run     project.RunCmd     `cmd:"" help:"Run a project script inside the resolved environment."`
	X       project.XCmd       `cmd:"" name:"x" help:"Run an ad-hoc inline-dependency script."`
	Test    project.TestCmd    `cmd:"" help:"Run the project's test command inside the resolved environment."`
	Build   project.BuildCmd   `cmd:"" help:"Run the project's build backend, reusing the build cache when possible."`

	Doctor doctor.DoctorCmd `cmd:"" help:"Check the environment and cache for common problems."`
	GC     doctor.GCCmd     `cmd:"" name:"gc" help:"Evict least-recently-used cache entries until the cache is under a target size."`

	Self selfupdatecmd.SelfCmd `cmd:"" help:"Self-update commands."`

	MCP mcpcmd.MCPCmd `cmd:"" name:"mcp" help:"Run pybun as an MCP/JSON-RPC tool server."`

	Python pythoncmd.PythonCmd `cmd:"" help:"Manage installed Python interpreter versions."`

	Telemetry telemetrycmd.TelemetryCmd `cmd:"" help:"Inspect or change the telemetry opt-in state."`

	ModuleFind devtools.ModuleFindCmd `cmd:"" name:"module-find" help:"Resolve a dotted import name against the accelerated module finder."`
	LazyImport devtools.LazyImportCmd `cmd:"" name:"lazy-import" help:"Generate the lazy-import shim."`
	Watch      devtools.WatchCmd      `cmd:"" name:"watch" help:"Watch the project for changes and re-run a command."`

	Profile profilecmd.ProfileCmd `cmd:"" help:"Show the Python environment pybun would select for the current directory."`

	Schema schemacmd.SchemaCmd `cmd:"" help:"Print or check a pybun document schema."`

	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions."`
}

// AfterApply constructs and binds the shared state every subcommand's
// Run method can request by parameter type, mirroring the teacher's
// AfterApply binding of its object printer.
func (c *cli) AfterApply(kctx *kong.Context) error { //nolint:unparam
	if c.Quiet {
		kctx.Stdout, kctx.Stderr = io.Discard, io.Discard
		if devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0); err == nil {
			os.Stdout, os.Stderr = devNull, devNull
		}
	}
	pterm.SetDefaultOutput(kctx.Stdout)

	fs := afero.NewOsFs()

	cfgSrc, err := config.NewFSSource()
	if err != nil {
		return err
	}

	cch, err := cache.NewDefault()
	if err != nil {
		return err
	}
	if err := cch.EnsureDirs(); err != nil {
		return err
	}

	client := &http.Client{Timeout: 300 * time.Second}
	log := logging.New()

	kctx.Bind(c.Format)
	kctx.BindTo(fs, (*afero.Fs)(nil))
	kctx.BindTo(cfgSrc, (*config.Source)(nil))
	kctx.Bind(cch)
	kctx.BindTo(client, (*pybunhttp.Client)(nil))
	kctx.BindTo(log, (*logging.Logger)(nil))
	return nil
}

func main() {
	c := cli{}

	parser := kong.Must(&c,
		kong.Name("pybun"),
		kong.Description("A fast, project-aware Python package and runtime manager."),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true, NoExpandSubcommands: true}),
		kong.UsageOnError(),
	)

	kongplete.Complete(parser)

	if len(os.Args) == 1 {
		_, _ = parser.Parse([]string{"--help"})
		return
	}

	kongCtx, err := parser.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		defer cancel()
		<-sigCh
	}()

	kongCtx.BindTo(ctx, (*context.Context)(nil))

	if err := kongCtx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
