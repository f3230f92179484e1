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

package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/pybun/pybun/internal/cache"
	"github.com/pybun/pybun/internal/envorch"
	"github.com/pybun/pybun/internal/index"
	"github.com/pybun/pybun/internal/lockfile"
	"github.com/pybun/pybun/internal/logging"
	"github.com/pybun/pybun/internal/resolver"
)

const (
	errNoRequirements = "no requirements provided"
	errNoIndex        = "no package index configured"
	errUnknownTool    = "unknown tool"
	errUnknownMethod  = "method not found: "
	errUnknownResrc   = "unknown resource"
)

// Server is the MCP JSON-RPC server state: a package index to resolve
// against and a cache root to report on and garbage-collect. Both are
// optional so the server still answers initialize/tools-list/
// resources-list before any project context is available.
type Server struct {
	Index index.Index
	Cache *cache.Cache
	Log   logging.Logger

	workingDir string
	sidecar    *envorch.SidecarCache
}

// New constructs a Server. workingDir anchors the environment-
// orchestrator lookups performed by pybun_run and pybun_doctor.
func New(idx index.Index, c *cache.Cache, workingDir string) *Server {
	log := logging.NewNop()
	return &Server{
		Index:      idx,
		Cache:      c,
		Log:        log,
		workingDir: workingDir,
		sidecar:    envorch.LoadSidecarCache(envorch.PybunHome()),
	}
}

// Serve reads newline-delimited JSON-RPC requests from r and writes
// responses to w until r is exhausted or ctx is done. A malformed line
// produces a parse-error response with id null; a notification (no id)
// produces no response at all.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.Log.Debug("invalid JSON-RPC request", "error", err.Error())
			if err := writeResponse(w, errorResponse(nil, CodeParseError, "Parse error")); err != nil {
				return err
			}
			continue
		}

		resp := s.HandleRequest(ctx, req)
		if resp == nil {
			continue
		}
		if err := writeResponse(w, resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func writeResponse(w io.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// HandleRequest dispatches a single parsed request. It returns nil for
// notifications, including the two spellings of the "initialized"
// notification which this server silently acknowledges.
func (s *Server) HandleRequest(ctx context.Context, req Request) *Response {
	switch req.Method {
	case "initialized", "notifications/initialized":
		return nil
	}

	if req.IsNotification() {
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req.ID)
	case "tools/list":
		return s.handleToolsList(req.ID)
	case "tools/call":
		return s.handleToolsCall(ctx, req.ID, req.Params)
	case "resources/list":
		return s.handleResourcesList(req.ID)
	case "resources/read":
		return s.handleResourcesRead(req.ID, req.Params)
	case "shutdown":
		return successResponse(req.ID, struct{}{})
	default:
		return errorResponse(req.ID, CodeMethodNotFound, errUnknownMethod+req.Method)
	}
}

func (s *Server) handleInitialize(id json.RawMessage) *Response {
	return successResponse(id, map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    ServerName,
			"version": ServerVersion,
		},
	})
}

func (s *Server) handleToolsList(id json.RawMessage) *Response {
	return successResponse(id, map[string]interface{}{"tools": toolCatalog})
}

func (s *Server) handleResourcesList(id json.RawMessage) *Response {
	return successResponse(id, map[string]interface{}{"resources": resourceCatalog})
}

func (s *Server) handleResourcesRead(id json.RawMessage, params json.RawMessage) *Response {
	var args struct {
		URI string `json:"uri"`
	}
	_ = json.Unmarshal(params, &args)

	var (
		text string
		err  error
	)
	switch args.URI {
	case "pybun://cache/info":
		text, err = s.readCacheInfo()
	case "pybun://env/info":
		text, err = s.readEnvInfo()
	default:
		err = errors.New(errUnknownResrc)
	}
	if err != nil {
		return errorResponse(id, CodeInvalidParams, err.Error())
	}
	return successResponse(id, map[string]interface{}{
		"contents": []map[string]interface{}{
			{"uri": args.URI, "mimeType": "application/json", "text": text},
		},
	})
}

func (s *Server) handleToolsCall(ctx context.Context, id json.RawMessage, params json.RawMessage) *Response {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	_ = json.Unmarshal(params, &call)
	if len(call.Arguments) == 0 {
		call.Arguments = json.RawMessage(`{}`)
	}

	text, callErr := s.dispatchTool(ctx, call.Name, call.Arguments)
	if callErr != nil {
		return successResponse(id, map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": "Error: " + callErr.Error()},
			},
			"isError": true,
		})
	}
	return successResponse(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
	})
}

func (s *Server) dispatchTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case "pybun_resolve":
		return s.callResolve(ctx, args)
	case "pybun_install":
		return s.callInstall(ctx, args)
	case "pybun_run":
		return s.callRun(args)
	case "pybun_gc":
		return s.callGC(args)
	case "pybun_doctor":
		return s.callDoctor(args)
	default:
		return "", errors.New(errUnknownTool + ": " + name)
	}
}

func parseRequirements(raw []string) []resolver.Requirement {
	reqs := make([]resolver.Requirement, 0, len(raw))
	for _, r := range raw {
		reqs = append(reqs, resolver.ParseRequirement(r))
	}
	return reqs
}

func (s *Server) callResolve(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Requirements []string `json:"requirements"`
	}
	_ = json.Unmarshal(args, &in)
	if len(in.Requirements) == 0 {
		return "", errors.New(errNoRequirements)
	}
	if s.Index == nil {
		return "", errors.New(errNoIndex)
	}

	res, err := resolver.New(s.Index).Resolve(ctx, parseRequirements(in.Requirements))
	if err != nil {
		return "", errors.Wrap(err, "resolution failed")
	}

	type pkgOut struct {
		Name         string   `json:"name"`
		Version      string   `json:"version"`
		Dependencies []string `json:"dependencies"`
	}
	out := make([]pkgOut, 0, res.Len())
	for _, pkg := range res.Packages() {
		deps := make([]string, 0, len(pkg.Dependencies))
		for _, d := range pkg.Dependencies {
			if d.Range != "" {
				deps = append(deps, d.Name+d.Range)
			} else {
				deps = append(deps, d.Name+"=="+d.Version)
			}
		}
		out = append(out, pkgOut{Name: pkg.Name, Version: pkg.Version, Dependencies: deps})
	}

	return marshalJSON(map[string]interface{}{
		"status":       "resolved",
		"requirements": in.Requirements,
		"packages":     out,
		"count":        len(out),
	})
}

func (s *Server) callInstall(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Requirements []string `json:"requirements"`
		Lock         string   `json:"lock"`
	}
	_ = json.Unmarshal(args, &in)
	if len(in.Requirements) == 0 {
		return "", errors.New(errNoRequirements)
	}
	if s.Index == nil {
		return "", errors.New(errNoIndex)
	}
	if in.Lock == "" {
		in.Lock = s.workingDir
	}
	if s.Cache == nil {
		return "", errors.New("no cache configured")
	}

	res, err := resolver.New(s.Index).Resolve(ctx, parseRequirements(in.Requirements))
	if err != nil {
		return "", errors.Wrap(err, "resolution failed")
	}

	lf := lockfile.FromResolution(res, nil, nil)
	if err := lockfile.Save(s.Cache.Fs(), in.Lock, lf); err != nil {
		return "", errors.Wrap(err, "failed to write lockfile")
	}

	return marshalJSON(map[string]interface{}{
		"status":   "installed",
		"packages": lf.PackageNames(),
		"lockfile": in.Lock + "/" + lockfile.FileName,
		"count":    len(lf.Packages),
	})
}

func (s *Server) callRun(args json.RawMessage) (string, error) {
	var in struct {
		Script string   `json:"script"`
		Code   string   `json:"code"`
		Args   []string `json:"args"`
	}
	_ = json.Unmarshal(args, &in)
	if in.Script == "" && in.Code == "" {
		return "", errors.New("either 'script' or 'code' must be provided")
	}

	env, err := envorch.FindPythonEnvCached(s.workingDir, s.sidecar)
	if err != nil {
		return "", err
	}

	var cmd *exec.Cmd
	target := "inline_code"
	if in.Script != "" {
		target = in.Script
		cmd = exec.Command(env.PythonPath, append([]string{in.Script}, in.Args...)...)
	} else {
		cmd = exec.Command(env.PythonPath, append([]string{"-c", in.Code}, in.Args...)...)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	exitCode := 0
	status := "success"
	if runErr != nil {
		status = "error"
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return marshalJSON(map[string]interface{}{
		"status":    status,
		"target":    target,
		"exit_code": exitCode,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"python":    env.PythonPath,
	})
}

func (s *Server) callGC(args json.RawMessage) (string, error) {
	var in struct {
		MaxSize string `json:"max_size"`
		DryRun  bool   `json:"dry_run"`
	}
	_ = json.Unmarshal(args, &in)
	if s.Cache == nil {
		return "", errors.New("no cache configured")
	}

	maxBytes := int64(1) << 62 // effectively unbounded when unset
	if in.MaxSize != "" {
		parsed, err := cache.ParseSize(in.MaxSize)
		if err != nil {
			return "", err
		}
		maxBytes = parsed
	}

	result, err := s.Cache.GC(maxBytes, in.DryRun)
	if err != nil {
		return "", err
	}

	return marshalJSON(map[string]interface{}{
		"status":        "gc_complete",
		"evicted_bytes": result.EvictedBytes,
		"evicted_human": cache.FormatSize(result.EvictedBytes),
		"evicted_count": len(result.EvictedPaths),
		"failed_count":  len(result.FailedPaths),
		"dry_run":       in.DryRun,
	})
}

func (s *Server) callDoctor(args json.RawMessage) (string, error) {
	var in struct {
		Verbose bool `json:"verbose"`
	}
	_ = json.Unmarshal(args, &in)

	var checks []map[string]interface{}
	allOK := true

	if env, err := envorch.FindPythonEnvCached(s.workingDir, s.sidecar); err != nil {
		checks = append(checks, map[string]interface{}{
			"name": "python", "status": "error",
			"message": "Python not found: " + err.Error(),
		})
		allOK = false
	} else {
		checks = append(checks, map[string]interface{}{
			"name": "python", "status": "ok",
			"message": "Python found at " + env.PythonPath,
			"source":  env.Source.String(),
			"version": env.Version,
		})
	}

	if s.Cache != nil {
		check := map[string]interface{}{
			"name": "cache", "status": "ok",
			"message": "Cache directory: " + s.Cache.Root(),
			"path":    s.Cache.Root(),
		}
		if in.Verbose {
			if size, err := s.Cache.TotalSize(); err == nil {
				check["total_size"] = size
				check["total_size_human"] = cache.FormatSize(size)
			}
		}
		checks = append(checks, check)
	} else {
		checks = append(checks, map[string]interface{}{
			"name": "cache", "status": "error", "message": "cache not configured",
		})
		allOK = false
	}

	status := "healthy"
	summary := "All checks passed"
	if !allOK {
		status = "issues_found"
		summary = "Some issues found"
	}

	return marshalJSON(map[string]interface{}{
		"status":  status,
		"checks":  checks,
		"verbose": in.Verbose,
		"message": summary,
	})
}

func (s *Server) readCacheInfo() (string, error) {
	if s.Cache == nil {
		return "", errors.New("no cache configured")
	}
	size, err := s.Cache.TotalSize()
	if err != nil {
		return "", err
	}
	return marshalJSON(map[string]interface{}{
		"root":             s.Cache.Root(),
		"total_size":       size,
		"total_size_human": cache.FormatSize(size),
	})
}

func (s *Server) readEnvInfo() (string, error) {
	env, err := envorch.FindPythonEnvCached(s.workingDir, s.sidecar)
	if err != nil {
		return marshalJSON(map[string]interface{}{
			"error":   err.Error(),
			"message": "No Python environment found",
		})
	}
	return marshalJSON(map[string]interface{}{
		"python_path": env.PythonPath,
		"source":      env.Source.String(),
		"version":     env.Version,
	})
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
