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

import "encoding/json"

// Tool is an MCP tool descriptor: a name, a human description, and a
// JSON-Schema input descriptor.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Resource is an MCP resource descriptor.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

func schema(raw string) json.RawMessage { return json.RawMessage(raw) }

// toolCatalog is the fixed set of tools this server exposes. Each is a
// thin adapter over a core operation: resolve, install, run, gc,
// doctor.
var toolCatalog = []Tool{
	{
		Name:        "pybun_resolve",
		Description: "Resolve Python package dependencies",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"requirements": {
					"type": "array",
					"items": {"type": "string"},
					"description": "List of requirements (e.g., [\"requests>=2.28\", \"flask\"])"
				}
			},
			"required": ["requirements"]
		}`),
	},
	{
		Name:        "pybun_install",
		Description: "Resolve Python packages and write a lockfile (nothing is downloaded or installed into an environment)",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"requirements": {
					"type": "array",
					"items": {"type": "string"},
					"description": "List of requirements to install"
				},
				"lock": {
					"type": "string",
					"description": "Destination directory for the lockfile (defaults to the current directory)"
				}
			},
			"required": ["requirements"]
		}`),
	},
	{
		Name:        "pybun_run",
		Description: "Run a Python script or inline code",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"script": {"type": "string", "description": "Path to the Python script"},
				"code": {"type": "string", "description": "Inline Python code to execute"},
				"args": {"type": "array", "items": {"type": "string"}, "description": "Arguments to pass"}
			}
		}`),
	},
	{
		Name:        "pybun_gc",
		Description: "Run garbage collection on the pybun cache",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"max_size": {"type": "string", "description": "Maximum cache size (e.g., '1G', '500M')"},
				"dry_run": {"type": "boolean", "description": "Preview without deleting"}
			}
		}`),
	},
	{
		Name:        "pybun_doctor",
		Description: "Run environment diagnostics",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"verbose": {"type": "boolean", "description": "Include verbose diagnostics"}
			}
		}`),
	},
}

// resourceCatalog is the fixed set of resources this server exposes.
var resourceCatalog = []Resource{
	{
		URI:         "pybun://cache/info",
		Name:        "Cache Information",
		Description: "Information about the pybun cache",
		MimeType:    "application/json",
	},
	{
		URI:         "pybun://env/info",
		Name:        "Environment Information",
		Description: "Current Python environment info",
		MimeType:    "application/json",
	},
}
