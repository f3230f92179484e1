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

// Package schema generates and validates the JSON Schema documents for
// pybun's on-disk wire formats, backing `pybun schema print` and
// `pybun schema check`.
package schema

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Kind names a schema-covered document shape.
type Kind string

// Recognized schema kinds.
const (
	KindLockfile        Kind = "lockfile"
	KindReleaseManifest Kind = "release-manifest"
)

// Document is a minimal hand-rolled JSON Schema: enough structure to
// describe pybun's own wire formats (object properties, required
// fields, array items, string/integer/boolean/object types) without
// pulling in a general-purpose schema generator.
type Document struct {
	Schema      string               `json:"$schema"`
	Title       string               `json:"title"`
	Type        string               `json:"type"`
	Properties  map[string]*Document `json:"properties,omitempty"`
	Items       *Document            `json:"items,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Description string               `json:"description,omitempty"`
}

const schemaDialect = "https://json-schema.org/draft/2020-12/schema"

func prop(t, description string) *Document {
	return &Document{Type: t, Description: description}
}

// Print renders the JSON Schema document for kind.
func Print(kind Kind) (*Document, error) {
	switch kind {
	case KindLockfile:
		return lockfileSchema(), nil
	case KindReleaseManifest:
		return releaseManifestSchema(), nil
	default:
		return nil, errors.Errorf("unknown schema kind: %s", kind)
	}
}

func lockfileSchema() *Document {
	source := &Document{
		Type: "object",
		Properties: map[string]*Document{
			"kind":       prop("string", "registry, path, or url"),
			"index_name": prop("string", "package index this was resolved against"),
			"url":        prop("string", "source URL, for url-kind sources"),
			"path":       prop("string", "local path, for path-kind sources"),
		},
		Required: []string{"kind"},
	}
	pkg := &Document{
		Type: "object",
		Properties: map[string]*Document{
			"name":           prop("string", "package name"),
			"version":        prop("string", "pinned version"),
			"source":         source,
			"wheel_filename": prop("string", "wheel artifact filename"),
			"hash":           prop("string", "content hash of the wheel"),
			"dependencies":   {Type: "array", Items: prop("string", "name==version")},
		},
		Required: []string{"name", "version", "source", "dependencies"},
	}
	return &Document{
		Schema: schemaDialect,
		Title:  "PyBun Lockfile",
		Type:   "object",
		Properties: map[string]*Document{
			"schema_version": prop("integer", "lockfile schema version"),
			"platforms":      {Type: "array", Items: prop("string", "target platform tag")},
			"interpreters":   {Type: "array", Items: prop("string", "interpreter minor version this lock was produced for")},
			"packages":       {Type: "array", Items: pkg},
		},
		Required: []string{"schema_version", "platforms", "interpreters", "packages"},
	}
}

func releaseManifestSchema() *Document {
	signature := &Document{
		Type: "object",
		Properties: map[string]*Document{
			"type":       prop("string", "ed25519 or minisign"),
			"value":      prop("string", "signature value"),
			"public_key": prop("string", "verifying public key"),
			"url":        prop("string", "detached signature URL"),
		},
		Required: []string{"type", "value"},
	}
	asset := &Document{
		Type: "object",
		Properties: map[string]*Document{
			"name":      prop("string", "asset filename"),
			"target":    prop("string", "release target triple"),
			"url":       prop("string", "asset download URL"),
			"sha256":    prop("string", "asset checksum"),
			"signature": signature,
		},
		Required: []string{"name", "target", "url", "sha256"},
	}
	attachment := &Document{
		Type: "object",
		Properties: map[string]*Document{
			"name":   prop("string", "attachment filename"),
			"url":    prop("string", "attachment URL"),
			"sha256": prop("string", "attachment checksum"),
		},
		Required: []string{"name", "url", "sha256"},
	}
	return &Document{
		Schema: schemaDialect,
		Title:  "PyBun Release Manifest",
		Type:   "object",
		Properties: map[string]*Document{
			"version":       prop("string", "semantic release version"),
			"channel":       prop("string", "release channel"),
			"published_at":  prop("string", "RFC 3339 publish timestamp"),
			"assets":        {Type: "array", Items: asset},
			"release_notes": attachment,
			"release_url":   prop("string", "human-facing release page"),
			"sbom":          attachment,
			"provenance":    attachment,
		},
		Required: []string{"version", "channel", "published_at", "assets"},
	}
}

// Check validates raw against kind's document shape: every field the
// schema marks required must be present with the declared JSON type,
// recursively through nested objects and arrays. It does not enforce
// unknown-property rejection, matching the permissive validation style
// `internal/pep723` and `internal/config` already use for forward
// compatibility with newer writers.
func Check(kind Kind, raw []byte) error {
	doc, err := Print(kind)
	if err != nil {
		return err
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return errors.Wrap(err, "failed to parse document as JSON")
	}
	return validate(doc, value, "$")
}

func validate(doc *Document, value interface{}, path string) error {
	switch doc.Type {
	case "object":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return errors.Errorf("%s: expected object", path)
		}
		for _, name := range doc.Required {
			if _, present := obj[name]; !present {
				return errors.Errorf("%s: missing required field %q", path, name)
			}
		}
		for name, fieldDoc := range doc.Properties {
			fieldValue, present := obj[name]
			if !present {
				continue
			}
			if err := validate(fieldDoc, fieldValue, path+"."+name); err != nil {
				return err
			}
		}
		return nil
	case "array":
		arr, ok := value.([]interface{})
		if !ok {
			return errors.Errorf("%s: expected array", path)
		}
		if doc.Items == nil {
			return nil
		}
		for i, item := range arr {
			if err := validate(doc.Items, item, errorIndexPath(path, i)); err != nil {
				return err
			}
		}
		return nil
	case "string":
		if _, ok := value.(string); !ok {
			return errors.Errorf("%s: expected string", path)
		}
		return nil
	case "integer":
		num, ok := value.(float64)
		if !ok || num != float64(int64(num)) {
			return errors.Errorf("%s: expected integer", path)
		}
		return nil
	case "boolean":
		if _, ok := value.(bool); !ok {
			return errors.Errorf("%s: expected boolean", path)
		}
		return nil
	default:
		return nil
	}
}

func errorIndexPath(path string, index int) string {
	return path + "[" + strconv.Itoa(index) + "]"
}
