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

package support

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/pybun/pybun/internal/version"
)

// maxFileBytes is the per-file truncation threshold applied to copied
// log and config files before they are written into the bundle.
const maxFileBytes = 1024 * 1024

// Context carries the information a bundle records about the
// invocation that requested it.
type Context struct {
	Command      string
	TraceID      string
	VerboseLogs  bool
	Checks       []map[string]interface{}
	LogDirs      []string
	ConfigFiles  []string
	RedactExtras []string
}

// File records one file written into a bundle.
type File struct {
	Path       string `json:"path"`
	Bytes      int64  `json:"bytes"`
	Truncated  bool   `json:"truncated"`
	Redactions int    `json:"redactions"`
	Encoding   string `json:"encoding,omitempty"`
}

// Collection is the result of a completed bundle build.
type Collection struct {
	Path         string
	Files        []File
	Redactions   int
	LogsIncluded bool
}

// ToJSON renders the collection summary the way `pybun support-bundle`
// prints its result.
func (c *Collection) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"path":          c.Path,
		"files":         c.Files,
		"redactions":    c.Redactions,
		"logs_included": c.LogsIncluded,
	}
}

// Build assembles a support bundle at path: a manifest, the supplied
// doctor checks, a redacted environment-variable snapshot, a version
// record, and — when ctx.VerboseLogs is set — sanitized copies of
// every file under ctx.LogDirs, plus any existing ctx.ConfigFiles.
func Build(fs afero.Fs, path string, ctx Context) (*Collection, error) {
	if info, err := fs.Stat(path); err == nil && !info.IsDir() {
		return nil, errors.Errorf("bundle path is not a directory: %s", path)
	}
	if err := fs.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create bundle directory")
	}

	rules := NewRedactionRules(ctx.RedactExtras...)
	var files []File
	totalRedactions := 0

	addJSON := func(name string, value interface{}) error {
		f, n, err := writeJSONFile(fs, filepath.Join(path, name), value, rules)
		if err != nil {
			return err
		}
		files = append(files, f)
		totalRedactions += n
		return nil
	}

	if err := addJSON("manifest.json", buildManifest(ctx)); err != nil {
		return nil, err
	}
	if err := addJSON("doctor.json", map[string]interface{}{
		"checks": ctx.Checks, "trace_id": ctx.TraceID,
	}); err != nil {
		return nil, err
	}
	if err := addJSON("env.json", collectEnvJSON(rules)); err != nil {
		return nil, err
	}
	if err := addJSON("versions.json", buildVersionsJSON(ctx.TraceID)); err != nil {
		return nil, err
	}

	logsIncluded := false
	if ctx.VerboseLogs {
		var logFiles []string
		for _, dir := range ctx.LogDirs {
			logFiles = append(logFiles, collectFiles(fs, dir)...)
		}
		sort.Strings(logFiles)
		for _, src := range logFiles {
			rel := filepath.Join("logs", filepath.Base(src))
			f, n, err := writeSanitizedFile(fs, src, filepath.Join(path, rel), rules)
			if err != nil {
				return nil, err
			}
			f.Path = rel
			files = append(files, f)
			totalRedactions += n
		}
		logsIncluded = true
	}

	for _, src := range ctx.ConfigFiles {
		if exists, _ := afero.Exists(fs, src); !exists {
			continue
		}
		rel := filepath.Join("config", filepath.Base(src))
		f, n, err := writeSanitizedFile(fs, src, filepath.Join(path, rel), rules)
		if err != nil {
			return nil, err
		}
		f.Path = rel
		files = append(files, f)
		totalRedactions += n
	}

	return &Collection{Path: path, Files: files, Redactions: totalRedactions, LogsIncluded: logsIncluded}, nil
}

func buildManifest(ctx Context) map[string]interface{} {
	return map[string]interface{}{
		"schema":     1,
		"command":    ctx.Command,
		"created_at": time.Now().Unix(),
		"trace_id":   ctx.TraceID,
	}
}

func buildVersionsJSON(traceID string) map[string]interface{} {
	return map[string]interface{}{
		"pybun_version": version.GetVersion(),
		"os":            runtime.GOOS,
		"arch":          runtime.GOARCH,
		"trace_id":      traceID,
	}
}

func collectEnvJSON(rules *RedactionRules) map[string]interface{} {
	env := map[string]string{}
	for _, kv := range environ() {
		key, value := splitEnvPair(kv)
		redacted, _ := rules.RedactValue(key, value)
		env[key] = redacted
	}
	return map[string]interface{}{"environment": env}
}

func environ() []string {
	return os.Environ()
}

func splitEnvPair(kv string) (key, value string) {
	if idx := strings.Index(kv, "="); idx >= 0 {
		return kv[:idx], kv[idx+1:]
	}
	return kv, ""
}

func collectFiles(fs afero.Fs, root string) []string {
	exists, err := afero.DirExists(fs, root)
	if err != nil || !exists {
		return nil
	}
	var files []string
	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries, err := afero.ReadDir(fs, dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			p := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				stack = append(stack, p)
			} else {
				files = append(files, p)
			}
		}
	}
	return files
}

func writeJSONFile(fs afero.Fs, path string, value interface{}, rules *RedactionRules) (File, int, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return File{}, 0, errors.Wrap(err, "failed to serialize bundle file")
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return File{}, 0, err
	}
	redacted := rules.RedactJSON(decoded)
	content, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return File{}, 0, err
	}
	return writeTextFile(fs, path, string(content), rules)
}

func writeTextFile(fs afero.Fs, path, content string, rules *RedactionRules) (File, int, error) {
	sanitized, redactions := rules.RedactText(content)
	if err := afero.WriteFile(fs, path, []byte(sanitized), 0o644); err != nil {
		return File{}, 0, errors.Wrapf(err, "failed to write %s", path)
	}
	return File{Path: filepath.Base(path), Bytes: int64(len(sanitized)), Redactions: redactions}, redactions, nil
}

// writeSanitizedFile copies src (JSON redacted structurally, text
// redacted line by line, binary base64-encoded) into dest, truncating
// at maxFileBytes.
func writeSanitizedFile(fs afero.Fs, src, dest string, rules *RedactionRules) (File, int, error) {
	raw, err := afero.ReadFile(fs, src)
	if err != nil {
		return File{}, 0, errors.Wrapf(err, "failed to read %s", src)
	}

	truncated := len(raw) > maxFileBytes
	if truncated {
		raw = raw[:maxFileBytes]
	}
	if err := fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return File{}, 0, err
	}

	if utf8.Valid(raw) {
		if redactedJSON, ok := rules.RedactJSONBytes(raw); ok {
			if err := afero.WriteFile(fs, dest, redactedJSON, 0o644); err != nil {
				return File{}, 0, err
			}
			_, redactions := rules.RedactText(string(redactedJSON))
			return File{Path: filepath.Base(dest), Bytes: int64(len(redactedJSON)), Truncated: truncated, Redactions: redactions}, redactions, nil
		}

		sanitized, redactions := rules.RedactText(string(raw))
		if err := afero.WriteFile(fs, dest, []byte(sanitized), 0o644); err != nil {
			return File{}, 0, err
		}
		return File{Path: filepath.Base(dest), Bytes: int64(len(sanitized)), Truncated: truncated, Redactions: redactions}, redactions, nil
	}

	encoded := base64.StdEncoding.EncodeToString(raw)
	if err := afero.WriteFile(fs, dest, []byte(encoded), 0o644); err != nil {
		return File{}, 0, err
	}
	return File{Path: filepath.Base(dest), Bytes: int64(len(encoded)), Truncated: truncated, Encoding: "base64"}, 0, nil
}
