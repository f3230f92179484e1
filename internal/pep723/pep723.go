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

// Package pep723 parses PEP 723 inline script metadata: a TOML block
// embedded in a comment-fenced region of a Python script.
//
//	# /// script
//	# requires-python = ">=3.11"
//	# dependencies = [
//	#   "requests>=2.28.0",
//	# ]
//	# ///
package pep723

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	startMarker = "# /// script"
	endMarker   = "# ///"
)

// ScriptMetadata is the decoded content of a script's metadata block.
type ScriptMetadata struct {
	RequiresPython string   `toml:"requires-python"`
	Dependencies   []string `toml:"dependencies"`
}

// ParseFile reads path and extracts its script metadata, if any.
func ParseFile(path string) (*ScriptMetadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read script file")
	}
	return ParseString(string(content))
}

// HasMetadata reports whether content contains a PEP 723 metadata
// marker, without fully parsing it.
func HasMetadata(content string) bool {
	return strings.Contains(content, startMarker)
}

// ParseString extracts and decodes the script metadata block from
// content. Returns (nil, nil) if no block is present.
func ParseString(content string) (*ScriptMetadata, error) {
	block, found := extractMetadataBlock(content)
	if !found {
		return nil, nil
	}

	var meta ScriptMetadata
	if strings.TrimSpace(block) == "" {
		return &meta, nil
	}
	if _, err := toml.Decode(block, &meta); err != nil {
		return nil, errors.Wrap(err, "failed to parse script metadata")
	}
	return &meta, nil
}

// extractMetadataBlock scans content line by line for a
// "# /// script" ... "# ///" fenced region, stripping the leading "# "
// (or bare "#") comment prefix from each interior line. A line that
// doesn't start with "#" ends the block early, mirroring how a
// metadata comment block must be contiguous.
func extractMetadataBlock(content string) (string, bool) {
	var lines []string
	inBlock := false
	found := false

	for _, raw := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(raw)

		if !inBlock && trimmed == startMarker {
			inBlock = true
			found = true
			continue
		}
		if !inBlock {
			continue
		}
		if trimmed == endMarker {
			break
		}

		switch {
		case strings.HasPrefix(trimmed, "# "):
			lines = append(lines, strings.TrimPrefix(trimmed, "# "))
		case strings.HasPrefix(trimmed, "#"):
			lines = append(lines, strings.TrimPrefix(trimmed, "#"))
		default:
			// A non-comment line ends the block, keeping whatever
			// was collected so far.
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
	}

	if !found {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}
