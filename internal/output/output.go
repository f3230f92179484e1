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

// Package output renders a command's envelope.Envelope for a human or
// for a machine, the way the teacher's internal/upterm renders a
// formatted object for --format=json|yaml. pybun only recognizes
// text|json (see spec §6), so this package has no YAML branch.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/pybun/pybun/internal/config"
	"github.com/pybun/pybun/internal/envelope"
)

// Emit writes env to w in the requested format. In text mode, the
// event stream is discarded and only diagnostics plus a final
// success/failure line are rendered, one diagnostic per line ordered
// by emission. In JSON mode the full envelope, including the event
// stream, is always written regardless of status.
func Emit(w io.Writer, format config.Format, env envelope.Envelope) error {
	if format == config.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}

	for _, d := range env.Diagnostics {
		fmt.Fprintf(w, "%s %s\n", textPrefix(d.Level), d.Message)
	}

	if env.Status == envelope.StatusOK {
		pterm.Success.WithWriter(w).Printfln("%s completed (%dms)", env.Command, env.DurationMs)
	} else {
		pterm.Error.WithWriter(w).Printfln("%s failed (%dms)", env.Command, env.DurationMs)
	}
	return nil
}

func textPrefix(level envelope.DiagnosticLevel) string {
	switch level {
	case envelope.LevelError:
		return "error:"
	case envelope.LevelWarning:
		return "warning:"
	case envelope.LevelHint:
		return "hint:"
	default:
		return "info:"
	}
}

// ExitCode maps an envelope's terminal status to the process exit code
// contract in spec §6: 0 on success, 1 on operation failure. Usage
// errors (exit 2) are raised by kong itself during parsing and never
// reach this function.
func ExitCode(env envelope.Envelope) int {
	if env.Status == envelope.StatusOK {
		return 0
	}
	return 1
}
