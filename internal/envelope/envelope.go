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

// Package envelope implements the structured-event observability
// contract every pybun command emits: a Collector accumulates events
// and diagnostics from an entry point, and is consumed exactly once at
// command exit to produce an Envelope.
package envelope

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the Envelope's wire schema version.
const SchemaVersion = 1

// TraceEnvVar, when set to any non-empty value, turns on trace id
// generation for the command.
const TraceEnvVar = "PYBUN_TRACE"

// EventType is a closed taxonomy of event tags. Components must use
// exactly these tags so consumers of the JSON envelope are stable.
type EventType string

// The full closed event taxonomy.
const (
	EventCommandStart EventType = "command_start"
	EventCommandEnd   EventType = "command_end"

	EventResolveStart    EventType = "resolve_start"
	EventResolveProgress EventType = "resolve_progress"
	EventResolveComplete EventType = "resolve_complete"

	EventInstallStart     EventType = "install_start"
	EventDownloadStart    EventType = "download_start"
	EventDownloadProgress EventType = "download_progress"
	EventDownloadComplete EventType = "download_complete"
	EventExtractStart     EventType = "extract_start"
	EventExtractComplete  EventType = "extract_complete"
	EventInstallComplete  EventType = "install_complete"

	EventEnvCreate   EventType = "env_create"
	EventEnvActivate EventType = "env_activate"

	EventScriptStart EventType = "script_start"
	EventScriptEnd   EventType = "script_end"

	EventCacheHit   EventType = "cache_hit"
	EventCacheMiss  EventType = "cache_miss"
	EventCacheWrite EventType = "cache_write"

	EventPythonListStart     EventType = "python_list_start"
	EventPythonListComplete  EventType = "python_list_complete"
	EventPythonInstallStart  EventType = "python_install_start"
	EventPythonInstallComplete EventType = "python_install_complete"
	EventPythonRemoveStart     EventType = "python_remove_start"
	EventPythonRemoveComplete  EventType = "python_remove_complete"

	EventModuleFind EventType = "module_find"
	EventLazyImport EventType = "lazy_import"
	EventWatch      EventType = "watch"

	EventProgress EventType = "progress"
	EventCustom   EventType = "custom"
)

// DiagnosticLevel is the severity of a Diagnostic.
type DiagnosticLevel string

// Recognized diagnostic levels.
const (
	LevelError   DiagnosticLevel = "error"
	LevelWarning DiagnosticLevel = "warning"
	LevelInfo    DiagnosticLevel = "info"
	LevelHint    DiagnosticLevel = "hint"
)

// Status is the terminal outcome carried by an Envelope.
type Status string

// Recognized statuses.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Event is a single timestamped occurrence recorded during a command.
type Event struct {
	Type      EventType   `json:"type"`
	ElapsedMs int64       `json:"elapsed_ms"`
	Message   string      `json:"message,omitempty"`
	Progress  *int        `json:"progress,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Diagnostic is a single structured problem or informational note.
type Diagnostic struct {
	Level      DiagnosticLevel        `json:"level"`
	Code       string                 `json:"code,omitempty"`
	Message    string                 `json:"message"`
	File       string                 `json:"file,omitempty"`
	Line       int                    `json:"line,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Envelope is the universal structured response emitted by every
// command.
type Envelope struct {
	SchemaVersion int          `json:"schema_version"`
	Command       string       `json:"command"`
	Status        Status       `json:"status"`
	DurationMs    int64        `json:"duration_ms"`
	Detail        interface{}  `json:"detail,omitempty"`
	Events        []Event      `json:"events"`
	Diagnostics   []Diagnostic `json:"diagnostics"`
	TraceID       string       `json:"trace_id,omitempty"`
}

// Collector accumulates events and diagnostics for the lifetime of a
// single command. It is constructed at command entry and consumed
// exactly once, at command exit, by Finish. It owns no state beyond
// the lifetime of one command; there is no global singleton.
type Collector struct {
	mu      sync.Mutex
	command string
	start   time.Time
	traceID string
	events  []Event
	diags   []Diagnostic
}

// NewCollector starts a new Collector for the named command. A trace
// id is generated iff TraceEnvVar is set to a non-empty value.
func NewCollector(command string) *Collector {
	c := &Collector{
		command: command,
		start:   time.Now(),
	}
	if os.Getenv(TraceEnvVar) != "" {
		c.traceID = newTraceID()
	}
	return c
}

// TraceID returns the collector's trace id, or the empty string if
// tracing is not enabled.
func (c *Collector) TraceID() string {
	return c.traceID
}

// Event records an event with the given type and optional message.
func (c *Collector) Event(t EventType, message string) {
	c.EventWithPayload(t, message, nil, nil)
}

// Progress records a progress event (0..100) with an optional message.
func (c *Collector) Progress(t EventType, pct int, message string) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	c.EventWithPayload(t, message, &pct, nil)
}

// EventWithPayload records an event carrying an arbitrary structured
// payload in addition to message and progress.
func (c *Collector) EventWithPayload(t EventType, message string, progress *int, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, Event{
		Type:      t,
		ElapsedMs: time.Since(c.start).Milliseconds(),
		Message:   message,
		Progress:  progress,
		Payload:   payload,
	})
}

// Diagnostic records a diagnostic at the given level.
func (c *Collector) Diagnostic(level DiagnosticLevel, code, message string) {
	c.DiagnosticFull(level, code, message, "", 0, "", nil)
}

// DiagnosticFull records a diagnostic with every optional field.
func (c *Collector) DiagnosticFull(level DiagnosticLevel, code, message, file string, line int, suggestion string, context map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, Diagnostic{
		Level:      level,
		Code:       code,
		Message:    message,
		File:       file,
		Line:       line,
		Suggestion: suggestion,
		Context:    context,
	})
}

// HasErrorDiagnostic reports whether any error-level diagnostic has
// been recorded so far.
func (c *Collector) HasErrorDiagnostic() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.diags {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

// Finish consumes the collector and produces the final Envelope. It
// must be called exactly once, at command exit.
func (c *Collector) Finish(status Status, detail interface{}) Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Envelope{
		SchemaVersion: SchemaVersion,
		Command:       c.command,
		Status:        status,
		DurationMs:    time.Since(c.start).Milliseconds(),
		Detail:        detail,
		Events:        c.events,
		Diagnostics:   c.diags,
		TraceID:       c.traceID,
	}
}

func newTraceID() string {
	return uuid.New().String()
}
