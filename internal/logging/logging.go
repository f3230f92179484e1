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

// Package logging provides the leveled, structured logger threaded
// through every core component. PYBUN_LOG selects the level
// (error|warn|info|debug|trace); trace maps to logrus's trace level,
// and both debug and trace enable caller reporting.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the narrow logging seam every component depends on. It is
// satisfied by *logger, which New returns as well as NewNop's discard
// logger, so tests never need a real sink.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, err error, keysAndValues ...interface{})
	WithValues(keysAndValues ...interface{}) Logger
}

// logger wraps a logrus.Entry carrying a fixed set of contextual fields.
type logger struct {
	entry *logrus.Entry
}

// New builds a Logger reading its level from the PYBUN_LOG
// environment variable. An unrecognized or empty value defaults to
// "info".
func New() Logger {
	return NewWithOutput(os.Stderr)
}

// NewWithOutput builds a Logger writing to the supplied sink, useful
// for tests that want to assert on log output.
func NewWithOutput(w io.Writer) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(levelFromEnv(os.Getenv("PYBUN_LOG")))
	if l.GetLevel() >= logrus.DebugLevel {
		l.SetReportCaller(true)
	}
	return &logger{entry: logrus.NewEntry(l)}
}

// NewNop returns a Logger that discards everything, for tests and
// library consumers that don't want log output.
func NewNop() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &logger{entry: logrus.NewEntry(l)}
}

func (l *logger) Debug(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Debug(msg)
}

func (l *logger) Info(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Info(msg)
}

func (l *logger) Warn(msg string, kv ...interface{}) {
	l.entry.WithFields(fields(kv)).Warn(msg)
}

func (l *logger) Error(msg string, err error, kv ...interface{}) {
	f := fields(kv)
	if err != nil {
		f["error"] = err.Error()
	}
	l.entry.WithFields(f).Error(msg)
}

func (l *logger) WithValues(kv ...interface{}) Logger {
	return &logger{entry: l.entry.WithFields(fields(kv))}
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func levelFromEnv(raw string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "error":
		return logrus.ErrorLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	case "trace":
		return logrus.TraceLevel
	case "info", "":
		return logrus.InfoLevel
	default:
		return logrus.InfoLevel
	}
}
