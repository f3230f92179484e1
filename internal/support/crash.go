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
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/term"
)

// CrashReportEnvVar controls whether a crash offers to build a support
// bundle: "0"/"false"/"no"/"off" disables the prompt outright, anything
// else (including unset) leaves it enabled.
const CrashReportEnvVar = "PYBUN_CRASH_REPORT"

// SupportUploadURLEnvVar, when set, is where a crash bundle is
// automatically uploaded after it is built.
const SupportUploadURLEnvVar = "PYBUN_SUPPORT_UPLOAD_URL"

// RunWithCrashBundle runs fn, recovering a panic to offer building and
// uploading a support bundle before re-raising it. Call this once, from
// cmd/pybun's main, wrapping the command dispatch.
func RunWithCrashBundle(fs afero.Fs, supportDir string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			offerCrashBundle(fs, supportDir, r)
			panic(r)
		}
	}()
	return fn()
}

func offerCrashBundle(fs afero.Fs, supportDir string, recovered interface{}) {
	if !shouldOfferCrashBundle() {
		return
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stderr.Fd())) {
		return
	}
	if !promptYesNo("PyBun crashed. Create a support bundle? [y/N] ") {
		return
	}

	bundleDir := filepath.Join(supportDir, fmt.Sprintf("crash-%d", time.Now().Unix()))
	ctx := Context{
		Command:     "pybun crash",
		VerboseLogs: true,
		Checks: []map[string]interface{}{{
			"name":    "crash",
			"status":  "error",
			"message": fmt.Sprintf("%v", recovered),
		}},
	}

	collection, err := Build(fs, bundleDir, ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "support bundle creation failed: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "support bundle written to %s\n", collection.Path)

	if url := os.Getenv(SupportUploadURLEnvVar); url != "" {
		client := &http.Client{Timeout: 30 * time.Second}
		outcome := Upload(context.Background(), fs, client, collection, url)
		if outcome.Status == "uploaded" {
			fmt.Fprintf(os.Stderr, "support bundle uploaded to %s\n", url)
		} else if outcome.Error != nil {
			fmt.Fprintf(os.Stderr, "support bundle upload failed: %s\n", *outcome.Error)
		}
	}
}

func shouldOfferCrashBundle() bool {
	raw, ok := os.LookupEnv(CrashReportEnvVar)
	if !ok {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

func promptYesNo(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
