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
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	pybunhttp "github.com/pybun/pybun/internal/http"
)

// UploadOutcome is the result of attempting to upload a built bundle.
type UploadOutcome struct {
	URL        string  `json:"url"`
	Status     string  `json:"status"`
	HTTPStatus *int    `json:"http_status,omitempty"`
	Error      *string `json:"error,omitempty"`
}

// Upload zips the bundle directory and POSTs it to url.
func Upload(ctx context.Context, fs afero.Fs, client pybunhttp.Client, bundle *Collection, url string) UploadOutcome {
	archive, err := zipBundle(fs, bundle.Path)
	if err != nil {
		msg := err.Error()
		return UploadOutcome{URL: url, Status: "failed", Error: &msg}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(archive))
	if err != nil {
		msg := err.Error()
		return UploadOutcome{URL: url, Status: "failed", Error: &msg}
	}
	req.Header.Set("Content-Type", "application/zip")

	resp, err := client.Do(req)
	if err != nil {
		msg := err.Error()
		return UploadOutcome{URL: url, Status: "failed", Error: &msg}
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	if status < 200 || status >= 300 {
		msg := errors.Errorf("upload rejected with status %d", status).Error()
		return UploadOutcome{URL: url, Status: "failed", HTTPStatus: &status, Error: &msg}
	}
	return UploadOutcome{URL: url, Status: "uploaded", HTTPStatus: &status}
}

func zipBundle(fs afero.Fs, root string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	files := collectFiles(fs, root)
	for _, path := range files {
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		entry, createErr := w.Create(filepath.ToSlash(rel))
		if createErr != nil {
			return nil, errors.Wrap(createErr, "failed to add bundle file to archive")
		}
		src, openErr := fs.Open(path)
		if openErr != nil {
			return nil, errors.Wrapf(openErr, "failed to open %s", path)
		}
		_, copyErr := io.Copy(entry, src)
		src.Close()
		if copyErr != nil {
			return nil, errors.Wrapf(copyErr, "failed to archive %s", path)
		}
	}

	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finalize bundle archive")
	}
	return buf.Bytes(), nil
}
