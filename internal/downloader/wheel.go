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

package downloader

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"
)

// WheelCache is the subset of internal/cache.Cache a WheelFetcher needs.
// Declared here (rather than importing internal/cache directly) so this
// package's only required dependency stays pybunhttp.Client.
type WheelCache interface {
	HasWheel(name, filename string) bool
	StoreWheel(name, filename string, r io.Reader) error
	WheelPath(name, filename string) string
}

// WheelFetcher ties a Downloader to a WheelCache: wheel files are
// immutable once published under a given filename, so an already
// cached wheel is trusted without a re-download or re-verify.
type WheelFetcher struct {
	Cache      WheelCache
	Downloader *Downloader
}

// NewWheelFetcher constructs a WheelFetcher.
func NewWheelFetcher(cache WheelCache, d *Downloader) *WheelFetcher {
	return &WheelFetcher{Cache: cache, Downloader: d}
}

// GetWheel returns the cached path for name/filename, downloading and
// verifying it against checksum first if not already cached.
func (f *WheelFetcher) GetWheel(ctx context.Context, name, filename, url, checksum string) (string, error) {
	if f.Cache.HasWheel(name, filename) {
		return f.Cache.WheelPath(name, filename), nil
	}

	var buf bytes.Buffer
	err := f.Downloader.DownloadFile(ctx, url, func() (io.Writer, error) {
		buf.Reset()
		return &buf, nil
	}, checksum)
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch wheel %s", filename)
	}
	if err := f.Cache.StoreWheel(name, filename, bytes.NewReader(buf.Bytes())); err != nil {
		return "", errors.Wrapf(err, "failed to store wheel %s", filename)
	}
	return f.Cache.WheelPath(name, filename), nil
}
