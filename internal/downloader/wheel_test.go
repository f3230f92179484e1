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
	"net/http"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pybun/pybun/internal/cache"
)

type countingClient struct {
	body  string
	calls int
}

func (c *countingClient) Do(_ *http.Request) (*http.Response, error) {
	c.calls++
	return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader([]byte(c.body)))}, nil
}

func TestWheelFetcherDownloadsOnceThenTrustsCache(t *testing.T) {
	c := cache.New(afero.NewMemMapFs(), "/home/user/.cache/pybun")
	body := "wheel bytes"
	client := &countingClient{body: body}
	fetcher := NewWheelFetcher(c, New(client))

	path, err := fetcher.GetWheel(context.Background(), "requests", "requests-2.31.0-py3-none-any.whl", "https://example.invalid/requests.whl", checksumOf(body))
	require.NoError(t, err)
	assert.Equal(t, c.WheelPath("requests", "requests-2.31.0-py3-none-any.whl"), path)

	data, err := afero.ReadFile(c.Fs(), path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	assert.Equal(t, 1, client.calls)

	// Second fetch must not hit the network again: wheel filenames are
	// immutable, so a cache hit is trusted outright.
	_, err = fetcher.GetWheel(context.Background(), "requests", "requests-2.31.0-py3-none-any.whl", "https://example.invalid/requests.whl", checksumOf(body))
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}
