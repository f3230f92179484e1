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

package index

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hitCountingClient struct {
	mu       sync.Mutex
	hits     map[string]int
	response func(path string) (int, string)
}

func (c *hitCountingClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.hits[req.URL.Path]++
	c.mu.Unlock()

	status, body := c.response(req.URL.Path)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}, nil
}

type memStore struct {
	mu   sync.Mutex
	data map[string]*Snapshot
}

func newMemStore() *memStore { return &memStore{data: map[string]*Snapshot{}} }

func (m *memStore) LoadSnapshot(name string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[name], nil
}

func (m *memStore) SaveSnapshot(name string, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = snap
	return nil
}

func TestRemoteIndexConcurrencyDedup(t *testing.T) {
	var projectHits, versionHits int64

	client := &hitCountingClient{
		hits: map[string]int{},
		response: func(path string) (int, string) {
			switch path {
			case "/pypi/app/json":
				atomic.AddInt64(&projectHits, 1)
				return http.StatusOK, `{"info":{"name":"app"},"releases":{"1.0.0":[{"filename":"app-1.0.0-py3-none-any.whl","packagetype":"bdist_wheel"}]}}`
			case "/pypi/app/1.0.0/json":
				atomic.AddInt64(&versionHits, 1)
				return http.StatusOK, `{"info":{"requires_dist":["requests>=2.28.0"]}}`
			default:
				return http.StatusNotFound, "{}"
			}
		},
	}

	idx := NewRemoteIndex("https://pypi.org", client, newMemStore(), false)

	var wg sync.WaitGroup
	results := make([]*ResolvedPackage, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pkg, err := idx.Get(context.Background(), "app", "1.0.0")
			require.NoError(t, err)
			results[i] = pkg
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&projectHits))
	assert.EqualValues(t, 1, atomic.LoadInt64(&versionHits))
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "app", r.Name)
		require.Len(t, r.Dependencies, 1)
		assert.Equal(t, "requests", r.Dependencies[0].Name)
	}
}

func TestRemoteIndexConditionalGetReusesCache(t *testing.T) {
	store := newMemStore()
	calls := 0
	client := &hitCountingClient{
		hits: map[string]int{},
		response: func(path string) (int, string) {
			calls++
			return http.StatusNotModified, ""
		},
	}
	store.data["app"] = &Snapshot{
		ETag: `"abc"`,
		Packages: []snapshotPackage{
			{Version: "1.0.0", Wheels: []Wheel{{Filename: "app-1.0.0-py3-none-any.whl"}}},
		},
	}

	idx := NewRemoteIndex("https://pypi.org", client, store, false)
	all, err := idx.All(context.Background(), "app")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, calls)
}

func TestParseRequiresDist(t *testing.T) {
	cases := map[string]struct {
		in       string
		wantName string
		wantOK   bool
	}{
		"exact":        {in: "requests==2.28.0", wantName: "requests", wantOK: true},
		"range":        {in: "numpy>=1.20", wantName: "numpy", wantOK: true},
		"withMarker":   {in: `requests>=2.0; python_version<"3.8"`, wantName: "requests", wantOK: true},
		"withExtras":   {in: "requests[security]>=2.0", wantName: "requests", wantOK: true},
		"bare":         {in: "click", wantName: "click", wantOK: true},
		"paren":        {in: "urllib3 (>=1.26,<2.0)", wantName: "urllib3", wantOK: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req, ok := parseRequiresDist(tc.in)
			assert.Equal(t, tc.wantOK, ok)
			if ok {
				assert.Equal(t, tc.wantName, req.Name)
			}
		})
	}
}

func TestWheelPlatforms(t *testing.T) {
	assert.Equal(t, []string{"manylinux2014_x86_64"}, wheelPlatforms("requests-2.28.0-py3-none-manylinux2014_x86_64.whl"))
	assert.Equal(t, []string{"any"}, wheelPlatforms("click-8.1.0-py3-none-any.whl"))
	assert.Equal(t, []string{"any"}, wheelPlatforms("not-a-wheel.tar.gz"))
}
