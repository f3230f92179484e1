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

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pybun/pybun/internal/cache"
	"github.com/pybun/pybun/internal/index"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	idx := index.NewInMemoryIndex()
	idx.Add("flask", "3.0.0")

	c := cache.New(afero.NewMemMapFs(), "/cache")
	require.NoError(t, c.EnsureDirs())

	return New(idx, c, t.TempDir())
}

func callID(n int) json.RawMessage { return json.RawMessage(mustJSON(n)) }

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func TestHandleInitialize(t *testing.T) {
	s := testServer(t)
	resp := s.HandleRequest(context.Background(), Request{Method: "initialize", ID: callID(1)})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	assert.Contains(t, result, "serverInfo")
}

func TestHandleToolsList(t *testing.T) {
	s := testServer(t)
	resp := s.HandleRequest(context.Background(), Request{Method: "tools/list", ID: callID(2)})
	require.NotNil(t, resp)

	var result struct {
		Tools []Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	assert.Contains(t, names, "pybun_resolve")
	assert.Contains(t, names, "pybun_install")
	assert.Contains(t, names, "pybun_run")
	assert.Contains(t, names, "pybun_gc")
	assert.Contains(t, names, "pybun_doctor")
}

func TestHandleResourcesList(t *testing.T) {
	s := testServer(t)
	resp := s.HandleRequest(context.Background(), Request{Method: "resources/list", ID: callID(3)})
	require.NotNil(t, resp)

	var result struct {
		Resources []Resource `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.NotEmpty(t, result.Resources)
}

func TestHandleUnknownMethod(t *testing.T) {
	s := testServer(t)
	resp := s.HandleRequest(context.Background(), Request{Method: "unknown/method", ID: callID(4)})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestNotificationsProduceNoResponse(t *testing.T) {
	s := testServer(t)

	assert.Nil(t, s.HandleRequest(context.Background(), Request{Method: "initialized"}))
	assert.Nil(t, s.HandleRequest(context.Background(), Request{Method: "notifications/initialized"}))
	assert.Nil(t, s.HandleRequest(context.Background(), Request{Method: "tools/list"}))
	assert.Nil(t, s.HandleRequest(context.Background(), Request{Method: "unknown/method"}))
}

func TestToolsCallResolve(t *testing.T) {
	s := testServer(t)
	params := mustJSON(map[string]interface{}{
		"name":      "pybun_resolve",
		"arguments": map[string]interface{}{"requirements": []string{"flask==3.0.0"}},
	})

	resp := s.HandleRequest(context.Background(), Request{Method: "tools/call", ID: callID(5), Params: params})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "flask")
}

func TestToolsCallResolveMissingRequirementsIsError(t *testing.T) {
	s := testServer(t)
	params := mustJSON(map[string]interface{}{"name": "pybun_resolve", "arguments": map[string]interface{}{}})

	resp := s.HandleRequest(context.Background(), Request{Method: "tools/call", ID: callID(6), Params: params})
	require.NotNil(t, resp)

	var result struct {
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.True(t, result.IsError)
}

func TestToolsCallUnknownToolIsError(t *testing.T) {
	s := testServer(t)
	params := mustJSON(map[string]interface{}{"name": "pybun_nonexistent", "arguments": map[string]interface{}{}})

	resp := s.HandleRequest(context.Background(), Request{Method: "tools/call", ID: callID(7), Params: params})
	require.NotNil(t, resp)

	var result struct {
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.True(t, result.IsError)
}

func TestToolsCallGCDryRun(t *testing.T) {
	s := testServer(t)
	params := mustJSON(map[string]interface{}{
		"name":      "pybun_gc",
		"arguments": map[string]interface{}{"dry_run": true},
	})

	resp := s.HandleRequest(context.Background(), Request{Method: "tools/call", ID: callID(8), Params: params})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
}

func TestToolsCallDoctorReturnsChecks(t *testing.T) {
	s := testServer(t)
	params := mustJSON(map[string]interface{}{"name": "pybun_doctor", "arguments": map[string]interface{}{}})

	resp := s.HandleRequest(context.Background(), Request{Method: "tools/call", ID: callID(11), Params: params})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Contains(t, result.Content[0].Text, "checks")
}

func TestToolsCallInstallWritesLockfile(t *testing.T) {
	s := testServer(t)
	params := mustJSON(map[string]interface{}{
		"name":      "pybun_install",
		"arguments": map[string]interface{}{"requirements": []string{"flask==3.0.0"}},
	})

	resp := s.HandleRequest(context.Background(), Request{Method: "tools/call", ID: callID(12), Params: params})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "flask")

	exists, err := afero.Exists(s.Cache.Fs(), s.workingDir+"/pybun.lock")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestToolsCallRunMissingScriptAndCodeIsError(t *testing.T) {
	s := testServer(t)
	params := mustJSON(map[string]interface{}{"name": "pybun_run", "arguments": map[string]interface{}{}})

	resp := s.HandleRequest(context.Background(), Request{Method: "tools/call", ID: callID(13), Params: params})
	require.NotNil(t, resp)

	var result struct {
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.True(t, result.IsError)
}

func TestHandleResourcesReadCacheInfo(t *testing.T) {
	s := testServer(t)
	params := mustJSON(map[string]interface{}{"uri": "pybun://cache/info"})

	resp := s.HandleRequest(context.Background(), Request{Method: "resources/read", ID: callID(9), Params: params})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
}

func TestHandleResourcesReadUnknownURI(t *testing.T) {
	s := testServer(t)
	params := mustJSON(map[string]interface{}{"uri": "pybun://nope"})

	resp := s.HandleRequest(context.Background(), Request{Method: "resources/read", ID: callID(10), Params: params})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
}

func TestServeHandlesNewlineDelimitedRequests(t *testing.T) {
	s := testServer(t)
	input := `{"jsonrpc":"2.0","method":"initialize","id":1}` + "\n" +
		`{"jsonrpc":"2.0","method":"initialized"}` + "\n" +
		`not json at all` + "\n"

	var out bytes.Buffer
	err := s.Serve(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var first Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Nil(t, first.Error)

	var second Response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NotNil(t, second.Error)
	assert.Equal(t, CodeParseError, second.Error.Code)
}
