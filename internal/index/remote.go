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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	pybunhttp "github.com/pybun/pybun/internal/http"
)

const (
	errInvalidBaseURL = "invalid package index base url"
	errDecodeProject   = "failed to decode project response"
	errBuildRequest    = "failed to build index request"
)

// SnapshotStore persists the per-name project snapshot (release list
// plus HTTP validator fields) so subsequent commands can issue
// conditional-GET requests. Implemented by internal/cache's pypi
// sub-store; declared here so this package never imports cache.
type SnapshotStore interface {
	LoadSnapshot(name string) (*Snapshot, error)
	SaveSnapshot(name string, snap *Snapshot) error
}

// Snapshot is the persisted, per-name project metadata.
type Snapshot struct {
	ETag         string            `json:"etag,omitempty"`
	LastModified string            `json:"last_modified,omitempty"`
	Packages     []snapshotPackage `json:"packages"`
}

type snapshotPackage struct {
	Version string         `json:"version"`
	Wheels  []Wheel        `json:"wheels"`
	SDist   *SourceDist    `json:"sdist,omitempty"`
}

// RemoteIndex is a Package Index backed by an upstream PyPI-style JSON
// API, with per-name in-process memoization, single-flight request
// coalescing, conditional-GET validator reuse, and lazy per-version
// dependency fetch.
type RemoteIndex struct {
	BaseURL string
	Client  pybunhttp.Client
	Store   SnapshotStore
	Offline bool

	group       singleflight.Group
	memMu       sync.Mutex
	memory      map[string][]ResolvedPackage // name -> packages without deps populated
	depGroup    singleflight.Group
	depMu       sync.Mutex
	depMemory   map[string][]Requirement // "name@version" -> deps
}

// NewRemoteIndex constructs a RemoteIndex. baseURL is the index root
// (e.g. "https://pypi.org"), with or without a trailing "/simple".
func NewRemoteIndex(baseURL string, client pybunhttp.Client, store SnapshotStore, offline bool) *RemoteIndex {
	return &RemoteIndex{
		BaseURL: normalizeBaseURL(baseURL),
		Client:  client,
		Store:   store,
		Offline: offline,
		memory:  map[string][]ResolvedPackage{},
		depMemory: map[string][]Requirement{},
	}
}

func normalizeBaseURL(base string) string {
	trimmed := strings.TrimRight(base, "/")
	trimmed = strings.TrimSuffix(trimmed, "/simple")
	return trimmed
}

// Get implements Index. The returned package's Dependencies are
// populated via a lazy per-version fetch.
func (r *RemoteIndex) Get(ctx context.Context, name, version string) (*ResolvedPackage, error) {
	packages, err := r.getOrFetch(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, pkg := range packages {
		if pkg.Version != version {
			continue
		}
		deps, err := r.depsForVersion(ctx, name, version)
		if err != nil {
			return nil, err
		}
		pkg.Dependencies = deps
		return &pkg, nil
	}
	return nil, nil
}

// All implements Index. Dependencies are left unpopulated; callers
// pinning a specific version should call Get.
func (r *RemoteIndex) All(ctx context.Context, name string) ([]ResolvedPackage, error) {
	return r.getOrFetch(ctx, name)
}

// getOrFetch returns the in-process-memoized package list for name,
// coalescing concurrent callers into a single upstream fetch.
func (r *RemoteIndex) getOrFetch(ctx context.Context, name string) ([]ResolvedPackage, error) {
	r.memMu.Lock()
	if cached, ok := r.memory[name]; ok {
		r.memMu.Unlock()
		return cached, nil
	}
	r.memMu.Unlock()

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		packages, err := r.fetchProject(ctx, name)
		if err != nil {
			return nil, err
		}
		r.memMu.Lock()
		r.memory[name] = packages
		r.memMu.Unlock()
		return packages, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ResolvedPackage), nil
}

type projectResponse struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
	Releases map[string][]releaseFile `json:"releases"`
}

type releaseFile struct {
	Filename    string `json:"filename"`
	PackageType string `json:"packagetype"`
	URL         string `json:"url"`
	Digests     struct {
		SHA256 string `json:"sha256"`
	} `json:"digests"`
	Yanked bool `json:"yanked"`
}

// fetchProject issues a conditional-GET for name's project JSON,
// consulting and updating the SnapshotStore. A 304 reuses the stored
// body. In offline mode a miss is a KindOfflineNotCached error.
func (r *RemoteIndex) fetchProject(ctx context.Context, name string) ([]ResolvedPackage, error) {
	var cached *Snapshot
	if r.Store != nil {
		var err error
		cached, err = r.Store.LoadSnapshot(name)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load index snapshot")
		}
	}

	if r.Offline {
		if cached == nil {
			return nil, &Error{Kind: KindOfflineNotCached, Name: name}
		}
		return fromSnapshot(name, *cached), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/pypi/%s/json", r.BaseURL, name), nil)
	if err != nil {
		return nil, errors.Wrap(err, errBuildRequest)
	}
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to index failed for %s", name)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotModified {
		if cached == nil {
			return nil, &Error{Kind: KindOfflineNotCached, Name: name}
		}
		return fromSnapshot(name, *cached), nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("index returned status %d for %s", resp.StatusCode, name)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read index response")
	}
	var parsed projectResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, errDecodeProject)
	}

	snap := Snapshot{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	for version, files := range parsed.Releases {
		if len(files) == 0 {
			continue
		}
		sp := snapshotPackage{Version: version}
		for _, f := range files {
			if f.Yanked {
				continue
			}
			switch f.PackageType {
			case "bdist_wheel":
				platforms := wheelPlatforms(f.Filename)
				sp.Wheels = append(sp.Wheels, Wheel{
					Filename:     f.Filename,
					URL:          f.URL,
					Hash:         f.Digests.SHA256,
					PlatformTags: platforms,
				})
			case "sdist":
				sd := SourceDist{Filename: f.Filename, URL: f.URL, Hash: f.Digests.SHA256}
				sp.SDist = &sd
			}
		}
		snap.Packages = append(snap.Packages, sp)
	}

	if r.Store != nil {
		if err := r.Store.SaveSnapshot(name, &snap); err != nil {
			return nil, errors.Wrap(err, "failed to persist index snapshot")
		}
	}

	return fromSnapshot(name, snap), nil
}

func fromSnapshot(name string, snap Snapshot) []ResolvedPackage {
	prov := Provenance{IndexName: "pypi", URL: name}
	out := make([]ResolvedPackage, 0, len(snap.Packages))
	for _, sp := range snap.Packages {
		out = append(out, ResolvedPackage{
			Name:    name,
			Version: sp.Version,
			Artifacts: ArtifactSet{
				Wheels: sp.Wheels,
				SDist:  sp.SDist,
			},
			Provenance: prov,
		})
	}
	return out
}

type versionResponse struct {
	Info struct {
		RequiresDist []string `json:"requires_dist"`
	} `json:"info"`
}

// depsForVersion lazily fetches and in-process-memoizes the
// Requires-Dist metadata for exactly the versions inspected, never a
// whole-project pre-fetch.
func (r *RemoteIndex) depsForVersion(ctx context.Context, name, version string) ([]Requirement, error) {
	key := name + "@" + version

	r.depMu.Lock()
	if cached, ok := r.depMemory[key]; ok {
		r.depMu.Unlock()
		return cached, nil
	}
	r.depMu.Unlock()

	if r.Offline {
		return nil, nil
	}

	v, err, _ := r.depGroup.Do(key, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/pypi/%s/%s/json", r.BaseURL, name, version), nil)
		if err != nil {
			return nil, errors.Wrap(err, errBuildRequest)
		}
		resp, err := r.Client.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "request to index failed for %s==%s", name, version)
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode != http.StatusOK {
			return []Requirement{}, nil
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read version response")
		}
		var parsed versionResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, errors.Wrap(err, "failed to decode version response")
		}
		reqs := make([]Requirement, 0, len(parsed.Info.RequiresDist))
		for _, raw := range parsed.Info.RequiresDist {
			if req, ok := parseRequiresDist(raw); ok {
				reqs = append(reqs, req)
			}
		}

		r.depMu.Lock()
		r.depMemory[key] = reqs
		r.depMu.Unlock()
		return reqs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Requirement), nil
}

// parseRequiresDist normalizes a Requires-Dist string: strip the
// environment marker (anything after ';'), strip extras ('[...]'), and
// parse the first version constraint.
func parseRequiresDist(raw string) (Requirement, bool) {
	withoutMarker := strings.TrimSpace(strings.SplitN(raw, ";", 2)[0])
	if withoutMarker == "" {
		return Requirement{}, false
	}
	withoutExtras := withoutMarker
	if i := strings.Index(withoutExtras, "["); i >= 0 {
		if j := strings.Index(withoutExtras, "]"); j > i {
			withoutExtras = withoutExtras[:i] + withoutExtras[j+1:]
		}
	}
	withoutExtras = strings.TrimSpace(withoutExtras)

	name := withoutExtras
	spec := ""
	if i := strings.IndexAny(withoutExtras, "(<>=!~"); i >= 0 {
		name = strings.TrimSpace(withoutExtras[:i])
		spec = strings.TrimSpace(withoutExtras[i:])
	}
	spec = strings.Trim(spec, "()")
	spec = strings.TrimSpace(strings.SplitN(spec, ",", 2)[0])
	spec = strings.ReplaceAll(spec, " ", "")

	if name == "" {
		return Requirement{}, false
	}
	if spec == "" {
		return Requirement{Name: name, Range: ">=0.0.0"}, true
	}
	if strings.HasPrefix(spec, "==") {
		return Requirement{Name: name, Version: strings.TrimPrefix(spec, "==")}, true
	}
	return Requirement{Name: name, Range: spec}, true
}

// wheelPlatforms extracts the platform tag from a wheel filename:
// split on '-'; the last segment before ".whl" is the tag; default to
// "any" when the filename has fewer than 5 dash-separated components.
func wheelPlatforms(filename string) []string {
	if !strings.HasSuffix(filename, ".whl") {
		return []string{"any"}
	}
	base := strings.TrimSuffix(filename, ".whl")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	components := strings.Split(base, "-")
	if len(components) < 5 {
		return []string{"any"}
	}
	return []string{components[len(components)-1]}
}
