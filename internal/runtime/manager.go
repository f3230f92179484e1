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

package runtime

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/pybun/pybun/internal/downloader"
	pybunhttp "github.com/pybun/pybun/internal/http"
	"github.com/pybun/pybun/internal/logging"
)

const (
	errUnsupportedVersion  = "python %s is not supported (supported: 3.9, 3.10, 3.11, 3.12)"
	errOfflineNotInstalled = "python %s is not installed and offline mode is enabled; run without --offline to download it"
	errUnsupportedPlatform = "unsupported platform for interpreter download"
)

// Manager installs and tracks CPython interpreters under a cache root's
// "python" subdirectory, one directory per installed version.
type Manager struct {
	fs         afero.Fs
	root       string
	offline    bool
	downloader *downloader.Downloader
	log        logging.Logger
}

// New constructs a Manager rooted at cacheRoot (typically
// cache.Cache.Root()), backed by fs.
func New(fs afero.Fs, cacheRoot string, client pybunhttp.Client) *Manager {
	return &Manager{
		fs:         fs,
		root:       cacheRoot,
		downloader: downloader.New(client),
		log:        logging.NewNop(),
	}
}

// WithOffline returns a copy of m with offline mode set.
func (m *Manager) WithOffline(offline bool) *Manager {
	c := *m
	c.offline = offline
	return &c
}

// WithLogger returns a copy of m using log for install progress.
func (m *Manager) WithLogger(log logging.Logger) *Manager {
	c := *m
	c.log = log
	return &c
}

// RuntimesDir returns the directory all installed interpreters live
// under.
func (m *Manager) RuntimesDir() string {
	return filepath.Join(m.root, "python")
}

// VersionDir returns the installation directory for version.
func (m *Manager) VersionDir(version string) string {
	return filepath.Join(m.RuntimesDir(), version)
}

// PythonBinary returns the interpreter executable path for an
// installed version, accounting for the platform's directory layout.
func (m *Manager) PythonBinary(version string) string {
	base := filepath.Join(m.VersionDir(version), "python")
	if runtime.GOOS == "windows" {
		return filepath.Join(base, "python.exe")
	}
	return filepath.Join(base, "bin", "python3")
}

// IsInstalled reports whether version's interpreter binary exists.
func (m *Manager) IsInstalled(version string) bool {
	_, err := m.fs.Stat(m.PythonBinary(version))
	return err == nil
}

// ListInstalled returns every installed version, newest first.
func (m *Manager) ListInstalled() ([]string, error) {
	infos, err := afero.ReadDir(m.fs, m.RuntimesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list installed interpreters")
	}

	var versions []string
	for _, info := range infos {
		if info.IsDir() && m.IsInstalled(info.Name()) {
			versions = append(versions, info.Name())
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versionLess(versions[j], versions[i]) })
	return versions, nil
}

// EnsureVersion resolves requested against the embedded table,
// installing it (unless offline mode forbids it) if not already
// present, and returns its binary path.
func (m *Manager) EnsureVersion(ctx context.Context, requested string) (string, error) {
	info, ok := FindVersion(requested)
	if !ok {
		return "", errors.Errorf(errUnsupportedVersion, requested)
	}

	if m.IsInstalled(info.Version) {
		return m.PythonBinary(info.Version), nil
	}

	if m.offline {
		return "", errors.Errorf(errOfflineNotInstalled, info.Version)
	}

	if err := m.downloadAndInstall(ctx, info); err != nil {
		return "", err
	}
	return m.PythonBinary(info.Version), nil
}

func (m *Manager) downloadAndInstall(ctx context.Context, info PythonVersion) error {
	platform, ok := CurrentPlatform()
	if !ok {
		return errors.New(errUnsupportedPlatform)
	}

	url := strings.Join([]string{
		releaseBase, info.ReleaseTag,
		"cpython-" + info.Version + "+" + info.ReleaseTag + "-" + platform.ArchiveSuffix(),
	}, "/")

	destDir := m.VersionDir(info.Version)
	if err := m.fs.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create interpreter install directory")
	}

	m.log.Info("downloading interpreter", "version", info.Version, "url", url)

	var archive []byte
	expected := info.Checksums[platform.ChecksumKey()]
	err := m.downloader.DownloadFile(ctx, url, func() (io.Writer, error) {
		archive = nil
		return &sliceWriter{dst: &archive}, nil
	}, prefixedChecksum(expected))
	if err != nil {
		return errors.Wrapf(err, "failed to download python %s", info.Version)
	}

	m.log.Info("extracting interpreter", "version", info.Version)
	if err := extractTarGz(m.fs, archive, destDir); err != nil {
		return errors.Wrapf(err, "failed to extract python %s", info.Version)
	}

	bin := m.PythonBinary(info.Version)
	if _, err := m.fs.Stat(bin); err != nil {
		return errors.Errorf("installation failed: python binary not found at %s", bin)
	}
	if err := m.fs.Chmod(bin, 0o755); err != nil {
		return errors.Wrap(err, "failed to make interpreter executable")
	}

	m.log.Info("installed interpreter", "version", info.Version, "path", destDir)
	return nil
}

func prefixedChecksum(sum string) string {
	if sum == "" {
		return ""
	}
	return "sha256:" + sum
}

// sliceWriter implements io.Writer by appending into a caller-owned
// byte-slice pointer; used because the whole interpreter archive must
// be held in memory before tar/gzip extraction can begin.
type sliceWriter struct{ dst *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.dst = append(*w.dst, p...)
	return len(p), nil
}

// RemoveVersion deletes an installed interpreter's directory.
func (m *Manager) RemoveVersion(version string) error {
	dir := m.VersionDir(version)
	if _, err := m.fs.Stat(dir); err != nil {
		return errors.Errorf("python %s is not installed", version)
	}
	return m.fs.RemoveAll(dir)
}

// InstalledPython describes a concrete, resolved interpreter.
type InstalledPython struct {
	Version string
	Path    string
	Managed bool
}

// GetVersionInfo queries an installed interpreter's actual reported
// version by invoking it with --version.
func (m *Manager) GetVersionInfo(version string) (InstalledPython, error) {
	bin := m.PythonBinary(version)
	if _, err := m.fs.Stat(bin); err != nil {
		return InstalledPython{}, errors.Errorf("python %s is not installed", version)
	}

	out, err := exec.Command(bin, "--version").Output()
	if err != nil {
		return InstalledPython{}, errors.Wrap(err, "failed to execute python")
	}
	actual := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(out)), "Python "))

	return InstalledPython{Version: actual, Path: bin, Managed: true}, nil
}

// AbiStatus is the outcome of an ABI compatibility check.
type AbiStatus int

const (
	AbiCompatible AbiStatus = iota
	AbiMismatch
)

// AbiCheck is the result of comparing an installed interpreter's
// version against a lockfile's recorded version.
type AbiCheck struct {
	Status    AbiStatus
	Installed string
	Expected  string
	Warning   string
}

// CheckAbiCompatibility compares the major.minor components of
// installed and lockVersion. A mismatch is a non-fatal warning: the
// environment still functions, but compiled-extension wheels built
// against one ABI may not load under the other.
func CheckAbiCompatibility(installed, lockVersion string) AbiCheck {
	if majorMinor(installed) == majorMinor(lockVersion) {
		return AbiCheck{Status: AbiCompatible, Installed: installed, Expected: lockVersion}
	}
	return AbiCheck{
		Status:    AbiMismatch,
		Installed: installed,
		Expected:  lockVersion,
		Warning: "python version mismatch: installed " + installed + " but lockfile expects " + lockVersion +
			"; this may cause ABI incompatibilities with compiled packages",
	}
}

func majorMinor(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

// extractTarGz unpacks a gzip-compressed tar archive's contents into
// destDir, preserving regular-file executable bits.
func extractTarGz(fs afero.Fs, archive []byte, destDir string) error {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return errors.Wrap(err, "failed to open gzip stream")
	}
	defer gz.Close() //nolint:errcheck

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read tar entry")
		}

		target := filepath.Join(destDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create directory %s", target)
			}
		case tar.TypeReg:
			if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.Wrapf(err, "failed to create directory for %s", target)
			}
			f, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return errors.Wrapf(err, "failed to create %s", target)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close() //nolint:errcheck
				return errors.Wrapf(err, "failed to write %s", target)
			}
			if err := f.Close(); err != nil {
				return errors.Wrapf(err, "failed to close %s", target)
			}
		case tar.TypeSymlink:
			// afero has no symlink support on its in-memory backend;
			// skipped entries don't affect binary extraction since
			// python-build-standalone symlinks are convenience
			// aliases, not the primary interpreter binary.
			continue
		}
	}
}

