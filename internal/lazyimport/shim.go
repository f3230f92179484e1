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

package lazyimport

import (
	"sort"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// shimTemplate renders a standalone Python module that installs a
// LazyFinder on sys.meta_path, matching lazy_import.rs's
// generate_lazy_import_python_code output adapted to Go templating.
var shimTemplate = template.Must(template.New("lazyimport_shim").Parse(`"""
PyBun lazy import shim.

Generated by PyBun - do not edit manually.
"""

import sys
import importlib
import importlib.abc
import importlib.util

_ENABLED = {{.Enabled}}
_FALLBACK = {{.Fallback}}
_LOG_IMPORTS = {{.LogImports}}

_DENYLIST = {
{{range .Denylist}}    "{{.}}",
{{end}}}

_ALLOWLIST = {{.AllowlistLiteral}}


class _LazyModule:
    __slots__ = ("_name", "_module", "_loading")

    def __init__(self, name):
        object.__setattr__(self, "_name", name)
        object.__setattr__(self, "_module", None)
        object.__setattr__(self, "_loading", False)

    def _load(self):
        if object.__getattribute__(self, "_loading"):
            raise ImportError(f"circular lazy import detected for {self._name}")
        object.__setattr__(self, "_loading", True)
        try:
            if _LOG_IMPORTS:
                print(f"[pybun] loading lazy module: {self._name}")
            module = importlib.import_module(self._name)
            object.__setattr__(self, "_module", module)
            return module
        finally:
            object.__setattr__(self, "_loading", False)

    def __getattr__(self, name):
        module = object.__getattribute__(self, "_module")
        if module is None:
            module = self._load()
        return getattr(module, name)


class _LazyFinder(importlib.abc.MetaPathFinder):
    def find_spec(self, fullname, path, target=None):
        if not _ENABLED:
            return None
        if _is_denied(fullname):
            return None
        if _ALLOWLIST is not None and not _is_allowed(fullname):
            return None
        return importlib.machinery.ModuleSpec(fullname, _LazyLoader(fullname))


class _LazyLoader(importlib.abc.Loader):
    def __init__(self, name):
        self._name = name

    def create_module(self, spec):
        return _LazyModule(self._name)

    def exec_module(self, module):
        return None


def _is_denied(fullname):
    if fullname in _DENYLIST:
        return True
    parts = fullname.split(".")
    return any(".".join(parts[:i]) in _DENYLIST for i in range(1, len(parts)))


def _is_allowed(fullname):
    if _ALLOWLIST is None:
        return True
    if fullname in _ALLOWLIST:
        return True
    parts = fullname.split(".")
    return any(".".join(parts[:i]) in _ALLOWLIST for i in range(1, len(parts)))


def install():
    sys.meta_path.insert(0, _LazyFinder())
`))

type shimData struct {
	Enabled    string
	Fallback   string
	LogImports string
	Denylist   []string
	allowlist  []string
}

// AllowlistLiteral renders the allowlist as a Python set literal, or
// None when it is empty (meaning every non-denied module is eligible).
func (d shimData) AllowlistLiteral() string {
	if len(d.allowlist) == 0 {
		return "None"
	}
	quoted := make([]string, len(d.allowlist))
	for i, m := range d.allowlist {
		quoted[i] = `"` + m + `"`
	}
	return "{" + strings.Join(quoted, ", ") + "}"
}

// GenerateShim renders the Python lazy-import shim source for cfg.
func GenerateShim(cfg Config) (string, error) {
	data := shimData{
		Enabled:    pyBool(cfg.Enabled),
		Fallback:   pyBool(cfg.FallbackToCPython),
		LogImports: pyBool(cfg.LogImports),
		Denylist:   sortedKeys(cfg.Denylist),
		allowlist:  sortedKeys(cfg.Allowlist),
	}

	var buf strings.Builder
	if err := shimTemplate.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to render lazy import shim")
	}
	return buf.String(), nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
