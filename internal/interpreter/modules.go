// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package interpreter

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	lua "github.com/yuin/gopher-lua"
)

// Well-known VFS directories.
const (
	HomeDir    = "/home"
	LibDir     = "/lib"
	PluginsDir = "/plugins"
)

// SearchPath is where modules are looked up, in order.
var SearchPath = []string{HomeDir, LibDir, PluginsDir}

var moduleName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ErrModuleNotFound is returned when no file on the search path provides a
// module.
var ErrModuleNotFound = errors.New("module not found")

// moduleLoader resolves and caches modules from the VFS. Failed lookups are
// remembered until invalidate is called.
type moduleLoader struct {
	fs      afero.Fs
	loaded  map[string]lua.LValue
	missing map[string]struct{}
}

func newModuleLoader(fs afero.Fs) *moduleLoader {
	return &moduleLoader{
		fs:      fs,
		loaded:  make(map[string]lua.LValue),
		missing: make(map[string]struct{}),
	}
}

// find returns the VFS path that provides name.
func (m *moduleLoader) find(name string) (string, bool) {
	rel := strings.ReplaceAll(name, ".", "/")
	for _, dir := range SearchPath {
		for _, candidate := range []string{
			path.Join(dir, rel+".lua"),
			path.Join(dir, rel, "init.lua"),
		} {
			if ok, _ := afero.Exists(m.fs, candidate); ok {
				return candidate, true
			}
		}
	}
	return "", false
}

// require loads name once and returns the value its chunk produced. A chunk
// that returns nothing yields true.
func (m *moduleLoader) require(L *lua.LState, name string) (lua.LValue, error) {
	if !moduleName.MatchString(name) {
		return nil, fmt.Errorf("invalid module name %q", name)
	}
	if v, ok := m.loaded[name]; ok {
		return v, nil
	}
	if _, ok := m.missing[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}

	file, ok := m.find(name)
	if !ok {
		m.missing[name] = struct{}{}
		return nil, fmt.Errorf("%w: %s (searched %s)", ErrModuleNotFound, name, strings.Join(SearchPath, ", "))
	}

	code, err := afero.ReadFile(m.fs, file)
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", file, err)
	}
	fn, err := L.Load(strings.NewReader(string(code)), file)
	if err != nil {
		return nil, fromLua(err)
	}

	L.Push(fn)
	L.Push(lua.LString(name))
	if err := L.PCall(1, 1, nil); err != nil {
		return nil, fromLua(err)
	}
	v := L.Get(-1)
	L.Pop(1)
	if v == lua.LNil {
		v = lua.LTrue
	}
	m.loaded[name] = v
	return v, nil
}

// invalidate forgets cached modules and failed lookups so files written
// since are picked up.
func (m *moduleLoader) invalidate() {
	clear(m.loaded)
	clear(m.missing)
}

// forgetMissing drops failed lookups only.
func (m *moduleLoader) forgetMissing() {
	clear(m.missing)
}
