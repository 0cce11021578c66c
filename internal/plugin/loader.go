// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/holomush/scriptkit/internal/bridge"
	"github.com/holomush/scriptkit/internal/interpreter"
	"github.com/holomush/scriptkit/internal/usererr"
)

// Engine is the part of the interpreter client the loader needs.
type Engine interface {
	LoadFileFromURL(ctx context.Context, path, url string) error
	Import(ctx context.Context, name string) (*bridge.Handle, error)
}

var luaModuleName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Loader turns the plugin references of a config into plugins.
//
// A reference ending in ".lua" is fetched into the engine's plugin directory
// and imported as an engine-native plugin. A directory holding a plugin.yaml
// is started through the Host. A bare name is looked up in the search
// directories. Anything else is a bad plugin file.
type Loader struct {
	engine Engine
	host   Host
	fs     afero.Fs
	search []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHost enables out-of-process plugins.
func WithHost(h Host) LoaderOption {
	return func(l *Loader) {
		l.host = h
	}
}

// WithFS sets the filesystem plugin directories are read from.
func WithFS(fs afero.Fs) LoaderOption {
	return func(l *Loader) {
		l.fs = fs
	}
}

// WithSearchDirs sets the directories bare plugin names are looked up in.
func WithSearchDirs(dirs ...string) LoaderOption {
	return func(l *Loader) {
		l.search = append(l.search, dirs...)
	}
}

// NewLoader creates a loader that imports engine plugins through engine.
func NewLoader(engine Engine, opts ...LoaderOption) *Loader {
	l := &Loader{engine: engine, fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves ref into a plugin ready to register.
func (l *Loader) Load(ctx context.Context, ref string) (Plugin, error) {
	if strings.HasSuffix(refPath(ref), ".lua") {
		return l.loadEngine(ctx, ref)
	}
	return l.loadBinary(ctx, ref)
}

func (l *Loader) loadEngine(ctx context.Context, ref string) (Plugin, error) {
	name := strings.TrimSuffix(path.Base(refPath(ref)), ".lua")
	if !luaModuleName.MatchString(name) {
		return nil, usererr.BadPluginFile(ref, fmt.Sprintf("%q is not a valid module name", name))
	}

	dest := path.Join(interpreter.PluginsDir, name+".lua")
	if err := l.engine.LoadFileFromURL(ctx, dest, ref); err != nil {
		return nil, err
	}

	h, err := l.engine.Import(ctx, name)
	if err != nil {
		if usererr.Is(err) || errors.Is(err, bridge.ErrBridgeSevered) {
			return nil, err
		}
		return nil, usererr.BadPluginFile(ref, err.Error())
	}

	p, err := NewEngineNative(ctx, name, h)
	if err != nil {
		_ = h.Release(ctx)
		return nil, err
	}
	return p, nil
}

func (l *Loader) loadBinary(ctx context.Context, ref string) (Plugin, error) {
	dir, ok := l.locate(ref)
	if !ok {
		return nil, usererr.BadPluginFile(ref, "expected a .lua module or a plugin directory")
	}

	data, err := afero.ReadFile(l.fs, filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, usererr.BadPluginFile(ref, "directory has no "+ManifestFile)
		}
		return nil, usererr.BadPluginFile(ref, err.Error())
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, usererr.BadPluginFile(ref, FormatSchemaError(err))
	}
	ok, err = m.Compatible()
	if err != nil {
		return nil, usererr.BadPluginFile(ref, err.Error())
	}
	if !ok {
		return nil, usererr.BadPluginFile(ref, fmt.Sprintf("requires plugin API %s, host provides %s", m.Requires, APIVersion))
	}

	if l.host == nil {
		return nil, usererr.BadPluginFile(ref, "out-of-process plugins are not enabled")
	}
	hp, err := l.host.Load(ctx, m, dir)
	if err != nil {
		return nil, usererr.BadPluginFile(ref, err.Error())
	}
	return HostNative{Plugin: hp}, nil
}

// locate finds the plugin directory for ref. Bare names fall back to the
// search directories.
func (l *Loader) locate(ref string) (string, bool) {
	if isDir(l.fs, ref) {
		return ref, true
	}
	if strings.ContainsAny(ref, `/\`) {
		return "", false
	}
	for _, d := range l.search {
		if dir := filepath.Join(d, ref); isDir(l.fs, dir) {
			return dir, true
		}
	}
	return "", false
}

func isDir(fs afero.Fs, p string) bool {
	info, err := fs.Stat(p)
	return err == nil && info.IsDir()
}

// refPath strips the query and fragment from URL references.
func refPath(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return u.Path
	}
	return ref
}
