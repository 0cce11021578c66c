// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package interpreter runs the Lua engine behind the bridge.
//
// Remote owns the engine and serves the operations below over a bridge
// endpoint. Client is the calling side's view of the same operations. All
// engine access happens on the serving endpoint's executor goroutine, so the
// engine needs no locking of its own.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/afero"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptkit/internal/bridge"
	"github.com/holomush/scriptkit/internal/capability"
	"github.com/holomush/scriptkit/internal/fetch"
	"github.com/holomush/scriptkit/internal/usererr"
)

// RootName is the name the Remote is exposed under.
const RootName = "interpreter"

// Operations served by Remote.
const (
	MethodLoad       = "loadInterpreter"
	MethodRun        = "run"
	MethodImport     = "pyimport"
	MethodInstall    = "installPackage"
	MethodLoadFile   = "loadFileFromURL"
	MethodInvalidate = "invalidate_module_path_cache"
	MethodMkdir      = "mkdir"
	MethodWriteFile  = "writeFile"
	MethodReadFile   = "readFile"
	MethodGlobals    = "globals"
	MethodClose      = "close"
)

// Subject is the capability subject page scripts run as.
const Subject = "page"

// Fetcher retrieves packages and files by URL.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// LoadConfig configures the engine at load time.
type LoadConfig struct {
	// IndexURL is the base URL packages are installed from.
	IndexURL string `cbor:"index_url,omitempty"`
	// Bootstrap is an optional chunk fetched and run before anything else.
	Bootstrap string `cbor:"bootstrap,omitempty"`
	// Capabilities are granted to page scripts.
	Capabilities []string `cbor:"capabilities,omitempty"`
}

// RunResult wraps the value a fragment returned. The wrapper keeps callers
// from mistaking a result for something to wait on.
type RunResult struct {
	Result any `cbor:"result"`
}

// Remote owns the engine.
type Remote struct {
	factory  *StateFactory
	fetcher  Fetcher
	fs       afero.Fs
	enforcer *capability.Enforcer
	methods  bridge.Methods

	L         *lua.LState
	host      *bridge.Handle
	modules   *moduleLoader
	indexURL  string
	target    string
	installed map[string]bool
	loaded    bool
	closed    bool
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithFetcher sets how packages and files are fetched.
func WithFetcher(f Fetcher) RemoteOption {
	return func(r *Remote) { r.fetcher = f }
}

// WithFS sets the engine's virtual filesystem.
func WithFS(fs afero.Fs) RemoteOption {
	return func(r *Remote) { r.fs = fs }
}

// WithEnforcer shares a capability enforcer with the engine.
func WithEnforcer(e *capability.Enforcer) RemoteOption {
	return func(r *Remote) { r.enforcer = e }
}

// NewRemote creates an unloaded engine adapter.
func NewRemote(opts ...RemoteOption) *Remote {
	r := &Remote{
		factory:   NewStateFactory(),
		fs:        afero.NewMemMapFs(),
		enforcer:  capability.NewEnforcer(),
		installed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = fetch.New()
	}

	r.methods = bridge.Methods{
		MethodLoad:       r.load,
		MethodRun:        r.run,
		MethodImport:     r.pyimport,
		MethodInstall:    r.installPackage,
		MethodLoadFile:   r.loadFileFromURL,
		MethodInvalidate: r.invalidate,
		MethodMkdir:      r.mkdir,
		MethodWriteFile:  r.writeFile,
		MethodReadFile:   r.readFile,
		MethodGlobals:    r.globals,
		MethodClose:      r.close,
	}
	return r
}

// Invoke implements bridge.Receiver.
func (r *Remote) Invoke(ctx context.Context, method string, args bridge.Args) (any, error) {
	return r.methods.Invoke(ctx, method, args)
}

// engine returns the loaded state.
func (r *Remote) engine() (*lua.LState, error) {
	switch {
	case r.closed:
		return nil, ErrClosed
	case !r.loaded:
		return nil, ErrNotLoaded
	default:
		return r.L, nil
	}
}

func (r *Remote) load(ctx context.Context, args bridge.Args) (any, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.loaded {
		return nil, oops.Code(usererr.CodeAlreadyLoaded).
			In("interpreter").
			Errorf("loadInterpreter called twice")
	}

	var cfg LoadConfig
	if err := args.Decode(0, &cfg); err != nil {
		return nil, oops.In("interpreter").Wrapf(err, "decode load config")
	}
	stdioArg, err := args.At(1)
	if err != nil || stdioArg.Handle() == nil {
		return nil, oops.In("interpreter").Errorf("loadInterpreter requires a stdio handle")
	}
	host := stdioArg.Retain()

	L, err := r.initEngine(ctx, cfg, host)
	if err != nil {
		_ = host.Release(ctx)
		return nil, err
	}

	r.L = L
	r.host = host
	r.indexURL = cfg.IndexURL
	r.loaded = true
	return nil, nil
}

func (r *Remote) initEngine(ctx context.Context, cfg LoadConfig, host *bridge.Handle) (*lua.LState, error) {
	if err := r.enforcer.Grant(Subject, cfg.Capabilities); err != nil {
		return nil, usererr.BadConfig("invalid capabilities: %v", err)
	}
	for _, dir := range SearchPath {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, usererr.InterpreterLoadError(err)
		}
	}

	L, err := r.factory.NewState(ctx)
	if err != nil {
		return nil, usererr.InterpreterLoadError(err)
	}

	r.modules = newModuleLoader(r.fs)
	hm := &hostModule{
		fs:       r.fs,
		enforcer: r.enforcer,
		subject:  Subject,
		out:      &handleOutput{ctx: ctx, h: host},
		modules:  r.modules,
		target:   func() string { return r.target },
	}
	hm.register(L)

	if cfg.Bootstrap != "" {
		code, err := r.fetcher.Fetch(ctx, cfg.Bootstrap)
		if err != nil {
			L.Close()
			return nil, usererr.InterpreterLoadError(err)
		}
		if err := L.DoString(string(code)); err != nil {
			L.Close()
			return nil, usererr.InterpreterLoadError(fromLua(err))
		}
	}
	return L, nil
}

func (r *Remote) run(_ context.Context, args bridge.Args) (any, error) {
	L, err := r.engine()
	if err != nil {
		return nil, err
	}
	code, err := args.String(0)
	if err != nil {
		return nil, err
	}
	var target string
	if err := args.Optional(1, &target); err != nil {
		return nil, err
	}

	prev := r.target
	r.target = target
	defer func() { r.target = prev }()

	top := L.GetTop()
	defer L.SetTop(top)

	fn, err := L.LoadString(code)
	if err != nil {
		return nil, fromLua(err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return nil, fromLua(err)
	}

	var ret lua.LValue = lua.LNil
	if L.GetTop() > top {
		ret = L.Get(top + 1)
	}
	v, err := toGo(ret)
	if err != nil {
		return nil, fmt.Errorf("run result: %w", err)
	}
	return RunResult{Result: v}, nil
}

func (r *Remote) pyimport(_ context.Context, args bridge.Args) (any, error) {
	L, err := r.engine()
	if err != nil {
		return nil, err
	}
	name, err := args.String(0)
	if err != nil {
		return nil, err
	}
	v, err := r.modules.require(L, name)
	if err != nil {
		return nil, err
	}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("module %q is a %s, not a table", name, v.Type())
	}
	return bridge.Ref(&namespace{r: r, table: tbl, name: name}), nil
}

func (r *Remote) installPackage(ctx context.Context, args bridge.Args) (any, error) {
	if _, err := r.engine(); err != nil {
		return nil, err
	}
	var names []string
	if err := args.Optional(0, &names); err != nil {
		return nil, err
	}

	for _, name := range names {
		if err := r.install(ctx, name); err != nil {
			return nil, err
		}
	}
	if len(names) > 0 {
		r.modules.forgetMissing()
	}
	return nil, nil
}

func (r *Remote) install(ctx context.Context, name string) error {
	if !moduleName.MatchString(name) {
		return usererr.InstallError(name, errors.New("not a valid package name"))
	}
	if r.installed[name] {
		return nil
	}
	dst := path.Join(LibDir, strings.ReplaceAll(name, ".", "/")+".lua")
	if ok, _ := afero.Exists(r.fs, dst); ok {
		r.installed[name] = true
		return nil
	}
	if r.indexURL == "" {
		return usererr.InstallError(name, errors.New("no package index configured"))
	}

	src := strings.TrimSuffix(r.indexURL, "/") + "/" + name + ".lua"
	data, err := r.fetcher.Fetch(ctx, src)
	if err != nil {
		return usererr.InstallError(name, err)
	}
	if err := r.writeVFS(dst, data); err != nil {
		return usererr.InstallError(name, err)
	}
	r.installed[name] = true
	return nil
}

func (r *Remote) loadFileFromURL(ctx context.Context, args bridge.Args) (any, error) {
	if _, err := r.engine(); err != nil {
		return nil, err
	}
	dst, err := args.String(0)
	if err != nil {
		return nil, err
	}
	src, err := args.String(1)
	if err != nil {
		return nil, err
	}

	data, err := r.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, usererr.FetchError(src, err)
	}
	if err := r.writeVFS(resolvePath(dst), data); err != nil {
		return nil, err
	}
	r.modules.forgetMissing()
	return nil, nil
}

func (r *Remote) invalidate(context.Context, bridge.Args) (any, error) {
	if _, err := r.engine(); err != nil {
		return nil, err
	}
	r.modules.invalidate()
	return nil, nil
}

func (r *Remote) mkdir(_ context.Context, args bridge.Args) (any, error) {
	if _, err := r.engine(); err != nil {
		return nil, err
	}
	p, err := args.String(0)
	if err != nil {
		return nil, err
	}
	if err := r.fs.MkdirAll(resolvePath(p), 0o755); err != nil {
		return nil, oops.In("vfs").With("path", p).Wrap(err)
	}
	return nil, nil
}

func (r *Remote) writeFile(_ context.Context, args bridge.Args) (any, error) {
	if _, err := r.engine(); err != nil {
		return nil, err
	}
	p, err := args.String(0)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := args.Decode(1, &raw); err != nil {
		return nil, err
	}

	var data []byte
	switch x := raw.(type) {
	case string:
		data = []byte(x)
	case []byte:
		data = x
	case nil:
	default:
		return nil, fmt.Errorf("writeFile: data must be a string or bytes, got %T", raw)
	}
	return nil, r.writeVFS(resolvePath(p), data)
}

func (r *Remote) readFile(_ context.Context, args bridge.Args) (any, error) {
	if _, err := r.engine(); err != nil {
		return nil, err
	}
	p, err := args.String(0)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(r.fs, resolvePath(p))
	if err != nil {
		return nil, oops.In("vfs").With("path", p).Wrap(err)
	}
	return data, nil
}

func (r *Remote) globals(context.Context, bridge.Args) (any, error) {
	L, err := r.engine()
	if err != nil {
		return nil, err
	}
	return bridge.Ref(&namespace{r: r, table: L.G.Global, name: "_G"}), nil
}

func (r *Remote) close(ctx context.Context, _ bridge.Args) (any, error) {
	return nil, r.shutdown(ctx)
}

// Close tears the engine down. It is safe to call more than once.
func (r *Remote) Close() error {
	return r.shutdown(context.Background())
}

func (r *Remote) shutdown(ctx context.Context) error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.L != nil {
		r.L.Close()
		r.L = nil
	}
	if r.host != nil {
		_ = r.host.Release(ctx)
	}
	return nil
}

func (r *Remote) writeVFS(p string, data []byte) error {
	if err := r.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return oops.In("vfs").With("path", p).Wrap(err)
	}
	if err := afero.WriteFile(r.fs, p, data, 0o644); err != nil {
		return oops.In("vfs").With("path", p).Wrap(err)
	}
	return nil
}

// handleOutput forwards engine output to the caller's stdio object. The
// engine thread waits for each line to be delivered.
type handleOutput struct {
	ctx context.Context
	h   *bridge.Handle
}

func (o *handleOutput) Stdout(line string) error {
	_, err := o.h.CallSync(o.ctx, "stdout", line)
	return err
}

func (o *handleOutput) Stderr(line string) error {
	_, err := o.h.CallSync(o.ctx, "stderr", line)
	return err
}

func (o *handleOutput) Display(target, text string) error {
	_, err := o.h.CallSync(o.ctx, "display", target, text)
	return err
}
