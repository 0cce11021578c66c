// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin registers page plugins and dispatches lifecycle hooks to
// them.
//
// A plugin is either host-native (Go code, in process or behind go-plugin)
// or engine-native (a Lua module living inside the interpreter). Both expose
// the same optional hook set; the Manager calls them in registration order
// and keeps one plugin's failure from reaching the others.
package plugin

import (
	"context"

	"github.com/holomush/scriptkit/internal/bridge"
	"github.com/holomush/scriptkit/internal/config"
	"github.com/holomush/scriptkit/internal/interpreter"
)

// Hook names a lifecycle phase plugins can observe. The string form is the
// name an engine-native plugin defines its hook function under.
type Hook string

// Lifecycle hooks, in the order a page run reaches them.
const (
	HookConfigure        Hook = "configure"
	HookBeforeLaunch     Hook = "before_launch"
	HookAfterSetup       Hook = "after_setup"
	HookBeforeScriptExec Hook = "before_script_exec"
	HookAfterScriptExec  Hook = "after_script_exec"
	HookBeforeReplExec   Hook = "before_repl_exec"
	HookAfterReplExec    Hook = "after_repl_exec"
	HookAfterStartup     Hook = "after_startup"
	HookOnUserError      Hook = "on_user_error"
)

// AllHooks lists every hook.
var AllHooks = []Hook{
	HookConfigure,
	HookBeforeLaunch,
	HookAfterSetup,
	HookBeforeScriptExec,
	HookAfterScriptExec,
	HookBeforeReplExec,
	HookAfterReplExec,
	HookAfterStartup,
	HookOnUserError,
}

// ConfigOptions is passed to configure, before_launch and after_startup.
type ConfigOptions struct {
	Config config.AppConfig `cbor:"config"`
}

// SetupOptions is passed to after_setup. Engine-native plugins only see the
// config; the client does not cross the bridge.
type SetupOptions struct {
	Config      config.AppConfig    `cbor:"config"`
	Interpreter *interpreter.Client `cbor:"-"`
}

// ExecOptions is passed to the script and repl exec hooks. Result and Error
// are only set for the after_* hooks.
type ExecOptions struct {
	ID     string `cbor:"id"`
	Source string `cbor:"source"`
	Target string `cbor:"target,omitempty"`
	Result any    `cbor:"result,omitempty"`
	Error  string `cbor:"error,omitempty"`
}

// UserErrorOptions is passed to on_user_error.
type UserErrorOptions struct {
	Code        string `cbor:"code"`
	Message     string `cbor:"message"`
	MessageType string `cbor:"message_type"`
}

// Hooks is the optional hook set of a host-native plugin. Nil funcs are
// skipped.
type Hooks struct {
	Configure        func(ctx context.Context, opts ConfigOptions) error
	BeforeLaunch     func(ctx context.Context, opts ConfigOptions) error
	AfterSetup       func(ctx context.Context, opts SetupOptions) error
	BeforeScriptExec func(ctx context.Context, opts ExecOptions) error
	AfterScriptExec  func(ctx context.Context, opts ExecOptions) error
	BeforeReplExec   func(ctx context.Context, opts ExecOptions) error
	AfterReplExec    func(ctx context.Context, opts ExecOptions) error
	AfterStartup     func(ctx context.Context, opts ConfigOptions) error
	OnUserError      func(ctx context.Context, opts UserErrorOptions) error
}

// HostPlugin is implemented by Go plugins.
type HostPlugin interface {
	Name() string
	Hooks() Hooks
}

// Plugin is a registered plugin: either HostNative or EngineNative.
type Plugin interface {
	Name() string
	isPlugin()
}

// HostNative wraps a Go plugin.
type HostNative struct {
	Plugin HostPlugin
}

// Name implements Plugin.
func (p HostNative) Name() string { return p.Plugin.Name() }

func (HostNative) isPlugin() {}

// EngineNative is a Lua module table inside the interpreter. Its hooks are
// functions on that table, called with a single options table.
type EngineNative struct {
	PluginName string
	Handle     *bridge.Handle

	// hooks is the set of functions the table defines. When nil every hook
	// is attempted and a missing function counts as no hook.
	hooks map[Hook]bool
}

// NewEngineNative inspects the module table behind handle and records which
// hooks it defines.
func NewEngineNative(ctx context.Context, name string, handle *bridge.Handle) (*EngineNative, error) {
	v, err := handle.Call(ctx, interpreter.NamespaceKeys)
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := v.Decode(&keys); err != nil {
		return nil, err
	}

	hooks := make(map[Hook]bool, len(keys))
	for _, k := range keys {
		hooks[Hook(k)] = true
	}
	return &EngineNative{PluginName: name, Handle: handle, hooks: hooks}, nil
}

// Name implements Plugin.
func (p *EngineNative) Name() string { return p.PluginName }

func (*EngineNative) isPlugin() {}

// Defines reports whether the module table defines hook.
func (p *EngineNative) Defines(hook Hook) bool {
	if p.hooks == nil {
		return true
	}
	return p.hooks[hook]
}

// Funcs adapts plain functions to HostPlugin, for plugins built in code.
type Funcs struct {
	PluginName string
	Set        Hooks
}

// Name implements HostPlugin.
func (f *Funcs) Name() string { return f.PluginName }

// Hooks implements HostPlugin.
func (f *Funcs) Hooks() Hooks { return f.Set }
