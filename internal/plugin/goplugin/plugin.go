// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package goplugin

import (
	"context"
	"errors"
	"time"

	goplugin "github.com/hashicorp/go-plugin"

	"github.com/holomush/scriptkit/internal/plugin"
	"github.com/holomush/scriptkit/internal/usererr"
	"github.com/holomush/scriptkit/pkg/pluginsdk"
)

// HandshakeConfig is imported from pluginsdk to ensure host and plugins
// use identical configuration. Do not define locally to prevent drift.
var HandshakeConfig = pluginsdk.HandshakeConfig

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]goplugin.Plugin{
	pluginsdk.PluginKey: &pluginsdk.RPCPlugin{},
}

// HookCaller delivers one hook to a plugin process.
type HookCaller interface {
	Hook(ctx context.Context, hook string, opts any) error
}

// remotePlugin is a loaded binary plugin seen as a plugin.HostPlugin.
type remotePlugin struct {
	manifest *plugin.Manifest
	caller   HookCaller
	timeout  time.Duration
}

// Name implements plugin.HostPlugin.
func (p *remotePlugin) Name() string { return p.manifest.Name }

// Hooks implements plugin.HostPlugin. Only hooks the manifest declares are
// set.
func (p *remotePlugin) Hooks() plugin.Hooks {
	var h plugin.Hooks
	if p.manifest.Declares(plugin.HookConfigure) {
		h.Configure = deliver[plugin.ConfigOptions](p, plugin.HookConfigure)
	}
	if p.manifest.Declares(plugin.HookBeforeLaunch) {
		h.BeforeLaunch = deliver[plugin.ConfigOptions](p, plugin.HookBeforeLaunch)
	}
	if p.manifest.Declares(plugin.HookAfterSetup) {
		h.AfterSetup = deliver[plugin.SetupOptions](p, plugin.HookAfterSetup)
	}
	if p.manifest.Declares(plugin.HookBeforeScriptExec) {
		h.BeforeScriptExec = deliver[plugin.ExecOptions](p, plugin.HookBeforeScriptExec)
	}
	if p.manifest.Declares(plugin.HookAfterScriptExec) {
		h.AfterScriptExec = deliver[plugin.ExecOptions](p, plugin.HookAfterScriptExec)
	}
	if p.manifest.Declares(plugin.HookBeforeReplExec) {
		h.BeforeReplExec = deliver[plugin.ExecOptions](p, plugin.HookBeforeReplExec)
	}
	if p.manifest.Declares(plugin.HookAfterReplExec) {
		h.AfterReplExec = deliver[plugin.ExecOptions](p, plugin.HookAfterReplExec)
	}
	if p.manifest.Declares(plugin.HookAfterStartup) {
		h.AfterStartup = deliver[plugin.ConfigOptions](p, plugin.HookAfterStartup)
	}
	if p.manifest.Declares(plugin.HookOnUserError) {
		h.OnUserError = deliver[plugin.UserErrorOptions](p, plugin.HookOnUserError)
	}
	return h
}

func deliver[T any](p *remotePlugin, hook plugin.Hook) func(context.Context, T) error {
	return func(ctx context.Context, opts T) error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return fromSDK(p.caller.Hook(callCtx, string(hook), opts))
	}
}

// fromSDK turns a plugin's UserError into the host's user error.
func fromSDK(err error) error {
	var ue *pluginsdk.UserError
	if !errors.As(err, &ue) {
		return err
	}
	var opts []usererr.Option
	if ue.Warning {
		opts = append(opts, usererr.AsWarning())
	}
	if ue.HTML {
		opts = append(opts, usererr.AsHTML())
	}
	return usererr.New(ue.Code, ue.Message, opts...)
}
