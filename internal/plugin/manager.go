// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/scriptkit/internal/bridge"
	"github.com/holomush/scriptkit/internal/interpreter"
	"github.com/holomush/scriptkit/internal/usererr"
	"github.com/holomush/scriptkit/pkg/errutil"
)

// ErrNilPlugin is returned when registering a nil plugin.
var ErrNilPlugin = errors.New("plugin is nil")

// Manager owns the registration list and dispatches hooks over it.
type Manager struct {
	logger  *slog.Logger
	plugins []Plugin
	mu      sync.RWMutex
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger hook failures are reported to.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates an empty plugin manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Register appends p to the dispatch order. Plugins are never removed.
func (m *Manager) Register(p Plugin) error {
	if p == nil {
		return ErrNilPlugin
	}
	if hn, ok := p.(HostNative); ok && hn.Plugin == nil {
		return ErrNilPlugin
	}
	if en, ok := p.(*EngineNative); ok && (en == nil || en.Handle == nil) {
		return ErrNilPlugin
	}

	m.mu.Lock()
	m.plugins = append(m.plugins, p)
	m.mu.Unlock()

	m.logger.Debug("plugin registered", "plugin", p.Name())
	return nil
}

// Plugins returns the registered plugins in dispatch order.
func (m *Manager) Plugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Plugin, len(m.plugins))
	copy(out, m.plugins)
	return out
}

// Configure runs the configure hook. A user error from any plugin aborts
// dispatch and is returned; other failures are logged.
func (m *Manager) Configure(ctx context.Context, opts ConfigOptions) error {
	return m.dispatch(ctx, HookConfigure, opts, true)
}

// BeforeLaunch runs the before_launch hook.
func (m *Manager) BeforeLaunch(ctx context.Context, opts ConfigOptions) {
	_ = m.dispatch(ctx, HookBeforeLaunch, opts, false)
}

// AfterSetup runs the after_setup hook. A user error aborts; other failures
// are logged.
func (m *Manager) AfterSetup(ctx context.Context, opts SetupOptions) error {
	return m.dispatch(ctx, HookAfterSetup, opts, true)
}

// BeforeScriptExec runs the before_script_exec hook.
func (m *Manager) BeforeScriptExec(ctx context.Context, opts ExecOptions) {
	_ = m.dispatch(ctx, HookBeforeScriptExec, opts, false)
}

// AfterScriptExec runs the after_script_exec hook.
func (m *Manager) AfterScriptExec(ctx context.Context, opts ExecOptions) {
	_ = m.dispatch(ctx, HookAfterScriptExec, opts, false)
}

// BeforeReplExec runs the before_repl_exec hook.
func (m *Manager) BeforeReplExec(ctx context.Context, opts ExecOptions) {
	_ = m.dispatch(ctx, HookBeforeReplExec, opts, false)
}

// AfterReplExec runs the after_repl_exec hook.
func (m *Manager) AfterReplExec(ctx context.Context, opts ExecOptions) {
	_ = m.dispatch(ctx, HookAfterReplExec, opts, false)
}

// AfterStartup runs the after_startup hook.
func (m *Manager) AfterStartup(ctx context.Context, opts ConfigOptions) {
	_ = m.dispatch(ctx, HookAfterStartup, opts, false)
}

// OnUserError runs the on_user_error hook.
func (m *Manager) OnUserError(ctx context.Context, opts UserErrorOptions) {
	_ = m.dispatch(ctx, HookOnUserError, opts, false)
}

// dispatch calls hook on every plugin in registration order. The list is
// snapshotted so hooks may register further plugins without deadlocking;
// those join from the next dispatch on.
func (m *Manager) dispatch(ctx context.Context, hook Hook, opts any, gated bool) error {
	for _, p := range m.Plugins() {
		err := m.invoke(ctx, p, hook, opts)
		if err == nil {
			continue
		}
		if gated && usererr.Is(err) {
			return err
		}
		hookFailures.WithLabelValues(p.Name(), string(hook)).Inc()
		errutil.LogError(m.logger.With("plugin", p.Name(), "hook", string(hook)), "plugin hook failed", err)
	}
	return nil
}

func (m *Manager) invoke(ctx context.Context, p Plugin, hook Hook, opts any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("PLUGIN_PANIC").
				With("plugin", p.Name()).
				With("hook", string(hook)).
				Errorf("hook panicked: %v", r)
		}
	}()

	switch p := p.(type) {
	case HostNative:
		return callHostHook(ctx, p.Plugin.Hooks(), hook, opts)
	case *EngineNative:
		return callEngineHook(ctx, p, hook, opts)
	default:
		return fmt.Errorf("unsupported plugin type %T", p)
	}
}

func callHostHook(ctx context.Context, h Hooks, hook Hook, opts any) error {
	switch hook {
	case HookConfigure:
		return callIf(ctx, h.Configure, opts)
	case HookBeforeLaunch:
		return callIf(ctx, h.BeforeLaunch, opts)
	case HookAfterSetup:
		return callIf(ctx, h.AfterSetup, opts)
	case HookBeforeScriptExec:
		return callIf(ctx, h.BeforeScriptExec, opts)
	case HookAfterScriptExec:
		return callIf(ctx, h.AfterScriptExec, opts)
	case HookBeforeReplExec:
		return callIf(ctx, h.BeforeReplExec, opts)
	case HookAfterReplExec:
		return callIf(ctx, h.AfterReplExec, opts)
	case HookAfterStartup:
		return callIf(ctx, h.AfterStartup, opts)
	case HookOnUserError:
		return callIf(ctx, h.OnUserError, opts)
	default:
		return fmt.Errorf("unknown hook %q", hook)
	}
}

func callIf[T any](ctx context.Context, fn func(context.Context, T) error, opts any) error {
	if fn == nil {
		return nil
	}
	o, ok := opts.(T)
	if !ok {
		return fmt.Errorf("hook options: got %T, want %T", opts, o)
	}
	return fn(ctx, o)
}

// callEngineHook calls the hook function on the plugin's module table and
// waits for it. A returned reference is released at once.
func callEngineHook(ctx context.Context, p *EngineNative, hook Hook, opts any) error {
	if !p.Defines(hook) {
		return nil
	}
	v, err := p.Handle.Call(ctx, interpreter.NamespaceCall, string(hook), opts)
	if err != nil {
		if p.hooks == nil && isMissingFunction(err) {
			return nil
		}
		return err
	}
	if h := v.Handle(); h != nil {
		return h.Release(ctx)
	}
	return nil
}

func isMissingFunction(err error) bool {
	var remote *bridge.RemoteError
	return errors.As(err, &remote) && remote.Envelope.Kind == bridge.KindNotFound
}
