// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package goplugin runs host-native plugins as separate processes through
// HashiCorp go-plugin over net/rpc.
package goplugin

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"

	"github.com/holomush/scriptkit/internal/plugin"
	"github.com/holomush/scriptkit/pkg/pluginsdk"
)

// DefaultHookTimeout bounds a single hook call into a plugin process.
const DefaultHookTimeout = 5 * time.Second

var (
	// ErrHostClosed is returned by Load after Close.
	ErrHostClosed = errors.New("plugin host is closed")
	// ErrPluginAlreadyLoaded is returned when a plugin name is loaded twice.
	ErrPluginAlreadyLoaded = errors.New("plugin already loaded")
	// ErrExecutableOutsideDir is returned when a manifest's executable does
	// not resolve inside the plugin directory.
	ErrExecutableOutsideDir = errors.New("plugin executable must live inside the plugin directory")
)

var _ plugin.Host = (*Host)(nil)

// PluginClient is the part of a go-plugin client the host uses.
type PluginClient interface {
	Client() (hashiplug.ClientProtocol, error)
	Exited() bool
	Kill()
}

// ClientFactory starts plugin processes.
type ClientFactory interface {
	NewClient(name, execPath string) PluginClient
}

// processFactory starts real plugin processes. Plugin logs go to stderr
// through hclog, named after the plugin.
type processFactory struct {
	level hclog.Level
}

func (f processFactory) NewClient(name, execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath is confined to the manifest's directory
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolNetRPC},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:   "plugin." + name,
			Output: os.Stderr,
			Level:  f.level,
		}),
	})
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithClientFactory replaces how plugin processes are started.
func WithClientFactory(f ClientFactory) HostOption {
	return func(h *Host) {
		if f != nil {
			h.factory = f
		}
	}
}

// WithHookTimeout bounds each hook call.
func WithHookTimeout(d time.Duration) HostOption {
	return func(h *Host) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Host starts binary plugins and keeps their processes until Close.
type Host struct {
	factory ClientFactory
	timeout time.Duration

	mu      sync.Mutex
	plugins map[string]PluginClient
	closed  bool
}

// NewHost creates a host that starts real plugin processes.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		factory: processFactory{level: hclog.Warn},
		timeout: DefaultHookTimeout,
		plugins: make(map[string]PluginClient),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load starts the plugin in dir and dispenses its hook service.
func (h *Host) Load(_ context.Context, manifest *plugin.Manifest, dir string) (plugin.HostPlugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	errb := oops.In("goplugin").With("plugin", manifest.Name)
	if h.closed {
		return nil, ErrHostClosed
	}
	if _, ok := h.plugins[manifest.Name]; ok {
		return nil, errb.Wrapf(ErrPluginAlreadyLoaded, "load %s", manifest.Name)
	}

	execPath, err := executablePath(dir, manifest.Executable)
	if err != nil {
		return nil, errb.Wrap(err)
	}
	if _, err := os.Stat(execPath); err != nil {
		return nil, errb.With("executable", execPath).Wrapf(err, "plugin executable not found")
	}

	client := h.factory.NewClient(manifest.Name, execPath)
	caller, err := dispense(client)
	if err != nil {
		client.Kill()
		return nil, errb.Wrap(err)
	}

	h.plugins[manifest.Name] = client
	return &remotePlugin{manifest: manifest, caller: caller, timeout: h.timeout}, nil
}

func dispense(client PluginClient) (HookCaller, error) {
	rpcClient, err := client.Client()
	if err != nil {
		return nil, oops.Wrapf(err, "failed to connect")
	}
	raw, err := rpcClient.Dispense(pluginsdk.PluginKey)
	if err != nil {
		return nil, oops.Wrapf(err, "failed to dispense %s", pluginsdk.PluginKey)
	}
	caller, ok := raw.(HookCaller)
	if !ok {
		return nil, oops.Errorf("plugin does not implement the hook service (got %T)", raw)
	}
	return caller, nil
}

// executablePath joins exe onto dir, refusing anything that climbs out.
func executablePath(dir, exe string) (string, error) {
	if filepath.IsAbs(exe) {
		return "", ErrExecutableOutsideDir
	}
	p := filepath.Join(dir, exe)
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrExecutableOutsideDir
	}
	return p, nil
}

// Plugins returns the names of plugins whose process is still running.
func (h *Host) Plugins() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	names := make([]string, 0, len(h.plugins))
	for name, c := range h.plugins {
		if !c.Exited() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Close kills every plugin process. Later loads fail with ErrHostClosed.
func (h *Host) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.plugins {
		c.Kill()
	}
	clear(h.plugins)
	h.closed = true
	return nil
}
