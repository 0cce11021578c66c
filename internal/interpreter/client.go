// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package interpreter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holomush/scriptkit/internal/bridge"
)

// Client forwards interpreter operations across the bridge.
type Client struct {
	remote *bridge.Handle

	mu      sync.Mutex
	globals *bridge.Handle
}

// NewClient wraps a handle to a Remote.
func NewClient(remote *bridge.Handle) *Client {
	return &Client{remote: remote}
}

// Load initializes the engine. Output from scripts is delivered to out.
func (c *Client) Load(ctx context.Context, cfg LoadConfig, out Output) error {
	if _, err := c.remote.Call(ctx, MethodLoad, cfg, bridge.Ref(&hostIO{out: out})); err != nil {
		return err
	}

	v, err := c.remote.Call(ctx, MethodGlobals)
	if err != nil {
		return fmt.Errorf("fetch globals: %w", err)
	}
	c.mu.Lock()
	c.globals = v.Handle()
	c.mu.Unlock()
	return nil
}

// Run executes a code fragment. Display calls without an explicit target go
// to target.
func (c *Client) Run(ctx context.Context, code, target string) (*RunResult, error) {
	args := []any{code}
	if target != "" {
		args = append(args, target)
	}
	v, err := c.remote.Call(ctx, MethodRun, args...)
	if err != nil {
		return nil, err
	}
	var res RunResult
	if err := v.Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Import loads a module and returns a handle to it. The caller releases the
// handle.
func (c *Client) Import(ctx context.Context, name string) (*bridge.Handle, error) {
	v, err := c.remote.Call(ctx, MethodImport, name)
	if err != nil {
		return nil, err
	}
	h := v.Handle()
	if h == nil {
		return nil, fmt.Errorf("import %s: expected a module handle", name)
	}
	return h, nil
}

// InstallPackage installs packages from the configured index. Installed
// packages are skipped.
func (c *Client) InstallPackage(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := c.remote.Call(ctx, MethodInstall, names)
	return err
}

// LoadFileFromURL fetches url into the VFS at path, replacing any existing
// file.
func (c *Client) LoadFileFromURL(ctx context.Context, path, url string) error {
	_, err := c.remote.Call(ctx, MethodLoadFile, path, url)
	return err
}

// InvalidateModulePathCache makes newly written modules importable.
func (c *Client) InvalidateModulePathCache(ctx context.Context) error {
	_, err := c.remote.Call(ctx, MethodInvalidate)
	return err
}

// Mkdir creates a VFS directory and its parents.
func (c *Client) Mkdir(ctx context.Context, path string) error {
	_, err := c.remote.Call(ctx, MethodMkdir, path)
	return err
}

// WriteFile writes data to a VFS file.
func (c *Client) WriteFile(ctx context.Context, path string, data []byte) error {
	_, err := c.remote.Call(ctx, MethodWriteFile, path, data)
	return err
}

// ReadFile reads a VFS file.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	v, err := c.remote.Call(ctx, MethodReadFile, path)
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := v.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// Globals returns the handle to the engine's top-level namespace, or nil
// before Load. It stays valid until Close.
func (c *Client) Globals() *bridge.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.globals
}

// Close tears the engine down. A severed bridge is not an error here.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	g := c.globals
	c.globals = nil
	c.mu.Unlock()
	if g != nil {
		_ = g.Release(ctx)
	}

	_, err := c.remote.Call(ctx, MethodClose)
	if errors.Is(err, bridge.ErrBridgeSevered) {
		return nil
	}
	return err
}
