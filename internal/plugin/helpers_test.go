// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scriptkit/internal/interpreter"
	"github.com/holomush/scriptkit/internal/plugin"
	"github.com/holomush/scriptkit/internal/stdio"
)

// staticFetcher serves fixed bodies.
type staticFetcher map[string]string

func (f staticFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	body, ok := f[ref]
	if !ok {
		return nil, fmt.Errorf("404: %s", ref)
	}
	return []byte(body), nil
}

// startEngine starts a loaded interpreter on the calling goroutine's side
// of an in-memory bridge.
func startEngine(t *testing.T, fetcher staticFetcher) *interpreter.Session {
	t.Helper()
	ctx := context.Background()
	s, err := interpreter.Start(ctx, interpreter.ModeMain,
		interpreter.WithFetcher(fetcher),
		interpreter.WithFS(afero.NewMemMapFs()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	out := &interpreter.StdioOutput{
		Stdio:       stdio.NewMultiplexer(),
		DisplayFunc: func(string, string) error { return nil },
	}
	require.NoError(t, s.Load(ctx, interpreter.LoadConfig{}, out))
	return s
}

// importPlugin writes src as a plugin module and imports it.
func importPlugin(t *testing.T, s *interpreter.Session, name, src string) *plugin.EngineNative {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WriteFile(ctx, interpreter.PluginsDir+"/"+name+".lua", []byte(src)))
	h, err := s.Import(ctx, name)
	require.NoError(t, err)
	p, err := plugin.NewEngineNative(ctx, name, h)
	require.NoError(t, err)
	return p
}

// global reads a global from the engine.
func global(t *testing.T, s *interpreter.Session, name string) any {
	t.Helper()
	v, err := s.Globals().Call(context.Background(), interpreter.NamespaceGet, name)
	require.NoError(t, err)
	out, err := v.Any()
	require.NoError(t, err)
	return out
}

// calls records hook invocations across plugins.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, s)
}

func (c *calls) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// bufferLogger returns a JSON logger writing to a buffer.
func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}
