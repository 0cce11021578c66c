// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scriptkit/internal/observability"
	"github.com/holomush/scriptkit/internal/plugin"
)

const helloPage = `<!doctype html>
<html><body>
<script type="lua" id="hi">print("hello from lua") scriptkit.display("shown")</script>
</body></html>`

const workerPage = `<body>
<script type="lua-config">execution_thread: worker</script>
<script type="lua" id="w">scriptkit.display("from the worker")</script>
</body>`

// syncBuffer is a bytes.Buffer safe for the logger and script output to
// share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// mockPluginHost implements plugin.Host for testing.
type mockPluginHost struct {
	mu     sync.Mutex
	closed bool
}

func (m *mockPluginHost) Load(context.Context, *plugin.Manifest, string) (plugin.HostPlugin, error) {
	return nil, errors.New("no binary plugins in tests")
}

func (m *mockPluginHost) Plugins() []string { return nil }

func (m *mockPluginHost) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockPluginHost) wasClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockObservabilityServer implements ObservabilityServer for testing.
type mockObservabilityServer struct {
	addr     string
	ready    observability.ReadinessChecker
	report   observability.ReportFunc
	started  bool
	stopped  bool
	startErr error
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = true
	return make(chan error, 1), nil
}

func (m *mockObservabilityServer) Stop(context.Context) error {
	m.stopped = true
	return nil
}

func (m *mockObservabilityServer) Addr() string { return m.addr }

func (m *mockObservabilityServer) SetReportFunc(fn observability.ReportFunc) { m.report = fn }

type runResult struct {
	stdout *syncBuffer
	stderr *syncBuffer
	err    error
}

func testDeps(t *testing.T, env map[string]string) (*RunDeps, *mockPluginHost) {
	t.Helper()
	host := &mockPluginHost{}
	root := t.TempDir()
	return &RunDeps{
		PluginHostFactory: func() plugin.Host { return host },
		CacheDirGetter:    func() (string, error) { return filepath.Join(root, "cache"), nil },
		ConfigDirGetter:   func() (string, error) { return filepath.Join(root, "config"), nil },
		Getenv:            func(k string) string { return env[k] },
	}, host
}

func execRun(t *testing.T, deps *RunDeps, stdin string, args ...string) runResult {
	t.Helper()
	res := runResult{stdout: &syncBuffer{}, stderr: &syncBuffer{}}
	cmd := newRunCmd(&globalFlags{logFormat: "text", logLevel: "warn"}, deps)
	cmd.SetOut(res.stdout)
	cmd.SetErr(res.stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	res.err = cmd.Execute()
	return res
}

func writePage(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestRun_ExecutesPage(t *testing.T) {
	deps, host := testDeps(t, nil)
	res := execRun(t, deps, "", writePage(t, helloPage), "-o", "-")

	require.NoError(t, res.err)
	out := res.stdout.String()
	assert.True(t, strings.HasPrefix(out, "hello from lua\n"), "script output comes before the rendered page: %q", out)
	assert.Contains(t, out, `id="hi-output"`)
	assert.Contains(t, out, "shown")
	assert.True(t, host.wasClosed(), "plugin host is closed after the run")
}

func TestRun_WritesOutputFile(t *testing.T) {
	deps, _ := testDeps(t, nil)
	out := filepath.Join(t.TempDir(), "rendered.html")
	res := execRun(t, deps, "", writePage(t, helloPage), "--output", out)

	require.NoError(t, res.err)
	data, err := os.ReadFile(out) //nolint:gosec // test temp file
	require.NoError(t, err)
	assert.Contains(t, string(data), "shown")
	assert.Equal(t, "hello from lua\n", res.stdout.String())
}

func TestRun_ReadsStdin(t *testing.T) {
	deps, _ := testDeps(t, nil)
	res := execRun(t, deps, helloPage, "-", "--no-cache")

	require.NoError(t, res.err)
	assert.Equal(t, "hello from lua\n", res.stdout.String())
}

func TestRun_MissingPage(t *testing.T) {
	deps, _ := testDeps(t, nil)
	res := execRun(t, deps, "", filepath.Join(t.TempDir(), "nope.html"))

	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "failed to open page")
}

func TestRun_UserErrorFailsRun(t *testing.T) {
	deps, _ := testDeps(t, nil)
	res := execRun(t, deps, "", writePage(t, workerPage))

	require.ErrorIs(t, res.err, errRunFailed)
	assert.Contains(t, res.stderr.String(), "scriptkit: (BAD_CONFIG)")
}

func TestRun_IsolatedFromEnv(t *testing.T) {
	deps, _ := testDeps(t, map[string]string{isolatedEnv: "true"})
	res := execRun(t, deps, "", writePage(t, workerPage), "-o", "-")

	require.NoError(t, res.err)
	assert.Contains(t, res.stdout.String(), "from the worker")
}

func TestRun_IsolatedFlagOverridesEnv(t *testing.T) {
	deps, _ := testDeps(t, map[string]string{isolatedEnv: "true"})
	res := execRun(t, deps, "", writePage(t, workerPage), "--isolated=false")

	require.ErrorIs(t, res.err, errRunFailed)
}

func TestRun_InvalidIsolatedEnv(t *testing.T) {
	deps, _ := testDeps(t, map[string]string{isolatedEnv: "maybe"})
	res := execRun(t, deps, "", writePage(t, helloPage))

	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), isolatedEnv)
}

func TestRun_ExecutionThreadFlag(t *testing.T) {
	deps, _ := testDeps(t, nil)
	res := execRun(t, deps, "", writePage(t, helloPage), "--execution-thread", "worker")

	require.ErrorIs(t, res.err, errRunFailed, "flag overrides still need an isolated page")
	assert.Contains(t, res.stderr.String(), "(BAD_CONFIG)")
}

func TestRun_CacheDirErrorIsNotFatal(t *testing.T) {
	deps, _ := testDeps(t, nil)
	deps.CacheDirGetter = func() (string, error) { return "", errors.New("no home") }
	res := execRun(t, deps, "", writePage(t, helloPage))

	require.NoError(t, res.err)
	assert.Contains(t, res.stderr.String(), "fetch cache disabled")
}

func TestRun_BinaryPluginsDisabled(t *testing.T) {
	deps, _ := testDeps(t, nil)
	deps.PluginHostFactory = func() plugin.Host {
		t.Error("plugin host must not be created")
		return &mockPluginHost{}
	}
	res := execRun(t, deps, "", writePage(t, helloPage), "--binary-plugins=false")

	require.NoError(t, res.err)
}

func TestRun_ObservabilityServer(t *testing.T) {
	deps, _ := testDeps(t, nil)
	srv := &mockObservabilityServer{addr: "127.0.0.1:9100"}
	deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) (ObservabilityServer, error) {
		assert.Equal(t, "127.0.0.1:0", addr)
		srv.ready = ready
		return srv, nil
	}
	res := execRun(t, deps, "", writePage(t, helloPage), "--metrics-addr", "127.0.0.1:0")

	require.NoError(t, res.err)
	assert.True(t, srv.started)
	assert.True(t, srv.stopped)
	require.NotNil(t, srv.report)
	report := srv.report()
	assert.Equal(t, "ready", report.Phase)
	assert.Empty(t, report.Failure)
	assert.Empty(t, report.Banners)
	assert.True(t, srv.ready())
}

func TestRun_ObservabilityServerErrors(t *testing.T) {
	t.Run("factory", func(t *testing.T) {
		deps, _ := testDeps(t, nil)
		deps.ObservabilityServerFactory = func(string, observability.ReadinessChecker) (ObservabilityServer, error) {
			return nil, errors.New("boom")
		}
		res := execRun(t, deps, "", writePage(t, helloPage), "--metrics-addr", ":0")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "failed to create observability server")
	})

	t.Run("start", func(t *testing.T) {
		deps, _ := testDeps(t, nil)
		deps.ObservabilityServerFactory = func(string, observability.ReadinessChecker) (ObservabilityServer, error) {
			return &mockObservabilityServer{startErr: errors.New("port in use")}, nil
		}
		res := execRun(t, deps, "", writePage(t, helloPage), "--metrics-addr", ":0")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "failed to start observability server")
	})
}

func TestRun_BadLogLevel(t *testing.T) {
	deps, _ := testDeps(t, nil)
	cmd := newRunCmd(&globalFlags{logFormat: "text", logLevel: "loud"}, deps)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{writePage(t, helloPage)})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set up logging")
}

func TestRun_BarePluginNameUsesConfigDir(t *testing.T) {
	deps, _ := testDeps(t, nil)
	dir, err := deps.ConfigDirGetter()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plugins", "echo"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugins", "echo", "plugin.yaml"), []byte(`
name: echo
version: 1.0.0
executable: echo-plugin
`), 0o600))

	res := execRun(t, deps, "", writePage(t, `<body><script type="lua-config">plugins: [echo]</script></body>`))

	require.ErrorIs(t, res.err, errRunFailed)
	assert.Contains(t, res.stderr.String(), "(BAD_PLUGIN_FILE)")
	assert.Contains(t, res.stderr.String(), "no binary plugins in tests", "the manifest was found and handed to the host")
}
