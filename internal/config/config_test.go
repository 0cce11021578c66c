// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scriptkit/internal/config"
	"github.com/holomush/scriptkit/internal/usererr"
	"github.com/holomush/scriptkit/pkg/errutil"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.Source{})
	require.NoError(t, err)

	assert.Equal(t, config.ThreadMain, cfg.ExecutionThread)
	assert.False(t, cfg.Worker())
	assert.Equal(t, config.DefaultCapabilities, cfg.Capabilities)
	assert.Empty(t, cfg.Packages)
}

func TestLoad_File(t *testing.T) {
	p := writeFile(t, `
name: demo
packages: [greeter, "util.strings"]
plugins: [plugins/hello.lua]
execution_thread: worker
index_url: https://index.example.com/lua
capabilities: []
fetch:
  - from: data/
    files: [a.csv, b.csv]
    to_folder: /data
`)
	cfg, err := config.Load(config.Source{File: p})
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, []string{"greeter", "util.strings"}, cfg.Packages)
	assert.Equal(t, []string{"plugins/hello.lua"}, cfg.Plugins)
	assert.True(t, cfg.Worker())
	assert.Equal(t, "https://index.example.com/lua", cfg.IndexURL)
	assert.Empty(t, cfg.Capabilities, "explicit empty list disables defaults")
	require.Len(t, cfg.Fetch, 1)
	assert.Equal(t, []string{"a.csv", "b.csv"}, cfg.Fetch[0].Files)
}

func TestLoad_InlineOverridesFileAndFlagsOverrideBoth(t *testing.T) {
	p := writeFile(t, "name: from-file\nexecution_thread: worker\n")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--execution-thread", "main", "--package", "a", "--package", "b"}))

	cfg, err := config.Load(config.Source{
		File:   p,
		Inline: []byte("name: inline\n"),
		Flags:  fs,
	})
	require.NoError(t, err)

	assert.Equal(t, "inline", cfg.Name)
	assert.Equal(t, config.ThreadMain, cfg.ExecutionThread)
	assert.Equal(t, []string{"a", "b"}, cfg.Packages)
}

func TestLoad_UnchangedFlagsDoNotOverride(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := config.Load(config.Source{Inline: []byte("name: kept\n"), Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, "kept", cfg.Name)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		inline string
		file   string
	}{
		{name: "unknown execution thread", inline: "execution_thread: gpu\n"},
		{name: "unknown key", inline: "pakages: [a]\n"},
		{name: "wrong type", inline: "packages: greeter\n"},
		{name: "malformed yaml", inline: "packages: [a\n"},
		{name: "files with to_file", inline: "fetch:\n  - from: x/\n    files: [a]\n    to_file: b\n"},
		{name: "directory without to_file", inline: "fetch:\n  - from: https://example.com/data/\n"},
		{name: "missing file", file: "/does/not/exist.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(config.Source{File: tt.file, Inline: []byte(tt.inline)})
			require.Error(t, err)
			assert.True(t, usererr.Is(err))
			errutil.AssertErrorCode(t, err, usererr.CodeBadConfig)
		})
	}
}

func TestAppConfig_FetchPaths(t *testing.T) {
	cfg := config.AppConfig{Fetch: []config.FetchConfig{
		{From: "https://example.com/data/", Files: []string{"a.csv", "sub/b.csv"}, ToFolder: "/data"},
		{From: "https://example.com/lib/util.lua"},
		{From: "https://example.com/raw", ToFile: "renamed.lua", ToFolder: "lib"},
		{Files: []string{"local.txt"}},
	}}

	paths, err := cfg.FetchPaths()
	require.NoError(t, err)
	assert.Equal(t, []config.FetchPath{
		{URL: "https://example.com/data/a.csv", Path: "/data/a.csv"},
		{URL: "https://example.com/data/sub/b.csv", Path: "/data/sub/b.csv"},
		{URL: "https://example.com/lib/util.lua", Path: "util.lua"},
		{URL: "https://example.com/raw", Path: "lib/renamed.lua"},
		{URL: "local.txt", Path: "local.txt"},
	}, paths)
}

func TestGenerateSchema(t *testing.T) {
	data, err := config.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, config.SchemaID, schema["$id"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"name", "packages", "fetch", "plugins", "execution_thread", "index_url", "capabilities"} {
		assert.Contains(t, props, key)
	}
}
