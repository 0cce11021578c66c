// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name string
		env  string
		fn   func() (string, error)
		def  string
	}{
		{"config", "XDG_CONFIG_HOME", ConfigDir, "/home/testuser/.config/scriptkit"},
		{"cache", "XDG_CACHE_HOME", CacheDir, "/home/testuser/.cache/scriptkit"},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/env", func(t *testing.T) {
			t.Setenv(tt.env, "/custom")
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, "/custom/scriptkit", got)
		})
		t.Run(tt.name+"/default", func(t *testing.T) {
			t.Setenv(tt.env, "")
			t.Setenv("HOME", "/home/testuser")
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.def, got)
		})
		t.Run(tt.name+"/no home", func(t *testing.T) {
			t.Setenv(tt.env, "")
			t.Setenv("HOME", "")
			_, err := tt.fn()
			assert.ErrorIs(t, err, ErrNoHome)
		})
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir), "second call is a no-op")

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
