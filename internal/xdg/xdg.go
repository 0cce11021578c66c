// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg provides XDG Base Directory paths for scriptkit.
package xdg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const appName = "scriptkit"

// ErrNoHome is returned when neither the XDG variable nor HOME is set.
var ErrNoHome = errors.New("cannot resolve XDG directory: HOME is not set")

func resolve(env string, fallback ...string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", ErrNoHome
	}
	parts := append([]string{home}, fallback...)
	return filepath.Join(append(parts, appName)...), nil
}

// ConfigDir returns the config directory; its plugins subdirectory holds
// installed binary plugins. Checks XDG_CONFIG_HOME first, falls back to
// ~/.config.
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// CacheDir returns the cache directory used for fetched packages and files.
// Checks XDG_CACHE_HOME first, falls back to ~/.cache.
func CacheDir() (string, error) {
	return resolve("XDG_CACHE_HOME", ".cache")
}

// EnsureDir creates a directory and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
