// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scriptkit/internal/usererr"
)

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err carries key=value in its oops context.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	got, present := oopsErr.Context()[key]
	require.True(t, present, "context key %q missing", key)
	assert.Equal(t, value, got)
}

// AssertUserError asserts that err would be shown to the page author with
// the given code, and returns its banner info.
func AssertUserError(t *testing.T, err error, code string) usererr.Info {
	t.Helper()
	info, ok := usererr.Extract(err)
	require.True(t, ok, "expected user error, got %v", err)
	assert.Equal(t, code, info.Code)
	return info
}

// AssertBanner asserts the kind and rendered text of a user error's banner.
func AssertBanner(t *testing.T, err error, kind usererr.MessageType, text string) {
	t.Helper()
	info, ok := usererr.Extract(err)
	require.True(t, ok, "expected user error, got %v", err)
	assert.Equal(t, kind, info.MessageType)
	assert.Equal(t, text, usererr.BannerText(info))
}

// AssertInternalError asserts that err is a failure that must not be shown
// as a banner.
func AssertInternalError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.False(t, usererr.Is(err), "unexpected user error: %v", err)
}
