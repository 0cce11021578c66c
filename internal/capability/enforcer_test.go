// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scriptkit/internal/capability"
)

func TestEnforcer_Check(t *testing.T) {
	tests := []struct {
		name       string
		grants     []string
		capability string
		want       bool
	}{
		{"exact match", []string{"fs.read"}, "fs.read", true},
		{"single segment wildcard", []string{"fs.*"}, "fs.write", true},
		{"single segment wildcard stops at separator", []string{"fs.*"}, "fs.read.meta", false},
		{"double wildcard crosses segments", []string{"fs.**"}, "fs.read.meta", true},
		{"root wildcard", []string{"**"}, "fs.write", true},
		{"other capability", []string{"fs.read"}, "fs.write", false},
		{"prefix is not a match", []string{"fs"}, "fs.read", false},
		{"no grants", []string{}, "fs.read", false},
		{"empty capability", []string{"**"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := capability.NewEnforcer()
			require.NoError(t, e.Grant("page", tt.grants))
			assert.Equal(t, tt.want, e.Check("page", tt.capability))
		})
	}
}

func TestEnforcer_UnknownSubjectDenied(t *testing.T) {
	var e capability.Enforcer
	assert.False(t, e.Check("page", capability.FSRead))
	assert.ErrorIs(t, e.Require("page", capability.FSRead), capability.ErrDenied)
}

func TestEnforcer_Grant_InvalidPatternIsAtomic(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.Grant("page", []string{"fs.read"}))

	err := e.Grant("page", []string{"fs.write", "fs.[unclosed"})
	require.Error(t, err)
	assert.Equal(t, []string{"fs.read"}, e.Grants("page"))

	assert.Error(t, e.Grant("page", []string{""}))
	assert.Error(t, e.Grant("", []string{"fs.read"}))
}

func TestEnforcer_RevokeAndGrantsCopy(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.Grant("page", []string{"fs.*"}))

	got := e.Grants("page")
	got[0] = "**"
	assert.Equal(t, []string{"fs.*"}, e.Grants("page"))

	e.Revoke("page")
	assert.Nil(t, e.Grants("page"))
	assert.NoError(t, e.Grant("page", nil))
	assert.False(t, e.Check("page", capability.FSRead))
}
