// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_EntersEachStateOnceInOrder(t *testing.T) {
	var m machine
	for st := StateConfigLoaded; st <= StateReady; st++ {
		require.NoError(t, m.enter(st), "entering %s", st)
	}
	assert.Equal(t, StateReady, m.state)
	assert.True(t, m.state.Terminal())
}

func TestMachine_RejectsSkipsAndRepeats(t *testing.T) {
	var m machine
	err := m.enter(StateInterpreterLoading)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateInit, m.state, "a rejected transition leaves the state alone")

	require.NoError(t, m.enter(StateConfigLoaded))
	assert.ErrorIs(t, m.enter(StateConfigLoaded), ErrIllegalTransition)
	assert.ErrorIs(t, m.enter(StateInit), ErrIllegalTransition)
}

func TestMachine_FailedFromAnyState(t *testing.T) {
	for st := StateInit; st <= StateReady; st++ {
		t.Run(st.String(), func(t *testing.T) {
			m := machine{state: st}
			reason := errors.New("boom")
			assert.True(t, m.fail(reason))
			assert.Equal(t, StateFailed, m.state)
			assert.Equal(t, reason, m.reason)

			assert.False(t, m.fail(errors.New("second")), "the first reason sticks")
			assert.Equal(t, reason, m.reason)
			assert.ErrorIs(t, m.enter(StateReady), ErrIllegalTransition)
			assert.ErrorIs(t, m.enter(StateFailed), ErrIllegalTransition)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "venv_setup", StateVenvSetup.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(42)", State(42).String())
}
