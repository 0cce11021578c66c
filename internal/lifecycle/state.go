// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"errors"
	"fmt"
)

// State is a phase of a page run.
type State int

// States, in the order a run enters them. Failed is reachable from any
// state except itself.
const (
	StateInit State = iota
	StateConfigLoaded
	StatePluginsConfigured
	StateInterpreterLoading
	StateInterpreterReady
	StateVenvSetup
	StateUserPluginsFetched
	StateScriptsExecuting
	StateReady
	StateFailed
)

func (s State) String() string {
	if s < StateInit || s > StateFailed {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return [...]string{
		"init",
		"config_loaded",
		"plugins_configured",
		"interpreter_loading",
		"interpreter_ready",
		"venv_setup",
		"user_plugins_fetched",
		"scripts_executing",
		"ready",
		"failed",
	}[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// ErrIllegalTransition is returned when a state is entered out of order or
// twice.
var ErrIllegalTransition = errors.New("illegal lifecycle transition")

// machine tracks the current state. It is not safe for concurrent use; the
// controller guards it.
type machine struct {
	state  State
	reason error
}

// enter moves to next. Only the successor of the current state, or Failed,
// may be entered.
func (m *machine) enter(next State) error {
	if m.state == StateFailed {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
	}
	if next != StateFailed && next != m.state+1 {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
	}
	m.state = next
	return nil
}

// fail enters Failed with reason. Failing twice keeps the first reason.
func (m *machine) fail(reason error) bool {
	if m.state == StateFailed {
		return false
	}
	m.state = StateFailed
	m.reason = reason
	return true
}
