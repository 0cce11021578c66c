// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package interpreter

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptkit/internal/bridge"
	"github.com/holomush/scriptkit/internal/usererr"
)

// userErrorMarker tags error tables raised by scriptkit.user_error.
const userErrorMarker = "__scriptkit_user_error"

// ErrNotLoaded is returned by operations that need a loaded engine.
var ErrNotLoaded = errors.New("interpreter not loaded")

// ErrClosed is returned after the engine has been torn down.
var ErrClosed = errors.New("interpreter closed")

// InterpreterError is an exception raised by script code. Traceback holds the
// engine-formatted stack trace.
type InterpreterError struct {
	Message   string
	Traceback string
}

// Error implements error.
func (e *InterpreterError) Error() string {
	return e.Message
}

// BridgeEnvelope implements bridge.Enveloper.
func (e *InterpreterError) BridgeEnvelope() bridge.ErrorEnvelope {
	return bridge.ErrorEnvelope{
		Kind:      bridge.KindInterpreter,
		Message:   e.Message,
		Traceback: e.Traceback,
	}
}

// DecodeError rebuilds an InterpreterError on the calling side.
func DecodeError(env bridge.ErrorEnvelope) error {
	return &InterpreterError{Message: env.Message, Traceback: env.Traceback}
}

// fromLua converts an engine error into an InterpreterError.
func fromLua(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return &InterpreterError{Message: err.Error(), Traceback: err.Error()}
	}

	if t, ok := apiErr.Object.(*lua.LTable); ok && lua.LVAsBool(t.RawGetString(userErrorMarker)) {
		return userErrorFromTable(t)
	}

	msg := apiErr.Error()
	if apiErr.Object != nil && apiErr.Object != lua.LNil {
		msg = apiErr.Object.String()
	}
	tb := apiErr.StackTrace
	if tb == "" {
		tb = apiErr.Error()
	}
	if apiErr.Type == lua.ApiErrorSyntax {
		msg = fmt.Sprintf("syntax error: %s", msg)
	}
	return &InterpreterError{Message: msg, Traceback: tb}
}

func userErrorFromTable(t *lua.LTable) error {
	var opts []usererr.Option
	if lua.LVAsBool(t.RawGetString("warning")) {
		opts = append(opts, usererr.AsWarning())
	}
	if lua.LVAsBool(t.RawGetString("html")) {
		opts = append(opts, usererr.AsHTML())
	}
	return usererr.New(
		lua.LVAsString(t.RawGetString("code")),
		lua.LVAsString(t.RawGetString("message")),
		opts...,
	)
}
