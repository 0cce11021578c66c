// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package interpreter

import (
	"log/slog"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptkit/internal/capability"
)

// Output receives what scripts print and display.
type Output interface {
	Stdout(line string) error
	Stderr(line string) error
	Display(target, text string) error
}

// hostModule is the "scriptkit" table scripts use to reach the host.
type hostModule struct {
	fs       afero.Fs
	enforcer *capability.Enforcer
	subject  string
	out      Output
	modules  *moduleLoader
	target   func() string
}

func (h *hostModule) register(L *lua.LState) {
	mod := L.NewTable()

	// No capability required.
	L.SetField(mod, "log", L.NewFunction(h.logFn))
	L.SetField(mod, "new_request_id", L.NewFunction(h.newRequestIDFn))
	L.SetField(mod, "display", L.NewFunction(h.displayFn))
	L.SetField(mod, "require", L.NewFunction(h.requireFn))
	L.SetField(mod, "user_error", L.NewFunction(userErrorFn))

	L.SetField(mod, "read_file", L.NewFunction(h.wrap(capability.FSRead, h.readFileFn)))
	L.SetField(mod, "write_file", L.NewFunction(h.wrap(capability.FSWrite, h.writeFileFn)))

	L.SetGlobal("scriptkit", mod)
	L.SetGlobal("require", L.NewFunction(h.requireFn))
	L.SetGlobal("print", L.NewFunction(h.printFn(h.out.Stdout)))
	L.SetGlobal("eprint", L.NewFunction(h.printFn(h.out.Stderr)))
}

func (h *hostModule) wrap(capName string, fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		if err := h.enforcer.Require(h.subject, capName); err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		return fn(L)
	}
}

func (h *hostModule) logFn(L *lua.LState) int {
	level := L.CheckString(1)
	message := L.CheckString(2)

	logger := slog.Default().With("subject", h.subject)
	switch level {
	case "debug":
		logger.Debug(message)
	case "warn":
		logger.Warn(message)
	case "error":
		logger.Error(message)
	default:
		logger.Info(message)
	}
	return 0
}

func (h *hostModule) newRequestIDFn(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

// printFn joins its arguments with tabs, like the stock print.
func (h *hostModule) printFn(write func(string) error) lua.LGFunction {
	return func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		if err := write(strings.Join(parts, "\t")); err != nil {
			slog.Warn("script output not delivered", "subject", h.subject, "error", err)
		}
		return 0
	}
}

// displayFn writes to the given element, or to the current fragment's
// display target.
func (h *hostModule) displayFn(L *lua.LState) int {
	text := L.ToStringMeta(L.Get(1)).String()
	target := L.OptString(2, h.target())
	if target == "" {
		L.RaiseError("display: no target element for this script")
		return 0
	}
	if err := h.out.Display(target, text); err != nil {
		L.RaiseError("display: %s", err.Error())
	}
	return 0
}

// userErrorFn raises a tagged table that fromLua turns into a user error.
// Usage: scriptkit.user_error(code, message [, {warning=bool, html=bool}]).
func userErrorFn(L *lua.LState) int {
	code := L.CheckString(1)
	message := L.CheckString(2)
	opts := L.OptTable(3, L.NewTable())

	t := L.NewTable()
	t.RawSetString(userErrorMarker, lua.LTrue)
	t.RawSetString("code", lua.LString(code))
	t.RawSetString("message", lua.LString(message))
	t.RawSetString("warning", lua.LBool(lua.LVAsBool(opts.RawGetString("warning"))))
	t.RawSetString("html", lua.LBool(lua.LVAsBool(opts.RawGetString("html"))))
	L.Error(t, 1)
	return 0
}

func (h *hostModule) requireFn(L *lua.LState) int {
	name := L.CheckString(1)
	v, err := h.modules.require(L, name)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(v)
	return 1
}

func (h *hostModule) readFileFn(L *lua.LState) int {
	p := resolvePath(L.CheckString(1))
	data, err := afero.ReadFile(h.fs, p)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(data))
	L.Push(lua.LNil)
	return 2
}

func (h *hostModule) writeFileFn(L *lua.LState) int {
	p := resolvePath(L.CheckString(1))
	data := L.CheckString(2)
	if err := h.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	if err := afero.WriteFile(h.fs, p, []byte(data), 0o644); err != nil {
		L.Push(lua.LString(err.Error()))
		return 1
	}
	return 0
}

// resolvePath makes p absolute against the home directory.
func resolvePath(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(HomeDir, p)
}
