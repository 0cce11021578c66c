// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package interpreter

import (
	"context"
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptkit/internal/bridge"
)

// Operations on a namespace handle (the globals table or an imported
// module).
const (
	NamespaceGet  = "get"
	NamespaceSet  = "set"
	NamespaceKeys = "keys"
	NamespaceCall = "call"
)

// namespace exposes a Lua table through the bridge.
type namespace struct {
	r     *Remote
	table *lua.LTable
	name  string
}

// Invoke implements bridge.Receiver.
func (n *namespace) Invoke(ctx context.Context, method string, args bridge.Args) (any, error) {
	L, err := n.r.engine()
	if err != nil {
		return nil, err
	}

	switch method {
	case NamespaceGet:
		key, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return n.get(key)
	case NamespaceSet:
		key, err := args.String(0)
		if err != nil {
			return nil, err
		}
		vals, err := argsToLua(L, args[1:])
		if err != nil {
			return nil, err
		}
		var v lua.LValue = lua.LNil
		if len(vals) > 0 {
			v = vals[0]
		}
		n.table.RawSetString(key, v)
		return nil, nil
	case NamespaceKeys:
		keys := make([]string, 0)
		n.table.ForEach(func(k, _ lua.LValue) {
			if s, ok := k.(lua.LString); ok {
				keys = append(keys, string(s))
			}
		})
		sort.Strings(keys)
		return keys, nil
	case NamespaceCall:
		fnName, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return n.call(L, fnName, args[1:])
	default:
		return nil, fmt.Errorf("%w: %s on %s", bridge.ErrNoSuchMethod, method, n.name)
	}
}

// Property implements bridge.Getter.
func (n *namespace) Property(_ context.Context, name string) (any, error) {
	if _, err := n.r.engine(); err != nil {
		return nil, err
	}
	return n.get(name)
}

func (n *namespace) get(key string) (any, error) {
	v, err := toGo(n.table.RawGetString(key))
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", n.name, key, err)
	}
	return v, nil
}

func (n *namespace) call(L *lua.LState, fnName string, args bridge.Args) (any, error) {
	fn := n.table.RawGetString(fnName)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: %s.%s is not a function", bridge.ErrNoSuchMethod, n.name, fnName)
	}
	largs, err := argsToLua(L, args)
	if err != nil {
		return nil, err
	}

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, largs...); err != nil {
		return nil, fromLua(err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	v, err := toGo(ret)
	if err != nil {
		return nil, fmt.Errorf("%s.%s result: %w", n.name, fnName, err)
	}
	return v, nil
}
