// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package interpreter

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/scriptkit/internal/bridge"
)

// maxDepth bounds nested table conversion so cyclic tables fail cleanly.
const maxDepth = 64

// toGo copies a Lua value into plain Go data. Sequences become []any, other
// tables become map[string]any keyed by their string or number keys. Keys
// that would collide once stringified, functions, userdata and coroutines
// cannot be copied.
func toGo(lv lua.LValue) (any, error) {
	return toGoDepth(lv, 0)
}

func toGoDepth(lv lua.LValue, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: table nesting exceeds %d levels", bridge.ErrUncopyable, maxDepth)
	}

	switch v := lv.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
		return f, nil
	case *lua.LTable:
		return tableToGo(v, depth)
	default:
		return nil, fmt.Errorf("%w: lua %s", bridge.ErrUncopyable, lv.Type())
	}
}

func tableToGo(t *lua.LTable, depth int) (any, error) {
	n := t.Len()
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n > 0 && n == count {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			v, err := toGoDepth(t.RawGetInt(i), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	out := make(map[string]any, count)
	var err error
	t.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		switch k.Type() {
		case lua.LTString, lua.LTNumber:
		default:
			err = fmt.Errorf("%w: lua %s table key", bridge.ErrUncopyable, k.Type())
			return
		}
		key := k.String()
		if _, dup := out[key]; dup {
			err = fmt.Errorf("%w: table keys collide on %q", bridge.ErrUncopyable, key)
			return
		}
		var gv any
		gv, err = toGoDepth(v, depth+1)
		if err == nil {
			out[key] = gv
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fromGo builds a Lua value from copied Go data.
func fromGo(L *lua.LState, v any) (lua.LValue, error) {
	switch x := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(x), nil
	case string:
		return lua.LString(x), nil
	case []byte:
		return lua.LString(x), nil
	case int:
		return lua.LNumber(x), nil
	case int64:
		return lua.LNumber(x), nil
	case uint64:
		return lua.LNumber(x), nil
	case float32:
		return lua.LNumber(x), nil
	case float64:
		return lua.LNumber(x), nil
	case []string:
		t := L.CreateTable(len(x), 0)
		for _, s := range x {
			t.Append(lua.LString(s))
		}
		return t, nil
	case []any:
		t := L.CreateTable(len(x), 0)
		for i, item := range x {
			lv, err := fromGo(L, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i+1, err)
			}
			t.Append(lv)
		}
		return t, nil
	case map[string]any:
		t := L.CreateTable(0, len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lv, err := fromGo(L, x[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			t.RawSetString(k, lv)
		}
		return t, nil
	case map[any]any:
		t := L.CreateTable(0, len(x))
		for k, item := range x {
			lk, err := fromGo(L, k)
			if err != nil {
				return nil, err
			}
			lv, err := fromGo(L, item)
			if err != nil {
				return nil, err
			}
			t.RawSet(lk, lv)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %T", bridge.ErrUncopyable, v)
	}
}

// argsToLua decodes bridge arguments into Lua values.
func argsToLua(L *lua.LState, args bridge.Args) ([]lua.LValue, error) {
	out := make([]lua.LValue, 0, len(args))
	for i, a := range args {
		if a.Handle() != nil || a.Object() != nil {
			return nil, fmt.Errorf("argument %d: %w: references cannot enter the engine", i, bridge.ErrUncopyable)
		}
		v, err := a.Any()
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		lv, err := fromGo(L, v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, lv)
	}
	return out, nil
}
