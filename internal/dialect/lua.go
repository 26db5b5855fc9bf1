// internal/dialect/lua.go
package dialect

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Lua dialect.
 *
 * Every Eval runs in a fresh LState with only the base, table, string and
 * math libraries opened; the base functions that touch the filesystem are
 * removed. Source is first tried as an expression ("return " + src) and
 * falls back to a statement chunk, so both `x > 10` and `return x > 10`
 * work.
 *
 * Conversions:
 *   Int, Float    -> number           number       -> Float
 *   String        -> string           string       -> String
 *   Array         -> 1-based table    sequence     -> Array
 *   Map           -> table            other table  -> Map (sorted keys)
 *   Null          -> nil              nil          -> Null
 */

// DefaultLuaTimeout bounds a single script evaluation.
const DefaultLuaTimeout = time.Second

var luaLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

var luaUnsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// LuaOptions configures the Lua dialect.
type LuaOptions struct {
	// Timeout bounds each evaluation. Zero selects DefaultLuaTimeout.
	Timeout time.Duration
}

// Lua evaluates Lua 5.1 scripts with gopher-lua.
type Lua struct {
	timeout time.Duration
}

// NewLua creates a Lua dialect.
func NewLua(opts LuaOptions) *Lua {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultLuaTimeout
	}
	return &Lua{timeout: opts.Timeout}
}

func (d *Lua) Name() string { return types.RuleTypeLua }

func (d *Lua) Eval(src string, env *types.Map) (types.Value, error) {
	if len(src) > types.MaxExpressionLength {
		return types.Value{}, types.Errorf(types.ErrExpressionTooLong, "%d bytes", len(src))
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	L.SetContext(ctx)

	for _, lib := range luaLibs {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return types.Value{}, fmt.Errorf("open lua library %s: %w", lib.name, err)
		}
	}
	for _, name := range luaUnsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	var convErr error
	env.Range(func(k string, v types.Value) bool {
		lv, err := toLua(L, v)
		if err != nil {
			convErr = fmt.Errorf("bind %s: %w", k, err)
			return false
		}
		L.SetGlobal(k, lv)
		return true
	})
	if convErr != nil {
		return types.Value{}, types.Errorf(convErr, "lua")
	}

	fn, err := L.LoadString("return " + src)
	if err != nil {
		if fn, err = L.LoadString(src); err != nil {
			return types.Value{}, types.Errorf(types.ErrSyntax, "lua: %v", err)
		}
	}

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return types.Value{}, types.Errorf(err, "lua")
	}
	ret := L.Get(-1)
	L.Pop(1)

	v, err := fromLua(ret, 0)
	if err != nil {
		return types.Value{}, types.Errorf(err, "lua result")
	}
	return v, nil
}

func toLua(L *lua.LState, v types.Value) (lua.LValue, error) {
	switch v.Kind() {
	case types.KindNull:
		return lua.LNil, nil
	case types.KindBool:
		b, _ := v.AsBool()
		return lua.LBool(b), nil
	case types.KindInt, types.KindFloat:
		f, _ := v.AsNumber()
		return lua.LNumber(f), nil
	case types.KindString:
		s, _ := v.Str()
		return lua.LString(s), nil
	case types.KindArray:
		t := L.NewTable()
		for i, item := range v.Items() {
			lv, err := toLua(L, item)
			if err != nil {
				return nil, err
			}
			t.RawSetInt(i+1, lv)
		}
		return t, nil
	case types.KindMap:
		t := L.NewTable()
		var err error
		v.Map().Range(func(k string, item types.Value) bool {
			var lv lua.LValue
			if lv, err = toLua(L, item); err != nil {
				return false
			}
			t.RawSetString(k, lv)
			return true
		})
		return t, err
	}
	return nil, fmt.Errorf("%w: unsupported kind %s", types.ErrCoercionFailed, v.Kind())
}

func fromLua(lv lua.LValue, depth int) (types.Value, error) {
	if depth > types.MaxRuleDepth {
		return types.Value{}, fmt.Errorf("%w: table nesting too deep", types.ErrCoercionFailed)
	}
	switch v := lv.(type) {
	case *lua.LNilType:
		return types.Null(), nil
	case lua.LBool:
		return types.Bool(bool(v)), nil
	case lua.LNumber:
		return types.Float(float64(v)), nil
	case lua.LString:
		return types.String(string(v)), nil
	case *lua.LTable:
		return tableValue(v, depth)
	}
	return types.Value{}, fmt.Errorf("%w: lua %s has no value form", types.ErrCoercionFailed, lv.Type())
}

// tableValue converts a sequence (keys exactly 1..n) to an Array and any other
// table to a Map. An empty table is an empty Map.
func tableValue(t *lua.LTable, depth int) (types.Value, error) {
	var keys []lua.LValue
	t.ForEach(func(k, _ lua.LValue) {
		keys = append(keys, k)
	})

	n := t.MaxN()
	if n > 0 && n == len(keys) {
		items := make([]types.Value, n)
		for i := 1; i <= n; i++ {
			item, err := fromLua(t.RawGetInt(i), depth+1)
			if err != nil {
				return types.Value{}, err
			}
			items[i-1] = item
		}
		return types.Array(items...), nil
	}

	names := make([]string, 0, len(keys))
	byName := make(map[string]lua.LValue, len(keys))
	for _, k := range keys {
		name := luaKey(k)
		names = append(names, name)
		byName[name] = t.RawGet(k)
	}
	sort.Strings(names)

	m := types.NewMap()
	for _, name := range names {
		item, err := fromLua(byName[name], depth+1)
		if err != nil {
			return types.Value{}, err
		}
		m.Set(name, item)
	}
	return types.MapOf(m), nil
}

func luaKey(k lua.LValue) string {
	if n, ok := k.(lua.LNumber); ok {
		f := float64(n)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return fmt.Sprintf("%d", int64(f))
		}
	}
	return k.String()
}
