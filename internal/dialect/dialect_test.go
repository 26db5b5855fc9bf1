// internal/dialect/dialect_test.go
package dialect

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/rulekeeper/internal/types"
)

func testEnv(t *testing.T) *types.Map {
	t.Helper()
	env, err := types.MapFromGo(map[string]any{
		"value": 15,
		"name":  "widget",
		"ratio": 0.5,
		"tags":  []any{"a", "b"},
	})
	if err != nil {
		t.Fatalf("MapFromGo() error = %v, want nil", err)
	}
	return env
}

type dialectCase struct {
	name string
	src  string
	want types.Value
}

func runCases(t *testing.T, d Dialect, tests []dialectCase) {
	t.Helper()
	env := testEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Eval(tt.src, env)
			if err != nil {
				t.Fatalf("%s Eval(%q) error = %v, want nil", d.Name(), tt.src, err)
			}
			if !types.Equal(got, tt.want) {
				t.Errorf("%s Eval(%q) = %v, want %v", d.Name(), tt.src, got, tt.want)
			}
		})
	}
}

func TestLua(t *testing.T) {
	runCases(t, NewLua(LuaOptions{}), []dialectCase{
		{name: "explicit return", src: "return value > 10", want: types.Bool(true)},
		{name: "bare expression", src: "value > 10", want: types.Bool(true)},
		{name: "arithmetic", src: "value * 2", want: types.Float(30)},
		{name: "modulo", src: "value % 4", want: types.Float(3)},
		{name: "concatenation", src: "name .. '!'", want: types.String("widget!")},
		{name: "not equal", src: "not (value ~= 15) and true", want: types.Bool(true)},
		{name: "statements", src: "if value > 10 then return 'big' else return 'small' end", want: types.String("big")},
		{name: "unbound is nil", src: "missing == nil", want: types.Bool(true)},
		{name: "one-based tables", src: "tags[1]", want: types.String("a")},
		{name: "string library", src: "string.upper(name)", want: types.String("WIDGET")},
		{name: "math library", src: "math.floor(ratio * 3)", want: types.Float(1)},
		{name: "sequence", src: "{1, 2, 3}", want: types.Array(types.Int(1), types.Int(2), types.Int(3))},
		{name: "no return", src: "local x = 1", want: types.Null()},
		{name: "sandboxed", src: "dofile == nil and require == nil", want: types.Bool(true)},
	})
}

func TestLua_TableToMap(t *testing.T) {
	got, err := NewLua(LuaOptions{}).Eval("{b = 1, a = 'x'}", nil)
	if err != nil {
		t.Fatalf("Eval() error = %v, want nil", err)
	}
	m := got.Map()
	if m == nil {
		t.Fatalf("Eval() = %v, want map", got)
	}
	if keys := m.Keys(); len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v, want [a b]", keys)
	}
}

func TestLua_Errors(t *testing.T) {
	d := NewLua(LuaOptions{Timeout: 50 * time.Millisecond})
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{name: "syntax", src: "value +", wantErr: types.ErrSyntax},
		{name: "runtime", src: "error('boom')"},
		{name: "arithmetic on nil", src: "missing + 1"},
		{name: "timeout", src: "while true do end"},
	}
	env := testEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Eval(tt.src, env)
			if err == nil {
				t.Fatalf("Eval(%q) error = nil, want error", tt.src)
			}
			var ee *types.EvaluationError
			if !errors.As(err, &ee) {
				t.Errorf("Eval(%q) error type = %T, want *types.EvaluationError", tt.src, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Eval(%q) error = %v, want %v", tt.src, err, tt.wantErr)
			}
		})
	}
}

func TestExpr(t *testing.T) {
	runCases(t, NewExpr(16), []dialectCase{
		{name: "comparison", src: "value > 10", want: types.Bool(true)},
		{name: "int arithmetic", src: "value * 2", want: types.Int(30)},
		{name: "float arithmetic", src: "ratio * 4", want: types.Float(2)},
		{name: "concatenation", src: "name + '!'", want: types.String("widget!")},
		{name: "unbound is nil", src: "missing == nil", want: types.Bool(true)},
		{name: "membership", src: "'b' in tags", want: types.Bool(true)},
		{name: "ternary", src: "value > 100 ? 'big' : 'small'", want: types.String("small")},
		{name: "array", src: "[1, 2]", want: types.Array(types.Int(1), types.Int(2))},
	})
}

func TestExpr_CachesPerShape(t *testing.T) {
	d := NewExpr(16)
	intEnv := types.NewMap()
	intEnv.Set("x", types.Int(2))
	strEnv := types.NewMap()
	strEnv.Set("x", types.String("a"))

	if got, err := d.Eval("x + x", intEnv); err != nil || !types.Equal(got, types.Int(4)) {
		t.Fatalf("Eval(int) = %v, %v, want 4, nil", got, err)
	}
	if got, err := d.Eval("x + x", strEnv); err != nil || !types.Equal(got, types.String("aa")) {
		t.Fatalf("Eval(string) = %v, %v, want aa, nil", got, err)
	}
	if size := d.programs.Len(); size != 2 {
		t.Errorf("cached programs = %d, want 2", size)
	}
}

func TestExpr_Errors(t *testing.T) {
	_, err := NewExpr(16).Eval("value +", testEnv(t))
	if !errors.Is(err, types.ErrSyntax) {
		t.Errorf("Eval() error = %v, want ErrSyntax", err)
	}
}

func TestCEL(t *testing.T) {
	runCases(t, NewCEL(16), []dialectCase{
		{name: "comparison", src: "value > 10", want: types.Bool(true)},
		{name: "cross type comparison", src: "value > 10.5", want: types.Bool(true)},
		{name: "int arithmetic", src: "value * 2", want: types.Int(30)},
		{name: "string concatenation", src: "name + '!'", want: types.String("widget!")},
		{name: "membership", src: "'b' in tags", want: types.Bool(true)},
		{name: "ternary", src: "value > 100 ? 'big' : 'small'", want: types.String("small")},
		{name: "list", src: "[1, 2]", want: types.Array(types.Int(1), types.Int(2))},
		{name: "null", src: "null", want: types.Null()},
	})
}

func TestCEL_Map(t *testing.T) {
	got, err := NewCEL(16).Eval("{'b': 1, 'a': 2}", nil)
	if err != nil {
		t.Fatalf("Eval() error = %v, want nil", err)
	}
	want := types.NewMap()
	want.Set("a", types.Int(2))
	want.Set("b", types.Int(1))
	if !got.Map().Equal(want) {
		t.Errorf("Eval() = %v, want %v", got, want)
	}
}

func TestCEL_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{name: "unbound", src: "missing > 1", wantErr: types.ErrUnboundVariable},
		{name: "syntax", src: "value >", wantErr: types.ErrSyntax},
		{name: "runtime", src: "value / 0"},
	}
	env := testEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCEL(16).Eval(tt.src, env)
			if err == nil {
				t.Fatalf("Eval(%q) error = nil, want error", tt.src)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Eval(%q) error = %v, want %v", tt.src, err, tt.wantErr)
			}
		})
	}
}

func TestExpressionAdapter(t *testing.T) {
	d := NewExpression(nil)
	if d.Name() != types.RuleTypeExpression {
		t.Errorf("Name() = %q, want %q", d.Name(), types.RuleTypeExpression)
	}
	runCases(t, d, []dialectCase{
		{name: "if", src: "if(value > 10, 'big', 'small')", want: types.String("big")},
	})
}

func TestDefaults(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Defaults() {
		seen[d.Name()] = true
	}
	for _, name := range []string{types.RuleTypeExpression, types.RuleTypeLua, types.RuleTypeExpr, types.RuleTypeCEL} {
		if !seen[name] {
			t.Errorf("Defaults() missing %q", name)
		}
	}

	if got := len(DefaultsWithCache(4)); got != 4 {
		t.Errorf("len(DefaultsWithCache(4)) = %d, want 4", got)
	}
}

// Property-based test: the expression and lua dialects agree on arithmetic and comparison
func TestDialects_PropertyExpressionMatchesLua(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	expr := NewExpression(nil)
	luaDialect := NewLua(LuaOptions{})

	properties.Property("a + b and a > b agree", prop.ForAll(
		func(a, b int64) bool {
			env := types.NewMap()
			env.Set("a", types.Int(a))
			env.Set("b", types.Int(b))

			for _, src := range []string{"a + b", "a - b", "a > b"} {
				want, err := expr.Eval(src, env)
				if err != nil {
					return false
				}
				got, err := luaDialect.Eval(src, env)
				if err != nil || !types.Equal(got, want) {
					return false
				}
			}
			return true
		},
		gen.Int64Range(-100000, 100000),
		gen.Int64Range(-100000, 100000),
	))

	properties.TestingRun(t)
}
