// internal/dialect/exprlang.go
package dialect

import (
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/solatis/rulekeeper/internal/cache"
	"github.com/solatis/rulekeeper/internal/types"
)

// Expr evaluates expr-lang expressions. Unbound variables evaluate to nil.
//
// expr type-checks against the environment at compile time, so programs are
// cached per source text and environment shape (names and kinds).
type Expr struct {
	programs *cache.LRU[*vm.Program]
}

// NewExpr creates an expr dialect caching up to cacheSize programs.
func NewExpr(cacheSize int) *Expr {
	return &Expr{programs: cache.NewLRU[*vm.Program](cacheSize)}
}

func (d *Expr) Name() string { return types.RuleTypeExpr }

func (d *Expr) Eval(src string, env *types.Map) (types.Value, error) {
	if len(src) > types.MaxExpressionLength {
		return types.Value{}, types.Errorf(types.ErrExpressionTooLong, "%d bytes", len(src))
	}

	vars := make(map[string]any, env.Len())
	env.Range(func(k string, v types.Value) bool {
		vars[k] = exprValue(v)
		return true
	})

	key := shapeKey(src, env)
	program, ok := d.programs.Get(key)
	if !ok {
		var err error
		// expr.Env must precede AllowUndefinedVariables.
		program, err = expr.Compile(src, expr.Env(vars), expr.AllowUndefinedVariables())
		if err != nil {
			return types.Value{}, types.Errorf(types.ErrSyntax, "expr: %v", err)
		}
		d.programs.Set(key, program)
	}

	out, err := expr.Run(program, vars)
	if err != nil {
		return types.Value{}, types.Errorf(err, "expr")
	}
	v, err := types.FromGo(out)
	if err != nil {
		return types.Value{}, types.Errorf(err, "expr result")
	}
	return v, nil
}

// exprValue converts v to the Go form expr's arithmetic expects. Ints become
// int so they mix with integer literals.
func exprValue(v types.Value) any {
	switch v.Kind() {
	case types.KindInt:
		i, _ := v.Int()
		return int(i)
	case types.KindArray:
		items := v.Items()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = exprValue(item)
		}
		return out
	case types.KindMap:
		out := make(map[string]any, v.Map().Len())
		v.Map().Range(func(k string, item types.Value) bool {
			out[k] = exprValue(item)
			return true
		})
		return out
	}
	return v.ToGo()
}

// shapeKey identifies a compiled program by source and the sorted name:kind
// pairs of its environment.
func shapeKey(src string, env *types.Map) string {
	names := env.Keys()
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(src)
	for _, name := range names {
		v, _ := env.Get(name)
		b.WriteByte(0)
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(v.Kind().String())
	}
	return b.String()
}
