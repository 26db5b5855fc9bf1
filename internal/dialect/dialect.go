// Package dialect adapts the supported script languages to one evaluation
// interface used by script rules.
//
// Each dialect compiles source text against a variable environment and
// returns a types.Value. Dialects differ in how they treat unbound names:
// the primary expression dialect and cel fail, lua and expr yield null.
package dialect

import (
	"github.com/solatis/rulekeeper/internal/expression"
	"github.com/solatis/rulekeeper/internal/types"
)

// Dialect evaluates script source against an environment.
// Implementations must be safe for concurrent use.
type Dialect interface {
	// Name is the rule type tag the dialect serves.
	Name() string

	// Eval evaluates src with env bound as variables. env may be nil.
	Eval(src string, env *types.Map) (types.Value, error)
}

// Expression is the primary expression dialect.
type Expression struct {
	evaluator *expression.Evaluator
}

// NewExpression wraps an evaluator. A nil evaluator gets a default-sized one.
func NewExpression(ev *expression.Evaluator) *Expression {
	if ev == nil {
		ev = expression.New(expression.Options{})
	}
	return &Expression{evaluator: ev}
}

func (d *Expression) Name() string { return types.RuleTypeExpression }

func (d *Expression) Eval(src string, env *types.Map) (types.Value, error) {
	return d.evaluator.Eval(src, env)
}

// Evaluator exposes the underlying evaluator for cache statistics.
func (d *Expression) Evaluator() *expression.Evaluator {
	return d.evaluator
}

// Defaults returns one instance of every built-in dialect.
func Defaults() []Dialect {
	return DefaultsWithCache(types.DefaultExpressionCacheSize)
}

// DefaultsWithCache is Defaults with each compiled-program cache bounded at
// cacheSize entries. Zero selects types.DefaultExpressionCacheSize.
func DefaultsWithCache(cacheSize int) []Dialect {
	if cacheSize <= 0 {
		cacheSize = types.DefaultExpressionCacheSize
	}
	return []Dialect{
		NewExpression(expression.New(expression.Options{CacheSize: cacheSize})),
		NewLua(LuaOptions{}),
		NewExpr(cacheSize),
		NewCEL(cacheSize),
	}
}
