// Package expression implements the primary rule expression dialect.
//
// Expressions are infix with C-style and word operators, single or double
// quoted strings, array literals and a fixed library of case-insensitive
// built-in functions. Parsed programs are immutable and safe to share; the
// Evaluator keeps a bounded cache of them keyed by source text.
package expression

import (
	"github.com/solatis/rulekeeper/internal/cache"
	"github.com/solatis/rulekeeper/internal/types"
)

// Program is a parsed expression ready for evaluation.
type Program struct {
	source string
	root   node
}

// Source returns the text the program was parsed from.
func (p *Program) Source() string { return p.source }

// Eval evaluates the program against vars. A nil vars binds nothing.
func (p *Program) Eval(vars *types.Map) (types.Value, error) {
	return p.root.eval(vars)
}

// Parse compiles src without caching.
func Parse(src string) (*Program, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Program{source: src, root: root}, nil
}

// Options configures an Evaluator.
type Options struct {
	// CacheSize bounds the number of cached programs. Zero selects
	// types.DefaultExpressionCacheSize; negative disables caching.
	CacheSize int
}

// Evaluator compiles and evaluates expressions, caching parsed programs.
// Safe for concurrent use.
type Evaluator struct {
	programs *cache.LRU[*Program]
}

// New creates an Evaluator.
func New(opts Options) *Evaluator {
	size := opts.CacheSize
	if size == 0 {
		size = types.DefaultExpressionCacheSize
	}
	return &Evaluator{programs: cache.NewLRU[*Program](size)}
}

var defaultEvaluator = New(Options{})

// Eval compiles src through the shared default evaluator and runs it.
func Eval(src string, vars *types.Map) (types.Value, error) {
	return defaultEvaluator.Eval(src, vars)
}

// Compile returns the cached program for src, parsing it on a miss.
// Parse failures are not cached.
func (e *Evaluator) Compile(src string) (*Program, error) {
	if p, ok := e.programs.Get(src); ok {
		return p, nil
	}
	p, err := Parse(src)
	if err != nil {
		return nil, err
	}
	e.programs.Set(src, p)
	return p, nil
}

// Eval compiles src and evaluates it against vars.
func (e *Evaluator) Eval(src string, vars *types.Map) (types.Value, error) {
	p, err := e.Compile(src)
	if err != nil {
		return types.Value{}, err
	}
	return p.Eval(vars)
}

// CacheStats reports program cache activity.
func (e *Evaluator) CacheStats() cache.Stats {
	return e.programs.Stats()
}
