// internal/dialect/cel.go
package dialect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
	celtypes "github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/solatis/rulekeeper/internal/cache"
	"github.com/solatis/rulekeeper/internal/types"
)

// CELCostLimit bounds the runtime cost of a single CEL evaluation.
const CELCostLimit = 1000000

// CEL evaluates Common Expression Language expressions. Every binding is
// declared dyn; referencing a name with no binding fails compilation.
type CEL struct {
	programs *cache.LRU[cel.Program]
}

// NewCEL creates a CEL dialect caching up to cacheSize programs.
func NewCEL(cacheSize int) *CEL {
	return &CEL{programs: cache.NewLRU[cel.Program](cacheSize)}
}

func (d *CEL) Name() string { return types.RuleTypeCEL }

func (d *CEL) Eval(src string, env *types.Map) (types.Value, error) {
	if len(src) > types.MaxExpressionLength {
		return types.Value{}, types.Errorf(types.ErrExpressionTooLong, "%d bytes", len(src))
	}

	names := celNames(env)
	key := src + "\x00" + strings.Join(names, "\x00")

	prg, ok := d.programs.Get(key)
	if !ok {
		var err error
		if prg, err = compileCEL(src, names); err != nil {
			return types.Value{}, err
		}
		d.programs.Set(key, prg)
	}

	activation := make(map[string]any, len(names))
	for _, name := range names {
		v, _ := env.Get(name)
		activation[name] = v.ToGo()
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return types.Value{}, types.Errorf(err, "cel")
	}
	v, err := fromCEL(out, 0)
	if err != nil {
		return types.Value{}, types.Errorf(err, "cel result")
	}
	return v, nil
}

var celReserved = map[string]bool{
	"true": true, "false": true, "null": true, "in": true, "as": true,
	"break": true, "const": true, "continue": true, "else": true, "for": true,
	"function": true, "if": true, "import": true, "let": true, "loop": true,
	"package": true, "namespace": true, "return": true, "var": true,
	"void": true, "while": true,
}

// celNames returns the env keys CEL can declare, sorted. Internal keys,
// reserved words and names that are not plain identifiers are skipped.
func celNames(env *types.Map) []string {
	var names []string
	for _, name := range env.Keys() {
		if strings.HasPrefix(name, "__") || celReserved[name] || !isIdent(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func compileCEL(src string, names []string) (cel.Program, error) {
	opts := []cel.EnvOption{cel.CrossTypeNumericComparisons(true)}
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, types.Errorf(err, "cel environment")
	}

	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		if strings.Contains(issues.Err().Error(), "undeclared reference") {
			return nil, types.Errorf(types.ErrUnboundVariable, "cel: %v", issues.Err())
		}
		return nil, types.Errorf(types.ErrSyntax, "cel: %v", issues.Err())
	}

	prg, err := env.Program(ast, cel.CostLimit(CELCostLimit))
	if err != nil {
		return nil, types.Errorf(err, "cel program")
	}
	return prg, nil
}

func fromCEL(val ref.Val, depth int) (types.Value, error) {
	if depth > types.MaxRuleDepth {
		return types.Value{}, fmt.Errorf("%w: cel value nesting too deep", types.ErrCoercionFailed)
	}
	switch v := val.(type) {
	case celtypes.Null:
		return types.Null(), nil
	case celtypes.Bool:
		return types.Bool(bool(v)), nil
	case celtypes.Int:
		return types.Int(int64(v)), nil
	case celtypes.Uint:
		return types.FromGo(uint64(v))
	case celtypes.Double:
		return types.Float(float64(v)), nil
	case celtypes.String:
		return types.String(string(v)), nil
	case traits.Mapper:
		return celMap(v, depth)
	case traits.Lister:
		var items []types.Value
		it := v.Iterator()
		for it.HasNext() == celtypes.True {
			item, err := fromCEL(it.Next(), depth+1)
			if err != nil {
				return types.Value{}, err
			}
			items = append(items, item)
		}
		return types.Array(items...), nil
	}
	return types.Value{}, fmt.Errorf("%w: cel %s has no value form", types.ErrCoercionFailed, val.Type().TypeName())
}

// celMap converts a CEL map with keys sorted by their text form.
func celMap(m traits.Mapper, depth int) (types.Value, error) {
	byName := make(map[string]ref.Val)
	var names []string
	it := m.Iterator()
	for it.HasNext() == celtypes.True {
		k := it.Next()
		name := fmt.Sprint(k.Value())
		names = append(names, name)
		byName[name] = m.Get(k)
	}
	sort.Strings(names)

	out := types.NewMap()
	for _, name := range names {
		item, err := fromCEL(byName[name], depth+1)
		if err != nil {
			return types.Value{}, err
		}
		out.Set(name, item)
	}
	return types.MapOf(out), nil
}
