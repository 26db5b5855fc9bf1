// internal/expression/functions.go
package expression

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/solatis/rulekeeper/internal/types"
)

type function struct {
	name    string
	minArgs int
	maxArgs int // -1 for variadic
	call    func(args []types.Value) (types.Value, error)

	// lazy functions receive unevaluated arguments.
	lazy func(s scope, args []node) (types.Value, error)
}

func (f *function) arity() string {
	switch {
	case f.maxArgs < 0:
		return fmt.Sprintf("at least %d", f.minArgs)
	case f.minArgs == f.maxArgs:
		return fmt.Sprintf("%d", f.minArgs)
	default:
		return fmt.Sprintf("%d to %d", f.minArgs, f.maxArgs)
	}
}

var builtins = map[string]*function{}

func register(fns ...*function) {
	for _, fn := range fns {
		builtins[strings.ToLower(fn.name)] = fn
	}
}

func lookupFunction(name string) (*function, bool) {
	fn, ok := builtins[strings.ToLower(name)]
	return fn, ok
}

// Functions returns the names of all built-in functions.
func Functions() []string {
	names := make([]string, 0, len(builtins))
	for _, fn := range builtins {
		names = append(names, fn.name)
	}
	return names
}

func init() {
	register(
		&function{name: "if", minArgs: 3, maxArgs: 3, lazy: lazyIf},
		&function{name: "try", minArgs: 2, maxArgs: 2, lazy: lazyTry},
		&function{name: "in", minArgs: 1, maxArgs: -1, call: fnIn},
		&function{name: "isNull", minArgs: 1, maxArgs: 1, call: func(a []types.Value) (types.Value, error) {
			return types.Bool(a[0].IsNull()), nil
		}},
		&function{name: "Nvl", minArgs: 2, maxArgs: 2, call: func(a []types.Value) (types.Value, error) {
			if a[0].IsNull() {
				return a[1], nil
			}
			return a[0], nil
		}},
		&function{name: "itemAtIndex", minArgs: 2, maxArgs: 2, call: fnItemAtIndex},
		&function{name: "ArrayGet", minArgs: 2, maxArgs: 2, call: fnItemAtIndex},
		&function{name: "typeOf", minArgs: 1, maxArgs: 1, call: func(a []types.Value) (types.Value, error) {
			return types.String(a[0].Kind().String()), nil
		}},
	)
	registerStrings()
	registerMath()
}

func lazyIf(s scope, args []node) (types.Value, error) {
	c, err := evalBool(args[0], s)
	if err != nil {
		return types.Value{}, wrap(err, "if condition")
	}
	if c {
		return args[1].eval(s)
	}
	return args[2].eval(s)
}

// lazyTry yields the fallback when the first argument fails for any reason.
func lazyTry(s scope, args []node) (types.Value, error) {
	if v, err := args[0].eval(s); err == nil {
		return v, nil
	}
	return args[1].eval(s)
}

func fnIn(a []types.Value) (types.Value, error) {
	needle, candidates := a[0], a[1:]
	if len(candidates) == 1 && candidates[0].Kind() == types.KindArray {
		candidates = candidates[0].Items()
	}
	for _, c := range candidates {
		if types.Equal(needle, c) {
			return types.Bool(true), nil
		}
	}
	return types.Bool(false), nil
}

func fnItemAtIndex(a []types.Value) (types.Value, error) {
	if a[0].Kind() != types.KindArray {
		return types.Value{}, fmt.Errorf("%w: %s is not an array", types.ErrCoercionFailed, a[0].Kind())
	}
	return index(a[0], a[1])
}

// str coerces any scalar to its text form. Arrays and maps are rejected.
func str(v types.Value) (string, error) {
	switch v.Kind() {
	case types.KindArray, types.KindMap:
		return "", fmt.Errorf("%w: %s is not a string", types.ErrCoercionFailed, v.Kind())
	}
	return v.Text(), nil
}

func intArg(v types.Value) (int, error) {
	i, err := v.AsInt()
	if err != nil {
		return 0, err
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d out of range", types.ErrCoercionFailed, i)
	}
	return int(i), nil
}

func stringFn(name string, f func(string) types.Value) *function {
	return &function{name: name, minArgs: 1, maxArgs: 1, call: func(a []types.Value) (types.Value, error) {
		s, err := str(a[0])
		if err != nil {
			return types.Value{}, err
		}
		return f(s), nil
	}}
}

func stringPairFn(name string, f func(a, b string) types.Value) *function {
	return &function{name: name, minArgs: 2, maxArgs: 2, call: func(a []types.Value) (types.Value, error) {
		s, err := str(a[0])
		if err != nil {
			return types.Value{}, err
		}
		t, err := str(a[1])
		if err != nil {
			return types.Value{}, err
		}
		return f(s, t), nil
	}}
}

func registerStrings() {
	register(
		stringFn("toLower", func(s string) types.Value { return types.String(strings.ToLower(s)) }),
		stringFn("toUpper", func(s string) types.Value { return types.String(strings.ToUpper(s)) }),
		stringFn("trim", func(s string) types.Value { return types.String(strings.TrimSpace(s)) }),
		stringFn("capitalize", func(s string) types.Value {
			r, size := utf8.DecodeRuneInString(s)
			if size == 0 {
				return types.String(s)
			}
			return types.String(string(unicode.ToUpper(r)) + strings.ToLower(s[size:]))
		}),
		&function{name: "length", minArgs: 1, maxArgs: 1, call: fnLength},
		&function{name: "substring", minArgs: 2, maxArgs: 3, call: fnSubstring},
		stringPairFn("contains", func(s, t string) types.Value { return types.Bool(strings.Contains(s, t)) }),
		stringPairFn("startsWith", func(s, t string) types.Value { return types.Bool(strings.HasPrefix(s, t)) }),
		stringPairFn("endsWith", func(s, t string) types.Value { return types.Bool(strings.HasSuffix(s, t)) }),
		stringPairFn("indexOf", func(s, t string) types.Value { return types.Int(int64(runeIndex(s, strings.Index(s, t)))) }),
		stringPairFn("lastIndexOf", func(s, t string) types.Value {
			return types.Int(int64(runeIndex(s, strings.LastIndex(s, t))))
		}),
		stringPairFn("split", func(s, sep string) types.Value {
			parts := strings.Split(s, sep)
			items := make([]types.Value, len(parts))
			for i, p := range parts {
				items[i] = types.String(p)
			}
			return types.Array(items...)
		}),
		&function{name: "replace", minArgs: 3, maxArgs: 3, call: fnReplace},
		&function{name: "join", minArgs: 2, maxArgs: 2, call: fnJoin},
		&function{name: "padLeft", minArgs: 2, maxArgs: 3, call: fnPadLeft},
	)
}

// runeIndex converts a byte offset into a rune offset, keeping -1 as is.
func runeIndex(s string, byteIdx int) int {
	if byteIdx < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:byteIdx])
}

func fnLength(a []types.Value) (types.Value, error) {
	switch a[0].Kind() {
	case types.KindArray:
		return types.Int(int64(len(a[0].Items()))), nil
	case types.KindMap:
		return types.Int(int64(a[0].Map().Len())), nil
	case types.KindNull:
		return types.Int(0), nil
	}
	return types.Int(int64(utf8.RuneCountInString(a[0].Text()))), nil
}

func fnSubstring(a []types.Value) (types.Value, error) {
	s, err := str(a[0])
	if err != nil {
		return types.Value{}, err
	}
	runes := []rune(s)
	start, err := intArg(a[1])
	if err != nil {
		return types.Value{}, err
	}
	if start < 0 || start > len(runes) {
		return types.Value{}, fmt.Errorf("%w: start %d, length %d", types.ErrIndexOutOfRange, start, len(runes))
	}
	end := len(runes)
	if len(a) == 3 {
		n, err := intArg(a[2])
		if err != nil {
			return types.Value{}, err
		}
		if n < 0 || start+n > len(runes) {
			return types.Value{}, fmt.Errorf("%w: start %d, count %d, length %d", types.ErrIndexOutOfRange, start, n, len(runes))
		}
		end = start + n
	}
	return types.String(string(runes[start:end])), nil
}

func fnReplace(a []types.Value) (types.Value, error) {
	parts := make([]string, 3)
	for i := range parts {
		s, err := str(a[i])
		if err != nil {
			return types.Value{}, err
		}
		parts[i] = s
	}
	if parts[1] == "" {
		return types.String(parts[0]), nil
	}
	return types.String(strings.ReplaceAll(parts[0], parts[1], parts[2])), nil
}

func fnJoin(a []types.Value) (types.Value, error) {
	if a[0].Kind() != types.KindArray {
		return types.Value{}, fmt.Errorf("%w: %s is not an array", types.ErrCoercionFailed, a[0].Kind())
	}
	sep, err := str(a[1])
	if err != nil {
		return types.Value{}, err
	}
	items := a[0].Items()
	parts := make([]string, len(items))
	for i, item := range items {
		if parts[i], err = str(item); err != nil {
			return types.Value{}, err
		}
	}
	return types.String(strings.Join(parts, sep)), nil
}

func fnPadLeft(a []types.Value) (types.Value, error) {
	s, err := str(a[0])
	if err != nil {
		return types.Value{}, err
	}
	width, err := intArg(a[1])
	if err != nil {
		return types.Value{}, err
	}
	if width > types.MaxStringLength {
		return types.Value{}, fmt.Errorf("%w: pad width %d exceeds %d", types.ErrInvalidArgument, width, types.MaxStringLength)
	}
	pad := " "
	if len(a) == 3 {
		if pad, err = str(a[2]); err != nil {
			return types.Value{}, err
		}
		if utf8.RuneCountInString(pad) != 1 {
			return types.Value{}, fmt.Errorf("%w: pad must be a single character", types.ErrCoercionFailed)
		}
	}
	n := width - utf8.RuneCountInString(s)
	if n <= 0 {
		return types.String(s), nil
	}
	return types.String(strings.Repeat(pad, n) + s), nil
}

func floatFn(name string, f func(float64) float64) *function {
	return &function{name: name, minArgs: 1, maxArgs: 1, call: func(a []types.Value) (types.Value, error) {
		x, err := a[0].AsNumber()
		if err != nil {
			return types.Value{}, err
		}
		return types.Float(f(x)), nil
	}}
}

func registerMath() {
	register(
		&function{name: "Abs", minArgs: 1, maxArgs: 1, call: fnAbs},
		&function{name: "Round", minArgs: 1, maxArgs: 2, call: fnRound},
		floatFn("Ceiling", math.Ceil),
		floatFn("Floor", math.Floor),
		floatFn("Truncate", math.Trunc),
		floatFn("Sqrt", math.Sqrt),
		floatFn("Log10", math.Log10),
		floatFn("Exp", math.Exp),
		floatFn("Sin", math.Sin),
		floatFn("Cos", math.Cos),
		floatFn("Tan", math.Tan),
		&function{name: "Log", minArgs: 1, maxArgs: 2, call: fnLog},
		&function{name: "Pow", minArgs: 2, maxArgs: 2, call: func(a []types.Value) (types.Value, error) {
			x, y, err := numbers(a[0], a[1])
			if err != nil {
				return types.Value{}, err
			}
			return types.Float(math.Pow(x, y)), nil
		}},
		&function{name: "Sign", minArgs: 1, maxArgs: 1, call: fnSign},
		&function{name: "Max", minArgs: 2, maxArgs: 2, call: func(a []types.Value) (types.Value, error) {
			return minMax(a[0], a[1], 1)
		}},
		&function{name: "Min", minArgs: 2, maxArgs: 2, call: func(a []types.Value) (types.Value, error) {
			return minMax(a[0], a[1], -1)
		}},
	)
}

func numbers(a, b types.Value) (float64, float64, error) {
	x, err := a.AsNumber()
	if err != nil {
		return 0, 0, err
	}
	y, err := b.AsNumber()
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func fnAbs(a []types.Value) (types.Value, error) {
	if i, ok := a[0].Int(); ok && i != math.MinInt64 {
		if i < 0 {
			i = -i
		}
		return types.Int(i), nil
	}
	x, err := a[0].AsNumber()
	if err != nil {
		return types.Value{}, err
	}
	return types.Float(math.Abs(x)), nil
}

// fnRound rounds half to even, optionally to a number of fractional digits.
func fnRound(a []types.Value) (types.Value, error) {
	x, err := a[0].AsNumber()
	if err != nil {
		return types.Value{}, err
	}
	if len(a) == 1 {
		return types.Float(math.RoundToEven(x)), nil
	}
	digits, err := intArg(a[1])
	if err != nil {
		return types.Value{}, err
	}
	if digits < 0 || digits > 15 {
		return types.Value{}, fmt.Errorf("%w: digits %d outside 0..15", types.ErrCoercionFailed, digits)
	}
	scale := math.Pow(10, float64(digits))
	return types.Float(math.RoundToEven(x*scale) / scale), nil
}

func fnLog(a []types.Value) (types.Value, error) {
	x, err := a[0].AsNumber()
	if err != nil {
		return types.Value{}, err
	}
	if len(a) == 1 {
		return types.Float(math.Log(x)), nil
	}
	base, err := a[1].AsNumber()
	if err != nil {
		return types.Value{}, err
	}
	return types.Float(math.Log(x) / math.Log(base)), nil
}

func fnSign(a []types.Value) (types.Value, error) {
	x, err := a[0].AsNumber()
	if err != nil {
		return types.Value{}, err
	}
	switch {
	case x > 0:
		return types.Int(1), nil
	case x < 0:
		return types.Int(-1), nil
	default:
		return types.Int(0), nil
	}
}

// minMax returns the larger (dir 1) or smaller (dir -1) operand. Two Ints stay Int.
func minMax(a, b types.Value, dir int) (types.Value, error) {
	if x, ok := a.Int(); ok {
		if y, ok := b.Int(); ok {
			if (x > y) == (dir > 0) {
				return types.Int(x), nil
			}
			return types.Int(y), nil
		}
	}
	x, y, err := numbers(a, b)
	if err != nil {
		return types.Value{}, err
	}
	if dir > 0 {
		return types.Float(math.Max(x, y)), nil
	}
	return types.Float(math.Min(x, y)), nil
}
