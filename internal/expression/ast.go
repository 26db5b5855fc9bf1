// internal/expression/ast.go
package expression

import (
	"errors"
	"fmt"
	"math"

	"github.com/solatis/rulekeeper/internal/types"
)

// scope resolves identifiers during evaluation.
type scope interface {
	Get(name string) (types.Value, bool)
}

type node interface {
	eval(s scope) (types.Value, error)
}

type literalNode struct {
	value types.Value
}

func (n *literalNode) eval(scope) (types.Value, error) {
	return n.value, nil
}

type identNode struct {
	name string
}

func (n *identNode) eval(s scope) (types.Value, error) {
	if v, ok := s.Get(n.name); ok {
		return v, nil
	}
	return types.Value{}, types.Errorf(types.ErrUnboundVariable, "%s", n.name)
}

type arrayNode struct {
	items []node
}

func (n *arrayNode) eval(s scope) (types.Value, error) {
	items := make([]types.Value, len(n.items))
	for i, item := range n.items {
		v, err := item.eval(s)
		if err != nil {
			return types.Value{}, err
		}
		items[i] = v
	}
	return types.Array(items...), nil
}

type indexNode struct {
	target node
	index  node
}

func (n *indexNode) eval(s scope) (types.Value, error) {
	target, err := n.target.eval(s)
	if err != nil {
		return types.Value{}, err
	}
	idx, err := n.index.eval(s)
	if err != nil {
		return types.Value{}, err
	}
	return index(target, idx)
}

// index reads an array element by zero-based position or a map entry by key.
func index(target, idx types.Value) (types.Value, error) {
	switch target.Kind() {
	case types.KindArray:
		i, err := idx.AsInt()
		if err != nil {
			return types.Value{}, types.Errorf(err, "array index %s", idx)
		}
		items := target.Items()
		if i < 0 || i >= int64(len(items)) {
			return types.Value{}, types.Errorf(types.ErrIndexOutOfRange, "index %d, length %d", i, len(items))
		}
		return items[i], nil
	case types.KindMap:
		v, ok := target.Map().Get(idx.Text())
		if !ok {
			return types.Value{}, types.Errorf(types.ErrUnboundVariable, "key %s", idx)
		}
		return v, nil
	}
	return types.Value{}, types.Errorf(types.ErrCoercionFailed, "cannot index %s", target.Kind())
}

type unaryNode struct {
	op      string
	operand node
}

func (n *unaryNode) eval(s scope) (types.Value, error) {
	v, err := n.operand.eval(s)
	if err != nil {
		return types.Value{}, err
	}
	switch n.op {
	case "!":
		b, err := v.AsBool()
		if err != nil {
			return types.Value{}, types.Errorf(err, "operand of !")
		}
		return types.Bool(!b), nil
	case "-":
		if i, ok := v.Int(); ok {
			if i == math.MinInt64 {
				return types.Float(-float64(i)), nil
			}
			return types.Int(-i), nil
		}
		f, err := v.AsNumber()
		if err != nil {
			return types.Value{}, types.Errorf(err, "operand of unary -")
		}
		return types.Float(-f), nil
	default:
		if v.IsNumeric() {
			return v, nil
		}
		f, err := v.AsNumber()
		if err != nil {
			return types.Value{}, types.Errorf(err, "operand of unary +")
		}
		return types.Float(f), nil
	}
}

type logicalNode struct {
	and         bool
	left, right node
}

func (n *logicalNode) eval(s scope) (types.Value, error) {
	l, err := evalBool(n.left, s)
	if err != nil {
		return types.Value{}, err
	}
	if n.and != l {
		return types.Bool(l), nil
	}
	r, err := evalBool(n.right, s)
	if err != nil {
		return types.Value{}, err
	}
	return types.Bool(r), nil
}

func evalBool(n node, s scope) (bool, error) {
	v, err := n.eval(s)
	if err != nil {
		return false, err
	}
	b, err := v.AsBool()
	if err != nil {
		return false, types.Errorf(err, "logical operand %s", v)
	}
	return b, nil
}

type ternaryNode struct {
	cond, then, els node
}

func (n *ternaryNode) eval(s scope) (types.Value, error) {
	c, err := evalBool(n.cond, s)
	if err != nil {
		return types.Value{}, err
	}
	if c {
		return n.then.eval(s)
	}
	return n.els.eval(s)
}

type coalesceNode struct {
	left, right node
}

// eval yields the left operand unless it is null or unbound.
func (n *coalesceNode) eval(s scope) (types.Value, error) {
	v, err := n.left.eval(s)
	if err != nil && !errors.Is(err, types.ErrUnboundVariable) {
		return types.Value{}, err
	}
	if err == nil && !v.IsNull() {
		return v, nil
	}
	return n.right.eval(s)
}

type binaryNode struct {
	op          string
	left, right node
}

func (n *binaryNode) eval(s scope) (types.Value, error) {
	l, err := n.left.eval(s)
	if err != nil {
		return types.Value{}, err
	}
	r, err := n.right.eval(s)
	if err != nil {
		return types.Value{}, err
	}
	return binary(n.op, l, r)
}

func binary(op string, l, r types.Value) (types.Value, error) {
	switch op {
	case "==":
		return types.Bool(types.Equal(l, r)), nil
	case "!=":
		return types.Bool(!types.Equal(l, r)), nil
	case "<", "<=", ">", ">=":
		c, err := types.Compare(l, r)
		if err != nil {
			return types.Value{}, types.Errorf(err, "%s %s %s", l, op, r)
		}
		switch op {
		case "<":
			return types.Bool(c < 0), nil
		case "<=":
			return types.Bool(c <= 0), nil
		case ">":
			return types.Bool(c > 0), nil
		default:
			return types.Bool(c >= 0), nil
		}
	case "+":
		return Add(l, r)
	}
	return Arith(op, l, r)
}

// Add implements the + operator. Numeric when both sides coerce to numbers,
// string concatenation when either side is a String.
func Add(l, r types.Value) (types.Value, error) {
	if v, err := Arith("+", l, r); err == nil {
		return v, nil
	} else if l.Kind() != types.KindString && r.Kind() != types.KindString {
		return types.Value{}, err
	}
	return types.String(l.Text() + r.Text()), nil
}

// Arith applies a numeric operator (+ - * / %). Int op Int stays Int except for
// division and overflow, which yield Float.
func Arith(op string, l, r types.Value) (types.Value, error) {
	if li, ok := l.ExactInt(); ok {
		if ri, ok := r.ExactInt(); ok && op != "/" {
			return intArith(op, li, ri)
		}
	}
	lf, err := l.AsNumber()
	if err != nil {
		return types.Value{}, types.Errorf(err, "left operand of %s", op)
	}
	rf, err := r.AsNumber()
	if err != nil {
		return types.Value{}, types.Errorf(err, "right operand of %s", op)
	}
	switch op {
	case "+":
		return types.Float(lf + rf), nil
	case "-":
		return types.Float(lf - rf), nil
	case "*":
		return types.Float(lf * rf), nil
	case "/":
		if rf == 0 {
			return types.Value{}, types.Errorf(types.ErrDivideByZero, "%s / %s", l, r)
		}
		return types.Float(lf / rf), nil
	case "%":
		if rf == 0 {
			return types.Value{}, types.Errorf(types.ErrDivideByZero, "%s %% %s", l, r)
		}
		return types.Float(math.Mod(lf, rf)), nil
	}
	return types.Value{}, types.Errorf(types.ErrInvalidOperator, "%s", op)
}

func intArith(op string, a, b int64) (types.Value, error) {
	switch op {
	case "+":
		c := a + b
		if (c > a) != (b > 0) {
			return types.Float(float64(a) + float64(b)), nil
		}
		return types.Int(c), nil
	case "-":
		c := a - b
		if (c < a) != (b > 0) {
			return types.Float(float64(a) - float64(b)), nil
		}
		return types.Int(c), nil
	case "*":
		if a == 0 || b == 0 {
			return types.Int(0), nil
		}
		c := a * b
		if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return types.Float(float64(a) * float64(b)), nil
		}
		return types.Int(c), nil
	case "%":
		if b == 0 {
			return types.Value{}, types.Errorf(types.ErrDivideByZero, "%d %% %d", a, b)
		}
		if b == -1 {
			return types.Int(0), nil
		}
		return types.Int(a % b), nil
	}
	return types.Value{}, types.Errorf(types.ErrInvalidOperator, "%s", op)
}

type callNode struct {
	fn   *function
	args []node
}

func (n *callNode) eval(s scope) (types.Value, error) {
	if n.fn.lazy != nil {
		return n.fn.lazy(s, n.args)
	}
	args := make([]types.Value, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(s)
		if err != nil {
			return types.Value{}, err
		}
		args[i] = v
	}
	v, err := n.fn.call(args)
	if err != nil {
		return types.Value{}, wrap(err, "%s", n.fn.name)
	}
	return v, nil
}

// wrap adds context to err. Errors that already carry an EvaluationError keep it
// as the innermost typed error instead of nesting a second one.
func wrap(err error, format string, args ...any) error {
	var ee *types.EvaluationError
	if errors.As(err, &ee) {
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
	return types.Errorf(err, format, args...)
}
