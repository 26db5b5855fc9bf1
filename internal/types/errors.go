// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for RuleKeeper operations.
var (
	// ErrCoercionFailed indicates a value could not be converted to the required type.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrUnboundVariable indicates an expression referenced a name with no binding.
	ErrUnboundVariable = errors.New("unbound variable")

	// ErrDivideByZero indicates a division or modulo by zero.
	ErrDivideByZero = errors.New("division by zero")

	// ErrIndexOutOfRange indicates an array access outside its bounds.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrInvalidOperator indicates an operator token not present in the registry.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrUnsupportedRuleType indicates no factory is registered for a rule type.
	ErrUnsupportedRuleType = errors.New("unsupported rule type")

	// ErrUnknownFunction indicates a call to a function the evaluator does not define.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrArgumentCount indicates a function was called with the wrong number of arguments.
	ErrArgumentCount = errors.New("wrong number of arguments")

	// ErrInvalidArgument indicates a function argument outside its accepted range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSyntax indicates an expression could not be parsed.
	ErrSyntax = errors.New("syntax error")

	// ErrNilInput indicates ExecuteRules was called without an input map.
	ErrNilInput = errors.New("input map is nil")

	// ErrFactoryExists indicates a factory is already registered for a rule type.
	ErrFactoryExists = errors.New("factory already registered")

	// ErrRuleDepth indicates composite nesting exceeds MaxRuleDepth.
	ErrRuleDepth = errors.New("rule nesting exceeds maximum depth")

	// ErrExpressionTooLong indicates an expression source exceeds MaxExpressionLength.
	ErrExpressionTooLong = errors.New("expression exceeds maximum length")
)

// ConstructionError reports a malformed or incomplete rule definition.
// Raised when a rule is built, never while it is evaluated.
type ConstructionError struct {
	RuleID string
	Field  string
	Reason string
	Err    error
}

func (e *ConstructionError) Error() string {
	var b strings.Builder
	b.WriteString("construct rule")
	if e.RuleID != "" {
		fmt.Fprintf(&b, " %q", e.RuleID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// EvaluationError reports a failure while evaluating an expression or applying an
// action. Condition phases swallow it; action phases propagate it.
type EvaluationError struct {
	RuleID   string
	Action   string
	Operator string
	Message  string
	Err      error
}

func (e *EvaluationError) Error() string {
	var b strings.Builder
	b.WriteString("evaluate")
	if e.RuleID != "" {
		fmt.Fprintf(&b, " rule %q", e.RuleID)
	}
	if e.Action != "" {
		fmt.Fprintf(&b, " action %q", e.Action)
	}
	if e.Operator != "" {
		fmt.Fprintf(&b, " (%s)", e.Operator)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// InputError reports an unusable input map passed to the engine.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid input: %s: %v", e.Reason, e.Err)
	}
	return "invalid input: " + e.Reason
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Errorf builds an EvaluationError wrapping err with a formatted message.
// Evaluators use it so every failure carries a sentinel for errors.Is.
func Errorf(err error, format string, args ...any) error {
	return &EvaluationError{Message: fmt.Sprintf(format, args...), Err: err}
}
