// internal/rules/operators.go
package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/solatis/rulekeeper/internal/expression"
	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Operator registry.
 *
 * Whitelist of condition and action operators consulted by factories and the
 * validator. Tokens are case-insensitive; symbolic aliases map onto their
 * canonical word form before lookup.
 *
 * Condition operators:
 *   equals (==), notEquals (!=)                  Equal semantics
 *   greaterThan (>), lessThan (<)                Compare semantics
 *   greaterThanOrEqual (>=), lessThanOrEqual (<=)
 *
 * Action operators:
 *   set (=), add (+=), subtract (-=), multiply (*=), divide (/=), callback
 *
 * Operators registered by name only are accepted by validation but have no
 * behavior: conditions using them evaluate false and actions fail with
 * ErrInvalidOperator. RegisterConditionFunc and RegisterActionFunc attach
 * behavior.
 */

// ConditionFunc compares an input value against a condition's operand.
// An error makes the condition false.
type ConditionFunc func(actual, expected types.Value) (bool, error)

// ActionFunc computes an action's new value. current is the field's value in
// results-so-far or the context; present reports whether it exists.
type ActionFunc func(current types.Value, present bool, operand types.Value) (types.Value, error)

// Canonical operator names.
const (
	OpEquals             = "equals"
	OpNotEquals          = "notequals"
	OpGreaterThan        = "greaterthan"
	OpLessThan           = "lessthan"
	OpGreaterThanOrEqual = "greaterthanorequal"
	OpLessThanOrEqual    = "lessthanorequal"

	OpSet      = "set"
	OpAdd      = "add"
	OpSubtract = "subtract"
	OpMultiply = "multiply"
	OpDivide   = "divide"
	OpCallback = "callback"
)

var conditionAliases = map[string]string{
	"==": OpEquals,
	"!=": OpNotEquals,
	">":  OpGreaterThan,
	"<":  OpLessThan,
	">=": OpGreaterThanOrEqual,
	"<=": OpLessThanOrEqual,
}

var actionAliases = map[string]string{
	"=":  OpSet,
	"+=": OpAdd,
	"-=": OpSubtract,
	"*=": OpMultiply,
	"/=": OpDivide,
}

// OperatorRegistry is a mutable, concurrency-safe operator whitelist.
type OperatorRegistry struct {
	mu         sync.RWMutex
	conditions map[string]ConditionFunc
	actions    map[string]ActionFunc
}

// NewOperatorRegistry returns a registry populated with the built-in vocabularies.
func NewOperatorRegistry() *OperatorRegistry {
	r := &OperatorRegistry{
		conditions: map[string]ConditionFunc{
			OpEquals:             compareEquals,
			OpNotEquals:          compareNotEquals,
			OpGreaterThan:        ordered(func(c int) bool { return c > 0 }),
			OpLessThan:           ordered(func(c int) bool { return c < 0 }),
			OpGreaterThanOrEqual: ordered(func(c int) bool { return c >= 0 }),
			OpLessThanOrEqual:    ordered(func(c int) bool { return c <= 0 }),
		},
		actions: map[string]ActionFunc{
			OpSet:      actionSet,
			OpAdd:      actionAdd,
			OpSubtract: numericAction("-"),
			OpMultiply: numericAction("*"),
			OpDivide:   numericAction("/"),
			// callback is handled by the action runner; it never computes a value.
			OpCallback: nil,
		},
	}
	return r
}

func normalize(op string, aliases map[string]string) string {
	op = strings.ToLower(strings.TrimSpace(op))
	if canonical, ok := aliases[op]; ok {
		return canonical
	}
	return op
}

// RegisterConditionOperators whitelists condition operator names.
func (r *OperatorRegistry) RegisterConditionOperators(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		op := normalize(name, conditionAliases)
		if _, ok := r.conditions[op]; !ok {
			r.conditions[op] = nil
		}
	}
}

// RegisterActionOperators whitelists action operator names.
func (r *OperatorRegistry) RegisterActionOperators(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		op := normalize(name, actionAliases)
		if _, ok := r.actions[op]; !ok {
			r.actions[op] = nil
		}
	}
}

// RegisterConditionFunc registers or replaces a condition operator with behavior.
func (r *OperatorRegistry) RegisterConditionFunc(name string, fn ConditionFunc) error {
	op := normalize(name, conditionAliases)
	if op == "" || fn == nil {
		return fmt.Errorf("%w: condition operator %q needs a name and a function", types.ErrInvalidOperator, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[op] = fn
	return nil
}

// RegisterActionFunc registers or replaces an action operator with behavior.
func (r *OperatorRegistry) RegisterActionFunc(name string, fn ActionFunc) error {
	op := normalize(name, actionAliases)
	if op == "" || op == OpCallback || fn == nil {
		return fmt.Errorf("%w: action operator %q needs a name and a function", types.ErrInvalidOperator, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[op] = fn
	return nil
}

// IsValidConditionOperator reports whether op (or its alias) is whitelisted.
func (r *OperatorRegistry) IsValidConditionOperator(op string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conditions[normalize(op, conditionAliases)]
	return ok
}

// IsValidActionOperator reports whether op (or its alias) is whitelisted.
func (r *OperatorRegistry) IsValidActionOperator(op string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[normalize(op, actionAliases)]
	return ok
}

// ConditionOperators lists canonical condition operators and aliases, sorted.
func (r *OperatorRegistry) ConditionOperators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return operatorNames(r.conditions, conditionAliases)
}

// ActionOperators lists canonical action operators and aliases, sorted.
func (r *OperatorRegistry) ActionOperators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return operatorNames(r.actions, actionAliases)
}

func operatorNames[F any](ops map[string]F, aliases map[string]string) []string {
	names := make([]string, 0, len(ops)+len(aliases))
	for name := range ops {
		names = append(names, name)
	}
	for alias := range aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// condition resolves op to its canonical name and behavior.
func (r *OperatorRegistry) condition(op string) (string, ConditionFunc, bool) {
	name := normalize(op, conditionAliases)
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.conditions[name]
	return name, fn, ok
}

// action resolves op to its canonical name and behavior.
func (r *OperatorRegistry) action(op string) (string, ActionFunc, bool) {
	name := normalize(op, actionAliases)
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[name]
	return name, fn, ok
}

func compareEquals(actual, expected types.Value) (bool, error) {
	return types.Equal(actual, expected), nil
}

func compareNotEquals(actual, expected types.Value) (bool, error) {
	return !types.Equal(actual, expected), nil
}

// ordered adapts a three-way comparison test into a ConditionFunc.
func ordered(test func(c int) bool) ConditionFunc {
	return func(actual, expected types.Value) (bool, error) {
		c, err := types.Compare(actual, expected)
		if err != nil {
			return false, err
		}
		return test(c), nil
	}
}

func actionSet(_ types.Value, _ bool, operand types.Value) (types.Value, error) {
	return operand, nil
}

// actionAdd yields the operand when there is no current value (or it is null),
// otherwise adds numerically or concatenates when either side is a string.
func actionAdd(current types.Value, present bool, operand types.Value) (types.Value, error) {
	if !present || current.IsNull() {
		return operand, nil
	}
	return expression.Add(current, operand)
}

func numericAction(op string) ActionFunc {
	return func(current types.Value, present bool, operand types.Value) (types.Value, error) {
		if !present {
			return types.Value{}, fmt.Errorf("%w: no current value", types.ErrUnboundVariable)
		}
		return expression.Arith(op, current, operand)
	}
}
