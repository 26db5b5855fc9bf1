// internal/rules/simple.go
package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Simple rules.
 *
 * A simple rule fires when every per-field condition holds. Conditions are
 * compiled once at construction: operators resolve to their canonical name
 * and comparison function, then conditions are ordered by ascending cost.
 *
 * Evaluation flow:
 *   1. Resolve field (exact key, then dotted path)
 *   2. Missing field -> false
 *   3. Compare with the operator function; error or false -> false
 *
 * Actions run in definition order against a working result map. Each action
 * reads its current value from the results produced so far, then from the
 * context, and writes its field in the results. The callback operator
 * appends to the callback list instead of writing its field. A string
 * operand that names a result or context key is replaced by that value.
 */

type condition struct {
	field    string
	op       string
	compare  ConditionFunc
	expected types.Value
	cost     int
}

type action struct {
	field   string
	op      string
	apply   ActionFunc
	operand types.Value
}

// SimpleRule is a conjunction of field comparisons with per-field actions.
type SimpleRule struct {
	header
	conditions []condition // ordered by ascending cost
	actions    []action
}

// NewSimpleRule compiles def against ops.
func NewSimpleRule(def *types.RuleDefinition, ops *OperatorRegistry) (*SimpleRule, error) {
	if err := requireIdentity(def); err != nil {
		return nil, err
	}
	if len(def.Conditions) == 0 {
		return nil, &types.ConstructionError{RuleID: def.RuleID, Field: "conditions", Reason: "at least one condition is required"}
	}

	conds, err := compileConditions(def.RuleID, def.Conditions, ops)
	if err != nil {
		return nil, err
	}
	acts, err := compileActions(def.RuleID, def.Actions, ops)
	if err != nil {
		return nil, err
	}

	return &SimpleRule{
		header:     header{id: def.RuleID, name: def.RuleName, ruleType: types.RuleTypeSimple},
		conditions: conds,
		actions:    acts,
	}, nil
}

func requireIdentity(def *types.RuleDefinition) error {
	if def == nil {
		return &types.ConstructionError{Reason: "rule definition is nil"}
	}
	if def.RuleID == "" {
		return &types.ConstructionError{Field: "ruleId", Reason: "must not be empty"}
	}
	if def.RuleName == "" {
		return &types.ConstructionError{RuleID: def.RuleID, Field: "ruleName", Reason: "must not be empty"}
	}
	return nil
}

func compileConditions(ruleID string, defs types.Conditions, ops *OperatorRegistry) ([]condition, error) {
	conds := make([]condition, 0, len(defs))
	for _, c := range defs {
		if c.Field == "" {
			return nil, &types.ConstructionError{RuleID: ruleID, Field: "conditions", Reason: "condition field must not be empty"}
		}
		name, fn, ok := ops.condition(c.Operator)
		if !ok {
			return nil, &types.ConstructionError{
				RuleID: ruleID,
				Field:  "conditions." + c.Field,
				Reason: fmt.Sprintf("operator %q", c.Operator),
				Err:    types.ErrInvalidOperator,
			}
		}
		conds = append(conds, condition{
			field:    c.Field,
			op:       name,
			compare:  fn,
			expected: c.Value,
			cost:     ConditionCost(c.Field, name, c.Value),
		})
	}

	// Stable sort: equal-cost conditions keep definition order
	sort.SliceStable(conds, func(i, j int) bool {
		return conds[i].cost < conds[j].cost
	})
	return conds, nil
}

func compileActions(ruleID string, defs types.Actions, ops *OperatorRegistry) ([]action, error) {
	acts := make([]action, 0, len(defs))
	for _, a := range defs {
		if a.Field == "" {
			return nil, &types.ConstructionError{RuleID: ruleID, Field: "actions", Reason: "action field must not be empty"}
		}
		name, fn, ok := ops.action(a.Operator)
		if !ok {
			return nil, &types.ConstructionError{
				RuleID: ruleID,
				Field:  "actions." + a.Field,
				Reason: fmt.Sprintf("operator %q", a.Operator),
				Err:    types.ErrInvalidOperator,
			}
		}
		acts = append(acts, action{field: a.Field, op: name, apply: fn, operand: a.Value})
	}
	return acts, nil
}

// Evaluate reports whether every condition holds for ctx.
func (r *SimpleRule) Evaluate(ctx *types.Map) bool {
	ok, _ := r.check(ctx)
	return ok
}

// check evaluates the conditions, returning why a condition failed when a
// comparison errored. A missing field or a false comparison is not an error.
func (r *SimpleRule) check(ctx *types.Map) (bool, error) {
	for _, c := range r.conditions {
		actual, ok := Resolve(ctx, c.field)
		if !ok {
			return false, nil
		}
		if c.compare == nil {
			return false, fmt.Errorf("%w: %q has no comparison function", types.ErrInvalidOperator, c.op)
		}
		matched, err := c.compare(actual, c.expected)
		if err != nil {
			return false, fmt.Errorf("condition %q (%s): %w", c.field, c.op, err)
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// Execute applies the actions when the rule fires.
func (r *SimpleRule) Execute(ctx *types.Map) (*types.Map, error) {
	results := types.NewMap()
	if !r.Evaluate(ctx) {
		return results, nil
	}
	if err := applyActions(r.id, r.actions, ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

// applyActions runs acts in order, writing into results.
func applyActions(ruleID string, acts []action, ctx, results *types.Map) error {
	s := scope{ctx: ctx, results: results}
	for _, a := range acts {
		operand := s.resolveOperand(a.operand)

		if a.op == OpCallback {
			results.AppendCallback(a.field, operand)
			continue
		}
		if a.apply == nil {
			return &types.EvaluationError{
				RuleID:   ruleID,
				Action:   a.field,
				Operator: a.op,
				Message:  "operator has no action function",
				Err:      types.ErrInvalidOperator,
			}
		}

		current, present := s.lookup(a.field)
		v, err := a.apply(current, present, operand)
		if err != nil {
			return actionError(ruleID, a.field, a.op, err)
		}
		results.Set(a.field, v)
	}
	return nil
}

// resolveOperand replaces a string operand naming a known key with that key's value.
func (s scope) resolveOperand(operand types.Value) types.Value {
	name, ok := operand.Str()
	if !ok || name == "" {
		return operand
	}
	if v, found := s.lookup(name); found {
		return v
	}
	return operand
}

// actionError names the rule and action on err. An EvaluationError from an
// evaluator is annotated in place of being wrapped a second time.
func actionError(ruleID, field, op string, err error) error {
	if ee, ok := err.(*types.EvaluationError); ok && ee.RuleID == "" && ee.Action == "" {
		annotated := *ee
		annotated.RuleID = ruleID
		annotated.Action = field
		annotated.Operator = op
		return &annotated
	}
	return &types.EvaluationError{RuleID: ruleID, Action: field, Operator: op, Err: err}
}
