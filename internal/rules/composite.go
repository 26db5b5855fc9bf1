// internal/rules/composite.go
package rules

import (
	"strconv"
	"strings"

	"github.com/solatis/rulekeeper/internal/types"
)

// Composite operators.
const (
	CompositeAnd = "And"
	CompositeOr  = "Or"
	CompositeNot = "Not"
)

// ParseCompositeOperator normalizes a composite operator token.
func ParseCompositeOperator(op string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "and":
		return CompositeAnd, true
	case "or":
		return CompositeOr, true
	case "not":
		return CompositeNot, true
	}
	return "", false
}

// CompositeRule combines child rules with And, Or or Not.
//
// Execute is gated by the composite's own Evaluate. When it fires, every
// child runs independently against the same context (a child that does not
// fire contributes nothing), child results merge in order with later values
// winning and callbacks accumulating, and the composite's own actions apply
// on top of the merged map.
type CompositeRule struct {
	header
	operator string
	children []Rule
	actions  []action
}

// NewCompositeRule assembles a composite from already-built children.
func NewCompositeRule(def *types.RuleDefinition, children []Rule, ops *OperatorRegistry) (*CompositeRule, error) {
	if err := requireIdentity(def); err != nil {
		return nil, err
	}
	op, ok := ParseCompositeOperator(def.Operator)
	if !ok {
		return nil, &types.ConstructionError{RuleID: def.RuleID, Field: "operator", Reason: "must be And, Or or Not, got " + strconv.Quote(def.Operator), Err: types.ErrInvalidOperator}
	}
	if len(children) == 0 {
		return nil, &types.ConstructionError{RuleID: def.RuleID, Field: "rules", Reason: "at least one child rule is required"}
	}
	if op == CompositeNot && len(children) != 1 {
		return nil, &types.ConstructionError{RuleID: def.RuleID, Field: "rules", Reason: "Not requires exactly one child rule"}
	}
	acts, err := compileActions(def.RuleID, def.Actions, ops)
	if err != nil {
		return nil, err
	}

	return &CompositeRule{
		header:   header{id: def.RuleID, name: def.RuleName, ruleType: types.RuleTypeComposite},
		operator: op,
		children: children,
		actions:  acts,
	}, nil
}

// Operator returns And, Or or Not.
func (r *CompositeRule) Operator() string { return r.operator }

// Children returns the child rules in order.
func (r *CompositeRule) Children() []Rule {
	out := make([]Rule, len(r.children))
	copy(out, r.children)
	return out
}

// Evaluate combines child evaluations with short-circuiting.
func (r *CompositeRule) Evaluate(ctx *types.Map) bool {
	switch r.operator {
	case CompositeAnd:
		for _, c := range r.children {
			if !c.Evaluate(ctx) {
				return false
			}
		}
		return true
	case CompositeOr:
		for _, c := range r.children {
			if c.Evaluate(ctx) {
				return true
			}
		}
		return false
	case CompositeNot:
		return !r.children[0].Evaluate(ctx)
	}
	return false
}

// Execute runs the firing children and the composite's own actions.
// It checks the composite's own Evaluate first: when that is false the result
// is empty even if some children would fire on their own, so an And with one
// true child yields nothing. Callers need not call Evaluate beforehand.
func (r *CompositeRule) Execute(ctx *types.Map) (*types.Map, error) {
	merged := types.NewMap()
	if !r.Evaluate(ctx) {
		return merged, nil
	}

	for _, c := range r.children {
		out, err := c.Execute(ctx)
		if err != nil {
			return nil, err
		}
		merged.Merge(out)
	}

	if err := applyActions(r.id, r.actions, ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}
