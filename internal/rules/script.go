// internal/rules/script.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/rulekeeper/internal/dialect"
	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Script rules.
 *
 * A script rule holds a condition expression and named action expressions
 * in one dialect. The rule type is the dialect name.
 *
 * Evaluate binds the context and requires a Bool result; any error or
 * non-Bool value is false. Execute runs each action in definition order with
 * the context overlaid by the results produced so far, so later actions see
 * earlier ones.
 *
 * Callback markers:
 *   => name            callback(name)
 * A marker appends {field, value} to the callback list, where value is the
 * result named by the marker if one has been produced, else the marker text
 * itself. Markers never write their field.
 */

type scriptAction struct {
	field    string
	source   string
	callback string
	isMarker bool
}

// ScriptRule evaluates expressions in a Dialect.
type ScriptRule struct {
	header
	dialect   dialect.Dialect
	condition string
	actions   []scriptAction
}

// NewScriptRule builds a script rule for d from def.
func NewScriptRule(def *types.RuleDefinition, d dialect.Dialect) (*ScriptRule, error) {
	if err := requireIdentity(def); err != nil {
		return nil, err
	}
	if strings.TrimSpace(def.ConditionExpression) == "" {
		return nil, &types.ConstructionError{RuleID: def.RuleID, Field: "conditionExpression", Reason: "must not be empty"}
	}
	if len(def.ConditionExpression) > types.MaxExpressionLength {
		return nil, &types.ConstructionError{RuleID: def.RuleID, Field: "conditionExpression", Err: types.ErrExpressionTooLong}
	}
	if len(def.ActionExpressions) == 0 {
		return nil, &types.ConstructionError{RuleID: def.RuleID, Field: "actionExpressions", Reason: "at least one action expression is required"}
	}

	acts := make([]scriptAction, 0, len(def.ActionExpressions))
	for _, ae := range def.ActionExpressions {
		field := "actionExpressions." + ae.Field
		switch {
		case ae.Field == "":
			return nil, &types.ConstructionError{RuleID: def.RuleID, Field: "actionExpressions", Reason: "action name must not be empty"}
		case strings.TrimSpace(ae.Expression) == "":
			return nil, &types.ConstructionError{RuleID: def.RuleID, Field: field, Reason: "must not be empty"}
		case len(ae.Expression) > types.MaxExpressionLength:
			return nil, &types.ConstructionError{RuleID: def.RuleID, Field: field, Err: types.ErrExpressionTooLong}
		}
		a := scriptAction{field: ae.Field, source: ae.Expression}
		a.callback, a.isMarker = callbackMarker(ae.Expression)
		acts = append(acts, a)
	}

	return &ScriptRule{
		header:    header{id: def.RuleID, name: def.RuleName, ruleType: d.Name()},
		dialect:   d,
		condition: def.ConditionExpression,
		actions:   acts,
	}, nil
}

// callbackMarker extracts the argument of "=> x" or "callback(x)".
func callbackMarker(src string) (string, bool) {
	s := strings.TrimSpace(src)
	if rest, ok := strings.CutPrefix(s, "=>"); ok {
		return strings.TrimSpace(rest), true
	}
	if strings.HasPrefix(s, "callback(") && strings.HasSuffix(s, ")") {
		return strings.TrimSpace(s[len("callback(") : len(s)-1]), true
	}
	return "", false
}

// Evaluate reports whether the condition expression yields true.
func (r *ScriptRule) Evaluate(ctx *types.Map) bool {
	ok, _ := r.check(ctx)
	return ok
}

func (r *ScriptRule) check(ctx *types.Map) (bool, error) {
	v, err := r.dialect.Eval(r.condition, bindings(ctx, nil))
	if err != nil {
		return false, err
	}
	b, err := v.AsBool()
	if err != nil {
		return false, fmt.Errorf("condition result: %w", err)
	}
	return b, nil
}

// Execute runs the action expressions when the condition holds.
func (r *ScriptRule) Execute(ctx *types.Map) (*types.Map, error) {
	results := types.NewMap()
	if !r.Evaluate(ctx) {
		return results, nil
	}

	for _, a := range r.actions {
		if a.isMarker {
			value, ok := results.Get(a.callback)
			if !ok {
				value = types.String(a.callback)
			}
			results.AppendCallback(a.field, value)
			continue
		}

		v, err := r.dialect.Eval(a.source, bindings(ctx, results))
		if err != nil {
			return nil, actionError(r.id, a.field, r.dialect.Name(), err)
		}
		results.Set(a.field, v)
	}
	return results, nil
}

// bindings overlays results on ctx for evaluation. The callback list is not
// a variable.
func bindings(ctx, results *types.Map) *types.Map {
	env := types.NewMap()
	for _, m := range []*types.Map{ctx, results} {
		m.Range(func(k string, v types.Value) bool {
			if k != types.CallbacksKey {
				env.Set(k, v)
			}
			return true
		})
	}
	return env
}
