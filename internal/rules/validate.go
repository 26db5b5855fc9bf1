// internal/rules/validate.go
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/solatis/rulekeeper/internal/expression"
	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Definition validation.
 *
 * The Validator checks definitions without building rules and reports every
 * problem it finds, where factories stop at the first. It is used by the
 * validate command and before a rule set is stored.
 *
 * Expression-dialect sources are also parsed so syntax errors show up here
 * and not as conditions that never fire.
 */

// ValidationError is one problem found in a definition.
type ValidationError struct {
	RuleID  string
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.RuleID != "" {
		fmt.Fprintf(&b, "rule %q: ", e.RuleID)
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// Validator checks definitions against an operator whitelist and a set of
// known rule types.
type Validator struct {
	ops      *OperatorRegistry
	registry *Registry
}

// NewValidator creates a validator. A nil registry accepts the built-in types.
func NewValidator(ops *OperatorRegistry, registry *Registry) *Validator {
	if ops == nil {
		ops = NewOperatorRegistry()
	}
	return &Validator{ops: ops, registry: registry}
}

// Validate returns every problem in def. An empty result means def is valid.
func (v *Validator) Validate(def *types.RuleDefinition) []ValidationError {
	w := &walker{v: v}
	w.rule(def, "", 1)
	return w.errs
}

// ValidateRuleSet validates every rule in set.
func (v *Validator) ValidateRuleSet(set *types.RuleSet) []ValidationError {
	if set == nil || len(set.Rules) == 0 {
		return []ValidationError{{Path: "rules", Message: "rule set is empty"}}
	}
	w := &walker{v: v}
	for i, def := range set.Rules {
		w.rule(def, fmt.Sprintf("rules[%d]", i), 1)
	}
	return w.errs
}

// ValidateAndJoin validates def and joins the problems into one error.
func (v *Validator) ValidateAndJoin(def *types.RuleDefinition) error {
	return joinValidation(v.Validate(def))
}

func joinValidation(problems []ValidationError) error {
	if len(problems) == 0 {
		return nil
	}
	errs := make([]error, len(problems))
	for i, p := range problems {
		errs[i] = p
	}
	return errors.Join(errs...)
}

func (v *Validator) isScriptType(ruleType string) bool {
	if v.registry != nil {
		return v.registry.Has(ruleType)
	}
	switch ruleType {
	case types.RuleTypeExpression, types.RuleTypeLua, types.RuleTypeExpr, types.RuleTypeCEL:
		return true
	}
	return false
}

type walker struct {
	v    *Validator
	errs []ValidationError
}

func (w *walker) add(ruleID, path, format string, args ...any) {
	w.errs = append(w.errs, ValidationError{RuleID: ruleID, Path: path, Message: fmt.Sprintf(format, args...)})
}

func join(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

func (w *walker) rule(def *types.RuleDefinition, path string, depth int) {
	if def == nil {
		w.add("", path, "rule definition is null")
		return
	}
	id := def.RuleID
	if id == "" {
		w.add("", join(path, "ruleId"), "must not be empty")
	}
	if def.RuleName == "" {
		w.add(id, join(path, "ruleName"), "must not be empty")
	}

	ruleType := strings.ToLower(strings.TrimSpace(def.Type))
	switch {
	case ruleType == "" || ruleType == types.RuleTypeSimple:
		w.simple(def, path)
	case ruleType == types.RuleTypeComposite:
		w.composite(def, path, depth)
	case w.v.isScriptType(ruleType):
		w.script(def, ruleType, path)
	default:
		w.add(id, join(path, "type"), "unsupported rule type %q", def.Type)
	}
}

func (w *walker) simple(def *types.RuleDefinition, path string) {
	if len(def.Conditions) == 0 {
		w.add(def.RuleID, join(path, "conditions"), "at least one condition is required")
	}
	for _, c := range def.Conditions {
		p := join(path, "conditions."+c.Field)
		if c.Field == "" {
			w.add(def.RuleID, join(path, "conditions"), "condition field must not be empty")
		}
		if !w.v.ops.IsValidConditionOperator(c.Operator) {
			w.add(def.RuleID, p, "unknown condition operator %q", c.Operator)
		}
	}
	w.actions(def, path)
}

func (w *walker) actions(def *types.RuleDefinition, path string) {
	for _, a := range def.Actions {
		if a.Field == "" {
			w.add(def.RuleID, join(path, "actions"), "action field must not be empty")
		}
		if !w.v.ops.IsValidActionOperator(a.Operator) {
			w.add(def.RuleID, join(path, "actions."+a.Field), "unknown action operator %q", a.Operator)
		}
	}
}

func (w *walker) script(def *types.RuleDefinition, ruleType, path string) {
	if strings.TrimSpace(def.ConditionExpression) == "" {
		w.add(def.RuleID, join(path, "conditionExpression"), "must not be empty")
	} else {
		w.source(def.RuleID, join(path, "conditionExpression"), ruleType, def.ConditionExpression)
	}

	if len(def.ActionExpressions) == 0 {
		w.add(def.RuleID, join(path, "actionExpressions"), "at least one action expression is required")
	}
	for _, ae := range def.ActionExpressions {
		p := join(path, "actionExpressions."+ae.Field)
		if ae.Field == "" {
			w.add(def.RuleID, join(path, "actionExpressions"), "action name must not be empty")
		}
		if strings.TrimSpace(ae.Expression) == "" {
			w.add(def.RuleID, p, "must not be empty")
			continue
		}
		if _, marker := callbackMarker(ae.Expression); !marker {
			w.source(def.RuleID, p, ruleType, ae.Expression)
		}
	}
}

// source checks length for every dialect and syntax for the expression dialect.
func (w *walker) source(ruleID, path, ruleType, src string) {
	if len(src) > types.MaxExpressionLength {
		w.add(ruleID, path, "expression is %d bytes, limit is %d", len(src), types.MaxExpressionLength)
		return
	}
	if ruleType != types.RuleTypeExpression {
		return
	}
	if _, err := expression.Parse(src); err != nil {
		w.add(ruleID, path, "%v", err)
	}
}

func (w *walker) composite(def *types.RuleDefinition, path string, depth int) {
	if depth > types.MaxRuleDepth {
		w.add(def.RuleID, join(path, "rules"), "nesting exceeds %d levels", types.MaxRuleDepth)
		return
	}
	op, ok := ParseCompositeOperator(def.Operator)
	if !ok {
		w.add(def.RuleID, join(path, "operator"), "must be And, Or or Not, got %q", def.Operator)
	}
	switch {
	case len(def.Rules) == 0:
		w.add(def.RuleID, join(path, "rules"), "at least one child rule is required")
	case op == CompositeNot && len(def.Rules) != 1:
		w.add(def.RuleID, join(path, "rules"), "Not requires exactly one child rule, got %d", len(def.Rules))
	}
	for i, child := range def.Rules {
		w.rule(child, join(path, fmt.Sprintf("rules[%d]", i)), depth+1)
	}
	w.actions(def, path)
}
