// Package rules builds executable rules from definitions and runs them.
//
// Three rule variants exist: SimpleRule (per-field comparisons and actions),
// ScriptRule (condition and action expressions in a Dialect) and CompositeRule
// (And/Or/Not over child rules). Factories registered in a Registry turn
// types.RuleDefinition records into Rules; the Engine runs an ordered rule
// list against an input map with pipeline semantics.
//
// Evaluate never fails: any error during a condition phase makes the rule not
// fire. Execute propagates action errors as *types.EvaluationError.
package rules

import "github.com/solatis/rulekeeper/internal/types"

// Rule is an immutable executable rule.
type Rule interface {
	ID() string
	Name() string
	Type() string

	// Evaluate reports whether the rule fires for ctx.
	Evaluate(ctx *types.Map) bool

	// Execute applies the rule's actions when it fires and returns the
	// values it produced. A rule that does not fire returns an empty Map.
	Execute(ctx *types.Map) (*types.Map, error)
}

// RuleSummary describes a registered rule for listings.
type RuleSummary struct {
	ID   string `json:"ruleId"`
	Name string `json:"ruleName"`
	Type string `json:"type"`
}

func summarize(r Rule) RuleSummary {
	return RuleSummary{ID: r.ID(), Name: r.Name(), Type: r.Type()}
}

// header carries the identity fields shared by every rule variant.
type header struct {
	id       string
	name     string
	ruleType string
}

func (h header) ID() string   { return h.id }
func (h header) Name() string { return h.name }
func (h header) Type() string { return h.ruleType }
