// Package types provides the value model and rule-definition types shared across
// RuleKeeper components.
//
// Value is the closed dynamic value that flows between rules; Map is the
// insertion-ordered map used for rule inputs and results. Definitions are the
// parsed, wire-format agnostic rule records consumed by internal/rules factories.
//
// Only encoding/json, yaml.v3 and uuid are imported here so the package can be
// embedded without pulling in any evaluator dependencies.
package types

// CallbacksKey is the reserved result key holding the ordered callback list.
// Entries are Maps with "name" and "value" keys.
const CallbacksKey = "__callbacks__"

// Rule type tags understood by the default factory registry.
const (
	RuleTypeSimple     = "simple"
	RuleTypeExpression = "expression"
	RuleTypeLua        = "lua"
	RuleTypeExpr       = "expr"
	RuleTypeCEL        = "cel"
	RuleTypeComposite  = "composite"
)

// Resource limits enforced when constructing and evaluating rules.
const (
	// MaxRuleDepth bounds composite nesting so construction recursion stays shallow.
	MaxRuleDepth = 32

	// MaxExpressionLength rejects oversized expression sources before lexing.
	MaxExpressionLength = 64 * 1024

	// DefaultExpressionCacheSize is the number of parsed expressions kept per evaluator.
	DefaultExpressionCacheSize = 1024

	// MaxStringLength caps strings built by expression functions such as padLeft.
	MaxStringLength = 1 << 20

	// MaxInputKeys caps the input map accepted at the gRPC boundary.
	MaxInputKeys = 10000
)
