// internal/rules/cost.go
package rules

import (
	"strings"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Cost model for simple-rule conditions.
 *
 * A simple rule's conditions form a conjunction that stops at the first
 * false. Conditions are ordered by ascending cost at construction so cheap
 * tests run first; a stable sort keeps equal-cost conditions in definition
 * order. Ordering never changes the outcome because every failure is false.
 *
 * cost = lookup_cost + operator_cost * operand_multiplier
 *
 * Dotted fields pay one lookup per segment. Custom operators are assumed
 * expensive.
 */

const (
	// Operator base costs
	CostEquals  = 5
	CostOrdered = 7
	CostCustom  = 20

	// Field lookup cost per dotted segment
	CostLookupPerSegment = 16

	// Operand multipliers
	MultiplierNull   = 1
	MultiplierBool   = 1
	MultiplierInt    = 1
	MultiplierFloat  = 4
	MultiplierString = 48
	MultiplierNested = 128
)

// ConditionCost computes the evaluation cost of one condition. op must be canonical.
func ConditionCost(field, op string, operand types.Value) int {
	lookup := CostLookupPerSegment * (strings.Count(field, ".") + 1)
	return lookup + operatorCost(op)*operandMultiplier(operand)
}

func operatorCost(op string) int {
	switch op {
	case OpEquals, OpNotEquals:
		return CostEquals
	case OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual:
		return CostOrdered
	default:
		return CostCustom
	}
}

func operandMultiplier(v types.Value) int {
	switch v.Kind() {
	case types.KindNull:
		return MultiplierNull
	case types.KindBool:
		return MultiplierBool
	case types.KindInt:
		return MultiplierInt
	case types.KindFloat:
		return MultiplierFloat
	case types.KindString:
		return MultiplierString
	default:
		return MultiplierNested
	}
}
