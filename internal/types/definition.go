// internal/types/definition.go
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

/*
 * Rule definition records.
 *
 * RuleDefinition is the parsed form of one rule object:
 *
 *   {ruleId, ruleName, type,
 *    conditions: {field: {operator, value}},
 *    actions: {field: {operator, value}},
 *    conditionExpression, actionExpressions: {field: expr},
 *    operator, rules: [...]}
 *
 * The object-keyed sections are order-significant (actions run in document
 * order), so they decode into slices rather than Go maps.
 */

// ConditionDefinition is one per-field comparison of a simple rule.
type ConditionDefinition struct {
	Field    string
	Operator string
	Value    Value
}

// ActionDefinition is one per-field action of a simple or composite rule.
type ActionDefinition struct {
	Field    string
	Operator string
	Value    Value
}

// ActionExpression is one named action of a script rule.
type ActionExpression struct {
	Field      string
	Expression string
}

// Conditions decodes from a JSON object keyed by field, preserving order.
type Conditions []ConditionDefinition

// Actions decodes from a JSON object keyed by field, preserving order.
type Actions []ActionDefinition

// ActionExpressions decodes from a JSON object keyed by field, preserving order.
type ActionExpressions []ActionExpression

// RuleDefinition is the generic rule record consumed by rule factories.
type RuleDefinition struct {
	RuleID              string            `json:"ruleId"`
	RuleName            string            `json:"ruleName"`
	Type                string            `json:"type,omitempty"`
	Conditions          Conditions        `json:"conditions,omitempty"`
	Actions             Actions           `json:"actions,omitempty"`
	ConditionExpression string            `json:"conditionExpression,omitempty"`
	ActionExpressions   ActionExpressions `json:"actionExpressions,omitempty"`
	Operator            string            `json:"operator,omitempty"`
	Rules               []*RuleDefinition `json:"rules,omitempty"`
}

// RuleSet is a document holding an ordered list of rule definitions.
type RuleSet struct {
	Rules []*RuleDefinition `json:"rules"`
}

type operand struct {
	Operator string `json:"operator"`
	Value    Value  `json:"value"`
}

func (c *Conditions) UnmarshalJSON(data []byte) error {
	*c = nil
	return decodeMembers(data, func(key string, raw json.RawMessage) error {
		var op operand
		if err := json.Unmarshal(raw, &op); err != nil {
			return fmt.Errorf("condition %q: %w", key, err)
		}
		*c = append(*c, ConditionDefinition{Field: key, Operator: op.Operator, Value: op.Value})
		return nil
	})
}

func (c Conditions) MarshalJSON() ([]byte, error) {
	return encodeMembers(len(c), func(i int) (string, any) {
		return c[i].Field, operand{Operator: c[i].Operator, Value: c[i].Value}
	})
}

func (a *Actions) UnmarshalJSON(data []byte) error {
	*a = nil
	return decodeMembers(data, func(key string, raw json.RawMessage) error {
		var op operand
		if err := json.Unmarshal(raw, &op); err != nil {
			return fmt.Errorf("action %q: %w", key, err)
		}
		*a = append(*a, ActionDefinition{Field: key, Operator: op.Operator, Value: op.Value})
		return nil
	})
}

func (a Actions) MarshalJSON() ([]byte, error) {
	return encodeMembers(len(a), func(i int) (string, any) {
		return a[i].Field, operand{Operator: a[i].Operator, Value: a[i].Value}
	})
}

func (e *ActionExpressions) UnmarshalJSON(data []byte) error {
	*e = nil
	return decodeMembers(data, func(key string, raw json.RawMessage) error {
		var expr string
		if err := json.Unmarshal(raw, &expr); err != nil {
			return fmt.Errorf("action expression %q: %w", key, err)
		}
		*e = append(*e, ActionExpression{Field: key, Expression: expr})
		return nil
	})
}

func (e ActionExpressions) MarshalJSON() ([]byte, error) {
	return encodeMembers(len(e), func(i int) (string, any) {
		return e[i].Field, e[i].Expression
	})
}

// decodeMembers walks a JSON object in document order. A JSON null is an empty object.
func decodeMembers(data []byte, fn func(key string, raw json.RawMessage) error) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", kt)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func encodeMembers(n int, member func(i int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		key, val := member(i)
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseRuleDefinition decodes a single rule object.
func ParseRuleDefinition(data []byte) (*RuleDefinition, error) {
	var def RuleDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, &ConstructionError{Reason: "invalid JSON rule definition", Err: err}
	}
	return &def, nil
}

// ParseRuleSet decodes either {"rules": [...]} or a bare JSON array of rules.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	trimmed := bytes.TrimSpace(data)
	var set RuleSet
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &set.Rules); err != nil {
			return nil, &ConstructionError{Reason: "invalid JSON rule set", Err: err}
		}
		return &set, nil
	}
	if err := json.Unmarshal(trimmed, &set); err != nil {
		return nil, &ConstructionError{Reason: "invalid JSON rule set", Err: err}
	}
	return &set, nil
}
