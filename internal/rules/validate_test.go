package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/solatis/rulekeeper/internal/types"
)

func TestValidator_Valid(t *testing.T) {
	v := NewValidator(nil, NewDefaultRegistry(nil))
	defs := []string{
		`{"ruleId": "s", "ruleName": "s", "conditions": {"a": {"operator": "==", "value": 1}}, "actions": {"b": {"operator": "+=", "value": 1}}}`,
		`{"ruleId": "e", "ruleName": "e", "type": "expression", "conditionExpression": "a > 1", "actionExpressions": {"b": "a * 2", "n": "=> b"}}`,
		`{"ruleId": "l", "ruleName": "l", "type": "lua", "conditionExpression": "return a > 1", "actionExpressions": {"b": "return a"}}`,
		`{"ruleId": "c", "ruleName": "c", "type": "composite", "operator": "not", "rules": [{"ruleId": "x", "ruleName": "x", "conditions": {"a": {"operator": "<", "value": 0}}}]}`,
	}

	for _, data := range defs {
		if problems := v.Validate(mustDef(t, data)); len(problems) != 0 {
			t.Errorf("Validate(%s) = %v, want none", data, problems)
		}
	}
}

func TestValidator_CollectsAllProblems(t *testing.T) {
	v := NewValidator(nil, nil)
	def := mustDef(t, `{
		"type": "composite", "operator": "Not",
		"rules": [
			{"ruleId": "a", "ruleName": "a", "conditions": {"x": {"operator": "like", "value": 1}}},
			{"ruleId": "b", "type": "expression", "conditionExpression": "x >", "actionExpressions": {"y": ""}},
			{"ruleId": "c", "ruleName": "c", "type": "cobol"}
		],
		"actions": {"z": {"operator": "pow", "value": 2}}
	}`)

	problems := v.Validate(def)
	wantSubstrings := []string{
		"ruleId: must not be empty",
		"ruleName: must not be empty",
		"Not requires exactly one child rule, got 3",
		`rules[0].conditions.x: unknown condition operator "like"`,
		`rules[1].ruleName: must not be empty`,
		"rules[1].conditionExpression",
		"rules[1].actionExpressions.y: must not be empty",
		`rules[2].type: unsupported rule type "cobol"`,
		`actions.z: unknown action operator "pow"`,
	}

	var all []string
	for _, p := range problems {
		all = append(all, p.Error())
	}
	joined := strings.Join(all, "\n")
	for _, want := range wantSubstrings {
		if !strings.Contains(joined, want) {
			t.Errorf("Validate() missing %q in:\n%s", want, joined)
		}
	}
	if len(problems) != len(wantSubstrings) {
		t.Errorf("len(Validate()) = %d, want %d:\n%s", len(problems), len(wantSubstrings), joined)
	}
}

func TestValidator_ValidateAndJoin(t *testing.T) {
	v := NewValidator(nil, nil)
	if err := v.ValidateAndJoin(mustDef(t, `{"ruleId": "s", "ruleName": "s", "conditions": {"a": {"operator": "==", "value": 1}}}`)); err != nil {
		t.Errorf("ValidateAndJoin(valid) = %v, want nil", err)
	}

	err := v.ValidateAndJoin(mustDef(t, `{"ruleId": "s"}`))
	if err == nil {
		t.Fatal("ValidateAndJoin(invalid) = nil, want error")
	}
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("ValidateAndJoin() error = %v, want ValidationError", err)
	}
}

func TestValidator_RuleSet(t *testing.T) {
	v := NewValidator(nil, nil)
	if problems := v.ValidateRuleSet(&types.RuleSet{}); len(problems) != 1 {
		t.Errorf("ValidateRuleSet(empty) = %v, want one problem", problems)
	}

	set, err := types.ParseRuleSet([]byte(`{"rules": [
		{"ruleId": "a", "ruleName": "a", "conditions": {"x": {"operator": "==", "value": 1}}},
		{"ruleId": "b", "conditions": {"x": {"operator": "==", "value": 1}}}
	]}`))
	if err != nil {
		t.Fatalf("ParseRuleSet() error = %v", err)
	}
	problems := v.ValidateRuleSet(set)
	if len(problems) != 1 || problems[0].RuleID != "b" || !strings.HasPrefix(problems[0].Path, "rules[1]") {
		t.Errorf("ValidateRuleSet() = %v, want one problem for rules[1]", problems)
	}
}

func TestValidator_AgreesWithFactories(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	v := NewValidator(reg.Operators(), reg)
	defs := []string{
		`{"ruleId": "s", "ruleName": "s"}`,
		`{"ruleId": "s", "ruleName": "s", "conditions": {"a": {"operator": "~", "value": 1}}}`,
		`{"ruleId": "e", "ruleName": "e", "type": "lua", "conditionExpression": "true"}`,
		`{"ruleId": "c", "ruleName": "c", "type": "composite", "operator": "And"}`,
		`{"ruleId": "c", "ruleName": "c", "type": "composite", "operator": "Or", "rules": [{"ruleId": "x", "ruleName": "x", "type": "nope"}]}`,
	}
	for _, data := range defs {
		def := mustDef(t, data)
		_, createErr := reg.Create(def)
		problems := v.Validate(def)
		if (createErr == nil) != (len(problems) == 0) {
			t.Errorf("%s: Create() error = %v, Validate() = %v; want agreement", data, createErr, problems)
		}
	}
}
