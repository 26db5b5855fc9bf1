package rules

import (
	"errors"
	"testing"

	"github.com/solatis/rulekeeper/internal/types"
)

func mustCreate(t *testing.T, reg *Registry, data string) Rule {
	t.Helper()
	r, err := reg.Create(mustDef(t, data))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return r
}

const bonusChildren = `[
	{"ruleId": "score", "ruleName": "high score",
	 "conditions": {"score": {"operator": ">", "value": 100}},
	 "actions": {"scoreBonus": {"operator": "set", "value": 10}}},
	{"ruleId": "level", "ruleName": "high level",
	 "conditions": {"level": {"operator": ">=", "value": 5}},
	 "actions": {"levelBonus": {"operator": "set", "value": 20}}}
]`

func TestCompositeRule_Or(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	r := mustCreate(t, reg, `{"ruleId": "bonus", "ruleName": "bonus", "type": "composite",
		"operator": "Or", "rules": `+bonusChildren+`}`)

	input := mustMap(t, `{"score": 50, "level": 6}`)
	if !r.Evaluate(input) {
		t.Fatal("Evaluate() = false, want true")
	}
	got, err := r.Execute(input)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if v, ok := got.Get("levelBonus"); !ok || !types.Equal(v, types.Int(20)) {
		t.Errorf("levelBonus = %v, %v, want 20, true", v, ok)
	}
	if got.Has("scoreBonus") {
		t.Error("scoreBonus present, want absent")
	}
}

func TestCompositeRule_And(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	r := mustCreate(t, reg, `{"ruleId": "both", "ruleName": "both", "type": "composite",
		"operator": "and", "rules": `+bonusChildren+`,
		"actions": {"total": {"operator": "set", "value": "scoreBonus"}, "total2": {"operator": "add", "value": "levelBonus"}}}`)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "all children fire",
			input: `{"score": 150, "level": 6}`,
			want:  `{"scoreBonus": 10, "levelBonus": 20, "total": 10, "total2": 20}`,
		},
		{
			name:  "one child fails",
			input: `{"score": 150, "level": 1}`,
			want:  `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Execute(mustMap(t, tt.input))
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if diff := diffMaps(mustMap(t, tt.want), got); diff != "" {
				t.Errorf("Execute() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompositeRule_Not(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	r := mustCreate(t, reg, `{"ruleId": "not-low", "ruleName": "not low", "type": "composite",
		"operator": "Not",
		"rules": [{"ruleId": "low", "ruleName": "low",
			"conditions": {"score": {"operator": "<", "value": 50}},
			"actions": {"low": {"operator": "set", "value": true}}}],
		"actions": {"ok": {"operator": "set", "value": true}}}`)

	got, err := r.Execute(mustMap(t, `{"score": 80}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if diff := diffMaps(mustMap(t, `{"ok": true}`), got); diff != "" {
		t.Errorf("Execute(score=80) mismatch (-want +got):\n%s", diff)
	}

	if r.Evaluate(mustMap(t, `{"score": 10}`)) {
		t.Error("Evaluate(score=10) = true, want false")
	}
	// Child's missing key makes it false, so Not holds
	if !r.Evaluate(mustMap(t, `{}`)) {
		t.Error("Evaluate(missing) = false, want true")
	}
}

func TestCompositeRule_NotRequiresOneChild(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	_, err := reg.Create(mustDef(t, `{"ruleId": "n", "ruleName": "n", "type": "composite",
		"operator": "Not", "rules": `+bonusChildren+`}`))

	var ce *types.ConstructionError
	if !errors.As(err, &ce) {
		t.Fatalf("Create() error = %v, want *types.ConstructionError", err)
	}
}

func TestCompositeRule_Heterogeneous(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	r := mustCreate(t, reg, `{"ruleId": "mix", "ruleName": "mix", "type": "composite",
		"operator": "And",
		"rules": [
			{"ruleId": "e", "ruleName": "e", "type": "expression",
			 "conditionExpression": "value > 10", "actionExpressions": {"doubled": "value * 2"}},
			{"ruleId": "l", "ruleName": "l", "type": "lua",
			 "conditionExpression": "return value < 100", "actionExpressions": {"notify": "=> doubled"}},
			{"ruleId": "c", "ruleName": "c", "type": "composite", "operator": "Or",
			 "rules": [{"ruleId": "s", "ruleName": "s",
				"conditions": {"value": {"operator": "==", "value": 15}},
				"actions": {"exact": {"operator": "set", "value": true}}}]}
		]}`)

	got, err := r.Execute(mustMap(t, `{"value": 15}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	// Children run independently, so the lua marker cannot see the expression child's output
	want := mustMap(t, `{"doubled": 30, "exact": true,
		"__callbacks__": [{"name": "notify", "value": "doubled"}]}`)
	if diff := diffMaps(want, got); diff != "" {
		t.Errorf("Execute() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompositeRule_ChildErrorPropagates(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	r := mustCreate(t, reg, `{"ruleId": "p", "ruleName": "p", "type": "composite",
		"operator": "Or",
		"rules": [{"ruleId": "div", "ruleName": "div",
			"conditions": {"x": {"operator": ">", "value": 0}},
			"actions": {"x": {"operator": "/=", "value": 0}}}]}`)

	_, err := r.Execute(mustMap(t, `{"x": 1}`))
	if !errors.Is(err, types.ErrDivideByZero) {
		t.Errorf("Execute() error = %v, want ErrDivideByZero", err)
	}
}

func TestCompositeFactory_Errors(t *testing.T) {
	tests := []struct {
		name    string
		def     string
		wantErr error
	}{
		{
			name:    "unknown operator",
			def:     `{"ruleId": "c", "ruleName": "c", "type": "composite", "operator": "Xor", "rules": ` + bonusChildren + `}`,
			wantErr: types.ErrInvalidOperator,
		},
		{
			name: "no children",
			def:  `{"ruleId": "c", "ruleName": "c", "type": "composite", "operator": "And"}`,
		},
		{
			name:    "bad child",
			def:     `{"ruleId": "c", "ruleName": "c", "type": "composite", "operator": "And", "rules": [{"ruleId": "x", "ruleName": "x", "type": "cobol"}]}`,
			wantErr: types.ErrUnsupportedRuleType,
		},
	}

	reg := NewDefaultRegistry(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Create(mustDef(t, tt.def))
			var ce *types.ConstructionError
			if !errors.As(err, &ce) {
				t.Fatalf("Create() error = %v, want *types.ConstructionError", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompositeFactory_Depth(t *testing.T) {
	leaf := &types.RuleDefinition{
		RuleID:     "leaf",
		RuleName:   "leaf",
		Conditions: types.Conditions{{Field: "x", Operator: "==", Value: types.Int(1)}},
	}
	nest := func(levels int) *types.RuleDefinition {
		def := leaf
		for i := 0; i < levels; i++ {
			def = &types.RuleDefinition{
				RuleID:   "c",
				RuleName: "c",
				Type:     types.RuleTypeComposite,
				Operator: CompositeAnd,
				Rules:    []*types.RuleDefinition{def},
			}
		}
		return def
	}

	reg := NewDefaultRegistry(nil)
	if _, err := reg.Create(nest(types.MaxRuleDepth)); err != nil {
		t.Errorf("Create(depth %d) error = %v, want nil", types.MaxRuleDepth, err)
	}
	_, err := reg.Create(nest(types.MaxRuleDepth + 1))
	if !errors.Is(err, types.ErrRuleDepth) {
		t.Errorf("Create(depth %d) error = %v, want ErrRuleDepth", types.MaxRuleDepth+1, err)
	}
}

func TestCompositeRule_ExecuteChecksOwnCondition(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	r := mustCreate(t, reg, `{"ruleId": "both", "ruleName": "both", "type": "composite",
		"operator": "And", "rules": `+bonusChildren+`}`)

	// only the level child fires on its own
	got, err := r.Execute(mustMap(t, `{"score": 50, "level": 6}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("Execute() = %v, want empty", got)
	}
}
