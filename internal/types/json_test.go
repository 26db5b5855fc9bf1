package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseMapJSON_KeepsOrderAndKinds(t *testing.T) {
	m, err := ParseMapJSON([]byte(`{"z": 1, "a": 1.5, "m": [true, null, "s"], "o": {"k": 2.0}}`))
	if err != nil {
		t.Fatalf("ParseMapJSON() error = %v", err)
	}
	if diff := cmp.Diff([]string{"z", "a", "m", "o"}, m.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}

	kinds := map[string]Kind{"z": KindInt, "a": KindFloat, "m": KindArray, "o": KindMap}
	for key, want := range kinds {
		v, _ := m.Get(key)
		if v.Kind() != want {
			t.Errorf("%s kind = %s, want %s", key, v.Kind(), want)
		}
	}
	o, _ := m.Get("o")
	if k, _ := o.Map().Get("k"); k.Kind() != KindFloat {
		t.Errorf("2.0 kind = %s, want float", k.Kind())
	}
}

func TestParseMapJSON_Errors(t *testing.T) {
	for _, in := range []string{`[1]`, `"s"`, `{"a": }`, ``} {
		if _, err := ParseMapJSON([]byte(in)); err == nil {
			t.Errorf("ParseMapJSON(%q) error = nil, want error", in)
		}
	}
	if _, err := ParseMapJSON([]byte(`7`)); !errors.Is(err, ErrCoercionFailed) {
		t.Errorf("ParseMapJSON(7) error = %v, want ErrCoercionFailed", err)
	}
}

func TestMap_MarshalJSON(t *testing.T) {
	m := NewMap()
	m.Set("b", Int(1))
	m.Set("a", Float(0.5))
	m.Set("s", String(`quote"d`))
	m.Set("n", Float(math.NaN()))
	m.Set("list", Array(Null(), Bool(false)))

	got, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	want := `{"b":1,"a":0.5,"s":"quote\"d","n":"NaN","list":[null,false]}`
	if string(got) != want {
		t.Errorf("MarshalJSON() = %s, want %s", got, want)
	}
}

func TestValue_JSONKeepsFloatKind(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Float(100), "100.0"},
		{Float(-3), "-3.0"},
		{Float(0), "0.0"},
		{Float(2.5), "2.5"},
		{Float(1e21), "1e+21"},
		{Int(100), "100"},
	}
	for _, tt := range tests {
		got, err := tt.v.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON(%v) error = %v", tt.v, err)
		}
		if string(got) != tt.want {
			t.Errorf("MarshalJSON(%v) = %s, want %s", tt.v, got, tt.want)
		}
		var back Value
		if err := back.UnmarshalJSON(got); err != nil {
			t.Fatalf("UnmarshalJSON(%s) error = %v", got, err)
		}
		if back.Kind() != tt.v.Kind() || !Equal(back, tt.v) {
			t.Errorf("round trip of %v = %v (%s), want kind %s", tt.v, back, back.Kind(), tt.v.Kind())
		}
	}
}

func TestWriteIndentedJSON(t *testing.T) {
	m := NewMap()
	m.Set("b", Int(1))
	m.Set("a", String("x"))

	var buf bytes.Buffer
	if err := WriteIndentedJSON(&buf, m); err != nil {
		t.Fatalf("WriteIndentedJSON() error = %v", err)
	}
	want := "{\n  \"b\": 1,\n  \"a\": \"x\"\n}\n"
	if buf.String() != want {
		t.Errorf("WriteIndentedJSON() = %q, want %q", buf.String(), want)
	}
}

func TestParseRuleSet(t *testing.T) {
	doc := `{"ruleId": "r1", "ruleName": "first",
		"conditions": {"b": {"operator": ">", "value": 1}, "a": {"operator": "==", "value": "x"}},
		"actions": {"z": {"operator": "set", "value": true}, "y": {"operator": "+=", "value": 2}}}`

	wrapped, err := ParseRuleSet([]byte(`{"rules": [` + doc + `]}`))
	if err != nil {
		t.Fatalf("ParseRuleSet(object) error = %v", err)
	}
	bare, err := ParseRuleSet([]byte(" \n[" + doc + "]"))
	if err != nil {
		t.Fatalf("ParseRuleSet(array) error = %v", err)
	}

	for name, set := range map[string]*RuleSet{"object": wrapped, "array": bare} {
		if len(set.Rules) != 1 {
			t.Fatalf("%s: len(Rules) = %d, want 1", name, len(set.Rules))
		}
		def := set.Rules[0]
		if def.RuleID != "r1" || def.RuleName != "first" {
			t.Errorf("%s: id/name = %q/%q, want r1/first", name, def.RuleID, def.RuleName)
		}
		if len(def.Conditions) != 2 || def.Conditions[0].Field != "b" || def.Conditions[1].Field != "a" {
			t.Errorf("%s: Conditions = %+v, want b then a", name, def.Conditions)
		}
		if len(def.Actions) != 2 || def.Actions[0].Field != "z" || def.Actions[1].Operator != "+=" {
			t.Errorf("%s: Actions = %+v, want z then y", name, def.Actions)
		}
	}

	var ce *ConstructionError
	if _, err := ParseRuleSet([]byte(`{"rules": 5}`)); !errors.As(err, &ce) {
		t.Errorf("ParseRuleSet(bad) error = %T, want *ConstructionError", err)
	}
}

func TestRuleDefinition_RoundTripKeepsOrder(t *testing.T) {
	in := `{"ruleId":"e","ruleName":"e","type":"expression","conditionExpression":"a > 1","actionExpressions":{"z":"1","a":"2"}}`
	def, err := ParseRuleDefinition([]byte(in))
	if err != nil {
		t.Fatalf("ParseRuleDefinition() error = %v", err)
	}
	out, err := json.Marshal(def)
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}
	if !strings.Contains(string(out), `"actionExpressions":{"z":"1","a":"2"}`) {
		t.Errorf("marshal = %s, want actionExpressions in document order", out)
	}
}

func TestParseRuleSetYAML(t *testing.T) {
	doc := `
rules:
  - ruleId: y1
    ruleName: yaml rule
    type: expression
    conditionExpression: "score >= 10"
    actionExpressions:
      second: "1"
      first: "2"
`
	set, err := ParseRuleSetYAML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseRuleSetYAML() error = %v", err)
	}
	if len(set.Rules) != 1 {
		t.Fatalf("len(Rules) = %d, want 1", len(set.Rules))
	}
	exprs := set.Rules[0].ActionExpressions
	if len(exprs) != 2 || exprs[0].Field != "second" || exprs[1].Field != "first" {
		t.Errorf("ActionExpressions = %+v, want second then first", exprs)
	}

	var ce *ConstructionError
	if _, err := ParseRuleSetYAML([]byte("rules: [\n")); !errors.As(err, &ce) {
		t.Errorf("ParseRuleSetYAML(bad) error = %T, want *ConstructionError", err)
	}
}

func TestYAMLToJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "scalars", in: "a: 1\nb: 1.5\nc: true\nd: ~\ne: text", want: `{"a":1,"b":1.5,"c":true,"d":null,"e":"text"}`},
		{name: "integral float stays float", in: "ratio: 2.0", want: `{"ratio":2.0}`},
		{name: "quoted number stays string", in: `v: "10"`, want: `{"v":"10"}`},
		{name: "sequence", in: "- 1\n- x", want: `[1,"x"]`},
		{name: "alias", in: "base: &b 3\ncopy: *b", want: `{"base":3,"copy":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := YAMLToJSON([]byte(tt.in))
			if err != nil {
				t.Fatalf("YAMLToJSON(%q) error = %v", tt.in, err)
			}
			if string(got) != tt.want {
				t.Errorf("YAMLToJSON(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	if _, err := YAMLToJSON([]byte("x: .inf")); err == nil {
		t.Errorf("YAMLToJSON(.inf) error = nil, want error")
	}
}
