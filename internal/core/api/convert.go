package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/rulekeeper/internal/types"
)

// Struct payloads go through JSON text so the types package keeps ownership
// of key order and Int/Float distinction. protojson writes integral numbers
// without a fraction, so they arrive as Int.

func structToDefinition(s *structpb.Struct) (*types.RuleDefinition, error) {
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, &types.ConstructionError{Reason: "invalid rule definition", Err: err}
	}
	return types.ParseRuleDefinition(data)
}

func definitionToStruct(def *types.RuleDefinition) (*structpb.Struct, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode rule definition: %w", err)
	}
	return jsonToStruct(data)
}

func structToMap(s *structpb.Struct) (*types.Map, error) {
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, &types.InputError{Reason: "inputs are not a valid struct", Err: err}
	}
	m, err := types.ParseMapJSON(data)
	if err != nil {
		return nil, &types.InputError{Reason: "inputs are not a JSON object", Err: err}
	}
	return m, nil
}

func mapToStruct(m *types.Map) (*structpb.Struct, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return jsonToStruct(data)
}

func jsonToStruct(data []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return s, nil
}
