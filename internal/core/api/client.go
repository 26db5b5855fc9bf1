package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

// Client calls a remote RuleEngine service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AddRule sends def and returns whether it replaced an existing rule.
func (c *Client) AddRule(ctx context.Context, def *types.RuleDefinition, opts ...grpc.CallOption) (bool, error) {
	s, err := definitionToStruct(def)
	if err != nil {
		return false, err
	}
	out, err := c.invoke(ctx, "AddRule", &structpb.Struct{Fields: map[string]*structpb.Value{
		"definition": structpb.NewStructValue(s),
	}}, opts...)
	if err != nil {
		return false, err
	}
	return out.GetFields()["replaced"].GetBoolValue(), nil
}

func (c *Client) RemoveRule(ctx context.Context, ruleID string, opts ...grpc.CallOption) (bool, error) {
	out, err := c.invoke(ctx, "RemoveRule", &structpb.Struct{Fields: map[string]*structpb.Value{
		"ruleId": structpb.NewStringValue(ruleID),
	}}, opts...)
	if err != nil {
		return false, err
	}
	return out.GetFields()["removed"].GetBoolValue(), nil
}

// ExecuteRules runs the remote engine over inputs.
func (c *Client) ExecuteRules(ctx context.Context, inputs *types.Map, opts ...grpc.CallOption) (types.ExecutionID, *types.Map, error) {
	s, err := mapToStruct(inputs)
	if err != nil {
		return "", nil, err
	}
	out, err := c.invoke(ctx, "ExecuteRules", &structpb.Struct{Fields: map[string]*structpb.Value{
		"inputs": structpb.NewStructValue(s),
	}}, opts...)
	if err != nil {
		return "", nil, err
	}
	id, err := types.ParseExecutionID(out.GetFields()["executionId"].GetStringValue())
	if err != nil {
		return "", nil, fmt.Errorf("bad executionId in response: %w", err)
	}
	results, err := structToMap(out.GetFields()["results"].GetStructValue())
	if err != nil {
		return "", nil, err
	}
	return id, results, nil
}

func (c *Client) ListRules(ctx context.Context, opts ...grpc.CallOption) ([]rules.RuleSummary, error) {
	out, err := c.invoke(ctx, "ListRules", &structpb.Struct{}, opts...)
	if err != nil {
		return nil, err
	}
	values := out.GetFields()["rules"].GetListValue().GetValues()
	summaries := make([]rules.RuleSummary, 0, len(values))
	for _, v := range values {
		f := v.GetStructValue().GetFields()
		summaries = append(summaries, rules.RuleSummary{
			ID:   f["ruleId"].GetStringValue(),
			Name: f["ruleName"].GetStringValue(),
			Type: f["type"].GetStringValue(),
		})
	}
	return summaries, nil
}
