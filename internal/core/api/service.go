// Package api provides the gRPC RuleEngine service.
//
// Messages are google.protobuf.Struct, so the service is described by a
// hand-written grpc.ServiceDesc instead of generated stubs:
//
//	AddRule({definition})   -> {ruleId, replaced}
//	RemoveRule({ruleId})    -> {removed}
//	ExecuteRules({inputs})  -> {executionId, results}
//	ListRules({})           -> {rules: [{ruleId, ruleName, type}]}
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/rulekeeper/internal/core/auth"
	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rulekeeper.v1.RuleEngine"

// RuleStore persists rules written through the API. Implemented by *db.RuleStore.
type RuleStore interface {
	Save(ctx context.Context, def *types.RuleDefinition) error
	Delete(ctx context.Context, ruleID string) (bool, error)
}

// RuleEngineServer is the server side of rulekeeper.v1.RuleEngine.
type RuleEngineServer interface {
	AddRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExecuteRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Service implements RuleEngineServer over a rules.Engine. Rules added or
// removed through the API are written through to the store when one is set.
type Service struct {
	engine       *rules.Engine
	store        RuleStore
	logger       *slog.Logger
	maxInputKeys int
}

// NewService creates the service. store may be nil for an in-memory engine.
func NewService(engine *rules.Engine, store RuleStore, logger *slog.Logger, maxInputKeys int) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if maxInputKeys <= 0 {
		maxInputKeys = types.MaxInputKeys
	}
	return &Service{
		engine:       engine,
		store:        store,
		logger:       logger,
		maxInputKeys: maxInputKeys,
	}, nil
}

// Register attaches the service to s.
func (s *Service) Register(srv grpc.ServiceRegistrar) {
	srv.RegisterService(&ServiceDesc, s)
}

// AddRule builds the definition, persists it, then installs it in the engine.
// An existing rule with the same ruleId is replaced in place.
func (s *Service) AddRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := req.GetFields()["definition"].GetStructValue()
	if raw == nil {
		return nil, status.Error(codes.InvalidArgument, "definition is required")
	}
	def, err := structToDefinition(raw)
	if err != nil {
		return nil, toStatus(err)
	}
	// Reject before touching storage
	if _, err := s.engine.Registry().Create(def); err != nil {
		return nil, toStatus(err)
	}

	if s.store != nil {
		if err := s.store.Save(ctx, def); err != nil {
			return nil, storageStatus(err)
		}
	}
	replaced, err := s.engine.ReplaceRule(def)
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.InfoContext(ctx, "rule stored", "rule_id", def.RuleID, "client", auth.ClientFromContext(ctx))
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ruleId":   structpb.NewStringValue(def.RuleID),
		"replaced": structpb.NewBoolValue(replaced),
	}}, nil
}

// RemoveRule deletes every rule with the given ID from storage and the engine.
func (s *Service) RemoveRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["ruleId"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "ruleId is required")
	}

	stored := false
	if s.store != nil {
		var err error
		if stored, err = s.store.Delete(ctx, id); err != nil {
			return nil, storageStatus(err)
		}
	}
	removed := s.engine.RemoveRule(id) > 0 || stored

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"removed": structpb.NewBoolValue(removed),
	}}, nil
}

// ExecuteRules runs the engine over inputs and returns the merged map.
func (s *Service) ExecuteRules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := req.GetFields()["inputs"].GetStructValue()
	if raw == nil {
		return nil, status.Error(codes.InvalidArgument, "inputs is required")
	}
	if n := len(raw.GetFields()); n > s.maxInputKeys {
		return nil, status.Errorf(codes.InvalidArgument, "inputs has %d keys, maximum is %d", n, s.maxInputKeys)
	}
	inputs, err := structToMap(raw)
	if err != nil {
		return nil, toStatus(err)
	}

	id := types.NewExecutionID()
	results, err := s.engine.ExecuteRules(inputs)
	if err != nil {
		s.logger.WarnContext(ctx, "execution failed", "execution_id", id, "error", err)
		if st := toStatus(err); status.Code(st) != codes.Internal {
			return nil, st
		}
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}

	out, err := mapToStruct(results)
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"executionId": structpb.NewStringValue(string(id)),
		"results":     structpb.NewStructValue(out),
	}}, nil
}

// ListRules summarizes the engine's rules in execution order.
func (s *Service) ListRules(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	summaries := s.engine.ListRules()
	list := make([]*structpb.Value, len(summaries))
	for i, r := range summaries {
		list[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"ruleId":   structpb.NewStringValue(r.ID),
			"ruleName": structpb.NewStringValue(r.Name),
			"type":     structpb.NewStringValue(r.Type),
		}})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"rules": structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}, nil
}

func unaryHandler(method string, call func(RuleEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RuleEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RuleEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes rulekeeper.v1.RuleEngine for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RuleEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddRule", Handler: unaryHandler("AddRule", RuleEngineServer.AddRule)},
		{MethodName: "RemoveRule", Handler: unaryHandler("RemoveRule", RuleEngineServer.RemoveRule)},
		{MethodName: "ExecuteRules", Handler: unaryHandler("ExecuteRules", RuleEngineServer.ExecuteRules)},
		{MethodName: "ListRules", Handler: unaryHandler("ListRules", RuleEngineServer.ListRules)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rulekeeper/v1/rule_engine.proto",
}
