package api

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

// memStore is an in-memory RuleStore.
type memStore struct {
	mu      sync.Mutex
	saved   map[string]*types.RuleDefinition
	failing bool
}

func (m *memStore) Save(_ context.Context, def *types.RuleDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk full")
	}
	m.saved[def.RuleID] = def
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, errors.New("disk full")
	}
	_, ok := m.saved[id]
	delete(m.saved, id)
	return ok, nil
}

type fixture struct {
	client *Client
	store  *memStore
	engine *rules.Engine
}

func newFixture(t *testing.T, maxInputKeys int) *fixture {
	t.Helper()
	engine := rules.NewEngine(nil)
	store := &memStore{saved: make(map[string]*types.RuleDefinition)}
	svc, err := NewService(engine, store, nil, maxInputKeys)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	svc.Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &fixture{client: NewClient(conn), store: store, engine: engine}
}

func mustDef(t *testing.T, data string) *types.RuleDefinition {
	t.Helper()
	def, err := types.ParseRuleDefinition([]byte(data))
	if err != nil {
		t.Fatalf("ParseRuleDefinition() error = %v", err)
	}
	return def
}

func mustMap(t *testing.T, data string) *types.Map {
	t.Helper()
	m, err := types.ParseMapJSON([]byte(data))
	if err != nil {
		t.Fatalf("ParseMapJSON() error = %v", err)
	}
	return m
}

const (
	statusRule = `{"ruleId": "status", "ruleName": "adult status",
		"conditions": {"age": {"operator": ">=", "value": 18}},
		"actions": {"status": {"operator": "set", "value": "adult"}}}`
	voteRule = `{"ruleId": "vote", "ruleName": "can vote", "type": "expression",
		"conditionExpression": "status == 'adult'",
		"actionExpressions": {"canVote": "true", "notify": "=> canVote"}}`
)

func TestService_Pipeline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	for _, data := range []string{statusRule, voteRule} {
		if _, err := f.client.AddRule(ctx, mustDef(t, data)); err != nil {
			t.Fatalf("AddRule() error = %v", err)
		}
	}
	if len(f.store.saved) != 2 {
		t.Errorf("stored %d rules, want 2", len(f.store.saved))
	}

	id, got, err := f.client.ExecuteRules(ctx, mustMap(t, `{"age": 20}`))
	if err != nil {
		t.Fatalf("ExecuteRules() error = %v", err)
	}
	if types.ExecutionIDTime(id).IsZero() {
		t.Errorf("executionId %q is not a UUIDv7", id)
	}
	want := mustMap(t, `{"age": 20, "status": "adult", "canVote": true,
		"__callbacks__": [{"name": "notify", "value": true}]}`)
	if diff := cmp.Diff(want.ToGo(), got.ToGo()); diff != "" {
		t.Errorf("ExecuteRules() mismatch (-want +got):\n%s", diff)
	}

	summaries, err := f.client.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	wantList := []rules.RuleSummary{
		{ID: "status", Name: "adult status", Type: "simple"},
		{ID: "vote", Name: "can vote", Type: "expression"},
	}
	if diff := cmp.Diff(wantList, summaries); diff != "" {
		t.Errorf("ListRules() mismatch (-want +got):\n%s", diff)
	}
}

func TestService_AddRuleReplaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	if replaced, err := f.client.AddRule(ctx, mustDef(t, statusRule)); err != nil || replaced {
		t.Fatalf("AddRule() = %v, %v, want false, nil", replaced, err)
	}
	replaced, err := f.client.AddRule(ctx, mustDef(t, `{"ruleId": "status", "ruleName": "renamed",
		"conditions": {"age": {"operator": ">=", "value": 21}}}`))
	if err != nil || !replaced {
		t.Fatalf("AddRule(again) = %v, %v, want true, nil", replaced, err)
	}
	if f.engine.Len() != 1 || f.engine.ListRules()[0].Name != "renamed" {
		t.Errorf("ListRules() = %v, want single renamed rule", f.engine.ListRules())
	}
}

func TestService_RemoveRule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	if _, err := f.client.AddRule(ctx, mustDef(t, statusRule)); err != nil {
		t.Fatal(err)
	}

	removed, err := f.client.RemoveRule(ctx, "status")
	if err != nil || !removed {
		t.Errorf("RemoveRule() = %v, %v, want true, nil", removed, err)
	}
	removed, err = f.client.RemoveRule(ctx, "status")
	if err != nil || removed {
		t.Errorf("RemoveRule() again = %v, %v, want false, nil", removed, err)
	}
	if len(f.store.saved) != 0 || f.engine.Len() != 0 {
		t.Errorf("store has %d, engine has %d, want 0 and 0", len(f.store.saved), f.engine.Len())
	}
}

func TestService_ErrorCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	if _, err := f.client.AddRule(ctx, mustDef(t, `{"ruleId": "div", "ruleName": "div",
		"conditions": {"x": {"operator": ">", "value": 0}},
		"actions": {"x": {"operator": "/=", "value": 0}}}`)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{
			name: "unsupported rule type",
			call: func() error {
				_, err := f.client.AddRule(ctx, &types.RuleDefinition{RuleID: "x", RuleName: "x", Type: "cobol"})
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "missing definition",
			call: func() error {
				_, err := f.client.invoke(ctx, "AddRule", &structpb.Struct{})
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "missing ruleId",
			call: func() error {
				_, err := f.client.RemoveRule(ctx, "")
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "missing inputs",
			call: func() error {
				_, err := f.client.invoke(ctx, "ExecuteRules", &structpb.Struct{})
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "too many input keys",
			call: func() error {
				_, _, err := f.client.ExecuteRules(ctx, mustMap(t, `{"a": 1, "b": 2, "c": 3}`))
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "action error",
			call: func() error {
				_, _, err := f.client.ExecuteRules(ctx, mustMap(t, `{"x": 4}`))
				return err
			},
			want: codes.FailedPrecondition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(tt.call()); got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestService_StorageUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.store.failing = true

	_, err := f.client.AddRule(ctx, mustDef(t, statusRule))
	if status.Code(err) != codes.Unavailable {
		t.Errorf("AddRule() code = %v, want Unavailable", status.Code(err))
	}
	if f.engine.Len() != 0 {
		t.Errorf("engine has %d rules after failed save, want 0", f.engine.Len())
	}

	_, err = f.client.RemoveRule(ctx, "status")
	if status.Code(err) != codes.Unavailable {
		t.Errorf("RemoveRule() code = %v, want Unavailable", status.Code(err))
	}
}

func TestNewService_NilEngine(t *testing.T) {
	if _, err := NewService(nil, nil, nil, 0); err == nil {
		t.Error("NewService(nil) error = nil, want error")
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{&types.ConstructionError{Reason: "x"}, codes.InvalidArgument},
		{&types.InputError{Reason: "x"}, codes.InvalidArgument},
		{types.Errorf(types.ErrDivideByZero, "x"), codes.FailedPrecondition},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.NotFound, "x"), codes.NotFound},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) code = %v, want %v", tt.err, got, tt.want)
		}
	}
}
