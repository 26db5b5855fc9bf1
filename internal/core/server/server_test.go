package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/solatis/rulekeeper/internal/core/api"
	"github.com/solatis/rulekeeper/internal/core/auth"
	"github.com/solatis/rulekeeper/internal/core/config"
	"github.com/solatis/rulekeeper/internal/core/db"
	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

func TestLoggingInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	intercept := LoggingInterceptor(logger)
	info := &grpc.UnaryServerInfo{FullMethod: "/rulekeeper.v1.RuleEngine/ListRules"}

	_, _ = intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "bad")
	})
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "code=InvalidArgument") || !strings.Contains(out, "ListRules") {
		t.Errorf("log output = %q, want warn line with method and code", out)
	}
}

func TestTimeoutInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/x/y"}
	var deadline time.Time
	var ok bool
	handler := func(ctx context.Context, req any) (any, error) {
		deadline, ok = ctx.Deadline()
		return nil, nil
	}

	_, _ = TimeoutInterceptor(time.Second)(context.Background(), nil, info, handler)
	if !ok || time.Until(deadline) > time.Second {
		t.Errorf("deadline = %v, %v, want within 1s", deadline, ok)
	}

	_, _ = TimeoutInterceptor(0)(context.Background(), nil, info, handler)
	if ok {
		t.Error("TimeoutInterceptor(0) set a deadline")
	}
}

type testServer struct {
	conn   *grpc.ClientConn
	client *api.Client
	key    string
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	database, err := db.Open("sqlite://" + t.TempDir() + "/server.db")
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if _, err := db.MigrateUp(ctx, database); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}

	secretID := types.NewSecretID()
	authenticator := auth.NewAuthenticator(map[string][]byte{secretID: []byte(strings.Repeat("s", 32))}, db.NewKeyStore(queries))
	key, _, err := authenticator.Issue(ctx, "tests", secretID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	svc, err := api.NewService(rules.NewEngine(nil), db.NewRuleStore(queries), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewGRPCServer(config.DefaultConfig().Server, svc, authenticator, nil)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	return &testServer{conn: conn, client: api.NewClient(conn), key: key}
}

func TestGRPCServer_AuthAndHealth(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	resp, err := grpc_health_v1.NewHealthClient(ts.conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("health Check() error = %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v, want SERVING", resp.GetStatus())
	}

	if _, err := ts.client.ListRules(ctx); status.Code(err) != codes.Unauthenticated {
		t.Errorf("ListRules() without key code = %v, want Unauthenticated", status.Code(err))
	}

	authed := metadata.AppendToOutgoingContext(ctx, auth.MetadataKey, ts.key)
	def, err := types.ParseRuleDefinition([]byte(`{"ruleId": "r", "ruleName": "r",
		"conditions": {"n": {"operator": ">", "value": 1}},
		"actions": {"big": {"operator": "set", "value": true}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ts.client.AddRule(authed, def); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}
	_, got, err := ts.client.ExecuteRules(authed, types.NewMap())
	if err != nil {
		t.Fatalf("ExecuteRules() error = %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("ExecuteRules(empty) = %v, want empty", got)
	}
}

func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := rules.NewMetrics(reg)
	e := rules.NewEngine(nil, rules.WithMetrics(metrics))
	if _, err := e.ExecuteRules(types.NewMap()); err != nil {
		t.Fatal(err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	m := NewMetricsServer(lis.Addr().String(), reg, nil)
	go m.Serve(lis)
	defer m.Shutdown(context.Background())

	resp, err := http.Get("http://" + lis.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "rulekeeper_engine_executions_total") {
		t.Errorf("/metrics body missing executions counter:\n%s", body)
	}
}
