package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/solatis/rulekeeper/internal/core/api"
	"github.com/solatis/rulekeeper/internal/core/auth"
	"github.com/solatis/rulekeeper/internal/core/config"
	"github.com/solatis/rulekeeper/internal/core/db"
	"github.com/solatis/rulekeeper/internal/core/server"
	"github.com/solatis/rulekeeper/internal/rules"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC rule engine service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("rules", "", "rule set file loaded after the stored rules")
	serveCmd.Flags().Bool("no-auth", false, "serve without API key authentication")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd.Flags(), map[string]string{
		"server.host":       "host",
		"server.port":       "port",
		"engine.rules_file": "rules",
	})
	if err != nil {
		return err
	}
	noAuth, _ := cmd.Flags().GetBool("no-auth")

	database, err := db.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	pending, err := db.Pending(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	if len(pending) > 0 {
		return fmt.Errorf("migrations not applied (%s) - run 'rulekeeper migrate up' first", strings.Join(pending, ", "))
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	var authenticator *auth.Authenticator
	if !noAuth {
		secrets, err := config.HMACSecrets()
		if err != nil {
			return fmt.Errorf("failed to load HMAC secrets: %w", err)
		}
		if len(secrets) == 0 {
			return fmt.Errorf("no HMAC secrets configured (set RK_HMAC_SECRET environment variable or pass --no-auth)")
		}
		authenticator = auth.NewAuthenticator(secrets, db.NewKeyStore(queries))
	}

	var (
		opts     []rules.Option
		registry *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, rules.WithMetrics(rules.NewMetrics(registry)))
	}
	engine := newEngine(cfg.Engine.ExpressionCacheSize, opts...)

	store := db.NewRuleStore(queries)
	stored, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored rules: %w", err)
	}
	for _, def := range stored {
		if err := engine.AddRule(def); err != nil {
			return fmt.Errorf("stored rule %q: %w", def.RuleID, err)
		}
	}
	if cfg.Engine.RulesFile != "" {
		set, err := loadRuleSet(cfg.Engine.RulesFile)
		if err != nil {
			return err
		}
		if err := engine.AddRuleSet(set); err != nil {
			return fmt.Errorf("%s: %w", cfg.Engine.RulesFile, err)
		}
	}

	service, err := api.NewService(engine, store, logger, cfg.Server.MaxInputKeys)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg.Server, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errChan := make(chan error, 2)
	var metricsServer *server.MetricsServer
	if registry != nil {
		metricsServer = server.NewMetricsServer(cfg.Metrics.Addr, registry, logger)
		go func() {
			errChan <- metricsServer.Start()
		}()
	}

	logger.Info("starting rulekeeper", "version", Version, "addr", cfg.Server.Address(), "rules", engine.Len(), "auth", authenticator != nil)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errChan:
		return err
	case <-sigCtx.Done():
	}

	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	return grpcServer.Shutdown(shutdownCtx)
}
