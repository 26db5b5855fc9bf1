package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes a Prometheus registry on /metrics.
type MetricsServer struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewMetricsServer serves gatherer on addr.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) *MetricsServer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start listens on the configured address and serves until Shutdown.
func (m *MetricsServer) Start() error {
	lis, err := net.Listen("tcp", m.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", m.srv.Addr, err)
	}
	return m.Serve(lis)
}

func (m *MetricsServer) Serve(lis net.Listener) error {
	m.logger.Info("metrics server listening", "addr", lis.Addr().String())
	if err := m.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
