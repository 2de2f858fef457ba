package telemetry

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"holmes/internal/domain"
)

// HealthReport is served on /healthz.
type HealthReport struct {
	Status   string         `json:"status"`
	Toolsets map[string]int `json:"toolsets,omitempty"`
}

type HTTPServerOptions struct {
	Addr          string
	EnableMetrics bool
	EnableHealthz bool
	Health        func() HealthReport
	Registry      prometheus.Gatherer
}

const shutdownGrace = 5 * time.Second

// StartHTTPServer serves /metrics and /healthz until ctx is done. The address
// is bound before serving starts, so a port in use fails right away.
func StartHTTPServer(ctx context.Context, opts HTTPServerOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := observabilityMux(opts)
	if mux == nil {
		return nil
	}

	listener, err := net.Listen("tcp", cmp.Or(opts.Addr, domain.DefaultObservabilityListenAddr))
	if err != nil {
		return fmt.Errorf("observability server failed to start: %w", err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(listener)
	}()
	logger.Info("observability server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("metrics", opts.EnableMetrics),
		zap.Bool("healthz", opts.EnableHealthz),
	)

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("observability server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("observability server shutdown failed", zap.Error(err))
		return fmt.Errorf("shutdown observability server: %w", err)
	}
	<-served
	logger.Info("observability server stopped")
	return nil
}

// observabilityMux returns nil when no endpoint is enabled.
func observabilityMux(opts HTTPServerOptions) *http.ServeMux {
	if !opts.EnableMetrics && !opts.EnableHealthz {
		return nil
	}
	mux := http.NewServeMux()
	if opts.EnableMetrics {
		gatherer := opts.Registry
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	if opts.EnableHealthz {
		mux.Handle("GET /healthz", healthHandler(opts.Health))
	}
	return mux
}

// healthHandler answers 200 while the report says "ok" and 503 otherwise.
func healthHandler(health func() HealthReport) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		report := HealthReport{Status: "ok"}
		if health != nil {
			report = health()
		}
		code := http.StatusServiceUnavailable
		if report.Status == "ok" {
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
}
