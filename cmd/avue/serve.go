package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/avue/internal/config"
	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/nbi"
	"github.com/signalsfoundry/avue/internal/observability"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve searches over gRPC and HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().String("grpc-addr", "", "TCP address the gRPC server listens on")
	cmd.Flags().String("http-addr", "", "TCP address the HTTP API listens on")
	cmd.Flags().String("metrics-addr", "", "HTTP address for Prometheus /metrics (empty disables)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen for gRPC on %s: %w", cfg.Server.GRPCAddr, err)
	}
	httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen for HTTP on %s: %w", cfg.Server.HTTPAddr, err)
	}
	return serve(ctx, cfg, newLogger(cfg.Log), grpcLis, httpLis)
}

// serve runs the gRPC and HTTP servers on the given listeners until ctx is
// done or one of them fails.
func serve(ctx context.Context, cfg config.Config, log logging.Logger, grpcLis, httpLis net.Listener) error {
	defer grpcLis.Close()
	defer httpLis.Close()

	tracing := cfg.Tracing
	tracing.ServiceVersion = version
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewNBICollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	a, err := newApp(ctx, cfg, log, searchMetrics(ctx, log))
	if err != nil {
		return err
	}
	defer a.orch.Close()

	svc := nbi.NewVisibilityService(a.orch, nbi.Defaults{
		HeightM:  cfg.Search.InstallationHeightM,
		RadiusKm: cfg.Search.DefaultRadiusKm,
	}, log)

	grpcSrv, hs := nbi.NewGRPCServer(svc, collector, log)
	httpSrv := &http.Server{
		Handler:           nbi.NewHTTPHandler(svc, collector, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, collector, log)

	errc := make(chan error, 2)
	log.Info(ctx, "starting gRPC server", logging.String("addr", grpcLis.Addr().String()))
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			errc <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	log.Info(ctx, "starting HTTP server", logging.String("addr", httpLis.Addr().String()))
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
	case runErr = <-errc:
		log.Error(context.Background(), "server exited", logging.Err(runErr))
	}

	hs.Shutdown()
	// Closing first ends searches that requests are waiting on.
	a.orch.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func serveMetrics(addr string, collector *observability.NBICollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
