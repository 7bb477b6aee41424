package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/heysubinoy/pyazgate/api/proto"
	"github.com/heysubinoy/pyazgate/internal/api"
	"github.com/heysubinoy/pyazgate/internal/store"
	"github.com/heysubinoy/pyazgate/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

// StoreServer is the Store Service: one in-memory map served over gRPC.
type StoreServer struct {
	cfg      config.StoreConfig
	logger   *slog.Logger
	registry *prometheus.Registry
	grpc     *grpc.Server
	health   *health.Server
}

// NewStoreServer builds the Store Service. Certificate load failures are
// returned here so the process can exit before serving.
func NewStoreServer(cfg config.StoreConfig, opts ...Option) (*StoreServer, error) {
	o := newOptions(opts)

	mem := store.NewMemStore()
	if err := store.RegisterKeyGauge(o.registry, mem); err != nil {
		return nil, fmt.Errorf("register store metrics: %w", err)
	}
	kvStore := store.NewInstrumentedStore(mem, store.NewMetrics(o.registry))

	serverOpts := []grpc.ServerOption{
		grpc.UnaryInterceptor(api.UnaryLogger(o.logger)),
	}
	if cfg.TLSEnabled() {
		creds, err := credentials.NewServerTLSFromFile(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("could not load certificates: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	grpcServer := grpc.NewServer(serverOpts...)
	proto.RegisterKeyValueStoreServer(grpcServer, api.NewGRPCServer(kvStore, o.logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return &StoreServer{
		cfg:      cfg,
		logger:   o.logger,
		registry: o.registry,
		grpc:     grpcServer,
		health:   healthServer,
	}, nil
}

// ListenAndServe binds the configured gRPC and metrics addresses and serves
// until ctx is done.
func (s *StoreServer) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", s.cfg.Addr, err)
	}

	var metricsLis net.Listener
	if s.cfg.MetricsAddr != "" {
		metricsLis, err = net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			lis.Close()
			return fmt.Errorf("could not listen on %s: %w", s.cfg.MetricsAddr, err)
		}
	}

	return s.serve(ctx, lis, metricsLis)
}

// Serve serves gRPC on lis until ctx is done. It does not start the metrics
// endpoint.
func (s *StoreServer) Serve(ctx context.Context, lis net.Listener) error {
	return s.serve(ctx, lis, nil)
}

func (s *StoreServer) serve(ctx context.Context, lis, metricsLis net.Listener) error {
	errCh := make(chan error, 2)

	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(proto.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	s.logger.Info("store listening", "addr", lis.Addr().String(), "tls", s.cfg.TLSEnabled())
	go func() {
		errCh <- s.grpc.Serve(lis)
	}()

	var metricsServer *http.Server
	if metricsLis != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		s.logger.Info("store metrics listening", "addr", metricsLis.Addr().String())
		go func() {
			if err := metricsServer.Serve(metricsLis); !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	s.logger.Info("store shutting down")
	s.health.Shutdown()
	s.grpc.GracefulStop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return err
}
