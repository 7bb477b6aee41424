package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/heysubinoy/pyazgate/api/proto"
	"github.com/heysubinoy/pyazgate/internal/api"
	"github.com/heysubinoy/pyazgate/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Gateway serves the HTTP API and forwards to the Store Service over a
// single shared gRPC connection.
type Gateway struct {
	cfg       config.GatewayConfig
	logger    *slog.Logger
	conn      *grpc.ClientConn
	tlsConfig *tls.Config
	http      *http.Server
}

// NewGateway loads the listener certificates, connects to the store and
// waits up to cfg.DialTimeout for it to report SERVING. Any failure is
// returned before the Gateway serves a single request.
func NewGateway(ctx context.Context, cfg config.GatewayConfig, opts ...Option) (*Gateway, error) {
	o := newOptions(opts)

	var tlsConfig *tls.Config
	if cfg.TLSEnabled() {
		var err error
		if tlsConfig, err = loadServerTLS(cfg.CertPath, cfg.KeyPath); err != nil {
			return nil, err
		}
	}

	creds, err := storeCredentials(cfg.StoreCAPath)
	if err != nil {
		return nil, err
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, o.dialOpts...)

	conn, err := grpc.NewClient(storeTarget(cfg.StoreAddr), dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to key-value store: %w", err)
	}

	healthClient := grpc_health_v1.NewHealthClient(conn)
	if err := waitForStore(ctx, healthClient, cfg.DialTimeout, o.logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not connect to key-value store at %s: %w", cfg.StoreAddr, err)
	}
	o.logger.Info("connected to key-value store", "addr", cfg.StoreAddr)

	apiServer := api.NewServer(proto.NewKeyValueStoreClient(conn),
		api.WithLogger(o.logger),
		api.WithTimeout(cfg.RequestTimeout),
		api.WithHealth(healthClient),
	)

	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{}))

	return &Gateway{
		cfg:       cfg,
		logger:    o.logger,
		conn:      conn,
		tlsConfig: tlsConfig,
		http: &http.Server{
			Handler:           api.Instrument(mux, api.NewHTTPMetrics(o.registry), o.logger),
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          slog.NewLogLogger(o.logger.Handler(), slog.LevelWarn),
		},
	}, nil
}

// waitForStore blocks until the store answers a health check. A store that
// does not register grpc.health.v1 answers Unimplemented, which still proves
// the connection is up.
func waitForStore(ctx context.Context, client grpc_health_v1.HealthClient, timeout time.Duration, logger *slog.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := client.Check(ctx,
		&grpc_health_v1.HealthCheckRequest{Service: proto.ServiceName},
		grpc.WaitForReady(true),
	)
	if status.Code(err) == codes.Unimplemented {
		logger.Warn("key-value store has no health service; skipping status check")
		return nil
	}
	if err != nil {
		return err
	}
	if s := resp.GetStatus(); s != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("store reports %s", s)
	}
	return nil
}

// ListenAndServe binds the configured address and serves until ctx is done.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", g.cfg.Addr)
	if err != nil {
		g.conn.Close()
		return fmt.Errorf("could not listen on %s: %w", g.cfg.Addr, err)
	}
	return g.Serve(ctx, lis)
}

// Serve accepts connections on lis, terminating TLS first when configured,
// until ctx is done. The store connection is closed on return.
func (g *Gateway) Serve(ctx context.Context, lis net.Listener) error {
	defer g.conn.Close()

	errCh := make(chan error, 1)
	g.logger.Info("gateway listening", "addr", lis.Addr().String(), "tls", g.tlsConfig != nil)
	go func() {
		if g.tlsConfig != nil {
			// Certificates are already in TLSConfig.
			errCh <- g.http.ServeTLS(lis, "", "")
			return
		}
		errCh <- g.http.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	g.logger.Info("gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.http.Shutdown(shutdownCtx)
}

// Close releases the store connection of a Gateway that was never served.
func (g *Gateway) Close() error {
	return g.conn.Close()
}
