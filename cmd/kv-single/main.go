package main

import (
	"fmt"
	"os"

	"github.com/heysubinoy/pyazgate/internal/cli"
	"github.com/heysubinoy/pyazgate/internal/server"
	"github.com/heysubinoy/pyazgate/pkg/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd runs the store and the gateway in one process, the gateway
// pointed at the in-process store's gRPC address.
func newRootCmd() *cobra.Command {
	var (
		common   cli.CommonFlags
		httpAddr string
		grpcAddr string
		certPath string
		keyPath  string
	)

	cmd := &cobra.Command{
		Use:           "kv-single",
		Short:         "Run kv-store and kv-gateway in a single process",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := common.Load(cmd, func(c *config.Config) {
				flags := cmd.Flags()
				if flags.Changed("http-addr") {
					c.Gateway.Addr = httpAddr
				}
				if flags.Changed("grpc-addr") {
					c.Store.Addr = grpcAddr
				}
				if flags.Changed("cert") {
					c.Gateway.CertPath = certPath
				}
				if flags.Changed("key") {
					c.Gateway.KeyPath = keyPath
				}
				c.Gateway.StoreAddr = c.Store.Addr
				if c.Store.TLSEnabled() && c.Gateway.StoreCAPath == "" {
					c.Gateway.StoreCAPath = c.Store.CertPath
				}
			})
			if err != nil {
				return err
			}

			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()

			reg := server.NewRegistry()
			opts := []server.Option{server.WithLogger(logger), server.WithRegistry(reg)}

			storeServer, err := server.NewStoreServer(cfg.Store, opts...)
			if err != nil {
				return err
			}
			storeErr := make(chan error, 1)
			go func() {
				storeErr <- storeServer.ListenAndServe(ctx)
			}()

			gateway, err := server.NewGateway(ctx, cfg.Gateway, opts...)
			if err == nil {
				err = gateway.ListenAndServe(ctx)
			}

			stop()
			if serr := <-storeErr; err == nil {
				err = serr
			}
			return err
		},
	}

	common.Bind(cmd)
	cmd.Flags().StringVar(&httpAddr, "http-addr", config.DefaultGatewayAddr, "HTTP listen address")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", config.DefaultStoreAddr, "gRPC listen address")
	cmd.Flags().StringVar(&certPath, "cert", "", "PEM certificate for the HTTP listener")
	cmd.Flags().StringVar(&keyPath, "key", "", "PEM private key for the HTTP listener")
	return cmd
}
