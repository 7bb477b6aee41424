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

func newRootCmd() *cobra.Command {
	var (
		common      cli.CommonFlags
		addr        string
		metricsAddr string
		certPath    string
		keyPath     string
	)

	cmd := &cobra.Command{
		Use:           "kv-store",
		Short:         "Serve the in-memory key-value store over gRPC",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := common.Load(cmd, func(c *config.Config) {
				flags := cmd.Flags()
				if flags.Changed("addr") {
					c.Store.Addr = addr
				}
				if flags.Changed("metrics-addr") {
					c.Store.MetricsAddr = metricsAddr
				}
				if flags.Changed("cert") {
					c.Store.CertPath = certPath
				}
				if flags.Changed("key") {
					c.Store.KeyPath = keyPath
				}
			})
			if err != nil {
				return err
			}

			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()

			srv, err := server.NewStoreServer(cfg.Store, server.WithLogger(logger))
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx)
		},
	}

	common.Bind(cmd)
	cmd.Flags().StringVarP(&addr, "addr", "a", config.DefaultStoreAddr, "gRPC listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&certPath, "cert", "", "PEM certificate for gRPC TLS")
	cmd.Flags().StringVar(&keyPath, "key", "", "PEM private key for gRPC TLS")
	return cmd
}
