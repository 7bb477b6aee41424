package main

import (
	"fmt"
	"os"
	"time"

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
		common         cli.CommonFlags
		gw             config.GatewayConfig
		dialTimeout    time.Duration
		requestTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:           "kv-gateway",
		Short:         "Serve the HTTP API in front of a kv-store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := common.Load(cmd, func(c *config.Config) {
				flags := cmd.Flags()
				if flags.Changed("addr") {
					c.Gateway.Addr = gw.Addr
				}
				if flags.Changed("cert") {
					c.Gateway.CertPath = gw.CertPath
				}
				if flags.Changed("key") {
					c.Gateway.KeyPath = gw.KeyPath
				}
				if flags.Changed("store-addr") {
					c.Gateway.StoreAddr = gw.StoreAddr
				}
				if flags.Changed("store-ca") {
					c.Gateway.StoreCAPath = gw.StoreCAPath
				}
				if flags.Changed("dial-timeout") {
					c.Gateway.DialTimeout = dialTimeout
				}
				if flags.Changed("request-timeout") {
					c.Gateway.RequestTimeout = requestTimeout
				}
			})
			if err != nil {
				return err
			}

			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()

			g, err := server.NewGateway(ctx, cfg.Gateway, server.WithLogger(logger))
			if err != nil {
				return err
			}
			return g.ListenAndServe(ctx)
		},
	}

	common.Bind(cmd)
	flags := cmd.Flags()
	flags.StringVarP(&gw.Addr, "addr", "a", config.DefaultGatewayAddr, "HTTP listen address")
	flags.StringVar(&gw.CertPath, "cert", "", "PEM certificate; enables TLS together with --key")
	flags.StringVar(&gw.KeyPath, "key", "", "PEM private key; enables TLS together with --cert")
	flags.StringVarP(&gw.StoreAddr, "store-addr", "s", config.DefaultStoreAddr, "kv-store gRPC address")
	flags.StringVar(&gw.StoreCAPath, "store-ca", "", "CA certificate for TLS to the kv-store")
	flags.DurationVar(&dialTimeout, "dial-timeout", config.DefaultDialTimeout, "how long to wait for the kv-store at startup")
	flags.DurationVar(&requestTimeout, "request-timeout", config.DefaultRequestTimeout, "deadline for each kv-store call; 0 disables")
	return cmd
}
