package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/heysubinoy/pyazgate/api/proto"
	"github.com/heysubinoy/pyazgate/pkg/config"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

type clientFlags struct {
	addr    string
	caPath  string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f clientFlags

	root := &cobra.Command{
		Use:           "kv-cli",
		Short:         "Talk to a kv-store directly over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultAddr := os.Getenv("STORE_ADDR")
	if defaultAddr == "" {
		defaultAddr = config.DefaultStoreAddr
	}
	root.PersistentFlags().StringVarP(&f.addr, "addr", "a", defaultAddr, "kv-store gRPC address (env STORE_ADDR)")
	root.PersistentFlags().StringVar(&f.caPath, "ca", "", "CA certificate; enables TLS")
	root.PersistentFlags().DurationVar(&f.timeout, "timeout", 5*time.Second, "per-call deadline")

	root.AddCommand(newGetCmd(&f), newSetCmd(&f))
	return root
}

func newGetCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), f, func(ctx context.Context, client proto.KeyValueStoreClient) error {
				resp, err := client.Get(ctx, &proto.GetRequest{Key: args[0]})
				if err != nil {
					return fmt.Errorf("get failed: %w", err)
				}

				if resp.Value == nil {
					return fmt.Errorf("key '%s' not found", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.GetValue())
				return nil
			})
		},
	}
}

func newSetCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store value under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), f, func(ctx context.Context, client proto.KeyValueStoreClient) error {
				if _, err := client.Set(ctx, &proto.SetRequest{Key: args[0], Value: args[1]}); err != nil {
					return fmt.Errorf("set failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Set '%s' = '%s'\n", args[0], args[1])
				return nil
			})
		},
	}
}

func withClient(ctx context.Context, f *clientFlags, fn func(context.Context, proto.KeyValueStoreClient) error) error {
	creds := insecure.NewCredentials()
	if f.caPath != "" {
		var err error
		if creds, err = credentials.NewClientTLSFromFile(f.caPath, ""); err != nil {
			return fmt.Errorf("failed to load CA: %w", err)
		}
	}

	conn, err := grpc.NewClient("passthrough:///"+f.addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	return fn(ctx, proto.NewKeyValueStoreClient(conn))
}
