// Package cli holds the flag handling shared by the commands under cmd/.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/heysubinoy/pyazgate/internal/logging"
	"github.com/heysubinoy/pyazgate/pkg/config"
	"github.com/spf13/cobra"
)

// CommonFlags are accepted by every server command.
type CommonFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// Bind registers the common flags on cmd.
func (f *CommonFlags) Bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.LogFormat, "log-format", logging.FormatText, "log format (text, json)")
}

// Load builds the effective configuration: file, then environment, then
// the flags the user actually set (applied by apply), then validation.
// It returns the logger built from the result.
func (f *CommonFlags) Load(cmd *cobra.Command, apply func(*config.Config)) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(f.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = f.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.LogFormat
	}
	if apply != nil {
		apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
