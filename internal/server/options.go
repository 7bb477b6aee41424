// Package server assembles the Store Service and the Gateway from
// configuration and runs them until their context is cancelled.
package server

import (
	"log/slog"

	"github.com/heysubinoy/pyazgate/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
)

type options struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	dialOpts []grpc.DialOption
}

// Option configures a StoreServer or a Gateway.
type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry sets the registry metrics are recorded on and served from.
// Without it each server gets a private registry with Go runtime and
// process collectors.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithDialOptions appends options used when the Gateway dials the store.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	return o
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
