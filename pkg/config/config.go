package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/heysubinoy/pyazgate/internal/logging"
	"gopkg.in/yaml.v3"
)

const (
	DefaultStoreAddr      = "[::1]:50051"
	DefaultGatewayAddr    = "127.0.0.1:3000"
	DefaultDialTimeout    = 5 * time.Second
	DefaultRequestTimeout = 5 * time.Second
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Gateway GatewayConfig `yaml:"gateway"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig configures the Store Service. CertPath and KeyPath enable TLS
// on the gRPC listener; MetricsAddr, when set, serves /metrics over HTTP.
type StoreConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	CertPath    string `yaml:"cert_path"`
	KeyPath     string `yaml:"key_path"`
}

// GatewayConfig configures the HTTP gateway. CertPath and KeyPath enable TLS
// on the HTTP listener. StoreCAPath enables TLS towards the Store Service.
// A zero RequestTimeout leaves upstream calls unbounded.
type GatewayConfig struct {
	Addr           string        `yaml:"addr"`
	CertPath       string        `yaml:"cert_path"`
	KeyPath        string        `yaml:"key_path"`
	StoreAddr      string        `yaml:"store_addr"`
	StoreCAPath    string        `yaml:"store_ca_path"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// TLSEnabled reports whether the gateway terminates TLS.
func (c GatewayConfig) TLSEnabled() bool {
	return c.CertPath != "" && c.KeyPath != ""
}

// TLSEnabled reports whether the store serves gRPC over TLS.
func (c StoreConfig) TLSEnabled() bool {
	return c.CertPath != "" && c.KeyPath != ""
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
		Store: StoreConfig{
			Addr: DefaultStoreAddr,
		},
		Gateway: GatewayConfig{
			Addr:           DefaultGatewayAddr,
			StoreAddr:      DefaultStoreAddr,
			DialTimeout:    DefaultDialTimeout,
			RequestTimeout: DefaultRequestTimeout,
		},
	}
}

// LoadConfig loads configuration from a YAML file if path is provided,
// layered over Default, then applies environment variable overrides.
// The result is not validated; call Validate once flags have been applied.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides allows environment variables to override YAML config values
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"LOG_LEVEL":             &cfg.Log.Level,
		"LOG_FORMAT":            &cfg.Log.Format,
		"STORE_ADDR":            &cfg.Store.Addr,
		"STORE_METRICS_ADDR":    &cfg.Store.MetricsAddr,
		"STORE_CERT_PATH":       &cfg.Store.CertPath,
		"STORE_KEY_PATH":        &cfg.Store.KeyPath,
		"GATEWAY_ADDR":          &cfg.Gateway.Addr,
		"GATEWAY_CERT_PATH":     &cfg.Gateway.CertPath,
		"GATEWAY_KEY_PATH":      &cfg.Gateway.KeyPath,
		"GATEWAY_STORE_ADDR":    &cfg.Gateway.StoreAddr,
		"GATEWAY_STORE_CA_PATH": &cfg.Gateway.StoreCAPath,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"GATEWAY_DIAL_TIMEOUT":    &cfg.Gateway.DialTimeout,
		"GATEWAY_REQUEST_TIMEOUT": &cfg.Gateway.RequestTimeout,
	}
	for name, dst := range durations {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", name, err)
		}
		*dst = d
	}
	return nil
}

// Validate reports every problem with cfg at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs,
		checkAddr("store.addr", c.Store.Addr, true),
		checkAddr("store.metrics_addr", c.Store.MetricsAddr, false),
		checkPair("store", c.Store.CertPath, c.Store.KeyPath),
		checkAddr("gateway.addr", c.Gateway.Addr, true),
		checkTarget("gateway.store_addr", c.Gateway.StoreAddr),
		checkPair("gateway", c.Gateway.CertPath, c.Gateway.KeyPath),
	)

	if c.Gateway.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("gateway.dial_timeout must not be negative"))
	}
	if c.Gateway.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("gateway.request_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

func checkAddr(field, addr string, required bool) error {
	if addr == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: could not parse address %q: %w", field, addr, err)
	}
	return nil
}

// checkTarget accepts a host:port or a gRPC target naming a scheme, such as
// dns:///kv.internal:50051.
func checkTarget(field, target string) error {
	scheme, endpoint, ok := strings.Cut(target, ":///")
	if !ok {
		return checkAddr(field, target, true)
	}
	if scheme == "" || endpoint == "" {
		return fmt.Errorf("%s: could not parse target %q", field, target)
	}
	return nil
}

func checkPair(section, cert, key string) error {
	if (cert == "") != (key == "") {
		return fmt.Errorf("%s.cert_path and %s.key_path must be set together", section, section)
	}
	return nil
}
