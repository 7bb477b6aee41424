package server

import (
	"crypto/tls"
	"fmt"
	"strings"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// loadServerTLS loads a PEM certificate and private key for a listener.
func loadServerTLS(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("could not load certificates: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// storeCredentials returns the transport credentials for the Gateway's
// connection to the store: TLS verified against caPath, or plaintext.
func storeCredentials(caPath string) (credentials.TransportCredentials, error) {
	if caPath == "" {
		return insecure.NewCredentials(), nil
	}
	creds, err := credentials.NewClientTLSFromFile(caPath, "")
	if err != nil {
		return nil, fmt.Errorf("could not load store CA: %w", err)
	}
	return creds, nil
}

// storeTarget turns a bare host:port into a passthrough target so it is
// dialed as-is; targets that already name a scheme are left alone.
func storeTarget(addr string) string {
	if strings.Contains(addr, ":///") {
		return addr
	}
	return "passthrough:///" + addr
}
