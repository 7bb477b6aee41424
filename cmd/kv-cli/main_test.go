package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/heysubinoy/pyazgate/internal/server"
	"github.com/heysubinoy/pyazgate/pkg/config"
)

func startStore(t *testing.T) string {
	t.Helper()

	srv, err := server.NewStoreServer(config.StoreConfig{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewStoreServer: %v", err)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return lis.Addr().String()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGetSet(t *testing.T) {
	addr := startStore(t)

	if _, err := run(t, "get", "--addr", addr, "foo"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("get before set: err = %v, want not found", err)
	}

	out, err := run(t, "set", "--addr", addr, "bar", "baz")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if out != "Set 'bar' = 'baz'\n" {
		t.Errorf("set output = %q", out)
	}

	out, err = run(t, "get", "--addr", addr, "bar")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "baz\n" {
		t.Errorf("get output = %q, want baz", out)
	}
}

func TestArgsValidated(t *testing.T) {
	if _, err := run(t, "set", "only-key"); err == nil {
		t.Error("set with one argument: expected error")
	}
	if _, err := run(t, "get"); err == nil {
		t.Error("get without key: expected error")
	}
}
