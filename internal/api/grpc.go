package api

import (
	"context"
	"log/slog"

	"github.com/heysubinoy/pyazgate/api/proto"
	"github.com/heysubinoy/pyazgate/internal/logging"
	"github.com/heysubinoy/pyazgate/pkg/kv"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCServer implements the proto.KeyValueStoreServer interface.
// It wraps a kv.Store and exposes it over gRPC. Keys are not validated
// here; the gateway rejects empty keys before they reach the store.
type GRPCServer struct {
	proto.UnimplementedKeyValueStoreServer
	Store  kv.Store
	logger *slog.Logger
}

// NewGRPCServer creates a new gRPC server with the given store.
func NewGRPCServer(store kv.Store, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &GRPCServer{
		Store:  store,
		logger: logger,
	}
}

// Get retrieves a value by key. A missing key is answered with an empty
// response rather than an error.
func (s *GRPCServer) Get(ctx context.Context, req *proto.GetRequest) (*proto.GetResponse, error) {
	key := req.GetKey()
	value, found := s.Store.Get(key)
	s.logger.DebugContext(ctx, "get", "key", key, "found", found)

	resp := &proto.GetResponse{}
	if found {
		resp.Value = &value
	}
	return resp, nil
}

// Set stores a key-value pair.
func (s *GRPCServer) Set(ctx context.Context, req *proto.SetRequest) (*proto.SetResponse, error) {
	key := req.GetKey()
	if err := s.Store.Set(key, req.GetValue()); err != nil {
		s.logger.ErrorContext(ctx, "set failed", "key", key, "error", err)
		return nil, status.Error(codes.Internal, "failed to set key")
	}
	s.logger.DebugContext(ctx, "set", "key", key)

	return &proto.SetResponse{}, nil
}
