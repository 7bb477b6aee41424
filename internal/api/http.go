package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/heysubinoy/pyazgate/api/proto"
	"github.com/heysubinoy/pyazgate/internal/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	errKeyRequired         = "key argument must be provided"
	errKeyValueRequired    = "key and value arguments must be provided"
	errKeyInvalidUTF8      = "key must be valid UTF-8"
	errBodyTooLarge        = "request body too large"
	errInvalidJSON         = "invalid JSON body"
	errMethodNotAllowed    = "method not allowed"
	maxSetBodyBytes        = 1 << 20
	defaultHealthCheckWait = 2 * time.Second
)

// Server translates HTTP requests into calls against a Store Service.
// Store is shared by all requests and must be safe for concurrent use.
type Server struct {
	Store   proto.KeyValueStoreClient
	Health  grpc_health_v1.HealthClient
	Timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTimeout bounds each upstream call. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.Timeout = d }
}

// WithHealth makes /healthz report the upstream health status.
func WithHealth(client grpc_health_v1.HealthClient) Option {
	return func(s *Server) { s.Health = client }
}

// NewServer creates a gateway HTTP server forwarding to store.
func NewServer(store proto.KeyValueStoreClient, opts ...Option) *Server {
	s := &Server{
		Store:  store,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes registers all HTTP handlers on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/get", s.handleGet)
	mux.HandleFunc("/set", s.handleSet)
	mux.HandleFunc("/healthz", s.handleHealth)
}

type getResponse struct {
	Value *string `json:"value"`
}

type setRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleGet handles GET /get?key=foo requests.
// Responds {"value": "..."} or {"value": null} when the key is absent.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	key := r.URL.Query().Get("key")
	if key == "" {
		s.logger.DebugContext(ctx, "get rejected: empty key", "request_id", RequestID(ctx))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errKeyRequired})
		return
	}
	if !utf8.ValidString(key) {
		s.logger.DebugContext(ctx, "get rejected: key is not UTF-8", "request_id", RequestID(ctx))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errKeyInvalidUTF8})
		return
	}
	s.logger.DebugContext(ctx, "get", "key", key, "request_id", RequestID(ctx))

	ctx, cancel := s.upstreamContext(ctx)
	defer cancel()

	resp, err := s.Store.Get(ctx, &proto.GetRequest{Key: key})
	if err != nil {
		s.upstreamFailure(w, r, "get", err)
		return
	}

	writeJSON(w, http.StatusOK, getResponse{Value: resp.Value})
}

// handleSet handles POST /set requests with JSON body.
// Expects: {"key": "foo", "value": "bar"}
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	var req setRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSetBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.DebugContext(ctx, "set rejected: bad body", "error", err, "request_id", RequestID(ctx))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: errBodyTooLarge})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errInvalidJSON})
		return
	}

	if req.Key == "" || req.Value == "" {
		s.logger.DebugContext(ctx, "set rejected: empty key or value",
			"key", req.Key, "request_id", RequestID(ctx))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errKeyValueRequired})
		return
	}
	s.logger.DebugContext(ctx, "set", "key", req.Key, "request_id", RequestID(ctx))

	ctx, cancel := s.upstreamContext(ctx)
	defer cancel()

	if _, err := s.Store.Set(ctx, &proto.SetRequest{Key: req.Key, Value: req.Value}); err != nil {
		s.upstreamFailure(w, r, "set", err)
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

// handleHealth reports whether the Store Service answers its health check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	if s.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), defaultHealthCheckWait)
		defer cancel()

		resp, err := s.Health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: proto.ServiceName})
		// Unimplemented: the store answered but carries no health service.
		if status.Code(err) == codes.Unimplemented {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		if err != nil || resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
			s.logger.WarnContext(ctx, "store health check failed",
				"status", resp.GetStatus().String(), "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// upstreamContext derives the context for one Store Service call: the
// configured deadline plus the request ID as outgoing metadata.
func (s *Server) upstreamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if id := RequestID(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
	}
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Server) upstreamFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	code, msg := httpStatusFromError(err)
	s.logger.ErrorContext(r.Context(), "store call failed",
		"op", op,
		"error", err,
		"status", code,
		"request_id", RequestID(r.Context()),
	)
	writeJSON(w, code, errorResponse{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: errMethodNotAllowed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
