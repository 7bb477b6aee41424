package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/heysubinoy/pyazgate/api/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// fakeStore is an in-process proto.KeyValueStoreClient that counts calls.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error

	gets atomic.Int32
	sets atomic.Int32

	lastCtx context.Context
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(ctx context.Context, in *proto.GetRequest, _ ...grpc.CallOption) (*proto.GetResponse, error) {
	f.gets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx

	if f.err != nil {
		return nil, f.err
	}
	resp := &proto.GetResponse{}
	if v, ok := f.data[in.Key]; ok {
		resp.Value = &v
	}
	return resp, nil
}

func (f *fakeStore) Set(ctx context.Context, in *proto.SetRequest, _ ...grpc.CallOption) (*proto.SetResponse, error) {
	f.sets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx

	if f.err != nil {
		return nil, f.err
	}
	f.data[in.Key] = in.Value
	return &proto.SetResponse{}, nil
}

func newTestHandler(store proto.KeyValueStoreClient, opts ...Option) http.Handler {
	mux := http.NewServeMux()
	NewServer(store, opts...).RegisterRoutes(mux)
	return Instrument(mux, nil, nil)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func assertResponse(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, wantBody string) {
	t.Helper()
	if rec.Code != wantCode {
		t.Errorf("status = %d, want %d (body %q)", rec.Code, wantCode, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != wantBody {
		t.Errorf("body = %s, want %s", got, wantBody)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHandleGet_Validation(t *testing.T) {
	tests := []struct {
		target   string
		wantBody string
	}{
		{target: "/get", wantBody: `{"error":"key argument must be provided"}`},
		{target: "/get?key=", wantBody: `{"error":"key argument must be provided"}`},
		{target: "/get?other=foo", wantBody: `{"error":"key argument must be provided"}`},
		{target: "/get?key=%FF", wantBody: `{"error":"key must be valid UTF-8"}`},
		{target: "/get?key=ok%C3", wantBody: `{"error":"key must be valid UTF-8"}`},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			store := newFakeStore()
			rec := do(t, newTestHandler(store), http.MethodGet, tt.target, "")

			assertResponse(t, rec, http.StatusBadRequest, tt.wantBody)
			if n := store.gets.Load(); n != 0 {
				t.Errorf("backend Get called %d times, want 0", n)
			}
		})
	}
}

func TestHandleGet_AbsentKeyIsNull(t *testing.T) {
	store := newFakeStore()
	rec := do(t, newTestHandler(store), http.MethodGet, "/get?key=foo", "")

	assertResponse(t, rec, http.StatusOK, `{"value":null}`)
	if n := store.gets.Load(); n != 1 {
		t.Errorf("backend Get called %d times, want 1", n)
	}
}

func TestSetThenGet(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	rec := do(t, h, http.MethodPost, "/set", `{"key":"bar","value":"baz"}`)
	assertResponse(t, rec, http.StatusOK, `{}`)

	rec = do(t, h, http.MethodGet, "/get?key=bar", "")
	assertResponse(t, rec, http.StatusOK, `{"value":"baz"}`)

	rec = do(t, h, http.MethodPost, "/set", `{"key":"bar","value":"qux"}`)
	assertResponse(t, rec, http.StatusOK, `{}`)

	rec = do(t, h, http.MethodGet, "/get?key=bar", "")
	assertResponse(t, rec, http.StatusOK, `{"value":"qux"}`)
}

func TestHandleSet_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantBody string
	}{
		{name: "empty key", body: `{"key":"","value":"baz"}`, wantBody: `{"error":"key and value arguments must be provided"}`},
		{name: "empty value", body: `{"key":"bar","value":""}`, wantBody: `{"error":"key and value arguments must be provided"}`},
		{name: "both empty", body: `{"key":"","value":""}`, wantBody: `{"error":"key and value arguments must be provided"}`},
		{name: "missing value", body: `{"key":"bar"}`, wantBody: `{"error":"key and value arguments must be provided"}`},
		{name: "empty object", body: `{}`, wantBody: `{"error":"key and value arguments must be provided"}`},
		{name: "no body", body: "", wantBody: `{"error":"key and value arguments must be provided"}`},
		{name: "malformed json", body: `{"key":`, wantBody: `{"error":"invalid JSON body"}`},
		{name: "wrong types", body: `{"key":1,"value":2}`, wantBody: `{"error":"invalid JSON body"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			rec := do(t, newTestHandler(store), http.MethodPost, "/set", tt.body)

			assertResponse(t, rec, http.StatusBadRequest, tt.wantBody)
			if n := store.sets.Load(); n != 0 {
				t.Errorf("backend Set called %d times, want 0", n)
			}
			if len(store.data) != 0 {
				t.Errorf("store mutated: %v", store.data)
			}
		})
	}
}

func TestHandleSet_BodyTooLarge(t *testing.T) {
	store := newFakeStore()
	body := `{"key":"big","value":"` + strings.Repeat("x", maxSetBodyBytes) + `"}`
	rec := do(t, newTestHandler(store), http.MethodPost, "/set", body)

	assertResponse(t, rec, http.StatusRequestEntityTooLarge, `{"error":"request body too large"}`)
	if n := store.sets.Load(); n != 0 {
		t.Errorf("backend Set called %d times, want 0", n)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	tests := []struct {
		method    string
		target    string
		wantAllow string
	}{
		{method: http.MethodPost, target: "/get?key=foo", wantAllow: http.MethodGet},
		{method: http.MethodGet, target: "/set", wantAllow: http.MethodPost},
		{method: http.MethodDelete, target: "/healthz", wantAllow: http.MethodGet},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			store := newFakeStore()
			rec := do(t, newTestHandler(store), tt.method, tt.target, "")

			assertResponse(t, rec, http.StatusMethodNotAllowed, `{"error":"method not allowed"}`)
			if got := rec.Header().Get("Allow"); got != tt.wantAllow {
				t.Errorf("Allow = %q, want %q", got, tt.wantAllow)
			}
			if store.gets.Load()+store.sets.Load() != 0 {
				t.Error("backend called on rejected method")
			}
		})
	}
}

func TestUpstreamFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "unavailable",
			err:      status.Error(codes.Unavailable, "connection refused"),
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"error":"store unavailable"}`,
		},
		{
			name:     "deadline",
			err:      status.Error(codes.DeadlineExceeded, "context deadline exceeded"),
			wantCode: http.StatusGatewayTimeout,
			wantBody: `{"error":"store request timed out"}`,
		},
		{
			name:     "internal",
			err:      status.Error(codes.Internal, "failed to set key"),
			wantCode: http.StatusBadGateway,
			wantBody: `{"error":"store request failed"}`,
		},
		{
			name:     "non-status error",
			err:      context.Canceled,
			wantCode: http.StatusBadGateway,
			wantBody: `{"error":"store request failed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.err = tt.err
			h := newTestHandler(store)

			rec := do(t, h, http.MethodGet, "/get?key=foo", "")
			assertResponse(t, rec, tt.wantCode, tt.wantBody)

			rec = do(t, h, http.MethodPost, "/set", `{"key":"bar","value":"baz"}`)
			assertResponse(t, rec, tt.wantCode, tt.wantBody)
		})
	}
}

func TestUpstreamContext(t *testing.T) {
	t.Run("deadline applied", func(t *testing.T) {
		store := newFakeStore()
		do(t, newTestHandler(store, WithTimeout(time.Minute)), http.MethodGet, "/get?key=foo", "")

		deadline, ok := store.lastCtx.Deadline()
		if !ok {
			t.Fatal("upstream context has no deadline")
		}
		if remaining := time.Until(deadline); remaining <= 0 || remaining > time.Minute {
			t.Errorf("deadline %v out of range", remaining)
		}
	})

	t.Run("zero timeout is unbounded", func(t *testing.T) {
		store := newFakeStore()
		do(t, newTestHandler(store), http.MethodGet, "/get?key=foo", "")

		if _, ok := store.lastCtx.Deadline(); ok {
			t.Error("upstream context has a deadline, want none")
		}
	})

	t.Run("request id forwarded", func(t *testing.T) {
		store := newFakeStore()
		req := httptest.NewRequest(http.MethodGet, "/get?key=foo", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		newTestHandler(store).ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
			t.Errorf("response %s = %q, want req-123", RequestIDHeader, got)
		}
		md, ok := metadata.FromOutgoingContext(store.lastCtx)
		if !ok {
			t.Fatal("no outgoing metadata")
		}
		if got := md.Get(RequestIDMetadataKey); len(got) != 1 || got[0] != "req-123" {
			t.Errorf("metadata %s = %v, want [req-123]", RequestIDMetadataKey, got)
		}
	})

	for name, id := range map[string]string{
		"non-ascii request id":    "café",
		"control byte request id": "req\x01id",
		"oversized request id":    strings.Repeat("r", maxRequestIDLen+1),
	} {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			req := httptest.NewRequest(http.MethodGet, "/get?key=foo", nil)
			req.Header.Set(RequestIDHeader, id)
			rec := httptest.NewRecorder()
			newTestHandler(store).ServeHTTP(rec, req)

			assertResponse(t, rec, http.StatusOK, `{"value":null}`)
			minted := rec.Header().Get(RequestIDHeader)
			if _, err := uuid.Parse(minted); err != nil {
				t.Fatalf("response %s = %q, want a fresh UUID", RequestIDHeader, minted)
			}
			md, _ := metadata.FromOutgoingContext(store.lastCtx)
			if got := md.Get(RequestIDMetadataKey); len(got) != 1 || got[0] != minted {
				t.Errorf("metadata %s = %v, want [%s]", RequestIDMetadataKey, got, minted)
			}
		})
	}
}

func TestConcurrentSetsAllVisible(t *testing.T) {
	const n = 50
	store := newFakeStore()
	h := newTestHandler(store)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := `{"key":"k` + strconv.Itoa(i) + `","value":"v` + strconv.Itoa(i) + `"}`
			if rec := do(t, h, http.MethodPost, "/set", body); rec.Code != http.StatusOK {
				t.Errorf("set %d: status %d", i, rec.Code)
			}
		}()
	}
	wg.Wait()

	for i := range n {
		rec := do(t, h, http.MethodGet, "/get?key=k"+strconv.Itoa(i), "")
		assertResponse(t, rec, http.StatusOK, `{"value":"v`+strconv.Itoa(i)+`"}`)
	}
}

// fakeHealth answers Check only; the embedded nil interface covers the rest.
type fakeHealth struct {
	grpc_health_v1.HealthClient
	status grpc_health_v1.HealthCheckResponse_ServingStatus
	err    error
}

func (f fakeHealth) Check(context.Context, *grpc_health_v1.HealthCheckRequest, ...grpc.CallOption) (*grpc_health_v1.HealthCheckResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &grpc_health_v1.HealthCheckResponse{Status: f.status}, nil
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name     string
		health   grpc_health_v1.HealthClient
		wantCode int
		wantBody string
	}{
		{name: "no upstream check", health: nil, wantCode: http.StatusOK, wantBody: `{"status":"ok"}`},
		{name: "serving", health: fakeHealth{status: grpc_health_v1.HealthCheckResponse_SERVING}, wantCode: http.StatusOK, wantBody: `{"status":"ok"}`},
		{name: "not serving", health: fakeHealth{status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, wantCode: http.StatusServiceUnavailable, wantBody: `{"status":"unavailable"}`},
		{name: "unreachable", health: fakeHealth{err: status.Error(codes.Unavailable, "down")}, wantCode: http.StatusServiceUnavailable, wantBody: `{"status":"unavailable"}`},
		{name: "no health service", health: fakeHealth{err: status.Error(codes.Unimplemented, "unknown service")}, wantCode: http.StatusOK, wantBody: `{"status":"ok"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.health != nil {
				opts = append(opts, WithHealth(tt.health))
			}
			rec := do(t, newTestHandler(newFakeStore(), opts...), http.MethodGet, "/healthz", "")
			assertResponse(t, rec, tt.wantCode, tt.wantBody)
		})
	}
}
