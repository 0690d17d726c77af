package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coursecast/internal/api"
	"coursecast/internal/auth"
	"coursecast/internal/models"
	"coursecast/internal/observability/logging"
	"coursecast/internal/storage"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *auth.TokenManager, storage.Repository) {
	t.Helper()
	store := storage.NewMemoryRepository()
	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	handler := api.NewHandler(store, tokens, nil, nil, nil)
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, tokens, store
}

func issueToken(t *testing.T, tokens *auth.TokenManager, store storage.Repository, role models.Role) string {
	t.Helper()
	user, err := store.CreateUser(context.Background(), storage.CreateUserParams{
		FirstName:    "Test",
		LastName:     "User",
		Email:        string(role) + "@example.com",
		Password:     "Sup3rSecret",
		DateOfBirth:  time.Date(1995, 4, 2, 0, 0, 0, 0, time.UTC),
		MobileNumber: "0712345678",
		Role:         role,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, err := tokens.Issue(user.ID, user.Role)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func TestServerRequiresHandler(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatal("expected an error for a nil handler")
	}
}

func TestAuthMiddlewareGatesAPIRoutes(t *testing.T) {
	srv, tokens, store := newTestServer(t, Config{})
	token := issueToken(t, tokens, store, models.RoleInstructor)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"nobody@example.com","password":"Sup3rSecret"}`))
	recorder = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(recorder, req)
	if recorder.Code == http.StatusUnauthorized {
		t.Fatalf("auth endpoints must not require a token, got %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	recorder = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", recorder.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 with a token, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{
		RateLimit: RateLimitConfig{RegisterLimit: 2, Window: time.Minute},
	})

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{}"))
		req.RemoteAddr = "10.0.0.9:52000"
		last = httptest.NewRecorder()
		srv.httpServer.Handler.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the third register, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{}"))
	req.RemoteAddr = "10.0.0.10:52000"
	recorder := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(recorder, req)
	if recorder.Code == http.StatusTooManyRequests {
		t.Fatal("a different client must not share the bucket")
	}
}

func TestRequestIDMiddlewareAttachesContextLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctxLogger := logging.LoggerFromContext(r.Context()); ctxLogger != nil {
			ctxLogger.Info("handled")
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	recorder := httptest.NewRecorder()
	requestIDMiddleware(logger, next).ServeHTTP(recorder, req)

	if !strings.Contains(logs.String(), `"request_id":"req-42"`) {
		t.Fatalf("expected the context logger to carry the request id, got %s", logs.String())
	}
}

func TestRequestIDMiddlewareEchoesHeader(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(recorder, req)
	if recorder.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a generated request id")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	recorder = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(recorder, req)
	if got := recorder.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("expected the caller's request id back, got %q", got)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.0.2.7:1234", nil, "192.0.2.7"},
		{"forwarded for", "192.0.2.7:1234",
			map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"real ip", "192.0.2.7:1234",
			map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"no port", "192.0.2.7", nil, "192.0.2.7"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			if got := extractClientIP(req); got != tc.want {
				t.Fatalf("extractClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
