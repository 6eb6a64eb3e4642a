package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/routewarden/routewarden/internal/adapter/outbound/memory"
	"github.com/routewarden/routewarden/internal/domain/auth"
	"github.com/routewarden/routewarden/internal/domain/guard"
	"github.com/routewarden/routewarden/internal/domain/intent"
	"github.com/routewarden/routewarden/internal/domain/role"
	"github.com/routewarden/routewarden/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGuard(t *testing.T) *service.GuardService {
	t.Helper()
	resolver := role.NewResolver(map[guard.Role][]guard.Permission{
		"admin": {"manage:all"},
		"user":  {"view:content"},
	})
	store := memory.NewPolicyStore([]guard.RoutePolicy{
		{Pattern: "/admin/*", RequiredRoles: []guard.Role{"admin"}, RequiresAuth: true},
	})
	svc, err := service.NewGuardService(context.Background(), store, resolver,
		intent.NewTracker("/signin", "return_to", "/"), service.Settings{}, quietLogger())
	if err != nil {
		t.Fatalf("NewGuardService error: %v", err)
	}
	return svc
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDecideEndpoint(t *testing.T) {
	srv := NewServer(newTestGuard(t), WithLogger(quietLogger()))
	handler := srv.Handler()

	rec := postJSON(t, handler, "/v1/decide", decideRequest{
		SubjectID:     "u1",
		Roles:         []string{"user"},
		Authenticated: true,
		Path:          "/admin/users",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp decideResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Allowed || resp.Reason != "missing_role" || resp.RedirectTo != "/" {
		t.Fatalf("response = %+v, want missing_role redirect", resp)
	}
}

func TestDecideEndpointRejectsMalformedInput(t *testing.T) {
	srv := NewServer(newTestGuard(t), WithLogger(quietLogger()))
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/decide", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d, want 400", rec.Code)
	}

	rec = postJSON(t, handler, "/v1/decide", decideRequest{Path: "relative/path"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("relative path: status = %d, want 400", rec.Code)
	}
}

func TestDecideEndpointUnknownRoleIs500(t *testing.T) {
	srv := NewServer(newTestGuard(t), WithLogger(quietLogger()))
	handler := srv.Handler()

	rec := postJSON(t, handler, "/v1/decide", decideRequest{
		SubjectID:     "u1",
		Roles:         []string{"no-such-role"},
		Authenticated: true,
		Path:          "/admin/users",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for unknown role", rec.Code)
	}
}

func TestPoliciesEndpoint(t *testing.T) {
	srv := NewServer(newTestGuard(t), WithLogger(quietLogger()))
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Policies []policyResponse `json:"policies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Policies) != 1 || resp.Policies[0].Pattern != "/admin/*" {
		t.Fatalf("policies = %+v", resp.Policies)
	}
}

func TestReloadEndpoint(t *testing.T) {
	srv := NewServer(newTestGuard(t), WithLogger(quietLogger()))
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/reload", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestAPIKeyAuth(t *testing.T) {
	keyring, err := auth.NewKeyring([]auth.APIKey{
		{Name: "ci", Hash: auth.HashKey("secret-key")},
	})
	if err != nil {
		t.Fatalf("NewKeyring error: %v", err)
	}
	srv := NewServer(newTestGuard(t), WithLogger(quietLogger()), WithKeyring(keyring))
	handler := srv.Handler()

	// Missing key on a protected endpoint.
	req := httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", rec.Code)
	}

	// Wrong key.
	req = httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", rec.Code)
	}

	// Valid key.
	req = httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: status = %d, want 200", rec.Code)
	}

	// Health stays open even with a keyring configured.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status = %d, want 200", rec.Code)
	}
}

func TestRecentDecisionsEndpoint(t *testing.T) {
	auditor := memory.NewAuditStore(10)
	resolver := role.NewResolver(map[guard.Role][]guard.Permission{
		"user": {"view:content"},
	})
	svc, err := service.NewGuardService(context.Background(),
		memory.NewPolicyStore(nil), resolver,
		intent.NewTracker("", "", ""), service.Settings{}, quietLogger(),
		service.WithAuditStore(auditor))
	if err != nil {
		t.Fatalf("NewGuardService error: %v", err)
	}
	srv := NewServer(svc, WithLogger(quietLogger()), WithAuditStore(auditor))
	handler := srv.Handler()

	rec := postJSON(t, handler, "/v1/decide", decideRequest{Path: "/anything"})
	if rec.Code != http.StatusOK {
		t.Fatalf("decide status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/decisions?limit=5", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("decisions status = %d", rec2.Code)
	}
	if !strings.Contains(rec2.Body.String(), "/anything") {
		t.Fatalf("decisions body = %s, want recorded path", rec2.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(newTestGuard(t), WithLogger(quietLogger()), WithVersion("1.2.3"))
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "1.2.3") {
		t.Fatalf("health body = %s, want version", rec.Body.String())
	}
}

func TestRequestIDPropagation(t *testing.T) {
	srv := NewServer(newTestGuard(t), WithLogger(quietLogger()))
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-abc" {
		t.Fatalf("X-Request-ID = %q, want echoed back", got)
	}

	// A generated ID appears when the caller sends none.
	req = httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID missing on response")
	}
}
