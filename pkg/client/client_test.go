package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/decide" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req DecideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Path != "/admin/users" || !req.Authenticated {
			t.Errorf("request = %+v", req)
		}

		_ = json.NewEncoder(w).Encode(Decision{
			Allowed:    false,
			RedirectTo: "/",
			Reason:     "missing_role",
			Pattern:    "/admin/*",
		})
	}))
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithAPIKey("test-key"), WithLogger(quietLogger()))
	d, err := c.Decide(context.Background(), DecideRequest{
		SubjectID:     "u1",
		Roles:         []string{"user"},
		Authenticated: true,
		Path:          "/admin/users",
	})
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if d.Allowed || d.Reason != "missing_role" || d.RedirectTo != "/" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Decision{Allowed: true, Reason: "none"})
	}))
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithLogger(quietLogger()))
	ok, err := c.Check(context.Background(), DecideRequest{Path: "/public"})
	if err != nil || !ok {
		t.Fatalf("Check = (%v, %v), want allow", ok, err)
	}
}

func TestDecideFailOpenOnUnreachableServer(t *testing.T) {
	c := NewClient(WithServerAddr("http://127.0.0.1:1"), WithLogger(quietLogger()))
	d, err := c.Decide(context.Background(), DecideRequest{Path: "/admin"})
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("decision = %+v, want fail-open allow", d)
	}
}

func TestDecideFailClosedOnUnreachableServer(t *testing.T) {
	c := NewClient(
		WithServerAddr("http://127.0.0.1:1"),
		WithFailMode("closed"),
		WithLogger(quietLogger()),
	)
	_, err := c.Decide(context.Background(), DecideRequest{Path: "/admin"})
	if !errors.Is(err, ErrServerUnreachable) {
		t.Fatalf("error = %v, want ErrServerUnreachable", err)
	}
}

func TestDecideHTTPErrorIsNotConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithLogger(quietLogger()))
	_, err := c.Decide(context.Background(), DecideRequest{Path: "/admin"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401 APIError", err)
	}
}

func TestDecideRetriesServerErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(Decision{Allowed: true, Reason: "none"})
	}))
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithLogger(quietLogger()))
	d, err := c.Decide(context.Background(), DecideRequest{Path: "/reports"})
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if !d.Allowed || attempts != 3 {
		t.Fatalf("decision = %+v after %d attempts", d, attempts)
	}
}

func TestDecideRetriesExhausted(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithRetries(1), WithLogger(quietLogger()))
	_, err := c.Decide(context.Background(), DecideRequest{Path: "/reports"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want 500 APIError", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestPoliciesAndReload(t *testing.T) {
	var reloaded bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/policies":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"policies": []Policy{{Pattern: "/admin/*", RequiredRoles: []string{"admin"}, RequiresAuth: true}},
			})
		case "/v1/reload":
			reloaded = true
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "reloaded"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(WithServerAddr(srv.URL), WithLogger(quietLogger()))

	policies, err := c.Policies(context.Background())
	if err != nil {
		t.Fatalf("Policies error: %v", err)
	}
	if len(policies) != 1 || policies[0].Pattern != "/admin/*" {
		t.Fatalf("policies = %+v", policies)
	}

	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	if !reloaded {
		t.Fatal("reload endpoint not called")
	}
}
