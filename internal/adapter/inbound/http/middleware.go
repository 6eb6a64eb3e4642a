package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/routewarden/routewarden/internal/ctxkey"
	"github.com/routewarden/routewarden/internal/domain/auth"
)

// RequestIDMiddleware extracts or generates a request ID and enriches the
// logger. The ID is stored in context under ctxkey.RequestIDKey; an
// enriched logger with the request_id field under ctxkey.LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enriched := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, requestID)
			ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, enriched)

			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RequestIDFromContext retrieves the request ID, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxkey.RequestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// APIKeyAuthMiddleware authenticates requests against the keyring using a
// Bearer token. An empty keyring disables authentication entirely, which is
// the development default. On success the caller name is stored under
// ctxkey.CallerKey.
func APIKeyAuthMiddleware(keyring *auth.Keyring, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyring == nil || keyring.Empty() {
				next.ServeHTTP(w, r)
				return
			}

			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing API key", http.StatusUnauthorized)
				return
			}

			caller, err := keyring.Verify(raw)
			if err != nil {
				logger.Warn("API key rejected", "remote", r.RemoteAddr)
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxkey.CallerKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RealIPMiddleware extracts the client's real IP address. It checks
// X-Forwarded-For and X-Real-IP (for reverse proxy deployments), falling
// back to r.RemoteAddr. Only the first X-Forwarded-For entry is trusted.
// The IP is stored under ctxkey.IPAddressKey.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), ctxkey.IPAddressKey{}, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MetricsMiddleware records request duration and count. The /metrics and
// /health endpoints themselves are excluded.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			metrics.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
			metrics.RequestsTotal.WithLabelValues(r.Method, statusToLabel(wrapped.status)).Inc()
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
