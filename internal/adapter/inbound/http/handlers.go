package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/routewarden/routewarden/internal/domain/guard"
)

// decideRequest is the POST /v1/decide body.
type decideRequest struct {
	SubjectID     string   `json:"subject_id"`
	Roles         []string `json:"roles"`
	Authenticated bool     `json:"authenticated"`
	Path          string   `json:"path"`
}

// decideResponse mirrors guard.Decision on the wire.
type decideResponse struct {
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirect_to,omitempty"`
	Reason     string `json:"reason"`
	Pattern    string `json:"pattern,omitempty"`
}

// policyResponse is one entry of the GET /v1/policies body.
type policyResponse struct {
	Pattern       string   `json:"pattern"`
	RequiredRoles []string `json:"required_roles"`
	RequiresAuth  bool     `json:"requires_auth"`
	Fallback      string   `json:"fallback,omitempty"`
	Condition     string   `json:"condition,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleDecide evaluates one identity/path pair against the policy table.
// Malformed input is a 400; an identity carrying an unknown role is the
// only 500, because it signals a misconfigured caller, not a denial.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "guard.decide")
	defer span.End()

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if !strings.HasPrefix(req.Path, "/") {
		writeError(w, http.StatusBadRequest, "path must be absolute")
		return
	}

	identity := guard.Identity{
		SubjectID:     req.SubjectID,
		Authenticated: req.Authenticated,
		Roles:         make([]guard.Role, len(req.Roles)),
	}
	for i, role := range req.Roles {
		identity.Roles[i] = guard.Role(role)
	}

	start := time.Now()
	decision, err := s.guard.Decide(ctx, identity, req.Path)
	if err != nil {
		span.RecordError(err)
		LoggerFromContext(ctx).Error("decision failed", "path", req.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.DecisionDuration.Observe(time.Since(start).Seconds())
	s.metrics.DecisionsTotal.WithLabelValues(string(decision.Reason)).Inc()
	span.SetAttributes(
		attribute.String("guard.path", req.Path),
		attribute.Bool("guard.allowed", decision.Allowed),
		attribute.String("guard.reason", string(decision.Reason)),
	)

	writeJSON(w, http.StatusOK, decideResponse{
		Allowed:    decision.Allowed,
		RedirectTo: decision.RedirectTo,
		Reason:     string(decision.Reason),
		Pattern:    decision.Pattern,
	})
}

// handlePolicies lists the active policy table.
func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	policies := s.guard.Policies()
	out := make([]policyResponse, len(policies))
	for i, p := range policies {
		roles := make([]string, len(p.RequiredRoles))
		for j, role := range p.RequiredRoles {
			roles[j] = string(role)
		}
		out[i] = policyResponse{
			Pattern:       p.Pattern,
			RequiredRoles: roles,
			RequiresAuth:  p.RequiresAuth,
			Fallback:      p.Fallback,
			Condition:     p.Condition,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": out})
}

// handleReload rebuilds the policy table from the store. A table that fails
// to compile leaves the previous table active and reports the error.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.Reload(r.Context()); err != nil {
		LoggerFromContext(r.Context()).Error("policy reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.PolicyReloads.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "reloaded",
		"policies": s.guard.PolicyCount(),
	})
}

// handleRecentDecisions returns the latest audit records, newest first.
func (s *Server) handleRecentDecisions(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil {
		writeError(w, http.StatusNotFound, "audit store not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
		limit = n
	}

	records, err := s.auditor.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": records})
}
