package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	applog "fintrack/internal/log"
)

// handleHealth reports liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks the store and reports the middleware counters.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.deps.Store == nil {
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else if err := s.deps.Store.Ping(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		checks["store"] = "failed"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	limits := s.limiter.GetMetrics()
	checks["rate_limiter"] = map[string]any{
		"active_clients": limits.ClientCount,
		"blocked":        limits.Blocked,
	}
	sec := s.detector.GetMetrics()
	checks["security"] = map[string]any{
		"suspicious_requests": sec.SuspiciousRequests,
		"blocked_requests":    sec.BlockedRequests,
	}
	traffic := s.tracer.GetMetrics()
	checks["requests"] = map[string]any{
		"total":           traffic.TotalRequests,
		"server_errors":   traffic.ServerErrors,
		"avg_response_us": traffic.AverageResponseTime,
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleRunRecurrence runs one recurrence pass on behalf of an external
// scheduler. The route does not exist unless a trigger token is configured.
func (s *Server) handleRunRecurrence(w http.ResponseWriter, r *http.Request) {
	if s.opts.RecurrenceToken == "" || s.deps.Recurrence == nil {
		NotFoundError().Write(w)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		token = strings.TrimSpace(r.Header.Get("X-Trigger-Token"))
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.RecurrenceToken)) != 1 {
		UnauthorizedError("Unauthorized").Write(w)
		return
	}

	report, err := s.deps.Recurrence.RunPass(r.Context(), s.now())
	if err != nil {
		s.writeError(w, r, applog.OpRunPass, err)
		return
	}
	NewJSONResponse().Body(report).Write(w)
}

// handleLive upgrades to a websocket streaming the owner's transaction
// events. Browsers cannot set headers on websocket requests, so the token
// may also travel as ?token=.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Live == nil {
		NotFoundError().Write(w)
		return
	}
	token, err := bearerToken(r)
	if err != nil {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		UnauthorizedError("Unauthorized").Write(w)
		return
	}
	ownerID, err := s.deps.Auth.Authenticate(token)
	if err != nil {
		UnauthorizedError("Invalid token").Write(w)
		return
	}
	s.deps.Live.ServeWS(w, r, ownerID)
}
