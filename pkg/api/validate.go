package api

import (
	"errors"
	"net/http"

	"github.com/opsforge/gatehouse/pkg/httputil"
	"github.com/opsforge/gatehouse/pkg/session"
)

// ValidateResponse is the fixed wire schema of /api/validate. Identity
// fields are only present on success; the error shape is identical for
// every client-side failure.
type ValidateResponse struct {
	Status string `json:"status"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
}

var errorResponse = ValidateResponse{Status: "error"}

// validate handles GET /api/validate. The token arrives as the `token`
// query parameter or the auth_token cookie. Validation is read-only: it
// never extends the session, whose TTL runs from issuance.
func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			token = c.Value
		}
	}

	if token == "" {
		s.metrics.ValidationsTotal.WithLabelValues("missing").Inc()
		httputil.WriteJSON(w, http.StatusForbidden, errorResponse)
		return
	}

	// Malformed tokens are rejected without a store round trip, but with
	// the exact same response as a miss.
	if err := session.ValidateTokenFormat(token); err != nil {
		s.metrics.ValidationsTotal.WithLabelValues("invalid").Inc()
		httputil.WriteJSON(w, http.StatusForbidden, errorResponse)
		return
	}

	identity, err := s.sessions.Get(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.metrics.ValidationsTotal.WithLabelValues("invalid").Inc()
			httputil.WriteJSON(w, http.StatusForbidden, errorResponse)
			return
		}
		s.metrics.ValidationsTotal.WithLabelValues("unavailable").Inc()
		s.metrics.StoreErrorsTotal.WithLabelValues("session", "get").Inc()
		s.logger.WithError(err).Error("session lookup failed")
		httputil.WriteJSON(w, http.StatusServiceUnavailable, errorResponse)
		return
	}

	s.metrics.ValidationsTotal.WithLabelValues("ok").Inc()
	httputil.WriteJSON(w, http.StatusOK, ValidateResponse{
		Status: "ok",
		Name:   identity.Name,
		Role:   identity.Role,
	})
}
