package api

import (
	"errors"
	"net/http"

	"github.com/opsforge/gatehouse/pkg/creds"
	"github.com/opsforge/gatehouse/pkg/session"
)

// CookieName carries the session token to the browser and on to the
// downstream services.
const CookieName = "auth_token"

// loginShow handles GET /login
func (s *Server) loginShow(w http.ResponseWriter, r *http.Request) {
	s.renderLogin(w, http.StatusOK, "")
}

// loginPost handles POST /login: verify credentials, issue a token, store
// the session, and hand the token to the browser as an HTTP-only cookie.
func (s *Server) loginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderLogin(w, http.StatusBadRequest, "Invalid form submission")
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	identity, err := s.creds.Verify(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, creds.ErrInvalidCredentials) {
			// Same message whether the user exists or not.
			s.metrics.LoginsTotal.WithLabelValues("invalid").Inc()
			s.renderLogin(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		s.metrics.LoginsTotal.WithLabelValues("error").Inc()
		s.metrics.StoreErrorsTotal.WithLabelValues("creds", "verify").Inc()
		s.logger.WithError(err).Error("credential lookup failed")
		s.renderLogin(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}

	token, err := session.NewToken()
	if err != nil {
		s.metrics.LoginsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Error("token generation failed")
		s.renderLogin(w, http.StatusInternalServerError, "Service temporarily unavailable")
		return
	}

	// A token must never leave this handler without a stored session
	// behind it; an unstored token would be permanently unvalidatable.
	record := session.Identity{Name: identity.Username, Role: identity.Role}
	if err := s.sessions.Put(r.Context(), token, record, s.sessionTTL); err != nil {
		s.metrics.LoginsTotal.WithLabelValues("error").Inc()
		s.metrics.StoreErrorsTotal.WithLabelValues("session", "put").Inc()
		s.logger.WithError(err).Error("session write failed, refusing login")
		s.renderLogin(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	s.metrics.LoginsTotal.WithLabelValues("ok").Inc()
	s.logger.WithField("username", identity.Username).Info("login succeeded")

	http.Redirect(w, r, s.crmURL+"/dashboard", http.StatusSeeOther)
}

// registerShow handles GET /register
func (s *Server) registerShow(w http.ResponseWriter, r *http.Request) {
	s.renderRegister(w, http.StatusOK, "")
}

// registerPost handles POST /register
func (s *Server) registerPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderRegister(w, http.StatusBadRequest, "Invalid form submission")
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		s.renderRegister(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if err := s.creds.Register(r.Context(), username, password); err != nil {
		if errors.Is(err, creds.ErrUsernameTaken) {
			s.renderRegister(w, http.StatusConflict, "Username already exists.")
			return
		}
		s.metrics.StoreErrorsTotal.WithLabelValues("creds", "register").Inc()
		s.logger.WithError(err).Error("account creation failed")
		s.renderRegister(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}

	s.logger.WithField("username", username).Info("account created")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) renderLogin(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := loginTemplate.Execute(w, pageData{Message: message}); err != nil {
		s.logger.WithError(err).Error("login template render failed")
	}
}

func (s *Server) renderRegister(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := registerTemplate.Execute(w, pageData{Message: message}); err != nil {
		s.logger.WithError(err).Error("register template render failed")
	}
}
