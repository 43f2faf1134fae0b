package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsforge/gatehouse/pkg/creds"
	"github.com/opsforge/gatehouse/pkg/httputil"
	"github.com/opsforge/gatehouse/pkg/observability"
	"github.com/opsforge/gatehouse/pkg/session"
)

// Server is the token authority HTTP server.
type Server struct {
	creds        *creds.Store
	sessions     session.Store
	router       *mux.Router
	metrics      *observability.Metrics
	logger       *observability.Logger
	health       *observability.HealthChecker
	sessionTTL   time.Duration
	crmURL       string
	secureCookie bool
}

// Options configures a Server.
type Options struct {
	Creds    *creds.Store
	Sessions session.Store
	Metrics  *observability.Metrics
	Logger   *observability.Logger
	Health   *observability.HealthChecker
	Registry *prometheus.Registry

	// SessionTTL is the absolute lifetime of issued sessions.
	SessionTTL time.Duration
	// CRMURL is the protected area a successful login redirects to.
	CRMURL string
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
}

// NewServer creates the authority server and wires all routes.
func NewServer(opts Options) *Server {
	s := &Server{
		creds:      opts.Creds,
		sessions:   opts.Sessions,
		router:     mux.NewRouter(),
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		health:     opts.Health,
		sessionTTL:   opts.SessionTTL,
		crmURL:       opts.CRMURL,
		secureCookie: opts.SecureCookie,
	}

	s.router.HandleFunc("/login", s.loginShow).Methods("GET")
	s.router.HandleFunc("/login", s.loginPost).Methods("POST")
	s.router.HandleFunc("/register", s.registerShow).Methods("GET")
	s.router.HandleFunc("/register", s.registerPost).Methods("POST")
	s.router.HandleFunc("/api/validate", s.validate).Methods("GET")

	if opts.Registry != nil {
		s.router.Handle("/metrics", observability.Handler(opts.Registry)).Methods("GET")
	}
	if s.health != nil {
		s.router.HandleFunc("/healthz", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.health.Readiness).Methods("GET")
	}

	return s
}

// Handler returns the server wrapped in the standard middleware chain.
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
		s.metrics.HTTPMiddleware,
		httputil.MaxBytesMiddleware(1<<20),
	)(s.router)
}

// ServeHTTP implements http.Handler without middleware. Used by tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
