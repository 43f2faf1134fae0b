// Package crm implements the downstream CRM service. It holds no
// authentication state of its own: every protected request is vouched for
// by the gatehouse authority through the validation client, and any
// ambiguity, including the authority being unreachable, denies the
// request.
package crm

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsforge/gatehouse/pkg/authclient"
	"github.com/opsforge/gatehouse/pkg/httputil"
	"github.com/opsforge/gatehouse/pkg/observability"
	"github.com/opsforge/gatehouse/pkg/orders"
)

// Server is the CRM HTTP server.
type Server struct {
	orders  orders.Store
	auth    *authclient.Client
	router  *mux.Router
	metrics *observability.Metrics
	logger  *observability.Logger
	health  *observability.HealthChecker
}

// Options configures a Server.
type Options struct {
	Orders   orders.Store
	Auth     *authclient.Client
	Metrics  *observability.Metrics
	Logger   *observability.Logger
	Health   *observability.HealthChecker
	Registry *prometheus.Registry

	// LoginURL is where denied browser requests are redirected.
	LoginURL string
}

// NewServer creates the CRM server and wires all routes.
func NewServer(opts Options) *Server {
	s := &Server{
		orders:  opts.Orders,
		auth:    opts.Auth,
		router:  mux.NewRouter(),
		metrics: opts.Metrics,
		logger:  opts.Logger,
		health:  opts.Health,
	}

	browserAuth := opts.Auth.RequireAuthRedirect(opts.LoginURL)

	s.router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	}).Methods("GET")
	s.router.Handle("/dashboard", browserAuth(http.HandlerFunc(s.dashboard))).Methods("GET")

	s.router.Handle("/api/orders", opts.Auth.RequireAuth(http.HandlerFunc(s.createOrder))).Methods("POST")
	s.router.Handle("/api/orders", opts.Auth.RequireAuth(http.HandlerFunc(s.listOrders))).Methods("GET")
	s.router.Handle("/api/orders/{id}", opts.Auth.RequireAuth(http.HandlerFunc(s.updateOrder))).Methods("PUT")
	s.router.Handle("/api/orders/{id}", opts.Auth.RequireAuth(http.HandlerFunc(s.deleteOrder))).Methods("DELETE")

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
