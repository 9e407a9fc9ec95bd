package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/auth"
	"github.com/jimf8th/my-skool-club-sub000/pkg/checkouts"
	"github.com/jimf8th/my-skool-club-sub000/pkg/httputil"
	"github.com/jimf8th/my-skool-club-sub000/pkg/invoices"
	"github.com/jimf8th/my-skool-club-sub000/pkg/middleware"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/schools"
)

// Services are the core operations the API exposes
type Services struct {
	Auth      *auth.Manager
	Schools   *schools.Service
	Grants    *rbac.GrantService
	Invoices  *invoices.Service
	Checkouts *checkouts.Service
}

// Options tune the transport; zero values disable the feature
type Options struct {
	LoginLimiter  middleware.Limiter
	CallerLimiter middleware.Limiter
	MaxBodyBytes  int64
}

// Server represents our API server
type Server struct {
	router *mux.Router
	svc    Services
}

// NewServer creates a new API server with every route registered under /v1
func NewServer(svc Services, opts Options) *Server {
	s := &Server{
		router: mux.NewRouter(),
		svc:    svc,
	}
	s.setupRoutes(opts)
	return s
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	v1 := s.router.PathPrefix("/v1").Subrouter()
	if opts.MaxBodyBytes > 0 {
		v1.Use(httputil.MaxBytesMiddleware(opts.MaxBodyBytes))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteAppError(w, apperr.NotFound("no route for %s %s", r.Method, r.URL.Path))
	})

	authHandlers := NewAuthHandlers(s.svc.Auth)

	// Unauthenticated
	var login http.Handler = http.HandlerFunc(authHandlers.login)
	if opts.LoginLimiter != nil {
		login = middleware.NewRateLimit(opts.LoginLimiter, "login").Handler(login)
	}
	v1.Handle("/auth/login", login).Methods("POST")

	// Everything else requires a bearer token
	protected := v1.NewRoute().Subrouter()
	protected.Use(middleware.NewAuthenticator(s.svc.Auth, false).Handler)
	if opts.CallerLimiter != nil {
		protected.Use(middleware.NewRateLimit(opts.CallerLimiter, "api").Handler)
	}

	authHandlers.RegisterRoutes(protected)
	NewSchoolHandlers(s.svc.Schools, s.svc.Grants).RegisterRoutes(protected)
	NewInvoiceHandlers(s.svc.Invoices).RegisterRoutes(protected)
	NewCheckoutHandlers(s.svc.Checkouts).RegisterRoutes(protected)
}

// writeError writes err with its kind's status and logs internal failures
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
	}
	httputil.WriteAppError(w, err)
}
