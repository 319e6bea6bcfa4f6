// Package api assembles the HTTP surface: the auth endpoints, the user
// administration endpoints and the credential/question resource routers,
// each behind the appropriate slice of the authorization middleware chain.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kredensia/kredensia/pkg/credentials"
	"github.com/kredensia/kredensia/pkg/httputil"
	"github.com/kredensia/kredensia/pkg/identity"
	"github.com/kredensia/kredensia/pkg/middleware"
	"github.com/kredensia/kredensia/pkg/policy"
	"github.com/kredensia/kredensia/pkg/questions"
	"github.com/kredensia/kredensia/pkg/token"
)

// maxRequestBody caps JSON request bodies. The largest legitimate payload
// is a user patch, so 1 MiB leaves ample headroom.
const maxRequestBody = 1 << 20

// Server is the assembled API.
type Server struct {
	router       *mux.Router
	users        *identity.Service
	issuer       *token.Issuer
	chain        *middleware.Chain
	credentials  *credentials.Service
	questions    *questions.Service
	log          *logrus.Logger
	corsOrigins  []string
	loginLimiter *middleware.LoginLimiter
}

// Options carries the collaborators a Server needs.
type Options struct {
	Users       *identity.Service
	Issuer      *token.Issuer
	Credentials *credentials.Service
	Questions   *questions.Service
	Log         *logrus.Logger
	CORSOrigins []string
	// LoginLimits bounds attempts on the unauthenticated auth endpoints.
	// Nil uses the defaults.
	LoginLimits *middleware.LoginLimiterConfig
}

// NewServer wires the routes and middleware.
func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		router:       mux.NewRouter(),
		users:        opts.Users,
		issuer:       opts.Issuer,
		chain:        middleware.NewChain(opts.Issuer, opts.Users, log),
		credentials:  opts.Credentials,
		questions:    opts.Questions,
		log:          log,
		corsOrigins:  opts.CORSOrigins,
		loginLimiter: middleware.NewLoginLimiter(opts.LoginLimits),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(s.log),
		httputil.LoggingMiddleware(s.log),
		httputil.CORSMiddleware(s.corsOrigins),
		httputil.MaxBytesMiddleware(maxRequestBody),
	)

	s.router.HandleFunc("/healthz", s.health).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Auth endpoints. Login and register are the only unauthenticated ones
	// and sit behind the per-address attempt limiter.
	api.Handle("/auth/register",
		s.loginLimiter.Handler(http.HandlerFunc(s.register))).Methods("POST")
	api.Handle("/auth/login",
		s.loginLimiter.Handler(http.HandlerFunc(s.login))).Methods("POST")

	session := api.PathPrefix("/auth").Subrouter()
	session.Use(s.chain.Authenticate())
	session.HandleFunc("/logout", s.logout).Methods("POST")
	session.Handle("/me",
		s.chain.RequireActiveUser()(s.chain.RefreshUserData()(http.HandlerFunc(s.me)))).Methods("GET")
	session.Handle("/password",
		s.chain.RequireActiveUser()(http.HandlerFunc(s.changePassword))).Methods("PUT")

	// User administration requires the manage_users permission; hard purge
	// is admin only.
	users := api.PathPrefix("/users").Subrouter()
	users.Use(s.chain.Authenticate(), s.chain.RequireActiveUser(), s.chain.RefreshUserData())
	managed := users.NewRoute().Subrouter()
	managed.Use(s.chain.RequirePermission(policy.PermManageUsers))
	managed.HandleFunc("", s.createUser).Methods("POST")
	managed.HandleFunc("", s.listUsers).Methods("GET")
	managed.HandleFunc("/repair-npk", s.repairNPK).Methods("POST")
	managed.HandleFunc("/{id}", s.getUser).Methods("GET")
	managed.HandleFunc("/{id}", s.updateUser).Methods("PUT")
	managed.HandleFunc("/{id}", s.deleteUser).Methods("DELETE")
	users.Handle("/{id}/purge",
		s.chain.RequireRole(policy.RoleAdmin)(http.HandlerFunc(s.purgeUser))).Methods("DELETE")

	// Credential registry, gated per operation by credential permissions.
	creds := api.PathPrefix("/credentials").Subrouter()
	creds.Use(s.chain.Authenticate(), s.chain.RequireActiveUser(), s.chain.RefreshUserData())
	creds.Handle("",
		s.chain.RequirePermission(policy.PermCreateCredentials)(http.HandlerFunc(s.createCredential))).Methods("POST")
	creds.Handle("",
		s.chain.RequirePermission(policy.PermViewCredentials)(http.HandlerFunc(s.listCredentials))).Methods("GET")
	creds.Handle("/expiring",
		s.chain.RequirePermission(policy.PermViewCredentials)(http.HandlerFunc(s.expiringCredentials))).Methods("GET")
	creds.Handle("/{id}",
		s.chain.RequirePermission(policy.PermViewCredentials)(http.HandlerFunc(s.getCredential))).Methods("GET")
	creds.Handle("/{id}",
		s.chain.RequirePermission(policy.PermEditCredentials)(http.HandlerFunc(s.updateCredential))).Methods("PUT")
	creds.Handle("/{id}/status",
		s.chain.RequirePermission(policy.PermEditCredentials)(http.HandlerFunc(s.setCredentialStatus))).Methods("PUT")
	creds.Handle("/{id}",
		s.chain.RequirePermission(policy.PermDeleteCredentials)(http.HandlerFunc(s.deleteCredential))).Methods("DELETE")

	// Question bank: reads need view_reports, writes need system_settings.
	qs := api.PathPrefix("/questions").Subrouter()
	qs.Use(s.chain.Authenticate(), s.chain.RequireActiveUser(), s.chain.RefreshUserData())
	qs.Handle("",
		s.chain.RequirePermission(policy.PermViewReports)(http.HandlerFunc(s.listQuestions))).Methods("GET")
	qs.Handle("/{id}",
		s.chain.RequirePermission(policy.PermViewReports)(http.HandlerFunc(s.getQuestion))).Methods("GET")
	manageQs := qs.NewRoute().Subrouter()
	manageQs.Use(s.chain.RequirePermission(policy.PermSystemSettings))
	manageQs.HandleFunc("", s.createQuestion).Methods("POST")
	manageQs.HandleFunc("/{id}", s.updateQuestion).Methods("PUT")
	manageQs.HandleFunc("/{id}/active", s.setQuestionActive).Methods("PUT")
	manageQs.HandleFunc("/{id}", s.deleteQuestion).Methods("DELETE")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

// StartBackground launches the server's housekeeping goroutines, currently
// the login limiter's bucket eviction. They stop when the context ends.
func (s *Server) StartBackground(ctx context.Context) {
	s.loginLimiter.StartCleanup(ctx)
}

// ServeHTTP makes the server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
