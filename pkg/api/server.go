// Package api serves the drsplan HTTP API.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/drsolutions/drsplan/pkg/auth"
	"github.com/drsolutions/drsplan/pkg/config"
	"github.com/drsolutions/drsplan/pkg/logging"
	"github.com/drsolutions/drsplan/pkg/metrics"
	"github.com/drsolutions/drsplan/pkg/middleware"
	"github.com/drsolutions/drsplan/pkg/services"
)

// Dependencies are the services the API is built on
type Dependencies struct {
	Accounts     *services.AccountService
	Applications *services.ApplicationService
	Executions   *services.ExecutionService
	Results      *services.ResultService

	// Tokens enables bearer authentication; nil leaves the API open
	Tokens auth.TokenValidator

	Logger logging.Logger

	// Metrics is exposed on /metrics when set
	Metrics *metrics.Collector
}

// Server represents the HTTP API server
type Server struct {
	config *config.Config
	router *mux.Router
	server *http.Server

	accounts     *services.AccountService
	applications *services.ApplicationService
	executions   *services.ExecutionService
	results      *services.ResultService
	streams      *resultStreams

	tokens  auth.TokenValidator
	logger  logging.Logger
	metrics *metrics.Collector
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	s := &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		accounts:     deps.Accounts,
		applications: deps.Applications,
		executions:   deps.Executions,
		results:      deps.Results,
		tokens:       deps.Tokens,
		logger:       logger,
		metrics:      deps.Metrics,
	}
	s.streams = newResultStreams(deps.Results, services.WatchOptions{
		PollInterval: cfg.Results.PollInterval.Std(),
		Timeout:      cfg.Results.WatchTimeout.Std(),
	}, cfg.Results.MaxStreams, logger, deps.Metrics)

	s.setupRoutes()
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting HTTP server", logging.F("addr", addr), logging.F("tls", s.config.Server.TLS.Enabled))

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	// If the server was shut down gracefully, this error is expected
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes result streams and shuts the HTTP server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.streams.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// setupRoutes mounts the API at the root and, when configured, under the base path
func (s *Server) setupRoutes() {
	public := []string{"/health", "/metrics"}
	if base := s.config.Server.BasePath; base != "" {
		s.mount(s.router.PathPrefix(base).Subrouter())
		public = append(public, base+"/health", base+"/metrics")
	}
	s.mount(s.router)

	s.router.Use(middleware.Observe(s.logger, s.metrics))
	s.router.Use(middleware.CORS)
	if s.tokens != nil {
		s.router.Use(middleware.NewAuthMiddleware(s.tokens, public...).Authenticate)
	}
}

func (s *Server) mount(r *mux.Router) {
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/accounts", s.handlePutAccount).Methods(http.MethodPut)
	r.HandleFunc("/accounts", s.handleDeleteAccount).Methods(http.MethodDelete)

	r.HandleFunc("/applications", s.handleListApplications).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/applications", s.handlePutApplication).Methods(http.MethodPut)
	r.HandleFunc("/applications", s.handleDeleteApplication).Methods(http.MethodDelete)
	r.HandleFunc("/applications/execute", s.handleExecute).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/results", s.handleListResults).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/result", s.handleGetResult).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/result/stream", s.streams).Methods(http.MethodGet, http.MethodOptions)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}
