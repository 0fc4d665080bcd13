package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"hivemind-hq/scribe/pkg/approvals"
	"hivemind-hq/scribe/pkg/config"
	"hivemind-hq/scribe/pkg/routing"
	"hivemind-hq/scribe/pkg/sharing"
	"hivemind-hq/scribe/pkg/spaces"
	"hivemind-hq/scribe/pkg/spaces/catalog"
	"hivemind-hq/scribe/pkg/telemetry/logging"
	"hivemind-hq/scribe/pkg/telemetry/metrics"
)

// shutdownTimeout bounds graceful drain on Shutdown.
const shutdownTimeout = 15 * time.Second

// Params collects the server's dependencies.
type Params struct {
	Config   config.ServerConfig
	Registry *spaces.Registry
	Engine   *routing.Engine
	Queue    *approvals.Queue
	Catalog  *catalog.Catalog
	Store    sharing.Store
	Logger   *logging.Logger

	// Metrics, when non-nil, is mounted at MetricsPath.
	Metrics     *metrics.Collector
	MetricsPath string
}

// Server is the HTTP front end.
type Server struct {
	httpServer *http.Server
	registry   *spaces.Registry
	engine     *routing.Engine
	queue      *approvals.Queue
	catalog    *catalog.Catalog
	store      sharing.Store
	logger     *logging.Logger

	shutdownOnce sync.Once
}

// New creates a server with its routes wired.
func New(params Params) (*Server, error) {
	if params.Registry == nil || params.Engine == nil || params.Queue == nil ||
		params.Catalog == nil || params.Store == nil {
		return nil, fmt.Errorf("registry, engine, queue, catalog, and store are required")
	}
	if params.Logger == nil {
		logger, err := logging.New(logging.Config{})
		if err != nil {
			return nil, err
		}
		params.Logger = logger
	}

	s := &Server{
		registry: params.Registry,
		engine:   params.Engine,
		queue:    params.Queue,
		catalog:  params.Catalog,
		store:    params.Store,
		logger:   params.Logger.With("component", "server"),
	}

	s.httpServer = &http.Server{
		Addr:           params.Config.ListenAddress,
		Handler:        s.routes(params),
		ReadTimeout:    params.Config.ReadTimeout,
		WriteTimeout:   params.Config.WriteTimeout,
		IdleTimeout:    params.Config.IdleTimeout,
		MaxHeaderBytes: params.Config.MaxHeaderBytes,
	}
	return s, nil
}

// routes builds the router and middleware chain.
func (s *Server) routes(params Params) http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	if len(params.Config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   params.Config.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.handleHealth)

	if params.Metrics != nil {
		path := params.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, params.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/users", s.handleCreateUser)
		r.Get("/users/{userID}", s.handleGetUser)
		r.Get("/users/{userID}/spaces", s.handleListUserSpaces)
		r.Get("/users/{userID}/approvals", s.handleListApprovals)

		r.Get("/templates", s.handleListTemplates)

		r.Post("/spaces", s.handleCreateSpace)
		r.Get("/spaces/lookup", s.handleLookupSpace)
		r.Get("/spaces/{spaceID}", s.handleGetSpace)
		r.Post("/spaces/{spaceID}/join", s.handleJoinSpace)
		r.Post("/spaces/{spaceID}/leave", s.handleLeaveSpace)
		r.Put("/spaces/{spaceID}/policy", s.handleUpdatePolicy)
		r.Get("/spaces/{spaceID}/documents", s.handleListDocuments)

		r.Post("/turns/route", s.handleRouteTurn)

		r.Get("/approvals/{approvalID}", s.handleGetApproval)
		r.Post("/approvals/{approvalID}/resolve", s.handleResolveApproval)
	})

	return r
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the context is cancelled or the listener fails, then
// drains gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests, bounded by shutdownTimeout.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.Info("server shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}
