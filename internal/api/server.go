package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/claimcare/verdict/internal/approval"
	"github.com/claimcare/verdict/internal/decision"
	"github.com/claimcare/verdict/internal/domain"
	"github.com/claimcare/verdict/internal/rules"
	"github.com/claimcare/verdict/internal/sla"
	"github.com/claimcare/verdict/internal/velocity"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, pipeline *decision.Pipeline, approvals *approval.Manager, monitor *sla.Monitor, vel *velocity.Service, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, pipeline, approvals, monitor, vel, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Claim lifecycle
		r.Post("/claims", handler.CreateClaim)
		r.Get("/claims", handler.ListClaims)
		r.Get("/claims/{id}", handler.GetClaim)
		r.Post("/claims/{id}/documents", handler.AddDocument)
		r.Post("/claims/{id}/stage", handler.AdvanceStage)
		r.Post("/claims/{id}/evaluate", handler.EvaluateClaim)
		r.Get("/claims/{id}/sla", handler.GetClaimSLA)

		// Approval workflow
		r.Post("/claims/{id}/approvals", handler.AddApproval)
		r.Get("/claims/{id}/approvals", handler.GetApprovals)
		r.Post("/claims/{id}/escalate", handler.Escalate)

		// Evaluation retrieval
		r.Get("/evaluations/{id}", handler.GetEvaluation)

		// Regulatory and SLA reporting
		r.Get("/reports/ojk", handler.OJKReport)
		r.Get("/reports/sla-metrics", handler.SLAMetrics)
		r.Get("/reports/sla-breaches", handler.SLABreaches)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
