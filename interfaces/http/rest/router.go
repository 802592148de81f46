// Package rest wires the HTTP surface of the rule chain service.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rulechain-backend/application/services"
	"rulechain-backend/interfaces/http/rest/handlers"
	"rulechain-backend/interfaces/http/rest/middleware"
	"rulechain-backend/pkg/observability"
)

// Router creates and configures the HTTP router
type Router struct {
	service *services.LinkageService
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	service *services.LinkageService,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Router {
	return &Router{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Metrics(rt.metrics))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health and metrics
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	router.Handle("/metrics", promhttp.HandlerFor(rt.metrics.Registry(), promhttp.HandlerOpts{}))

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CircuitBreaker(middleware.DefaultCircuitBreakerConfig("api"), rt.logger))

		r.Route("/chains", func(r chi.Router) {
			chainHandler := handlers.NewChainHandler(rt.service, rt.logger)
			r.Post("/", chainHandler.CreateChain)
			r.Post("/default", chainHandler.CreateDefault)
			r.Get("/{chainID}", chainHandler.GetChain)
			r.Put("/{chainID}", chainHandler.UpdateChain)
			r.Delete("/{chainID}", chainHandler.DeleteChain)
			r.Post("/{chainID}/root", chainHandler.SetRoot)

			// Metadata and link consistency
			r.Get("/{chainID}/metadata", chainHandler.GetMetadata)
			r.Post("/{chainID}/metadata", chainHandler.SaveMetadata)
			r.Get("/{chainID}/output-labels", chainHandler.GetOutputLabels)
			r.Get("/{chainID}/usages", chainHandler.GetUsages)

			// Edge device management
			r.Post("/{chainID}/edge-devices/{deviceID}", chainHandler.AssignToEdgeDevice)
			r.Delete("/{chainID}/edge-devices/{deviceID}", chainHandler.UnassignFromEdgeDevice)
			r.Post("/{chainID}/edge-template-root", chainHandler.SetEdgeTemplateRoot)
			r.Post("/{chainID}/auto-assign", chainHandler.SetAutoAssign)
			r.Delete("/{chainID}/auto-assign", chainHandler.UnsetAutoAssign)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
