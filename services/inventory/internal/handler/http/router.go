package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quayside/commerce/pkg/health"
	"github.com/quayside/commerce/pkg/middleware"
	"github.com/quayside/commerce/services/inventory/internal/service"
)

// NewRouter creates a chi router with all inventory service routes registered.
func NewRouter(
	inventoryService *service.InventoryService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	pprofCIDRs []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("inventory"))
	r.Use(middleware.PrometheusMetrics("inventory"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	middleware.RegisterPprof(r, pprofCIDRs, logger)

	inventoryHandler := NewInventoryHandler(inventoryService, logger)

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Stock initialization (create new stock record)
		r.Post("/", inventoryHandler.InitializeStock)

		// Admin operations
		r.Get("/low-stock", inventoryHandler.ListLowStock)

		// Stock operations
		r.Get("/{productId}/variants/{variantId}", inventoryHandler.GetStock)
		r.Put("/{productId}/variants/{variantId}", inventoryHandler.AdjustStock)
		r.Get("/{productId}/variants/{variantId}/movements", inventoryHandler.ListMovements)
	})

	r.Route("/api/v1/reservations", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", inventoryHandler.CreateReservation)
		r.Get("/{id}", inventoryHandler.GetReservation)
		r.Post("/{id}/confirm", inventoryHandler.ConfirmReservation)
		r.Post("/{id}/cancel", inventoryHandler.CancelReservation)
	})

	r.Route("/api/v1/alerts", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/", inventoryHandler.ListAlerts)
		r.Post("/{id}/resolve", inventoryHandler.ResolveAlert)
		r.Post("/{id}/ignore", inventoryHandler.IgnoreAlert)
	})

	return r
}
