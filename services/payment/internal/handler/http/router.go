package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quayside/commerce/pkg/health"
	"github.com/quayside/commerce/pkg/middleware"
	"github.com/quayside/commerce/services/payment/internal/service"
)

// NewRouter creates a chi router with all payment service routes registered.
func NewRouter(
	paymentService *service.PaymentService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	pprofCIDRs []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("payment"))
	r.Use(middleware.PrometheusMetrics("payment"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	middleware.RegisterPprof(r, pprofCIDRs, logger)

	paymentHandler := NewPaymentHandler(paymentService, logger)

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", paymentHandler.CreatePayment)

		// Lookups by related aggregate
		r.Get("/order/{orderId}", paymentHandler.GetPaymentByOrder)
		r.Get("/user/{userId}", paymentHandler.ListPaymentsByUser)

		// Payment lifecycle
		r.Get("/{id}", paymentHandler.GetPayment)
		r.Post("/{id}/capture", paymentHandler.CapturePayment)
		r.Post("/{id}/cancel", paymentHandler.CancelPayment)
		r.Get("/{id}/history", paymentHandler.GetHistory)

		// Refunds
		r.Post("/{id}/refunds", paymentHandler.CreateRefund)
		r.Get("/{id}/refunds", paymentHandler.ListRefunds)
	})

	return r
}
