package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sinaabedii/arian-etc-sub001/pkg/health"
	"github.com/sinaabedii/arian-etc-sub001/pkg/middleware"
)

const serviceName = "storefront-sync"

// NewRouter creates a chi router with all storefront sync routes registered.
func NewRouter(h *Handler, healthHandler *health.Handler, limiter *SessionLimiter, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(SessionID)
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(limiter.Middleware)
		r.Use(h.withSession)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/refresh", h.RefreshCart)

			r.Post("/items", h.AddItem)
			r.Post("/items/remote", h.AddToCart)
			r.Get("/items/{id}", h.GetItem)
			r.Put("/items/{id}", h.UpdateQuantity)
			r.Delete("/items/{id}", h.RemoveItem)
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", h.GetWishlist)
			r.Delete("/", h.ClearWishlist)
			r.Post("/refresh", h.RefreshWishlist)

			r.Post("/items", h.AddToWishlist)
			r.Post("/items/api", h.AddFromAPIItem)
			r.Delete("/items/{id}", h.RemoveFromWishlist)

			r.Get("/products/{productId}", h.GetProduct)
			r.Post("/products/{productId}", h.AddProduct)
		})

		r.Get("/session", h.GetSession)
		r.Put("/session", h.SignIn)
		r.Delete("/session", h.SignOut)
	})

	return r
}
