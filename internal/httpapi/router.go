package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appmiddleware "github.com/flashsale/core/internal/middleware"
)

// RouterConfig configures the route registration. ExposeReset should only be
// true in test/staging deployments.
type RouterConfig struct {
	CORSOrigin      string
	RateLimitMax    int
	RateLimitWindow time.Duration
	RequestTimeout  time.Duration
	ExposeReset     bool
}

// NewRouter builds the chi router: recovery, request-id, logging, timeout,
// rate-limit and CORS middleware wrapping the sale routes and the liveness
// probe.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(appmiddleware.RecoveryMiddleware)
	r.Use(appmiddleware.RequestIDMiddleware)
	r.Use(appmiddleware.LoggingMiddleware)
	if cfg.RequestTimeout > 0 {
		r.Use(appmiddleware.TimeoutMiddleware(cfg.RequestTimeout))
	}
	r.Use(RateLimit(cfg.RateLimitMax, cfg.RateLimitWindow))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/api/sale", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Post("/purchase", h.Purchase)
		r.Get("/purchase/{userId}", h.UserStatus)
		if cfg.ExposeReset {
			r.Post("/reset", h.Reset)
		}
	})

	return r
}
