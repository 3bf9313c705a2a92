package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ariya-Dice/tansoo/internal/service"
	"github.com/Ariya-Dice/tansoo/pkg/health"
	"github.com/Ariya-Dice/tansoo/pkg/middleware"
)

// RouterConfig holds the HTTP-layer settings.
type RouterConfig struct {
	ServiceName    string
	PprofCIDRs     []string
	CORS           middleware.CORSConfig
	RateLimit      middleware.RateLimitConfig
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter creates a chi router with all cart service routes registered.
// stop ends the rate limiter's eviction loop.
func NewRouter(
	cartService *service.CartService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
	stop <-chan struct{},
) http.Handler {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "cart"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	cartHandler := NewCartHandler(cartService, logger, cfg.MaxBodyBytes)

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)
		r.Use(RequireSession)
		r.Use(middleware.RateLimit(cfg.RateLimit, middleware.SessionOrIPKey, logger, stop))

		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)

		r.Post("/items", cartHandler.AddItem)
		r.Put("/items/{productId}", cartHandler.UpdateItemQuantity)
		r.Put("/items/{productId}/{variant}", cartHandler.UpdateItemQuantity)
		r.Delete("/items/{productId}", cartHandler.RemoveItem)
		r.Delete("/items/{productId}/{variant}", cartHandler.RemoveItem)

		r.Post("/checkout", cartHandler.Checkout)
	})

	return r
}
