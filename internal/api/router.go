package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/otiai10/stripehook/internal/tail"
	"github.com/otiai10/stripehook/internal/telemetry"
	"github.com/otiai10/stripehook/internal/version"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	Handler     *StripeEventsHandler
	Logger      zerolog.Logger
	EventsPath  string             // defaults to /stripe-events
	Metrics     *telemetry.Metrics // nil means no metrics
	MetricsPath string             // defaults to /metrics
	Tail        *tail.Hub          // nil means no tail endpoint
	RateLimit   int                // requests per minute per client IP on the events route, 0 disables
	// TrustProxy takes the client IP from True-Client-IP, X-Real-IP or
	// X-Forwarded-For. Only enable it behind a proxy that overwrites them.
	TrustProxy bool
}

// NewRouter creates the HTTP router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	eventsPath := cfg.EventsPath
	if eventsPath == "" {
		eventsPath = "/stripe-events"
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(
		RecoveryMiddleware(cfg.Logger),
		LoggingMiddleware(cfg.Logger),
	)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "not found", http.StatusNotFound)
	})

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok", "hash": version.CommitHash}, http.StatusOK)
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, metricsPath, cfg.Metrics.Handler())
	}

	// Stripe webhook route (no auth required - uses signature verification)
	events := Chain()
	if cfg.RateLimit > 0 {
		events = Chain(httprate.Limit(
			cfg.RateLimit,
			time.Minute,
			// RemoteAddr is the peer unless RealIP rewrote it
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			}),
		))
	}
	r.Method(http.MethodPost, eventsPath, events(cfg.Handler))

	if cfg.Tail != nil {
		r.Get(eventsPath+"/tail", cfg.Tail.ServeHTTP)
	}

	return r
}
