package routes

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolrental/rentkeeper/internal/handlers"
	"github.com/toolrental/rentkeeper/internal/middleware"
	pkghttp "github.com/toolrental/rentkeeper/pkg/http"
)

// HealthChecker reports storage liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options carries the wiring for the rental API router.
type Options struct {
	Accounts       *handlers.AccountHandler
	Stats          *handlers.StatsHandler
	KeyValidator   middleware.KeyValidator
	Health         HealthChecker
	TrustedProxies []string
	RateLimit      middleware.RateLimitConfig
	Logger         *slog.Logger
}

// NewRouter builds the rental API router: open health and metrics
// endpoints, and the API-key-protected rental surface.
func NewRouter(opts Options) chi.Router {
	// httprate treats a zero limit as "deny everything", so an unset
	// config falls back to the default instead of bricking the API.
	if opts.RateLimit.RequestsPerMinute <= 0 {
		opts.RateLimit = middleware.DefaultAPIRateLimit()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecureLogger(opts.Logger))

	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		if err := opts.Health.HealthCheck(req.Context()); err != nil {
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "unhealthy", "storage unreachable")
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(opts.RateLimit))
		r.Use(middleware.RequireAPIKey(opts.KeyValidator, opts.TrustedProxies, opts.Logger))

		r.Get("/api/accounts/available", opts.Accounts.ListAvailable)
		r.Post("/api/accounts/rent", opts.Accounts.Rent)
		r.Post("/api/accounts/return/{id}", opts.Accounts.Return)
		r.Get("/api/accounts/status/{id}", opts.Accounts.Status)
		r.Get("/api/stats/me", opts.Stats.MyStats)
	})

	return r
}
