package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/toolrental/rentkeeper/internal/metrics"
	"github.com/toolrental/rentkeeper/internal/models"
	pkghttp "github.com/toolrental/rentkeeper/pkg/http"
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// KeyValidator resolves a plaintext API key to its record.
type KeyValidator interface {
	ValidateKey(ctx context.Context, plainKey string) (*models.APIKey, error)
	RecordUsage(ctx context.Context, usage *models.APIUsage) error
}

// actionLabel maps a request path to the action name recorded in the
// usage log. Stats queries aggregate on these labels.
func actionLabel(path string) string {
	switch {
	case strings.Contains(path, "/accounts/rent"):
		return "rent"
	case strings.Contains(path, "/accounts/return/"):
		return "return"
	case strings.Contains(path, "/accounts/available"):
		return "list_available"
	case strings.Contains(path, "/accounts/status/"):
		return "status"
	case strings.Contains(path, "/stats"):
		return "stats"
	default:
		return path
	}
}

// APIKeyFromContext returns the authenticated key set by RequireAPIKey.
func APIKeyFromContext(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return key
}

// WithAPIKey returns a context carrying the given key, as RequireAPIKey
// would set it.
func WithAPIKey(ctx context.Context, key *models.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}

// RequireAPIKey authenticates requests via the X-API-Key header. Every
// authenticated request is logged against its key and counts toward the
// key's daily allotment.
func RequireAPIKey(validator KeyValidator, trustedProxies []string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plainKey := r.Header.Get("X-API-Key")
			if plainKey == "" {
				pkghttp.WriteUnauthorized(w, "missing X-API-Key header")
				return
			}

			key, err := validator.ValidateKey(r.Context(), plainKey)
			if err != nil {
				switch {
				case errors.Is(err, models.ErrQuotaExceeded):
					pkghttp.WriteTooManyRequests(w, "daily request quota exceeded")
				case errors.Is(err, models.ErrKeyRevoked):
					pkghttp.WriteForbidden(w, "api key revoked")
				case errors.Is(err, models.ErrUnauthorized):
					pkghttp.WriteForbidden(w, "invalid api key")
				default:
					logger.Error("api key validation failed", slog.Any("error", err))
					pkghttp.WriteInternalError(w, "could not validate api key")
				}
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			status := fmt.Sprintf("%d", wrapped.Status())
			metrics.APIRequestsTotal.WithLabelValues(r.URL.Path, status).Inc()

			usage := &models.APIUsage{
				APIKeyID:       key.ID,
				Action:         actionLabel(r.URL.Path),
				ResponseStatus: status,
				IPAddress:      pkghttp.ExtractClientIP(r, trustedProxies),
				UserAgent:      r.UserAgent(),
			}
			if err := validator.RecordUsage(context.WithoutCancel(ctx), usage); err != nil {
				logger.Warn("record api usage failed",
					slog.String("key_id", key.ID),
					slog.Any("error", err),
				)
			}
		})
	}
}
