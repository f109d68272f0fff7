package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolrental/rentkeeper/internal/models"
)

type mockValidator struct {
	ValidateKeyFunc func(ctx context.Context, plainKey string) (*models.APIKey, error)
	usages          []*models.APIUsage
}

func (m *mockValidator) ValidateKey(ctx context.Context, plainKey string) (*models.APIKey, error) {
	return m.ValidateKeyFunc(ctx, plainKey)
}

func (m *mockValidator) RecordUsage(ctx context.Context, usage *models.APIUsage) error {
	m.usages = append(m.usages, usage)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func protectedHandler(validator KeyValidator) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := APIKeyFromContext(r.Context())
		if key == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return RequireAPIKey(validator, nil, testLogger())(inner)
}

func TestRequireAPIKey_MissingHeader(t *testing.T) {
	handler := protectedHandler(&mockValidator{})

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/available", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAPIKey_InvalidKey(t *testing.T) {
	validator := &mockValidator{
		ValidateKeyFunc: func(ctx context.Context, plainKey string) (*models.APIKey, error) {
			return nil, models.ErrUnauthorized
		},
	}
	handler := protectedHandler(validator)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/available", nil)
	req.Header.Set("X-API-Key", "urt_bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, validator.usages)
}

func TestRequireAPIKey_RevokedKey(t *testing.T) {
	validator := &mockValidator{
		ValidateKeyFunc: func(ctx context.Context, plainKey string) (*models.APIKey, error) {
			return nil, models.ErrKeyRevoked
		},
	}
	handler := protectedHandler(validator)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/available", nil)
	req.Header.Set("X-API-Key", "urt_revoked")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAPIKey_QuotaExceeded(t *testing.T) {
	validator := &mockValidator{
		ValidateKeyFunc: func(ctx context.Context, plainKey string) (*models.APIKey, error) {
			return nil, models.ErrQuotaExceeded
		},
	}
	handler := protectedHandler(validator)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/available", nil)
	req.Header.Set("X-API-Key", "urt_over")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRequireAPIKey_ValidKeyRecordsUsage(t *testing.T) {
	validator := &mockValidator{
		ValidateKeyFunc: func(ctx context.Context, plainKey string) (*models.APIKey, error) {
			assert.Equal(t, "urt_good", plainKey)
			return &models.APIKey{ID: "key-1", Status: models.KeyActive}, nil
		},
	}
	handler := protectedHandler(validator)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts/rent", nil)
	req.Header.Set("X-API-Key", "urt_good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, validator.usages, 1)
	assert.Equal(t, "key-1", validator.usages[0].APIKeyID)
	assert.Equal(t, "rent", validator.usages[0].Action)
	assert.Equal(t, "200", validator.usages[0].ResponseStatus)
}

func TestActionLabel(t *testing.T) {
	tests := map[string]string{
		"/api/accounts/rent":          "rent",
		"/api/accounts/return/acct-1": "return",
		"/api/accounts/available":     "list_available",
		"/api/accounts/status/acct-1": "status",
		"/api/stats/me":               "stats",
		"/api/other":                  "/api/other",
	}
	for path, want := range tests {
		assert.Equal(t, want, actionLabel(path), path)
	}
}
