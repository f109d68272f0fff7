package services

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolrental/rentkeeper/internal/auth"
	"github.com/toolrental/rentkeeper/internal/models"
)

type mockAPIKeyStore struct {
	CreateKeyFunc       func(ctx context.Context, key *models.APIKey) error
	GetKeyByHashFunc    func(ctx context.Context, hash string) (*models.APIKey, error)
	ListKeysFunc        func(ctx context.Context) ([]*models.APIKey, error)
	RevokeKeyFunc       func(ctx context.Context, id string) error
	RecordUsageFunc     func(ctx context.Context, usage *models.APIUsage) error
	CountUsageSinceFunc func(ctx context.Context, apiKeyID string, since time.Time) (int, error)
	UsageStatsFunc      func(ctx context.Context, apiKeyID string, since time.Time) (*models.UsageStats, error)
	RecentActivityFunc  func(ctx context.Context, apiKeyID string, limit int) ([]*models.APIUsage, error)
}

func (m *mockAPIKeyStore) CreateKey(ctx context.Context, key *models.APIKey) error {
	if m.CreateKeyFunc == nil {
		key.ID = "key-1"
		return nil
	}
	return m.CreateKeyFunc(ctx, key)
}

func (m *mockAPIKeyStore) GetKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	return m.GetKeyByHashFunc(ctx, hash)
}

func (m *mockAPIKeyStore) ListKeys(ctx context.Context) ([]*models.APIKey, error) {
	return m.ListKeysFunc(ctx)
}

func (m *mockAPIKeyStore) RevokeKey(ctx context.Context, id string) error {
	return m.RevokeKeyFunc(ctx, id)
}

func (m *mockAPIKeyStore) RecordUsage(ctx context.Context, usage *models.APIUsage) error {
	return m.RecordUsageFunc(ctx, usage)
}

func (m *mockAPIKeyStore) CountUsageSince(ctx context.Context, apiKeyID string, since time.Time) (int, error) {
	if m.CountUsageSinceFunc == nil {
		return 0, nil
	}
	return m.CountUsageSinceFunc(ctx, apiKeyID, since)
}

func (m *mockAPIKeyStore) UsageStats(ctx context.Context, apiKeyID string, since time.Time) (*models.UsageStats, error) {
	return m.UsageStatsFunc(ctx, apiKeyID, since)
}

func (m *mockAPIKeyStore) RecentActivity(ctx context.Context, apiKeyID string, limit int) ([]*models.APIUsage, error) {
	return m.RecentActivityFunc(ctx, apiKeyID, limit)
}

func TestGenerateAndValidateKey(t *testing.T) {
	var stored *models.APIKey
	keys := &mockAPIKeyStore{
		CreateKeyFunc: func(ctx context.Context, key *models.APIKey) error {
			key.ID = "key-1"
			stored = key
			return nil
		},
		GetKeyByHashFunc: func(ctx context.Context, hash string) (*models.APIKey, error) {
			if stored != nil && stored.KeyHash == hash {
				return stored, nil
			}
			return nil, models.ErrNotFound
		},
	}

	svc := NewAPIKeyService(keys, auth.NewAPIKeyManager(), testLogger())
	ctx := context.Background()

	generated, err := svc.GenerateKey(ctx, "acme", "ops@acme.example", 100, "")
	require.NoError(t, err)
	assert.NotEmpty(t, generated.PlainKey)
	assert.Equal(t, "key-1", generated.APIKey.ID)

	key, err := svc.ValidateKey(ctx, generated.PlainKey)
	require.NoError(t, err)
	assert.Equal(t, "key-1", key.ID)
}

func TestGenerateKey_LogsMaskedEmail(t *testing.T) {
	var buf bytes.Buffer
	svc := NewAPIKeyService(&mockAPIKeyStore{}, auth.NewAPIKeyManager(), slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := svc.GenerateKey(context.Background(), "acme", "ops@acme.example", 100, "")
	require.NoError(t, err)

	logged := buf.String()
	assert.Contains(t, logged, "o**@****.example")
	assert.NotContains(t, logged, "ops@acme.example")
}

func TestValidateKey_Malformed(t *testing.T) {
	svc := NewAPIKeyService(&mockAPIKeyStore{}, auth.NewAPIKeyManager(), testLogger())

	_, err := svc.ValidateKey(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestValidateKey_Unknown(t *testing.T) {
	keys := &mockAPIKeyStore{
		GetKeyByHashFunc: func(ctx context.Context, hash string) (*models.APIKey, error) {
			return nil, models.ErrNotFound
		},
	}
	svc := NewAPIKeyService(keys, auth.NewAPIKeyManager(), testLogger())

	manager := auth.NewAPIKeyManager()
	plainKey, _, err := manager.GenerateAPIKey()
	require.NoError(t, err)

	_, err = svc.ValidateKey(context.Background(), plainKey)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestValidateKey_Revoked(t *testing.T) {
	manager := auth.NewAPIKeyManager()
	plainKey, hash, err := manager.GenerateAPIKey()
	require.NoError(t, err)

	keys := &mockAPIKeyStore{
		GetKeyByHashFunc: func(ctx context.Context, h string) (*models.APIKey, error) {
			return &models.APIKey{ID: "key-1", KeyHash: hash, Status: models.KeyRevoked}, nil
		},
	}
	svc := NewAPIKeyService(keys, manager, testLogger())

	_, err = svc.ValidateKey(context.Background(), plainKey)
	assert.ErrorIs(t, err, models.ErrKeyRevoked)
}

func TestValidateKey_QuotaExceeded(t *testing.T) {
	manager := auth.NewAPIKeyManager()
	plainKey, hash, err := manager.GenerateAPIKey()
	require.NoError(t, err)

	var sinceSeen time.Time
	keys := &mockAPIKeyStore{
		GetKeyByHashFunc: func(ctx context.Context, h string) (*models.APIKey, error) {
			return &models.APIKey{ID: "key-1", KeyHash: hash, Status: models.KeyActive, RateLimit: 10}, nil
		},
		CountUsageSinceFunc: func(ctx context.Context, apiKeyID string, since time.Time) (int, error) {
			sinceSeen = since
			return 10, nil
		},
	}
	svc := NewAPIKeyService(keys, manager, testLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC) }

	_, err = svc.ValidateKey(context.Background(), plainKey)
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)

	// Quota day starts at UTC midnight
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), sinceSeen)
}

func TestValidateKey_UnlimitedWhenRateLimitZero(t *testing.T) {
	manager := auth.NewAPIKeyManager()
	plainKey, hash, err := manager.GenerateAPIKey()
	require.NoError(t, err)

	keys := &mockAPIKeyStore{
		GetKeyByHashFunc: func(ctx context.Context, h string) (*models.APIKey, error) {
			return &models.APIKey{ID: "key-1", KeyHash: hash, Status: models.KeyActive, RateLimit: 0}, nil
		},
		CountUsageSinceFunc: func(ctx context.Context, apiKeyID string, since time.Time) (int, error) {
			t.Fatal("quota should not be checked for unlimited keys")
			return 0, nil
		},
	}
	svc := NewAPIKeyService(keys, manager, testLogger())

	_, err = svc.ValidateKey(context.Background(), plainKey)
	assert.NoError(t, err)
}
