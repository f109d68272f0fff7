package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/toolrental/rentkeeper/internal/auth"
	"github.com/toolrental/rentkeeper/internal/models"
	"github.com/toolrental/rentkeeper/internal/store"
	pkglogger "github.com/toolrental/rentkeeper/pkg/logger"
)

// APIKeyService manages rental API credentials.
type APIKeyService struct {
	keys    store.APIKeyStore
	manager *auth.APIKeyManager
	logger  *slog.Logger
	now     func() time.Time
}

func NewAPIKeyService(keys store.APIKeyStore, manager *auth.APIKeyManager, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{
		keys:    keys,
		manager: manager,
		logger:  logger,
		now:     time.Now,
	}
}

// GenerateKey creates a new API key. The plaintext is returned exactly
// once; only its hash is stored.
func (s *APIKeyService) GenerateKey(ctx context.Context, name, email string, rateLimit int, notes string) (*models.GeneratedAPIKey, error) {
	plainKey, hash, err := s.manager.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	key := &models.APIKey{
		KeyHash:   hash,
		Name:      name,
		Email:     email,
		Status:    models.KeyActive,
		RateLimit: rateLimit,
		Notes:     notes,
	}
	if err := s.keys.CreateKey(ctx, key); err != nil {
		return nil, fmt.Errorf("store api key: %w", err)
	}

	attrs := []any{
		slog.String("key_id", key.ID),
		slog.String("name", name),
		slog.Int("rate_limit", rateLimit),
	}
	if email != "" {
		// Contact addresses are PII; mask them before they hit the log.
		attrs = append(attrs, slog.String("email", pkglogger.SanitizedEmail(email)))
	}
	s.logger.Info("api key created", attrs...)
	return &models.GeneratedAPIKey{PlainKey: plainKey, APIKey: key}, nil
}

// ValidateKey resolves a plaintext key to its record and enforces the
// per-day quota. Returns ErrUnauthorized for unknown or malformed keys,
// ErrKeyRevoked for revoked ones, and ErrQuotaExceeded once the day's
// allotment is spent. The quota day starts at UTC midnight.
func (s *APIKeyService) ValidateKey(ctx context.Context, plainKey string) (*models.APIKey, error) {
	hash, err := s.manager.ValidateAndHashAPIKey(plainKey)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	key, err := s.keys.GetKeyByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if !auth.ConstantTimeHashCompare(key.KeyHash, hash) {
		return nil, models.ErrUnauthorized
	}
	if !key.IsActive() {
		return nil, models.ErrKeyRevoked
	}

	if key.RateLimit > 0 {
		midnight := s.now().UTC().Truncate(24 * time.Hour)
		used, err := s.keys.CountUsageSince(ctx, key.ID, midnight)
		if err != nil {
			return nil, fmt.Errorf("count key usage: %w", err)
		}
		if used >= key.RateLimit {
			return nil, models.ErrQuotaExceeded
		}
	}

	return key, nil
}

// RevokeKey permanently disables a key.
func (s *APIKeyService) RevokeKey(ctx context.Context, id string) error {
	if err := s.keys.RevokeKey(ctx, id); err != nil {
		return err
	}
	s.logger.Info("api key revoked", slog.String("key_id", id))
	return nil
}

// ListKeys returns all keys, newest first.
func (s *APIKeyService) ListKeys(ctx context.Context) ([]*models.APIKey, error) {
	return s.keys.ListKeys(ctx)
}

// RecordUsage logs one authenticated request against its key.
func (s *APIKeyService) RecordUsage(ctx context.Context, usage *models.APIUsage) error {
	if err := s.keys.RecordUsage(ctx, usage); err != nil {
		return fmt.Errorf("record key usage: %w", err)
	}
	return nil
}

// UsageStats aggregates a key's activity over the last N days.
func (s *APIKeyService) UsageStats(ctx context.Context, apiKeyID string, days int) (*models.UsageStats, error) {
	if days <= 0 {
		days = 30
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	return s.keys.UsageStats(ctx, apiKeyID, since)
}
