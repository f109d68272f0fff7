package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// APIKeyManager handles API key generation, hashing, and validation
type APIKeyManager struct {
	prefix string // Usually "urt_"
}

// NewAPIKeyManager creates a new APIKeyManager
func NewAPIKeyManager() *APIKeyManager {
	return &APIKeyManager{
		prefix: "urt_",
	}
}

// GenerateAPIKey generates a new API key in the format: urt_<64 hex chars>
// Returns plaintext key (shown once to user) and SHA256 hash (stored in DB)
func (m *APIKeyManager) GenerateAPIKey() (plainKey, hash string, err error) {
	// 32 random bytes = 256 bits of entropy = 64 hex chars
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plainKey = m.prefix + hex.EncodeToString(randomBytes)

	hashBytes := sha256.Sum256([]byte(plainKey))
	hash = hex.EncodeToString(hashBytes[:])

	return plainKey, hash, nil
}

// ValidateAndHashAPIKey validates the format and returns the hash
func (m *APIKeyManager) ValidateAndHashAPIKey(plainKey string) (string, error) {
	if !strings.HasPrefix(plainKey, m.prefix) {
		return "", errors.New("invalid API key format: missing prefix")
	}
	if len(plainKey) != len(m.prefix)+64 {
		return "", fmt.Errorf("invalid API key format: expected %d chars, got %d", len(m.prefix)+64, len(plainKey))
	}
	hashBytes := sha256.Sum256([]byte(plainKey))
	return hex.EncodeToString(hashBytes[:]), nil
}

// KeyPrefix returns the first 12 characters of the key (for display)
func (m *APIKeyManager) KeyPrefix(plainKey string) (string, error) {
	if len(plainKey) < 12 {
		return "", errors.New("API key too short")
	}
	return plainKey[:12], nil
}

// ConstantTimeHashCompare compares two SHA256 hashes with constant-time comparison
func ConstantTimeHashCompare(hash1, hash2 string) bool {
	return subtle.ConstantTimeCompare([]byte(hash1), []byte(hash2)) == 1
}
