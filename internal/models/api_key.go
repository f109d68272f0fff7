package models

import "time"

// API key status values.
const (
	KeyActive  = "active"
	KeyRevoked = "revoked"
)

// APIKey identifies a rental API caller. Only the SHA-256 hash of the
// plaintext key is stored; the plaintext is shown once at creation.
type APIKey struct {
	ID            string     `json:"id"`
	KeyHash       string     `json:"-"`
	Name          string     `json:"name"`
	Email         string     `json:"email,omitempty"`
	Status        string     `json:"status"`
	RateLimit     int        `json:"rate_limit"` // requests per day
	TotalRequests int        `json:"total_requests"`
	LastUsed      *time.Time `json:"last_used,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// GeneratedAPIKey is returned when a key is created and carries the
// plaintext exactly once.
type GeneratedAPIKey struct {
	PlainKey string  `json:"key"`
	APIKey   *APIKey `json:"api_key"`
}

// IsActive reports whether the key may be used.
func (k *APIKey) IsActive() bool {
	return k.Status == KeyActive
}

// APIUsage is one logged rental API request.
type APIUsage struct {
	ID             string    `json:"id"`
	APIKeyID       string    `json:"api_key_id"`
	AccountID      string    `json:"account_id,omitempty"`
	Website        string    `json:"website,omitempty"`
	Action         string    `json:"action"`
	ResponseStatus string    `json:"response_status"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// UsageStats aggregates a key's activity over a lookback window.
type UsageStats struct {
	TotalRequests  int `json:"total_requests"`
	UniqueAccounts int `json:"unique_accounts"`
	WebsitesUsed   int `json:"websites_used"`
	Rentals        int `json:"rentals"`
	Returns        int `json:"returns"`
}
