package configstore

import "context"

// AccountConfig is one entry in the operator-owned accounts file. The
// rotation process reads it to decide which accounts to attempt and
// writes the rotated password back after each success.
type AccountConfig struct {
	Username        string `json:"username"`
	CurrentPassword string `json:"current_password"`
	Email           string `json:"email,omitempty"`
	Website         string `json:"website"`
	Enabled         bool   `json:"enabled"`
}

// Settings are process-wide toggles for the rotation run.
type Settings struct {
	Headless           bool `json:"headless"`
	EmailNotifications bool `json:"email_notifications"`
}

// Config is the full accounts file.
type Config struct {
	Accounts []AccountConfig `json:"accounts"`
	Settings Settings        `json:"settings"`
}

// Repository loads and persists the accounts config. Save must replace
// the whole document; the file is externally owned and may be edited by
// an operator between runs.
type Repository interface {
	Load(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
}

// Enabled returns the accounts eligible for a reset pass.
func (c *Config) Enabled() []AccountConfig {
	enabled := make([]AccountConfig, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	return enabled
}

// UpdatePassword rewrites the stored password for the matching account.
// Accounts are keyed by (website, username). Returns false when no entry
// matches.
func (c *Config) UpdatePassword(website, username, newPassword string) bool {
	for i := range c.Accounts {
		if c.Accounts[i].Website == website && c.Accounts[i].Username == username {
			c.Accounts[i].CurrentPassword = newPassword
			return true
		}
	}
	return false
}
