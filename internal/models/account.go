package models

import "time"

// Account status values. Exactly one holds at a time.
const (
	AccountAvailable = "available"
	AccountRented    = "rented"
	AccountException = "exception"
)

// Account is a credential pair for a third-party tool, rentable to customers.
// The current password is a secret owned by the rotation process, not a hash.
type Account struct {
	ID                  string
	WebsiteID           string
	Username            string
	Email               string
	CurrentPassword     string
	Status              string
	RentedAt            *time.Time
	AvailableAt         *time.Time // rental expiry while rented; last return time while available
	LastReset           *time.Time
	FailedLoginAttempts int
	LastFailedLogin     *time.Time
	ExceptionReason     string
	CreatedAt           time.Time
}

// AvailableAccount is the listing row returned to rental API callers.
// It deliberately omits the password; the credential is handed over on rent.
type AvailableAccount struct {
	ID            string     `json:"id"`
	Website       string     `json:"website"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	ValidityHours int        `json:"validity_hours"`
	LastReset     *time.Time `json:"last_reset,omitempty"`
}

// ExceptionAccount is the operator-facing view of a flagged account.
type ExceptionAccount struct {
	ID              string     `json:"id"`
	Website         string     `json:"website"`
	Username        string     `json:"username"`
	Email           string     `json:"email,omitempty"`
	ExceptionReason string     `json:"exception_reason"`
	FailedAttempts  int        `json:"failed_attempts"`
	LastFailedLogin *time.Time `json:"last_failed_login,omitempty"`
}

// AccountStatus combines an account with its active rental, if any.
type AccountStatus struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Status       string     `json:"status"`
	Website      string     `json:"website"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CustomerName string     `json:"customer_name,omitempty"`
}

// AccountStats summarizes reset history for one account.
type AccountStats struct {
	Username         string     `json:"username"`
	Email            string     `json:"email,omitempty"`
	Website          string     `json:"website"`
	Status           string     `json:"status"`
	LastReset        *time.Time `json:"last_reset,omitempty"`
	TotalResets      int        `json:"total_resets"`
	SuccessfulResets int        `json:"successful_resets"`
	FailedResets     int        `json:"failed_resets"`
}

// DashboardStats is the operator dashboard summary.
type DashboardStats struct {
	TotalAccounts     int `json:"total_accounts"`
	AvailableAccounts int `json:"available_accounts"`
	RentedAccounts    int `json:"rented_accounts"`
	ExceptionAccounts int `json:"exception_accounts"`
	TotalWebsites     int `json:"total_websites"`
	ActiveRentals     int `json:"active_rentals"`
	ResetsToday       int `json:"resets_today"`
}
