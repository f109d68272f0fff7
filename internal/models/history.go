package models

import "time"

// Password history entry status values.
const (
	ResetSuccess = "success"
	ResetFailed  = "failed"
)

// PasswordHistoryEntry is one row of the append-only reset audit log.
type PasswordHistoryEntry struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	OldPassword string    `json:"-"`
	NewPassword string    `json:"-"`
	ResetDate   time.Time `json:"reset_date"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
}
