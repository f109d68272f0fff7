package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/toolrental/rentkeeper/internal/models"
)

// Store is the persistence contract for the rental lifecycle: the account
// store, the rental ledger and the time-driven reconciler. Two
// implementations exist: the embedded SQLite primary and the Postgres
// cloud mirror. Single-writer mutation per account is assumed; neither
// implementation takes per-row locks.
type Store interface {
	// Websites
	AddWebsite(ctx context.Context, name, url string, validityHours int, description string) (string, error)
	GetWebsite(ctx context.Context, name string) (*models.Website, error)
	ListWebsites(ctx context.Context) ([]*models.Website, error)

	// Accounts
	RegisterAccount(ctx context.Context, websiteName, username, password, email string) (string, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	SetPassword(ctx context.Context, accountID, oldPassword, newPassword, outcome, message string) error
	LogReset(ctx context.Context, accountID, status, message string) error
	MarkException(ctx context.Context, accountID, reason string) error
	ClearException(ctx context.Context, accountID, correctPassword string) error
	ListExceptions(ctx context.Context) ([]*models.ExceptionAccount, error)

	// Rentals
	ReconcileExpired(ctx context.Context) (int64, error)
	ListAvailable(ctx context.Context, websiteName string) ([]*models.AvailableAccount, error)
	Rent(ctx context.Context, accountID string, customer models.Customer) (*models.RentalDetails, error)
	Return(ctx context.Context, accountID string) error
	ActiveRentals(ctx context.Context) ([]*models.ActiveRental, error)
	AccountStatus(ctx context.Context, accountID string) (*models.AccountStatus, error)

	// History and reporting
	PasswordHistory(ctx context.Context, accountID string, limit int) ([]*models.PasswordHistoryEntry, error)
	LogError(ctx context.Context, accountID, errType, message string) error
	DashboardStats(ctx context.Context) (*models.DashboardStats, error)
	AccountStats(ctx context.Context, accountID string) (*models.AccountStats, error)
}

// Replica is the write surface a mirror must provide on top of Store.
// The entity-creating operations replay identifiers generated by the
// primary instead of minting their own, so that later ID-keyed writes
// (SetPassword, MarkException, Return and so on) land on both sides.
type Replica interface {
	Store
	PutWebsite(ctx context.Context, id, name, url string, validityHours int, description string) error
	PutAccount(ctx context.Context, id, websiteName, username, password, email string) error
	PutRental(ctx context.Context, rental *models.RentalDetails, customer models.Customer) error
}

// timeLayout is fixed-width so stored UTC timestamps compare correctly
// both lexicographically (inside SQLite) and after parsing.
const timeLayout = "2006-01-02 15:04:05.000000000"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func decodeTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := decodeTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
