package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/toolrental/rentkeeper/internal/metrics"
	"github.com/toolrental/rentkeeper/internal/models"
)

// RentalStore is the slice of the store the rental API needs.
type RentalStore interface {
	ListAvailable(ctx context.Context, websiteName string) ([]*models.AvailableAccount, error)
	Rent(ctx context.Context, accountID string, customer models.Customer) (*models.RentalDetails, error)
	Return(ctx context.Context, accountID string) error
	AccountStatus(ctx context.Context, accountID string) (*models.AccountStatus, error)
	DashboardStats(ctx context.Context) (*models.DashboardStats, error)
}

// RentalService is the API-facing rental logic over the store.
type RentalService struct {
	store  RentalStore
	logger *slog.Logger
}

func NewRentalService(store RentalStore, logger *slog.Logger) *RentalService {
	return &RentalService{store: store, logger: logger}
}

// ListAvailable returns rentable accounts for a website, passwords
// omitted. Expired rentals are swept back into the pool first.
func (s *RentalService) ListAvailable(ctx context.Context, website string) ([]*models.AvailableAccount, error) {
	accounts, err := s.store.ListAvailable(ctx, website)
	if err != nil {
		return nil, fmt.Errorf("list available accounts: %w", err)
	}
	return accounts, nil
}

// RentFirstAvailable rents the least-recently-reset available account for
// the website and returns the credential handoff. ErrNoAccounts when the
// pool is empty.
func (s *RentalService) RentFirstAvailable(ctx context.Context, website string, customer models.Customer) (*models.RentalDetails, error) {
	accounts, err := s.store.ListAvailable(ctx, website)
	if err != nil {
		return nil, fmt.Errorf("list available accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, models.ErrNoAccounts
	}

	for _, candidate := range accounts {
		details, err := s.store.Rent(ctx, candidate.ID, customer)
		if err == nil {
			metrics.RentalsTotal.WithLabelValues("rent").Inc()
			s.logger.Info("account rented",
				slog.String("account_id", details.AccountID),
				slog.String("website", details.Website),
				slog.String("rental_id", details.RentalID),
			)
			return details, nil
		}
		// Lost the race for this account; try the next one.
		if errors.Is(err, models.ErrNotAvailable) {
			continue
		}
		return nil, fmt.Errorf("rent account: %w", err)
	}
	return nil, models.ErrNoAccounts
}

// Return hands an account back. Idempotent; returning an account with no
// active rental is a no-op.
func (s *RentalService) Return(ctx context.Context, accountID string) error {
	if err := s.store.Return(ctx, accountID); err != nil {
		return fmt.Errorf("return account: %w", err)
	}
	metrics.RentalsTotal.WithLabelValues("return").Inc()
	s.logger.Info("account returned", slog.String("account_id", accountID))
	return nil
}

// Status reports an account's rental status.
func (s *RentalService) Status(ctx context.Context, accountID string) (*models.AccountStatus, error) {
	status, err := s.store.AccountStatus(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return status, nil
}

// DashboardStats returns the operator dashboard summary and refreshes the
// active rental gauge.
func (s *RentalService) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	stats, err := s.store.DashboardStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	metrics.ActiveRentals.Set(float64(stats.ActiveRentals))
	return stats, nil
}
