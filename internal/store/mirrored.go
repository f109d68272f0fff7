package store

import (
	"context"
	"log/slog"

	"github.com/toolrental/rentkeeper/internal/models"
)

// Mirrored layers a best-effort cloud mirror over the embedded primary.
// Every write goes to the primary first; only a primary failure is
// returned to the caller. Mirror failures are logged and swallowed so an
// unreachable cloud project never takes down the rental path. Reads are
// always served from the primary.
//
// Entity-creating writes replay the primary's generated identifiers onto
// the mirror through the Replica surface. Both sides therefore key rows
// by the same IDs, which is what lets the ID-keyed writes below land on
// the mirror at all.
type Mirrored struct {
	primary Store
	mirror  Replica
	logger  *slog.Logger
}

// NewMirrored wraps primary with a mirror. mirror may not be nil; callers
// without a mirror should use the primary store directly.
func NewMirrored(primary Store, mirror Replica, logger *slog.Logger) *Mirrored {
	return &Mirrored{primary: primary, mirror: mirror, logger: logger}
}

func (m *Mirrored) mirrorErr(op string, err error) {
	if err != nil {
		m.logger.Warn("mirror write failed",
			slog.String("op", op),
			slog.Any("error", err),
		)
	}
}

// ===================== Writes (mirrored) =====================

func (m *Mirrored) AddWebsite(ctx context.Context, name, url string, validityHours int, description string) (string, error) {
	id, err := m.primary.AddWebsite(ctx, name, url, validityHours, description)
	if err != nil {
		return "", err
	}
	m.mirrorErr("add_website", m.mirror.PutWebsite(ctx, id, name, url, validityHours, description))
	return id, nil
}

func (m *Mirrored) RegisterAccount(ctx context.Context, websiteName, username, password, email string) (string, error) {
	id, err := m.primary.RegisterAccount(ctx, websiteName, username, password, email)
	if err != nil {
		return "", err
	}
	m.mirrorErr("register_account", m.mirror.PutAccount(ctx, id, websiteName, username, password, email))
	return id, nil
}

func (m *Mirrored) SetPassword(ctx context.Context, accountID, oldPassword, newPassword, outcome, message string) error {
	if err := m.primary.SetPassword(ctx, accountID, oldPassword, newPassword, outcome, message); err != nil {
		return err
	}
	m.mirrorErr("set_password", m.mirror.SetPassword(ctx, accountID, oldPassword, newPassword, outcome, message))
	return nil
}

func (m *Mirrored) LogReset(ctx context.Context, accountID, status, message string) error {
	if err := m.primary.LogReset(ctx, accountID, status, message); err != nil {
		return err
	}
	m.mirrorErr("log_reset", m.mirror.LogReset(ctx, accountID, status, message))
	return nil
}

func (m *Mirrored) MarkException(ctx context.Context, accountID, reason string) error {
	if err := m.primary.MarkException(ctx, accountID, reason); err != nil {
		return err
	}
	m.mirrorErr("mark_exception", m.mirror.MarkException(ctx, accountID, reason))
	return nil
}

func (m *Mirrored) ClearException(ctx context.Context, accountID, correctPassword string) error {
	if err := m.primary.ClearException(ctx, accountID, correctPassword); err != nil {
		return err
	}
	m.mirrorErr("clear_exception", m.mirror.ClearException(ctx, accountID, correctPassword))
	return nil
}

func (m *Mirrored) ReconcileExpired(ctx context.Context) (int64, error) {
	flipped, err := m.primary.ReconcileExpired(ctx)
	if err != nil {
		return 0, err
	}
	_, merr := m.mirror.ReconcileExpired(ctx)
	m.mirrorErr("reconcile_expired", merr)
	return flipped, nil
}

func (m *Mirrored) Rent(ctx context.Context, accountID string, customer models.Customer) (*models.RentalDetails, error) {
	details, err := m.primary.Rent(ctx, accountID, customer)
	if err != nil {
		return nil, err
	}
	m.mirrorErr("rent", m.mirror.PutRental(ctx, details, customer))
	return details, nil
}

func (m *Mirrored) Return(ctx context.Context, accountID string) error {
	if err := m.primary.Return(ctx, accountID); err != nil {
		return err
	}
	m.mirrorErr("return", m.mirror.Return(ctx, accountID))
	return nil
}

func (m *Mirrored) LogError(ctx context.Context, accountID, errType, message string) error {
	if err := m.primary.LogError(ctx, accountID, errType, message); err != nil {
		return err
	}
	m.mirrorErr("log_error", m.mirror.LogError(ctx, accountID, errType, message))
	return nil
}

// ===================== Reads (primary only) =====================

func (m *Mirrored) GetWebsite(ctx context.Context, name string) (*models.Website, error) {
	return m.primary.GetWebsite(ctx, name)
}

func (m *Mirrored) ListWebsites(ctx context.Context) ([]*models.Website, error) {
	return m.primary.ListWebsites(ctx)
}

func (m *Mirrored) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return m.primary.GetAccount(ctx, id)
}

func (m *Mirrored) ListExceptions(ctx context.Context) ([]*models.ExceptionAccount, error) {
	return m.primary.ListExceptions(ctx)
}

func (m *Mirrored) ListAvailable(ctx context.Context, websiteName string) ([]*models.AvailableAccount, error) {
	return m.primary.ListAvailable(ctx, websiteName)
}

func (m *Mirrored) ActiveRentals(ctx context.Context) ([]*models.ActiveRental, error) {
	return m.primary.ActiveRentals(ctx)
}

func (m *Mirrored) AccountStatus(ctx context.Context, accountID string) (*models.AccountStatus, error) {
	return m.primary.AccountStatus(ctx, accountID)
}

func (m *Mirrored) PasswordHistory(ctx context.Context, accountID string, limit int) ([]*models.PasswordHistoryEntry, error) {
	return m.primary.PasswordHistory(ctx, accountID, limit)
}

func (m *Mirrored) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	return m.primary.DashboardStats(ctx)
}

func (m *Mirrored) AccountStats(ctx context.Context, accountID string) (*models.AccountStats, error) {
	return m.primary.AccountStats(ctx, accountID)
}
