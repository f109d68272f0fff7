package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolrental/rentkeeper/internal/models"
)

// failingStore satisfies Replica and fails every operation. Used as a
// mirror to prove mirror failures never surface to callers.
type failingStore struct{}

var errMirrorDown = errors.New("mirror unreachable")

func (failingStore) AddWebsite(context.Context, string, string, int, string) (string, error) {
	return "", errMirrorDown
}
func (failingStore) GetWebsite(context.Context, string) (*models.Website, error) {
	return nil, errMirrorDown
}
func (failingStore) ListWebsites(context.Context) ([]*models.Website, error) {
	return nil, errMirrorDown
}
func (failingStore) RegisterAccount(context.Context, string, string, string, string) (string, error) {
	return "", errMirrorDown
}
func (failingStore) GetAccount(context.Context, string) (*models.Account, error) {
	return nil, errMirrorDown
}
func (failingStore) SetPassword(context.Context, string, string, string, string, string) error {
	return errMirrorDown
}
func (failingStore) LogReset(context.Context, string, string, string) error { return errMirrorDown }
func (failingStore) MarkException(context.Context, string, string) error    { return errMirrorDown }
func (failingStore) ClearException(context.Context, string, string) error   { return errMirrorDown }
func (failingStore) ListExceptions(context.Context) ([]*models.ExceptionAccount, error) {
	return nil, errMirrorDown
}
func (failingStore) ReconcileExpired(context.Context) (int64, error) { return 0, errMirrorDown }
func (failingStore) ListAvailable(context.Context, string) ([]*models.AvailableAccount, error) {
	return nil, errMirrorDown
}
func (failingStore) Rent(context.Context, string, models.Customer) (*models.RentalDetails, error) {
	return nil, errMirrorDown
}
func (failingStore) Return(context.Context, string) error { return errMirrorDown }
func (failingStore) ActiveRentals(context.Context) ([]*models.ActiveRental, error) {
	return nil, errMirrorDown
}
func (failingStore) AccountStatus(context.Context, string) (*models.AccountStatus, error) {
	return nil, errMirrorDown
}
func (failingStore) PasswordHistory(context.Context, string, int) ([]*models.PasswordHistoryEntry, error) {
	return nil, errMirrorDown
}
func (failingStore) LogError(context.Context, string, string, string) error { return errMirrorDown }
func (failingStore) DashboardStats(context.Context) (*models.DashboardStats, error) {
	return nil, errMirrorDown
}
func (failingStore) AccountStats(context.Context, string) (*models.AccountStats, error) {
	return nil, errMirrorDown
}
func (failingStore) PutWebsite(context.Context, string, string, string, int, string) error {
	return errMirrorDown
}
func (failingStore) PutAccount(context.Context, string, string, string, string, string) error {
	return errMirrorDown
}
func (failingStore) PutRental(context.Context, *models.RentalDetails, models.Customer) error {
	return errMirrorDown
}

func TestMirrored_MirrorFailuresSwallowed(t *testing.T) {
	primary, _ := newTestStore(t)
	m := NewMirrored(primary, failingStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, err := m.AddWebsite(ctx, "designtool", "https://designtool.example", 2, "")
	require.NoError(t, err)

	accountID, err := m.RegisterAccount(ctx, "designtool", "alice", "Initial-Pass-1!", "")
	require.NoError(t, err)

	details, err := m.Rent(ctx, accountID, models.Customer{Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, accountID, details.AccountID)

	require.NoError(t, m.Return(ctx, accountID))
	require.NoError(t, m.SetPassword(ctx, accountID, "Initial-Pass-1!", "New-Pass-2!", models.ResetSuccess, ""))
	require.NoError(t, m.MarkException(ctx, accountID, "login failed"))
	require.NoError(t, m.ClearException(ctx, accountID, "Fixed-Pass-3!"))

	_, err = m.ReconcileExpired(ctx)
	require.NoError(t, err)
}

// TestMirrored_ReplaysPrimaryIDsOntoMirror runs two real stores side by
// side and checks that the mirror ends up keyed by the primary's
// identifiers. Without the replay, every ID-keyed write would miss the
// mirror and the cloud copy would stay empty of rental state.
func TestMirrored_ReplaysPrimaryIDsOntoMirror(t *testing.T) {
	primary, _ := newNamedTestStore(t, "-primary")
	mirror, _ := newNamedTestStore(t, "-mirror")
	m := NewMirrored(primary, mirror, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	websiteID, err := m.AddWebsite(ctx, "designtool", "https://designtool.example", 2, "")
	require.NoError(t, err)

	accountID, err := m.RegisterAccount(ctx, "designtool", "alice", "Initial-Pass-1!", "alice@example.com")
	require.NoError(t, err)

	mirrorWebsite, err := mirror.GetWebsite(ctx, "designtool")
	require.NoError(t, err)
	assert.Equal(t, websiteID, mirrorWebsite.ID)

	mirrorAccount, err := mirror.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "alice", mirrorAccount.Username)

	details, err := m.Rent(ctx, accountID, models.Customer{Name: "Acme", Email: "ops@acme.example"})
	require.NoError(t, err)

	rentals, err := mirror.ActiveRentals(ctx)
	require.NoError(t, err)
	require.Len(t, rentals, 1)
	assert.Equal(t, details.RentalID, rentals[0].RentalID)
	assert.Equal(t, accountID, rentals[0].AccountID)
	assert.WithinDuration(t, details.ExpiresAt, rentals[0].ExpiresAt, 0)

	require.NoError(t, m.Return(ctx, accountID))
	mirrorAccount, err = mirror.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountAvailable, mirrorAccount.Status)

	require.NoError(t, m.SetPassword(ctx, accountID, "Initial-Pass-1!", "New-Pass-2!", models.ResetSuccess, "rotated"))
	mirrorAccount, err = mirror.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "New-Pass-2!", mirrorAccount.CurrentPassword)

	history, err := mirror.PasswordHistory(ctx, accountID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ResetSuccess, history[0].Status)

	require.NoError(t, m.MarkException(ctx, accountID, "login failed"))
	exceptions, err := mirror.ListExceptions(ctx)
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	assert.Equal(t, accountID, exceptions[0].ID)

	require.NoError(t, m.ClearException(ctx, accountID, "Fixed-Pass-3!"))
	mirrorAccount, err = mirror.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountAvailable, mirrorAccount.Status)
	assert.Equal(t, "Fixed-Pass-3!", mirrorAccount.CurrentPassword)
}

func TestMirrored_PrimaryFailuresPropagate(t *testing.T) {
	primary, _ := newTestStore(t)
	m := NewMirrored(primary, failingStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Unknown website on the primary must fail even though the call never
	// reaches the mirror.
	_, err := m.RegisterAccount(context.Background(), "nope", "alice", "x", "")
	assert.ErrorIs(t, err, models.ErrWebsiteNotFound)
}

func TestMirrored_ReadsServedByPrimary(t *testing.T) {
	primary, _ := newTestStore(t)
	m := NewMirrored(primary, failingStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, err := m.AddWebsite(ctx, "designtool", "https://designtool.example", 2, "")
	require.NoError(t, err)

	// Reads go straight to the primary; a dead mirror is irrelevant
	w, err := m.GetWebsite(ctx, "designtool")
	require.NoError(t, err)
	assert.Equal(t, "designtool", w.Name)

	websites, err := m.ListWebsites(ctx)
	require.NoError(t, err)
	assert.Len(t, websites, 1)
}
