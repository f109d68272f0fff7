package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolrental/rentkeeper/internal/configstore"
	"github.com/toolrental/rentkeeper/internal/models"
)

type mockLedger struct {
	ActiveRentalsFunc func(ctx context.Context) ([]*models.ActiveRental, error)
}

func (m *mockLedger) ActiveRentals(ctx context.Context) ([]*models.ActiveRental, error) {
	return m.ActiveRentalsFunc(ctx)
}

func fixedPlanner(ledger Ledger, now time.Time) *Planner {
	p := NewPlanner(ledger)
	p.now = func() time.Time { return now }
	return p
}

func rentalExpiringIn(username, website string, now time.Time, minutes int) *models.ActiveRental {
	return &models.ActiveRental{
		RentalID:  username + "-rental",
		AccountID: username + "-account",
		Username:  username,
		Website:   website,
		ExpiresAt: now.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestExpiringWithin_UrgencyBuckets(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := &mockLedger{
		ActiveRentalsFunc: func(ctx context.Context) ([]*models.ActiveRental, error) {
			return []*models.ActiveRental{
				rentalExpiringIn("carol", "designtool", now, 25),
				rentalExpiringIn("alice", "designtool", now, 3),
				rentalExpiringIn("bob", "designtool", now, 12),
				rentalExpiringIn("dave", "designtool", now, 45),
			}, nil
		},
	}

	infos, err := fixedPlanner(ledger, now).ExpiringWithin(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	// Sorted soonest first
	assert.Equal(t, "alice", infos[0].Username)
	assert.Equal(t, UrgencyCritical, infos[0].Urgency)
	assert.True(t, infos[0].ShouldResetNow)

	assert.Equal(t, "bob", infos[1].Username)
	assert.Equal(t, UrgencyHigh, infos[1].Urgency)
	assert.False(t, infos[1].ShouldResetNow)

	assert.Equal(t, "carol", infos[2].Username)
	assert.Equal(t, UrgencyMedium, infos[2].Urgency)
	assert.False(t, infos[2].ShouldResetNow)
}

func TestExpiringWithin_OverdueIncluded(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := &mockLedger{
		ActiveRentalsFunc: func(ctx context.Context) ([]*models.ActiveRental, error) {
			return []*models.ActiveRental{
				rentalExpiringIn("late", "designtool", now, -20),
			}, nil
		},
	}

	infos, err := fixedPlanner(ledger, now).ExpiringWithin(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, -20, infos[0].MinutesRemaining)
	assert.Equal(t, UrgencyCritical, infos[0].Urgency)
	assert.True(t, infos[0].ShouldResetNow)
}

func TestBuildWorkList_PriorityAndStability(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := &mockLedger{
		ActiveRentalsFunc: func(ctx context.Context) ([]*models.ActiveRental, error) {
			return []*models.ActiveRental{
				rentalExpiringIn("carol", "designtool", now, 8),
				rentalExpiringIn("bob", "designtool", now, 25), // within window, not urgent
			}, nil
		},
	}

	enabled := []configstore.AccountConfig{
		{Username: "alice", Website: "designtool", Enabled: true},
		{Username: "bob", Website: "designtool", Enabled: true},
		{Username: "carol", Website: "designtool", Enabled: true},
		{Username: "dave", Website: "othertool", Enabled: true},
	}

	items, err := fixedPlanner(ledger, now).BuildWorkList(context.Background(), enabled)
	require.NoError(t, err)
	require.Len(t, items, 4)

	// carol needs an imminent reset and jumps the queue
	assert.Equal(t, "carol", items[0].Account.Username)
	assert.Equal(t, 1, items[0].Priority)
	assert.Equal(t, "rental expiring soon", items[0].Reason)

	// everyone else keeps the original relative order
	assert.Equal(t, "alice", items[1].Account.Username)
	assert.Equal(t, "bob", items[2].Account.Username)
	assert.Equal(t, "dave", items[3].Account.Username)
	for _, item := range items[1:] {
		assert.Equal(t, 2, item.Priority)
		assert.Equal(t, "regular reset", item.Reason)
	}
}

func TestBuildWorkList_MatchesOnWebsiteAndUsername(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := &mockLedger{
		ActiveRentalsFunc: func(ctx context.Context) ([]*models.ActiveRental, error) {
			return []*models.ActiveRental{
				rentalExpiringIn("alice", "othertool", now, 2),
			}, nil
		},
	}

	// Same username on a different website must not be promoted.
	enabled := []configstore.AccountConfig{
		{Username: "alice", Website: "designtool", Enabled: true},
	}

	items, err := fixedPlanner(ledger, now).BuildWorkList(context.Background(), enabled)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Priority)
}

func TestBuildWorkList_LedgerError(t *testing.T) {
	ledger := &mockLedger{
		ActiveRentalsFunc: func(ctx context.Context) ([]*models.ActiveRental, error) {
			return nil, errors.New("ledger down")
		},
	}

	_, err := NewPlanner(ledger).BuildWorkList(context.Background(), nil)
	assert.Error(t, err)
}
