package schedule

import (
	"context"
	"sort"
	"time"

	"github.com/toolrental/rentkeeper/internal/configstore"
	"github.com/toolrental/rentkeeper/internal/models"
)

// Urgency buckets for rentals nearing expiry.
const (
	UrgencyCritical = "CRITICAL"
	UrgencyHigh     = "HIGH"
	UrgencyMedium   = "MEDIUM"
)

const (
	criticalWindow = 5
	highWindow     = 15
	resetNowWindow = 10

	// DefaultWindowMinutes is the lookahead used when building a work list.
	DefaultWindowMinutes = 30
)

// ExpiryInfo describes one active rental's distance to expiry.
type ExpiryInfo struct {
	RentalID         string
	AccountID        string
	Username         string
	Website          string
	ExpiresAt        time.Time
	MinutesRemaining int
	Urgency          string
	ShouldResetNow   bool
}

// WorkItem is one entry of an ordered reset pass.
type WorkItem struct {
	Account  configstore.AccountConfig
	Priority int
	Reason   string
}

// Ledger is the rental view the planner needs.
type Ledger interface {
	ActiveRentals(ctx context.Context) ([]*models.ActiveRental, error)
}

// Planner orders accounts for a reset pass, weighting accounts whose
// active rental is close to expiry.
type Planner struct {
	ledger Ledger
	now    func() time.Time
}

func NewPlanner(ledger Ledger) *Planner {
	return &Planner{ledger: ledger, now: time.Now}
}

// ExpiringWithin reports active rentals expiring within the given window,
// soonest first. Already-overdue rentals that have not yet been swept are
// included with negative minutes remaining.
func (p *Planner) ExpiringWithin(ctx context.Context, windowMinutes int) ([]ExpiryInfo, error) {
	rentals, err := p.ledger.ActiveRentals(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now()
	infos := make([]ExpiryInfo, 0, len(rentals))
	for _, r := range rentals {
		minutes := int(r.ExpiresAt.Sub(now).Minutes())
		if minutes > windowMinutes {
			continue
		}
		infos = append(infos, ExpiryInfo{
			RentalID:         r.RentalID,
			AccountID:        r.AccountID,
			Username:         r.Username,
			Website:          r.Website,
			ExpiresAt:        r.ExpiresAt,
			MinutesRemaining: minutes,
			Urgency:          urgency(minutes),
			ShouldResetNow:   minutes <= resetNowWindow,
		})
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].MinutesRemaining < infos[j].MinutesRemaining
	})
	return infos, nil
}

func urgency(minutesRemaining int) string {
	switch {
	case minutesRemaining <= criticalWindow:
		return UrgencyCritical
	case minutesRemaining <= highWindow:
		return UrgencyHigh
	default:
		return UrgencyMedium
	}
}

// BuildWorkList orders the enabled accounts for a reset pass. Accounts
// whose rental needs an imminent reset come first; everything else keeps
// the caller's original relative order behind them. The sort is stable so
// repeated calls with the same inputs produce the same list.
func (p *Planner) BuildWorkList(ctx context.Context, enabled []configstore.AccountConfig) ([]WorkItem, error) {
	expiring, err := p.ExpiringWithin(ctx, DefaultWindowMinutes)
	if err != nil {
		return nil, err
	}

	urgent := make(map[string]bool, len(expiring))
	for _, info := range expiring {
		if info.ShouldResetNow {
			urgent[info.Website+"\x00"+info.Username] = true
		}
	}

	items := make([]WorkItem, 0, len(enabled))
	for _, acct := range enabled {
		item := WorkItem{Account: acct, Priority: 2, Reason: "regular reset"}
		if urgent[acct.Website+"\x00"+acct.Username] {
			item.Priority = 1
			item.Reason = "rental expiring soon"
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority < items[j].Priority
	})
	return items, nil
}
