package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/toolrental/rentkeeper/internal/metrics"
)

// ExpirySweeper flips expired rentals back to available.
type ExpirySweeper interface {
	ReconcileExpired(ctx context.Context) (int64, error)
}

// ReconcileManager periodically sweeps expired rentals. Listings already
// reconcile on read; this keeps the pool honest during quiet periods so
// dashboards and the scheduler see fresh state.
type ReconcileManager struct {
	sweeper  ExpirySweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewReconcileManager creates a new reconcile manager
func NewReconcileManager(sweeper ExpirySweeper, logger *slog.Logger, interval time.Duration) *ReconcileManager {
	return &ReconcileManager{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep. Blocks until Stop is called or the
// context is cancelled.
func (rm *ReconcileManager) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	rm.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			rm.runSweep(ctx)
		case <-rm.stopCh:
			rm.logger.Info("reconcile manager stopped")
			return
		case <-ctx.Done():
			rm.logger.Info("reconcile manager context cancelled")
			return
		}
	}
}

func (rm *ReconcileManager) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	flipped, err := rm.sweeper.ReconcileExpired(sweepCtx)
	if err != nil {
		rm.logger.Error("expired rental sweep failed", slog.Any("error", err))
		return
	}

	if flipped > 0 {
		metrics.ExpiredSweeps.Add(float64(flipped))
		rm.logger.Info("expired rental sweep completed", slog.Int64("accounts_returned", flipped))
	}
}

// Stop signals the reconcile manager to stop
func (rm *ReconcileManager) Stop() {
	close(rm.stopCh)
}
