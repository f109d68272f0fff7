package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/toolrental/rentkeeper/internal/actor"
	"github.com/toolrental/rentkeeper/internal/configstore"
	"github.com/toolrental/rentkeeper/internal/metrics"
	"github.com/toolrental/rentkeeper/internal/models"
)

// Store is the persistence surface the orchestrator mutates.
type Store interface {
	GetWebsite(ctx context.Context, name string) (*models.Website, error)
	RegisterAccount(ctx context.Context, websiteName, username, password, email string) (string, error)
	SetPassword(ctx context.Context, accountID, oldPassword, newPassword, outcome, message string) error
	LogReset(ctx context.Context, accountID, status, message string) error
	LogError(ctx context.Context, accountID, errType, message string) error
	MarkException(ctx context.Context, accountID, reason string) error
}

// ResetOutcome is the result of one account's reset attempt.
type ResetOutcome struct {
	Username string
	Website  string
	Success  bool
	Error    string
}

// Notifier delivers reset outcome notifications. Implementations must
// tolerate being called once per account.
type Notifier interface {
	NotifyResetOutcome(ctx context.Context, outcome ResetOutcome) error
}

// BatchResult aggregates one reset pass.
type BatchResult struct {
	Total      int
	Successful int
	Failed     int
}

// Orchestrator drives password resets: one attempt per account, strictly
// sequential, in priority order. Running multiple browser sessions
// against the same hostile site concurrently raises detection risk, so
// there is no fan-out.
type Orchestrator struct {
	store    Store
	config   configstore.Repository
	planner  *Planner
	newActor actor.Factory
	classify Classifier
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrchestrator(
	store Store,
	config configstore.Repository,
	planner *Planner,
	newActor actor.Factory,
	classify Classifier,
	notifier Notifier,
	logger *slog.Logger,
) *Orchestrator {
	if classify == nil {
		classify = DefaultClassifier
	}
	return &Orchestrator{
		store:    store,
		config:   config,
		planner:  planner,
		newActor: newActor,
		classify: classify,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// ResetAll runs one full reset pass over the enabled accounts in priority
// order. A single account's failure never aborts the batch.
func (o *Orchestrator) ResetAll(ctx context.Context) (*BatchResult, error) {
	cfg, err := o.config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts config: %w", err)
	}

	enabled := cfg.Enabled()
	items, err := o.planner.BuildWorkList(ctx, enabled)
	if err != nil {
		// A ledger outage downgrades the pass to plain order rather than
		// skipping it.
		o.logger.Warn("work list build failed, falling back to config order", slog.Any("error", err))
		items = make([]WorkItem, 0, len(enabled))
		for _, acct := range enabled {
			items = append(items, WorkItem{Account: acct, Priority: 2, Reason: "regular reset"})
		}
	}

	result := &BatchResult{Total: len(items)}
	for _, item := range items {
		o.logger.Info("processing account",
			slog.String("username", item.Account.Username),
			slog.String("website", item.Account.Website),
			slog.Int("priority", item.Priority),
			slog.String("reason", item.Reason),
		)

		err := o.ResetAccount(ctx, cfg, item.Account)
		if err != nil {
			result.Failed++
			o.logger.Error("reset failed",
				slog.String("username", item.Account.Username),
				slog.String("website", item.Account.Website),
				slog.Any("error", err),
			)
		} else {
			result.Successful++
		}

		if o.notifier != nil && cfg.Settings.EmailNotifications {
			outcome := ResetOutcome{
				Username: item.Account.Username,
				Website:  item.Account.Website,
				Success:  err == nil,
			}
			if err != nil {
				outcome.Error = err.Error()
			}
			if nerr := o.notifier.NotifyResetOutcome(ctx, outcome); nerr != nil {
				o.logger.Warn("notification failed", slog.Any("error", nerr))
			}
		}
	}

	o.logger.Info("reset pass complete",
		slog.Int("total", result.Total),
		slog.Int("successful", result.Successful),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// ResetAccount runs the state machine for one account: resolve config,
// register if unknown, drive the actor, then persist the outcome. The
// actor session is released on every exit path.
func (o *Orchestrator) ResetAccount(ctx context.Context, cfg *configstore.Config, acct configstore.AccountConfig) error {
	website, err := o.store.GetWebsite(ctx, acct.Website)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Configuration error. The account was never touched, so there
			// is nothing to mark or log against it.
			return fmt.Errorf("website %q not configured: %w", acct.Website, models.ErrWebsiteNotFound)
		}
		return fmt.Errorf("resolve website %q: %w", acct.Website, err)
	}

	accountID, err := o.store.RegisterAccount(ctx, acct.Website, acct.Username, acct.CurrentPassword, acct.Email)
	if err != nil {
		return fmt.Errorf("register account: %w", err)
	}

	newPassword, attemptErr := o.attempt(ctx, website.URL, cfg.Settings.Headless, acct)
	if attemptErr == nil {
		metrics.ResetsTotal.WithLabelValues(models.ResetSuccess).Inc()
		return o.recordSuccess(ctx, cfg, acct, accountID, newPassword)
	}

	metrics.ResetsTotal.WithLabelValues(models.ResetFailed).Inc()
	o.recordFailure(ctx, accountID, attemptErr)
	return attemptErr
}

// attempt drives one browser session through login and password change.
// Close is deferred immediately after the actor is created so the session
// is torn down no matter where the attempt fails.
func (o *Orchestrator) attempt(ctx context.Context, siteURL string, headless bool, acct configstore.AccountConfig) (string, error) {
	act, err := o.newActor(siteURL, headless)
	if err != nil {
		return "", fmt.Errorf("create actor: %w", err)
	}
	defer func() {
		if cerr := act.Close(); cerr != nil {
			o.logger.Warn("actor close failed", slog.Any("error", cerr))
		}
	}()

	if err := act.Open(ctx); err != nil {
		return "", err
	}
	if err := act.Authenticate(ctx, actor.Credentials{Username: acct.Username, Password: acct.CurrentPassword}); err != nil {
		return "", err
	}
	return act.ChangePassword(ctx)
}

// recordSuccess persists the rotation and writes the new password back to
// the externally-owned accounts config so the next pass logs in with it.
func (o *Orchestrator) recordSuccess(ctx context.Context, cfg *configstore.Config, acct configstore.AccountConfig, accountID, newPassword string) error {
	err := o.store.SetPassword(ctx, accountID, acct.CurrentPassword, newPassword, models.ResetSuccess, "password rotated")
	if err != nil {
		return fmt.Errorf("persist new password: %w", err)
	}

	if !cfg.UpdatePassword(acct.Website, acct.Username, newPassword) {
		o.logger.Warn("account missing from config during write-back",
			slog.String("username", acct.Username),
			slog.String("website", acct.Website),
		)
	}
	if err := o.config.Save(ctx, cfg); err != nil {
		return fmt.Errorf("write back accounts config: %w", err)
	}

	o.logger.Info("password rotated",
		slog.String("username", acct.Username),
		slog.String("website", acct.Website),
	)
	return nil
}

// recordFailure logs the failed attempt and classifies it. A credential
// rejection means the stored password is stale, most likely changed
// out-of-band by a renting customer, so the account is parked as an
// exception until an operator clears it. Anything else stays untouched
// for the next pass to retry.
func (o *Orchestrator) recordFailure(ctx context.Context, accountID string, attemptErr error) {
	errText := attemptErr.Error()

	if err := o.store.LogReset(ctx, accountID, models.ResetFailed, errText); err != nil {
		o.logger.Error("record failed attempt", slog.Any("error", err))
	}
	if err := o.store.LogError(ctx, accountID, "reset", errText); err != nil {
		o.logger.Error("record error log", slog.Any("error", err))
	}

	if o.classify(errText) == FailureException {
		metrics.ExceptionsTotal.Inc()
		if err := o.store.MarkException(ctx, accountID, errText); err != nil {
			o.logger.Error("mark exception", slog.Any("error", err))
		}
	}
}
