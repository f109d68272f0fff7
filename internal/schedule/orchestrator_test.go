package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolrental/rentkeeper/internal/actor"
	"github.com/toolrental/rentkeeper/internal/configstore"
	"github.com/toolrental/rentkeeper/internal/models"
)

type mockStore struct {
	GetWebsiteFunc      func(ctx context.Context, name string) (*models.Website, error)
	RegisterAccountFunc func(ctx context.Context, websiteName, username, password, email string) (string, error)
	SetPasswordFunc     func(ctx context.Context, accountID, oldPassword, newPassword, outcome, message string) error
	LogResetFunc        func(ctx context.Context, accountID, status, message string) error
	LogErrorFunc        func(ctx context.Context, accountID, errType, message string) error
	MarkExceptionFunc   func(ctx context.Context, accountID, reason string) error
}

func (m *mockStore) GetWebsite(ctx context.Context, name string) (*models.Website, error) {
	return m.GetWebsiteFunc(ctx, name)
}

func (m *mockStore) RegisterAccount(ctx context.Context, websiteName, username, password, email string) (string, error) {
	return m.RegisterAccountFunc(ctx, websiteName, username, password, email)
}

func (m *mockStore) SetPassword(ctx context.Context, accountID, oldPassword, newPassword, outcome, message string) error {
	if m.SetPasswordFunc == nil {
		return nil
	}
	return m.SetPasswordFunc(ctx, accountID, oldPassword, newPassword, outcome, message)
}

func (m *mockStore) LogReset(ctx context.Context, accountID, status, message string) error {
	if m.LogResetFunc == nil {
		return nil
	}
	return m.LogResetFunc(ctx, accountID, status, message)
}

func (m *mockStore) LogError(ctx context.Context, accountID, errType, message string) error {
	if m.LogErrorFunc == nil {
		return nil
	}
	return m.LogErrorFunc(ctx, accountID, errType, message)
}

func (m *mockStore) MarkException(ctx context.Context, accountID, reason string) error {
	if m.MarkExceptionFunc == nil {
		return nil
	}
	return m.MarkExceptionFunc(ctx, accountID, reason)
}

type fakeActor struct {
	openErr     error
	authErr     error
	newPassword string
	changeErr   error
	closed      int
}

func (f *fakeActor) Open(ctx context.Context) error { return f.openErr }

func (f *fakeActor) Authenticate(ctx context.Context, creds actor.Credentials) error {
	return f.authErr
}

func (f *fakeActor) ChangePassword(ctx context.Context) (string, error) {
	return f.newPassword, f.changeErr
}

func (f *fakeActor) Close() error {
	f.closed++
	return nil
}

func fakeFactory(act *fakeActor) actor.Factory {
	return func(siteURL string, headless bool) (actor.Actor, error) { return act, nil }
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWebsite() *models.Website {
	return &models.Website{ID: "site-1", Name: "designtool", URL: "https://designtool.example", ValidityHours: 2}
}

func emptyLedger() Ledger {
	return &mockLedger{ActiveRentalsFunc: func(ctx context.Context) ([]*models.ActiveRental, error) {
		return nil, nil
	}}
}

func testAccount() configstore.AccountConfig {
	return configstore.AccountConfig{
		Username:        "alice",
		CurrentPassword: "Old-Pass-123!",
		Website:         "designtool",
		Enabled:         true,
	}
}

func TestResetAccount_Success(t *testing.T) {
	var savedPassword, historyOutcome string
	store := &mockStore{
		GetWebsiteFunc: func(ctx context.Context, name string) (*models.Website, error) {
			return testWebsite(), nil
		},
		RegisterAccountFunc: func(ctx context.Context, websiteName, username, password, email string) (string, error) {
			return "acct-1", nil
		},
		SetPasswordFunc: func(ctx context.Context, accountID, oldPassword, newPassword, outcome, message string) error {
			assert.Equal(t, "acct-1", accountID)
			assert.Equal(t, "Old-Pass-123!", oldPassword)
			savedPassword = newPassword
			historyOutcome = outcome
			return nil
		},
	}
	act := &fakeActor{newPassword: "New-Pass-456!"}
	repo := configstore.NewMemoryRepository(&configstore.Config{
		Accounts: []configstore.AccountConfig{testAccount()},
	})

	o := NewOrchestrator(store, repo, NewPlanner(emptyLedger()), fakeFactory(act), nil, nil, testLogger())
	cfg, _ := repo.Load(context.Background())

	err := o.ResetAccount(context.Background(), cfg, testAccount())
	require.NoError(t, err)
	assert.Equal(t, "New-Pass-456!", savedPassword)
	assert.Equal(t, models.ResetSuccess, historyOutcome)
	assert.Equal(t, 1, act.closed)

	// New password written back to the externally-owned config
	reloaded, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "New-Pass-456!", reloaded.Accounts[0].CurrentPassword)
}

func TestResetAccount_MissingWebsiteLeavesStateUntouched(t *testing.T) {
	var touched bool
	store := &mockStore{
		GetWebsiteFunc: func(ctx context.Context, name string) (*models.Website, error) {
			return nil, models.ErrNotFound
		},
		RegisterAccountFunc: func(ctx context.Context, websiteName, username, password, email string) (string, error) {
			touched = true
			return "", nil
		},
		LogResetFunc: func(ctx context.Context, accountID, status, message string) error {
			touched = true
			return nil
		},
		MarkExceptionFunc: func(ctx context.Context, accountID, reason string) error {
			touched = true
			return nil
		},
	}
	repo := configstore.NewMemoryRepository(nil)

	o := NewOrchestrator(store, repo, NewPlanner(emptyLedger()), fakeFactory(&fakeActor{}), nil, nil, testLogger())

	err := o.ResetAccount(context.Background(), &configstore.Config{}, testAccount())
	require.ErrorIs(t, err, models.ErrWebsiteNotFound)
	assert.False(t, touched)
}

func TestResetAccount_CredentialRejectionMarksException(t *testing.T) {
	var marked, loggedFailed bool
	store := &mockStore{
		GetWebsiteFunc: func(ctx context.Context, name string) (*models.Website, error) {
			return testWebsite(), nil
		},
		RegisterAccountFunc: func(ctx context.Context, websiteName, username, password, email string) (string, error) {
			return "acct-1", nil
		},
		LogResetFunc: func(ctx context.Context, accountID, status, message string) error {
			assert.Equal(t, models.ResetFailed, status)
			loggedFailed = true
			return nil
		},
		MarkExceptionFunc: func(ctx context.Context, accountID, reason string) error {
			assert.Equal(t, "acct-1", accountID)
			assert.Contains(t, reason, "correct username and password")
			marked = true
			return nil
		},
	}
	act := &fakeActor{authErr: errors.New("login failed: Please enter a correct username and password")}
	repo := configstore.NewMemoryRepository(nil)

	o := NewOrchestrator(store, repo, NewPlanner(emptyLedger()), fakeFactory(act), nil, nil, testLogger())

	err := o.ResetAccount(context.Background(), &configstore.Config{}, testAccount())
	require.Error(t, err)
	assert.True(t, loggedFailed)
	assert.True(t, marked)
	assert.Equal(t, 1, act.closed)
}

func TestResetAccount_TransientFailureLeavesStatus(t *testing.T) {
	var marked bool
	store := &mockStore{
		GetWebsiteFunc: func(ctx context.Context, name string) (*models.Website, error) {
			return testWebsite(), nil
		},
		RegisterAccountFunc: func(ctx context.Context, websiteName, username, password, email string) (string, error) {
			return "acct-1", nil
		},
		MarkExceptionFunc: func(ctx context.Context, accountID, reason string) error {
			marked = true
			return nil
		},
	}
	act := &fakeActor{openErr: errors.New("bot challenge did not clear within 1m30s")}
	repo := configstore.NewMemoryRepository(nil)

	o := NewOrchestrator(store, repo, NewPlanner(emptyLedger()), fakeFactory(act), nil, nil, testLogger())

	err := o.ResetAccount(context.Background(), &configstore.Config{}, testAccount())
	require.Error(t, err)
	assert.False(t, marked)
	assert.Equal(t, 1, act.closed)
}

func TestResetAccount_ActorClosedOnChangeFailure(t *testing.T) {
	store := &mockStore{
		GetWebsiteFunc: func(ctx context.Context, name string) (*models.Website, error) {
			return testWebsite(), nil
		},
		RegisterAccountFunc: func(ctx context.Context, websiteName, username, password, email string) (string, error) {
			return "acct-1", nil
		},
	}
	act := &fakeActor{changeErr: errors.New("could not confirm password change")}
	repo := configstore.NewMemoryRepository(nil)

	o := NewOrchestrator(store, repo, NewPlanner(emptyLedger()), fakeFactory(act), nil, nil, testLogger())

	err := o.ResetAccount(context.Background(), &configstore.Config{}, testAccount())
	require.Error(t, err)
	assert.Equal(t, 1, act.closed)
}

// Headless is a per-pass setting owned by the accounts config, not a
// daemon-level knob. The factory must receive whatever the config says.
func TestResetAccount_HeadlessComesFromConfigSettings(t *testing.T) {
	store := &mockStore{
		GetWebsiteFunc: func(ctx context.Context, name string) (*models.Website, error) {
			return testWebsite(), nil
		},
		RegisterAccountFunc: func(ctx context.Context, websiteName, username, password, email string) (string, error) {
			return "acct-1", nil
		},
	}

	var gotHeadless bool
	factory := func(siteURL string, headless bool) (actor.Actor, error) {
		gotHeadless = headless
		return &fakeActor{newPassword: "New-Pass-456!"}, nil
	}

	repo := configstore.NewMemoryRepository(&configstore.Config{
		Accounts: []configstore.AccountConfig{testAccount()},
		Settings: configstore.Settings{Headless: true},
	})
	o := NewOrchestrator(store, repo, NewPlanner(emptyLedger()), factory, nil, nil, testLogger())
	cfg, _ := repo.Load(context.Background())

	require.NoError(t, o.ResetAccount(context.Background(), cfg, testAccount()))
	assert.True(t, gotHeadless)

	cfg.Settings.Headless = false
	require.NoError(t, o.ResetAccount(context.Background(), cfg, testAccount()))
	assert.False(t, gotHeadless)
}

type recordingNotifier struct {
	outcomes []ResetOutcome
}

func (n *recordingNotifier) NotifyResetOutcome(ctx context.Context, outcome ResetOutcome) error {
	n.outcomes = append(n.outcomes, outcome)
	return nil
}

func TestResetAll_AggregatesAndNeverAborts(t *testing.T) {
	store := &mockStore{
		GetWebsiteFunc: func(ctx context.Context, name string) (*models.Website, error) {
			return testWebsite(), nil
		},
		RegisterAccountFunc: func(ctx context.Context, websiteName, username, password, email string) (string, error) {
			return "acct-" + username, nil
		},
	}

	attempts := 0
	factory := func(siteURL string, headless bool) (actor.Actor, error) {
		attempts++
		if attempts == 1 {
			return &fakeActor{authErr: errors.New("login failed")}, nil
		}
		return &fakeActor{newPassword: "New-Pass-456!"}, nil
	}

	repo := configstore.NewMemoryRepository(&configstore.Config{
		Accounts: []configstore.AccountConfig{
			{Username: "alice", CurrentPassword: "a", Website: "designtool", Enabled: true},
			{Username: "bob", CurrentPassword: "b", Website: "designtool", Enabled: true},
			{Username: "carol", CurrentPassword: "c", Website: "designtool", Enabled: false},
		},
		Settings: configstore.Settings{EmailNotifications: true},
	})
	notifier := &recordingNotifier{}

	o := NewOrchestrator(store, repo, NewPlanner(emptyLedger()), factory, nil, notifier, testLogger())

	result, err := o.ResetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total) // disabled account excluded
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)

	require.Len(t, notifier.outcomes, 2)
	assert.False(t, notifier.outcomes[0].Success)
	assert.NotEmpty(t, notifier.outcomes[0].Error)
	assert.True(t, notifier.outcomes[1].Success)
}

func TestResetAll_LedgerOutageFallsBackToConfigOrder(t *testing.T) {
	store := &mockStore{
		GetWebsiteFunc: func(ctx context.Context, name string) (*models.Website, error) {
			return testWebsite(), nil
		},
		RegisterAccountFunc: func(ctx context.Context, websiteName, username, password, email string) (string, error) {
			return "acct-" + username, nil
		},
	}
	ledger := &mockLedger{ActiveRentalsFunc: func(ctx context.Context) ([]*models.ActiveRental, error) {
		return nil, errors.New("ledger down")
	}}
	repo := configstore.NewMemoryRepository(&configstore.Config{
		Accounts: []configstore.AccountConfig{
			{Username: "alice", CurrentPassword: "a", Website: "designtool", Enabled: true},
		},
	})

	o := NewOrchestrator(store, repo, NewPlanner(ledger), fakeFactory(&fakeActor{newPassword: "New-Pass-456!"}), nil, nil, testLogger())

	result, err := o.ResetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Successful)
}
