package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/toolrental/rentkeeper/internal/database"
	"github.com/toolrental/rentkeeper/internal/models"
)

// SQLiteStore is the embedded primary store.
type SQLiteStore struct {
	db     *database.SQLite
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a store over an open SQLite database.
func NewSQLiteStore(db *database.SQLite, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// withTx runs fn inside a transaction on the writer connection.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ===================== Websites =====================

func (s *SQLiteStore) AddWebsite(ctx context.Context, name, url string, validityHours int, description string) (string, error) {
	query := `
		INSERT INTO websites (id, name, url, validity_hours, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`

	_, err := s.db.Writer.ExecContext(ctx, query,
		uuid.New().String(), name, url, validityHours, description, encodeTime(s.now()),
	)
	if err != nil {
		return "", database.MapSQLiteError(err)
	}

	var id string
	err = s.db.Writer.QueryRowContext(ctx, `SELECT id FROM websites WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return "", database.MapSQLiteError(err)
	}

	return id, nil
}

// PutWebsite inserts a website under a caller-supplied id. Replica path;
// idempotent by name like AddWebsite.
func (s *SQLiteStore) PutWebsite(ctx context.Context, id, name, url string, validityHours int, description string) error {
	_, err := s.db.Writer.ExecContext(ctx, `
		INSERT INTO websites (id, name, url, validity_hours, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		id, name, url, validityHours, description, encodeTime(s.now()),
	)
	return database.MapSQLiteError(err)
}

func (s *SQLiteStore) GetWebsite(ctx context.Context, name string) (*models.Website, error) {
	query := `
		SELECT id, name, url, validity_hours, description, created_at
		FROM websites WHERE name = ?
	`
	return scanWebsite(s.db.Reader.QueryRowContext(ctx, query, name))
}

func (s *SQLiteStore) ListWebsites(ctx context.Context) ([]*models.Website, error) {
	query := `
		SELECT id, name, url, validity_hours, description, created_at
		FROM websites ORDER BY name
	`

	rows, err := s.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}
	defer rows.Close()

	websites := make([]*models.Website, 0)
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, err
		}
		websites = append(websites, w)
	}
	return websites, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebsite(scanner rowScanner) (*models.Website, error) {
	var w models.Website
	var createdAt string

	err := scanner.Scan(&w.ID, &w.Name, &w.URL, &w.ValidityHours, &w.Description, &createdAt)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}

	if w.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// ===================== Accounts =====================

// RegisterAccount is idempotent: an existing (website, username) pair is
// returned unchanged, in particular without touching its password.
func (s *SQLiteStore) RegisterAccount(ctx context.Context, websiteName, username, password, email string) (string, error) {
	website, err := s.GetWebsite(ctx, websiteName)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrWebsiteNotFound
		}
		return "", err
	}

	var id string
	err = s.db.Writer.QueryRowContext(ctx,
		`SELECT id FROM accounts WHERE website_id = ? AND username = ?`,
		website.ID, username,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", database.MapSQLiteError(err)
	}

	id = uuid.New().String()
	_, err = s.db.Writer.ExecContext(ctx, `
		INSERT INTO accounts (id, website_id, username, email, current_password, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, website.ID, username, email, password, models.AccountAvailable, encodeTime(s.now()),
	)
	if err != nil {
		return "", database.MapSQLiteError(err)
	}

	return id, nil
}

// PutAccount inserts an account under a caller-supplied id. Replica
// path; an existing (website, username) pair is left untouched.
func (s *SQLiteStore) PutAccount(ctx context.Context, id, websiteName, username, password, email string) error {
	website, err := s.GetWebsite(ctx, websiteName)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrWebsiteNotFound
		}
		return err
	}

	_, err = s.db.Writer.ExecContext(ctx, `
		INSERT INTO accounts (id, website_id, username, email, current_password, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(website_id, username) DO NOTHING`,
		id, website.ID, username, email, password, models.AccountAvailable, encodeTime(s.now()),
	)
	return database.MapSQLiteError(err)
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, website_id, username, email, current_password, status,
		       rented_at, available_at, last_reset,
		       failed_login_attempts, last_failed_login, exception_reason, created_at
		FROM accounts WHERE id = ?
	`
	return scanAccount(s.db.Reader.QueryRowContext(ctx, query, id))
}

func scanAccount(scanner rowScanner) (*models.Account, error) {
	var a models.Account
	var rentedAt, availableAt, lastReset, lastFailed sql.NullString
	var createdAt string

	err := scanner.Scan(
		&a.ID, &a.WebsiteID, &a.Username, &a.Email, &a.CurrentPassword, &a.Status,
		&rentedAt, &availableAt, &lastReset,
		&a.FailedLoginAttempts, &lastFailed, &a.ExceptionReason, &createdAt,
	)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}

	if a.RentedAt, err = decodeTimePtr(rentedAt); err != nil {
		return nil, err
	}
	if a.AvailableAt, err = decodeTimePtr(availableAt); err != nil {
		return nil, err
	}
	if a.LastReset, err = decodeTimePtr(lastReset); err != nil {
		return nil, err
	}
	if a.LastFailedLogin, err = decodeTimePtr(lastFailed); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetPassword overwrites the current password and appends a history entry.
// It performs no status change; callers only invoke it on a confirmed
// outcome (see the reset orchestrator).
func (s *SQLiteStore) SetPassword(ctx context.Context, accountID, oldPassword, newPassword, outcome, message string) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE accounts SET current_password = ?, last_reset = ? WHERE id = ?`,
			newPassword, encodeTime(now), accountID,
		)
		if err != nil {
			return database.MapSQLiteError(err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return models.ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO password_history (id, account_id, old_password, new_password, reset_date, status, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), accountID, oldPassword, newPassword, encodeTime(now), outcome, message,
		)
		return database.MapSQLiteError(err)
	})
}

// LogReset appends a history entry without touching the stored password.
func (s *SQLiteStore) LogReset(ctx context.Context, accountID, status, message string) error {
	_, err := s.db.Writer.ExecContext(ctx, `
		INSERT INTO password_history (id, account_id, reset_date, status, message)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), accountID, encodeTime(s.now()), status, message,
	)
	return database.MapSQLiteError(err)
}

// MarkException flags the account and increments the failure counter.
// Repeated calls keep incrementing; the counter is cumulative evidence,
// not a lockout threshold.
func (s *SQLiteStore) MarkException(ctx context.Context, accountID, reason string) error {
	result, err := s.db.Writer.ExecContext(ctx, `
		UPDATE accounts
		SET status = ?, exception_reason = ?, last_failed_login = ?,
		    failed_login_attempts = failed_login_attempts + 1
		WHERE id = ?`,
		models.AccountException, reason, encodeTime(s.now()), accountID,
	)
	if err != nil {
		return database.MapSQLiteError(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearException is the only sanctioned way out of the exception state:
// an operator supplies the verified correct password.
func (s *SQLiteStore) ClearException(ctx context.Context, accountID, correctPassword string) error {
	result, err := s.db.Writer.ExecContext(ctx, `
		UPDATE accounts
		SET status = ?, exception_reason = '', failed_login_attempts = 0,
		    last_failed_login = NULL, current_password = ?, available_at = ?
		WHERE id = ?`,
		models.AccountAvailable, correctPassword, encodeTime(s.now()), accountID,
	)
	if err != nil {
		return database.MapSQLiteError(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListExceptions(ctx context.Context) ([]*models.ExceptionAccount, error) {
	query := `
		SELECT a.id, w.name, a.username, a.email, a.exception_reason,
		       a.failed_login_attempts, a.last_failed_login
		FROM accounts a
		JOIN websites w ON a.website_id = w.id
		WHERE a.status = ?
		ORDER BY a.last_failed_login DESC
	`

	rows, err := s.db.Reader.QueryContext(ctx, query, models.AccountException)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.ExceptionAccount, 0)
	for rows.Next() {
		var e models.ExceptionAccount
		var lastFailed sql.NullString
		if err := rows.Scan(&e.ID, &e.Website, &e.Username, &e.Email, &e.ExceptionReason, &e.FailedAttempts, &lastFailed); err != nil {
			return nil, database.MapSQLiteError(err)
		}
		if e.LastFailedLogin, err = decodeTimePtr(lastFailed); err != nil {
			return nil, err
		}
		accounts = append(accounts, &e)
	}
	return accounts, rows.Err()
}
