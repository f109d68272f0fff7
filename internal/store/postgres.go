package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolrental/rentkeeper/internal/database"
	"github.com/toolrental/rentkeeper/internal/models"
)

// PostgresStore is the cloud mirror. Its schema lives in the managed cloud
// project and is provisioned out-of-band, mirroring the embedded schema.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresStore creates a store over an open mirror connection pool.
func NewPostgresStore(db *database.Postgres, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   db.Pool,
		logger: logger,
		now:    time.Now,
	}
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ===================== Websites =====================

func (s *PostgresStore) AddWebsite(ctx context.Context, name, url string, validityHours int, description string) (string, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO websites (id, name, url, validity_hours, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO NOTHING`,
		uuid.New().String(), name, url, validityHours, description, s.now().UTC(),
	)
	if err != nil {
		return "", database.MapPostgresError(err)
	}

	var id string
	err = s.pool.QueryRow(ctx, `SELECT id FROM websites WHERE name = $1`, name).Scan(&id)
	if err != nil {
		return "", database.MapPostgresError(err)
	}
	return id, nil
}

// PutWebsite inserts a website under a caller-supplied id. Replica path;
// idempotent by name like AddWebsite.
func (s *PostgresStore) PutWebsite(ctx context.Context, id, name, url string, validityHours int, description string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO websites (id, name, url, validity_hours, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO NOTHING`,
		id, name, url, validityHours, description, s.now().UTC(),
	)
	return database.MapPostgresError(err)
}

func (s *PostgresStore) GetWebsite(ctx context.Context, name string) (*models.Website, error) {
	var w models.Website
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, url, validity_hours, description, created_at
		FROM websites WHERE name = $1`, name,
	).Scan(&w.ID, &w.Name, &w.URL, &w.ValidityHours, &w.Description, &w.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &w, nil
}

func (s *PostgresStore) ListWebsites(ctx context.Context) ([]*models.Website, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, url, validity_hours, description, created_at
		FROM websites ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}
	defer rows.Close()

	websites := make([]*models.Website, 0)
	for rows.Next() {
		var w models.Website
		if err := rows.Scan(&w.ID, &w.Name, &w.URL, &w.ValidityHours, &w.Description, &w.CreatedAt); err != nil {
			return nil, database.MapPostgresError(err)
		}
		websites = append(websites, &w)
	}
	return websites, rows.Err()
}

// ===================== Accounts =====================

func (s *PostgresStore) RegisterAccount(ctx context.Context, websiteName, username, password, email string) (string, error) {
	website, err := s.GetWebsite(ctx, websiteName)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrWebsiteNotFound
		}
		return "", err
	}

	var id string
	err = s.pool.QueryRow(ctx,
		`SELECT id FROM accounts WHERE website_id = $1 AND username = $2`,
		website.ID, username,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", database.MapPostgresError(err)
	}

	id = uuid.New().String()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO accounts (id, website_id, username, email, current_password, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, website.ID, username, email, password, models.AccountAvailable, s.now().UTC(),
	)
	if err != nil {
		return "", database.MapPostgresError(err)
	}
	return id, nil
}

// PutAccount inserts an account under a caller-supplied id. Replica
// path; an existing (website, username) pair is left untouched.
func (s *PostgresStore) PutAccount(ctx context.Context, id, websiteName, username, password, email string) error {
	website, err := s.GetWebsite(ctx, websiteName)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrWebsiteNotFound
		}
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO accounts (id, website_id, username, email, current_password, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (website_id, username) DO NOTHING`,
		id, website.ID, username, email, password, models.AccountAvailable, s.now().UTC(),
	)
	return database.MapPostgresError(err)
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var a models.Account
	err := s.pool.QueryRow(ctx, `
		SELECT id, website_id, username, email, current_password, status,
		       rented_at, available_at, last_reset,
		       failed_login_attempts, last_failed_login, exception_reason, created_at
		FROM accounts WHERE id = $1`, id,
	).Scan(
		&a.ID, &a.WebsiteID, &a.Username, &a.Email, &a.CurrentPassword, &a.Status,
		&a.RentedAt, &a.AvailableAt, &a.LastReset,
		&a.FailedLoginAttempts, &a.LastFailedLogin, &a.ExceptionReason, &a.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

func (s *PostgresStore) SetPassword(ctx context.Context, accountID, oldPassword, newPassword, outcome, message string) error {
	now := s.now().UTC()
	return s.withTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx,
			`UPDATE accounts SET current_password = $1, last_reset = $2 WHERE id = $3`,
			newPassword, now, accountID,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO password_history (id, account_id, old_password, new_password, reset_date, status, message)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New().String(), accountID, oldPassword, newPassword, now, outcome, message,
		)
		return database.MapPostgresError(err)
	})
}

func (s *PostgresStore) LogReset(ctx context.Context, accountID, status, message string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_history (id, account_id, reset_date, status, message)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), accountID, s.now().UTC(), status, message,
	)
	return database.MapPostgresError(err)
}

func (s *PostgresStore) MarkException(ctx context.Context, accountID, reason string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET status = $1, exception_reason = $2, last_failed_login = $3,
		    failed_login_attempts = failed_login_attempts + 1
		WHERE id = $4`,
		models.AccountException, reason, s.now().UTC(), accountID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ClearException(ctx context.Context, accountID, correctPassword string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET status = $1, exception_reason = '', failed_login_attempts = 0,
		    last_failed_login = NULL, current_password = $2, available_at = $3
		WHERE id = $4`,
		models.AccountAvailable, correctPassword, s.now().UTC(), accountID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListExceptions(ctx context.Context) ([]*models.ExceptionAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, w.name, a.username, a.email, a.exception_reason,
		       a.failed_login_attempts, a.last_failed_login
		FROM accounts a
		JOIN websites w ON a.website_id = w.id
		WHERE a.status = $1
		ORDER BY a.last_failed_login DESC`,
		models.AccountException,
	)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.ExceptionAccount, 0)
	for rows.Next() {
		var e models.ExceptionAccount
		if err := rows.Scan(&e.ID, &e.Website, &e.Username, &e.Email, &e.ExceptionReason, &e.FailedAttempts, &e.LastFailedLogin); err != nil {
			return nil, database.MapPostgresError(err)
		}
		accounts = append(accounts, &e)
	}
	return accounts, rows.Err()
}

// ===================== Rentals =====================

func (s *PostgresStore) ReconcileExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	var flipped int64

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE accounts SET status = $1, available_at = $2
			WHERE status = $3 AND available_at IS NOT NULL AND available_at < $2`,
			models.AccountAvailable, now, models.AccountRented,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}
		flipped = result.RowsAffected()

		_, err = tx.Exec(ctx, `
			UPDATE rentals SET status = $1
			WHERE status = $2 AND expires_at < $3`,
			models.RentalExpired, models.RentalActive, now,
		)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return 0, err
	}
	return flipped, nil
}

func (s *PostgresStore) ListAvailable(ctx context.Context, websiteName string) ([]*models.AvailableAccount, error) {
	if _, err := s.ReconcileExpired(ctx); err != nil {
		return nil, fmt.Errorf("reconcile before listing: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.id, w.name, a.username, a.email, w.validity_hours, a.last_reset
		FROM accounts a
		JOIN websites w ON a.website_id = w.id
		WHERE w.name = $1 AND a.status = $2
		ORDER BY a.last_reset ASC NULLS FIRST`,
		websiteName, models.AccountAvailable,
	)
	if err != nil {
		return nil, fmt.Errorf("list available accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.AvailableAccount, 0)
	for rows.Next() {
		var a models.AvailableAccount
		if err := rows.Scan(&a.ID, &a.Website, &a.Username, &a.Email, &a.ValidityHours, &a.LastReset); err != nil {
			return nil, database.MapPostgresError(err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) Rent(ctx context.Context, accountID string, customer models.Customer) (*models.RentalDetails, error) {
	now := s.now().UTC()
	var details *models.RentalDetails

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var username, password, email, status, website, url string
		var validityHours int

		err := tx.QueryRow(ctx, `
			SELECT a.username, a.current_password, a.email, a.status, w.name, w.url, w.validity_hours
			FROM accounts a
			JOIN websites w ON a.website_id = w.id
			WHERE a.id = $1
			FOR UPDATE OF a`,
			accountID,
		).Scan(&username, &password, &email, &status, &website, &url, &validityHours)
		if err != nil {
			return database.MapPostgresError(err)
		}

		if status != models.AccountAvailable {
			return models.ErrNotAvailable
		}

		expiresAt := now.Add(time.Duration(validityHours) * time.Hour)
		rentalID := uuid.New().String()

		_, err = tx.Exec(ctx, `
			INSERT INTO rentals (id, account_id, customer_name, customer_email, customer_phone, rented_at, expires_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rentalID, accountID, customer.Name, customer.Email, customer.Phone,
			now, expiresAt, models.RentalActive,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE accounts SET status = $1, rented_at = $2, available_at = $3
			WHERE id = $4`,
			models.AccountRented, now, expiresAt, accountID,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}

		details = &models.RentalDetails{
			RentalID:      rentalID,
			AccountID:     accountID,
			Website:       website,
			URL:           url,
			Username:      username,
			Password:      password,
			Email:         email,
			ValidityHours: validityHours,
			ExpiresAt:     expiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// PutRental replays a rental minted elsewhere: same rental id, same
// expiry window. The availability re-check still applies, so a drifted
// replica reports ErrNotAvailable instead of double-renting.
func (s *PostgresStore) PutRental(ctx context.Context, rental *models.RentalDetails, customer models.Customer) error {
	rentedAt := rental.ExpiresAt.Add(-time.Duration(rental.ValidityHours) * time.Hour)

	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rentals (id, account_id, customer_name, customer_email, customer_phone, rented_at, expires_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rental.RentalID, rental.AccountID, customer.Name, customer.Email, customer.Phone,
			rentedAt, rental.ExpiresAt, models.RentalActive,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}

		result, err := tx.Exec(ctx, `
			UPDATE accounts SET status = $1, rented_at = $2, available_at = $3
			WHERE id = $4 AND status = $5`,
			models.AccountRented, rentedAt, rental.ExpiresAt,
			rental.AccountID, models.AccountAvailable,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotAvailable
		}
		return nil
	})
}

func (s *PostgresStore) Return(ctx context.Context, accountID string) error {
	now := s.now().UTC()

	return s.withTx(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&status)
		if err != nil {
			return database.MapPostgresError(err)
		}

		if status == models.AccountRented {
			_, err = tx.Exec(ctx,
				`UPDATE accounts SET status = $1, available_at = $2 WHERE id = $3`,
				models.AccountAvailable, now, accountID,
			)
			if err != nil {
				return database.MapPostgresError(err)
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE rentals SET status = $1, returned_at = $2
			WHERE account_id = $3 AND status = $4`,
			models.RentalCompleted, now, accountID, models.RentalActive,
		)
		return database.MapPostgresError(err)
	})
}

func (s *PostgresStore) ActiveRentals(ctx context.Context) ([]*models.ActiveRental, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.account_id, a.username, w.name, r.customer_name, r.rented_at, r.expires_at
		FROM rentals r
		JOIN accounts a ON r.account_id = a.id
		JOIN websites w ON a.website_id = w.id
		WHERE r.status = $1
		ORDER BY r.expires_at ASC`,
		models.RentalActive,
	)
	if err != nil {
		return nil, fmt.Errorf("list active rentals: %w", err)
	}
	defer rows.Close()

	rentals := make([]*models.ActiveRental, 0)
	for rows.Next() {
		var r models.ActiveRental
		if err := rows.Scan(&r.RentalID, &r.AccountID, &r.Username, &r.Website, &r.CustomerName, &r.RentedAt, &r.ExpiresAt); err != nil {
			return nil, database.MapPostgresError(err)
		}
		rentals = append(rentals, &r)
	}
	return rentals, rows.Err()
}

func (s *PostgresStore) AccountStatus(ctx context.Context, accountID string) (*models.AccountStatus, error) {
	var st models.AccountStatus
	var customerName *string

	err := s.pool.QueryRow(ctx, `
		SELECT a.id, a.username, a.status, w.name, r.expires_at, r.customer_name
		FROM accounts a
		JOIN websites w ON a.website_id = w.id
		LEFT JOIN rentals r ON r.account_id = a.id AND r.status = $1
		WHERE a.id = $2`,
		models.RentalActive, accountID,
	).Scan(&st.ID, &st.Username, &st.Status, &st.Website, &st.ExpiresAt, &customerName)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if customerName != nil {
		st.CustomerName = *customerName
	}
	return &st, nil
}

// ===================== History and reporting =====================

func (s *PostgresStore) PasswordHistory(ctx context.Context, accountID string, limit int) ([]*models.PasswordHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, old_password, new_password, reset_date, status, message
		FROM password_history
		WHERE account_id = $1
		ORDER BY reset_date DESC
		LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("password history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.PasswordHistoryEntry, 0)
	for rows.Next() {
		var e models.PasswordHistoryEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.OldPassword, &e.NewPassword, &e.ResetDate, &e.Status, &e.Message); err != nil {
			return nil, database.MapPostgresError(err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) LogError(ctx context.Context, accountID, errType, message string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO error_logs (id, account_id, error_type, error_message, timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), accountID, errType, message, s.now().UTC(),
	)
	return database.MapPostgresError(err)
}

func (s *PostgresStore) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM accounts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, database.MapPostgresError(err)
		}
		stats.TotalAccounts += count
		switch status {
		case models.AccountAvailable:
			stats.AvailableAccounts = count
		case models.AccountRented:
			stats.RentedAccounts = count
		case models.AccountException:
			stats.ExceptionAccounts = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM websites`).Scan(&stats.TotalWebsites); err != nil {
		return nil, database.MapPostgresError(err)
	}

	now := s.now().UTC()
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rentals WHERE status = $1 AND expires_at > $2`,
		models.RentalActive, now,
	).Scan(&stats.ActiveRentals); err != nil {
		return nil, database.MapPostgresError(err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM password_history WHERE status = $1 AND reset_date >= $2`,
		models.ResetSuccess, dayStart,
	).Scan(&stats.ResetsToday); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return stats, nil
}

func (s *PostgresStore) AccountStats(ctx context.Context, accountID string) (*models.AccountStats, error) {
	stats := &models.AccountStats{}

	err := s.pool.QueryRow(ctx, `
		SELECT a.username, a.email, a.last_reset, a.status, w.name
		FROM accounts a
		JOIN websites w ON a.website_id = w.id
		WHERE a.id = $1`,
		accountID,
	).Scan(&stats.Username, &stats.Email, &stats.LastReset, &stats.Status, &stats.Website)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = $1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = $2 THEN 1 ELSE 0 END), 0)
		FROM password_history WHERE account_id = $3`,
		models.ResetSuccess, models.ResetFailed, accountID,
	).Scan(&stats.TotalResets, &stats.SuccessfulResets, &stats.FailedResets)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return stats, nil
}
