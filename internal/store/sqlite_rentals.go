package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/toolrental/rentkeeper/internal/database"
	"github.com/toolrental/rentkeeper/internal/models"
)

// ReconcileExpired flips rented accounts whose rental window has elapsed
// back to available and marks the matching rentals expired. Availability
// is time-derived, so this must run before any availability listing.
// Idempotent: a second call with no intervening writes changes nothing.
func (s *SQLiteStore) ReconcileExpired(ctx context.Context) (int64, error) {
	now := encodeTime(s.now())
	var flipped int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE accounts SET status = ?, available_at = ?
			WHERE status = ? AND available_at IS NOT NULL AND available_at < ?`,
			models.AccountAvailable, now, models.AccountRented, now,
		)
		if err != nil {
			return database.MapSQLiteError(err)
		}
		flipped, _ = result.RowsAffected()

		_, err = tx.ExecContext(ctx, `
			UPDATE rentals SET status = ?
			WHERE status = ? AND expires_at < ?`,
			models.RentalExpired, models.RentalActive, now,
		)
		return database.MapSQLiteError(err)
	})
	if err != nil {
		return 0, err
	}

	if flipped > 0 {
		s.logger.Info("expired rentals reconciled", slog.Int64("accounts", flipped))
	}
	return flipped, nil
}

// ListAvailable reconciles first, then returns available accounts for the
// website ordered by last_reset ascending. Never-reset accounts sort
// first, which load-balances rotation across the pool.
func (s *SQLiteStore) ListAvailable(ctx context.Context, websiteName string) ([]*models.AvailableAccount, error) {
	if _, err := s.ReconcileExpired(ctx); err != nil {
		return nil, fmt.Errorf("reconcile before listing: %w", err)
	}

	query := `
		SELECT a.id, w.name, a.username, a.email, w.validity_hours, a.last_reset
		FROM accounts a
		JOIN websites w ON a.website_id = w.id
		WHERE w.name = ? AND a.status = ?
		ORDER BY a.last_reset ASC
	`

	rows, err := s.db.Reader.QueryContext(ctx, query, websiteName, models.AccountAvailable)
	if err != nil {
		return nil, fmt.Errorf("list available accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.AvailableAccount, 0)
	for rows.Next() {
		var a models.AvailableAccount
		var lastReset sql.NullString
		if err := rows.Scan(&a.ID, &a.Website, &a.Username, &a.Email, &a.ValidityHours, &lastReset); err != nil {
			return nil, database.MapSQLiteError(err)
		}
		if a.LastReset, err = decodeTimePtr(lastReset); err != nil {
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// Rent re-checks availability inside the transaction, captures the expiry
// window from the website at this instant, and hands over the credential.
// Returns ErrNotAvailable if the account is rented or in exception.
func (s *SQLiteStore) Rent(ctx context.Context, accountID string, customer models.Customer) (*models.RentalDetails, error) {
	now := s.now()
	var details *models.RentalDetails

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var username, password, email, status, website, url string
		var validityHours int

		err := tx.QueryRowContext(ctx, `
			SELECT a.username, a.current_password, a.email, a.status, w.name, w.url, w.validity_hours
			FROM accounts a
			JOIN websites w ON a.website_id = w.id
			WHERE a.id = ?`,
			accountID,
		).Scan(&username, &password, &email, &status, &website, &url, &validityHours)
		if err != nil {
			return database.MapSQLiteError(err)
		}

		if status != models.AccountAvailable {
			return models.ErrNotAvailable
		}

		expiresAt := now.Add(time.Duration(validityHours) * time.Hour)
		rentalID := uuid.New().String()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rentals (id, account_id, customer_name, customer_email, customer_phone, rented_at, expires_at, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rentalID, accountID, customer.Name, customer.Email, customer.Phone,
			encodeTime(now), encodeTime(expiresAt), models.RentalActive,
		)
		if err != nil {
			return database.MapSQLiteError(err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE accounts SET status = ?, rented_at = ?, available_at = ?
			WHERE id = ? AND status = ?`,
			models.AccountRented, encodeTime(now), encodeTime(expiresAt),
			accountID, models.AccountAvailable,
		)
		if err != nil {
			return database.MapSQLiteError(err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return models.ErrNotAvailable
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

	s.logger.Info("account rented",
		slog.String("account_id", accountID),
		slog.Time("expires_at", details.ExpiresAt),
	)
	return details, nil
}

// PutRental replays a rental minted elsewhere: same rental id, same
// expiry window. The availability re-check still applies, so a drifted
// replica reports ErrNotAvailable instead of double-renting.
func (s *SQLiteStore) PutRental(ctx context.Context, rental *models.RentalDetails, customer models.Customer) error {
	rentedAt := rental.ExpiresAt.Add(-time.Duration(rental.ValidityHours) * time.Hour)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rentals (id, account_id, customer_name, customer_email, customer_phone, rented_at, expires_at, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rental.RentalID, rental.AccountID, customer.Name, customer.Email, customer.Phone,
			encodeTime(rentedAt), encodeTime(rental.ExpiresAt), models.RentalActive,
		)
		if err != nil {
			return database.MapSQLiteError(err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE accounts SET status = ?, rented_at = ?, available_at = ?
			WHERE id = ? AND status = ?`,
			models.AccountRented, encodeTime(rentedAt), encodeTime(rental.ExpiresAt),
			rental.AccountID, models.AccountAvailable,
		)
		if err != nil {
			return database.MapSQLiteError(err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return models.ErrNotAvailable
		}
		return nil
	})
}

// Return flips a rented account back to available immediately and completes
// its active rental. Safe to call when no active rental exists; an account
// in exception stays in exception (ClearException is the only way out).
func (s *SQLiteStore) Return(ctx context.Context, accountID string) error {
	now := encodeTime(s.now())

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM accounts WHERE id = ?`, accountID).Scan(&status)
		if err != nil {
			return database.MapSQLiteError(err)
		}

		if status == models.AccountRented {
			_, err = tx.ExecContext(ctx,
				`UPDATE accounts SET status = ?, available_at = ? WHERE id = ?`,
				models.AccountAvailable, now, accountID,
			)
			if err != nil {
				return database.MapSQLiteError(err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE rentals SET status = ?, returned_at = ?
			WHERE account_id = ? AND status = ?`,
			models.RentalCompleted, now, accountID, models.RentalActive,
		)
		return database.MapSQLiteError(err)
	})
}

// ActiveRentals returns every rental still marked active, soonest expiry
// first. Rentals past their expiry but not yet reconciled are included;
// the scheduler treats them as maximally urgent.
func (s *SQLiteStore) ActiveRentals(ctx context.Context) ([]*models.ActiveRental, error) {
	query := `
		SELECT r.id, r.account_id, a.username, w.name, r.customer_name, r.rented_at, r.expires_at
		FROM rentals r
		JOIN accounts a ON r.account_id = a.id
		JOIN websites w ON a.website_id = w.id
		WHERE r.status = ?
		ORDER BY r.expires_at ASC
	`

	rows, err := s.db.Reader.QueryContext(ctx, query, models.RentalActive)
	if err != nil {
		return nil, fmt.Errorf("list active rentals: %w", err)
	}
	defer rows.Close()

	rentals := make([]*models.ActiveRental, 0)
	for rows.Next() {
		var r models.ActiveRental
		var rentedAt, expiresAt string
		if err := rows.Scan(&r.RentalID, &r.AccountID, &r.Username, &r.Website, &r.CustomerName, &rentedAt, &expiresAt); err != nil {
			return nil, database.MapSQLiteError(err)
		}
		if r.RentedAt, err = decodeTime(rentedAt); err != nil {
			return nil, err
		}
		if r.ExpiresAt, err = decodeTime(expiresAt); err != nil {
			return nil, err
		}
		rentals = append(rentals, &r)
	}
	return rentals, rows.Err()
}

func (s *SQLiteStore) AccountStatus(ctx context.Context, accountID string) (*models.AccountStatus, error) {
	query := `
		SELECT a.id, a.username, a.status, w.name, r.expires_at, r.customer_name
		FROM accounts a
		JOIN websites w ON a.website_id = w.id
		LEFT JOIN rentals r ON r.account_id = a.id AND r.status = ?
		WHERE a.id = ?
	`

	var st models.AccountStatus
	var expiresAt, customerName sql.NullString
	err := s.db.Reader.QueryRowContext(ctx, query, models.RentalActive, accountID).
		Scan(&st.ID, &st.Username, &st.Status, &st.Website, &expiresAt, &customerName)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}

	if st.ExpiresAt, err = decodeTimePtr(expiresAt); err != nil {
		return nil, err
	}
	st.CustomerName = customerName.String
	return &st, nil
}

// ===================== History and reporting =====================

func (s *SQLiteStore) PasswordHistory(ctx context.Context, accountID string, limit int) ([]*models.PasswordHistoryEntry, error) {
	query := `
		SELECT id, account_id, old_password, new_password, reset_date, status, message
		FROM password_history
		WHERE account_id = ?
		ORDER BY reset_date DESC
		LIMIT ?
	`

	rows, err := s.db.Reader.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("password history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.PasswordHistoryEntry, 0)
	for rows.Next() {
		var e models.PasswordHistoryEntry
		var resetDate string
		if err := rows.Scan(&e.ID, &e.AccountID, &e.OldPassword, &e.NewPassword, &resetDate, &e.Status, &e.Message); err != nil {
			return nil, database.MapSQLiteError(err)
		}
		if e.ResetDate, err = decodeTime(resetDate); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) LogError(ctx context.Context, accountID, errType, message string) error {
	_, err := s.db.Writer.ExecContext(ctx, `
		INSERT INTO error_logs (id, account_id, error_type, error_message, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), accountID, errType, message, encodeTime(s.now()),
	)
	return database.MapSQLiteError(err)
}

func (s *SQLiteStore) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}

	rows, err := s.db.Reader.QueryContext(ctx, `SELECT status, COUNT(*) FROM accounts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, database.MapSQLiteError(err)
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

	if err := s.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM websites`).Scan(&stats.TotalWebsites); err != nil {
		return nil, database.MapSQLiteError(err)
	}

	now := s.now()
	if err := s.db.Reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rentals WHERE status = ? AND expires_at > ?`,
		models.RentalActive, encodeTime(now),
	).Scan(&stats.ActiveRentals); err != nil {
		return nil, database.MapSQLiteError(err)
	}

	dayStart := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	if err := s.db.Reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM password_history WHERE status = ? AND reset_date >= ?`,
		models.ResetSuccess, encodeTime(dayStart),
	).Scan(&stats.ResetsToday); err != nil {
		return nil, database.MapSQLiteError(err)
	}

	return stats, nil
}

func (s *SQLiteStore) AccountStats(ctx context.Context, accountID string) (*models.AccountStats, error) {
	stats := &models.AccountStats{}
	var lastReset sql.NullString

	err := s.db.Reader.QueryRowContext(ctx, `
		SELECT a.username, a.email, a.last_reset, a.status, w.name
		FROM accounts a
		JOIN websites w ON a.website_id = w.id
		WHERE a.id = ?`,
		accountID,
	).Scan(&stats.Username, &stats.Email, &lastReset, &stats.Status, &stats.Website)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}
	if stats.LastReset, err = decodeTimePtr(lastReset); err != nil {
		return nil, err
	}

	err = s.db.Reader.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM password_history WHERE account_id = ?`,
		models.ResetSuccess, models.ResetFailed, accountID,
	).Scan(&stats.TotalResets, &stats.SuccessfulResets, &stats.FailedResets)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}

	return stats, nil
}
