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

// APIKeyStore persists rental API credentials and their usage log.
// API key bookkeeping lives only in the embedded primary; it is caller
// metadata, not rental state, and is not mirrored to the cloud.
type APIKeyStore interface {
	CreateKey(ctx context.Context, key *models.APIKey) error
	GetKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
	ListKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeKey(ctx context.Context, id string) error
	RecordUsage(ctx context.Context, usage *models.APIUsage) error
	CountUsageSince(ctx context.Context, apiKeyID string, since time.Time) (int, error)
	UsageStats(ctx context.Context, apiKeyID string, since time.Time) (*models.UsageStats, error)
	RecentActivity(ctx context.Context, apiKeyID string, limit int) ([]*models.APIUsage, error)
}

// SQLiteAPIKeys implements APIKeyStore over the embedded database.
type SQLiteAPIKeys struct {
	db     *database.SQLite
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLiteAPIKeys(db *database.SQLite, logger *slog.Logger) *SQLiteAPIKeys {
	return &SQLiteAPIKeys{db: db, logger: logger, now: time.Now}
}

func (s *SQLiteAPIKeys) CreateKey(ctx context.Context, key *models.APIKey) error {
	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	if key.Status == "" {
		key.Status = models.KeyActive
	}
	key.CreatedAt = s.now().UTC()

	_, err := s.db.Writer.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, name, email, status, rate_limit, total_requests, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		key.ID, key.KeyHash, key.Name, key.Email, key.Status, key.RateLimit, key.Notes, encodeTime(key.CreatedAt),
	)
	return database.MapSQLiteError(err)
}

func (s *SQLiteAPIKeys) GetKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	query := `
		SELECT id, key_hash, name, email, status, rate_limit, total_requests, last_used, notes, created_at
		FROM api_keys WHERE key_hash = ?
	`
	return scanAPIKey(s.db.Reader.QueryRowContext(ctx, query, hash))
}

func (s *SQLiteAPIKeys) ListKeys(ctx context.Context) ([]*models.APIKey, error) {
	query := `
		SELECT id, key_hash, name, email, status, rate_limit, total_requests, last_used, notes, created_at
		FROM api_keys ORDER BY created_at DESC
	`

	rows, err := s.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func scanAPIKey(scanner rowScanner) (*models.APIKey, error) {
	var k models.APIKey
	var lastUsed sql.NullString
	var createdAt string

	err := scanner.Scan(
		&k.ID, &k.KeyHash, &k.Name, &k.Email, &k.Status,
		&k.RateLimit, &k.TotalRequests, &lastUsed, &k.Notes, &createdAt,
	)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}

	if k.LastUsed, err = decodeTimePtr(lastUsed); err != nil {
		return nil, err
	}
	if k.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *SQLiteAPIKeys) RevokeKey(ctx context.Context, id string) error {
	result, err := s.db.Writer.ExecContext(ctx,
		`UPDATE api_keys SET status = ? WHERE id = ?`,
		models.KeyRevoked, id,
	)
	if err != nil {
		return database.MapSQLiteError(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordUsage appends a usage row and bumps the key's counters. Every
// rental API call consumes one unit of the key's daily allotment.
func (s *SQLiteAPIKeys) RecordUsage(ctx context.Context, usage *models.APIUsage) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO api_usage (id, api_key_id, account_id, website, action, response_status, ip_address, user_agent, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), usage.APIKeyID, usage.AccountID, usage.Website,
			usage.Action, usage.ResponseStatus, usage.IPAddress, usage.UserAgent, encodeTime(now),
		)
		if err != nil {
			return database.MapSQLiteError(err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE api_keys SET total_requests = total_requests + 1, last_used = ? WHERE id = ?`,
			encodeTime(now), usage.APIKeyID,
		)
		return database.MapSQLiteError(err)
	})
}

func (s *SQLiteAPIKeys) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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

func (s *SQLiteAPIKeys) CountUsageSince(ctx context.Context, apiKeyID string, since time.Time) (int, error) {
	var count int
	err := s.db.Reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_usage WHERE api_key_id = ? AND timestamp >= ?`,
		apiKeyID, encodeTime(since),
	).Scan(&count)
	if err != nil {
		return 0, database.MapSQLiteError(err)
	}
	return count, nil
}

func (s *SQLiteAPIKeys) UsageStats(ctx context.Context, apiKeyID string, since time.Time) (*models.UsageStats, error) {
	stats := &models.UsageStats{}
	err := s.db.Reader.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT CASE WHEN account_id != '' THEN account_id END),
		       COUNT(DISTINCT CASE WHEN website != '' THEN website END),
		       COALESCE(SUM(CASE WHEN action = 'rent' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN action = 'return' THEN 1 ELSE 0 END), 0)
		FROM api_usage
		WHERE api_key_id = ? AND timestamp >= ?`,
		apiKeyID, encodeTime(since),
	).Scan(&stats.TotalRequests, &stats.UniqueAccounts, &stats.WebsitesUsed, &stats.Rentals, &stats.Returns)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}
	return stats, nil
}

func (s *SQLiteAPIKeys) RecentActivity(ctx context.Context, apiKeyID string, limit int) ([]*models.APIUsage, error) {
	query := `
		SELECT id, api_key_id, account_id, website, action, response_status, ip_address, user_agent, timestamp
		FROM api_usage
		WHERE api_key_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.db.Reader.QueryContext(ctx, query, apiKeyID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()

	activity := make([]*models.APIUsage, 0)
	for rows.Next() {
		var u models.APIUsage
		var ts string
		if err := rows.Scan(&u.ID, &u.APIKeyID, &u.AccountID, &u.Website, &u.Action, &u.ResponseStatus, &u.IPAddress, &u.UserAgent, &ts); err != nil {
			return nil, database.MapSQLiteError(err)
		}
		if u.Timestamp, err = decodeTime(ts); err != nil {
			return nil, err
		}
		activity = append(activity, &u)
	}
	return activity, rows.Err()
}
