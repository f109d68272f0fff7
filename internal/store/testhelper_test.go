package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/toolrental/rentkeeper/internal/database"
)

// newTestDB creates a named shared in-memory SQLite database. Writer and
// reader connections share the same database via cache=shared; the name
// is derived from the test name so parallel tests stay isolated.
func newTestDB(t *testing.T) *database.SQLite {
	t.Helper()
	return newNamedTestDB(t, "")
}

// newNamedTestDB is newTestDB with a name suffix, for tests that need
// more than one independent database (the mirrored-store tests).
func newNamedTestDB(t *testing.T, suffix string) *database.SQLite {
	t.Helper()

	safeName := url.PathEscape(t.Name() + suffix)
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &database.SQLite{Writer: writer, Reader: reader}

	if err := database.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newTestStore returns a store over an in-memory database with a
// controllable clock.
func newTestStore(t *testing.T) (*SQLiteStore, *clock) {
	t.Helper()
	return newNamedTestStore(t, "")
}

func newNamedTestStore(t *testing.T, suffix string) (*SQLiteStore, *clock) {
	t.Helper()

	c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	s := NewSQLiteStore(newNamedTestDB(t, suffix), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = c.Now
	return s, c
}

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }
