package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/homestock/homestock/internal/suggest"
)

// SQLiteStore implements suggest.Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite-backed store.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// An in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS autocomplete_cache (
		id           TEXT PRIMARY KEY,
		household_id TEXT    NOT NULL,
		field_type   TEXT    NOT NULL,
		value        TEXT    NOT NULL,
		frequency    INTEGER NOT NULL DEFAULT 1 CHECK (frequency >= 1),
		last_used    INTEGER NOT NULL,
		created_at   INTEGER NOT NULL,
		UNIQUE (household_id, field_type, value)
	);
	CREATE INDEX IF NOT EXISTS autocomplete_cache_scope
		ON autocomplete_cache (household_id, field_type, frequency);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: o.now}, nil
}

// Upsert increments or inserts an entry in a single statement.
func (s *SQLiteStore) Upsert(ctx context.Context, tenant suggest.TenantID, field suggest.FieldType, value string) (suggest.Entry, error) {
	now := s.now().UnixNano()

	e := suggest.Entry{
		Tenant:    tenant,
		FieldType: field,
		Value:     value,
	}
	var lastUsed, createdAt int64

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO autocomplete_cache (id, household_id, field_type, value, frequency, last_used, created_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(household_id, field_type, value) DO UPDATE SET
			frequency = autocomplete_cache.frequency + 1,
			last_used = excluded.last_used
		RETURNING id, frequency, last_used, created_at`,
		uuid.NewString(), string(tenant), string(field), value, now, now,
	).Scan(&e.ID, &e.Frequency, &lastUsed, &createdAt)
	if err != nil {
		return suggest.Entry{}, unavailable(fmt.Sprintf("upsert %s/%s", tenant, field), err)
	}

	e.LastUsed = fromNanos(lastUsed)
	e.CreatedAt = fromNanos(createdAt)
	return e, nil
}

// List returns every entry in the scope.
func (s *SQLiteStore) List(ctx context.Context, tenant suggest.TenantID, field suggest.FieldType) ([]suggest.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, household_id, field_type, value, frequency, last_used, created_at
		FROM autocomplete_cache
		WHERE household_id = ? AND field_type = ?`,
		string(tenant), string(field),
	)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("list %s/%s", tenant, field), err)
	}
	defer rows.Close()

	entries, err := scanEntryRows(rows)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("list %s/%s", tenant, field), err)
	}
	return entries, nil
}

// Delete removes one entry. Missing entries are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, tenant suggest.TenantID, field suggest.FieldType, value string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM autocomplete_cache WHERE household_id = ? AND field_type = ? AND value = ?",
		string(tenant), string(field), value,
	)
	if err != nil {
		return unavailable(fmt.Sprintf("delete %s/%s %q", tenant, field, value), err)
	}
	return nil
}

// Count returns the number of entries in the scope.
func (s *SQLiteStore) Count(ctx context.Context, tenant suggest.TenantID, field suggest.FieldType) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM autocomplete_cache WHERE household_id = ? AND field_type = ?",
		string(tenant), string(field),
	).Scan(&count)
	if err != nil {
		return 0, unavailable(fmt.Sprintf("count %s/%s", tenant, field), err)
	}
	return count, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close shuts down the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanEntryRows(rows *sql.Rows) ([]suggest.Entry, error) {
	var entries []suggest.Entry
	for rows.Next() {
		var e suggest.Entry
		var tenant, field string
		var lastUsed, createdAt int64
		if err := rows.Scan(&e.ID, &tenant, &field, &e.Value, &e.Frequency, &lastUsed, &createdAt); err != nil {
			return nil, err
		}
		e.Tenant = suggest.TenantID(tenant)
		e.FieldType = suggest.FieldType(field)
		e.LastUsed = fromNanos(lastUsed)
		e.CreatedAt = fromNanos(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
