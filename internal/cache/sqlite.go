package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLite implements Backend on modernc.org/sqlite, persisting responses
// across runs.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, configures WAL
// mode and applies the schema.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	if _, err := db.Exec(cacheMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "cache: migrate")
	}
	return &SQLite{db: db}, nil
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS llm_cache (
	key        TEXT PRIMARY KEY,
	response   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_llm_cache_expires_at ON llm_cache(expires_at);
`

// Get implements Backend.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT response FROM llm_cache
		 WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	)

	var response string
	err := row.Scan(&response)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "cache: get")
	}
	return response, true, nil
}

// Set implements Backend.
func (s *SQLite) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_cache (key, response, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET response = excluded.response,
		   created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, value, now, expiresAt,
	)
	return eris.Wrap(err, "cache: set")
}

// Delete implements Backend.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM llm_cache WHERE key = ?`, key)
	return eris.Wrap(err, "cache: delete")
}

// Clear implements Backend.
func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM llm_cache`)
	return eris.Wrap(err, "cache: clear")
}

// Prune removes expired entries and reports how many were dropped.
func (s *SQLite) Prune(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM llm_cache WHERE expires_at <= ?`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "cache: prune")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "cache: rows affected")
}

// Close implements Backend.
func (s *SQLite) Close() error {
	return s.db.Close()
}
