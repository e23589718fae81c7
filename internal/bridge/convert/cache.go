package convert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Cache stores conversion results keyed by source and content fingerprint,
// so re-converting an unchanged document is a single indexed lookup. The
// cache holds derived data only; exchange state never touches it.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) the SQLite cache database at dbPath.
func OpenCache(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS conversions (
			source      TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			title       TEXT NOT NULL,
			body        TEXT NOT NULL,
			created_at  TIMESTAMP NOT NULL,
			PRIMARY KEY (source, fingerprint)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create conversions table: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached conversion for (source, fingerprint), if any.
func (c *Cache) Get(ctx context.Context, source, fingerprint string) (title, body string, ok bool) {
	err := c.db.QueryRowContext(ctx,
		"SELECT title, body FROM conversions WHERE source = ? AND fingerprint = ?",
		source, fingerprint,
	).Scan(&title, &body)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("convert: cache lookup failed", "source", source, "err", err)
		}
		return "", "", false
	}
	return title, body, true
}

// Put stores a conversion result. Failures are logged and swallowed; the
// cache is an optimisation, never a correctness dependency.
func (c *Cache) Put(ctx context.Context, source, fingerprint, title, body string) {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversions (source, fingerprint, title, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		source, fingerprint, title, body, time.Now().UTC(),
	)
	if err != nil {
		slog.Warn("convert: cache store failed", "source", source, "err", err)
	}
}
