// Package buildcache remembers the digest of each pipe's last successful
// run so unchanged pipes can be skipped.
package buildcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/adrg/xdg"
	"github.com/cespare/xxhash/v2"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS pipe_digests (
	key        TEXT PRIMARY KEY,
	digest     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Cache is a SQLite-backed map from pipe keys to digests. It is safe for
// concurrent use.
type Cache struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the cache database for a project root under the XDG
// cache directory, creating parent directories as needed.
func DefaultPath(projectRoot string) (string, error) {
	name := strconv.FormatUint(xxhash.Sum64String(projectRoot), 16)
	p, err := xdg.CacheFile("assetgrid/" + name + ".db")
	if err != nil {
		return "", fmt.Errorf("resolve cache path: %w", err)
	}
	return p, nil
}

// Open opens the cache at path with WAL journaling and a 5-second busy
// timeout, creating the schema if needed.
func Open(ctx context.Context, path string) (*Cache, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Writers are serialized on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize cache %s: %w", path, err)
	}
	return &Cache{db: db, path: path}, nil
}

// Path returns the database file.
func (c *Cache) Path() string {
	return c.path
}

// Lookup returns the stored digest for key.
func (c *Cache) Lookup(ctx context.Context, key string) (string, bool, error) {
	var digest string
	err := c.db.QueryRowContext(ctx, `SELECT digest FROM pipe_digests WHERE key = ?`, key).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s: %w", key, err)
	}
	return digest, true, nil
}

// Store records digest for key, replacing any previous value.
func (c *Cache) Store(ctx context.Context, key, digest string) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO pipe_digests (key, digest) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET digest = excluded.digest, updated_at = CURRENT_TIMESTAMP`, key, digest)
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Forget removes key.
func (c *Cache) Forget(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM pipe_digests WHERE key = ?`, key); err != nil {
		return fmt.Errorf("forget %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
