package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vaigai-ai/vaigai/pkg/models"
)

// Cache is a versioned asset response store backed by SQLite.
// Each version is a named cache holding entries keyed by request URL.
type Cache struct {
	db     *sql.DB
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTables = `
CREATE TABLE IF NOT EXISTS cache_versions (
	name TEXT PRIMARY KEY,
	created_unix INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_name TEXT NOT NULL,
	url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	header TEXT NOT NULL,
	body BLOB NOT NULL,
	stored_unix INTEGER NOT NULL,
	PRIMARY KEY (cache_name, url)
);
`

// New opens (creating if needed) the cache database at dbPath.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// Installs write from several goroutines; a single connection keeps
	// SQLite from reporting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCacheTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db}, nil
}

// Open creates the named cache if it does not exist yet.
func (c *Cache) Open(ctx context.Context, name string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_versions (name, created_unix) VALUES (?, ?)`,
		name, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache open %q: %w", name, err)
	}
	return nil
}

// Keys lists the names of all existing caches, oldest first.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM cache_versions ORDER BY created_unix, name`)
	if err != nil {
		return nil, fmt.Errorf("cache keys: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan cache name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes the named cache and all its entries. It reports whether the
// cache existed.
func (c *Cache) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("cache delete %q: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ?`, name); err != nil {
		return false, fmt.Errorf("cache delete %q entries: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM cache_versions WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("cache delete %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cache delete %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("cache delete %q: %w", name, err)
	}
	return n > 0, nil
}

// Put stores an entry in the named cache, replacing any entry for the same URL.
// The cache is created if needed.
func (c *Cache) Put(ctx context.Context, name string, entry models.CacheEntry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("cache put: encode header: %w", err)
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}

	if err := c.Open(ctx, name); err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (cache_name, url, status_code, header, body, stored_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		name, entry.URL, entry.StatusCode, string(header), body, storedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Match looks up url in the named cache. A lookup error is returned as such
// and does not count as a miss.
func (c *Cache) Match(ctx context.Context, name, url string) (models.CacheEntry, bool, error) {
	var (
		entry      models.CacheEntry
		header     string
		storedUnix int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT url, status_code, header, body, stored_unix FROM cache_entries WHERE cache_name = ? AND url = ?`,
		name, url,
	).Scan(&entry.URL, &entry.StatusCode, &header, &entry.Body, &storedUnix)
	if err == sql.ErrNoRows {
		c.misses.Add(1)
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("cache match: %w", err)
	}

	entry.Header = http.Header{}
	if err := json.Unmarshal([]byte(header), &entry.Header); err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("cache match: decode header: %w", err)
	}
	entry.StoredAt = time.Unix(storedUnix, 0)

	c.hits.Add(1)
	return entry, true, nil
}

// URLs lists the keys stored in the named cache.
func (c *Cache) URLs(ctx context.Context, name string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT url FROM cache_entries WHERE cache_name = ? ORDER BY url`, name)
	if err != nil {
		return nil, fmt.Errorf("cache urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan cache url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// Stats returns cache contents and lookup counters.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	versions, err := c.Keys(ctx)
	if err != nil {
		return models.CacheStats{}, err
	}

	var count int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Versions: versions,
		Entries:  count,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}, nil
}

// Clear removes every cache and entry.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_versions`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
