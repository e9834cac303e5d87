// Package cache implements the content cache: a disk-resident key/value store
// bounded by total size, evicting least-recently-used entries first.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"glyphdeck/internal/logging"
)

// DefaultSizeMB is the size bound used when Options leaves it unset.
const DefaultSizeMB = 100

// Options configures a Cache.
type Options struct {
	SizeMB        int   // size bound in MiB
	MaxBytes      int64 // exact size bound, overrides SizeMB when positive
	MemoryEntries int   // in-process front tier entries, 0 disables
}

// Cache is safe for concurrent use. Several Cache values may share a directory;
// writes to the same key are last-writer-wins.
type Cache struct {
	db       *sql.DB
	mu       sync.Mutex
	dbPath   string
	maxBytes int64
	mem      *lru.Cache[string, []byte]
}

// Stats summarises cache contents.
type Stats struct {
	Entries  int
	Bytes    int64
	MaxBytes int64
}

// Open opens (or creates) the cache rooted at dir.
func Open(dir string, opts Options) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		size := opts.SizeMB
		if size <= 0 {
			size = DefaultSizeMB
		}
		maxBytes = int64(size) * 1024 * 1024
	}

	path := filepath.Join(dir, "cache.db")
	// Pragmas in the DSN apply to every connection the pool opens.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &Cache{db: db, dbPath: path, maxBytes: maxBytes}
	if opts.MemoryEntries > 0 {
		mem, err := lru.New[string, []byte](opts.MemoryEntries)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create memory tier: %w", err)
		}
		c.mem = mem
	}

	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Cache("cache opened at %s (bound %d bytes)", path, maxBytes)
	return c, nil
}

// initialize creates the entries table.
func (c *Cache) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		size INTEGER NOT NULL,
		accessed INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_accessed ON entries(accessed);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	return nil
}

// nextTick is the access clock. It lives in the database so every handle on
// one directory shares the same recency order.
const nextTick = `(SELECT COALESCE(MAX(accessed), 0) + 1 FROM entries)`

const touchSQL = `UPDATE entries SET accessed = ` + nextTick + ` WHERE key = ?`

// Get returns the value for key and marks it most recently used.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mem != nil {
		if v, ok := c.mem.Get(key); ok {
			res, err := c.db.ExecContext(ctx, touchSQL, key)
			if err != nil {
				return nil, false, fmt.Errorf("cache touch: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				logging.CacheDebug("memory hit %s", short(key))
				return clone(v), true, nil
			}
			c.mem.Remove(key)
		}
	}

	var value []byte
	err := c.db.QueryRowContext(ctx, `SELECT value FROM entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		logging.CacheDebug("miss %s", short(key))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, touchSQL, key); err != nil {
		return nil, false, fmt.Errorf("cache touch: %w", err)
	}
	if c.mem != nil {
		c.mem.Add(key, clone(value))
	}
	logging.CacheDebug("disk hit %s", short(key))
	return value, true, nil
}

// Set stores value under key, then evicts least-recently-used entries until
// the total size is within the bound.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int64(len(value)) > c.maxBytes {
		logging.CacheWarn("entry %s is %d bytes, larger than the %d byte bound", short(key), len(value), c.maxBytes)
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO entries (key, value, size, accessed) VALUES (?, ?, ?, `+nextTick+`)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, size = excluded.size, accessed = excluded.accessed`,
		key, value, len(value))
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	if c.mem != nil {
		c.mem.Add(key, clone(value))
	}
	return c.evictLocked(ctx)
}

func (c *Cache) evictLocked(ctx context.Context) error {
	var total int64
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM entries`).Scan(&total); err != nil {
		return fmt.Errorf("cache size: %w", err)
	}
	if total <= c.maxBytes {
		return nil
	}

	rows, err := c.db.QueryContext(ctx, `SELECT key, size FROM entries ORDER BY accessed ASC`)
	if err != nil {
		return fmt.Errorf("cache eviction scan: %w", err)
	}
	var victims []string
	for rows.Next() && total > c.maxBytes {
		var key string
		var size int64
		if err := rows.Scan(&key, &size); err != nil {
			rows.Close()
			return fmt.Errorf("cache eviction scan: %w", err)
		}
		victims = append(victims, key)
		total -= size
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("cache eviction scan: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache eviction: %w", err)
	}
	for _, key := range victims {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
			tx.Rollback()
			return fmt.Errorf("cache eviction: %w", err)
		}
		if c.mem != nil {
			c.mem.Remove(key)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache eviction: %w", err)
	}
	logging.CacheDebug("evicted %d entries, %d bytes remain", len(victims), total)
	return nil
}

// Has reports whether key is stored, without touching its recency.
func (c *Cache) Has(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE key = ?`, key).Scan(&n); err != nil {
		return false, fmt.Errorf("cache has: %w", err)
	}
	return n > 0, nil
}

// Stats returns entry count and total size.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{MaxBytes: c.maxBytes}
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM entries`).Scan(&s.Entries, &s.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return s, nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	if c.mem != nil {
		c.mem.Purge()
	}
	logging.Cache("cache cleared")
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.dbPath
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
