// Package cache implements the SQLite-backed documentation cache.
//
// Cache is an internal infrastructure component, not a public API surface:
// read failures return a miss (zero-value entry, false) and write/cleanup failures are
// logged and swallowed, because a cache malfunction must never prevent the
// agent from receiving the content it asked for. Every error is still
// logged with a stable event code via internal/logger so it remains
// observable. This is a deliberate, documented deviation from the rule
// that library code must never swallow errors.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"procontext/internal/logger"
)

const createTocTable = `
CREATE TABLE IF NOT EXISTS toc_cache (
	library_id         TEXT PRIMARY KEY,
	llms_txt_url       TEXT NOT NULL,
	content            TEXT NOT NULL,
	discovered_domains TEXT NOT NULL DEFAULT '',
	fetched_at         TEXT NOT NULL,
	expires_at         TEXT NOT NULL
)`

const createPageTable = `
CREATE TABLE IF NOT EXISTS page_cache (
	url_hash           TEXT PRIMARY KEY,
	url                TEXT NOT NULL UNIQUE,
	content            TEXT NOT NULL,
	headings           TEXT NOT NULL DEFAULT '',
	discovered_domains TEXT NOT NULL DEFAULT '',
	fetched_at         TEXT NOT NULL,
	expires_at         TEXT NOT NULL
)`

const createMetadataTable = `
CREATE TABLE IF NOT EXISTS server_metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

const createTocIndex = `CREATE INDEX IF NOT EXISTS idx_toc_expires ON toc_cache(expires_at)`
const createPageIndex = `CREATE INDEX IF NOT EXISTS idx_page_expires ON page_cache(expires_at)`

const lastCleanupKey = "last_cleanup_at"

const graceDays = 7

// timeLayout is RFC3339 with explicit UTC offset, matching orig's
// datetime.isoformat() output closely enough for lexical comparison.
const timeLayout = time.RFC3339

// TocCacheEntry is a cached llms.txt document for a library.
type TocCacheEntry struct {
	LibraryID         string
	LLMsTxtURL        string
	Content           string
	DiscoveredDomains map[string]struct{}
	FetchedAt         time.Time
	ExpiresAt         time.Time
	Stale             bool
}

// PageCacheEntry is a cached, rendered documentation page.
type PageCacheEntry struct {
	URLHash           string
	URL               string
	Content           string
	Headings          string
	DiscoveredDomains map[string]struct{}
	FetchedAt         time.Time
	ExpiresAt         time.Time
	Stale             bool
}

// Cache is a SQLite-backed documentation cache. The zero value is not
// usable; construct with Open. A single *sql.DB handle is shared by every
// caller — SQLite's own locking, combined with WAL mode, serializes
// concurrent writers, so no extra application-level mutex is needed.
type Cache struct {
	db  *sql.DB
	log *logger.Logger
}

// Open creates (or reuses) the SQLite file at path, enables WAL mode and
// foreign keys, and creates the schema if absent. The caller must ensure
// filepath.Dir(path) already exists.
func Open(ctx context.Context, path string, log *logger.Logger) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache %q: %w", path, err)
	}

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		createTocTable,
		createPageTable,
		createMetadataTable,
		createTocIndex,
		createPageIndex,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite cache schema: %w", err)
		}
	}

	return &Cache{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func joinDomains(domains map[string]struct{}) string {
	out := make([]string, 0, len(domains))
	for d := range domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func splitDomains(s string) map[string]struct{} {
	out := make(map[string]struct{})
	if s == "" {
		return out
	}
	for _, d := range strings.Split(s, ",") {
		out[d] = struct{}{}
	}
	return out
}

// GetToc reads a ToC entry. Returns ok=false on cache miss or read failure.
func (c *Cache) GetToc(ctx context.Context, libraryID string) (TocCacheEntry, bool) {
	row := c.db.QueryRowContext(ctx,
		`SELECT library_id, llms_txt_url, content, discovered_domains, fetched_at, expires_at
		 FROM toc_cache WHERE library_id = ?`, libraryID)

	var e TocCacheEntry
	var domains, fetchedAt, expiresAt string
	if err := row.Scan(&e.LibraryID, &e.LLMsTxtURL, &e.Content, &domains, &fetchedAt, &expiresAt); err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn("cache_read_error", "toc cache read failed", "key", "toc:"+libraryID, "error", err)
		}
		return TocCacheEntry{}, false
	}

	e.DiscoveredDomains = splitDomains(domains)
	e.FetchedAt, _ = time.Parse(timeLayout, fetchedAt)
	e.ExpiresAt, _ = time.Parse(timeLayout, expiresAt)
	e.Stale = time.Now().UTC().After(e.ExpiresAt)
	return e, true
}

// SetToc writes a ToC entry with ttlHours from now. Failures are logged and
// swallowed.
func (c *Cache) SetToc(ctx context.Context, libraryID, llmsTxtURL, content string, discovered map[string]struct{}, ttlHours int) {
	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(ttlHours) * time.Hour)
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO toc_cache
		 (library_id, llms_txt_url, content, discovered_domains, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		libraryID, llmsTxtURL, content, joinDomains(discovered), now.Format(timeLayout), expiresAt.Format(timeLayout))
	if err != nil {
		c.log.Warn("cache_write_error", "toc cache write failed", "key", "toc:"+libraryID, "error", err)
	}
}

// GetPage reads a page entry by its URL hash. Returns ok=false on cache
// miss or read failure.
func (c *Cache) GetPage(ctx context.Context, urlHash string) (PageCacheEntry, bool) {
	row := c.db.QueryRowContext(ctx,
		`SELECT url_hash, url, content, headings, discovered_domains, fetched_at, expires_at
		 FROM page_cache WHERE url_hash = ?`, urlHash)

	var e PageCacheEntry
	var domains, fetchedAt, expiresAt string
	if err := row.Scan(&e.URLHash, &e.URL, &e.Content, &e.Headings, &domains, &fetchedAt, &expiresAt); err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn("cache_read_error", "page cache read failed", "key", "page:"+urlHash, "error", err)
		}
		return PageCacheEntry{}, false
	}

	e.DiscoveredDomains = splitDomains(domains)
	e.FetchedAt, _ = time.Parse(timeLayout, fetchedAt)
	e.ExpiresAt, _ = time.Parse(timeLayout, expiresAt)
	e.Stale = time.Now().UTC().After(e.ExpiresAt)
	return e, true
}

// SetPage writes a page entry with ttlHours from now. Failures are logged
// and swallowed.
func (c *Cache) SetPage(ctx context.Context, url, urlHash, content, headings string, discovered map[string]struct{}, ttlHours int) {
	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(ttlHours) * time.Hour)
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO page_cache
		 (url_hash, url, content, headings, discovered_domains, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		urlHash, url, content, headings, joinDomains(discovered), now.Format(timeLayout), expiresAt.Format(timeLayout))
	if err != nil {
		c.log.Warn("cache_write_error", "page cache write failed", "key", "page:"+urlHash, "error", err)
	}
}

// CleanupExpired deletes rows expired more than 7 days ago from both
// tables. The grace window lets clients still holding a stale reference
// observe it once more before it disappears. Failures are logged and
// swallowed.
func (c *Cache) CleanupExpired(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -graceDays).Format(timeLayout)

	tocRes, err := c.db.ExecContext(ctx, `DELETE FROM toc_cache WHERE expires_at < ?`, cutoff)
	if err != nil {
		c.log.Warn("cache_cleanup_error", "toc cleanup failed", "error", err)
		return
	}
	pageRes, err := c.db.ExecContext(ctx, `DELETE FROM page_cache WHERE expires_at < ?`, cutoff)
	if err != nil {
		c.log.Warn("cache_cleanup_error", "page cleanup failed", "error", err)
		return
	}

	tocDeleted, _ := tocRes.RowsAffected()
	pageDeleted, _ := pageRes.RowsAffected()
	c.log.Info("cache_cleanup_complete", "expired cache rows removed",
		"toc_deleted", tocDeleted, "page_deleted", pageDeleted)
}

// CleanupIfDue reads server_metadata['last_cleanup_at']. If the key is
// absent, unparsable, or older than intervalHours, it runs CleanupExpired
// and records the current time. A read error on the metadata row falls
// through to running cleanup, failing safe toward doing the work rather
// than skipping it.
func (c *Cache) CleanupIfDue(ctx context.Context, intervalHours int) {
	due := true

	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM server_metadata WHERE key = ?`, lastCleanupKey).Scan(&value)
	switch {
	case err == nil:
		if last, perr := time.Parse(timeLayout, value); perr == nil {
			due = time.Since(last) >= time.Duration(intervalHours)*time.Hour
		}
	case err == sql.ErrNoRows:
		due = true
	default:
		c.log.Warn("cache_cleanup_error", "metadata read failed, running cleanup", "error", err)
		due = true
	}

	if !due {
		return
	}

	c.CleanupExpired(ctx)

	now := time.Now().UTC().Format(timeLayout)
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO server_metadata (key, value) VALUES (?, ?)`, lastCleanupKey, now); err != nil {
		c.log.Warn("cache_write_error", "failed to record last_cleanup_at", "error", err)
	}
}

// LoadDiscoveredDomains returns the union of discovered_domains across the
// selected tables, for rehydrating the allowlist at startup. A read error
// returns the empty set.
func (c *Cache) LoadDiscoveredDomains(ctx context.Context, includeToc, includePages bool) map[string]struct{} {
	out := make(map[string]struct{})

	if includeToc {
		rows, err := c.db.QueryContext(ctx, `SELECT discovered_domains FROM toc_cache`)
		if err != nil {
			c.log.Warn("cache_read_error", "failed to load toc discovered domains", "error", err)
			return map[string]struct{}{}
		}
		if err := scanDomainRows(rows, out); err != nil {
			c.log.Warn("cache_read_error", "failed to scan toc discovered domains", "error", err)
			return map[string]struct{}{}
		}
	}

	if includePages {
		rows, err := c.db.QueryContext(ctx, `SELECT discovered_domains FROM page_cache`)
		if err != nil {
			c.log.Warn("cache_read_error", "failed to load page discovered domains", "error", err)
			return map[string]struct{}{}
		}
		if err := scanDomainRows(rows, out); err != nil {
			c.log.Warn("cache_read_error", "failed to scan page discovered domains", "error", err)
			return map[string]struct{}{}
		}
	}

	return out
}

func scanDomainRows(rows *sql.Rows, out map[string]struct{}) error {
	defer rows.Close()
	for rows.Next() {
		var domains string
		if err := rows.Scan(&domains); err != nil {
			return err
		}
		for d := range splitDomains(domains) {
			out[d] = struct{}{}
		}
	}
	return rows.Err()
}
