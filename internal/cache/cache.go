// Package cache provides the durable translation memo store. Entries are
// keyed by (engine, canonical engine parameters, source text) and live in
// a per-user SQLite database so translations survive across runs.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"pdf-translator/internal/logger"
)

// MaxEngineNameLen bounds the translate_engine column.
const MaxEngineNameLen = 20

const schema = `
CREATE TABLE IF NOT EXISTS translation_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	translate_engine VARCHAR(20) NOT NULL,
	translate_engine_params TEXT NOT NULL,
	original_text TEXT NOT NULL,
	translation TEXT NOT NULL,
	UNIQUE (translate_engine, translate_engine_params, original_text)
		ON CONFLICT REPLACE
);`

// DefaultPath returns the per-user cache database location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return filepath.Join(home, ".cache", "pdf-translator", "cache.v1.db"), nil
}

// Open opens (creating if necessary) the cache database at path in WAL
// mode. The returned handle is safe for concurrent readers with
// serialized writers.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(1000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}
	return db, nil
}

// Reset deletes the database files at path and recreates an empty store.
func Reset(path string) (*sql.DB, error) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return Open(path)
}

// Cache memoizes translations for one engine configuration. Get and Set
// may be called concurrently; parameter mutation is not concurrency-safe
// and belongs to setup, before workers start.
type Cache struct {
	db     *sql.DB
	engine string

	mu          sync.RWMutex
	params      map[string]any
	fingerprint string
}

// New creates a Cache for the given engine name and parameter map. Engine
// names longer than MaxEngineNameLen are rejected; this is a schema
// constraint, checked up front.
func New(db *sql.DB, engine string, params map[string]any) (*Cache, error) {
	if len(engine) > MaxEngineNameLen {
		return nil, fmt.Errorf("engine name %q exceeds %d bytes", engine, MaxEngineNameLen)
	}
	c := &Cache{db: db, engine: engine}
	if err := c.ReplaceParams(params); err != nil {
		return nil, err
	}
	return c, nil
}

// ReplaceParams swaps the whole parameter map and re-derives the cache-key
// fingerprint.
func (c *Cache) ReplaceParams(params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	fp, err := Fingerprint(params)
	if err != nil {
		return fmt.Errorf("fingerprinting params: %w", err)
	}
	c.mu.Lock()
	c.params = params
	c.fingerprint = fp
	c.mu.Unlock()
	return nil
}

// UpdateParams merges params into the current map.
func (c *Cache) UpdateParams(params map[string]any) error {
	c.mu.RLock()
	merged := make(map[string]any, len(c.params)+len(params))
	for k, v := range c.params {
		merged[k] = v
	}
	c.mu.RUnlock()
	for k, v := range params {
		merged[k] = v
	}
	return c.ReplaceParams(merged)
}

// AddParam sets a single parameter. Values that cannot be canonicalized
// are stored as their string form.
func (c *Cache) AddParam(key string, value any) error {
	if _, err := Fingerprint(map[string]any{key: value}); err != nil {
		value = fmt.Sprintf("%v", value)
	}
	return c.UpdateParams(map[string]any{key: value})
}

// Engine returns the engine name part of the key.
func (c *Cache) Engine() string { return c.engine }

// Get returns the cached translation for text. Any storage failure is
// logged at debug level and reported as a miss; callers must not
// distinguish the two.
func (c *Cache) Get(text string) (string, bool) {
	if c.db == nil {
		return "", false
	}
	c.mu.RLock()
	fp := c.fingerprint
	c.mu.RUnlock()

	var translation string
	err := c.db.QueryRow(
		`SELECT translation FROM translation_cache
		 WHERE translate_engine = ? AND translate_engine_params = ? AND original_text = ?`,
		c.engine, fp, text,
	).Scan(&translation)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Debug("cache read failed", zap.Error(err))
		}
		return "", false
	}
	return translation, true
}

// Set upserts the translation for text. A colliding key replaces the
// prior row. Storage failures are logged and swallowed; losing a cache
// write must never abort a translation.
func (c *Cache) Set(text, translation string) {
	if c.db == nil {
		return
	}
	c.mu.RLock()
	fp := c.fingerprint
	c.mu.RUnlock()

	_, err := c.db.Exec(
		`INSERT INTO translation_cache
		 (translate_engine, translate_engine_params, original_text, translation)
		 VALUES (?, ?, ?, ?)`,
		c.engine, fp, text, translation,
	)
	if err != nil {
		logger.Debug("cache write failed", zap.Error(err))
	}
}
