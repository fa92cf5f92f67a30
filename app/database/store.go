// Package database keeps each feed's records in its own SQLite file.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lysyi3m/rss-planet/app/record"
)

const fileExtension = ".db"

var (
	schemePrefix = regexp.MustCompile(`^\w+:/*(\w+:|www\.)?`)
	unsafeRuns   = regexp.MustCompile(`[?/:|]+`)
)

// Store is a record.Store backed by a single SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

var _ record.Store = (*Store)(nil)

// Filename derives the cache file name for a feed URL. The result is stable across runs.
func Filename(url string) string {
	name := schemePrefix.ReplaceAllString(url, "")
	name = unsafeRuns.ReplaceAllString(name, ",")
	name = strings.Trim(name, ",.")
	if name == "" {
		name = "feed"
	}
	return name + fileExtension
}

// Open opens (creating when needed) the cache of the feed at url inside dir.
func Open(dir, url string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, Filename(url))
	db, err := connection(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}

	version, err := upgradeSchema(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate cache %s: %w", path, err)
	}

	slog.Debug("Opened feed cache", "path", path, "version", version)
	return &Store{db: db, path: path}, nil
}

func connection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM attributes WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM attributes ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return keys, nil
}

// Apply writes every change in one transaction.
func (s *Store) Apply(changes []record.Change) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.Prepare(`
		INSERT INTO attributes (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer upsert.Close()

	remove, err := tx.Prepare(`DELETE FROM attributes WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer remove.Close()

	for _, c := range changes {
		if c.Delete {
			_, err = remove.Exec(c.Key)
		} else {
			_, err = upsert.Exec(c.Key, c.Value)
		}
		if err != nil {
			return fmt.Errorf("failed to write %q: %w", c.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Link creates a hard link to the cache file under the name derived from url, so the
// feed's history is found again once it is configured by its new address.
func (s *Store) Link(url string) error {
	target := filepath.Join(filepath.Dir(s.path), Filename(url))
	if target == s.path {
		return nil
	}
	if err := os.Link(s.path, target); err != nil {
		return fmt.Errorf("failed to link %s to %s: %w", s.path, target, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
