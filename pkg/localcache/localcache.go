// Package localcache persists the last known note collection to a local
// SQLite file so a session can bootstrap when the backend is unreachable or
// empty.
//
// The cache is a fallback, not a durability layer: it holds exactly one
// serialized snapshot of the collection per storage key, overwritten on
// every save, scoped to a single device. Records are encoded with CBOR,
// which round-trips the optional fields of [models.Note] compactly and
// without the whitespace churn of JSON.
//
// A second, separate key stores lightweight UI preferences (for example the
// background blur flag). Preferences share the file for convenience but are
// not part of the sync engine proper.
package localcache

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/noteboard/noteboard/pkg/models"
)

const (
	// notesKey scopes the serialized note collection to the note-board
	// feature; other features may share the same cache file.
	notesKey = "noteboard/notes"
	prefsKey = "noteboard/prefs"
)

// Prefs are the UI preferences persisted next to the note snapshot.
type Prefs struct {
	BackgroundBlur bool `cbor:"background_blur"`
}

// Cache is a SQLite-backed key/value snapshot store. Safe for concurrent
// use; SQLite serializes writers and database/sql pools connections.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache file at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize local cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveNotes overwrites the cached snapshot with the given collection.
func (c *Cache) SaveNotes(notes []models.Note) error {
	blob, err := cbor.Marshal(notes)
	if err != nil {
		return fmt.Errorf("failed to encode note snapshot: %w", err)
	}
	return c.put(notesKey, blob)
}

// LoadNotes returns the cached snapshot, or an empty slice if none has been
// saved yet.
func (c *Cache) LoadNotes() ([]models.Note, error) {
	blob, err := c.get(notesKey)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, nil
	}
	var notes []models.Note
	if err := cbor.Unmarshal(blob, &notes); err != nil {
		return nil, fmt.Errorf("failed to decode note snapshot: %w", err)
	}
	return notes, nil
}

// SavePrefs overwrites the persisted UI preferences.
func (c *Cache) SavePrefs(p Prefs) error {
	blob, err := cbor.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	return c.put(prefsKey, blob)
}

// LoadPrefs returns the persisted UI preferences, or the zero value if none
// have been saved yet.
func (c *Cache) LoadPrefs() (Prefs, error) {
	var p Prefs
	blob, err := c.get(prefsKey)
	if err != nil || blob == nil {
		return p, err
	}
	if err := cbor.Unmarshal(blob, &p); err != nil {
		return Prefs{}, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return p, nil
}

func (c *Cache) put(key string, value []byte) error {
	_, err := c.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write local cache key %q: %w", key, err)
	}
	return nil
}

func (c *Cache) get(key string) ([]byte, error) {
	var value []byte
	err := c.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local cache key %q: %w", key, err)
	}
	return value, nil
}
