package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// LastRunVersionCode is the key of the version marker.
const LastRunVersionCode = "last_run_version_code"

// NeverProvisioned is the marker value reported when no pass has ever
// completed. Version codes are never negative.
const NeverProvisioned = -1

// Store reads and writes integer preferences.
type Store interface {
	// GetInt returns the stored value and true, or 0 and false when the key
	// has never been written.
	GetInt(ctx context.Context, key string) (int, bool, error)

	// SetInt stores value under key, replacing any earlier value.
	SetInt(ctx context.Context, key string, value int) error
}

// LastRun returns the version marker, or NeverProvisioned when absent.
func LastRun(ctx context.Context, s Store) (int, error) {
	v, ok, err := s.GetInt(ctx, LastRunVersionCode)
	if err != nil {
		return NeverProvisioned, err
	}
	if !ok {
		return NeverProvisioned, nil
	}
	return v, nil
}

// SQLiteStore implements Store on the preferences table of the state database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open, migrated state database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &SQLiteStore{db: db}, nil
}

// GetInt implements Store.
func (s *SQLiteStore) GetInt(ctx context.Context, key string) (int, bool, error) {
	if key == "" {
		return 0, false, ErrEmptyKey
	}

	var v int64
	err := s.db.QueryRowContext(ctx,
		"SELECT int_value FROM preferences WHERE key = ?", key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading preference %s: %w", key, err)
	}
	return int(v), true, nil
}

// SetInt implements Store.
func (s *SQLiteStore) SetInt(ctx context.Context, key string, value int) error {
	if key == "" {
		return ErrEmptyKey
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, int_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			int_value = excluded.int_value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing preference %s: %w", key, err)
	}
	return nil
}

// MemoryStore is an in-process Store. The zero value is ready to use.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// GetInt implements Store.
func (m *MemoryStore) GetInt(_ context.Context, key string) (int, bool, error) {
	if key == "" {
		return 0, false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// SetInt implements Store.
func (m *MemoryStore) SetInt(_ context.Context, key string, value int) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]int)
	}
	m.values[key] = value
	return nil
}
