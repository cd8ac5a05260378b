// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// Device kinds a serial path can be assigned to.
const (
	KindPutter = "putter"
	KindWeight = "weight"
)

const (
	portKeyPrefix  = "port."
	localConfigKey = "local_config"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

// LocalConfig holds kiosk-local overrides edited from the admin screen.
// Nil fields fall back to the file config.
type LocalConfig struct {
	CanPutWithoutAuth *bool `json:"canPutWithoutAuth,omitempty"`
}

// Store is the kiosk's persistent key/value settings, backed by SQLite.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens or creates the settings database at path.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create table in %s: %w", path, err)
	}

	log = log.With().Str("component", "store").Logger()
	log.Debug().Str("path", path).Msg("settings database ready")
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the value under key, and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get %q: %w", key, err)
	}
	return v, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

// PortForKind returns the serial path assigned to kind, or "" when unassigned.
func (s *Store) PortForKind(ctx context.Context, kind string) (string, error) {
	v, _, err := s.Get(ctx, portKeyPrefix+kind)
	return v, err
}

// SetPortForKind assigns path to kind.
func (s *Store) SetPortForKind(ctx context.Context, kind, path string) error {
	if err := s.Set(ctx, portKeyPrefix+kind, path); err != nil {
		return err
	}
	s.log.Info().Str("kind", kind).Str("port", path).Msg("port assigned")
	return nil
}

// ForgetPort drops the assignment of kind.
func (s *Store) ForgetPort(ctx context.Context, kind string) error {
	return s.Delete(ctx, portKeyPrefix+kind)
}

// LocalConfig returns the stored overrides; a missing record is the zero value.
func (s *Store) LocalConfig(ctx context.Context) (LocalConfig, error) {
	var lc LocalConfig
	v, ok, err := s.Get(ctx, localConfigKey)
	if err != nil || !ok {
		return lc, err
	}
	if err := json.Unmarshal([]byte(v), &lc); err != nil {
		return LocalConfig{}, fmt.Errorf("store: decode local config: %w", err)
	}
	return lc, nil
}

// SetLocalConfig replaces the stored overrides.
func (s *Store) SetLocalConfig(ctx context.Context, lc LocalConfig) error {
	b, err := json.Marshal(lc)
	if err != nil {
		return fmt.Errorf("store: encode local config: %w", err)
	}
	return s.Set(ctx, localConfigKey, string(b))
}
