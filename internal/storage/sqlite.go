// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mcp-calorie-log/internal/ledger"
	"mcp-calorie-log/internal/models"
)

// SQLiteStorage keeps one ledger row and one settings row per identity.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS ledgers (
        identity TEXT PRIMARY KEY,
        bucket_date TEXT NOT NULL,
        payload TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS user_settings (
        identity TEXT PRIMARY KEY,
        target_calories INTEGER NOT NULL,
        maintenance_calories INTEGER NOT NULL,
        updated_at TEXT NOT NULL
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// LoadLedger returns the persisted day for identity, or nil if there is none.
func (s *SQLiteStorage) LoadLedger(ctx context.Context, identity string) (*ledger.State, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM ledgers WHERE identity = ?`, identity).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}

	var state ledger.State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("failed to decode ledger payload: %w", err)
	}
	return &state, nil
}

// SaveLedger replaces the stored day for identity in a single statement.
func (s *SQLiteStorage) SaveLedger(ctx context.Context, identity string, state ledger.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode ledger payload: %w", err)
	}

	query := `
        INSERT INTO ledgers (identity, bucket_date, payload, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(identity) DO UPDATE SET
            bucket_date = excluded.bucket_date,
            payload = excluded.payload,
            updated_at = excluded.updated_at
    `
	if _, err := s.db.ExecContext(ctx, query,
		identity, state.Date, string(payload), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ClearLedger(ctx context.Context, identity string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ledgers WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}
	return nil
}

// LoadSettings returns the saved settings, or defaults when none were saved.
func (s *SQLiteStorage) LoadSettings(ctx context.Context, identity string) (models.Settings, error) {
	settings := models.Settings{Identity: identity}
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx, `
        SELECT target_calories, maintenance_calories, updated_at
        FROM user_settings
        WHERE identity = ?
    `, identity).Scan(&settings.TargetCalories, &settings.MaintenanceCalories, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultSettings(identity), nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to query settings: %w", err)
	}

	if settings.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
		return models.Settings{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return settings, nil
}

func (s *SQLiteStorage) SaveSettings(ctx context.Context, settings models.Settings) error {
	query := `
        INSERT INTO user_settings (identity, target_calories, maintenance_calories, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(identity) DO UPDATE SET
            target_calories = excluded.target_calories,
            maintenance_calories = excluded.maintenance_calories,
            updated_at = excluded.updated_at
    `
	_, err := s.db.ExecContext(ctx, query,
		settings.Identity, settings.TargetCalories, settings.MaintenanceCalories, settings.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
