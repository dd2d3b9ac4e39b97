package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/nailosophy/internal/overlay"
)

// CalibrationKey is the settings key holding the mapper parameters.
const CalibrationKey = "calibration"

// SettingsRepository provides key-value access to application settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set inserts or replaces the value stored under key.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}

// Delete removes key. Deleting a missing key returns ErrNotFound.
func (r *SettingsRepository) Delete(key string) error {
	result, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Calibration loads the saved mapper parameters. When none are saved it
// returns the defaults together with ErrNotFound.
func (r *SettingsRepository) Calibration() (overlay.Params, error) {
	value, err := r.Get(CalibrationKey)
	if err != nil {
		return overlay.DefaultParams(), err
	}

	var p overlay.Params
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		return overlay.DefaultParams(), fmt.Errorf("decode calibration: %w", err)
	}
	if err := p.Validate(); err != nil {
		return overlay.DefaultParams(), fmt.Errorf("stored calibration: %w", err)
	}
	return p, nil
}

// SaveCalibration validates and stores the mapper parameters.
func (r *SettingsRepository) SaveCalibration(p overlay.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.Set(CalibrationKey, string(data))
}
