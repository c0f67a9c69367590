package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// Option returns the stored value for name, or "" if the option is unset.
// Implements the engine's configuration-store contract.
func (db *DB) Option(name string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM options WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read option %s: %w", name, err)
	}
	return value, nil
}

// SetOption persists a value under name, overwriting any previous value.
func (db *DB) SetOption(name, value string) error {
	_, err := db.Exec(`
		INSERT INTO options (name, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, name, value)
	if err != nil {
		return fmt.Errorf("failed to set option %s: %w", name, err)
	}
	return nil
}
