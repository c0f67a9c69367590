package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lap is one recorded lap crossing. The race host owns these rows; the gate
// engine only ever flips the deleted flag.
type Lap struct {
	ID           string    `json:"id"`
	Pilot        string    `json:"pilot"`
	LapNumber    int       `json:"lap_number"`
	TimestampMS  int64     `json:"timestamp_ms"`
	Deleted      bool      `json:"deleted"`
	DeleteReason *string   `json:"delete_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// InsertLap records a new lap. A missing ID is assigned a fresh UUID.
func (db *DB) InsertLap(lap *Lap) error {
	if lap.ID == "" {
		lap.ID = uuid.NewString()
	}
	_, err := db.Exec(`
		INSERT INTO laps (lap_id, pilot, lap_number, timestamp_ms)
		VALUES (?, ?, ?, ?)
	`, lap.ID, lap.Pilot, lap.LapNumber, lap.TimestampMS)
	if err != nil {
		return fmt.Errorf("failed to insert lap: %w", err)
	}
	return nil
}

// MarkLapInvalid flips the lap's deleted flag and records why. Implements
// the engine's lap mutation contract.
func (db *DB) MarkLapInvalid(id, reason string) error {
	res, err := db.Exec(`
		UPDATE laps SET deleted = 1, delete_reason = ? WHERE lap_id = ?
	`, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark lap %s invalid: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("lap %s not found", id)
	}
	return nil
}

// ListLaps returns all laps in recording order, validity flags included.
func (db *DB) ListLaps() ([]Lap, error) {
	rows, err := db.Query(`
		SELECT lap_id, pilot, lap_number, timestamp_ms, deleted, delete_reason, created_at
		FROM laps
		ORDER BY created_at, lap_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list laps: %w", err)
	}
	defer rows.Close()

	var laps []Lap
	for rows.Next() {
		var lap Lap
		var reason sql.NullString
		if err := rows.Scan(&lap.ID, &lap.Pilot, &lap.LapNumber, &lap.TimestampMS, &lap.Deleted, &reason, &lap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lap: %w", err)
		}
		if reason.Valid {
			lap.DeleteReason = &reason.String
		}
		laps = append(laps, lap)
	}
	return laps, rows.Err()
}
