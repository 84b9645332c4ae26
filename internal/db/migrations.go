package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS slots (
		id          BIGSERIAL PRIMARY KEY,
		slot_id     TEXT NOT NULL,
		occupied    BOOLEAN NOT NULL DEFAULT FALSE,
		x           INT NOT NULL DEFAULT 0,
		y           INT NOT NULL DEFAULT 0,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_slots_slot_id ON slots(slot_id);`,
	`CREATE TABLE IF NOT EXISTS occupancy_history (
		id          BIGSERIAL PRIMARY KEY,
		slot_id     TEXT NOT NULL,
		occupied    BOOLEAN NOT NULL,
		timestamp   TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_occupancy_history_slot_id ON occupancy_history(slot_id);`,
	`CREATE INDEX IF NOT EXISTS idx_occupancy_history_timestamp ON occupancy_history(timestamp);`,
	`CREATE TABLE IF NOT EXISTS car_events (
		id          BIGSERIAL PRIMARY KEY,
		plate       TEXT NOT NULL,
		event       TEXT NOT NULL,
		confidence  NUMERIC(5,2),
		image_path  TEXT,
		detection   JSONB,
		timestamp   TIMESTAMPTZ NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_car_events_plate ON car_events(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_car_events_timestamp ON car_events(timestamp);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// seedSlots inserts the default slot layout on first boot: a 2×2 grid of
// four slots.
func seedSlots(db *gorm.DB) error {
	var count int64
	if err := db.Table("slots").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seed := []struct {
		slotID string
		x, y   int
	}{
		{"1", 0, 0},
		{"2", 1, 0},
		{"3", 0, 1},
		{"4", 1, 1},
	}
	for _, s := range seed {
		stmt := `INSERT INTO slots (slot_id, occupied, x, y) VALUES (?, FALSE, ?, ?)`
		if err := db.Exec(stmt, s.slotID, s.x, s.y).Error; err != nil {
			return fmt.Errorf("seed slot %s: %w", s.slotID, err)
		}
	}
	return nil
}
