package db

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the Postgres store, applies migrations and seeds the
// default slot layout.
func Connect(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, err
	}
	if err := seedSlots(database); err != nil {
		return nil, fmt.Errorf("seed slots: %w", err)
	}

	log.Info().Msg("database ready")
	return database, nil
}
