package database

import (
	"fmt"

	"github.com/ksred/klear-journal/internal/database/migrations"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the sqlite database at dsn and brings the schema up to date
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs every schema migration in order
func Migrate(db *gorm.DB) error {
	steps := []struct {
		name string
		run  func(*gorm.DB) error
	}{
		{"create_journal_tables", migrations.CreateJournalTables},
		{"add_trade_indexes", migrations.AddTradeIndexes},
	}

	for _, step := range steps {
		if err := step.run(db); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", step.name, err)
		}
	}
	return nil
}
