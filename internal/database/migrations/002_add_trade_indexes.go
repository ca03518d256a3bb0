package migrations

import (
	"gorm.io/gorm"
)

// AddTradeIndexes creates the indexes used by the list and aggregation queries
func AddTradeIndexes(db *gorm.DB) error {
	indexes := []string{
		// Closed-trade aggregation by owner over an exit window
		`CREATE INDEX IF NOT EXISTS idx_trades_owner_exit_time
		 ON trades(owner_id, exit_time)`,

		// Per-symbol grouping
		`CREATE INDEX IF NOT EXISTS idx_trades_owner_symbol
		 ON trades(owner_id, symbol)`,

		// Trade list ordering (newest entry first)
		`CREATE INDEX IF NOT EXISTS idx_trades_owner_entry_time
		 ON trades(owner_id, entry_time)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
