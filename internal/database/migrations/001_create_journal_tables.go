package migrations

import (
	"github.com/ksred/klear-journal/internal/types"
	"gorm.io/gorm"
)

// CreateJournalTables creates users, settings, trades and idempotency records.
// The trades table carries CHECK constraints mirroring write-time validation.
func CreateJournalTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.User{},
		&types.UserTradeSettings{},
		&types.Trade{},
		&types.IdempotencyRecord{},
	)
}
