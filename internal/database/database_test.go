package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/ksred/klear-journal/internal/money"
	"github.com/ksred/klear-journal/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"users", "user_trade_settings", "trades", "idempotency_records"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("trades", "idx_trades_owner_exit_time"))
}

func TestCheckConstraints(t *testing.T) {
	db := openTestDB(t)
	owner := types.User{Username: "alice", PasswordHash: "x"}
	require.NoError(t, db.Create(&owner).Error)

	entry := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	exitPrice := money.MustParse("110")
	exitTime := entry.Add(time.Hour)
	before := entry.Add(-time.Hour)

	tests := []struct {
		name    string
		mutate  func(*types.Trade)
		wantErr bool
	}{
		{"open trade", func(*types.Trade) {}, false},
		{"closed trade", func(tr *types.Trade) { tr.ExitPrice, tr.ExitTime = &exitPrice, &exitTime }, false},
		{"exit price without time", func(tr *types.Trade) { tr.ExitPrice = &exitPrice }, true},
		{"exit time without price", func(tr *types.Trade) { tr.ExitTime = &exitTime }, true},
		{"zero quantity", func(tr *types.Trade) { tr.Quantity = money.MustParse("0") }, true},
		{"exit before entry", func(tr *types.Trade) { tr.ExitPrice, tr.ExitTime = &exitPrice, &before }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := types.Trade{
				OwnerID:   owner.ID,
				Symbol:    "aapl",
				Side:      types.SideBuy,
				Quantity:  money.MustParse("10"),
				Price:     money.MustParse("100"),
				EntryTime: entry,
			}
			tt.mutate(&trade)

			err := db.Create(&trade).Error
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			var stored types.Trade
			require.NoError(t, db.First(&stored, trade.ID).Error)
			assert.Equal(t, "AAPL", stored.Symbol)
			assert.True(t, stored.Quantity.Equal(money.MustParse("10").Decimal))
		})
	}
}
