package pnl

import (
	"context"
	"time"

	"github.com/ksred/klear-journal/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// closed selects the owner's closed trades matching f
func (d *Database) closed(ctx context.Context, ownerID uint, f Filters) *gorm.DB {
	return d.db.WithContext(ctx).
		Model(&types.Trade{}).
		Where("owner_id = ?", ownerID).
		Where("exit_price IS NOT NULL AND exit_time IS NOT NULL").
		Scopes(f.Scope)
}

// ClosedPnL returns one row per matching closed trade, ascending by exit time
func (d *Database) ClosedPnL(ctx context.Context, ownerID uint, f Filters) ([]closedRow, error) {
	var rows []closedRow
	err := d.closed(ctx, ownerID, f).
		Select("id, symbol, exit_time, " + Expr() + " AS units").
		Order("exit_time ASC, id ASC").
		Scan(&rows).Error
	return rows, err
}

// CountOpen counts open trades matching the symbol/side part of f
func (d *Database) CountOpen(ctx context.Context, ownerID uint, f Filters) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).
		Model(&types.Trade{}).
		Where("owner_id = ?", ownerID).
		Where("exit_price IS NULL").
		Scopes(f.WithoutWindow().Scope).
		Count(&n).Error
	return n, err
}

// LatestExit returns the most recent exit time, or nil without closed trades
func (d *Database) LatestExit(ctx context.Context, ownerID uint) (*time.Time, error) {
	var rows []closedRow
	err := d.closed(ctx, ownerID, Filters{}).
		Select("id, exit_time").
		Order("exit_time DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0].ExitTime, nil
}
