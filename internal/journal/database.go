package journal

import (
	"context"
	"errors"
	"time"

	"github.com/ksred/klear-journal/internal/types"
	"gorm.io/gorm"
)

const resourceTypeTrade = "trade"

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) owned(ctx context.Context, ownerID uint) *gorm.DB {
	return d.db.WithContext(ctx).Where("owner_id = ?", ownerID)
}

func (d *Database) CreateTrade(ctx context.Context, trade *types.Trade) error {
	return d.db.WithContext(ctx).Create(trade).Error
}

// GetTrade loads a trade owned by ownerID. Trades of other owners are
// reported as gorm.ErrRecordNotFound.
func (d *Database) GetTrade(ctx context.Context, ownerID, id uint) (*types.Trade, error) {
	var trade types.Trade
	if err := d.owned(ctx, ownerID).Where("id = ?", id).First(&trade).Error; err != nil {
		return nil, err
	}
	return &trade, nil
}

func (d *Database) SaveTrade(ctx context.Context, trade *types.Trade) error {
	return d.db.WithContext(ctx).Save(trade).Error
}

func (d *Database) DeleteTrade(ctx context.Context, ownerID, id uint) error {
	res := d.owned(ctx, ownerID).Where("id = ?", id).Delete(&types.Trade{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListTrades returns the owner's trades matching f, newest entry first
func (d *Database) ListTrades(ctx context.Context, ownerID uint, f ListFilters) ([]types.Trade, error) {
	q := d.owned(ctx, ownerID).Model(&types.Trade{}).Scopes(f.Scope)
	switch f.Status {
	case types.StatusOpen:
		q = q.Where("exit_price IS NULL AND exit_time IS NULL")
	case types.StatusClosed:
		q = q.Where("exit_price IS NOT NULL OR exit_time IS NOT NULL")
	}

	trades := []types.Trade{}
	err := q.Order("entry_time DESC, id DESC").Find(&trades).Error
	return trades, err
}

// CreateTrades inserts trades in one transaction; either all rows land or
// none do
func (d *Database) CreateTrades(ctx context.Context, trades []*types.Trade) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(trades, 100).Error
	})
}

// CreateTradeWithIdempotency creates a new trade and idempotency record in a transaction
func (d *Database) CreateTradeWithIdempotency(ctx context.Context, trade *types.Trade, idempotencyKey string, now, expiresAt time.Time) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A lapsed record still holds the unique key until the sweeper runs.
		if err := tx.Where("owner_id = ? AND idempotency_key = ? AND expires_at <= ?", trade.OwnerID, idempotencyKey, types.StorageTime(now)).
			Delete(&types.IdempotencyRecord{}).Error; err != nil {
			return err
		}

		if err := tx.Create(trade).Error; err != nil {
			return err
		}

		record := types.IdempotencyRecord{
			OwnerID:        trade.OwnerID,
			IdempotencyKey: idempotencyKey,
			ResourceID:     trade.ID,
			ResourceType:   resourceTypeTrade,
			ExpiresAt:      types.StorageTime(expiresAt),
		}
		return tx.Create(&record).Error
	})
}

// GetIdempotencyRecord retrieves a record still live at now, nil if there is none
func (d *Database) GetIdempotencyRecord(ctx context.Context, ownerID uint, key string, now time.Time) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	err := d.owned(ctx, ownerID).
		Where("idempotency_key = ? AND expires_at > ?", key, types.StorageTime(now)).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteExpiredIdempotencyRecords removes records that lapsed before cutoff
func (d *Database) DeleteExpiredIdempotencyRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	res := d.db.WithContext(ctx).
		Where("expires_at <= ?", types.StorageTime(cutoff)).
		Delete(&types.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}

// FindSettings loads the owner's settings without writing. An owner with no
// row gets unsaved zero defaults; SaveSettings inserts it on first update.
func (d *Database) FindSettings(ctx context.Context, ownerID uint) (*types.UserTradeSettings, error) {
	var settings types.UserTradeSettings
	res := d.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Limit(1).
		Find(&settings)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return &types.UserTradeSettings{UserID: ownerID}, nil
	}
	return &settings, nil
}

func (d *Database) SaveSettings(ctx context.Context, settings *types.UserTradeSettings) error {
	return d.db.WithContext(ctx).Save(settings).Error
}
