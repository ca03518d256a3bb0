package types

import (
	"strings"
	"time"

	"github.com/ksred/klear-journal/internal/money"
	"gorm.io/gorm"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes s and reports whether it names a known side.
func ParseSide(s string) (Side, bool) {
	side := Side(strings.ToUpper(strings.TrimSpace(s)))
	return side, side.Valid()
}

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Status is derived from the exit fields, never stored.
type Status string

const (
	StatusOpen   Status = "Open"
	StatusClosed Status = "Closed"
)

// MaxSymbolLength bounds the ticker column.
const MaxSymbolLength = 10

// Fractional digits accepted on input and rendered on export. Both fit
// within money.Scale.
const (
	QuantityPlaces = 2
	PricePlaces    = 4
)

// User owns trades and settings.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email        string    `gorm:"size:254" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserTradeSettings holds per-user defaults applied when a trade is created
// with empty fields.
type UserTradeSettings struct {
	ID              uint         `gorm:"primaryKey" json:"-"`
	UserID          uint         `gorm:"uniqueIndex;not null" json:"-"`
	DefaultSymbol   string       `gorm:"size:10" json:"default_symbol"`
	DefaultSide     Side         `gorm:"size:4" json:"default_side"`
	DefaultQuantity *money.Fixed `json:"default_quantity"`
	DefaultNotes    string       `gorm:"type:text" json:"default_notes"`
	Timezone        string       `gorm:"size:64" json:"timezone"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Trade is one buy or sell position, open until both exit fields are set.
type Trade struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	OwnerID   uint         `gorm:"not null;index" json:"-"`
	Symbol    string       `gorm:"size:10;not null" json:"symbol"`
	Side      Side         `gorm:"size:4;not null" json:"side"`
	Quantity  money.Fixed  `gorm:"not null;check:chk_trades_quantity_positive,quantity > 0" json:"quantity"`
	Price     money.Fixed  `gorm:"not null;check:chk_trades_price_positive,price > 0" json:"price"`
	EntryTime time.Time    `gorm:"not null;check:chk_trades_exit_after_entry,exit_time IS NULL OR exit_time >= entry_time" json:"entry_time"`
	ExitPrice *money.Fixed `gorm:"check:chk_trades_exit_price_positive,exit_price IS NULL OR exit_price > 0" json:"exit_price"`
	ExitTime  *time.Time   `gorm:"check:chk_trades_exit_pair,(exit_price IS NULL) = (exit_time IS NULL)" json:"exit_time"`
	Notes     string       `gorm:"type:text" json:"notes"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// IsClosed reports whether either exit field is present.
func (t *Trade) IsClosed() bool {
	return t.ExitPrice != nil || t.ExitTime != nil
}

// Normalize applies the storage representation: trimmed uppercase symbol and
// UTC timestamps truncated to whole seconds.
func (t *Trade) Normalize() {
	t.Symbol = NormalizeSymbol(t.Symbol)
	t.Side = Side(strings.ToUpper(strings.TrimSpace(string(t.Side))))
	t.EntryTime = StorageTime(t.EntryTime)
	if t.ExitTime != nil {
		exit := StorageTime(*t.ExitTime)
		t.ExitTime = &exit
	}
}

// BeforeSave keeps every write path on the storage representation.
func (t *Trade) BeforeSave(tx *gorm.DB) error {
	t.Normalize()
	return nil
}

// NormalizeSymbol trims and uppercases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// StorageTime converts ts to the stored form.
func StorageTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return ts
	}
	return ts.UTC().Truncate(time.Second)
}

// IdempotencyRecord remembers the trade created for a client-supplied key.
type IdempotencyRecord struct {
	ID             uint      `gorm:"primaryKey"`
	OwnerID        uint      `gorm:"not null;uniqueIndex:idx_idempotency_owner_key"`
	IdempotencyKey string    `gorm:"size:255;not null;uniqueIndex:idx_idempotency_owner_key" json:"idempotency_key"`
	ResourceID     uint      `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// TradeInput is a trade as submitted by a client or an import row. Nil
// fields were not supplied; Create fills them from settings defaults.
type TradeInput struct {
	Symbol    string       `json:"symbol"`
	Side      string       `json:"side"`
	Quantity  *money.Fixed `json:"quantity"`
	Price     *money.Fixed `json:"price"`
	EntryTime *time.Time   `json:"entry_time"`
	ExitPrice *money.Fixed `json:"exit_price"`
	ExitTime  *time.Time   `json:"exit_time"`
	Notes     *string      `json:"notes"`
}
