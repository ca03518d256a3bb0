package money

import (
	"database/sql/driver"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept in storage. Prices carry
// four, quantities two, so a single scale covers every column.
const Scale = 4

// Fixed is an exact decimal persisted as an integer count of 10^-Scale units.
// Keeping the column integral lets SQLite evaluate PnL expressions without
// floating point drift.
type Fixed struct {
	decimal.Decimal
}

// New wraps d.
func New(d decimal.Decimal) Fixed {
	return Fixed{Decimal: d}
}

// NewFromString parses s ("12.5", "-3") into a Fixed.
func NewFromString(s string) (Fixed, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Fixed{}, err
	}
	return Fixed{Decimal: d}, nil
}

// MustParse is NewFromString for literals in tests and fixtures.
func MustParse(s string) Fixed {
	f, err := NewFromString(s)
	if err != nil {
		panic(err)
	}
	return f
}

// FromUnits converts a stored integer back to a decimal with the given
// exponent, e.g. FromUnits(v, 2*Scale) for a product of two columns.
func FromUnits(units int64, scale int32) decimal.Decimal {
	return decimal.New(units, -scale)
}

// Units returns the stored integer representation.
func (f Fixed) Units() int64 {
	return f.Decimal.Shift(Scale).Round(0).IntPart()
}

// FitsScale reports whether f has no more than places fractional digits.
func (f Fixed) FitsScale(places int32) bool {
	return f.Decimal.Equal(f.Decimal.Truncate(places))
}

// Value implements driver.Valuer.
func (f Fixed) Value() (driver.Value, error) {
	return f.Units(), nil
}

// Scan implements sql.Scanner.
func (f *Fixed) Scan(value interface{}) error {
	switch v := value.(type) {
	case int64:
		f.Decimal = FromUnits(v, Scale)
	case float64:
		// Only reachable when a column was written outside this type.
		f.Decimal = decimal.NewFromFloat(v).Shift(-Scale)
	case []byte:
		return f.scanString(string(v))
	case string:
		return f.scanString(v)
	case nil:
		f.Decimal = decimal.Zero
	default:
		return fmt.Errorf("money: cannot scan %T into Fixed", value)
	}
	return nil
}

func (f *Fixed) scanString(s string) error {
	units, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("money: invalid stored value %q: %w", s, err)
	}
	f.Decimal = FromUnits(units, Scale)
	return nil
}

// GormDataType pins the column type regardless of dialect.
func (Fixed) GormDataType() string {
	return "integer"
}
