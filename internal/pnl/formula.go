package pnl

import (
	"fmt"
	"strings"

	"github.com/ksred/klear-journal/internal/money"
	"github.com/ksred/klear-journal/internal/types"
	"github.com/shopspring/decimal"
)

// Realized PnL is (exit_price - price) * quantity * sign(side). This table is
// the only place the formula's side dependence is written down: Compute
// evaluates it in Go and Expr renders it for the query engine.
var directions = []struct {
	side types.Side
	sign int64
}{
	{types.SideBuy, 1},
	{types.SideSell, -1},
}

// ExprScale is the decimal exponent of Expr results. Two scaled columns are
// multiplied, so the product carries twice the column scale.
const ExprScale = 2 * money.Scale

// DisplayPlaces is the precision PnL is persisted and shown with.
const DisplayPlaces = 2

func signOf(side types.Side) (int64, bool) {
	for _, d := range directions {
		if d.side == side {
			return d.sign, true
		}
	}
	return 0, false
}

// Compute returns the realized PnL of t, or nil while the trade is open.
func Compute(t *types.Trade) *decimal.Decimal {
	if t.ExitPrice == nil || t.ExitTime == nil {
		return nil
	}
	sign, ok := signOf(t.Side)
	if !ok {
		return nil
	}

	v := t.ExitPrice.Sub(t.Price.Decimal).
		Mul(t.Quantity.Decimal).
		Mul(decimal.NewFromInt(sign))
	return &v
}

// StatusOf derives Open/Closed from the exit fields.
func StatusOf(t *types.Trade) types.Status {
	if t.IsClosed() {
		return types.StatusClosed
	}
	return types.StatusOpen
}

// Expr is the SQL form of Compute over the scaled integer columns. It yields
// NULL for open trades and is exact integer arithmetic in 10^-ExprScale units.
func Expr() string {
	var b strings.Builder
	b.WriteString("((exit_price - price) * quantity * CASE side")
	for _, d := range directions {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", d.side, d.sign)
	}
	b.WriteString(" END)")
	return b.String()
}

// FromExprUnits converts a value produced by Expr back to a
// decimal.
func FromExprUnits(units int64) decimal.Decimal {
	return money.FromUnits(units, ExprScale)
}

// Round applies display precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayPlaces)
}

// Float converts d to the chart representation.
func Float(d decimal.Decimal) float64 {
	return Round(d).InexactFloat64()
}

// Format renders an optional PnL, empty when the trade is open.
func Format(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(DisplayPlaces)
}
