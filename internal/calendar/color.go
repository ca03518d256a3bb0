package calendar

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// NeutralColor marks in-month days without a signed PnL.
const NeutralColor = "#f3f4f6"

const (
	minIntensity = 0.15
	maxIntensity = 1.0

	// Light base shared by both hues; the dominant channel of each hue fades
	// by darkStep, the other two by lightStep.
	baseDominant = 252.0
	baseOther    = 220.0
	lightStep    = 60.0
	darkStep     = 120.0
)

// Intensity maps |pnl| relative to the month's largest absolute daily PnL
// onto [minIntensity, maxIntensity]. It is 0 when there is nothing to scale.
func Intensity(pnl, maxAbs decimal.Decimal) float64 {
	if !maxAbs.IsPositive() || pnl.IsZero() {
		return 0
	}
	ratio := pnl.Abs().Div(maxAbs).InexactFloat64()
	return math.Min(maxIntensity, math.Max(minIntensity, ratio))
}

// Color returns a hex colour, green for gains and red for losses, darker as
// Intensity grows.
func Color(pnl, maxAbs decimal.Decimal) string {
	i := Intensity(pnl, maxAbs)
	if i == 0 {
		return NeutralColor
	}

	dominant := baseDominant - lightStep*i
	other := baseOther - darkStep*i
	if pnl.IsPositive() {
		return hex(other, dominant, other)
	}
	return hex(dominant, other, other)
}

func hex(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x", channel(r), channel(g), channel(b))
}

func channel(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
