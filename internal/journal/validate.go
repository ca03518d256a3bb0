package journal

import (
	"fmt"

	"github.com/ksred/klear-journal/internal/money"
	"github.com/ksred/klear-journal/internal/types"
	"github.com/ksred/klear-journal/pkg/validation"
	"github.com/shopspring/decimal"
)

const maxDigits = 10

var (
	// Largest quantity*price accepted on either leg. It keeps every
	// per-trade PnL below 10^10 so the scaled SQL arithmetic stays in int64.
	maxNotional = decimal.New(1, 10)

	maxQuantity = decimal.New(1, maxDigits-types.QuantityPlaces)
	maxPrice    = decimal.New(1, maxDigits-types.PricePlaces)
)

const (
	msgRequired         = "This field is required."
	msgExitPair         = "Exit price and exit time must be set together (both or neither)."
	msgExitBeforeEntry  = "Exit time cannot be earlier than entry time."
	msgQuantityPositive = "Quantity must be greater than 0."
	msgPricePositive    = "Entry price must be greater than 0."
	msgExitPositive     = "Exit price must be greater than 0."
	msgReopen           = "A closed trade cannot be reopened."
)

// Validate checks t against the trade invariants. It expects t to be
// normalized (BeforeSave does the same before any write).
func Validate(t *types.Trade) error {
	errs := validation.Errors{}
	validateInto(t, errs)
	return errs.Err()
}

func validateInto(t *types.Trade, errs validation.Errors) {
	switch {
	case t.Symbol == "":
		errs.Add("symbol", msgRequired)
	case len(t.Symbol) > types.MaxSymbolLength:
		errs.Add("symbol", fmt.Sprintf("Ensure this field has no more than %d characters.", types.MaxSymbolLength))
	}

	switch {
	case t.Side == "":
		errs.Add("side", msgRequired)
	case !t.Side.Valid():
		errs.Add("side", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", t.Side))
	}

	if t.EntryTime.IsZero() {
		errs.Add("entry_time", msgRequired)
	}

	checkAmount(errs, "quantity", t.Quantity, msgQuantityPositive, types.QuantityPlaces, maxQuantity)
	checkAmount(errs, "price", t.Price, msgPricePositive, types.PricePlaces, maxPrice)

	if (t.ExitPrice == nil) != (t.ExitTime == nil) {
		errs.Add(validation.NonField, msgExitPair)
	}
	if t.ExitTime != nil && !t.EntryTime.IsZero() && t.ExitTime.Before(t.EntryTime) {
		errs.Add("exit_time", msgExitBeforeEntry)
	}
	if t.ExitPrice != nil {
		checkAmount(errs, "exit_price", *t.ExitPrice, msgExitPositive, types.PricePlaces, maxPrice)
	}

	notional := t.Quantity.Mul(t.Price.Decimal)
	if t.ExitPrice != nil {
		notional = decimal.Max(notional, t.Quantity.Mul(t.ExitPrice.Decimal))
	}
	if notional.GreaterThan(maxNotional) {
		errs.Add(validation.NonField, fmt.Sprintf("Quantity multiplied by price must not exceed %s.", maxNotional))
	}
}

func checkAmount(errs validation.Errors, field string, v money.Fixed, positive string, places int32, limit decimal.Decimal) {
	switch {
	case !v.IsPositive():
		errs.Add(field, positive)
	case !v.FitsScale(places):
		errs.Add(field, fmt.Sprintf("Ensure that there are no more than %d decimal places.", places))
	case v.GreaterThanOrEqual(limit):
		errs.Add(field, fmt.Sprintf("Ensure that there are no more than %d digits in total.", maxDigits))
	}
}
