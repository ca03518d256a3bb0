package journal

import (
	"strings"
	"time"

	"github.com/ksred/klear-journal/internal/money"
	"github.com/ksred/klear-journal/internal/pnl"
	"github.com/ksred/klear-journal/internal/types"
)

// TradeResponse is a trade with its derived fields
type TradeResponse struct {
	types.Trade
	PnL    *string      `json:"pnl"`
	Status types.Status `json:"status"`
}

// NewTradeResponse attaches pnl and status to t
func NewTradeResponse(t *types.Trade) TradeResponse {
	resp := TradeResponse{Trade: *t, Status: pnl.StatusOf(t)}
	if v := pnl.Compute(t); v != nil {
		s := pnl.Format(v)
		resp.PnL = &s
	}
	return resp
}

// ListFilters narrows GET /trades. Date bounds apply to exit_time like the
// chart filters, so they only ever match closed trades.
type ListFilters struct {
	pnl.Filters
	Status types.Status
}

// ParseListFilters reads the chart filters plus status=open|closed
func ParseListFilters(get func(string) string, loc *time.Location) ListFilters {
	f := ListFilters{Filters: pnl.ParseFilters(get, loc)}
	switch strings.ToLower(strings.TrimSpace(get("status"))) {
	case "open":
		f.Status = types.StatusOpen
	case "closed":
		f.Status = types.StatusClosed
	}
	return f
}

// SettingsInput is the PUT /settings body. Every field replaces the stored
// value.
type SettingsInput struct {
	DefaultSymbol   string       `json:"default_symbol"`
	DefaultSide     string       `json:"default_side"`
	DefaultQuantity *money.Fixed `json:"default_quantity"`
	DefaultNotes    string       `json:"default_notes"`
	Timezone        string       `json:"timezone"`
}

// ImportResult reports the outcome of a CSV upload
type ImportResult struct {
	BatchID  string   `json:"batch_id"`
	Imported int      `json:"imported"`
	DryRun   bool     `json:"dry_run"`
	Errors   []string `json:"errors"`
}
