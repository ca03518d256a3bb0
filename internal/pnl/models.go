package pnl

import (
	"time"

	"github.com/shopspring/decimal"
)

// Series is the chart payload: parallel labels and values.
type Series struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

func newSeries(n int) Series {
	return Series{
		Labels: make([]string, 0, n),
		Values: make([]float64, 0, n),
	}
}

func (s *Series) add(label string, v decimal.Decimal) {
	s.Labels = append(s.Labels, label)
	s.Values = append(s.Values, Float(v))
}

// DayStat aggregates the closed trades of one local calendar date.
type DayStat struct {
	Date   time.Time // midnight in the viewer's location
	PnL    decimal.Decimal
	Trades int
	Wins   int
}

// WinRate is wins/trades*100, or 0 for a day without trades.
func (d DayStat) WinRate() float64 {
	return winRate(d.Wins, d.Trades)
}

// Summary is the dashboard headline for a filtered set of trades.
type Summary struct {
	TotalPnL     float64  `json:"total_pnl"`
	ClosedTrades int      `json:"closed_trades"`
	OpenTrades   int64    `json:"open_trades"`
	Wins         int      `json:"wins"`
	Losses       int      `json:"losses"`
	WinRate      float64  `json:"win_rate"`
	BestTrade    *float64 `json:"best_trade"`
	WorstTrade   *float64 `json:"worst_trade"`
}

func winRate(wins, trades int) float64 {
	if trades == 0 {
		return 0
	}
	return float64(wins) / float64(trades) * 100
}

// closedRow is one closed trade as returned by the aggregation query.
type closedRow struct {
	ID       uint
	Symbol   string
	ExitTime time.Time
	Units    int64
}

func (r closedRow) pnl() decimal.Decimal {
	return FromExprUnits(r.Units)
}
