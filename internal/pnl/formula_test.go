package pnl

import (
	"testing"
	"time"

	"github.com/ksred/klear-journal/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exitAt = time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)

// formulaVectors are evaluated both in Go and by the query engine.
var formulaVectors = []struct {
	name    string
	fixture tradeFixture
	want    string // empty for open trades
}{
	{"buy profit", tradeFixture{"AAPL", types.SideBuy, "10", "100", "110", exitAt}, "100"},
	{"sell profit", tradeFixture{"AAPL", types.SideSell, "5", "100", "90", exitAt}, "50"},
	{"buy loss", tradeFixture{"MSFT", types.SideBuy, "3", "250.5", "240.25", exitAt}, "-30.75"},
	{"sell loss", tradeFixture{"TSLA", types.SideSell, "2.25", "10.5", "12.75", exitAt}, "-5.0625"},
	{"sub cent", tradeFixture{"PENNY", types.SideBuy, "1.5", "0.1234", "0.1235", exitAt}, "0.00015"},
	{"flat", tradeFixture{"IBM", types.SideBuy, "7", "100", "100", exitAt}, "0"},
	{"open", tradeFixture{"GOOG", types.SideBuy, "1", "500", "", time.Time{}}, ""},
}

func TestCompute(t *testing.T) {
	for _, tt := range formulaVectors {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(newTrade(1, tt.fixture))
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(*got), "got %s", got)
		})
	}
}

func TestExprMatchesCompute(t *testing.T) {
	db := openTestDB(t)
	owner := createUser(t, db, "vectors")

	byID := map[uint]*types.Trade{}
	for _, tt := range formulaVectors {
		tr := newTrade(owner, tt.fixture)
		require.NoError(t, db.Create(tr).Error)
		byID[tr.ID] = tr
	}

	var rows []struct {
		ID    uint
		Units *int64
	}
	require.NoError(t, db.Table("trades").Select("id, "+Expr()+" AS units").Scan(&rows).Error)
	require.Len(t, rows, len(formulaVectors))

	for _, row := range rows {
		want := Compute(byID[row.ID])
		if want == nil {
			assert.Nil(t, row.Units, "open trade %d", row.ID)
			continue
		}
		require.NotNil(t, row.Units)
		assert.True(t, want.Equal(FromExprUnits(*row.Units)), "trade %d: go %s sql %s", row.ID, want, FromExprUnits(*row.Units))
	}
}

func TestComputeNilIffOpen(t *testing.T) {
	now := time.Now()

	tr := newTrade(1, tradeFixture{"X", types.SideBuy, "1", "1", "", time.Time{}})
	assert.Nil(t, Compute(tr))
	assert.Equal(t, types.StatusOpen, StatusOf(tr))

	// Only one exit field never reaches storage, but the status still counts it.
	tr.ExitTime = &now
	assert.Nil(t, Compute(tr))
	assert.Equal(t, types.StatusClosed, StatusOf(tr))
}

func TestExprShape(t *testing.T) {
	assert.Equal(t, "((exit_price - price) * quantity * CASE side WHEN 'BUY' THEN 1 WHEN 'SELL' THEN -1 END)", Expr())
}

func TestFormat(t *testing.T) {
	v := decimal.RequireFromString("-5.0625")
	assert.Equal(t, "-5.06", Format(&v))
	assert.Equal(t, "", Format(nil))
	assert.Equal(t, -5.06, Float(v))
}
