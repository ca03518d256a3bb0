package pnl

import (
	"testing"
	"time"

	"github.com/ksred/klear-journal/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func query(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestParseFilters(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	f := ParseFilters(query(map[string]string{
		"symbol": " aa ",
		"side":   "sell",
		"start":  "2025-03-01",
		"end":    "2025-03-31",
	}), ny)

	assert.Equal(t, "aa", f.Symbol)
	assert.Equal(t, types.SideSell, f.Side)
	require.NotNil(t, f.Start)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, ny), *f.Start)
	require.NotNil(t, f.End)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, ny), *f.End)
	assert.True(t, f.EndExclusive)
}

func TestParseFiltersDatetimeBounds(t *testing.T) {
	f := ParseFilters(query(map[string]string{
		"start": "2025-03-01T09:30",
		"end":   "2025-03-01T16:00:00Z",
	}), time.UTC)

	require.NotNil(t, f.Start)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), *f.Start)
	require.NotNil(t, f.End)
	assert.True(t, f.End.Equal(time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC)))
	assert.False(t, f.EndExclusive)
}

func TestParseFiltersIgnoresMalformed(t *testing.T) {
	f := ParseFilters(query(map[string]string{
		"side":  "HOLD",
		"start": "yesterday",
		"end":   "2025-13-45",
	}), time.UTC)

	assert.Equal(t, Filters{}, f)
}

func TestScopeFiltersTrades(t *testing.T) {
	db := openTestDB(t)
	owner := createUser(t, db, "filters")
	day := func(d, h int) time.Time { return time.Date(2025, 3, d, h, 0, 0, 0, time.UTC) }

	seed(t, db, owner,
		tradeFixture{"AAPL", types.SideBuy, "1", "100", "110", day(1, 10)},
		tradeFixture{"AAL", types.SideSell, "1", "20", "19", day(2, 23)},
		tradeFixture{"MSFT", types.SideBuy, "1", "300", "290", day(3, 12)},
		tradeFixture{"A_B", types.SideBuy, "1", "1", "2", day(4, 12)},
	)

	count := func(f Filters) int64 {
		var n int64
		require.NoError(t, db.Table("trades").Scopes(f.Scope).Count(&n).Error)
		return n
	}

	secondDay := day(2, 0)
	ps := func(t time.Time) *time.Time { return &t }

	tests := []struct {
		name string
		f    Filters
		want int64
	}{
		{"no filter", Filters{}, 4},
		{"symbol substring case-insensitive", Filters{Symbol: "aa"}, 2},
		{"like wildcards are literal", Filters{Symbol: "_"}, 1},
		{"side", Filters{Side: types.SideBuy}, 3},
		{"start inclusive", Filters{Start: ps(day(3, 12))}, 2},
		{"datetime end inclusive", Filters{End: ps(day(3, 12))}, 3},
		{"date-only end covers the day", ParseFilters(query(map[string]string{"end": "2025-03-02"}), time.UTC), 2},
		{"exclusive end", Filters{End: &secondDay, EndExclusive: true}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, count(tt.f))
		})
	}
}

func TestScopeIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	owner := createUser(t, db, "idem")
	seed(t, db, owner,
		tradeFixture{"AAPL", types.SideBuy, "1", "100", "110", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		tradeFixture{"AAPL", types.SideSell, "1", "100", "110", time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)},
		tradeFixture{"MSFT", types.SideBuy, "1", "100", "110", time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)},
	)

	f := ParseFilters(query(map[string]string{"symbol": "aap", "side": "BUY", "start": "2025-03-01", "end": "2025-03-03"}), time.UTC)

	var once, twice []uint
	require.NoError(t, db.Table("trades").Scopes(f.Scope).Order("id").Pluck("id", &once).Error)
	require.NoError(t, db.Table("trades").Scopes(f.Scope, f.Scope).Order("id").Pluck("id", &twice).Error)

	assert.Len(t, once, 1)
	assert.Equal(t, once, twice)
}
