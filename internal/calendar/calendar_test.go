package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-journal/internal/pnl"
	"github.com/ksred/klear-journal/pkg/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	days   []pnl.DayStat
	latest *time.Time
	err    error

	gotFrom, gotTo time.Time
}

func (f *fakeStats) DailyStats(_ context.Context, _ uint, from, to time.Time, _ *time.Location) ([]pnl.DayStat, error) {
	f.gotFrom, f.gotTo = from, to
	return f.days, f.err
}

func (f *fakeStats) LatestExit(context.Context, uint) (*time.Time, error) {
	return f.latest, f.err
}

var testLinks = Links{Trades: "/api/v1/trades", Calendar: "/api/v1/calendar"}

func day(y int, m time.Month, d int, pnlStr string, trades, wins int) pnl.DayStat {
	return pnl.DayStat{
		Date:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		PnL:    decimal.RequireFromString(pnlStr),
		Trades: trades,
		Wins:   wins,
	}
}

func TestBuildGridShape(t *testing.T) {
	tests := []struct {
		name      string
		year      int
		month     time.Month
		weeks     int
		firstDate string
		lastDate  string
	}{
		{"month starting monday", 2021, time.February, 4, "2021-02-01", "2021-02-28"},
		{"padded both ends", 2024, time.March, 5, "2024-02-26", "2024-03-31"},
		{"six rows", 2021, time.August, 6, "2021-07-26", "2021-09-05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&fakeStats{}, testLinks)
			m, err := svc.Build(context.Background(), 1, tt.year, tt.month, time.UTC)
			require.NoError(t, err)

			require.Len(t, m.Weeks, tt.weeks)
			inMonth := 0
			for _, week := range m.Weeks {
				require.Len(t, week, 7)
				for _, c := range week {
					if c.InMonth {
						inMonth++
						assert.Equal(t, NeutralColor, c.Color)
						assert.Equal(t, "No closed trades", c.Tooltip)
					} else {
						assert.Empty(t, c.Color)
					}
					assert.Nil(t, c.PnL)
					assert.Nil(t, c.Link)
				}
			}
			last := time.Date(tt.year, tt.month+1, 0, 0, 0, 0, 0, time.UTC).Day()
			assert.Equal(t, last, inMonth)
			assert.Equal(t, tt.firstDate, m.Weeks[0][0].Date)
			assert.Equal(t, tt.lastDate, m.Weeks[len(m.Weeks)-1][6].Date)

			first, err := time.Parse(dateLayout, m.Weeks[0][0].Date)
			require.NoError(t, err)
			assert.Equal(t, time.Monday, first.Weekday())
		})
	}
}

func TestBuildQueriesMonthWindow(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	stats := &fakeStats{}
	_, err = NewService(stats, testLinks).Build(context.Background(), 1, 2024, time.December, ny)
	require.NoError(t, err)

	assert.True(t, stats.gotFrom.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, ny)))
	assert.True(t, stats.gotTo.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, ny)))
}

func TestBuildCells(t *testing.T) {
	stats := &fakeStats{days: []pnl.DayStat{
		day(2024, time.March, 4, "200", 2, 2),
		day(2024, time.March, 5, "-50.5", 2, 1),
		day(2024, time.March, 6, "0", 1, 0),
	}}
	m, err := NewService(stats, testLinks).Build(context.Background(), 1, 2024, time.March, time.UTC)
	require.NoError(t, err)

	cells := map[string]Cell{}
	for _, week := range m.Weeks {
		for _, c := range week {
			cells[c.Date] = c
		}
	}

	win := cells["2024-03-04"]
	require.NotNil(t, win.PnL)
	assert.Equal(t, 200.0, *win.PnL)
	assert.Equal(t, 2, win.Trades)
	assert.Equal(t, 100.0, win.WinRate)
	require.NotNil(t, win.Link)
	assert.Equal(t, "/api/v1/trades?start=2024-03-04&end=2024-03-04", *win.Link)
	assert.Equal(t, "PnL: 200.00 | Trades: 2 | Win rate: 100.0%", win.Tooltip)
	assert.Equal(t, Color(decimal.NewFromInt(200), decimal.NewFromInt(200)), win.Color)

	loss := cells["2024-03-05"]
	require.NotNil(t, loss.PnL)
	assert.Equal(t, -50.5, *loss.PnL)
	assert.Equal(t, 50.0, loss.WinRate)
	assert.NotEqual(t, NeutralColor, loss.Color)

	flat := cells["2024-03-06"]
	require.NotNil(t, flat.PnL)
	assert.Equal(t, 0.0, *flat.PnL)
	assert.Equal(t, NeutralColor, flat.Color)
	assert.NotNil(t, flat.Link)

	assert.Equal(t, 149.5, m.TotalPnL)
	assert.Equal(t, 5, m.TradeCount)
	assert.Equal(t, 3, m.Wins)
	assert.Equal(t, 60.0, m.WinRate)
	assert.Equal(t, 200.0, m.MaxAbs)
}

func TestBuildNavigationWrapsYears(t *testing.T) {
	svc := NewService(&fakeStats{}, testLinks)

	jan, err := svc.Build(context.Background(), 1, 2024, time.January, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, MonthRef{Year: 2023, Month: 12, Link: "/api/v1/calendar?year=2023&month=12"}, jan.Prev)
	assert.Equal(t, MonthRef{Year: 2024, Month: 2, Link: "/api/v1/calendar?year=2024&month=2"}, jan.Next)

	dec, err := svc.Build(context.Background(), 1, 2024, time.December, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2024, dec.Prev.Year)
	assert.Equal(t, 11, dec.Prev.Month)
	assert.Equal(t, 2025, dec.Next.Year)
	assert.Equal(t, 1, dec.Next.Month)
}

func TestBuildPropagatesErrors(t *testing.T) {
	_, err := NewService(&fakeStats{err: errors.New("boom")}, testLinks).
		Build(context.Background(), 1, 2024, time.March, time.UTC)
	assert.Error(t, err)
}

func TestDefaultMonth(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	svc := NewService(&fakeStats{}, testLinks)
	svc.now = func() time.Time { return now }
	y, m, err := svc.DefaultMonth(context.Background(), 1, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.June, m)

	latest := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	svc = NewService(&fakeStats{latest: &latest}, testLinks)
	y, m, err = svc.DefaultMonth(context.Background(), 1, ny)
	require.NoError(t, err)
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.February, m, "latest exit falls on Feb 29 in New York")
}

func TestCalendarHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	latest := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := NewService(&fakeStats{latest: &latest}, testLinks)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	router := gin.New()
	router.GET("/calendar", func(c *gin.Context) {
		middleware.SetUserID(c, 7)
	}, NewGinHandlers(svc).CalendarHandler())

	tests := []struct {
		name      string
		query     string
		wantYear  int
		wantMonth int
	}{
		{"explicit", "?year=2023&month=11", 2023, 11},
		{"absent uses latest trade", "", 2024, 3},
		{"invalid month uses current", "?year=2023&month=13", 2025, 6},
		{"garbage uses current", "?year=abc&month=2", 2025, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/calendar"+tt.query, nil)
			router.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)

			var body struct {
				Success bool  `json:"success"`
				Data    Month `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.True(t, body.Success)
			assert.Equal(t, tt.wantYear, body.Data.Year)
			assert.Equal(t, tt.wantMonth, body.Data.Month)
			assert.NotEmpty(t, body.Data.Weeks)
		})
	}
}
