package calendar

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-journal/internal/pnl"
	"github.com/ksred/klear-journal/pkg/middleware"
	"github.com/ksred/klear-journal/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// StatsSource supplies closed-trade aggregates for the grid.
type StatsSource interface {
	DailyStats(ctx context.Context, ownerID uint, from, to time.Time, loc *time.Location) ([]pnl.DayStat, error)
	LatestExit(ctx context.Context, ownerID uint) (*time.Time, error)
}

// Links holds the paths cells and navigation point at.
type Links struct {
	Trades   string
	Calendar string
}

// Cell is one day of the grid. Filler cells from adjacent months carry only
// the date.
type Cell struct {
	Date    string   `json:"date"`
	Day     int      `json:"day"`
	InMonth bool     `json:"in_month"`
	PnL     *float64 `json:"pnl"`
	Trades  int      `json:"trades"`
	Wins    int      `json:"wins"`
	WinRate float64  `json:"win_rate"`
	Color   string   `json:"color"`
	Link    *string  `json:"link"`
	Tooltip string   `json:"tooltip"`
}

// MonthRef points at a neighbouring month.
type MonthRef struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Link  string `json:"link"`
}

// Month is the calendar payload.
type Month struct {
	Year       int      `json:"year"`
	Month      int      `json:"month"`
	Name       string   `json:"name"`
	Weeks      [][]Cell `json:"weeks"`
	Prev       MonthRef `json:"prev"`
	Next       MonthRef `json:"next"`
	TotalPnL   float64  `json:"month_total_pnl"`
	TradeCount int      `json:"month_trade_count"`
	Wins       int      `json:"month_wins"`
	WinRate    float64  `json:"month_win_rate"`
	MaxAbs     float64  `json:"max_abs_pnl"`
}

// Service builds month grids
type Service struct {
	stats StatsSource
	links Links
	now   func() time.Time
}

// NewService creates a calendar service reading aggregates from stats
func NewService(stats StatsSource, links Links) *Service {
	return &Service{
		stats: stats,
		links: links,
		now:   time.Now,
	}
}

// Build assembles the Monday-first grid for year/month in loc
func (s *Service) Build(ctx context.Context, ownerID uint, year int, month time.Month, loc *time.Location) (*Month, error) {
	logger := log.With().
		Uint("owner_id", ownerID).
		Int("year", year).
		Int("month", int(month)).
		Str("service", "calendar").
		Logger()

	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	next := first.AddDate(0, 1, 0)

	stats, err := s.stats.DailyStats(ctx, ownerID, first, next, loc)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load daily stats")
		return nil, fmt.Errorf("failed to load daily stats: %w", err)
	}

	byDate := make(map[string]pnl.DayStat, len(stats))
	maxAbs := decimal.Zero
	total := decimal.Zero
	out := &Month{
		Year:  year,
		Month: int(month),
		Name:  month.String(),
	}
	for _, st := range stats {
		byDate[st.Date.Format(dateLayout)] = st
		if abs := st.PnL.Abs(); abs.GreaterThan(maxAbs) {
			maxAbs = abs
		}
		total = total.Add(st.PnL)
		out.TradeCount += st.Trades
		out.Wins += st.Wins
	}
	out.TotalPnL = pnl.Float(total)
	out.MaxAbs = pnl.Float(maxAbs)
	if out.TradeCount > 0 {
		out.WinRate = float64(out.Wins) / float64(out.TradeCount) * 100
	}

	for _, week := range weeks(first) {
		row := make([]Cell, 0, len(week))
		for _, day := range week {
			row = append(row, s.cell(day, month, byDate, maxAbs))
		}
		out.Weeks = append(out.Weeks, row)
	}

	py, pm := shift(year, month, -1)
	ny, nm := shift(year, month, 1)
	out.Prev = s.monthRef(py, pm)
	out.Next = s.monthRef(ny, nm)

	logger.Debug().
		Int("active_days", len(stats)).
		Int("trades", out.TradeCount).
		Float64("total_pnl", out.TotalPnL).
		Msg("built calendar month")

	return out, nil
}

// DefaultMonth picks the month of the latest closed trade, or the current
// month when the owner has none
func (s *Service) DefaultMonth(ctx context.Context, ownerID uint, loc *time.Location) (int, time.Month, error) {
	latest, err := s.stats.LatestExit(ctx, ownerID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load latest exit: %w", err)
	}
	ref := s.now()
	if latest != nil {
		ref = *latest
	}
	ref = ref.In(loc)
	return ref.Year(), ref.Month(), nil
}

func (s *Service) cell(day time.Time, month time.Month, byDate map[string]pnl.DayStat, maxAbs decimal.Decimal) Cell {
	date := day.Format(dateLayout)
	c := Cell{Date: date, Day: day.Day()}
	if day.Month() != month {
		return c
	}

	c.InMonth = true
	st, ok := byDate[date]
	if !ok {
		c.Color = NeutralColor
		c.Tooltip = "No closed trades"
		return c
	}

	v := pnl.Float(st.PnL)
	link := fmt.Sprintf("%s?start=%s&end=%s", s.links.Trades, date, date)
	c.PnL = &v
	c.Trades = st.Trades
	c.Wins = st.Wins
	c.WinRate = st.WinRate()
	c.Color = Color(st.PnL, maxAbs)
	c.Link = &link
	c.Tooltip = fmt.Sprintf("PnL: %s | Trades: %d | Win rate: %.1f%%", pnl.Round(st.PnL).StringFixed(pnl.DisplayPlaces), st.Trades, c.WinRate)
	return c
}

func (s *Service) monthRef(year int, month time.Month) MonthRef {
	return MonthRef{
		Year:  year,
		Month: int(month),
		Link:  fmt.Sprintf("%s?year=%d&month=%d", s.links.Calendar, year, int(month)),
	}
}

// weeks returns the Monday-first rows covering the month starting at first,
// padded with days of the adjacent months.
func weeks(first time.Time) [][]time.Time {
	last := first.AddDate(0, 1, -1)
	start := first.AddDate(0, 0, -mondayOffset(first.Weekday()))
	end := last.AddDate(0, 0, 6-mondayOffset(last.Weekday()))

	var rows [][]time.Time
	for day := start; !day.After(end); {
		week := make([]time.Time, 7)
		for i := range week {
			week[i] = day
			day = day.AddDate(0, 0, 1)
		}
		rows = append(rows, week)
	}
	return rows
}

func mondayOffset(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// shift moves delta months from year/month, wrapping years.
func shift(year int, month time.Month, delta int) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, delta, 0)
	return t.Year(), t.Month()
}

// parseMonth validates the year/month query values.
func parseMonth(yearStr, monthStr string) (int, time.Month, bool) {
	year, err := strconv.Atoi(yearStr)
	if err != nil || year < 1 || year > 9999 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, time.Month(month), true
}

// GinHandlers contains HTTP handlers for the calendar endpoint
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for the calendar endpoint
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CalendarHandler handles GET requests for a month grid
// Query parameters: year, month (both absent: latest trade month; invalid: current month), tz
func (h *GinHandlers) CalendarHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID := middleware.UserID(c)
		loc := middleware.Location(c)

		yearStr, monthStr := c.Query("year"), c.Query("month")
		year, month, ok := parseMonth(yearStr, monthStr)
		if !ok {
			if yearStr == "" && monthStr == "" {
				var err error
				year, month, err = h.service.DefaultMonth(ctx, userID, loc)
				if err != nil {
					response.Handle(c, nil, err)
					return
				}
			} else {
				now := h.service.now().In(loc)
				year, month = now.Year(), now.Month()
			}
		}

		grid, err := h.service.Build(ctx, userID, year, month, loc)
		response.Handle(c, grid, err)
	}
}
