package pnl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-journal/pkg/middleware"
	"github.com/ksred/klear-journal/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrOwnerRequired is returned when an aggregation is attempted without an
// owner scope.
var ErrOwnerRequired = errors.New("pnl: owner is required")

const (
	dayLabelLayout    = "2006-01-02"
	secondLabelLayout = "2006-01-02T15:04:05"
)

// Service computes PnL aggregates over one owner's closed trades
type Service struct {
	db *Database
}

// NewService creates a new PnL service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Daily sums PnL per exit date in loc, ascending by date
func (s *Service) Daily(ctx context.Context, ownerID uint, f Filters, loc *time.Location) (Series, error) {
	stats, err := s.dailyStats(ctx, ownerID, f, loc)
	if err != nil {
		return Series{}, err
	}

	series := newSeries(len(stats))
	for _, day := range stats {
		series.add(day.Date.Format(dayLabelLayout), day.PnL)
	}
	return series, nil
}

// BySymbol sums PnL per symbol, ascending by symbol. Each row's PnL fits
// int64 but a symbol's total need not, so the sum is taken in decimal.
func (s *Service) BySymbol(ctx context.Context, ownerID uint, f Filters) (Series, error) {
	rows, err := s.closedRows(ctx, ownerID, f)
	if err != nil {
		return Series{}, err
	}

	totals := make(map[string]decimal.Decimal)
	for _, row := range rows {
		totals[row.Symbol] = totals[row.Symbol].Add(row.pnl())
	}
	symbols := make([]string, 0, len(totals))
	for symbol := range totals {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	series := newSeries(len(symbols))
	for _, symbol := range symbols {
		series.add(symbol, totals[symbol])
	}
	return series, nil
}

// TradeSeries returns one point per closed trade, ascending by exit time
func (s *Service) TradeSeries(ctx context.Context, ownerID uint, f Filters, loc *time.Location) (Series, error) {
	rows, err := s.closedRows(ctx, ownerID, f)
	if err != nil {
		return Series{}, err
	}

	series := newSeries(len(rows))
	for _, row := range rows {
		series.add(row.ExitTime.In(loc).Format(secondLabelLayout), row.pnl())
	}
	return series, nil
}

// DailyStats aggregates closed trades with exit_time in [from, to) per local date
func (s *Service) DailyStats(ctx context.Context, ownerID uint, from, to time.Time, loc *time.Location) ([]DayStat, error) {
	return s.dailyStats(ctx, ownerID, Filters{Start: &from, End: &to, EndExclusive: true}, loc)
}

// Summary reports totals, counts and win rate for the filtered trades
func (s *Service) Summary(ctx context.Context, ownerID uint, f Filters) (*Summary, error) {
	rows, err := s.closedRows(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}

	open, err := s.db.CountOpen(ctx, ownerID, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count open trades: %w", err)
	}
	// An exit window cannot match an open trade
	if f.HasWindow() {
		open = 0
	}

	summary := &Summary{ClosedTrades: len(rows), OpenTrades: open}
	total := decimal.Zero
	var best, worst *decimal.Decimal
	for _, row := range rows {
		v := row.pnl()
		total = total.Add(v)
		switch {
		case v.IsPositive():
			summary.Wins++
		case v.IsNegative():
			summary.Losses++
		}
		if best == nil || v.GreaterThan(*best) {
			best = &v
		}
		if worst == nil || v.LessThan(*worst) {
			worst = &v
		}
	}

	summary.TotalPnL = Float(total)
	summary.WinRate = winRate(summary.Wins, summary.ClosedTrades)
	if best != nil {
		b, w := Float(*best), Float(*worst)
		summary.BestTrade, summary.WorstTrade = &b, &w
	}
	return summary, nil
}

// LatestExit returns the owner's most recent exit time, nil without closed trades
func (s *Service) LatestExit(ctx context.Context, ownerID uint) (*time.Time, error) {
	if ownerID == 0 {
		return nil, ErrOwnerRequired
	}
	return s.db.LatestExit(ctx, ownerID)
}

func (s *Service) closedRows(ctx context.Context, ownerID uint, f Filters) ([]closedRow, error) {
	if ownerID == 0 {
		return nil, ErrOwnerRequired
	}

	rows, err := s.db.ClosedPnL(ctx, ownerID, f)
	if err != nil {
		return nil, fmt.Errorf("failed to load closed trades: %w", err)
	}
	return rows, nil
}

// dailyStats buckets rows by local exit date. The store has no time zone
// support, so grouping happens here on rows already ordered by exit_time.
func (s *Service) dailyStats(ctx context.Context, ownerID uint, f Filters, loc *time.Location) ([]DayStat, error) {
	rows, err := s.closedRows(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}

	stats := make([]DayStat, 0)
	for _, row := range rows {
		local := row.ExitTime.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

		if n := len(stats); n == 0 || !stats[n-1].Date.Equal(day) {
			stats = append(stats, DayStat{Date: day, PnL: decimal.Zero})
		}
		cur := &stats[len(stats)-1]
		v := row.pnl()
		cur.PnL = cur.PnL.Add(v)
		cur.Trades++
		if v.IsPositive() {
			cur.Wins++
		}
	}

	log.Debug().
		Uint("owner_id", ownerID).
		Int("trades", len(rows)).
		Int("days", len(stats)).
		Str("location", loc.String()).
		Msg("aggregated daily pnl")

	return stats, nil
}

// GinHandlers contains HTTP handlers for chart endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for chart endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// DailyPnLHandler handles GET requests for PnL summed per exit date
// Query parameters: symbol, side, start, end, tz
func (h *GinHandlers) DailyPnLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := middleware.Location(c)
		series, err := h.service.Daily(c.Request.Context(), middleware.UserID(c), ParseFilters(c.Query, loc), loc)
		response.Handle(c, series, err)
	}
}

// SymbolPnLHandler handles GET requests for PnL summed per symbol
func (h *GinHandlers) SymbolPnLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := middleware.Location(c)
		series, err := h.service.BySymbol(c.Request.Context(), middleware.UserID(c), ParseFilters(c.Query, loc))
		response.Handle(c, series, err)
	}
}

// TradeSeriesHandler handles GET requests for per-trade PnL in exit order
func (h *GinHandlers) TradeSeriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := middleware.Location(c)
		series, err := h.service.TradeSeries(c.Request.Context(), middleware.UserID(c), ParseFilters(c.Query, loc), loc)
		response.Handle(c, series, err)
	}
}

// SummaryHandler handles GET requests for the dashboard summary
func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := middleware.Location(c)
		summary, err := h.service.Summary(c.Request.Context(), middleware.UserID(c), ParseFilters(c.Query, loc))
		response.Handle(c, summary, err)
	}
}
