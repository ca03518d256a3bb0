package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/klear-journal/internal/csvio"
	"github.com/ksred/klear-journal/internal/types"
	"github.com/ksred/klear-journal/pkg/middleware"
	"github.com/ksred/klear-journal/pkg/response"
	"github.com/ksred/klear-journal/pkg/validation"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var ErrOwnerRequired = errors.New("journal: owner is required")

// Options tunes a Service; zero values select the defaults
type Options struct {
	IdempotencyTTL time.Duration
	MaxImportRows  int
}

// Service handles trade bookkeeping and per-user settings
type Service struct {
	db             *Database
	idempotencyTTL time.Duration
	maxImportRows  int
	now            func() time.Time
}

// NewService creates a new journal service with the given database connection
func NewService(gormDB *gorm.DB, opts Options) *Service {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.MaxImportRows <= 0 {
		opts.MaxImportRows = 5000
	}
	return &Service{
		db:             NewDatabase(gormDB),
		idempotencyTTL: opts.IdempotencyTTL,
		maxImportRows:  opts.MaxImportRows,
		now:            time.Now,
	}
}

// newTrade builds a trade from in, filling fields the client left out from
// settings. Defaults are only ever applied here, at creation.
func (s *Service) newTrade(ownerID uint, in types.TradeInput, settings *types.UserTradeSettings, errs validation.Errors) *types.Trade {
	if strings.TrimSpace(in.Symbol) == "" {
		in.Symbol = settings.DefaultSymbol
	}
	if strings.TrimSpace(in.Side) == "" {
		in.Side = string(settings.DefaultSide)
	}
	if in.Quantity == nil && settings.DefaultQuantity != nil {
		q := *settings.DefaultQuantity
		in.Quantity = &q
	}
	if in.Notes == nil && settings.DefaultNotes != "" {
		notes := settings.DefaultNotes
		in.Notes = &notes
	}
	if in.EntryTime == nil {
		now := s.now()
		in.EntryTime = &now
	}

	trade := &types.Trade{OwnerID: ownerID}
	apply(trade, in, errs)
	return trade
}

// apply copies every field of in onto trade and validates the result
func apply(trade *types.Trade, in types.TradeInput, errs validation.Errors) {
	if in.Quantity == nil {
		errs.Add("quantity", msgRequired)
	} else {
		trade.Quantity = *in.Quantity
	}
	if in.Price == nil {
		errs.Add("price", msgRequired)
	} else {
		trade.Price = *in.Price
	}
	if in.EntryTime != nil {
		trade.EntryTime = *in.EntryTime
	}

	trade.Symbol = in.Symbol
	trade.Side = types.Side(in.Side)
	trade.ExitPrice = in.ExitPrice
	trade.ExitTime = in.ExitTime
	trade.Notes = ""
	if in.Notes != nil {
		trade.Notes = *in.Notes
	}

	trade.Normalize()
	validateInto(trade, errs)
}

// CreateTrade records a new trade. With a non-empty idempotency key a retry
// returns the trade created by the first call and replayed is true.
func (s *Service) CreateTrade(ctx context.Context, ownerID uint, in types.TradeInput, idempotencyKey string) (trade *types.Trade, replayed bool, err error) {
	if ownerID == 0 {
		return nil, false, ErrOwnerRequired
	}

	logger := log.With().
		Uint("owner_id", ownerID).
		Str("idempotency_key", idempotencyKey).
		Str("service", "journal").
		Logger()

	if idempotencyKey != "" {
		existing, err := s.replay(ctx, ownerID, idempotencyKey)
		if err != nil || existing != nil {
			return existing, existing != nil, err
		}
	}

	settings, err := s.db.FindSettings(ctx, ownerID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load settings: %w", err)
	}

	errs := validation.Errors{}
	trade = s.newTrade(ownerID, in, settings, errs)
	if err := errs.Err(); err != nil {
		return nil, false, err
	}

	if idempotencyKey == "" {
		err = s.db.CreateTrade(ctx, trade)
	} else {
		now := s.now()
		err = s.db.CreateTradeWithIdempotency(ctx, trade, idempotencyKey, now, now.Add(s.idempotencyTTL))
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race with a concurrent request carrying the same key.
			existing, rerr := s.replay(ctx, ownerID, idempotencyKey)
			if rerr == nil && existing != nil {
				return existing, true, nil
			}
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to create trade")
		return nil, false, fmt.Errorf("failed to create trade: %w", err)
	}

	logger.Info().
		Uint("trade_id", trade.ID).
		Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).
		Msg("trade created")
	return trade, false, nil
}

func (s *Service) replay(ctx context.Context, ownerID uint, key string) (*types.Trade, error) {
	record, err := s.db.GetIdempotencyRecord(ctx, ownerID, key, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load idempotency record: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	trade, err := s.db.GetTrade(ctx, ownerID, record.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load replayed trade: %w", err)
	}
	return trade, nil
}

// GetTrade retrieves one of the owner's trades
func (s *Service) GetTrade(ctx context.Context, ownerID, id uint) (*types.Trade, error) {
	if ownerID == 0 {
		return nil, ErrOwnerRequired
	}
	return s.db.GetTrade(ctx, ownerID, id)
}

// UpdateTrade replaces the editable fields of a trade. A missing entry_time
// keeps the stored one; settings defaults are not applied. A closed trade
// stays closed.
func (s *Service) UpdateTrade(ctx context.Context, ownerID, id uint, in types.TradeInput) (*types.Trade, error) {
	trade, err := s.GetTrade(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	errs := validation.Errors{}
	if trade.IsClosed() && in.ExitPrice == nil && in.ExitTime == nil {
		errs.Add("exit_price", msgReopen)
	}
	apply(trade, in, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if err := s.db.SaveTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to update trade: %w", err)
	}
	return trade, nil
}

// DeleteTrade removes one of the owner's trades
func (s *Service) DeleteTrade(ctx context.Context, ownerID, id uint) error {
	if ownerID == 0 {
		return ErrOwnerRequired
	}
	return s.db.DeleteTrade(ctx, ownerID, id)
}

// ListTrades returns the owner's trades matching f, newest entry first
func (s *Service) ListTrades(ctx context.Context, ownerID uint, f ListFilters) ([]types.Trade, error) {
	if ownerID == 0 {
		return nil, ErrOwnerRequired
	}
	return s.db.ListTrades(ctx, ownerID, f)
}

// Export writes the owner's trades matching f as CSV
func (s *Service) Export(ctx context.Context, ownerID uint, f ListFilters, w io.Writer, loc *time.Location) error {
	trades, err := s.ListTrades(ctx, ownerID, f)
	if err != nil {
		return err
	}
	return csvio.Export(w, trades, loc)
}

// Import creates one trade per CSV row. Rows are validated like API input
// and nothing is written unless every row passes. dryRun validates only.
func (s *Service) Import(ctx context.Context, ownerID uint, r io.Reader, dryRun bool, loc *time.Location) (*ImportResult, error) {
	if ownerID == 0 {
		return nil, ErrOwnerRequired
	}

	result := &ImportResult{
		BatchID: uuid.New().String(),
		DryRun:  dryRun,
		Errors:  []string{},
	}
	logger := log.With().
		Uint("owner_id", ownerID).
		Str("batch_id", result.BatchID).
		Bool("dry_run", dryRun).
		Str("service", "journal").
		Logger()

	rows, rowErrs, err := csvio.Read(r, loc)
	if err != nil {
		return nil, validation.Errors{"file": err.Error()}
	}
	if n := len(rows) + len(rowErrs); n > s.maxImportRows {
		return nil, validation.Errors{"file": fmt.Sprintf("Too many rows: %d (limit %d).", n, s.maxImportRows)}
	}
	if len(rows)+len(rowErrs) == 0 {
		return nil, validation.Errors{"file": "The file contains no trades."}
	}

	settings, err := s.db.FindSettings(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	for _, re := range rowErrs {
		result.Errors = append(result.Errors, rowMessages(re.Line, re.Fields)...)
	}
	trades := make([]*types.Trade, 0, len(rows))
	for _, row := range rows {
		errs := validation.Errors{}
		trade := s.newTrade(ownerID, row.Input, settings, errs)
		if len(errs) > 0 {
			result.Errors = append(result.Errors, rowMessages(row.Line, errs)...)
			continue
		}
		trades = append(trades, trade)
	}

	if len(result.Errors) > 0 {
		logger.Info().Int("errors", len(result.Errors)).Msg("import rejected")
		return result, nil
	}

	if !dryRun {
		if err := s.db.CreateTrades(ctx, trades); err != nil {
			logger.Error().Err(err).Msg("failed to import trades")
			return nil, fmt.Errorf("failed to import trades: %w", err)
		}
	}
	result.Imported = len(trades)

	logger.Info().Int("imported", result.Imported).Msg("import completed")
	return result, nil
}

func rowMessages(line int, errs validation.Errors) []string {
	out := make([]string, 0, len(errs))
	for _, field := range errs.Fields() {
		out = append(out, fmt.Sprintf("line %d: %s: %s", line, field, errs[field]))
	}
	return out
}

// Settings returns the owner's trade defaults
func (s *Service) Settings(ctx context.Context, ownerID uint) (*types.UserTradeSettings, error) {
	if ownerID == 0 {
		return nil, ErrOwnerRequired
	}
	return s.db.FindSettings(ctx, ownerID)
}

// UpdateSettings replaces the owner's trade defaults
func (s *Service) UpdateSettings(ctx context.Context, ownerID uint, in SettingsInput) (*types.UserTradeSettings, error) {
	settings, err := s.Settings(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	errs := validation.Errors{}
	symbol := types.NormalizeSymbol(in.DefaultSymbol)
	if len(symbol) > types.MaxSymbolLength {
		errs.Add("default_symbol", fmt.Sprintf("Ensure this field has no more than %d characters.", types.MaxSymbolLength))
	}

	var side types.Side
	if strings.TrimSpace(in.DefaultSide) != "" {
		var ok bool
		if side, ok = types.ParseSide(in.DefaultSide); !ok {
			errs.Add("default_side", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", in.DefaultSide))
		}
	}

	if q := in.DefaultQuantity; q != nil {
		checkAmount(errs, "default_quantity", *q, msgQuantityPositive, types.QuantityPlaces, maxQuantity)
	}

	tz := strings.TrimSpace(in.Timezone)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs.Add("timezone", "Unknown time zone.")
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	settings.DefaultSymbol = symbol
	settings.DefaultSide = side
	settings.DefaultQuantity = in.DefaultQuantity
	settings.DefaultNotes = in.DefaultNotes
	settings.Timezone = tz
	if err := s.db.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return settings, nil
}

// Timezone returns the owner's stored IANA zone name, empty when unset
func (s *Service) Timezone(ctx context.Context, ownerID uint) (string, error) {
	settings, err := s.Settings(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return settings.Timezone, nil
}

// PurgeExpiredKeys deletes idempotency records that have lapsed
func (s *Service) PurgeExpiredKeys(ctx context.Context) (int64, error) {
	return s.db.DeleteExpiredIdempotencyRecords(ctx, s.now())
}

// GinHandlers contains HTTP handlers for journal endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for journal endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func tradeID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.NotFound(c, "Trade not found")
		return 0, false
	}
	return uint(id), true
}

// ListTradesHandler handles GET requests listing trades
// Query parameters: symbol, side, start, end, status
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		f := ParseListFilters(c.Query, middleware.Location(c))
		trades, err := h.service.ListTrades(c.Request.Context(), middleware.UserID(c), f)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		out := make([]TradeResponse, 0, len(trades))
		for i := range trades {
			out = append(out, NewTradeResponse(&trades[i]))
		}
		response.Success(c, out)
	}
}

// CreateTradeHandler handles POST requests to record a trade
// An optional Idempotency-Key header makes retries safe
func (h *GinHandlers) CreateTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in types.TradeInput
		if err := c.ShouldBindJSON(&in); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		trade, replayed, err := h.service.CreateTrade(c.Request.Context(), middleware.UserID(c), in, idempotencyKey)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		if replayed {
			c.Header("Idempotent-Replayed", "true")
		}
		response.Success(c, NewTradeResponse(trade))
	}
}

// GetTradeHandler handles GET requests for a single trade
// URL parameter: id
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tradeID(c)
		if !ok {
			return
		}

		trade, err := h.service.GetTrade(c.Request.Context(), middleware.UserID(c), id)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, NewTradeResponse(trade))
	}
}

// UpdateTradeHandler handles PUT requests replacing a trade
// URL parameter: id
func (h *GinHandlers) UpdateTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tradeID(c)
		if !ok {
			return
		}

		var in types.TradeInput
		if err := c.ShouldBindJSON(&in); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		trade, err := h.service.UpdateTrade(c.Request.Context(), middleware.UserID(c), id, in)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, NewTradeResponse(trade))
	}
}

// DeleteTradeHandler handles DELETE requests
// URL parameter: id
func (h *GinHandlers) DeleteTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tradeID(c)
		if !ok {
			return
		}

		if err := h.service.DeleteTrade(c.Request.Context(), middleware.UserID(c), id); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.NoContent(c)
	}
}

// ExportHandler returns the filtered trades as a CSV attachment
// Query parameters: symbol, side, start, end, status, tz
func (h *GinHandlers) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := middleware.Location(c)
		f := ParseListFilters(c.Query, loc)

		var buf bytes.Buffer
		if err := h.service.Export(c.Request.Context(), middleware.UserID(c), f, &buf, loc); err != nil {
			response.Handle(c, nil, err)
			return
		}

		c.Header("Content-Disposition", `attachment; filename="trades.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	}
}

// ImportHandler handles multipart uploads with a "file" part and an optional
// dry_run flag
func (h *GinHandlers) ImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			response.ValidationFailed(c, validation.Errors{"file": "No file was submitted."})
			return
		}
		file, err := header.Open()
		if err != nil {
			response.Handle(c, nil, fmt.Errorf("failed to open upload: %w", err))
			return
		}
		defer file.Close()

		dryRun, _ := strconv.ParseBool(c.PostForm("dry_run"))
		result, err := h.service.Import(c.Request.Context(), middleware.UserID(c), file, dryRun, middleware.Location(c))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if len(result.Errors) > 0 {
			response.Rejected(c, result, "Import rejected; no trades were saved")
			return
		}
		response.Success(c, result)
	}
}

// GetSettingsHandler handles GET requests for the caller's trade defaults
func (h *GinHandlers) GetSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settings, err := h.service.Settings(c.Request.Context(), middleware.UserID(c))
		response.Handle(c, settings, err)
	}
}

// UpdateSettingsHandler handles PUT requests replacing the caller's trade defaults
func (h *GinHandlers) UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in SettingsInput
		if err := c.ShouldBindJSON(&in); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		settings, err := h.service.UpdateSettings(c.Request.Context(), middleware.UserID(c), in)
		response.Handle(c, settings, err)
	}
}
