package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-journal/internal/config"
	"github.com/ksred/klear-journal/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Auth:        config.Auth{JWTSecret: "test-secret", TokenTTL: time.Hour},
		Journal:     config.Journal{Timezone: "UTC", MaxImportRows: 100},
		Idempotency: config.Idempotency{TTL: time.Hour},
	}
	db, err := database.NewDatabase("file:server_e2e?mode=memory&cache=shared")
	require.NoError(t, err)

	router := gin.New()
	NewApp(cfg, db).Routes(router)
	return router
}

type client struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func (c *client) do(method, path string, body interface{}) (int, json.RawMessage) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env.Data
}

func TestJournalFlow(t *testing.T) {
	router := newTestRouter(t)
	c := &client{t: t, router: router}

	code, _ := c.do(http.MethodGet, "/api/v1/healthz", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = c.do(http.MethodGet, "/api/v1/trades", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = c.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "henry", "email": "h@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, code)

	code, data := c.do(http.MethodPost, "/api/v1/auth/token", map[string]string{
		"username": "henry", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, code)
	var token struct {
		Token string `json:"jwt_token"`
	}
	require.NoError(t, json.Unmarshal(data, &token))
	c.token = token.Token

	trades := []map[string]interface{}{
		{"symbol": "TSLA", "side": "BUY", "quantity": 1, "price": 100, "entry_time": "2025-03-03T14:00:00Z", "exit_price": 110, "exit_time": "2025-03-03T16:00:00Z"},
		{"symbol": "AAPL", "side": "SELL", "quantity": 2, "price": 50, "entry_time": "2025-03-04T14:00:00Z", "exit_price": 55, "exit_time": "2025-03-05T02:00:00Z"},
		{"symbol": "AAPL", "side": "BUY", "quantity": 3, "price": 20, "entry_time": "2025-03-06T14:00:00Z"},
	}
	for _, tr := range trades {
		code, _ = c.do(http.MethodPost, "/api/v1/trades", tr)
		require.Equal(t, http.StatusCreated, code)
	}

	var series struct {
		Labels []string  `json:"labels"`
		Values []float64 `json:"values"`
	}
	code, data = c.do(http.MethodGet, "/api/v1/charts/daily-pnl", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(data, &series))
	assert.Equal(t, []string{"2025-03-03", "2025-03-05"}, series.Labels)
	assert.Equal(t, []float64{10, -10}, series.Values)

	code, data = c.do(http.MethodGet, "/api/v1/charts/daily-pnl?tz=America/New_York", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(data, &series))
	assert.Equal(t, []string{"2025-03-03", "2025-03-04"}, series.Labels)

	code, data = c.do(http.MethodGet, "/api/v1/charts/symbol-pnl", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(data, &series))
	assert.Equal(t, []string{"AAPL", "TSLA"}, series.Labels)
	assert.Equal(t, []float64{-10, 10}, series.Values)

	code, data = c.do(http.MethodGet, "/api/v1/charts/trade-pnl-series", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(data, &series))
	assert.Equal(t, []string{"2025-03-03T16:00:00", "2025-03-05T02:00:00"}, series.Labels)

	code, _ = c.do(http.MethodPut, "/api/v1/settings", map[string]string{"timezone": "America/New_York"})
	require.Equal(t, http.StatusOK, code)

	code, data = c.do(http.MethodGet, "/api/v1/calendar", nil)
	require.Equal(t, http.StatusOK, code)
	var month struct {
		Year       int     `json:"year"`
		Month      int     `json:"month"`
		TotalPnL   float64 `json:"month_total_pnl"`
		TradeCount int     `json:"month_trade_count"`
	}
	require.NoError(t, json.Unmarshal(data, &month))
	assert.Equal(t, 2025, month.Year)
	assert.Equal(t, 3, month.Month)
	assert.Equal(t, 0.0, month.TotalPnL)
	assert.Equal(t, 2, month.TradeCount)

	code, data = c.do(http.MethodGet, "/api/v1/summary", nil)
	require.Equal(t, http.StatusOK, code)
	var summary struct {
		ClosedTrades int   `json:"closed_trades"`
		OpenTrades   int64 `json:"open_trades"`
	}
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 2, summary.ClosedTrades)
	assert.Equal(t, int64(1), summary.OpenTrades)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trades/export?status=open", nil)
	req.Header.Set("Authorization", "Bearer "+c.token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "AAPL,BUY,3.00,20.0000,,,,")
}
