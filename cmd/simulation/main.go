package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/klear-journal/internal/config"
	"github.com/ksred/klear-journal/internal/database"
	"github.com/ksred/klear-journal/internal/money"
	"github.com/ksred/klear-journal/internal/server"
	"github.com/ksred/klear-journal/internal/types"
)

const (
	minTrades     = 15
	maxTrades     = 150
	numWorkers    = 5
	closeRatio    = 0.7
	historyDays   = 60
	serverAddress = "http://localhost:8080"
)

var (
	symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}
	sides   = []types.Side{types.SideBuy, types.SideSell}

	errRateLimited = errors.New("rate limited")
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// Journal API routes, labelled the way the router registers them
const (
	routeRegister    = "POST /auth/register"
	routeToken       = "POST /auth/token"
	routeCreateTrade = "POST /trades"
	routeGetTrade    = "GET /trades/:id"
	routeUpdateTrade = "PUT /trades/:id"
	routeDailyPnL    = "GET /charts/daily-pnl"
	routeSymbolPnL   = "GET /charts/symbol-pnl"
	routeTradeSeries = "GET /charts/trade-pnl-series"
	routeSummary     = "GET /summary"
	routeCalendar    = "GET /calendar"
	routeExport      = "GET /trades/export"
)

// journalRoutes is the order latency rows are printed in
var journalRoutes = []string{
	routeRegister,
	routeToken,
	routeCreateTrade,
	routeGetTrade,
	routeUpdateTrade,
	routeDailyPnL,
	routeSymbolPnL,
	routeTradeSeries,
	routeSummary,
	routeCalendar,
	routeExport,
}

// routeLatency collects response times for one journal route
type routeLatency struct {
	mu        sync.Mutex
	durations []time.Duration
	calls     int
	failures  int
}

func (rl *routeLatency) observe(d time.Duration, failed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.durations = append(rl.durations, d)
	rl.calls++
	if failed {
		rl.failures++
	}
}

// latencySummary is the percentile breakdown printed per route
type latencySummary struct {
	Min, Max, Mean, Median, P95, P99 time.Duration
}

func (rl *routeLatency) summarize() latencySummary {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := len(rl.durations)
	if n == 0 {
		return latencySummary{}
	}

	sorted := append([]time.Duration(nil), rl.durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	rank := func(q float64) time.Duration {
		return sorted[int(math.Ceil(float64(n)*q))-1]
	}

	return latencySummary{
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   sum / time.Duration(n),
		Median: sorted[n/2],
		P95:    rank(0.95),
		P99:    rank(0.99),
	}
}

// tradeView is the part of a trade response the simulation inspects
type tradeView struct {
	ID     uint    `json:"id"`
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	PnL    *string `json:"pnl"`
	Status string  `json:"status"`
}

type seriesView struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

type summaryView struct {
	TotalPnL     float64 `json:"total_pnl"`
	ClosedTrades int     `json:"closed_trades"`
	OpenTrades   int64   `json:"open_trades"`
	WinRate      float64 `json:"win_rate"`
}

type calendarView struct {
	Year       int     `json:"year"`
	Month      int     `json:"month"`
	Name       string  `json:"name"`
	TotalPnL   float64 `json:"month_total_pnl"`
	TradeCount int     `json:"month_trade_count"`
}

// createdTrade pairs a stored trade id with the input that created it
type createdTrade struct {
	ID    uint
	Input types.TradeInput
}

// simulationClient handles HTTP communication with the journal API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	latency   map[string]*routeLatency
}

// newSimulationClient registers a throwaway user, authenticates it and
// prepares performance tracking
func newSimulationClient(baseURL string) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		latency: make(map[string]*routeLatency, len(journalRoutes)),
	}
	for _, route := range journalRoutes {
		sc.latency[route] = &routeLatency{}
	}

	username := "sim-" + uuid.New().String()[:8]
	password := uuid.New().String()

	if err := sc.register(username, password); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	token, err := sc.authenticate(username, password)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// do sends one request, records its latency against route and decodes the
// envelope's data into out. A rate-limited request is retried once.
func (sc *simulationClient) do(route, method, path string, headers map[string]string, body, out interface{}) error {
	err := sc.send(route, method, path, headers, body, out)
	if errors.Is(err, errRateLimited) {
		time.Sleep(time.Second)
		err = sc.send(route, method, path, headers, body, out)
	}
	return err
}

func (sc *simulationClient) send(route, method, path string, headers map[string]string, body, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		sc.latency[route].observe(time.Since(start), err != nil)
	}()

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode == http.StatusTooManyRequests {
		return errRateLimited
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if raw, ok := out.(*[]byte); ok {
		*raw = respBody
		return nil
	}
	if out == nil {
		return nil
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return json.Unmarshal(result.Data, out)
}

func (sc *simulationClient) register(username, password string) error {
	return sc.do(routeRegister, http.MethodPost, "/api/v1/auth/register", nil, map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	}, nil)
}

// authenticate exchanges credentials for a JWT token
func (sc *simulationClient) authenticate(username, password string) (string, error) {
	var result struct {
		Token string `json:"jwt_token"`
	}
	err := sc.do(routeToken, http.MethodPost, "/api/v1/auth/token", nil, map[string]string{
		"username": username,
		"password": password,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", errors.New("no token in response")
	}
	return result.Token, nil
}

// createTrade records a new trade; the idempotency key makes retries safe
func (sc *simulationClient) createTrade(in types.TradeInput) (*tradeView, error) {
	var trade tradeView
	headers := map[string]string{"Idempotency-Key": uuid.New().String()}
	if err := sc.do(routeCreateTrade, http.MethodPost, "/api/v1/trades", headers, in, &trade); err != nil {
		return nil, err
	}
	if trade.ID == 0 {
		return nil, errors.New("no trade id in response")
	}
	return &trade, nil
}

// closeTrade replaces the trade with its exit fields set
func (sc *simulationClient) closeTrade(id uint, in types.TradeInput) (*tradeView, error) {
	var trade tradeView
	if err := sc.do(routeUpdateTrade, http.MethodPut, fmt.Sprintf("/api/v1/trades/%d", id), nil, in, &trade); err != nil {
		return nil, err
	}
	return &trade, nil
}

func (sc *simulationClient) getTrade(id uint) (*tradeView, error) {
	var trade tradeView
	if err := sc.do(routeGetTrade, http.MethodGet, fmt.Sprintf("/api/v1/trades/%d", id), nil, nil, &trade); err != nil {
		return nil, err
	}
	return &trade, nil
}

func (sc *simulationClient) series(route, path string) (*seriesView, error) {
	var s seriesView
	if err := sc.do(route, http.MethodGet, path, nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (sc *simulationClient) summary() (*summaryView, error) {
	var s summaryView
	if err := sc.do(routeSummary, http.MethodGet, "/api/v1/summary", nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (sc *simulationClient) calendar() (*calendarView, error) {
	var c calendarView
	if err := sc.do(routeCalendar, http.MethodGet, "/api/v1/calendar", nil, nil, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// exportRows downloads the CSV export and returns its data row count
func (sc *simulationClient) exportRows() (int, error) {
	var raw []byte
	if err := sc.do(routeExport, http.MethodGet, "/api/v1/trades/export", nil, nil, &raw); err != nil {
		return 0, err
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	return len(lines) - 1, nil
}

// printRouteLatency prints call counts and latency percentiles per journal route
func (sc *simulationClient) printRouteLatency() {
	fmt.Println("\nJournal API Latency by Route")
	fmt.Println(strings.Repeat("-", 110))
	fmt.Printf("%-30s %8s %8s %9s %9s %9s %9s %9s %9s\n",
		"Route", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 110))

	for _, route := range journalRoutes {
		rl := sc.latency[route]
		if rl.calls == 0 {
			continue
		}
		l := rl.summarize()
		fmt.Printf("%-30s %8d %8d %9s %9s %9s %9s %9s %9s\n",
			route,
			rl.calls,
			rl.failures,
			l.Min.Round(time.Millisecond),
			l.Max.Round(time.Millisecond),
			l.Mean.Round(time.Millisecond),
			l.Median.Round(time.Millisecond),
			l.P95.Round(time.Millisecond),
			l.P99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 110))
}

// randomTrade builds an open trade with an entry somewhere in the last
// historyDays days
func randomTrade(workerID int, now time.Time) types.TradeInput {
	quantity := money.New(decimal.NewFromInt(int64(rand.Intn(100) + 1)))
	price := money.New(decimal.New(int64(rand.Intn(100000)+10000), -2))
	entry := now.Add(-time.Duration(rand.Intn(historyDays*24*60)) * time.Minute).Truncate(time.Second)
	notes := fmt.Sprintf("simulated by worker %d", workerID)

	return types.TradeInput{
		Symbol:    symbols[rand.Intn(len(symbols))],
		Side:      string(sides[rand.Intn(len(sides))]),
		Quantity:  &quantity,
		Price:     &price,
		EntryTime: &entry,
		Notes:     &notes,
	}
}

// withExit returns in closed at a price a few percent away from entry,
// up to six hours later
func withExit(in types.TradeInput) types.TradeInput {
	move := decimal.NewFromFloat(1 + rand.NormFloat64()*0.03)
	exitPrice := money.New(in.Price.Mul(move).Round(2))
	if !exitPrice.IsPositive() {
		exitPrice = money.New(decimal.New(1, -2))
	}
	exitTime := in.EntryTime.Add(time.Duration(rand.Intn(6*60)+1) * time.Minute)

	in.ExitPrice = &exitPrice
	in.ExitTime = &exitTime
	return in
}

// createTradesHTTP generates and submits random trades to the API
// Runs as a worker goroutine, sending created trades to tradesChan
func createTradesHTTP(workerID, numTrades int, simClient *simulationClient, tradesChan chan<- createdTrade) {
	for i := 0; i < numTrades; i++ {
		in := randomTrade(workerID, time.Now())

		trade, err := simClient.createTrade(in)
		if err != nil {
			log.Error().Err(err).
				Int("worker_id", workerID).
				Str("symbol", in.Symbol).
				Msg("Failed to create trade")
			continue
		}

		tradesChan <- createdTrade{ID: trade.ID, Input: in}
		log.Info().
			Int("worker_id", workerID).
			Uint("trade_id", trade.ID).
			Str("symbol", in.Symbol).
			Str("side", in.Side).
			Str("quantity", in.Quantity.String()).
			Str("price", in.Price.String()).
			Msg("Trade created")

		time.Sleep(time.Duration(rand.Intn(500)+100) * time.Millisecond)
	}
}

// startServer runs the journal API against a fresh sqlite file in a
// temporary directory
func startServer(ctx context.Context, port string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dir, err := os.MkdirTemp("", "journal-sim-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	db, err := database.NewDatabase(filepath.Join(dir, "journal.db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: server.NewRouter(server.NewApp(cfg, db)),
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// waitForServer polls the health endpoint until it answers or the timeout passes
func waitForServer(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/api/v1/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready after %s", baseURL, timeout)
}

// main runs the journal simulation
// It starts a local API server unless -addr is given and simulates several
// concurrent clients recording and closing trades
func main() {
	addr := flag.String("addr", "", "base URL of a running server (default: start one locally)")
	port := flag.String("port", "8080", "port for the local server")
	flag.Parse()

	baseURL := *addr
	if baseURL == "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := startServer(ctx, *port); err != nil {
				log.Fatal().Err(err).Msg("Failed to start server")
			}
		}()
		baseURL = strings.Replace(serverAddress, "8080", *port, 1)
	}

	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		log.Fatal().Err(err).Msg("Server unavailable")
	}

	simClient, err := newSimulationClient(baseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetTrades := rand.Intn(maxTrades-minTrades) + minTrades
	log.Info().Int("target_trades", targetTrades).Msg("Starting simulation")

	tradesChan := make(chan createdTrade, targetTrades)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			createTradesHTTP(workerID, targetTrades/numWorkers, simClient, tradesChan)
		}(i)
	}

	wg.Wait()
	close(tradesChan)

	var created []createdTrade
	for trade := range tradesChan {
		created = append(created, trade)
	}

	log.Info().Int("trades_created", len(created)).Msg("All trades created")

	tally := struct {
		TotalTrades  int
		ClosedTrades int
		OpenTrades   int
		FailedCloses int
		Wins         int
		Losses       int
		LocalPnL     decimal.Decimal
		StartTime    time.Time
		Symbols      map[string]int
		Sides        map[string]int
	}{
		StartTime: time.Now(),
		LocalPnL:  decimal.Zero,
		Symbols:   make(map[string]int),
		Sides:     make(map[string]int),
	}
	tally.TotalTrades = len(created)

	for _, trade := range created {
		tally.Symbols[trade.Input.Symbol]++
		tally.Sides[trade.Input.Side]++

		if rand.Float64() >= closeRatio {
			tally.OpenTrades++
			continue
		}

		closed, err := simClient.closeTrade(trade.ID, withExit(trade.Input))
		if err != nil {
			log.Error().Err(err).Uint("trade_id", trade.ID).Msg("Failed to close trade")
			tally.FailedCloses++
			continue
		}
		tally.ClosedTrades++

		if closed.PnL != nil {
			v, err := decimal.NewFromString(*closed.PnL)
			if err == nil {
				tally.LocalPnL = tally.LocalPnL.Add(v)
				switch {
				case v.IsPositive():
					tally.Wins++
				case v.IsNegative():
					tally.Losses++
				}
			}
		}

		if view, err := simClient.getTrade(trade.ID); err == nil {
			log.Info().
				Uint("trade_id", view.ID).
				Str("status", view.Status).
				Str("pnl", stringOr(view.PnL, "")).
				Msg("Trade closed")
		}
	}

	// Read every dashboard view once the journal is populated
	daily, err := simClient.series(routeDailyPnL, "/api/v1/charts/daily-pnl")
	if err != nil {
		log.Error().Err(err).Msg("Failed to load daily pnl")
	}
	bySymbol, err := simClient.series(routeSymbolPnL, "/api/v1/charts/symbol-pnl")
	if err != nil {
		log.Error().Err(err).Msg("Failed to load symbol pnl")
	}
	if _, err := simClient.series(routeTradeSeries, "/api/v1/charts/trade-pnl-series"); err != nil {
		log.Error().Err(err).Msg("Failed to load trade series")
	}
	summary, err := simClient.summary()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load summary")
	}
	month, err := simClient.calendar()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load calendar")
	}
	exported, err := simClient.exportRows()
	if err != nil {
		log.Error().Err(err).Msg("Failed to export trades")
	}

	duration := time.Since(tally.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("JOURNAL REPLAY REPORT")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Journal Entries
---------------
Recorded:         %d
Closed:           %d
Still open:       %d
Close rejected:   %d
Wins / Losses:    %d / %d
Realised PnL:     %s
CSV export rows:  %d
Replay time:      %v

Entries per Symbol
------------------
`, tally.TotalTrades, tally.ClosedTrades, tally.OpenTrades, tally.FailedCloses,
		tally.Wins, tally.Losses, tally.LocalPnL.StringFixed(2), exported,
		duration.Round(time.Millisecond))

	maxSymbolCount := 0
	for _, count := range tally.Symbols {
		if count > maxSymbolCount {
			maxSymbolCount = count
		}
	}
	for _, symbol := range symbols {
		count := tally.Symbols[symbol]
		barLength := 0
		if maxSymbolCount > 0 {
			barLength = int(float64(count) / float64(maxSymbolCount) * 20)
		}
		fmt.Printf("%-6s: %s (%d)\n", symbol, strings.Repeat("#", barLength), count)
	}

	fmt.Println("\nEntries per Side")
	fmt.Println("----------------")
	for _, side := range sides {
		count := tally.Sides[string(side)]
		barLength := 0
		if tally.TotalTrades > 0 {
			barLength = int(float64(count) / float64(tally.TotalTrades) * 20)
		}
		fmt.Printf("%-4s: %s (%d)\n", side, strings.Repeat("#", barLength), count)
	}

	if bySymbol != nil {
		fmt.Println("\nRealised PnL by Symbol (server)")
		fmt.Println("-------------------------------")
		for i, label := range bySymbol.Labels {
			fmt.Printf("%-6s: %12.2f\n", label, bySymbol.Values[i])
		}
	}
	if daily != nil {
		fmt.Printf("\nTrading days with closed trades: %d\n", len(daily.Labels))
	}
	if month != nil {
		fmt.Printf("Calendar %s %d: %.2f over %d trades\n", month.Name, month.Year, month.TotalPnL, month.TradeCount)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	if summary != nil {
		local, _ := tally.LocalPnL.Float64()
		if math.Abs(summary.TotalPnL-local) > 0.01 {
			log.Warn().
				Float64("server_total", summary.TotalPnL).
				Float64("local_total", local).
				Msg("Server summary disagrees with per-trade pnl")
		}
		log.Info().
			Float64("win_rate", summary.WinRate).
			Int("closed_trades", summary.ClosedTrades).
			Int64("open_trades", summary.OpenTrades).
			Float64("total_pnl", summary.TotalPnL).
			Dur("duration", duration).
			Msg("Journal replay completed")
	}

	simClient.printRouteLatency()
}

func stringOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
