package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockyhq/stocky/internal/config"
	"github.com/stockyhq/stocky/internal/domain"
	"github.com/stockyhq/stocky/internal/events"
	"github.com/stockyhq/stocky/internal/modules/accounting"
	"github.com/stockyhq/stocky/internal/modules/ledger"
	"github.com/stockyhq/stocky/internal/modules/valuation"
)

// testOracle serves fixed prices, failing for unknown tickers.
type testOracle struct {
	prices map[string]decimal.Decimal
}

func (o *testOracle) GetPrice(ctx context.Context, ticker string, at time.Time) (decimal.Decimal, error) {
	price, ok := o.prices[ticker]
	if !ok {
		return decimal.Zero, domain.ErrNoPriceData
	}
	return price, nil
}

// newTestServer wires a full server against in-memory databases.
func newTestServer(t *testing.T, oracle *testOracle) (*httptest.Server, *valuation.HistoryRepository) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	ledgerDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ledgerDB.Close() })
	_, err = ledgerDB.Exec(`
		CREATE TABLE trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trade_id TEXT NOT NULL UNIQUE,
			ticker TEXT NOT NULL,
			action TEXT NOT NULL CHECK(action IN ('BUY','SELL')),
			quantity INTEGER NOT NULL CHECK(quantity > 0),
			price TEXT NOT NULL,
			executed_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	historyDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { historyDB.Close() })
	_, err = historyDB.Exec(`
		CREATE TABLE worth_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			total_worth TEXT NOT NULL
		)
	`)
	require.NoError(t, err)

	bus := events.NewBus(log)
	tradeRepo := ledger.NewTradeRepository(ledgerDB, log)
	historyRepo := valuation.NewHistoryRepository(historyDB, 7*24*time.Hour, log)

	accountant := accounting.NewAccountant(tradeRepo, oracle, bus, log)
	require.NoError(t, accountant.Rebuild())

	sampler := valuation.NewSampler(accountant, oracle, historyRepo, bus, time.Second, log)

	srv := New(Config{
		Log:         log,
		Config:      &config.Config{Port: 0},
		Accountant:  accountant,
		TradeRepo:   tradeRepo,
		HistoryRepo: historyRepo,
		Sampler:     sampler,
		EventBus:    bus,
		Port:        0,
		DevMode:     true,
	})

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts, historyRepo
}

func postTrade(t *testing.T, ts *httptest.Server, action, ticker string, quantity int64) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"action":   action,
		"ticker":   ticker,
		"quantity": quantity,
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/trade", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

// TestHandleTrade_BuyThenPortfolio tests the happy path end to end
func TestHandleTrade_BuyThenPortfolio(t *testing.T) {
	oracle := &testOracle{prices: map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("150.50"),
	}}
	ts, _ := newTestServer(t, oracle)

	resp := postTrade(t, ts, "BUY", "aapl", 10)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, "executed", payload["status"])

	resp2, err := http.Get(ts.URL + "/api/portfolio")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	portfolio := decodeBody(t, resp2)
	positions := portfolio["positions"].([]interface{})
	require.Len(t, positions, 1)

	pos := positions[0].(map[string]interface{})
	assert.Equal(t, "AAPL", pos["ticker"])
	assert.Equal(t, float64(10), pos["open_quantity"])
	assert.Equal(t, "150.5", pos["current_price"])
	assert.Equal(t, "1505", pos["market_value"])
}

// TestHandleTrade_ErrorMapping tests the domain error to status mapping
func TestHandleTrade_ErrorMapping(t *testing.T) {
	oracle := &testOracle{prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(100),
	}}
	ts, _ := newTestServer(t, oracle)

	// Unknown action is a client error
	resp := postTrade(t, ts, "SHORT", "AAPL", 10)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Non-positive quantity is a client error
	resp = postTrade(t, ts, "SELL", "AAPL", 0)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Selling without holdings conflicts with ledger state
	resp = postTrade(t, ts, "SELL", "AAPL", 5)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unpriceable ticker is an upstream failure
	resp = postTrade(t, ts, "BUY", "NOPE", 5)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

// TestHandleGains tests the gains report endpoint
func TestHandleGains(t *testing.T) {
	oracle := &testOracle{prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(10),
	}}
	ts, _ := newTestServer(t, oracle)

	resp := postTrade(t, ts, "BUY", "AAPL", 10)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Sell at the same price: zero realized gain, clean numbers
	resp = postTrade(t, ts, "SELL", "AAPL", 10)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/gains")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	report := decodeBody(t, resp2)
	details := report["details"].([]interface{})
	require.Len(t, details, 1)
	row := details[0].(map[string]interface{})
	assert.Equal(t, "AAPL", row["ticker"])
	assert.Equal(t, float64(0), row["current_holdings"])
}

// TestHandleHistory tests range validation and sample retrieval
func TestHandleHistory(t *testing.T) {
	oracle := &testOracle{prices: map[string]decimal.Decimal{}}
	ts, historyRepo := newTestServer(t, oracle)

	require.NoError(t, historyRepo.Record(domain.ValuationSample{
		Timestamp:  time.Now(),
		TotalWorth: decimal.NewFromInt(1234),
	}))

	resp, err := http.Get(ts.URL + "/api/history?range=1d")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, "1d", payload["range"])
	assert.Equal(t, float64(1), payload["count"])

	resp2, err := http.Get(ts.URL + "/api/history?range=6m")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

// TestHandleTrades tests the trade history endpoint
func TestHandleTrades(t *testing.T) {
	oracle := &testOracle{prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(10),
	}}
	ts, _ := newTestServer(t, oracle)

	for i := 0; i < 3; i++ {
		resp := postTrade(t, ts, "BUY", "AAPL", 1)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/trades?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, float64(2), payload["count"])
}

// TestHandleHealth tests the health endpoint
func TestHandleHealth(t *testing.T) {
	ts, _ := newTestServer(t, &testOracle{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, "ok", payload["status"])
}
