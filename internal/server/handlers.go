package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockyhq/stocky/internal/domain"
)

// tradeRequest is the body of POST /api/trade.
type tradeRequest struct {
	Action   string `json:"action"`
	Ticker   string `json:"ticker"`
	Quantity int64  `json:"quantity"`
}

// handleTrade executes a buy or sell at the current market price.
// POST /api/trade
func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action := domain.TradeAction(strings.ToUpper(strings.TrimSpace(req.Action)))

	switch action {
	case domain.ActionBuy:
		trade, err := s.accountant.Buy(r.Context(), req.Ticker, req.Quantity)
		if err != nil {
			s.writeTradeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]interface{}{
			"status": "executed",
			"trade":  trade,
		})

	case domain.ActionSell:
		result, err := s.accountant.Sell(r.Context(), req.Ticker, req.Quantity)
		if err != nil {
			s.writeTradeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]interface{}{
			"status":        "executed",
			"trade":         result.Trade,
			"cost_basis":    result.CostBasis,
			"realized_gain": result.RealizedGain,
		})

	default:
		s.writeError(w, http.StatusBadRequest, "action must be BUY or SELL")
	}
}

// writeTradeError maps domain errors to HTTP status codes. An unpriceable
// ticker is an upstream failure, not a client mistake.
func (s *Server) writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTrade):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientShares):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNoPriceData):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error().Err(err).Msg("Trade execution failed")
		s.writeError(w, http.StatusInternalServerError, "trade execution failed")
	}
}

// handleTrades returns recent trades, newest first.
// GET /api/trades?limit=50
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	trades, err := s.tradeRepo.GetHistory(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get trade history")
		s.writeError(w, http.StatusInternalServerError, "failed to get trade history")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
	})
}

// positionView is one row of the portfolio response. CurrentPrice and
// MarketValue are null when the oracle has no quote for the ticker.
type positionView struct {
	Ticker          string      `json:"ticker"`
	OpenQuantity    int64       `json:"open_quantity"`
	WeightedAvgCost string      `json:"weighted_avg_cost"`
	CurrentPrice    interface{} `json:"current_price"`
	MarketValue     interface{} `json:"market_value"`
}

// handlePortfolio returns the open positions with live prices.
// GET /api/portfolio
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	positions := s.accountant.Positions()
	now := time.Now()

	views := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		view := positionView{
			Ticker:          pos.Ticker,
			OpenQuantity:    pos.OpenQuantity,
			WeightedAvgCost: pos.WeightedAvgCost.String(),
		}

		price, err := s.sampler.Price(r.Context(), pos.Ticker, now)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("Price unavailable for portfolio view")
		} else {
			view.CurrentPrice = price.String()
			view.MarketValue = price.Mul(decimal.NewFromInt(pos.OpenQuantity)).String()
		}

		views = append(views, view)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": views,
		"count":     len(views),
	})
}

// handleGains returns the realized/unrealized gains report.
// GET /api/gains
func (s *Server) handleGains(w http.ResponseWriter, r *http.Request) {
	report := s.accountant.GainsReport(r.Context())
	s.writeJSON(w, http.StatusOK, report)
}

// historyRanges maps the range query parameter to a lookback window.
// Anything beyond the retention window returns what is still retained.
var historyRanges = map[string]time.Duration{
	"1h": time.Hour,
	"1d": 24 * time.Hour,
	"1w": 7 * 24 * time.Hour,
}

// handleHistory returns valuation samples for the requested range.
// GET /api/history?range=1h|1d|1w (default 1d)
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rangeParam := r.URL.Query().Get("range")
	if rangeParam == "" {
		rangeParam = "1d"
	}

	window, ok := historyRanges[rangeParam]
	if !ok {
		s.writeError(w, http.StatusBadRequest, "range must be one of 1h, 1d, 1w")
		return
	}

	now := time.Now()
	samples, err := s.historyRepo.Query(now.Add(-window), now)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query valuation history")
		s.writeError(w, http.StatusInternalServerError, "failed to query valuation history")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"range":   rangeParam,
		"samples": samples,
		"count":   len(samples),
	})
}

// handleHealth reports liveness and storage reachability.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	tradeCount, tradeErr := s.tradeRepo.Count()
	sampleCount, sampleErr := s.historyRepo.Count()

	if tradeErr != nil || sampleErr != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		s.log.Error().
			AnErr("ledger", tradeErr).
			AnErr("history", sampleErr).
			Msg("Health check failed")
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"trades":  tradeCount,
		"samples": sampleCount,
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
