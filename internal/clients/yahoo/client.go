// Package yahoo provides stock price lookups backed by the Yahoo Finance
// chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockyhq/stocky/internal/domain"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client fetches prices from the Yahoo Finance v8 chart endpoint. For a
// same-day lookup it returns the most recent one-minute close; for a past
// date it returns that day's daily close.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// Compile-time check that the client satisfies the price oracle interface
var _ domain.PriceOracle = (*Client)(nil)

// NewClient creates a new Yahoo Finance client. An empty baseURL selects
// the public endpoint; tests point it at a local server.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// chartResponse mirrors the slice of the chart payload we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetPrice returns the price of ticker at the given time. Timestamps on
// the current calendar day resolve to the latest intraday quote; earlier
// dates resolve to that day's close.
func (c *Client) GetPrice(ctx context.Context, ticker string, at time.Time) (decimal.Decimal, error) {
	var url string
	now := time.Now()
	sameDay := at.Year() == now.Year() && at.YearDay() == now.YearDay()

	if sameDay {
		url = fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", c.baseURL, ticker)
	} else {
		dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
		dayEnd := dayStart.Add(24 * time.Hour)
		url = fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
			c.baseURL, ticker, dayStart.Unix(), dayEnd.Unix())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build price request: %w", err)
	}
	// Yahoo rejects requests without a browser-like agent
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; stocky/1.0)")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price request failed for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, fmt.Errorf("%w: unknown ticker %s", domain.ErrNoPriceData, ticker)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price API returned status %d for %s", resp.StatusCode, ticker)
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price response for %s: %w", ticker, err)
	}

	if chart.Chart.Error != nil {
		return decimal.Zero, fmt.Errorf("%w: %s (%s)",
			domain.ErrNoPriceData, ticker, chart.Chart.Error.Code)
	}
	if len(chart.Chart.Result) == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty chart result for %s", domain.ErrNoPriceData, ticker)
	}

	result := chart.Chart.Result[0]

	// Latest non-null close wins; the tail of an intraday series is null
	// for minutes that have not traded yet.
	if len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i] != nil {
				price := decimal.NewFromFloat(*closes[i])
				c.log.Debug().
					Str("ticker", ticker).
					Str("price", price.String()).
					Bool("intraday", sameDay).
					Msg("Price resolved")
				return price, nil
			}
		}
	}

	// Intraday series can be empty right at market open; the meta quote
	// still carries the current market price.
	if sameDay && result.Meta.RegularMarketPrice != nil {
		return decimal.NewFromFloat(*result.Meta.RegularMarketPrice), nil
	}

	return decimal.Zero, fmt.Errorf("%w: no close for %s on %s",
		domain.ErrNoPriceData, ticker, at.Format("2006-01-02"))
}
