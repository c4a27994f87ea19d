// Package domain provides core domain models and capability interfaces.
// It has no infrastructure dependencies; repositories and services depend
// on it, never the other way around.
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction represents the direction of a trade
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// Lot is an open, partially-or-fully-unsold quantity from one BUY trade.
// Lots are derived state: they are created by replaying the trade ledger
// and consumed oldest-first by sells.
type Lot struct {
	Ticker    string          `json:"ticker"`
	Quantity  int64           `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	OpenedAt  time.Time       `json:"opened_at"`
	SortIndex int64           `json:"-"` // ledger append order, breaks opened_at ties
}

// Position is a derived per-ticker view over the open lots.
type Position struct {
	Ticker          string          `json:"ticker"`
	OpenQuantity    int64           `json:"open_quantity"`
	WeightedAvgCost decimal.Decimal `json:"weighted_avg_cost"`
	Lots            []Lot           `json:"lots,omitempty"`
}

// ValuationSample is one timestamped measurement of total portfolio worth.
type ValuationSample struct {
	Timestamp  time.Time       `json:"timestamp"`
	TotalWorth decimal.Decimal `json:"total_worth"`
}

// PriceOracle supplies market prices. For "now" callers expect the most
// recent intraday price; for past dates the closing price of that date.
// Implementations may block on network I/O and should honour ctx.
type PriceOracle interface {
	GetPrice(ctx context.Context, ticker string, at time.Time) (decimal.Decimal, error)
}
