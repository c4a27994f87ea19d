// Package ledger provides the append-only trade log. The trades table is
// the source of truth for all positions: rows are written once and never
// mutated or deleted, and derived state is rebuilt by replaying it in
// append order.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockyhq/stocky/internal/domain"
)

// Trade is one immutable trade event.
type Trade struct {
	ID         int64              `json:"id"` // append order, assigned by the ledger
	TradeID    string             `json:"trade_id"`
	Ticker     string             `json:"ticker"`
	Action     domain.TradeAction `json:"action"`
	Quantity   int64              `json:"quantity"`
	Price      decimal.Decimal    `json:"price"`
	ExecutedAt time.Time          `json:"executed_at"`
	CreatedAt  time.Time          `json:"created_at"`
}

// NewTrade constructs a validated trade with a fresh trade ID.
func NewTrade(action domain.TradeAction, ticker string, quantity int64, price decimal.Decimal, executedAt time.Time) (Trade, error) {
	t := Trade{
		TradeID:    uuid.NewString(),
		Ticker:     strings.ToUpper(strings.TrimSpace(ticker)),
		Action:     action,
		Quantity:   quantity,
		Price:      price,
		ExecutedAt: executedAt,
	}
	if err := t.Validate(); err != nil {
		return Trade{}, err
	}
	return t, nil
}

// Validate rejects malformed trades before they reach the ledger.
// All failures wrap domain.ErrInvalidTrade so callers can classify them.
func (t Trade) Validate() error {
	if t.Ticker == "" {
		return fmt.Errorf("%w: ticker is required", domain.ErrInvalidTrade)
	}
	if t.Action != domain.ActionBuy && t.Action != domain.ActionSell {
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTrade, t.Action)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidTrade, t.Quantity)
	}
	if t.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative, got %s", domain.ErrInvalidTrade, t.Price)
	}
	return nil
}
