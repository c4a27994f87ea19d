package accounting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockyhq/stocky/internal/domain"
	"github.com/stockyhq/stocky/internal/events"
	"github.com/stockyhq/stocky/internal/modules/ledger"
)

// TradeRepositoryInterface is the slice of the ledger repository the
// accountant needs.
type TradeRepositoryInterface interface {
	// Append durably logs one trade (write-then-ack)
	Append(trade ledger.Trade) error

	// All returns every trade in append order (the replay path)
	All() ([]ledger.Trade, error)
}

// Compile-time check that the ledger repository satisfies the interface
var _ TradeRepositoryInterface = (*ledger.TradeRepository)(nil)

// tickerTotals carries the all-time aggregates used by the summary report.
// The average buy price reported from these is a simple all-time average
// (total buy cost / total shares bought), deliberately not adjusted by
// sells; realized-gain math uses true FIFO lot costs instead. Both figures
// are exposed.
type tickerTotals struct {
	sharesBought     int64
	sharesSold       int64
	totalBuyCost     decimal.Decimal
	totalSellRevenue decimal.Decimal
	realizedGain     decimal.Decimal
}

// Accountant owns the derived lot state. All mutations go through Buy and
// Sell under a single writer lock; reads take snapshots under the read
// lock and never observe a ledger append without its lot update.
type Accountant struct {
	mu        sync.RWMutex
	tradeRepo TradeRepositoryInterface
	oracle    domain.PriceOracle
	bus       *events.Bus
	log       zerolog.Logger

	lots    map[string]lotQueue
	totals  map[string]tickerTotals
	nextSeq int64
}

// NewAccountant creates an accountant with empty derived state. Call
// Rebuild before serving reads.
func NewAccountant(tradeRepo TradeRepositoryInterface, oracle domain.PriceOracle, bus *events.Bus, log zerolog.Logger) *Accountant {
	return &Accountant{
		tradeRepo: tradeRepo,
		oracle:    oracle,
		bus:       bus,
		log:       log.With().Str("service", "accounting").Logger(),
		lots:      make(map[string]lotQueue),
		totals:    make(map[string]tickerTotals),
	}
}

// Rebuild replays the full trade log from empty state. Replay is
// deterministic: the same ledger always yields the same lots and totals.
// This is the sole recovery mechanism after a restart.
func (a *Accountant) Rebuild() error {
	trades, err := a.tradeRepo.All()
	if err != nil {
		return fmt.Errorf("failed to load ledger for replay: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.lots = make(map[string]lotQueue)
	a.totals = make(map[string]tickerTotals)
	a.nextSeq = 0

	for _, trade := range trades {
		if trade.ID > a.nextSeq {
			a.nextSeq = trade.ID
		}
		if err := a.applyLocked(trade, trade.ID); err != nil {
			return fmt.Errorf("ledger replay failed at trade %d: %w", trade.ID, err)
		}
	}

	a.log.Info().
		Int("trades", len(trades)).
		Int("tickers", len(a.totals)).
		Msg("Lot state rebuilt from ledger")

	return nil
}

// applyLocked folds one trade into the lot queues and totals. The caller
// holds the write lock.
func (a *Accountant) applyLocked(trade ledger.Trade, seq int64) error {
	ticker := trade.Ticker
	totals := a.totals[ticker]

	switch trade.Action {
	case domain.ActionBuy:
		a.lots[ticker] = a.lots[ticker].push(lot{
			quantity: trade.Quantity,
			unitCost: trade.Price,
			openedAt: trade.ExecutedAt,
			seq:      seq,
		})
		totals.sharesBought += trade.Quantity
		totals.totalBuyCost = totals.totalBuyCost.Add(trade.Price.Mul(decimal.NewFromInt(trade.Quantity)))

	case domain.ActionSell:
		queue := a.lots[ticker]
		if queue.totalQuantity() < trade.Quantity {
			return fmt.Errorf("%w: ticker %s holds %d, sell of %d",
				domain.ErrInsufficientShares, ticker, queue.totalQuantity(), trade.Quantity)
		}
		remaining, fifoCost := queue.consume(trade.Quantity)
		a.lots[ticker] = remaining

		revenue := trade.Price.Mul(decimal.NewFromInt(trade.Quantity))
		totals.sharesSold += trade.Quantity
		totals.totalSellRevenue = totals.totalSellRevenue.Add(revenue)
		totals.realizedGain = totals.realizedGain.Add(revenue.Sub(fifoCost))

	default:
		return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTrade, trade.Action)
	}

	a.totals[ticker] = totals
	return nil
}

// Buy fetches the live price, durably logs a BUY trade, and opens a lot.
// The ledger append and the lot update are one atomic unit: if the append
// fails no lot is created, and readers never see one without the other.
func (a *Accountant) Buy(ctx context.Context, ticker string, quantity int64) (ledger.Trade, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	now := time.Now()

	if quantity <= 0 {
		return ledger.Trade{}, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidTrade, quantity)
	}

	// The oracle call is network I/O; keep it outside the write lock.
	price, err := a.oracle.GetPrice(ctx, ticker, now)
	if err != nil {
		return ledger.Trade{}, fmt.Errorf("failed to price buy of %s: %w", ticker, err)
	}

	trade, err := ledger.NewTrade(domain.ActionBuy, ticker, quantity, price, now)
	if err != nil {
		return ledger.Trade{}, err
	}

	a.mu.Lock()
	if err := a.tradeRepo.Append(trade); err != nil {
		a.mu.Unlock()
		return ledger.Trade{}, err
	}
	a.nextSeq++
	seq := a.nextSeq
	if err := a.applyLocked(trade, seq); err != nil {
		// Cannot happen for a validated BUY; surfaced for completeness.
		a.mu.Unlock()
		return ledger.Trade{}, err
	}
	a.mu.Unlock()

	a.publishTrade(trade)

	return trade, nil
}

// SellResult reports what a completed sell did.
type SellResult struct {
	Trade        ledger.Trade    `json:"trade"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	RealizedGain decimal.Decimal `json:"realized_gain"`
}

// Sell validates the position, fetches the sell-time price, consumes lots
// oldest-first and durably logs a SELL trade. On any failure nothing is
// executed: the ledger and the lots are untouched.
func (a *Accountant) Sell(ctx context.Context, ticker string, quantity int64) (SellResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	now := time.Now()

	if quantity <= 0 {
		return SellResult{}, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidTrade, quantity)
	}

	// Cheap pre-check before paying for a price lookup. The authoritative
	// check happens again under the write lock.
	if held := a.OpenQuantity(ticker); held < quantity {
		return SellResult{}, fmt.Errorf("%w: ticker %s holds %d, sell of %d",
			domain.ErrInsufficientShares, ticker, held, quantity)
	}

	// A sell needs a sell-time price; an oracle failure fails the sell.
	price, err := a.oracle.GetPrice(ctx, ticker, now)
	if err != nil {
		return SellResult{}, fmt.Errorf("failed to price sell of %s: %w", ticker, err)
	}

	trade, err := ledger.NewTrade(domain.ActionSell, ticker, quantity, price, now)
	if err != nil {
		return SellResult{}, err
	}

	a.mu.Lock()

	queue := a.lots[ticker]
	if queue.totalQuantity() < quantity {
		held := queue.totalQuantity()
		a.mu.Unlock()
		return SellResult{}, fmt.Errorf("%w: ticker %s holds %d, sell of %d",
			domain.ErrInsufficientShares, ticker, held, quantity)
	}

	// Ledger first: a durable append followed by the in-memory lot update
	// under the same lock is what readers observe as one atomic unit.
	if err := a.tradeRepo.Append(trade); err != nil {
		a.mu.Unlock()
		return SellResult{}, err
	}

	a.nextSeq++
	remaining, fifoCost := queue.consume(quantity)
	a.lots[ticker] = remaining

	revenue := price.Mul(decimal.NewFromInt(quantity))
	realized := revenue.Sub(fifoCost)

	totals := a.totals[ticker]
	totals.sharesSold += quantity
	totals.totalSellRevenue = totals.totalSellRevenue.Add(revenue)
	totals.realizedGain = totals.realizedGain.Add(realized)
	a.totals[ticker] = totals

	a.mu.Unlock()

	a.publishTrade(trade)

	a.log.Info().
		Str("ticker", ticker).
		Int64("quantity", quantity).
		Str("realized_gain", realized.String()).
		Msg("Sell executed")

	return SellResult{Trade: trade, CostBasis: fifoCost, RealizedGain: realized}, nil
}

// publishTrade emits a TradeExecuted event after the mutation committed.
func (a *Accountant) publishTrade(trade ledger.Trade) {
	if a.bus == nil {
		return
	}
	a.bus.PublishData("accounting", &events.TradeExecutedData{
		Ticker:   trade.Ticker,
		Action:   string(trade.Action),
		Quantity: trade.Quantity,
		Price:    trade.Price.String(),
	})
}

// OpenQuantity returns the currently held quantity for a ticker. A ticker
// with no trades yields zero, never an error.
func (a *Accountant) OpenQuantity(ticker string) int64 {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lots[ticker].totalQuantity()
}

// Positions returns a snapshot of all open positions sorted by ticker.
func (a *Accountant) Positions() []domain.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()

	positions := make([]domain.Position, 0, len(a.lots))
	for ticker, queue := range a.lots {
		qty := queue.totalQuantity()
		if qty == 0 {
			continue
		}
		positions = append(positions, domain.Position{
			Ticker:          ticker,
			OpenQuantity:    qty,
			WeightedAvgCost: queue.weightedAvgCost(),
			Lots:            queue.openLots(ticker),
		})
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Ticker < positions[j].Ticker
	})

	return positions
}
