package accounting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockyhq/stocky/internal/domain"
	"github.com/stockyhq/stocky/internal/events"
	"github.com/stockyhq/stocky/internal/modules/ledger"
)

// fakeTradeRepo is an in-memory ledger with optional append failure.
type fakeTradeRepo struct {
	mu        sync.Mutex
	trades    []ledger.Trade
	appendErr error
}

func (f *fakeTradeRepo) Append(trade ledger.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	trade.ID = int64(len(f.trades) + 1)
	f.trades = append(f.trades, trade)
	return nil
}

func (f *fakeTradeRepo) All() ([]ledger.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ledger.Trade, len(f.trades))
	copy(out, f.trades)
	return out, nil
}

func (f *fakeTradeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trades)
}

// fakeOracle returns fixed per-ticker prices.
type fakeOracle struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
}

func (f *fakeOracle) GetPrice(ctx context.Context, ticker string, at time.Time) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return decimal.Zero, f.err
	}
	price, ok := f.prices[ticker]
	if !ok {
		return decimal.Zero, domain.ErrNoPriceData
	}
	return price, nil
}

func (f *fakeOracle) setPrice(ticker string, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prices == nil {
		f.prices = make(map[string]decimal.Decimal)
	}
	f.prices[ticker] = decimal.RequireFromString(price)
}

func newTestAccountant(t *testing.T) (*Accountant, *fakeTradeRepo, *fakeOracle) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	repo := &fakeTradeRepo{}
	oracle := &fakeOracle{}
	acc := NewAccountant(repo, oracle, nil, log)
	require.NoError(t, acc.Rebuild())
	return acc, repo, oracle
}

// TestBuySell_RealizedGain tests the basic realized gain calculation:
// buy 10 at $10, sell 10 at $15, gain $50
func TestBuySell_RealizedGain(t *testing.T) {
	acc, repo, oracle := newTestAccountant(t)
	ctx := context.Background()

	oracle.setPrice("AAPL", "10")
	_, err := acc.Buy(ctx, "AAPL", 10)
	require.NoError(t, err)

	oracle.setPrice("AAPL", "15")
	result, err := acc.Sell(ctx, "AAPL", 10)
	require.NoError(t, err)

	assert.True(t, result.CostBasis.Equal(decimal.NewFromInt(100)), "cost basis %s", result.CostBasis)
	assert.True(t, result.RealizedGain.Equal(decimal.NewFromInt(50)), "realized %s", result.RealizedGain)
	assert.Equal(t, int64(0), acc.OpenQuantity("AAPL"))
	assert.Equal(t, 2, repo.count())
}

// TestSell_ConsumesOldestLotsFirst tests FIFO ordering across lots
func TestSell_ConsumesOldestLotsFirst(t *testing.T) {
	acc, _, oracle := newTestAccountant(t)
	ctx := context.Background()

	oracle.setPrice("AAPL", "10")
	_, err := acc.Buy(ctx, "AAPL", 10)
	require.NoError(t, err)

	oracle.setPrice("AAPL", "20")
	_, err = acc.Buy(ctx, "AAPL", 10)
	require.NoError(t, err)

	// Sell 15 at $30: cost = 10*10 + 5*20 = 200, revenue = 450
	oracle.setPrice("AAPL", "30")
	result, err := acc.Sell(ctx, "AAPL", 15)
	require.NoError(t, err)

	assert.True(t, result.CostBasis.Equal(decimal.NewFromInt(200)), "cost basis %s", result.CostBasis)
	assert.True(t, result.RealizedGain.Equal(decimal.NewFromInt(250)), "realized %s", result.RealizedGain)
	assert.Equal(t, int64(5), acc.OpenQuantity("AAPL"))

	// The surviving 5 shares all come from the $20 lot
	positions := acc.Positions()
	require.Len(t, positions, 1)
	assert.True(t, positions[0].WeightedAvgCost.Equal(decimal.NewFromInt(20)))
}

// TestSell_InsufficientShares tests that over-sells are rejected and leave
// the ledger and lots untouched
func TestSell_InsufficientShares(t *testing.T) {
	acc, repo, oracle := newTestAccountant(t)
	ctx := context.Background()

	oracle.setPrice("AAPL", "10")
	_, err := acc.Buy(ctx, "AAPL", 5)
	require.NoError(t, err)

	_, err = acc.Sell(ctx, "AAPL", 6)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	_, err = acc.Sell(ctx, "MSFT", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares, "Unknown ticker behaves as zero holdings")

	assert.Equal(t, int64(5), acc.OpenQuantity("AAPL"))
	assert.Equal(t, 1, repo.count(), "Rejected sells must not reach the ledger")
}

// TestSell_InvalidQuantity tests the quantity guard
func TestSell_InvalidQuantity(t *testing.T) {
	acc, _, _ := newTestAccountant(t)

	_, err := acc.Sell(context.Background(), "AAPL", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)

	_, err = acc.Sell(context.Background(), "AAPL", -3)
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)
}

// TestBuy_AppendFailureLeavesStateUntouched tests that a failed ledger
// write creates no lot
func TestBuy_AppendFailureLeavesStateUntouched(t *testing.T) {
	acc, repo, oracle := newTestAccountant(t)
	ctx := context.Background()

	oracle.setPrice("AAPL", "10")
	repo.appendErr = errors.New("disk full")

	_, err := acc.Buy(ctx, "AAPL", 10)
	assert.Error(t, err)
	assert.Equal(t, int64(0), acc.OpenQuantity("AAPL"))

	repo.appendErr = nil
	_, err = acc.Buy(ctx, "AAPL", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.OpenQuantity("AAPL"))
}

// TestBuy_OracleFailure tests that an unpriceable buy executes nothing
func TestBuy_OracleFailure(t *testing.T) {
	acc, repo, _ := newTestAccountant(t)

	_, err := acc.Buy(context.Background(), "AAPL", 10)
	assert.ErrorIs(t, err, domain.ErrNoPriceData)
	assert.Equal(t, 0, repo.count())
}

// TestRebuild_IsDeterministic tests that replaying the same ledger yields
// identical derived state
func TestRebuild_IsDeterministic(t *testing.T) {
	acc, repo, oracle := newTestAccountant(t)
	ctx := context.Background()

	oracle.setPrice("AAPL", "10")
	oracle.setPrice("MSFT", "50")

	_, err := acc.Buy(ctx, "AAPL", 10)
	require.NoError(t, err)
	_, err = acc.Buy(ctx, "MSFT", 4)
	require.NoError(t, err)

	oracle.setPrice("AAPL", "12")
	_, err = acc.Sell(ctx, "AAPL", 6)
	require.NoError(t, err)

	// A second accountant replaying the same ledger must agree
	log := zerolog.New(nil).Level(zerolog.Disabled)
	replayed := NewAccountant(repo, oracle, nil, log)
	require.NoError(t, replayed.Rebuild())

	assert.Equal(t, acc.Positions(), replayed.Positions())

	original := acc.GainsReport(ctx)
	rebuilt := replayed.GainsReport(ctx)
	assert.Equal(t, original.Summary, rebuilt.Summary)
	assert.Equal(t, original.Details, rebuilt.Details)
}

// TestTickerIsolation tests that trades in one ticker never affect another
func TestTickerIsolation(t *testing.T) {
	acc, _, oracle := newTestAccountant(t)
	ctx := context.Background()

	oracle.setPrice("AAPL", "10")
	oracle.setPrice("MSFT", "100")

	_, err := acc.Buy(ctx, "AAPL", 10)
	require.NoError(t, err)
	_, err = acc.Buy(ctx, "MSFT", 2)
	require.NoError(t, err)

	_, err = acc.Sell(ctx, "AAPL", 10)
	require.NoError(t, err)

	assert.Equal(t, int64(0), acc.OpenQuantity("AAPL"))
	assert.Equal(t, int64(2), acc.OpenQuantity("MSFT"))

	positions := acc.Positions()
	require.Len(t, positions, 1, "Closed positions are excluded")
	assert.Equal(t, "MSFT", positions[0].Ticker)
}

// TestBuy_PublishesTradeEvent tests that executed trades reach the bus
func TestBuy_PublishesTradeEvent(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	repo := &fakeTradeRepo{}
	oracle := &fakeOracle{}
	oracle.setPrice("AAPL", "10")

	bus := events.NewBus(log)
	var received []*events.Event
	bus.Subscribe(events.TradeExecuted, func(event *events.Event) {
		received = append(received, event)
	})

	acc := NewAccountant(repo, oracle, bus, log)
	require.NoError(t, acc.Rebuild())

	_, err := acc.Buy(context.Background(), "AAPL", 3)
	require.NoError(t, err)

	require.Len(t, received, 1)
	data, ok := received[0].Data.(*events.TradeExecutedData)
	require.True(t, ok)
	assert.Equal(t, "AAPL", data.Ticker)
	assert.Equal(t, "BUY", data.Action)
	assert.Equal(t, int64(3), data.Quantity)
}

// TestGainsReport tests the combined realized/unrealized view, including
// the all-time average buy price and the N/A soft-fail
func TestGainsReport(t *testing.T) {
	acc, _, oracle := newTestAccountant(t)
	ctx := context.Background()

	oracle.setPrice("AAPL", "10")
	_, err := acc.Buy(ctx, "AAPL", 10)
	require.NoError(t, err)

	oracle.setPrice("AAPL", "20")
	_, err = acc.Buy(ctx, "AAPL", 10)
	require.NoError(t, err)

	oracle.setPrice("AAPL", "30")
	_, err = acc.Sell(ctx, "AAPL", 10)
	require.NoError(t, err)

	report := acc.GainsReport(ctx)
	require.Len(t, report.Details, 1)
	row := report.Details[0]

	// All-time simple average: (10*10 + 10*20) / 20 = 15, unaffected by the sell
	assert.True(t, row.AvgBuyPrice.Equal(decimal.NewFromInt(15)), "avg buy %s", row.AvgBuyPrice)

	// FIFO realized: 10*30 - 10*10 = 200
	assert.True(t, row.RealizedGain.Equal(decimal.NewFromInt(200)), "realized %s", row.RealizedGain)

	// Unrealized against open-lot basis: (30 - 20) * 10 = 100
	assert.Equal(t, int64(10), row.CurrentHoldings)
	assert.True(t, row.PriceAvailable)
	assert.True(t, row.UnrealizedGain.Equal(decimal.NewFromInt(100)), "unrealized %s", row.UnrealizedGain)
	assert.True(t, report.Summary.TotalCombinedGains.Equal(decimal.NewFromInt(300)))

	// With the oracle down, realized figures survive and price columns soft-fail
	oracle.err = errors.New("quote service down")
	report = acc.GainsReport(ctx)
	require.Len(t, report.Details, 1)
	row = report.Details[0]
	assert.Equal(t, "N/A", row.CurrentPrice)
	assert.False(t, row.PriceAvailable)
	assert.True(t, row.RealizedGain.Equal(decimal.NewFromInt(200)))
	assert.True(t, row.UnrealizedGain.IsZero())
}

// TestConcurrentReadsDuringTrades tests that snapshots taken while trades
// execute never observe partial state
func TestConcurrentReadsDuringTrades(t *testing.T) {
	acc, _, oracle := newTestAccountant(t)
	ctx := context.Background()

	oracle.setPrice("AAPL", "10")

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				for _, pos := range acc.Positions() {
					// Open quantity is always a whole number of executed trades
					assert.GreaterOrEqual(t, pos.OpenQuantity, int64(0))
				}
			}
		}
	}()

	for i := 0; i < 50; i++ {
		_, err := acc.Buy(ctx, "AAPL", 2)
		require.NoError(t, err)
	}
	for i := 0; i < 50; i++ {
		_, err := acc.Sell(ctx, "AAPL", 2)
		require.NoError(t, err)
	}

	close(stop)
	wg.Wait()

	assert.Equal(t, int64(0), acc.OpenQuantity("AAPL"))
}
