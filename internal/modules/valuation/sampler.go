package valuation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stockyhq/stocky/internal/domain"
	"github.com/stockyhq/stocky/internal/events"
)

// PositionSource supplies the open positions to value. Snapshots are
// cheap and taken under the accountant's read lock, so sampling never
// blocks trade handling.
type PositionSource interface {
	Positions() []domain.Position
}

// HistoryRecorder persists durable valuation samples.
type HistoryRecorder interface {
	Record(sample domain.ValuationSample) error
}

// Compile-time check that the repository satisfies the recorder interface
var _ HistoryRecorder = (*HistoryRepository)(nil)

// Sampler computes total portfolio worth. Two cron jobs drive it on
// independent cadences: FastTick broadcasts only, DurableTick persists.
// Per-ticker oracle failures fall back to the last successfully observed
// price, so one bad quote never aborts a whole sample.
type Sampler struct {
	positions    PositionSource
	oracle       domain.PriceOracle
	history      HistoryRecorder
	bus          *events.Bus
	priceTimeout time.Duration
	log          zerolog.Logger

	mu         sync.Mutex
	lastPrices map[string]decimal.Decimal // sticky fallback per ticker
}

// NewSampler creates a new valuation sampler.
func NewSampler(
	positions PositionSource,
	oracle domain.PriceOracle,
	history HistoryRecorder,
	bus *events.Bus,
	priceTimeout time.Duration,
	log zerolog.Logger,
) *Sampler {
	return &Sampler{
		positions:    positions,
		oracle:       oracle,
		history:      history,
		bus:          bus,
		priceTimeout: priceTimeout,
		log:          log.With().Str("service", "valuation").Logger(),
		lastPrices:   make(map[string]decimal.Decimal),
	}
}

// TotalWorth sums open_quantity × live price over all open positions.
// A ticker whose price lookup fails contributes its last observed price;
// a ticker that has never priced successfully contributes zero for this
// sample.
func (s *Sampler) TotalWorth(ctx context.Context) domain.ValuationSample {
	now := time.Now()
	total := decimal.Zero

	for _, pos := range s.positions.Positions() {
		price, ok := s.priceFor(ctx, pos.Ticker, now)
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(pos.OpenQuantity)))
	}

	return domain.ValuationSample{Timestamp: now, TotalWorth: total}
}

// priceFor resolves a ticker's price with the sticky fallback.
func (s *Sampler) priceFor(ctx context.Context, ticker string, now time.Time) (decimal.Decimal, bool) {
	price, err := s.Price(ctx, ticker, now)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("ticker", ticker).
			Msg("Price unavailable and no prior observation, ticker skipped for this sample")
		return decimal.Zero, false
	}
	return price, true
}

// Price resolves one ticker's price, falling back to the last successfully
// observed price when the oracle fails. The error is the oracle's when no
// prior observation exists either.
func (s *Sampler) Price(ctx context.Context, ticker string, at time.Time) (decimal.Decimal, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.priceTimeout)
	price, err := s.oracle.GetPrice(callCtx, ticker, at)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		last, ok := s.lastPrices[ticker]
		if !ok {
			return decimal.Zero, err
		}
		s.log.Debug().
			Err(err).
			Str("ticker", ticker).
			Str("fallback_price", last.String()).
			Msg("Price unavailable, using last observed price")
		return last, nil
	}

	s.lastPrices[ticker] = price
	return price, nil
}

// FastTick computes the current total worth and publishes it on the event
// bus. Nothing is persisted.
func (s *Sampler) FastTick(ctx context.Context) {
	sample := s.TotalWorth(ctx)

	s.bus.PublishData("valuation", events.NewValuationUpdatedData(sample.TotalWorth.StringFixed(2)))

	s.log.Debug().
		Str("total_worth", sample.TotalWorth.String()).
		Msg("Fast valuation sample broadcast")
}

// DurableTick computes the current total worth and appends it to the
// history store. A failed write is logged and retried on the next tick;
// it never crashes the sampling loop.
func (s *Sampler) DurableTick(ctx context.Context) {
	sample := s.TotalWorth(ctx)

	if err := s.history.Record(sample); err != nil {
		s.log.Error().
			Err(err).
			Str("total_worth", sample.TotalWorth.String()).
			Msg("Failed to persist valuation sample, will retry next tick")
		return
	}

	s.bus.PublishData("valuation", &events.HistoryRecordedData{
		Value:     sample.TotalWorth.StringFixed(2),
		Timestamp: sample.Timestamp.Unix(),
	})
}

// FastJob adapts FastTick to the scheduler's Job interface.
type FastJob struct{ Sampler *Sampler }

// Name identifies the job in scheduler logs.
func (j FastJob) Name() string { return "valuation_fast_tick" }

// Run executes one fast tick.
func (j FastJob) Run() error {
	j.Sampler.FastTick(context.Background())
	return nil
}

// DurableJob adapts DurableTick to the scheduler's Job interface.
type DurableJob struct{ Sampler *Sampler }

// Name identifies the job in scheduler logs.
func (j DurableJob) Name() string { return "valuation_durable_tick" }

// Run executes one durable tick.
func (j DurableJob) Run() error {
	j.Sampler.DurableTick(context.Background())
	return nil
}
