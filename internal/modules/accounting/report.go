package accounting

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TickerGains is one row of the gains report.
//
// AvgBuyPrice is the all-time simple average (total buy cost / total
// shares bought), which does not shrink when shares are sold. RealizedGain
// is computed against true FIFO lot costs. The two are intentionally
// different figures and both are reported.
type TickerGains struct {
	Ticker          string          `json:"ticker"`
	RealizedGain    decimal.Decimal `json:"realized_gains"`
	CurrentHoldings int64           `json:"current_holdings"`
	AvgBuyPrice     decimal.Decimal `json:"avg_buy_price"`
	CurrentPrice    string          `json:"current_price"` // decimal string, or "N/A" when the oracle has no quote
	MarketValue     decimal.Decimal `json:"current_market_value"`
	UnrealizedGain  decimal.Decimal `json:"unrealized_gains"`
	PriceAvailable  bool            `json:"price_available"`
}

// GainsSummary aggregates the report across tickers. Unavailable prices
// contribute zero unrealized gain rather than failing the report.
type GainsSummary struct {
	TotalRealizedGains   decimal.Decimal `json:"total_realized_gains"`
	TotalUnrealizedGains decimal.Decimal `json:"total_unrealized_gains"`
	TotalCombinedGains   decimal.Decimal `json:"total_combined_gains"`
}

// GainsReport is the full realized/unrealized gains view.
type GainsReport struct {
	Summary GainsSummary  `json:"summary"`
	Details []TickerGains `json:"details"`
}

// reportRow is the per-ticker state snapshotted under the read lock.
type reportRow struct {
	ticker      string
	totals      tickerTotals
	openQty     int64
	openAvgCost decimal.Decimal
}

// GainsReport builds the report for every ticker that has ever traded.
// Price lookups happen after the state snapshot is taken, so a slow
// oracle never holds the accountant's lock. A ticker whose price is
// unavailable still reports its realized figures, with "N/A" for the
// price-dependent columns.
func (a *Accountant) GainsReport(ctx context.Context) GainsReport {
	a.mu.RLock()
	rows := make([]reportRow, 0, len(a.totals))
	for ticker, totals := range a.totals {
		queue := a.lots[ticker]
		rows = append(rows, reportRow{
			ticker:      ticker,
			totals:      totals,
			openQty:     queue.totalQuantity(),
			openAvgCost: queue.weightedAvgCost(),
		})
	}
	a.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].ticker < rows[j].ticker })

	report := GainsReport{
		Summary: GainsSummary{
			TotalRealizedGains:   decimal.Zero,
			TotalUnrealizedGains: decimal.Zero,
			TotalCombinedGains:   decimal.Zero,
		},
		Details: make([]TickerGains, 0, len(rows)),
	}

	now := time.Now()
	for _, row := range rows {
		detail := TickerGains{
			Ticker:          row.ticker,
			RealizedGain:    row.totals.realizedGain,
			CurrentHoldings: row.openQty,
			AvgBuyPrice:     decimal.Zero,
			CurrentPrice:    "N/A",
			MarketValue:     decimal.Zero,
			UnrealizedGain:  decimal.Zero,
		}

		if row.totals.sharesBought > 0 {
			detail.AvgBuyPrice = row.totals.totalBuyCost.Div(decimal.NewFromInt(row.totals.sharesBought))
		}

		if row.openQty > 0 {
			price, err := a.oracle.GetPrice(ctx, row.ticker, now)
			if err != nil {
				a.log.Warn().
					Err(err).
					Str("ticker", row.ticker).
					Msg("Price unavailable for gains report, reporting N/A")
			} else {
				qty := decimal.NewFromInt(row.openQty)
				detail.CurrentPrice = price.String()
				detail.PriceAvailable = true
				detail.MarketValue = price.Mul(qty)
				detail.UnrealizedGain = price.Sub(row.openAvgCost).Mul(qty)
			}
		}

		report.Summary.TotalRealizedGains = report.Summary.TotalRealizedGains.Add(detail.RealizedGain)
		report.Summary.TotalUnrealizedGains = report.Summary.TotalUnrealizedGains.Add(detail.UnrealizedGain)
		report.Details = append(report.Details, detail)
	}

	report.Summary.TotalCombinedGains = report.Summary.TotalRealizedGains.Add(report.Summary.TotalUnrealizedGains)

	return report
}
