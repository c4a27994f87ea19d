// Package accounting derives position state from the trade ledger and
// computes realized and unrealized gains. Lots are kept as explicit
// per-ticker FIFO queues rebuilt by replay, so sells never rescan the
// ledger.
package accounting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockyhq/stocky/internal/domain"
)

// lot is one open purchase. quantity only ever decreases; a lot that
// reaches zero is removed from its queue.
type lot struct {
	quantity int64
	unitCost decimal.Decimal
	openedAt time.Time
	seq      int64 // ledger append order, breaks openedAt ties
}

// lotQueue holds a ticker's open lots oldest-first.
type lotQueue []lot

// push appends a new lot. Lots arrive in ledger order, so the queue stays
// sorted by (openedAt, seq) without re-sorting.
func (q lotQueue) push(l lot) lotQueue {
	return append(q, l)
}

// totalQuantity sums the open quantity across all lots.
func (q lotQueue) totalQuantity() int64 {
	var total int64
	for _, l := range q {
		total += l.quantity
	}
	return total
}

// consume removes quantity shares oldest-first and returns the FIFO cost
// of the consumed shares. The caller must have verified that the queue
// holds at least quantity shares.
func (q lotQueue) consume(quantity int64) (lotQueue, decimal.Decimal) {
	cost := decimal.Zero
	remaining := quantity

	out := q[:0]
	for _, l := range q {
		if remaining == 0 {
			out = append(out, l)
			continue
		}

		consumed := l.quantity
		if consumed > remaining {
			consumed = remaining
		}

		cost = cost.Add(l.unitCost.Mul(decimal.NewFromInt(consumed)))
		remaining -= consumed

		if l.quantity > consumed {
			l.quantity -= consumed
			out = append(out, l)
		}
		// Fully consumed lots are dropped.
	}

	return out, cost
}

// weightedAvgCost returns the average unit cost of the open lots, or zero
// for an empty queue. This is the cost basis for unrealized gains; it is
// not the all-time simple average used in the summary report.
func (q lotQueue) weightedAvgCost() decimal.Decimal {
	total := q.totalQuantity()
	if total == 0 {
		return decimal.Zero
	}

	cost := decimal.Zero
	for _, l := range q {
		cost = cost.Add(l.unitCost.Mul(decimal.NewFromInt(l.quantity)))
	}
	return cost.Div(decimal.NewFromInt(total))
}

// openLots copies the queue into domain lots for snapshots.
func (q lotQueue) openLots(ticker string) []domain.Lot {
	lots := make([]domain.Lot, 0, len(q))
	for _, l := range q {
		lots = append(lots, domain.Lot{
			Ticker:    ticker,
			Quantity:  l.quantity,
			UnitCost:  l.unitCost,
			OpenedAt:  l.openedAt,
			SortIndex: l.seq,
		})
	}
	return lots
}
