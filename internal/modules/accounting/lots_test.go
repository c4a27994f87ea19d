package accounting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func makeLot(quantity int64, unitCost string, seq int64) lot {
	return lot{
		quantity: quantity,
		unitCost: decimal.RequireFromString(unitCost),
		openedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
		seq:      seq,
	}
}

// TestConsume_OldestFirst tests that sells consume lots in acquisition order
func TestConsume_OldestFirst(t *testing.T) {
	var q lotQueue
	q = q.push(makeLot(10, "10", 1))
	q = q.push(makeLot(10, "20", 2))

	// Consume 15: all of the first lot, 5 of the second
	remaining, cost := q.consume(15)

	assert.Equal(t, int64(5), remaining.totalQuantity())
	assert.Len(t, remaining, 1)
	assert.True(t, remaining[0].unitCost.Equal(decimal.NewFromInt(20)), "Oldest lot should be gone")

	// 10*10 + 5*20 = 200
	assert.True(t, cost.Equal(decimal.NewFromInt(200)), "FIFO cost should be 200, got %s", cost)
}

// TestConsume_PartialLot tests consuming less than the first lot
func TestConsume_PartialLot(t *testing.T) {
	var q lotQueue
	q = q.push(makeLot(10, "10", 1))

	remaining, cost := q.consume(4)

	assert.Equal(t, int64(6), remaining.totalQuantity())
	assert.True(t, cost.Equal(decimal.NewFromInt(40)))
}

// TestConsume_ExactDrain tests that fully consumed queues end up empty
func TestConsume_ExactDrain(t *testing.T) {
	var q lotQueue
	q = q.push(makeLot(3, "1.50", 1))
	q = q.push(makeLot(7, "2.25", 2))

	remaining, cost := q.consume(10)

	assert.Equal(t, int64(0), remaining.totalQuantity())
	assert.Empty(t, remaining)
	// 3*1.50 + 7*2.25 = 4.50 + 15.75 = 20.25
	assert.True(t, cost.Equal(decimal.RequireFromString("20.25")), "got %s", cost)
}

// TestWeightedAvgCost tests the open-lot cost basis
func TestWeightedAvgCost(t *testing.T) {
	var q lotQueue
	assert.True(t, q.weightedAvgCost().IsZero(), "Empty queue has zero cost basis")

	q = q.push(makeLot(10, "10", 1))
	q = q.push(makeLot(30, "20", 2))

	// (10*10 + 30*20) / 40 = 700/40 = 17.5
	assert.True(t, q.weightedAvgCost().Equal(decimal.RequireFromString("17.5")))

	// After selling the cheap lot the basis rises to the remaining lots
	q, _ = q.consume(10)
	assert.True(t, q.weightedAvgCost().Equal(decimal.NewFromInt(20)))
}

// TestOpenLots_Snapshot tests that snapshots carry the queue state
func TestOpenLots_Snapshot(t *testing.T) {
	var q lotQueue
	q = q.push(makeLot(5, "99.99", 7))

	lots := q.openLots("AAPL")
	assert.Len(t, lots, 1)
	assert.Equal(t, "AAPL", lots[0].Ticker)
	assert.Equal(t, int64(5), lots[0].Quantity)
	assert.Equal(t, int64(7), lots[0].SortIndex)
	assert.True(t, lots[0].UnitCost.Equal(decimal.RequireFromString("99.99")))
}
