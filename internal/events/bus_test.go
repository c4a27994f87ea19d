package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBus() *Bus {
	return NewBus(zerolog.New(nil).Level(zerolog.Disabled))
}

// TestPublish_DeliversToSubscribedTypeOnly tests topic isolation
func TestPublish_DeliversToSubscribedTypeOnly(t *testing.T) {
	bus := testBus()

	var valuations, trades int
	bus.Subscribe(ValuationUpdated, func(event *Event) { valuations++ })
	bus.Subscribe(TradeExecuted, func(event *Event) { trades++ })

	bus.PublishData("valuation", NewValuationUpdatedData("100.00"))
	bus.PublishData("valuation", NewValuationUpdatedData("101.00"))
	bus.PublishData("accounting", &TradeExecutedData{Ticker: "AAPL", Action: "BUY", Quantity: 1, Price: "10"})

	assert.Equal(t, 2, valuations)
	assert.Equal(t, 1, trades)
}

// TestPublish_PreservesPublishOrder tests per-subscriber ordering
func TestPublish_PreservesPublishOrder(t *testing.T) {
	bus := testBus()

	var values []string
	bus.Subscribe(ValuationUpdated, func(event *Event) {
		data := event.Data.(*ValuationUpdatedData)
		values = append(values, data.Value)
	})

	for _, v := range []string{"1", "2", "3", "4"} {
		bus.PublishData("valuation", NewValuationUpdatedData(v))
	}

	assert.Equal(t, []string{"1", "2", "3", "4"}, values)
}

// TestPublishData_FillsEnvelope tests the envelope fields
func TestPublishData_FillsEnvelope(t *testing.T) {
	bus := testBus()

	var received *Event
	bus.Subscribe(HistoryRecorded, func(event *Event) { received = event })

	bus.PublishData("valuation", &HistoryRecordedData{Value: "500.00", Timestamp: 1700000000})

	require.NotNil(t, received)
	assert.Equal(t, HistoryRecorded, received.Type)
	assert.Equal(t, "valuation", received.Module)
	assert.False(t, received.Timestamp.IsZero())
}

// TestPublish_NoSubscribersIsHarmless tests publishing into the void
func TestPublish_NoSubscribersIsHarmless(t *testing.T) {
	bus := testBus()
	assert.NotPanics(t, func() {
		bus.PublishData("valuation", NewValuationUpdatedData("1.00"))
	})
}
