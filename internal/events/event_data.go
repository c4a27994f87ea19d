package events

// EventData is the interface that all typed event payloads implement.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// ValuationUpdatedData is the payload for ValuationUpdated events.
// Value is the total portfolio worth as a decimal string; Kind is fixed
// so push consumers can route on the payload alone.
type ValuationUpdatedData struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// EventType returns the event type for ValuationUpdatedData
func (d *ValuationUpdatedData) EventType() EventType {
	return ValuationUpdated
}

// NewValuationUpdatedData builds the payload for one valuation sample.
func NewValuationUpdatedData(value string) *ValuationUpdatedData {
	return &ValuationUpdatedData{Kind: "valuation_update", Value: value}
}

// TradeExecutedData is the payload for TradeExecuted events.
type TradeExecutedData struct {
	Ticker   string `json:"ticker"`
	Action   string `json:"action"`
	Quantity int64  `json:"quantity"`
	Price    string `json:"price"`
}

// EventType returns the event type for TradeExecutedData
func (d *TradeExecutedData) EventType() EventType {
	return TradeExecuted
}

// HistoryRecordedData is the payload for HistoryRecorded events.
type HistoryRecordedData struct {
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// EventType returns the event type for HistoryRecordedData
func (d *HistoryRecordedData) EventType() EventType {
	return HistoryRecorded
}
