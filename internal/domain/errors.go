package domain

import "errors"

// Sentinel errors for the trade and pricing paths. Callers classify with
// errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrInvalidTrade is returned for malformed trade requests (non-positive
	// quantity, negative price, unknown action). The ledger is never touched.
	ErrInvalidTrade = errors.New("invalid trade")

	// ErrInsufficientShares is returned when a sell exceeds the open
	// position. Rejected atomically; ledger and lots are unchanged.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrNoPriceData is returned by a PriceOracle when no quote exists for
	// the requested ticker/date.
	ErrNoPriceData = errors.New("no price data")
)
