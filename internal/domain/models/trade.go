package models

// TradeEvent is a normalized trade print as delivered by an exchange adapter.
// Price is already rounded to the instrument's tick size upstream; the
// aggregation layer never performs instrument-specific rounding.
type TradeEvent struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	// IsPassiveBid is true when the resting order was a bid, i.e. the trade
	// was initiated by an aggressive seller (buyer-maker in Binance terms).
	IsPassiveBid bool    `json:"isPassiveBid"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	// TimestampMs is the exchange event time. The live path ignores it (the
	// wall clock drives bucketing); the backfill path derives its simulated
	// clock from it.
	TimestampMs int64 `json:"timestampMs"`
}
