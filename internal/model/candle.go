// Package model defines the shared domain types: candles, indicator series
// points, trade intents, position state, and account snapshots exchanged
// between the signal engine and the order executor.
package model

import "encoding/json"

// Candle represents one OHLCV bar for the traded instrument.
// Time is the bucket open time in unix seconds and is unique within a store.
// Closed is false while the bar is still forming; the feed keeps revising an
// open bar in place until it reports the final value with Closed=true.
type Candle struct {
	Time   int64   `json:"time"` // unix seconds, bucket open
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Closed bool    `json:"closed"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// HACandle is one Heikin-Ashi transformed bar. Derived, never stored —
// recomputed from the raw window on demand.
type HACandle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Bullish reports whether the HA bar closed above its open.
func (h HACandle) Bullish() bool { return h.Close > h.Open }
