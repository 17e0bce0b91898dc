package model

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// SignalType names the entry signal that produced a trade intent.
type SignalType string

const (
	SignalLong  SignalType = "LONG"
	SignalShort SignalType = "SHORT"
)

// Side maps the signal direction to the entry order side.
func (t SignalType) Side() Side {
	if t == SignalShort {
		return SideSell
	}
	return SideBuy
}

// TradeIntent is one entry decision, immutable once constructed. At most one
// is emitted per qualifying candle close while the tracker is flat.
type TradeIntent struct {
	Symbol             string     `json:"symbol"`
	Side               Side       `json:"side"`
	OrderType          string     `json:"order_type"` // always MARKET
	ReferencePrice     float64    `json:"reference_price"`
	OriginalClosePrice float64    `json:"original_close_price"`
	Timestamp          int64      `json:"timestamp"` // unix millis at dispatch
	SignalType         SignalType `json:"signal_type"`
	SignalID           string     `json:"signal_id"` // stamped at dispatch, correlates logs across both processes
}
