package signal

import (
	"stochbot/internal/indicator"
	"stochbot/internal/model"
)

// Thresholds are the Stochastic-RSI cross levels for entries.
type Thresholds struct {
	Oversold   float64 // LONG arms below this, fires on the upward cross
	Overbought float64 // SHORT arms above this, fires on the downward cross
}

// DefaultThresholds returns the 20/80 levels the strategy was tuned with.
func DefaultThresholds() Thresholds {
	return Thresholds{Oversold: 20, Overbought: 80}
}

// Engine evaluates entry conditions against the latest indicator snapshot.
// It is stateless: crossover detection uses the two most recent %K points of
// the snapshot rather than remembered values, so a recompute over the same
// window always reaches the same verdict.
type Engine struct {
	symbol string
	levels Thresholds
}

// NewEngine creates an engine for one instrument.
func NewEngine(symbol string, levels Thresholds) *Engine {
	return &Engine{symbol: symbol, levels: levels}
}

// Evaluate inspects the snapshot and, when the tracker is flat and an entry
// condition holds on the latest closed bar, returns exactly one TradeIntent.
//
// LONG:  haClose > haEMA, bullish HA bar, %K crosses up through oversold.
// SHORT: haClose < haEMA, bearish HA bar, %K crosses down through overbought.
//
// The trend filters are mutually exclusive, so both conditions can never
// hold at once; LONG is still checked first to fix the tie-break by
// evaluation order. Insufficient data (fewer than 2 %K points, or no EMA
// aligned with the latest HA bar) yields no signal and no error.
func (e *Engine) Evaluate(snap indicator.Snapshot, state model.PositionState, rawClose float64, nowMillis int64) (model.TradeIntent, bool) {
	if state != model.PositionNone {
		return model.TradeIntent{}, false
	}
	if len(snap.HA) == 0 || len(snap.HAEMA) == 0 || len(snap.StochRSI.K) < 2 {
		return model.TradeIntent{}, false
	}

	ha := snap.HA[len(snap.HA)-1]
	ema := snap.HAEMA[len(snap.HAEMA)-1]
	if ema.Time != ha.Time {
		// EMA hasn't caught up to the latest bar; treat as warm-up.
		return model.TradeIntent{}, false
	}

	k := snap.StochRSI.K
	currK := k[len(k)-1].Value
	prevK := k[len(k)-2].Value

	var sig model.SignalType
	switch {
	case ha.Close > ema.Value && ha.Bullish() &&
		prevK <= e.levels.Oversold && currK > e.levels.Oversold:
		sig = model.SignalLong
	case ha.Close < ema.Value && !ha.Bullish() &&
		prevK >= e.levels.Overbought && currK < e.levels.Overbought:
		sig = model.SignalShort
	default:
		return model.TradeIntent{}, false
	}

	return model.TradeIntent{
		Symbol:             e.symbol,
		Side:               sig.Side(),
		OrderType:          "MARKET",
		ReferencePrice:     ha.Close,
		OriginalClosePrice: rawClose,
		Timestamp:          nowMillis,
		SignalType:         sig,
	}, true
}
