package indicator

import "stochbot/internal/model"

// Config holds the periods for a full snapshot computation.
type Config struct {
	EMAPeriod   int // trend filter over HA closes, 200 by default
	RSIPeriod   int
	StochPeriod int
	KPeriod     int
	DPeriod     int
	BBPeriod    int
	BBStdDev    float64
	CCIPeriod   int
}

// DefaultConfig mirrors the periods the strategy was tuned with.
func DefaultConfig() Config {
	return Config{
		EMAPeriod:   200,
		RSIPeriod:   14,
		StochPeriod: 14,
		KPeriod:     3,
		DPeriod:     3,
		BBPeriod:    20,
		BBStdDev:    2,
		CCIPeriod:   20,
	}
}

// Snapshot is the full derived view of one candle window: everything the
// signal engine evaluates plus the charting series broadcast to the UI.
// The signal set (HAEMA, RSI, StochRSI) is computed over the Heikin-Ashi
// series; Bollinger and CCI stay on the raw window for charting.
type Snapshot struct {
	HA        []model.HACandle `json:"ha"`
	HAEMA     []model.Point    `json:"ha_ema"`
	RSI       []model.Point    `json:"rsi"`
	StochRSI  StochRSIResult   `json:"stoch_rsi"`
	Bollinger []model.Band     `json:"bollinger"`
	CCI       []model.Point    `json:"cci"`
}

// Compute derives a fresh Snapshot from the window. Indicators that haven't
// warmed up come back as empty series; callers treat that as no-signal, not
// as an error.
func Compute(window []model.Candle, cfg Config) Snapshot {
	ha := HeikinAshi(window)
	haCloses := HACloses(ha)
	rsi := RSI(haCloses, cfg.RSIPeriod)

	return Snapshot{
		HA:        ha,
		HAEMA:     HAEMA(ha, cfg.EMAPeriod),
		RSI:       rsi,
		StochRSI:  StochasticRSI(rsi, cfg.StochPeriod, cfg.KPeriod, cfg.DPeriod),
		Bollinger: BollingerBands(window, cfg.BBPeriod, cfg.BBStdDev),
		CCI:       CCI(window, cfg.CCIPeriod),
	}
}
