package indicator

import "stochbot/internal/model"

// StochRSIResult carries the smoothed %K and %D lines. The two series share
// timestamps; %D is shorter by dPeriod-1.
type StochRSIResult struct {
	K []model.Point `json:"k"`
	D []model.Point `json:"d"`
}

// StochasticRSI applies a stochastic oscillator to an RSI series.
// raw[i] = (rsi[i] - min(window)) / (max(window) - min(window)) * 100 over
// the trailing stochPeriod values, 0 when the window is constant (max==min).
// %K is the SMA of raw over kPeriod, %D the SMA of %K over dPeriod.
func StochasticRSI(rsi []model.Point, stochPeriod, kPeriod, dPeriod int) StochRSIResult {
	if stochPeriod <= 0 || len(rsi) < stochPeriod {
		return StochRSIResult{}
	}

	raw := make([]model.Point, 0, len(rsi)-stochPeriod+1)
	for i := stochPeriod - 1; i < len(rsi); i++ {
		lo, hi := rsi[i-stochPeriod+1].Value, rsi[i-stochPeriod+1].Value
		for j := i - stochPeriod + 2; j <= i; j++ {
			v := rsi[j].Value
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		val := 0.0
		if hi != lo {
			val = (rsi[i].Value - lo) / (hi - lo) * 100
		}
		raw = append(raw, model.Point{Time: rsi[i].Time, Value: val})
	}

	k := SMA(raw, kPeriod)
	return StochRSIResult{K: k, D: SMA(k, dPeriod)}
}
