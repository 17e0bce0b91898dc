package indicator

import "stochbot/internal/model"

// EMA returns the exponential moving average of closes. The seed is the SMA
// of the first period closes, assigned to the candle at index period-1;
// thereafter ema[i] = close[i]*k + ema[i-1]*(1-k) with k = 2/(period+1).
// The output is a strict function of the entire prior close sequence, so a
// replay over the same window is deterministic.
func EMA(candles []model.Candle, period int) []model.Point {
	if period <= 0 || len(candles) < period {
		return nil
	}
	k := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += candles[i].Close
	}
	prev := sum / float64(period)

	out := make([]model.Point, 0, len(candles)-period+1)
	out = append(out, model.Point{Time: candles[period-1].Time, Value: prev})
	for i := period; i < len(candles); i++ {
		prev = candles[i].Close*k + prev*(1-k)
		out = append(out, model.Point{Time: candles[i].Time, Value: prev})
	}
	return out
}

// HAEMA is EMA over a Heikin-Ashi series. Same recurrence, HA closes.
func HAEMA(ha []model.HACandle, period int) []model.Point {
	if period <= 0 || len(ha) < period {
		return nil
	}
	k := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += ha[i].Close
	}
	prev := sum / float64(period)

	out := make([]model.Point, 0, len(ha)-period+1)
	out = append(out, model.Point{Time: ha[period-1].Time, Value: prev})
	for i := period; i < len(ha); i++ {
		prev = ha[i].Close*k + prev*(1-k)
		out = append(out, model.Point{Time: ha[i].Time, Value: prev})
	}
	return out
}
