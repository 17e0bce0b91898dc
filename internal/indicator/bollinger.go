package indicator

import (
	"math"

	"stochbot/internal/model"
)

// BollingerBands computes the middle band as SMA(close, period) and the
// upper/lower bands as middle ± stddev·multiplier, where the standard
// deviation is taken over the same trailing close window (population
// variance, as charting packages do).
func BollingerBands(candles []model.Candle, period int, stdDevMultiplier float64) []model.Band {
	if period <= 0 || len(candles) < period {
		return nil
	}

	out := make([]model.Band, 0, len(candles)-period+1)
	for i := period - 1; i < len(candles); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += candles[j].Close
		}
		mean := sum / float64(period)

		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := candles[j].Close - mean
			variance += d * d
		}
		stdDev := math.Sqrt(variance / float64(period))

		out = append(out, model.Band{
			Time:   candles[i].Time,
			Upper:  mean + stdDev*stdDevMultiplier,
			Middle: mean,
			Lower:  mean - stdDev*stdDevMultiplier,
		})
	}
	return out
}
