package indicator

import (
	"math"

	"stochbot/internal/model"
)

// CCI computes the Commodity Channel Index:
//
//	TP  = (high + low + close) / 3
//	CCI = (TP - SMA(TP, period)) / (0.015 · meanAbsDeviation(TP, period))
//
// and 0 when the mean deviation is 0 (flat window).
func CCI(candles []model.Candle, period int) []model.Point {
	if period <= 0 || len(candles) < period {
		return nil
	}

	tp := make([]float64, len(candles))
	for i, c := range candles {
		tp[i] = (c.High + c.Low + c.Close) / 3
	}

	out := make([]model.Point, 0, len(candles)-period+1)
	for i := period - 1; i < len(candles); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += tp[j]
		}
		mean := sum / float64(period)

		dev := 0.0
		for j := i - period + 1; j <= i; j++ {
			dev += math.Abs(tp[j] - mean)
		}
		dev /= float64(period)

		val := 0.0
		if dev != 0 {
			val = (tp[i] - mean) / (0.015 * dev)
		}
		out = append(out, model.Point{Time: candles[i].Time, Value: val})
	}
	return out
}
