package indicator

import (
	"math"

	"stochbot/internal/model"
)

// HeikinAshi transforms a raw candle window into its Heikin-Ashi form.
// Each HA bar depends on the previous HA bar, so the transform runs in time
// order and cannot be computed per-bar independently:
//
//	haClose[i] = (o+h+l+c)/4
//	haOpen[0]  = (open[0]+close[0])/2
//	haOpen[i]  = (haOpen[i-1]+haClose[i-1])/2
//	haHigh/haLow = extremes of the raw high/low and the two HA values
//
// Output length always equals input length.
func HeikinAshi(candles []model.Candle) []model.HACandle {
	if len(candles) == 0 {
		return nil
	}
	out := make([]model.HACandle, len(candles))

	var prevOpen, prevClose float64
	for i, c := range candles {
		haClose := (c.Open + c.High + c.Low + c.Close) / 4
		var haOpen float64
		if i == 0 {
			haOpen = (c.Open + c.Close) / 2
		} else {
			haOpen = (prevOpen + prevClose) / 2
		}

		out[i] = model.HACandle{
			Time:  c.Time,
			Open:  haOpen,
			High:  math.Max(c.High, math.Max(haOpen, haClose)),
			Low:   math.Min(c.Low, math.Min(haOpen, haClose)),
			Close: haClose,
		}
		prevOpen, prevClose = haOpen, haClose
	}
	return out
}

// HACloses projects HA closes into a Point series for the chained
// EMA/RSI/StochRSI computations.
func HACloses(ha []model.HACandle) []model.Point {
	out := make([]model.Point, len(ha))
	for i, c := range ha {
		out[i] = model.Point{Time: c.Time, Value: c.Close}
	}
	return out
}
