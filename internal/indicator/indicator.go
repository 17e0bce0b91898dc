// Package indicator computes technical indicator series from a candle
// window. All functions are pure: they take an immutable candle sequence (or
// a derived series) plus a period and return a fresh series aligned to the
// input timestamps. No state is retained between calls — every kline event
// recomputes over the full bounded window, which keeps the recurrences
// trivially correct and is cheap because the window capacity is fixed and
// small.
//
// Series shorter than the warm-up length yield empty output, never an error.
package indicator

import "stochbot/internal/model"

// SMA returns the arithmetic mean of the trailing period values for each
// point from index period-1 onward. Empty while fewer than period points
// exist.
func SMA(series []model.Point, period int) []model.Point {
	if period <= 0 || len(series) < period {
		return nil
	}
	out := make([]model.Point, 0, len(series)-period+1)
	sum := 0.0
	for i, p := range series {
		sum += p.Value
		if i >= period {
			sum -= series[i-period].Value
		}
		if i >= period-1 {
			out = append(out, model.Point{Time: p.Time, Value: sum / float64(period)})
		}
	}
	return out
}

// closeSeries projects candle closes into a Point series.
func closeSeries(candles []model.Candle) []model.Point {
	out := make([]model.Point, len(candles))
	for i, c := range candles {
		out[i] = model.Point{Time: c.Time, Value: c.Close}
	}
	return out
}
