package model

// Point is one value of a derived indicator series, timestamp-aligned with
// the candle it was computed for. Series are shorter than the candle window
// by each indicator's warm-up length.
type Point struct {
	Time  int64   `json:"time"` // unix seconds
	Value float64 `json:"value"`
}

// Band is one Bollinger Band value: three parallel series sharing timestamps.
type Band struct {
	Time   int64   `json:"time"`
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// LastValue returns the final point's value, or (0, false) on an empty series.
func LastValue(series []Point) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1].Value, true
}
