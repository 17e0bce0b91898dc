package indicator

import (
	"math"

	"stochbot/internal/model"
)

// RSI returns the Relative Strength Index over closes using Wilder's
// smoothing. The seed average gain/loss is the plain mean of the first
// period deltas; each later average follows
// avg[i] = (avg[i-1]*(period-1) + current) / period.
// RSI is 100 when the trailing average loss is zero, so every output value
// lies in [0, 100]. Needs period+1 closes for the first value.
func RSI(closes []model.Point, period int) []model.Point {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		diff := closes[i].Value - closes[i-1].Value
		if diff > 0 {
			gains += diff
		} else {
			losses += math.Abs(diff)
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	out := make([]model.Point, 0, len(closes)-period)
	out = append(out, model.Point{Time: closes[period].Time, Value: rsiValue(avgGain, avgLoss)})

	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		diff := closes[i].Value - closes[i-1].Value
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, model.Point{Time: closes[i].Time, Value: rsiValue(avgGain, avgLoss)})
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
