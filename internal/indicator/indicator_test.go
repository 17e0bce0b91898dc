package indicator

import (
	"math"
	"testing"

	"stochbot/internal/model"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func points(values ...float64) []model.Point {
	out := make([]model.Point, len(values))
	for i, v := range values {
		out[i] = model.Point{Time: int64(i), Value: v}
	}
	return out
}

func candlesFromCloses(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{Time: int64(i), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func TestSMA_ShortSeriesIsEmpty(t *testing.T) {
	for _, period := range []int{1, 3, 14, 200} {
		series := points(1, 2, 3)
		if len(series) >= period {
			continue
		}
		if got := SMA(series, period); len(got) != 0 {
			t.Errorf("SMA(len=%d, period=%d) should be empty, got %d points", len(series), period, len(got))
		}
	}
}

func TestSMA_TrailingMean(t *testing.T) {
	got := SMA(points(1, 2, 3, 4, 5), 3)
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(got))
	}
	for i, w := range want {
		if !approx(got[i].Value, w) {
			t.Errorf("sma[%d] = %v, want %v", i, got[i].Value, w)
		}
		if got[i].Time != int64(i+2) {
			t.Errorf("sma[%d] time = %d, want %d", i, got[i].Time, i+2)
		}
	}
}

func TestEMA_ShortWindowIsEmpty(t *testing.T) {
	if got := EMA(candlesFromCloses(1, 2), 3); len(got) != 0 {
		t.Errorf("EMA below warm-up should be empty, got %d", len(got))
	}
}

func TestEMA_SeedAndRecurrence(t *testing.T) {
	// Candles [{t:0,c:102},{t:1,c:108}], period 2:
	// seed = (102+108)/2 = 105 at t=0... the seed sits at index period-1.
	candles := []model.Candle{
		{Time: 0, Open: 100, High: 105, Low: 95, Close: 102},
		{Time: 1, Open: 102, High: 110, Low: 100, Close: 108},
	}
	got := EMA(candles, 2)
	if len(got) != 1 {
		t.Fatalf("expected 1 point for 2 candles period 2, got %d", len(got))
	}
	if got[0].Time != 1 || !approx(got[0].Value, 105) {
		t.Fatalf("seed = {t:%d v:%v}, want {t:1 v:105}", got[0].Time, got[0].Value)
	}

	// Add a third close of 108: ema = 108*(2/3) + 105*(1/3) = 107.
	candles = append(candles, model.Candle{Time: 2, Close: 108})
	got = EMA(candles, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if !approx(got[1].Value, 107) {
		t.Errorf("ema[1] = %v, want 107", got[1].Value)
	}
}

func TestEMA_DeterministicReplay(t *testing.T) {
	candles := candlesFromCloses(10, 11, 12, 11, 13, 14, 13, 15)
	a := EMA(candles, 3)
	b := EMA(candles, 3)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replay diverged at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRSI_ShortSeriesIsEmpty(t *testing.T) {
	if got := RSI(points(1, 2), 2); len(got) != 0 {
		t.Errorf("RSI needs period+1 closes, got %d points", len(got))
	}
}

func TestRSI_WilderSeed(t *testing.T) {
	// Closes [10,12,11], period 2: deltas +2, -1 → avgGain=1, avgLoss=0.5
	// → RSI = 100 - 100/(1+2) = 66.67.
	got := RSI(points(10, 12, 11), 2)
	if len(got) != 1 {
		t.Fatalf("expected 1 RSI point, got %d", len(got))
	}
	if !approx(got[0].Value, 100-100.0/3.0) {
		t.Errorf("rsi = %v, want 66.666...", got[0].Value)
	}
}

func TestRSI_BoundedAndSaturates(t *testing.T) {
	// Monotonic rise: avgLoss stays 0 → RSI pinned at exactly 100.
	up := RSI(points(1, 2, 3, 4, 5, 6, 7), 3)
	for _, p := range up {
		if p.Value != 100 {
			t.Errorf("rising series should give RSI=100, got %v at t=%d", p.Value, p.Time)
		}
	}

	// Mixed series stays within [0,100].
	mixed := RSI(points(50, 48, 53, 41, 60, 44, 57, 39, 62), 3)
	for _, p := range mixed {
		if p.Value < 0-eps || p.Value > 100+eps {
			t.Errorf("RSI out of range: %v at t=%d", p.Value, p.Time)
		}
	}
}

func TestBollinger_FlatWindowCollapses(t *testing.T) {
	got := BollingerBands(candlesFromCloses(5, 5, 5, 5, 5), 3, 2)
	if len(got) != 3 {
		t.Fatalf("expected 3 bands, got %d", len(got))
	}
	for _, b := range got {
		if !approx(b.Upper, 5) || !approx(b.Middle, 5) || !approx(b.Lower, 5) {
			t.Errorf("flat closes should collapse bands to the mean, got %+v", b)
		}
	}
}

func TestBollinger_KnownWindow(t *testing.T) {
	// Closes 1..5, period 5: mean 3, population stddev sqrt(2).
	got := BollingerBands(candlesFromCloses(1, 2, 3, 4, 5), 5, 2)
	if len(got) != 1 {
		t.Fatalf("expected 1 band, got %d", len(got))
	}
	sd := math.Sqrt(2)
	if !approx(got[0].Middle, 3) || !approx(got[0].Upper, 3+2*sd) || !approx(got[0].Lower, 3-2*sd) {
		t.Errorf("band = %+v, want middle 3 ± 2*sqrt(2)", got[0])
	}
}

func TestCCI_FlatWindowIsZero(t *testing.T) {
	got := CCI(candlesFromCloses(7, 7, 7, 7), 3)
	for _, p := range got {
		if p.Value != 0 {
			t.Errorf("flat window should give CCI=0, got %v", p.Value)
		}
	}
}

func TestCCI_SignTracksDeviation(t *testing.T) {
	// Last typical price above the window mean → positive CCI, and mirrored.
	up := CCI(candlesFromCloses(10, 10, 13), 3)
	if len(up) != 1 || up[0].Value <= 0 {
		t.Fatalf("expected positive CCI for a close above the mean, got %+v", up)
	}
	down := CCI(candlesFromCloses(10, 10, 7), 3)
	if len(down) != 1 || down[0].Value >= 0 {
		t.Fatalf("expected negative CCI for a close below the mean, got %+v", down)
	}
}

func TestCompute_EmptyWindow(t *testing.T) {
	snap := Compute(nil, DefaultConfig())
	if len(snap.HA) != 0 || len(snap.HAEMA) != 0 || len(snap.RSI) != 0 ||
		len(snap.StochRSI.K) != 0 || len(snap.Bollinger) != 0 || len(snap.CCI) != 0 {
		t.Errorf("empty window should produce empty snapshot, got %+v", snap)
	}
}
