package marketdata

import (
	"testing"

	"github.com/adshao/go-binance/v2/futures"
)

func TestCandleFromWsKline(t *testing.T) {
	k := futures.WsKline{
		StartTime: 1700000040000,
		Symbol:    "BTCUSDT",
		Open:      "64100.10",
		High:      "64210.00",
		Low:       "64050.50",
		Close:     "64190.90",
		Volume:    "123.456",
		IsFinal:   true,
	}
	c, err := candleFromWsKline(k)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Time != 1700000040 {
		t.Errorf("time = %d, want open time in seconds", c.Time)
	}
	if c.Open != 64100.10 || c.High != 64210.00 || c.Low != 64050.50 || c.Close != 64190.90 {
		t.Errorf("ohlc = %+v", c)
	}
	if c.Volume != 123.456 || !c.Closed {
		t.Errorf("volume/closed = %v/%v", c.Volume, c.Closed)
	}
}

func TestCandleFromWsKline_Malformed(t *testing.T) {
	k := futures.WsKline{StartTime: 1, Open: "x", High: "1", Low: "1", Close: "1", Volume: "1"}
	if _, err := candleFromWsKline(k); err == nil {
		t.Error("malformed open price parsed without error")
	}
}

func TestBootstrapClosesAllButNewest(t *testing.T) {
	klines := []*futures.Kline{
		{OpenTime: 1700000000000, Open: "1", High: "1", Low: "1", Close: "1", Volume: "0"},
		{OpenTime: 1700000060000, Open: "1", High: "1", Low: "1", Close: "1", Volume: "0"},
	}
	for i, k := range klines {
		c, err := candleFromKline(k)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		c.Closed = i < len(klines)-1
		if i == 0 && !c.Closed {
			t.Error("older bar should be closed")
		}
		if i == 1 && c.Closed {
			t.Error("newest bar may still be forming")
		}
	}
}
