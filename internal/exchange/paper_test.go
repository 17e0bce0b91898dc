package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"stochbot/internal/model"
)

func TestPaper_MarketOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	p := NewPaper("USDT", 1000, 50000)
	p.SetLeverage(ctx, "BTCUSDT", 5)

	if _, err := p.MarketOrder(ctx, "BTCUSDT", model.SideBuy, "0.010"); err != nil {
		t.Fatalf("entry: %v", err)
	}
	positions, err := p.Positions(ctx, "BTCUSDT")
	if err != nil || len(positions) != 1 {
		t.Fatalf("positions = %v, %v", positions, err)
	}
	pos := positions[0]
	if pos.Side != model.SignalLong || pos.Qty != 0.010 || pos.EntryPrice != 50000 || pos.Leverage != 5 {
		t.Errorf("position = %+v", pos)
	}

	p.SetPrice(51000)
	positions, _ = p.Positions(ctx, "BTCUSDT")
	if pnl := positions[0].UnrealizedPnL; pnl < 9.99 || pnl > 10.01 {
		t.Errorf("pnl = %v, want ~10", pnl)
	}

	// Opposite-side order of the full size flattens.
	if _, err := p.MarketOrder(ctx, "BTCUSDT", model.SideSell, "0.010"); err != nil {
		t.Fatalf("exit: %v", err)
	}
	positions, _ = p.Positions(ctx, "BTCUSDT")
	if len(positions) != 0 {
		t.Errorf("still holding after exit: %+v", positions)
	}
}

func TestPaper_StopOrders(t *testing.T) {
	ctx := context.Background()
	p := NewPaper("USDT", 1000, 50000)

	p.StopOrder(ctx, "BTCUSDT", model.SideSell, model.OrderKindTP, "51500.0", "0.010")
	p.StopOrder(ctx, "BTCUSDT", model.SideSell, model.OrderKindSL, "49250.0", "0.010")

	open := p.OpenOrders("BTCUSDT")
	if len(open) != 2 {
		t.Fatalf("open orders = %d, want 2", len(open))
	}
	if open[0].Type != "TAKE_PROFIT_MARKET" || open[1].Type != "STOP_MARKET" {
		t.Errorf("order types = %s, %s", open[0].Type, open[1].Type)
	}

	if err := p.CancelAllOrders(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if n := len(p.OpenOrders("BTCUSDT")); n != 0 {
		t.Errorf("open orders after cancel = %d", n)
	}
}

func TestTruncateToStep(t *testing.T) {
	cases := []struct {
		v    float64
		step string
		want string
	}{
		{0.0123456, "0.001", "0.012"},
		{0.0129999, "0.001", "0.012"},
		{5, "0.001", "5"},
		{64123.456, "0.1", "64123.4"},
		{0.0004, "0.001", "0"},
	}
	for _, tc := range cases {
		step := decimal.RequireFromString(tc.step)
		if got := truncateToStep(tc.v, step); got != tc.want {
			t.Errorf("truncateToStep(%v, %s) = %s, want %s", tc.v, tc.step, got, tc.want)
		}
	}
}
